package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// fanout sends each record to every sink whose handler accepts its level.
// Sinks backed by a file are closed through Close.
type fanout struct {
	handlers []slog.Handler
	closers  []io.Closer
}

func (h *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes r to the enabled sinks. A failing sink does not stop the
// others; their errors are joined.
func (h *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(handler slog.Handler) slog.Handler { return handler.WithAttrs(attrs) })
}

func (h *fanout) WithGroup(name string) slog.Handler {
	return h.derive(func(handler slog.Handler) slog.Handler { return handler.WithGroup(name) })
}

// derive shares the closers: derived loggers write to the same files.
func (h *fanout) derive(fn func(slog.Handler) slog.Handler) *fanout {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = fn(handler)
	}
	return &fanout{handlers: handlers, closers: h.closers}
}

// Close releases the file sinks.
func (h *fanout) Close() error {
	var errs []error
	for _, c := range h.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
