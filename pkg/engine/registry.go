package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/getmockd/interceptd/internal/matching"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/mock"
)

// UnhandledStrategy decides what happens to requests no handler claims.
type UnhandledStrategy struct {
	Action mock.Action
	// Log emits a warning for each unhandled request.
	Log bool
	// Response is used when Action is ActionRespond.
	Response mock.Response
}

// Registry holds handlers in declaration order and dispatches requests.
type Registry struct {
	remote    bool
	save      bool
	log       *slog.Logger
	evaluator *matching.Evaluator

	mu           sync.RWMutex
	handlers     []*HTTPRequestHandler
	byID         map[string]*HTTPRequestHandler
	unhandled    UnhandledStrategy
	unhandledSet bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRemote marks handlers as server-side: bypass outcomes are refused.
func WithRemote(remote bool) RegistryOption {
	return func(r *Registry) {
		r.remote = remote
	}
}

// WithSaveRequests retains claimed requests and evaluation diagnostics.
func WithSaveRequests(save bool) RegistryOption {
	return func(r *Registry) {
		r.save = save
	}
}

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithUnhandled sets the unhandled-request strategy.
func WithUnhandled(s UnhandledStrategy) RegistryOption {
	return func(r *Registry) {
		r.unhandled = s
		r.unhandledSet = true
	}
}

// DefaultUnhandled returns the default strategy: bypass locally, reject on a
// server. Both log.
func DefaultUnhandled(remote bool) UnhandledStrategy {
	if remote {
		return UnhandledStrategy{Action: mock.ActionReject, Log: true}
	}
	return UnhandledStrategy{Action: mock.ActionBypass, Log: true}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		log:  logging.Nop(),
		byID: make(map[string]*HTTPRequestHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	if !r.unhandledSet {
		r.unhandled = DefaultUnhandled(r.remote)
	}
	r.evaluator = matching.NewEvaluator(r.log)
	return r
}

// SetUnhandled replaces the unhandled-request strategy.
func (r *Registry) SetUnhandled(s UnhandledStrategy) error {
	if s.Action == mock.ActionBypass && r.remote {
		return ErrBypassUnsupported
	}
	r.mu.Lock()
	r.unhandled = s
	r.mu.Unlock()
	return nil
}

// Register creates a handler for method and path and appends it.
func (r *Registry) Register(method, path string) *HTTPRequestHandler {
	return r.RegisterWithID("", method, path)
}

// RegisterWithID is Register with a caller-chosen handler id.
func (r *Registry) RegisterWithID(handlerID, method, path string) *HTTPRequestHandler {
	h := NewHTTPRequestHandler(HandlerConfig{
		ID:           handlerID,
		Method:       method,
		Path:         path,
		Remote:       r.remote,
		SaveRequests: r.save,
		Logger:       r.log,
		Evaluator:    r.evaluator,
	})
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.byID[h.ID()] = h
	r.mu.Unlock()
	return h
}

// Handler looks a handler up by id.
func (r *Registry) Handler(handlerID string) (*HTTPRequestHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byID[handlerID]
	return h, ok
}

// Handlers returns the handlers in declaration order.
func (r *Registry) Handlers() []*HTTPRequestHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.handlers)
}

// Clear removes every handler.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.handlers = nil
	r.byID = make(map[string]*HTTPRequestHandler)
	r.mu.Unlock()
}

// CheckTimes checks every handler in declaration order and joins the
// failures.
func (r *Registry) CheckTimes() error {
	var errs []error
	for _, h := range r.Handlers() {
		if err := h.CheckTimes(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatch offers req to each handler in declaration order. The first claim
// wins and is resolved; requests nobody claims get the unhandled strategy.
// The returned handler is nil for unhandled requests.
func (r *Registry) Dispatch(ctx context.Context, req *mock.Request) (mock.Outcome, *HTTPRequestHandler, error) {
	r.mu.RLock()
	handlers := slices.Clone(r.handlers)
	unhandled := r.unhandled
	r.mu.RUnlock()

	for _, h := range handlers {
		claim, err := h.MatchesRequest(ctx, req)
		if err != nil {
			return mock.Outcome{}, h, err
		}
		if claim == nil {
			continue
		}
		out, err := claim.Resolve(ctx)
		return out, h, err
	}

	if unhandled.Log {
		r.log.Warn("unhandled request", "method", req.Method, "url", req.URL.String(), "action", unhandled.Action.String())
	}
	switch unhandled.Action {
	case mock.ActionBypass:
		if r.remote {
			return mock.Reject(), nil, nil
		}
		return mock.Bypass(), nil, nil
	case mock.ActionReject:
		return mock.Reject(), nil, nil
	default:
		resp, err := unhandled.Response.Normalize()
		if err != nil {
			return mock.Outcome{}, nil, err
		}
		return mock.Reply(resp), nil, nil
	}
}
