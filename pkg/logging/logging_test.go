package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		// Lowercase
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},

		// Uppercase
		{"DEBUG", LevelDebug},
		{"INFO", LevelInfo},
		{"WARN", LevelWarn},
		{"WARNING", LevelWarn},
		{"ERROR", LevelError},

		// Mixed case (the fix: these should all work now)
		{"Debug", LevelDebug},
		{"Info", LevelInfo},
		{"Warn", LevelWarn},
		{"Warning", LevelWarn},
		{"Error", LevelError},
		{"dEbUg", LevelDebug},

		// Empty string defaults to Info
		{"", LevelInfo},

		// Unrecognized defaults to Info
		{"trace", LevelInfo},
		{"fatal", LevelInfo},
		{"unknown", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"Json", FormatJSON},
		{"text", FormatText},
		{"TEXT", FormatText},
		{"", FormatText},
		{"yaml", FormatText}, // unrecognized defaults to text
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseFormat(tt.input)
			if result != tt.expected {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNew_WritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Format: FormatJSON, Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept", "key", "value")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"key":"value"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interceptd.log")
	var buf bytes.Buffer
	logger, closeLog := Open(Config{Level: LevelInfo, Output: &buf, File: FileConfig{Path: path}})

	logger.With("session", "s1").Info("to both sinks")
	if err := closeLog(); err != nil {
		t.Fatalf("close log: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"to both sinks"`) {
		t.Errorf("file sink missing record: %s", data)
	}
	if !strings.Contains(string(data), `"session":"s1"`) {
		t.Errorf("file sink missing attrs: %s", data)
	}
	if !strings.Contains(buf.String(), "to both sinks") {
		t.Errorf("output sink missing record: %s", buf.String())
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("sink down")
}

func TestFanout_KeepsWritingPastFailingSink(t *testing.T) {
	var buf bytes.Buffer
	h := &fanout{handlers: []slog.Handler{
		failingHandler{slog.NewTextHandler(&buf, nil)},
		slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: LevelWarn}),
	}}

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), LevelError, "boom", 0))
	if err == nil || !strings.Contains(err.Error(), "sink down") {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if !strings.Contains(buf.String(), `"msg":"boom"`) {
		t.Errorf("healthy sink missing record: %s", buf.String())
	}

	if h.Enabled(context.Background(), LevelDebug) {
		t.Errorf("no sink accepts debug records")
	}
	if !h.Enabled(context.Background(), LevelInfo) {
		t.Errorf("info records reach the text sink")
	}
}

func TestOpen_WithoutFile(t *testing.T) {
	var buf bytes.Buffer
	logger, closeLog := Open(Config{Output: &buf})
	logger.Info("hello")
	if err := closeLog(); err != nil {
		t.Fatalf("close log: %v", err)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
