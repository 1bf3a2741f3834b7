package interceptor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getmockd/interceptd/internal/matching"
	"github.com/getmockd/interceptd/pkg/engine"
	"github.com/getmockd/interceptd/pkg/mock"
)

// Local runs handlers in-process. It implements http.RoundTripper:
// requests under the base URL are dispatched to handlers while the
// interceptor is running, everything else goes to the base transport.
type Local struct {
	routes

	base     *url.URL
	opts     options
	registry *engine.Registry
	running  atomic.Bool

	mu       sync.Mutex
	handlers []*localHandler
}

var (
	_ Interceptor       = (*Local)(nil)
	_ http.RoundTripper = (*Local)(nil)
)

// NewLocal creates a stopped local interceptor for baseURL.
func NewLocal(baseURL string, opts ...Option) (*Local, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	regOpts := []engine.RegistryOption{
		engine.WithSaveRequests(o.saveRequests),
		engine.WithLogger(o.log),
	}
	if o.unhandled != nil {
		regOpts = append(regOpts, engine.WithUnhandled(*o.unhandled))
	}

	l := &Local{
		base:     base,
		opts:     o,
		registry: engine.NewRegistry(regOpts...),
	}
	l.routes = routes{handle: l.Handle}
	return l, nil
}

// Start begins intercepting.
func (l *Local) Start(ctx context.Context) error {
	l.running.Store(true)
	return nil
}

// Stop stops intercepting; requests pass through to the base transport.
// Handlers are kept.
func (l *Local) Stop(ctx context.Context) error {
	l.running.Store(false)
	return nil
}

// IsRunning reports whether requests are being intercepted.
func (l *Local) IsRunning() bool {
	return l.running.Load()
}

// BaseURL returns the intercepted URL prefix.
func (l *Local) BaseURL() string {
	return l.base.String()
}

// Handle declares a handler. path is relative to the base URL path.
func (l *Local) Handle(method, path string) Handler {
	h := &localHandler{method: method, path: path}
	if err := mock.ValidateMethod(method); err != nil {
		h.setError(err)
	}
	full := matching.JoinPath(l.base.Path, path)
	if !matching.ValidatePath(full) {
		h.setError(fmt.Errorf("invalid handler path %q", path))
	}
	h.h = l.registry.Register(method, full)

	l.mu.Lock()
	l.handlers = append(l.handlers, h)
	l.mu.Unlock()
	return h
}

// Clear removes every handler.
func (l *Local) Clear(ctx context.Context) error {
	l.registry.Clear()
	l.mu.Lock()
	l.handlers = nil
	l.mu.Unlock()
	return nil
}

// CheckTimes checks every handler in declaration order.
func (l *Local) CheckTimes(ctx context.Context) error {
	l.mu.Lock()
	handlers := append([]*localHandler(nil), l.handlers...)
	l.mu.Unlock()

	var buildErrs []error
	for _, h := range handlers {
		if err := h.Err(); err != nil {
			buildErrs = append(buildErrs, fmt.Errorf("%s %s: %w", h.method, h.path, err))
		}
	}
	return joinChecks(buildErrs, l.registry.CheckTimes())
}

// SetUnhandled replaces the unhandled-request strategy.
func (l *Local) SetUnhandled(s engine.UnhandledStrategy) error {
	return l.registry.SetUnhandled(s)
}

// Intercept dispatches a captured request and returns its outcome. It is
// the hook a capture mechanism other than RoundTrip can call.
func (l *Local) Intercept(ctx context.Context, req *mock.Request) (mock.Outcome, error) {
	if !l.IsRunning() {
		return mock.Outcome{}, ErrNotRunning
	}
	out, _, err := l.registry.Dispatch(ctx, req)
	return out, err
}

// Client returns an http.Client that routes through the interceptor.
func (l *Local) Client() *http.Client {
	return &http.Client{Transport: l}
}

// RoundTrip implements http.RoundTripper.
func (l *Local) RoundTrip(req *http.Request) (*http.Response, error) {
	if !l.IsRunning() || !l.covers(req.URL) {
		return l.opts.transport.RoundTrip(req)
	}

	captured, err := mock.FromHTTP(req)
	if err != nil {
		return nil, err
	}

	out, err := l.Intercept(req.Context(), captured)
	if err != nil {
		return nil, err
	}

	switch out.Action {
	case mock.ActionBypass:
		return l.opts.transport.RoundTrip(req)
	case mock.ActionReject:
		return nil, fmt.Errorf("%w: %s %s", ErrRequestRejected, req.Method, req.URL)
	default:
		return newHTTPResponse(req, out.Response), nil
	}
}

// covers reports whether u falls under the base URL.
func (l *Local) covers(u *url.URL) bool {
	if !strings.EqualFold(u.Scheme, l.base.Scheme) || !strings.EqualFold(u.Host, l.base.Host) {
		return false
	}
	prefix := strings.TrimSuffix(l.base.Path, "/")
	if prefix == "" {
		return true
	}
	return u.Path == prefix || strings.HasPrefix(u.Path, prefix+"/")
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func newHTTPResponse(req *http.Request, resp mock.Response) *http.Response {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	header := resp.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	payload := resp.Body
	if req.Method == http.MethodHead {
		payload = nil
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(payload)),
		ContentLength: int64(len(payload)),
		Request:       req,
	}
}

// localHandler adapts an engine handler to the Handler interface.
type localHandler struct {
	method string
	path   string
	h      *engine.HTTPRequestHandler

	mu sync.Mutex
	builderErr
}

func (h *localHandler) Method() string { return h.method }
func (h *localHandler) Path() string   { return h.path }

func (h *localHandler) apply(err error) Handler {
	h.mu.Lock()
	h.setError(err)
	h.mu.Unlock()
	return h
}

func (h *localHandler) With(restrictions ...mock.Restriction) Handler {
	return h.apply(h.h.With(restrictions...))
}

func (h *localHandler) Delay(d time.Duration) Handler {
	return h.apply(h.h.SetDelay(mock.FixedDelay(d)))
}

func (h *localHandler) DelayBetween(minDelay, maxDelay time.Duration) Handler {
	return h.apply(h.h.SetDelay(mock.RangeDelay(minDelay, maxDelay)))
}

func (h *localHandler) DelayWith(fn mock.DelayFunc) Handler {
	return h.apply(h.h.SetDelay(mock.ComputedDelay(fn)))
}

func (h *localHandler) Times(minCalls int, maxCalls ...int) Handler {
	t, err := timesFromArgs(minCalls, maxCalls)
	if err != nil {
		return h.apply(err)
	}
	return h.apply(h.h.SetTimes(t, engine.Caller(1)))
}

func (h *localHandler) Respond(resp mock.Response) Handler {
	return h.apply(h.h.SetResponse(mock.Static(mock.Reply(resp))))
}

func (h *localHandler) RespondWith(fn mock.ResponseFactory) Handler {
	if fn == nil {
		return h.apply(fmt.Errorf("respond: nil response factory"))
	}
	return h.apply(h.h.SetResponse(mock.Dynamic(fn)))
}

func (h *localHandler) Bypass() Handler {
	return h.apply(h.h.SetResponse(mock.Static(mock.Bypass())))
}

func (h *localHandler) Reject() Handler {
	return h.apply(h.h.SetResponse(mock.Static(mock.Reject())))
}

func (h *localHandler) Clear(ctx context.Context) error {
	h.h.Clear()
	h.mu.Lock()
	h.err = nil
	h.mu.Unlock()
	return nil
}

func (h *localHandler) CheckTimes(ctx context.Context) error {
	if err := h.Err(); err != nil {
		return err
	}
	return h.h.CheckTimes()
}

func (h *localHandler) Requests(ctx context.Context) ([]*engine.SavedRequest, error) {
	return h.h.Requests(), nil
}

func (h *localHandler) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
