package interceptor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/getmockd/interceptd/internal/id"
	"github.com/getmockd/interceptd/pkg/engine"
	"github.com/getmockd/interceptd/pkg/mock"
	"github.com/getmockd/interceptd/pkg/protocol"
)

// Remote drives handlers that live in an interceptor server. Each builder
// call is a round trip; Go callbacks stay in this process and are invoked
// by the server over the same connection.
type Remote struct {
	routes

	server *url.URL
	opts   options
	cbIDs  id.Sequence

	mu        sync.Mutex
	peer      *protocol.Peer
	cancel    context.CancelFunc
	runDone   chan struct{}
	sessionID string
	baseURL   string
	handlers  []*remoteHandler
	callbacks map[string]any
}

var _ Interceptor = (*Remote)(nil)

// NewRemote creates a stopped interceptor bound to the server at serverURL.
func NewRemote(serverURL string, opts ...Option) (*Remote, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("server URL %q: unsupported scheme %q", serverURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server URL %q has no host", serverURL)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	r := &Remote{
		server:    u,
		opts:      o,
		cbIDs:     id.Sequence{Prefix: "cb"},
		callbacks: make(map[string]any),
	}
	r.routes = routes{handle: r.Handle}
	return r, nil
}

// Start opens a session on the server.
func (r *Remote) Start(ctx context.Context) error {
	if r.IsRunning() {
		return errors.New("interceptor already running")
	}

	u := *r.server
	u.Path = strings.TrimSuffix(u.Path, "/") + protocol.Path
	q := u.Query()
	if r.opts.sessionID != "" {
		q.Set(protocol.SessionParam, r.opts.sessionID)
	}
	if r.opts.saveRequests {
		q.Set("saveRequests", "true")
	}
	u.RawQuery = q.Encode()

	headers := http.Header{}
	if r.opts.token != "" {
		headers.Set("Authorization", "Bearer "+r.opts.token)
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: headers,
		HTTPClient: r.opts.httpClient,
	})
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		return fmt.Errorf("failed to connect to interceptor server: %w", err)
	}
	conn.SetReadLimit(protocol.MaxMessageSize)

	_, data, err := conn.Read(ctx)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "failed to read connected message")
		return fmt.Errorf("failed to read connected message: %w", err)
	}
	connected, err := protocol.DecodeMessage(data)
	if err != nil || connected.Type != protocol.TypeConnected {
		_ = conn.Close(websocket.StatusInternalError, "invalid connected message")
		return fmt.Errorf("invalid connected message: %s", data)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	peer := protocol.NewPeer(conn, "c", r.handleInvoke, r.opts.log)
	runDone := make(chan struct{})

	r.mu.Lock()
	r.peer = peer
	r.cancel = cancel
	r.runDone = runDone
	r.sessionID = connected.SessionID
	r.baseURL = connected.BaseURL
	r.handlers = nil
	r.callbacks = make(map[string]any)
	r.mu.Unlock()

	go func() {
		defer close(runDone)
		if err := peer.Run(runCtx); err != nil {
			r.opts.log.Warn("interceptor session ended", "session", connected.SessionID, "error", err)
		}
	}()

	r.opts.log.Debug("interceptor session started", "session", connected.SessionID, "baseUrl", connected.BaseURL)

	if r.opts.unhandled != nil {
		if err := r.SetUnhandled(*r.opts.unhandled); err != nil {
			_ = r.Stop(ctx)
			return err
		}
	}
	return nil
}

// Stop ends the session. Calls in flight fail with ErrInterceptorStopped.
func (r *Remote) Stop(ctx context.Context) error {
	r.mu.Lock()
	peer, cancel, runDone := r.peer, r.cancel, r.runDone
	r.callbacks = make(map[string]any)
	r.mu.Unlock()

	if peer == nil {
		return nil
	}
	peer.Close("interceptor stopped")
	defer cancel()

	select {
	case <-runDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the session is open.
func (r *Remote) IsRunning() bool {
	r.mu.Lock()
	peer := r.peer
	r.mu.Unlock()
	if peer == nil {
		return false
	}
	select {
	case <-peer.Done():
		return false
	default:
		return true
	}
}

// BaseURL is the session URL assigned by the server. Empty until Start.
func (r *Remote) BaseURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baseURL
}

// SessionID is the server-assigned session id.
func (r *Remote) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// SetUnhandled replaces the session's unhandled-request strategy.
func (r *Remote) SetUnhandled(s engine.UnhandledStrategy) error {
	wire, err := protocol.EncodeUnhandled(s)
	if err != nil {
		return err
	}
	return r.call(context.Background(), protocol.OpInterceptorOptions, protocol.Options{Unhandled: wire}, nil)
}

// Handle declares a handler on the server.
func (r *Remote) Handle(method, path string) Handler {
	h := &remoteHandler{r: r, method: method, path: path}

	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()

	if err := mock.ValidateMethod(method); err != nil {
		h.setError(err)
		return h
	}
	var ref protocol.HandlerRef
	if err := r.call(context.Background(), protocol.OpHandlerCreate, protocol.HandlerCreate{Method: method, Path: path}, &ref); err != nil {
		h.setError(fmt.Errorf("create handler: %w", err))
		return h
	}
	h.id = ref.HandlerID
	return h
}

// Clear removes every handler in the session.
func (r *Remote) Clear(ctx context.Context) error {
	if err := r.call(ctx, protocol.OpInterceptorClear, nil, nil); err != nil {
		return err
	}
	r.mu.Lock()
	r.handlers = nil
	r.callbacks = make(map[string]any)
	r.mu.Unlock()
	return nil
}

// CheckTimes reports local build errors, then the server's check.
func (r *Remote) CheckTimes(ctx context.Context) error {
	r.mu.Lock()
	handlers := append([]*remoteHandler(nil), r.handlers...)
	r.mu.Unlock()

	var buildErrs []error
	for _, h := range handlers {
		if err := h.Err(); err != nil {
			buildErrs = append(buildErrs, fmt.Errorf("%s %s: %w", h.method, h.path, err))
		}
	}
	return joinChecks(buildErrs, r.call(ctx, protocol.OpInterceptorCheck, nil, nil))
}

// call performs one bounded round trip.
func (r *Remote) call(ctx context.Context, op string, payload, out any) error {
	r.mu.Lock()
	peer := r.peer
	r.mu.Unlock()
	if peer == nil {
		return ErrNotRunning
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.callTimeout)
	defer cancel()

	err := peer.Request(ctx, protocol.TypeCall, op, payload, out)
	if errors.Is(err, protocol.ErrSessionClosed) {
		return fmt.Errorf("%w: %w", ErrInterceptorStopped, err)
	}
	return err
}

func (r *Remote) register(fn any) string {
	cbID := r.cbIDs.Next()
	r.mu.Lock()
	r.callbacks[cbID] = fn
	r.mu.Unlock()
	return cbID
}

func (r *Remote) forget(cbIDs []string) {
	r.mu.Lock()
	for _, cbID := range cbIDs {
		delete(r.callbacks, cbID)
	}
	r.mu.Unlock()
}

func (r *Remote) callback(cbID string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.callbacks[cbID]
	return fn, ok
}

// handleInvoke runs a callback requested by the server. Callbacks may
// block, so each runs on its own goroutine.
func (r *Remote) handleInvoke(ctx context.Context, p *protocol.Peer, msg *protocol.Message) {
	if msg.Type != protocol.TypeInvoke {
		_ = p.Reply(ctx, msg, nil, fmt.Errorf("unsupported %s %s", msg.Type, msg.Op))
		return
	}
	go func() {
		result, err := r.invoke(ctx, msg)
		if err := p.Reply(ctx, msg, result, err); err != nil {
			r.opts.log.Debug("failed to answer callback", "op", msg.Op, "error", err)
		}
	}()
}

func (r *Remote) invoke(ctx context.Context, msg *protocol.Message) (any, error) {
	var inv protocol.CallbackInvoke
	if err := msg.DecodePayload(&inv); err != nil {
		return nil, err
	}
	req, err := inv.Request.ToMock()
	if err != nil {
		return nil, err
	}
	fn, ok := r.callback(inv.CallbackID)
	if !ok {
		return nil, fmt.Errorf("callback %s: %w", inv.CallbackID, protocol.ErrNotFound)
	}

	switch cb := fn.(type) {
	case mock.Predicate:
		matched, err := cb(ctx, req)
		if err != nil {
			return nil, err
		}
		return protocol.RestrictionResult{Matched: matched}, nil
	case mock.DelayFunc:
		d, err := cb(ctx, req)
		if err != nil {
			return nil, err
		}
		return protocol.DelayResult{Delay: d}, nil
	case mock.ResponseFactory:
		out, err := cb(ctx, req)
		if err != nil {
			return nil, err
		}
		return protocol.EncodeOutcome(out)
	default:
		return nil, fmt.Errorf("callback %s: unexpected type %T", inv.CallbackID, fn)
	}
}

// remoteHandler proxies builder calls to a server-side handler.
type remoteHandler struct {
	r      *Remote
	method string
	path   string

	mu        sync.Mutex
	id        string
	callbacks []string
	builderErr
}

func (h *remoteHandler) Method() string { return h.method }
func (h *remoteHandler) Path() string   { return h.path }

// send issues a builder call unless the handler is already broken.
func (h *remoteHandler) send(op string, payload any, cbIDs ...string) Handler {
	h.mu.Lock()
	if h.err != nil || h.id == "" {
		h.mu.Unlock()
		h.r.forget(cbIDs)
		return h
	}
	h.callbacks = append(h.callbacks, cbIDs...)
	h.mu.Unlock()

	err := h.r.call(context.Background(), op, payload, nil)
	return h.apply(err)
}

func (h *remoteHandler) apply(err error) Handler {
	h.mu.Lock()
	h.setError(err)
	h.mu.Unlock()
	return h
}

func (h *remoteHandler) handlerID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id
}

func (h *remoteHandler) With(restrictions ...mock.Restriction) Handler {
	wire := make([]protocol.Restriction, 0, len(restrictions))
	var cbIDs []string
	for _, res := range restrictions {
		if err := res.Validate(); err != nil {
			h.r.forget(cbIDs)
			return h.apply(err)
		}
		var cbID string
		if res.Kind == mock.RestrictComputed {
			cbID = h.r.register(res.Predicate)
			cbIDs = append(cbIDs, cbID)
		}
		enc, err := protocol.EncodeRestriction(res, cbID)
		if err != nil {
			h.r.forget(cbIDs)
			return h.apply(err)
		}
		wire = append(wire, enc)
	}
	return h.send(protocol.OpHandlerWith, protocol.HandlerWith{HandlerID: h.handlerID(), Restrictions: wire}, cbIDs...)
}

func (h *remoteHandler) Delay(d time.Duration) Handler {
	if err := mock.FixedDelay(d).Validate(); err != nil {
		return h.apply(err)
	}
	return h.send(protocol.OpHandlerDelay, protocol.HandlerDelay{HandlerID: h.handlerID(), Kind: "fixed", Fixed: d})
}

func (h *remoteHandler) DelayBetween(minDelay, maxDelay time.Duration) Handler {
	if err := mock.RangeDelay(minDelay, maxDelay).Validate(); err != nil {
		return h.apply(err)
	}
	return h.send(protocol.OpHandlerDelay, protocol.HandlerDelay{HandlerID: h.handlerID(), Kind: "range", Min: minDelay, Max: maxDelay})
}

func (h *remoteHandler) DelayWith(fn mock.DelayFunc) Handler {
	if err := mock.ComputedDelay(fn).Validate(); err != nil {
		return h.apply(err)
	}
	cbID := h.r.register(fn)
	return h.send(protocol.OpHandlerDelay, protocol.HandlerDelay{HandlerID: h.handlerID(), Kind: "computed", CallbackID: cbID}, cbID)
}

func (h *remoteHandler) Times(minCalls int, maxCalls ...int) Handler {
	t, err := timesFromArgs(minCalls, maxCalls)
	if err != nil {
		return h.apply(err)
	}
	return h.send(protocol.OpHandlerTimes, protocol.HandlerTimes{
		HandlerID:   h.handlerID(),
		Bounded:     t.Bounded,
		Min:         t.Min,
		Max:         t.Max,
		Declaration: engine.Caller(1),
	})
}

func (h *remoteHandler) Respond(resp mock.Response) Handler {
	wire, err := protocol.EncodeResponse(resp)
	if err != nil {
		return h.apply(err)
	}
	return h.send(protocol.OpHandlerRespond, protocol.HandlerRespond{HandlerID: h.handlerID(), Action: mock.ActionRespond.String(), Response: wire})
}

func (h *remoteHandler) RespondWith(fn mock.ResponseFactory) Handler {
	if fn == nil {
		return h.apply(fmt.Errorf("respond: nil response factory"))
	}
	cbID := h.r.register(fn)
	return h.send(protocol.OpHandlerRespond, protocol.HandlerRespond{HandlerID: h.handlerID(), CallbackID: cbID}, cbID)
}

func (h *remoteHandler) Bypass() Handler {
	return h.send(protocol.OpHandlerRespond, protocol.HandlerRespond{HandlerID: h.handlerID(), Action: mock.ActionBypass.String()})
}

func (h *remoteHandler) Reject() Handler {
	return h.send(protocol.OpHandlerRespond, protocol.HandlerRespond{HandlerID: h.handlerID(), Action: mock.ActionReject.String()})
}

func (h *remoteHandler) Clear(ctx context.Context) error {
	h.mu.Lock()
	handlerID := h.id
	cbIDs := h.callbacks
	h.callbacks = nil
	h.mu.Unlock()

	if handlerID == "" {
		return h.Err()
	}
	if err := h.r.call(ctx, protocol.OpHandlerClear, protocol.HandlerRef{HandlerID: handlerID}, nil); err != nil {
		return err
	}
	h.r.forget(cbIDs)

	h.mu.Lock()
	h.err = nil
	h.mu.Unlock()
	return nil
}

func (h *remoteHandler) CheckTimes(ctx context.Context) error {
	if err := h.Err(); err != nil {
		return err
	}
	return h.r.call(ctx, protocol.OpHandlerCheckTimes, protocol.HandlerRef{HandlerID: h.handlerID()}, nil)
}

func (h *remoteHandler) Requests(ctx context.Context) ([]*engine.SavedRequest, error) {
	handlerID := h.handlerID()
	if handlerID == "" {
		return nil, h.Err()
	}
	var wire []protocol.SavedRequest
	if err := h.r.call(ctx, protocol.OpHandlerRequests, protocol.HandlerRef{HandlerID: handlerID}, &wire); err != nil {
		return nil, err
	}

	out := make([]*engine.SavedRequest, 0, len(wire))
	for _, s := range wire {
		req, err := s.Request.ToMock()
		if err != nil {
			return nil, fmt.Errorf("saved request %s: %w", s.ID, err)
		}
		saved := &engine.SavedRequest{ID: s.ID, Request: req, Received: s.Received}
		if s.Outcome != nil {
			outcome, err := s.Outcome.ToMock()
			if err != nil {
				return nil, fmt.Errorf("saved request %s: %w", s.ID, err)
			}
			saved.Outcome = &outcome
		}
		out = append(out, saved)
	}
	return out, nil
}

func (h *remoteHandler) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
