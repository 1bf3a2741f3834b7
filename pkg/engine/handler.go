package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/getmockd/interceptd/internal/id"
	"github.com/getmockd/interceptd/internal/matching"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/mock"
)

// SavedRequest is a claimed request kept for inspection when request saving
// is enabled. Response is set once the handler has resolved it.
type SavedRequest struct {
	ID       string
	Request  *mock.Request
	Outcome  *mock.Outcome
	Received time.Time
}

// HTTPRequestHandler is one method+path declaration.
type HTTPRequestHandler struct {
	id        string
	method    string
	path      string
	remote    bool
	save      bool
	log       *slog.Logger
	evaluator *matching.Evaluator

	mu           sync.Mutex
	generation   uint64
	restrictions []mock.Restriction
	delay        mock.Delay
	response     *mock.ResponseSpec
	tracker      *TimesTracker
	saved        []*SavedRequest
}

// HandlerConfig configures a new handler.
type HandlerConfig struct {
	// ID identifies the handler; generated when empty.
	ID           string
	Method       string
	Path         string
	Remote       bool
	SaveRequests bool
	Logger       *slog.Logger
	Evaluator    *matching.Evaluator
}

// NewHTTPRequestHandler creates an unconfigured handler.
func NewHTTPRequestHandler(cfg HandlerConfig) *HTTPRequestHandler {
	h := &HTTPRequestHandler{
		id:        cfg.ID,
		method:    cfg.Method,
		path:      cfg.Path,
		remote:    cfg.Remote,
		save:      cfg.SaveRequests,
		log:       cfg.Logger,
		evaluator: cfg.Evaluator,
		tracker:   NewTimesTracker(cfg.SaveRequests),
	}
	if h.id == "" {
		h.id = id.Sortable()
	}
	if h.log == nil {
		h.log = logging.Nop()
	}
	if h.evaluator == nil {
		h.evaluator = matching.NewEvaluator(h.log)
	}
	return h
}

// ID returns the handler identifier.
func (h *HTTPRequestHandler) ID() string { return h.id }

// Method returns the declared method.
func (h *HTTPRequestHandler) Method() string { return h.method }

// Path returns the declared path pattern.
func (h *HTTPRequestHandler) Path() string { return h.path }

// With appends restrictions. Expression restrictions are compiled up front.
func (h *HTTPRequestHandler) With(restrictions ...mock.Restriction) error {
	for _, r := range restrictions {
		if err := r.Validate(); err != nil {
			return err
		}
		if r.Kind == mock.RestrictExpression {
			if err := h.evaluator.CompileExpression(r.Expression); err != nil {
				return err
			}
		}
	}
	h.mu.Lock()
	h.restrictions = append(h.restrictions, restrictions...)
	h.mu.Unlock()
	return nil
}

// SetDelay replaces the active delay.
func (h *HTTPRequestHandler) SetDelay(d mock.Delay) error {
	if err := d.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	h.delay = d
	h.mu.Unlock()
	return nil
}

// SetTimes replaces the times expectation. declaration may be nil.
func (h *HTTPRequestHandler) SetTimes(t mock.Times, declaration *CallSite) error {
	if err := t.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	h.tracker.SetExpectation(t, declaration)
	h.mu.Unlock()
	return nil
}

// SetResponse replaces the active response.
func (h *HTTPRequestHandler) SetResponse(spec mock.ResponseSpec) error {
	if spec.Factory == nil {
		if spec.Static.Action == mock.ActionBypass && h.remote {
			return ErrBypassUnsupported
		}
		if err := spec.Static.Response.Validate(); err != nil {
			return err
		}
	}
	h.mu.Lock()
	h.response = &spec
	h.mu.Unlock()
	return nil
}

// Clear returns the handler to its unconfigured state. Method, path and
// identity are kept.
func (h *HTTPRequestHandler) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.generation++
	h.restrictions = nil
	h.delay = mock.NoDelay()
	h.response = nil
	h.tracker.Reset()
	h.saved = nil
}

// CheckTimes verifies the times expectation.
func (h *HTTPRequestHandler) CheckTimes() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tracker.Check(h.method, h.path, len(h.restrictions) > 0)
}

// Claimed returns how many requests the handler has claimed.
func (h *HTTPRequestHandler) Claimed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tracker.Claimed()
}

// Requests returns the saved requests in arrival order. It is empty unless
// request saving is enabled.
func (h *HTTPRequestHandler) Requests() []*SavedRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.saved)
}

// Routes reports whether method and path address this handler.
func (h *HTTPRequestHandler) Routes(method, path string) (map[string]string, bool) {
	if !matching.MatchMethod(h.method, method) {
		return nil, false
	}
	return matching.MatchPath(h.path, path)
}

// Claim is a request owned by a handler, ready to be resolved.
type Claim struct {
	Handler  *HTTPRequestHandler
	Request  *mock.Request
	delay    mock.Delay
	response mock.ResponseSpec
	saved    *SavedRequest
}

// MatchesRequest offers req to the handler. It returns a non-nil Claim when
// the handler takes ownership. Requests for other routes are ignored
// without being recorded.
func (h *HTTPRequestHandler) MatchesRequest(ctx context.Context, req *mock.Request) (*Claim, error) {
	params, ok := h.Routes(req.Method, req.Path())
	if !ok {
		return nil, nil
	}
	if params != nil {
		req = req.WithPathParams(params)
	}

	h.mu.Lock()
	generation := h.generation
	restrictions := slices.Clone(h.restrictions)
	h.mu.Unlock()

	// Restrictions may call back into user code, so they run unlocked.
	result, err := h.evaluator.Evaluate(ctx, restrictions, req)
	if err != nil {
		return nil, &EvaluationError{Op: "evaluate restrictions", HandlerID: h.id, Err: err}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if generation != h.generation {
		// Cleared while evaluating; the evaluation belongs to the old state.
		return nil, nil
	}

	claimed := result.Matched && h.response != nil && h.tracker.Allows()
	h.tracker.Record(Evaluation{Request: req, Claimed: claimed, Mismatch: result.Mismatch})
	if !claimed {
		return nil, nil
	}

	claim := &Claim{
		Handler:  h,
		Request:  req,
		delay:    h.delay,
		response: *h.response,
	}
	if h.save {
		claim.saved = &SavedRequest{ID: id.Sortable(), Request: req, Received: time.Now()}
		h.saved = append(h.saved, claim.saved)
	}
	h.log.Debug("request claimed", "handler", h.id, "method", req.Method, "url", req.URL.String())
	return claim, nil
}

// Resolve applies the delay and then resolves the response.
func (c *Claim) Resolve(ctx context.Context) (mock.Outcome, error) {
	h := c.Handler

	d, err := ResolveDelay(ctx, c.delay, c.Request)
	if err != nil {
		return mock.Outcome{}, &EvaluationError{Op: "resolve delay", HandlerID: h.id, Err: err}
	}
	if err := sleep(ctx, d); err != nil {
		return mock.Outcome{}, err
	}

	out, err := ResolveResponse(ctx, c.response, c.Request, h.remote)
	if err != nil {
		return mock.Outcome{}, &EvaluationError{Op: "resolve response", HandlerID: h.id, Err: err}
	}

	if c.saved != nil {
		h.mu.Lock()
		c.saved.Outcome = &out
		h.mu.Unlock()
	}
	return out, nil
}

func (h *HTTPRequestHandler) String() string {
	return fmt.Sprintf("%s %s", h.method, h.path)
}
