package interceptor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getmockd/interceptd/pkg/engine"
	"github.com/getmockd/interceptd/pkg/mock"
)

var (
	// ErrInterceptorStopped is returned for remote calls pending or issued
	// after the interceptor was stopped or its session ended.
	ErrInterceptorStopped = errors.New("interceptor stopped")

	// ErrNotRunning is returned by operations that need a started
	// interceptor.
	ErrNotRunning = errors.New("interceptor is not running")

	// ErrRequestRejected is the network error a rejected request fails with.
	ErrRequestRejected = errors.New("request rejected by interceptor")
)

// Interceptor captures requests under its base URL and dispatches them to
// handlers in declaration order.
type Interceptor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
	// BaseURL is the URL prefix under which requests are intercepted.
	BaseURL() string

	// Handle declares a new handler. Every call creates a distinct
	// handler, even for a method and path declared before.
	Handle(method, path string) Handler
	Get(path string) Handler
	Post(path string) Handler
	Put(path string) Handler
	Patch(path string) Handler
	Delete(path string) Handler
	Head(path string) Handler
	Options(path string) Handler

	// Clear removes every handler.
	Clear(ctx context.Context) error
	// CheckTimes checks every handler and joins the failures.
	CheckTimes(ctx context.Context) error
}

// Handler configures one method+path declaration. Configuration methods
// return the handler for chaining.
type Handler interface {
	Method() string
	Path() string

	// With appends restrictions; all must match for a request to be claimed.
	With(restrictions ...mock.Restriction) Handler
	// Delay, DelayBetween and DelayWith replace the active delay.
	Delay(d time.Duration) Handler
	DelayBetween(minDelay, maxDelay time.Duration) Handler
	DelayWith(fn mock.DelayFunc) Handler
	// Times sets the expected number of claims: Times(n) for exactly n,
	// Times(min, max) for an inclusive range.
	Times(minCalls int, maxCalls ...int) Handler
	// Respond, RespondWith, Bypass and Reject replace the active response.
	Respond(resp mock.Response) Handler
	RespondWith(fn mock.ResponseFactory) Handler
	Bypass() Handler
	Reject() Handler

	// Clear resets restrictions, delay, response, times and history.
	Clear(ctx context.Context) error
	CheckTimes(ctx context.Context) error
	// Requests returns claimed requests when request saving is enabled.
	Requests(ctx context.Context) ([]*engine.SavedRequest, error)
	// Err returns the first configuration error.
	Err() error
}

// routes implements the method shorthands on top of a Handle function.
type routes struct {
	handle func(method, path string) Handler
}

func (r routes) Get(path string) Handler     { return r.handle(http.MethodGet, path) }
func (r routes) Post(path string) Handler    { return r.handle(http.MethodPost, path) }
func (r routes) Put(path string) Handler     { return r.handle(http.MethodPut, path) }
func (r routes) Patch(path string) Handler   { return r.handle(http.MethodPatch, path) }
func (r routes) Delete(path string) Handler  { return r.handle(http.MethodDelete, path) }
func (r routes) Head(path string) Handler    { return r.handle(http.MethodHead, path) }
func (r routes) Options(path string) Handler { return r.handle(http.MethodOptions, path) }

// timesFromArgs maps Times arguments to an expectation.
func timesFromArgs(minCalls int, maxCalls []int) (mock.Times, error) {
	var t mock.Times
	switch len(maxCalls) {
	case 0:
		t = mock.Exactly(minCalls)
	case 1:
		t = mock.Between(minCalls, maxCalls[0])
	default:
		return mock.Times{}, fmt.Errorf("times: expected at most 2 arguments, got %d: %w", len(maxCalls)+1, mock.ErrInvalidTimes)
	}
	return t, t.Validate()
}

// builderErr records the first configuration error of a handler.
type builderErr struct {
	err error
}

func (b *builderErr) setError(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

// joinChecks returns build errors first, then expectation failures.
func joinChecks(buildErrs []error, check error) error {
	if check != nil {
		buildErrs = append(buildErrs, check)
	}
	return errors.Join(buildErrs...)
}
