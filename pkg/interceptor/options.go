package interceptor

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/getmockd/interceptd/pkg/engine"
	"github.com/getmockd/interceptd/pkg/logging"
)

// DefaultCallTimeout bounds each remote round trip.
const DefaultCallTimeout = 10 * time.Second

type options struct {
	saveRequests bool
	log          *slog.Logger
	unhandled    *engine.UnhandledStrategy

	// Local only.
	transport http.RoundTripper

	// Remote only.
	callTimeout time.Duration
	token       string
	sessionID   string
	httpClient  *http.Client
}

func defaultOptions() options {
	return options{
		log:         logging.Nop(),
		transport:   http.DefaultTransport,
		callTimeout: DefaultCallTimeout,
	}
}

// Option configures an interceptor.
type Option func(*options)

// WithSaveRequests keeps claimed requests and evaluation diagnostics so
// Requests and CheckTimes can report them.
func WithSaveRequests(save bool) Option {
	return func(o *options) {
		o.saveRequests = save
	}
}

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithUnhandled replaces the default unhandled-request strategy.
func WithUnhandled(s engine.UnhandledStrategy) Option {
	return func(o *options) {
		o.unhandled = &s
	}
}

// WithBaseTransport sets the transport used for bypassed and
// non-intercepted requests in local mode.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		if rt != nil {
			o.transport = rt
		}
	}
}

// WithCallTimeout bounds each remote round trip.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

// WithToken sets the bearer token presented to the interceptor server.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithSessionID requests a specific session id from the server.
func WithSessionID(sessionID string) Option {
	return func(o *options) {
		o.sessionID = sessionID
	}
}

// WithHTTPClient sets the client used to dial the interceptor server.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}
