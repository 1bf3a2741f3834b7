package interceptortest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/interceptor"
	"github.com/getmockd/interceptd/pkg/server"
)

// cleanupTimeout bounds the times check and stop at test cleanup.
const cleanupTimeout = 10 * time.Second

// Interceptor is a started interceptor bound to a test.
type Interceptor struct {
	interceptor.Interceptor

	t         testing.TB
	client    *http.Client
	skipCheck bool
}

// NewLocal starts a local interceptor for requests under baseURL.
// Request saving is on unless opts turn it off.
func NewLocal(t testing.TB, baseURL string, opts ...interceptor.Option) *Interceptor {
	t.Helper()

	opts = append([]interceptor.Option{interceptor.WithSaveRequests(true)}, opts...)
	ic, err := interceptor.NewLocal(baseURL, opts...)
	if err != nil {
		t.Fatalf("create local interceptor: %v", err)
	}
	return start(t, ic, ic.Client())
}

// NewRemote starts an interceptor server for the duration of the test and
// opens a session on it.
func NewRemote(t testing.TB, opts ...interceptor.Option) *Interceptor {
	t.Helper()

	srv := httptest.NewServer(server.New(server.DefaultConfig()).Handler())
	t.Cleanup(srv.Close)
	return Connect(t, srv.URL, opts...)
}

// Connect opens a session on the server at serverURL. INTERCEPTD_TOKEN is
// sent as the session token when set.
func Connect(t testing.TB, serverURL string, opts ...interceptor.Option) *Interceptor {
	t.Helper()

	defaults := []interceptor.Option{interceptor.WithSaveRequests(true)}
	if token := os.Getenv(config.EnvToken); token != "" {
		defaults = append(defaults, interceptor.WithToken(token))
	}
	ic, err := interceptor.NewRemote(serverURL, append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("create remote interceptor: %v", err)
	}
	return start(t, ic, &http.Client{Timeout: 30 * time.Second})
}

// FromEnv connects to INTERCEPTD_SERVER_URL when it is set and starts an
// in-process server otherwise.
func FromEnv(t testing.TB, opts ...interceptor.Option) *Interceptor {
	t.Helper()

	if serverURL := os.Getenv(config.EnvServerURL); serverURL != "" {
		return Connect(t, serverURL, opts...)
	}
	return NewRemote(t, opts...)
}

func start(t testing.TB, ic interceptor.Interceptor, client *http.Client) *Interceptor {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := ic.Start(ctx); err != nil {
		t.Fatalf("start interceptor: %v", err)
	}

	it := &Interceptor{Interceptor: ic, t: t, client: client}
	t.Cleanup(it.cleanup)
	return it
}

func (it *Interceptor) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if !it.skipCheck && it.IsRunning() {
		if err := it.CheckTimes(ctx); err != nil {
			it.t.Errorf("interceptor expectations not met:\n%v", err)
		}
	}
	if err := it.Stop(ctx); err != nil {
		it.t.Logf("stop interceptor: %v", err)
	}
}

// SkipCheck disables the times check at cleanup.
func (it *Interceptor) SkipCheck() {
	it.skipCheck = true
}

// Client returns an HTTP client whose requests reach the interceptor.
func (it *Interceptor) Client() *http.Client {
	return it.client
}

// URL joins path onto the base URL.
func (it *Interceptor) URL(path string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return it.BaseURL() + path
}
