package engine

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/interceptd/pkg/mock"
)

func newReq(t *testing.T, method, rawURL string) *mock.Request {
	t.Helper()
	req, err := mock.NewRequest(method, rawURL, http.Header{}, nil)
	require.NoError(t, err)
	return req
}

func dispatch(t *testing.T, r *Registry, req *mock.Request) (mock.Outcome, *HTTPRequestHandler) {
	t.Helper()
	out, h, err := r.Dispatch(context.Background(), req)
	require.NoError(t, err)
	return out, h
}

func TestTimes_ExhaustedHandlerFallsThrough(t *testing.T) {
	r := NewRegistry()
	h := r.Register(http.MethodGet, "/users")
	require.NoError(t, h.SetTimes(mock.Exactly(1), nil))
	require.NoError(t, h.SetResponse(mock.Static(mock.Reply(mock.Response{Status: 200}))))

	out, claimedBy := dispatch(t, r, newReq(t, "GET", "http://api.test/users"))
	assert.Equal(t, h, claimedBy)
	assert.Equal(t, mock.ActionRespond, out.Action)
	assert.Equal(t, 200, out.Response.Status)
	assert.NoError(t, h.CheckTimes())

	out, claimedBy = dispatch(t, r, newReq(t, "GET", "http://api.test/users"))
	assert.Nil(t, claimedBy)
	assert.Equal(t, mock.ActionBypass, out.Action)
	assert.NoError(t, h.CheckTimes())
	assert.Equal(t, 1, h.Claimed())
}

func TestCheckTimes_HeaderMismatchDiagnostics(t *testing.T) {
	r := NewRegistry(WithSaveRequests(true))
	h := r.Register(http.MethodGet, "/users")
	require.NoError(t, h.With(mock.Headers(map[string]string{"accept": "application/json"})))
	require.NoError(t, h.SetTimes(mock.Exactly(1), nil))
	require.NoError(t, h.SetResponse(mock.Static(mock.Reply(mock.Response{Status: 200}))))

	_, claimedBy := dispatch(t, r, newReq(t, "GET", "http://api.test/users"))
	assert.Nil(t, claimedBy)

	err := h.CheckTimes()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimesCheck)

	want := "Expected exactly 1 matching request, but got 0.\n" +
		"\n" +
		"Requests evaluated by this handler:\n" +
		"\n" +
		"  - Expected\n" +
		"  + Received\n" +
		"\n" +
		"1: GET http://api.test/users\n" +
		"  Headers:\n" +
		"    - {\"accept\":\"application/json\"}\n" +
		"    + {}"
	assert.Equal(t, want, err.Error())
}

func TestCheckTimes_WithoutSavingShowsTip(t *testing.T) {
	r := NewRegistry()
	h := r.Register(http.MethodGet, "/users")
	require.NoError(t, h.With(mock.Headers(map[string]string{"accept": "application/json"})))
	require.NoError(t, h.SetTimes(mock.Exactly(1), nil))
	require.NoError(t, h.SetResponse(mock.Static(mock.Reply(mock.Response{Status: 200}))))

	dispatch(t, r, newReq(t, "GET", "http://api.test/users"))

	err := h.CheckTimes()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected exactly 1 matching request, but got 0.")
	assert.Contains(t, err.Error(), "Tip: enable request saving")
	assert.NotContains(t, err.Error(), "Requests evaluated by this handler")
}

func TestDelay_AppliedBeforeResponse(t *testing.T) {
	r := NewRegistry()
	h := r.Register(http.MethodGet, "/slow")
	require.NoError(t, h.SetDelay(mock.FixedDelay(100*time.Millisecond)))
	require.NoError(t, h.SetResponse(mock.Static(mock.Reply(mock.Response{Status: 200}))))

	start := time.Now()
	out, _ := dispatch(t, r, newReq(t, "GET", "http://api.test/slow"))
	elapsed := time.Since(start)

	assert.Equal(t, 200, out.Response.Status)
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestHandler_RestrictionsWithoutResponseNeverClaim(t *testing.T) {
	r := NewRegistry()
	h := r.Register(http.MethodGet, "/users")
	require.NoError(t, h.With(mock.SearchParams(map[string]string{"page": "1"})))
	require.NoError(t, h.SetTimes(mock.Exactly(1), nil))

	_, claimedBy := dispatch(t, r, newReq(t, "GET", "http://api.test/users?page=1"))
	assert.Nil(t, claimedBy)

	err := h.CheckTimes()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected exactly 1 matching request, but got 0.")
}

func TestTimes_RangeUpperBoundFallsThrough(t *testing.T) {
	r := NewRegistry()
	h := r.Register(http.MethodPost, "/events")
	require.NoError(t, h.SetTimes(mock.Between(2, 3), nil))
	require.NoError(t, h.SetResponse(mock.Static(mock.Reply(mock.Response{Status: 202}))))

	for range 2 {
		_, claimedBy := dispatch(t, r, newReq(t, "POST", "http://api.test/events"))
		assert.Equal(t, h, claimedBy)
	}
	assert.NoError(t, h.CheckTimes())

	_, claimedBy := dispatch(t, r, newReq(t, "POST", "http://api.test/events"))
	assert.Equal(t, h, claimedBy)
	_, claimedBy = dispatch(t, r, newReq(t, "POST", "http://api.test/events"))
	assert.Nil(t, claimedBy)

	assert.Equal(t, 3, h.Claimed())
	assert.NoError(t, h.CheckTimes())
}

func TestTimesMessages(t *testing.T) {
	tests := []struct {
		name    string
		times   mock.Times
		claims  int
		wantErr string
	}{
		{name: "exact zero got one", times: mock.Exactly(0), claims: 1, wantErr: "Expected exactly 0 requests, but got 1."},
		{name: "exact two got one", times: mock.Exactly(2), claims: 1, wantErr: "Expected exactly 2 requests, but got 1."},
		{name: "exact one got zero", times: mock.Exactly(1), claims: 0, wantErr: "Expected exactly 1 request, but got 0."},
		{name: "same bounds", times: mock.Between(3, 3), claims: 1, wantErr: "Expected exactly 3 requests, but got 1."},
		{name: "range", times: mock.Between(2, 4), claims: 1, wantErr: "Expected at least 2 and at most 4 requests, but got 1."},
		{name: "range to one", times: mock.Between(1, 1), claims: 0, wantErr: "Expected exactly 1 request, but got 0."},
		{name: "range satisfied", times: mock.Between(1, 3), claims: 2},
		{name: "at least", times: mock.AtLeast(2), claims: 1, wantErr: "Expected at least 2 requests, but got 1."},
		{name: "at least one got zero", times: mock.AtLeast(1), claims: 0, wantErr: "Expected at least 1 request, but got 0."},
		{name: "at least satisfied", times: mock.AtLeast(2), claims: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTimesTracker(false)
			tracker.SetExpectation(tt.times, nil)
			for range tt.claims {
				tracker.Record(Evaluation{Claimed: true})
			}
			err := tracker.Check("GET", "/x", false)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestTimes_ExactProperty(t *testing.T) {
	for n := 0; n <= 4; n++ {
		tracker := NewTimesTracker(false)
		tracker.SetExpectation(mock.Exactly(n), nil)
		for range n {
			tracker.Record(Evaluation{Claimed: true})
		}
		assert.NoError(t, tracker.Check("GET", "/", false), "n=%d", n)

		tracker.Record(Evaluation{Claimed: true})
		err := tracker.Check("GET", "/", false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "but got "+strconv.Itoa(n+1)+".")
	}
}

func TestTimes_RangeProperty(t *testing.T) {
	minCalls, maxCalls := 2, 4
	for claims := 0; claims <= 6; claims++ {
		tracker := NewTimesTracker(false)
		tracker.SetExpectation(mock.Between(minCalls, maxCalls), nil)
		for range claims {
			tracker.Record(Evaluation{Claimed: true})
		}
		err := tracker.Check("GET", "/", false)
		if claims >= minCalls && claims <= maxCalls {
			assert.NoError(t, err, "claims=%d", claims)
		} else {
			assert.Error(t, err, "claims=%d", claims)
		}
	}
}

func TestTimesCheckError_Declaration(t *testing.T) {
	r := NewRegistry()
	h := r.Register(http.MethodGet, "/users")
	site := Caller(0)
	require.NoError(t, h.SetTimes(mock.Exactly(1), site))

	err := h.CheckTimes()
	var tce *TimesCheckError
	require.ErrorAs(t, err, &tce)
	assert.Equal(t, site, tce.Declaration)
	assert.Contains(t, tce.Declaration.File, "handler_test.go")
	assert.Equal(t, "GET", tce.Method)
	assert.Equal(t, "/users", tce.Path)
}

func TestClear_Idempotent(t *testing.T) {
	r := NewRegistry(WithSaveRequests(true))
	h := r.Register(http.MethodGet, "/users")
	require.NoError(t, h.With(mock.Headers(map[string]string{"x": "1"})))
	require.NoError(t, h.SetTimes(mock.Exactly(1), nil))
	require.NoError(t, h.SetResponse(mock.Static(mock.Reply(mock.Response{Status: 200}))))

	req := newReq(t, "GET", "http://api.test/users")
	req.Header.Set("X", "1")
	dispatch(t, r, req)
	require.Len(t, h.Requests(), 1)

	h.Clear()
	assert.Equal(t, 0, h.Claimed())
	assert.Empty(t, h.Requests())
	assert.NoError(t, h.CheckTimes())

	h.Clear()
	assert.Equal(t, 0, h.Claimed())
	assert.Empty(t, h.Requests())
	assert.NoError(t, h.CheckTimes())

	// Without a response the cleared handler claims nothing.
	_, claimedBy := dispatch(t, r, newReq(t, "GET", "http://api.test/users"))
	assert.Nil(t, claimedBy)
	assert.Equal(t, "GET", h.Method())
	assert.Equal(t, "/users", h.Path())
}

func TestDelay_LastWins(t *testing.T) {
	r := NewRegistry()
	h := r.Register(http.MethodGet, "/d")
	require.NoError(t, h.SetDelay(mock.FixedDelay(200*time.Millisecond)))
	require.NoError(t, h.SetDelay(mock.FixedDelay(50*time.Millisecond)))
	require.NoError(t, h.SetResponse(mock.Static(mock.Reply(mock.Response{}))))

	start := time.Now()
	dispatch(t, r, newReq(t, "GET", "http://api.test/d"))
	assert.Less(t, time.Since(start), 190*time.Millisecond)
}

func TestResolveDelay(t *testing.T) {
	ctx := context.Background()
	req := newReq(t, "GET", "http://api.test/")

	d, err := ResolveDelay(ctx, mock.ComputedDelay(func(context.Context, *mock.Request) (time.Duration, error) {
		return -time.Second, nil
	}), req)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), d)

	for range 20 {
		d, err = ResolveDelay(ctx, mock.RangeDelay(10*time.Millisecond, 20*time.Millisecond), req)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 20*time.Millisecond)
	}

	boom := errors.New("boom")
	_, err = ResolveDelay(ctx, mock.ComputedDelay(func(context.Context, *mock.Request) (time.Duration, error) {
		return 0, boom
	}), req)
	assert.ErrorIs(t, err, boom)
}

func TestComputedErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")

	t.Run("predicate", func(t *testing.T) {
		r := NewRegistry()
		h := r.Register(http.MethodGet, "/p")
		require.NoError(t, h.With(mock.Computed(func(context.Context, *mock.Request) (bool, error) { return false, boom })))
		require.NoError(t, h.SetResponse(mock.Static(mock.Reply(mock.Response{}))))

		_, _, err := r.Dispatch(context.Background(), newReq(t, "GET", "http://api.test/p"))
		assert.ErrorIs(t, err, ErrEvaluation)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("factory", func(t *testing.T) {
		r := NewRegistry()
		h := r.Register(http.MethodGet, "/f")
		require.NoError(t, h.SetResponse(mock.Dynamic(func(context.Context, *mock.Request) (mock.Outcome, error) {
			return mock.Outcome{}, boom
		})))

		_, _, err := r.Dispatch(context.Background(), newReq(t, "GET", "http://api.test/f"))
		var evalErr *EvaluationError
		require.ErrorAs(t, err, &evalErr)
		assert.Equal(t, h.ID(), evalErr.HandlerID)
		assert.ErrorIs(t, err, boom)
	})
}

func TestRemote_RejectsBypass(t *testing.T) {
	r := NewRegistry(WithRemote(true))
	h := r.Register(http.MethodGet, "/b")
	assert.ErrorIs(t, h.SetResponse(mock.Static(mock.Bypass())), ErrBypassUnsupported)

	require.NoError(t, h.SetResponse(mock.Dynamic(func(context.Context, *mock.Request) (mock.Outcome, error) {
		return mock.Bypass(), nil
	})))
	_, _, err := r.Dispatch(context.Background(), newReq(t, "GET", "http://api.test/b"))
	assert.ErrorIs(t, err, ErrBypassUnsupported)

	assert.ErrorIs(t, r.SetUnhandled(UnhandledStrategy{Action: mock.ActionBypass}), ErrBypassUnsupported)

	out, claimedBy := dispatch(t, r, newReq(t, "GET", "http://api.test/unknown"))
	assert.Nil(t, claimedBy)
	assert.Equal(t, mock.ActionReject, out.Action)
}

func TestRegistry_FirstRegisteredFirstTried(t *testing.T) {
	r := NewRegistry()
	first := r.Register(http.MethodGet, "/items/:id")
	require.NoError(t, first.SetTimes(mock.Exactly(1), nil))
	require.NoError(t, first.SetResponse(mock.Static(mock.Reply(mock.TextResponse(200, "first")))))
	second := r.Register(http.MethodGet, "/items/:id")
	require.NoError(t, second.SetResponse(mock.Dynamic(func(_ context.Context, req *mock.Request) (mock.Outcome, error) {
		return mock.Reply(mock.TextResponse(200, "second "+req.PathParams["id"])), nil
	})))

	out, claimedBy := dispatch(t, r, newReq(t, "GET", "http://api.test/items/1"))
	assert.Equal(t, first, claimedBy)
	assert.Equal(t, "first", string(out.Response.Body))

	out, claimedBy = dispatch(t, r, newReq(t, "GET", "http://api.test/items/2"))
	assert.Equal(t, second, claimedBy)
	assert.Equal(t, "second 2", string(out.Response.Body))
}

func TestRegistry_CheckTimesJoins(t *testing.T) {
	r := NewRegistry()
	a := r.Register(http.MethodGet, "/a")
	require.NoError(t, a.SetTimes(mock.Exactly(1), nil))
	b := r.Register(http.MethodGet, "/b")
	require.NoError(t, b.SetTimes(mock.Exactly(2), nil))

	err := r.CheckTimes()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected exactly 1 request, but got 0.")
	assert.Contains(t, err.Error(), "Expected exactly 2 requests, but got 0.")

	r.Clear()
	assert.NoError(t, r.CheckTimes())
	assert.Empty(t, r.Handlers())
}

func TestRegistry_UnhandledRespond(t *testing.T) {
	r := NewRegistry(WithUnhandled(UnhandledStrategy{Action: mock.ActionRespond, Response: mock.TextResponse(404, "no handler")}))
	out, claimedBy := dispatch(t, r, newReq(t, "GET", "http://api.test/missing"))
	assert.Nil(t, claimedBy)
	assert.Equal(t, 404, out.Response.Status)
}

func TestHandler_ConcurrentClaimsRespectMax(t *testing.T) {
	r := NewRegistry()
	h := r.Register(http.MethodGet, "/c")
	require.NoError(t, h.SetTimes(mock.Between(0, 10), nil))
	require.NoError(t, h.SetResponse(mock.Static(mock.Reply(mock.Response{}))))

	reqs := make([]*mock.Request, 50)
	for i := range reqs {
		reqs[i] = newReq(t, "GET", "http://api.test/c")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for _, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, by, err := r.Dispatch(context.Background(), req)
			if err == nil && by != nil {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, claimed)
	assert.Equal(t, 10, h.Claimed())
}

func TestHandler_OtherRoutesNotRecorded(t *testing.T) {
	r := NewRegistry(WithSaveRequests(true))
	h := r.Register(http.MethodPost, "/users")
	require.NoError(t, h.With(mock.Headers(map[string]string{"x": "1"})))
	require.NoError(t, h.SetTimes(mock.Exactly(1), nil))

	dispatch(t, r, newReq(t, "GET", "http://api.test/users"))
	dispatch(t, r, newReq(t, "POST", "http://api.test/other"))

	err := h.CheckTimes()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "Requests evaluated by this handler")
}
