package protocol

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/interceptd/pkg/body"
	"github.com/getmockd/interceptd/pkg/engine"
	"github.com/getmockd/interceptd/pkg/mock"
)

// pair connects two peers through an httptest server.
func pair(t *testing.T, serverHandler, clientHandler HandlerFunc) (server, client *Peer) {
	t.Helper()

	ready := make(chan *Peer, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		p := NewPeer(conn, "s", serverHandler, nil)
		ready <- p
		_ = p.Run(context.Background())
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	client = NewPeer(conn, "c", clientHandler, nil)
	go func() { _ = client.Run(context.Background()) }()

	select {
	case server = <-ready:
	case <-ctx.Done():
		t.Fatal("server peer not ready")
	}
	t.Cleanup(func() {
		client.Close("test done")
		server.Close("test done")
	})
	return server, client
}

func TestPeer_CallReply(t *testing.T) {
	_, client := pair(t, func(ctx context.Context, p *Peer, msg *Message) {
		var req HandlerCreate
		if err := msg.DecodePayload(&req); err != nil {
			_ = p.Reply(ctx, msg, nil, err)
			return
		}
		_ = p.Reply(ctx, msg, HandlerRef{HandlerID: "h1", Path: "/s1" + req.Path}, nil)
	}, nil)

	var ref HandlerRef
	err := client.Request(context.Background(), TypeCall, OpHandlerCreate, HandlerCreate{Method: "GET", Path: "/users"}, &ref)
	require.NoError(t, err)
	assert.Equal(t, HandlerRef{HandlerID: "h1", Path: "/s1/users"}, ref)
}

func TestPeer_InvokeResult(t *testing.T) {
	server, _ := pair(t, nil, func(ctx context.Context, p *Peer, msg *Message) {
		go func() {
			var inv CallbackInvoke
			if err := msg.DecodePayload(&inv); err != nil {
				_ = p.Reply(ctx, msg, nil, err)
				return
			}
			_ = p.Reply(ctx, msg, RestrictionResult{Matched: inv.Request.Method == "POST"}, nil)
		}()
	})

	var res RestrictionResult
	err := server.Request(context.Background(), TypeInvoke, OpCallbackRestriction, CallbackInvoke{
		CallbackID: "cb1",
		Request:    Request{Method: "POST", URL: "http://x/"},
	}, &res)
	require.NoError(t, err)
	assert.True(t, res.Matched)
}

func TestPeer_ErrorsKeepSentinels(t *testing.T) {
	site := &engine.CallSite{File: "x_test.go", Line: 12}
	_, client := pair(t, func(ctx context.Context, p *Peer, msg *Message) {
		switch msg.Op {
		case OpHandlerTimes:
			_ = p.Reply(ctx, msg, nil, mock.Exactly(-1).Validate())
		case OpHandlerRespond:
			_ = p.Reply(ctx, msg, nil, engine.ErrBypassUnsupported)
		case OpInterceptorCheck:
			_ = p.Reply(ctx, msg, nil, errors.Join(
				&engine.TimesCheckError{Message: "Expected exactly 1 request, but got 0.", Declaration: site},
				&engine.TimesCheckError{Message: "Expected exactly 2 requests, but got 0."},
			))
		}
	}, nil)
	ctx := context.Background()

	err := client.Request(ctx, TypeCall, OpHandlerTimes, HandlerTimes{}, nil)
	assert.ErrorIs(t, err, mock.ErrInvalidTimes)

	err = client.Request(ctx, TypeCall, OpHandlerRespond, HandlerRespond{}, nil)
	assert.ErrorIs(t, err, engine.ErrBypassUnsupported)

	err = client.Request(ctx, TypeCall, OpInterceptorCheck, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrTimesCheck)
	var tce *engine.TimesCheckError
	require.ErrorAs(t, err, &tce)
	assert.Equal(t, site, tce.Declaration)
	assert.Contains(t, err.Error(), "Expected exactly 2 requests, but got 0.")
}

func TestPeer_PendingFailsOnClose(t *testing.T) {
	received := make(chan struct{})
	server, client := pair(t, func(ctx context.Context, p *Peer, msg *Message) {
		close(received)
		// Never reply.
	}, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Request(context.Background(), TypeCall, OpHandlerClear, HandlerRef{HandlerID: "h"}, nil)
	}()

	<-received
	server.Close("shutting down")

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("pending call did not fail")
	}

	err := client.Request(context.Background(), TypeCall, OpHandlerClear, HandlerRef{HandlerID: "h"}, nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestRestrictionRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   mock.Restriction
	}{
		{name: "headers", in: mock.Headers(map[string]string{"accept": "application/json"})},
		{name: "search params", in: mock.SearchParams(map[string]string{"q": "go"})},
		{name: "json body", in: mock.JSONBody(map[string]any{"name": "ada", "age": 36})},
		{name: "text body", in: mock.TextBody("hello")},
		{name: "blob body", in: mock.Body(body.Blob([]byte{1, 2, 3}, "image/png"))},
		{name: "params body", in: mock.Body(body.Params(url.Values{"a": {"1", "2"}}))},
		{name: "form body", in: mock.Body(body.Form(map[string][]body.Part{
			"name": {body.Field("ada")},
			"file": {body.File("a.txt", "text/plain", []byte("hi"))},
		}))},
		{name: "expression", in: mock.Expression(`request.method == "GET"`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := EncodeRestriction(tt.in, "")
			require.NoError(t, err)
			out, err := wire.ToMock(nil)
			require.NoError(t, err)

			assert.Equal(t, tt.in.Kind, out.Kind)
			assert.Equal(t, tt.in.Headers, out.Headers)
			assert.Equal(t, tt.in.SearchParams, out.SearchParams)
			assert.Equal(t, tt.in.Expression, out.Expression)
			if tt.in.Kind == mock.RestrictBody {
				assert.True(t, body.Equal(tt.in.Body, out.Body))
			}
		})
	}
}

func TestComputedRestrictionNeedsCallback(t *testing.T) {
	computed := mock.Computed(func(context.Context, *mock.Request) (bool, error) { return true, nil })
	_, err := EncodeRestriction(computed, "")
	assert.Error(t, err)

	wire, err := EncodeRestriction(computed, "cb7")
	require.NoError(t, err)
	assert.Equal(t, "cb7", wire.CallbackID)

	_, err = wire.ToMock(nil)
	assert.Error(t, err)
}

func TestRequestRoundTrip(t *testing.T) {
	req, err := mock.NewRequest("POST", "http://api.test/users?x=1", http.Header{"Content-Type": {"application/json"}}, []byte(`{"a":1}`))
	require.NoError(t, err)
	req.PathParams = map[string]string{"id": "1"}

	out, err := EncodeRequest(req).ToMock()
	require.NoError(t, err)
	assert.Equal(t, req.String(), out.String())
	assert.Equal(t, req.RawBody(), out.RawBody())
	assert.Equal(t, "application/json", out.ContentType())
	assert.Equal(t, req.PathParams, out.PathParams)
}

func TestOutcomeRoundTrip(t *testing.T) {
	wire, err := EncodeOutcome(mock.Reply(mock.JSONResponse(201, map[string]int{"id": 1})))
	require.NoError(t, err)
	out, err := wire.ToMock()
	require.NoError(t, err)
	assert.Equal(t, mock.ActionRespond, out.Action)
	assert.Equal(t, 201, out.Response.Status)
	assert.Equal(t, "application/json", out.Response.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"id":1}`, string(out.Response.Body))

	wire, err = EncodeOutcome(mock.Reject())
	require.NoError(t, err)
	out, err = wire.ToMock()
	require.NoError(t, err)
	assert.Equal(t, mock.ActionReject, out.Action)
}
