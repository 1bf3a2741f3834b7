package matching

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/interceptd/pkg/mock"
)

func newRequest(t *testing.T, method, rawURL, contentType, payload string) *mock.Request {
	t.Helper()
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	req, err := mock.NewRequest(method, rawURL, header, []byte(payload))
	require.NoError(t, err)
	return req
}

func TestEvaluator_Headers(t *testing.T) {
	e := NewEvaluator(nil)
	ctx := context.Background()

	req := newRequest(t, "GET", "http://api.test/users", "", "")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Extra", "ignored")

	res, err := e.Evaluate(ctx, []mock.Restriction{mock.Headers(map[string]string{"accept": "application/json"})}, req)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Nil(t, res.Mismatch)

	missing := newRequest(t, "GET", "http://api.test/users", "", "")
	res, err = e.Evaluate(ctx, []mock.Restriction{mock.Headers(map[string]string{"accept": "application/json"})}, missing)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	require.NotNil(t, res.Mismatch)
	assert.Equal(t, Fragment{Category: "Headers", Expected: `{"accept":"application/json"}`, Received: `{}`}, *res.Mismatch)
}

func TestEvaluator_SearchParams(t *testing.T) {
	e := NewEvaluator(nil)
	req := newRequest(t, "GET", "http://api.test/search?q=go&page=2", "", "")

	res, err := e.Evaluate(context.Background(), []mock.Restriction{mock.SearchParams(map[string]string{"q": "go"})}, req)
	require.NoError(t, err)
	assert.True(t, res.Matched)

	res, err = e.Evaluate(context.Background(), []mock.Restriction{mock.SearchParams(map[string]string{"q": "rust"})}, req)
	require.NoError(t, err)
	require.NotNil(t, res.Mismatch)
	assert.Equal(t, "Search params", res.Mismatch.Category)
	assert.Equal(t, `{"q":"rust"}`, res.Mismatch.Expected)
	assert.Equal(t, `{"q":"go"}`, res.Mismatch.Received)
}

func TestEvaluator_Body(t *testing.T) {
	e := NewEvaluator(nil)
	req := newRequest(t, "POST", "http://api.test/users", "application/json", `{"b":2,"a":1}`)

	res, err := e.Evaluate(context.Background(), []mock.Restriction{mock.JSONBody(map[string]int{"a": 1, "b": 2})}, req)
	require.NoError(t, err)
	assert.True(t, res.Matched)

	res, err = e.Evaluate(context.Background(), []mock.Restriction{mock.JSONBody(map[string]int{"a": 2})}, req)
	require.NoError(t, err)
	require.NotNil(t, res.Mismatch)
	assert.Equal(t, "Body", res.Mismatch.Category)
	assert.Equal(t, `{"a":2}`, res.Mismatch.Expected)
	assert.Equal(t, `{"a":1,"b":2}`, res.Mismatch.Received)
}

func TestEvaluator_MalformedBodyWarns(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	e := NewEvaluator(log)

	req := newRequest(t, "POST", "http://api.test/users", "application/json", `{"a":`)
	res, err := e.Evaluate(context.Background(), []mock.Restriction{mock.JSONBody(map[string]int{"a": 1})}, req)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.True(t, strings.Contains(buf.String(), "failed to decode request body"))

	// Further handlers evaluating the same request do not warn again.
	_, err = e.Evaluate(context.Background(), []mock.Restriction{mock.JSONBody(map[string]int{"a": 2})}, req)
	require.NoError(t, err)
	_, err = e.Evaluate(context.Background(), []mock.Restriction{mock.JSONBody(map[string]int{"a": 1})}, req.WithPathParams(map[string]string{"id": "1"}))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(buf.String(), "failed to decode request body"))
}

func TestEvaluator_ShortCircuits(t *testing.T) {
	e := NewEvaluator(nil)
	req := newRequest(t, "GET", "http://api.test/users", "", "")

	called := false
	restrictions := []mock.Restriction{
		mock.Headers(map[string]string{"accept": "application/json"}),
		mock.Computed(func(context.Context, *mock.Request) (bool, error) {
			called = true
			return true, nil
		}),
	}

	res, err := e.Evaluate(context.Background(), restrictions, req)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.False(t, called)
}

func TestEvaluator_PredicateErrorPropagates(t *testing.T) {
	e := NewEvaluator(nil)
	req := newRequest(t, "GET", "http://api.test/users", "", "")
	boom := errors.New("boom")

	_, err := e.Evaluate(context.Background(), []mock.Restriction{
		mock.Computed(func(context.Context, *mock.Request) (bool, error) { return false, boom }),
	}, req)
	assert.ErrorIs(t, err, boom)
}

func TestEvaluator_Expression(t *testing.T) {
	e := NewEvaluator(nil)
	req := newRequest(t, "POST", "http://api.test/users?q=x", "application/json", `{"name":"ada"}`)
	req.Header.Set("X-Tenant", "acme")

	tests := []struct {
		src  string
		want bool
	}{
		{src: `request.searchParams.q == "x"`, want: true},
		{src: `request.headers["x-tenant"] == "acme"`, want: true},
		{src: `request.body.name == "ada"`, want: true},
		{src: `request.method == "GET"`, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			res, err := e.Evaluate(context.Background(), []mock.Restriction{mock.Expression(tt.src)}, req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Matched)
			if !tt.want {
				assert.Equal(t, "Computed restriction", res.Mismatch.Category)
				assert.Equal(t, tt.src, res.Mismatch.Expected)
			}
		})
	}

	assert.Error(t, e.CompileExpression(`request.method ==`))
}
