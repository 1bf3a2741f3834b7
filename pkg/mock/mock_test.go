package mock

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/getmockd/interceptd/pkg/body"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHTTP_RestoresBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://api.test/users?page=2", strings.NewReader(`{"name":"bob"}`))
	r.Header.Set("Content-Type", "application/json")

	req, err := FromHTTP(r)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/users", req.Path())
	assert.Equal(t, "2", req.SearchParams().Get("page"))

	v, err := req.Body()
	require.NoError(t, err)
	assert.True(t, body.Equal(body.JSON(map[string]string{"name": "bob"}), v))

	again, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"bob"}`, string(again))
}

func TestFromHTTP_Decompresses(t *testing.T) {
	encoded, err := body.Compress([]byte("hello"), "gzip")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "http://api.test/upload", strings.NewReader(string(encoded)))
	r.Header.Set("Content-Type", "text/plain")
	r.Header.Set("Content-Encoding", "gzip")

	req, err := FromHTTP(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(req.RawBody()))

	v, err := req.Body()
	require.NoError(t, err)
	assert.Equal(t, body.KindText, v.Kind)
}

func TestFromHTTP_BadEncodingReportedByBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://api.test/upload", strings.NewReader("not gzip"))
	r.Header.Set("Content-Encoding", "gzip")

	req, err := FromHTTP(r)
	require.NoError(t, err)

	_, err = req.Body()
	assert.Error(t, err)
	_, err = req.Clone().Body()
	assert.Error(t, err)
}

func TestRequest_BodySharedWithCopies(t *testing.T) {
	header := http.Header{"Content-Type": {"application/json"}}
	req, err := NewRequest(http.MethodPost, "http://api.test/users/7", header, []byte(`{"a":`))
	require.NoError(t, err)

	withParams := req.WithPathParams(map[string]string{"id": "7"})
	v1, err1 := req.Body()
	v2, err2 := withParams.Body()
	assert.Equal(t, body.KindBlob, v1.Kind)
	assert.Equal(t, v1, v2)
	assert.Equal(t, err1, err2)

	assert.Error(t, withParams.BodyWarning())
	assert.NoError(t, req.BodyWarning())
	assert.NoError(t, req.Clone().BodyWarning())

	ok, err := NewRequest(http.MethodPost, "http://api.test/users", header, []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.NoError(t, ok.BodyWarning())
}

func TestRequest_WithPathParams(t *testing.T) {
	req, err := NewRequest(http.MethodGet, "http://api.test/users/7", nil, nil)
	require.NoError(t, err)

	withParams := req.WithPathParams(map[string]string{"id": "7"})
	assert.Equal(t, "7", withParams.PathParams["id"])
	assert.Nil(t, req.PathParams)
	assert.Equal(t, "GET http://api.test/users/7", req.String())
}

func TestTimes(t *testing.T) {
	tests := []struct {
		name      string
		times     Times
		wantErr   bool
		allows    []bool
		satisfied []bool
	}{
		{
			name:      "unbounded",
			times:     Unbounded(),
			allows:    []bool{true, true, true},
			satisfied: []bool{true, true, true},
		},
		{
			name:      "exactly two",
			times:     Exactly(2),
			allows:    []bool{true, true, false},
			satisfied: []bool{false, false, true},
		},
		{
			name:      "between one and two",
			times:     Between(1, 2),
			allows:    []bool{true, true, false},
			satisfied: []bool{false, true, true},
		},
		{
			name:      "exactly zero",
			times:     Exactly(0),
			allows:    []bool{false, false, false},
			satisfied: []bool{true, false, false},
		},
		{name: "negative", times: Exactly(-1), wantErr: true},
		{name: "inverted", times: Between(3, 1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.times.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidTimes))
				return
			}
			require.NoError(t, err)
			for claimed, want := range tt.allows {
				assert.Equal(t, want, tt.times.Allows(claimed), "allows(%d)", claimed)
			}
			for claimed, want := range tt.satisfied {
				assert.Equal(t, want, tt.times.Satisfied(claimed), "satisfied(%d)", claimed)
			}
		})
	}
}

func TestDelay_Validate(t *testing.T) {
	assert.NoError(t, NoDelay().Validate())
	assert.NoError(t, FixedDelay(time.Second).Validate())
	assert.NoError(t, RangeDelay(time.Millisecond, time.Second).Validate())
	assert.ErrorIs(t, FixedDelay(-time.Second).Validate(), ErrInvalidDelay)
	assert.ErrorIs(t, RangeDelay(time.Second, time.Millisecond).Validate(), ErrInvalidDelay)
	assert.ErrorIs(t, ComputedDelay(nil).Validate(), ErrInvalidDelay)
}

func TestRestriction_Validate(t *testing.T) {
	assert.NoError(t, Headers(map[string]string{"Accept": "application/json"}).Validate())
	assert.Error(t, Headers(map[string]string{"bad header": "x"}).Validate())
	assert.Error(t, Computed(nil).Validate())
	assert.Error(t, Expression("").Validate())
	assert.Error(t, JSONBody(func() {}).Validate())
	assert.Equal(t, "Search params", SearchParams(map[string]string{"a": "1"}).Category())
	assert.Equal(t, "Computed restriction", Expression("true").Category())
}

func TestResponse_Normalize(t *testing.T) {
	resp, err := JSONResponse(0, map[string]int{"id": 1}).Normalize()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"id":1}`, string(resp.Body))

	_, err = JSONResponse(200, make(chan int)).Normalize()
	assert.Error(t, err)

	assert.Error(t, Response{Status: 42}.Validate())
}

func TestResponseSpec_Resolve(t *testing.T) {
	ctx := context.Background()
	req, err := NewRequest(http.MethodGet, "http://api.test/", nil, nil)
	require.NoError(t, err)

	out, err := Static(Reject()).Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ActionReject, out.Action)

	out, err = Dynamic(func(_ context.Context, r *Request) (Outcome, error) {
		return Reply(TextResponse(201, r.Method)), nil
	}).Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ActionRespond, out.Action)
	assert.Equal(t, "GET", string(out.Response.Body))
}

func TestParseAction(t *testing.T) {
	for _, a := range []Action{ActionRespond, ActionBypass, ActionReject} {
		got, err := ParseAction(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	_, err := ParseAction("explode")
	assert.Error(t, err)
}
