package interceptortest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"

	"github.com/getmockd/interceptd/pkg/engine"
	"github.com/getmockd/interceptd/pkg/interceptor"
	"github.com/getmockd/interceptd/pkg/mock"
)

// RequestLog is a request claimed by a handler, flattened for assertions.
type RequestLog struct {
	// Method is the HTTP method (GET, POST, etc.)
	Method string
	// Path is the request URL path
	Path string
	// Header holds the request headers
	Header http.Header
	// Query holds the search params
	Query url.Values
	// PathParams holds values captured by the handler path
	PathParams map[string]string
	// Body is the raw (decompressed) request body
	Body string
	// Status is the status of the response the request received, 0 when
	// it was bypassed or rejected.
	Status int
}

func newRequestLog(s *engine.SavedRequest) RequestLog {
	req := s.Request
	log := RequestLog{
		Method:     req.Method,
		Path:       req.Path(),
		Header:     req.Header,
		Query:      req.SearchParams(),
		PathParams: req.PathParams,
		Body:       string(req.RawBody()),
	}
	if s.Outcome != nil && s.Outcome.Action == mock.ActionRespond {
		log.Status = s.Outcome.Response.Status
		if log.Status == 0 {
			log.Status = http.StatusOK
		}
	}
	return log
}

// Requests returns the requests h claimed, in order. The test fails when
// they cannot be fetched.
func Requests(t testing.TB, h interceptor.Handler) []RequestLog {
	t.Helper()

	saved, err := h.Requests(context.Background())
	if err != nil {
		t.Fatalf("%s %s: fetch requests: %v", h.Method(), h.Path(), err)
		return nil
	}
	logs := make([]RequestLog, 0, len(saved))
	for _, s := range saved {
		logs = append(logs, newRequestLog(s))
	}
	return logs
}

// AssertCalledTimes asserts that h claimed exactly n requests.
func AssertCalledTimes(t testing.TB, h interceptor.Handler, n int) {
	t.Helper()

	if got := len(Requests(t, h)); got != n {
		t.Errorf("%s %s: expected %d requests, got %d", h.Method(), h.Path(), n, got)
	}
}

// AssertNotCalled asserts that h claimed no request.
func AssertNotCalled(t testing.TB, h interceptor.Handler) {
	t.Helper()
	AssertCalledTimes(t, h, 0)
}

// AssertTimes checks h's times expectation now rather than at cleanup.
func AssertTimes(t testing.TB, h interceptor.Handler) {
	t.Helper()

	if err := h.CheckTimes(context.Background()); err != nil {
		t.Errorf("%v", err)
	}
}

// AssertJSONBody asserts that the request body matches the expected JSON.
// The expected value can be a string, []byte, or any value that will be
// JSON encoded.
func (r RequestLog) AssertJSONBody(t testing.TB, expected any) {
	t.Helper()

	var expectedJSON, actualJSON any
	var raw []byte
	switch v := expected.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Errorf("failed to marshal expected value: %v", err)
			return
		}
		raw = data
	}
	if err := json.Unmarshal(raw, &expectedJSON); err != nil {
		t.Errorf("failed to parse expected JSON: %v", err)
		return
	}
	if err := json.Unmarshal([]byte(r.Body), &actualJSON); err != nil {
		t.Errorf("request body is not valid JSON: %v\nbody: %s", err, r.Body)
		return
	}

	if diff := cmp.Diff(expectedJSON, actualJSON); diff != "" {
		t.Errorf("request body does not match expected JSON (-want +got):\n%s", diff)
	}
}

// AssertBody asserts that the request body exactly matches the expected string.
func (r RequestLog) AssertBody(t testing.TB, expected string) {
	t.Helper()

	if r.Body != expected {
		t.Errorf("request body does not match\nexpected: %q\nactual: %q", expected, r.Body)
	}
}

// AssertBodyContains asserts that the request body contains substr.
func (r RequestLog) AssertBodyContains(t testing.TB, substr string) {
	t.Helper()

	if !strings.Contains(r.Body, substr) {
		t.Errorf("request body does not contain %q\nbody: %s", substr, r.Body)
	}
}

// AssertHeader asserts that the request had the header with the expected value.
func (r RequestLog) AssertHeader(t testing.TB, key, expected string) {
	t.Helper()

	values, ok := r.Header[http.CanonicalHeaderKey(key)]
	if !ok {
		t.Errorf("request does not have header %q", key)
		return
	}
	if values[0] != expected {
		t.Errorf("header %q value mismatch\nexpected: %q\nactual: %q", key, expected, values[0])
	}
}

// AssertQueryParam asserts that the request had the search param with the
// expected value.
func (r RequestLog) AssertQueryParam(t testing.TB, key, expected string) {
	t.Helper()

	if !r.Query.Has(key) {
		t.Errorf("request does not have query parameter %q", key)
		return
	}
	if actual := r.Query.Get(key); actual != expected {
		t.Errorf("query parameter %q value mismatch\nexpected: %q\nactual: %q", key, expected, actual)
	}
}

// AssertMethod asserts that the request used the expected HTTP method.
func (r RequestLog) AssertMethod(t testing.TB, expected string) {
	t.Helper()

	if !strings.EqualFold(r.Method, expected) {
		t.Errorf("request method mismatch\nexpected: %q\nactual: %q", expected, r.Method)
	}
}

// JSONField extracts a field from the request body JSON using a gjson
// path ("user.name", "items.0.id"). It returns nil when the body is not
// JSON or the field does not exist.
func (r RequestLog) JSONField(field string) any {
	if !gjson.Valid(r.Body) {
		return nil
	}
	res := gjson.Get(r.Body, field)
	if !res.Exists() {
		return nil
	}
	return res.Value()
}

// AssertJSONField asserts that a JSON field in the request body has the
// expected value. Numbers compare as float64.
func (r RequestLog) AssertJSONField(t testing.TB, field string, expected any) {
	t.Helper()

	actual := r.JSONField(field)
	if actual == nil {
		t.Errorf("JSON field %q not found in request body: %s", field, r.Body)
		return
	}
	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Errorf("JSON field %q mismatch (-want +got):\n%s", field, diff)
	}
}
