package matching

import (
	"net/http"
	"strings"
)

// HeaderValue returns all values of a header joined with ", ", the way a
// single combined header line reads.
func HeaderValue(name string, headers http.Header) (string, bool) {
	values := headers.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return strings.Join(values, ", "), true
}

// MatchHeader checks if a specific header matches.
// Header names are case-insensitive (per HTTP spec).
func MatchHeader(name, expectedValue string, headers http.Header) bool {
	actualValue, ok := HeaderValue(name, headers)
	return ok && actualValue == expectedValue
}

// MatchHeaders checks if all specified headers match.
// Returns true only if ALL headers match; extra request headers are ignored.
func MatchHeaders(expected map[string]string, headers http.Header) bool {
	for name, value := range expected {
		if !MatchHeader(name, value, headers) {
			return false
		}
	}
	return true
}

// headerSubset returns the declared headers and the request's values for
// them, keyed by lower-cased name. Headers absent from the request are
// omitted from received.
func headerSubset(expected map[string]string, headers http.Header) (want, got map[string]any) {
	want = make(map[string]any, len(expected))
	got = make(map[string]any, len(expected))
	for name, value := range expected {
		key := strings.ToLower(name)
		want[key] = value
		if actual, ok := HeaderValue(name, headers); ok {
			got[key] = actual
		}
	}
	return want, got
}
