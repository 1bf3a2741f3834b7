package matching

import (
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchMethod compares HTTP methods case-insensitively. An empty or "*"
// pattern matches any method.
func MatchMethod(pattern, method string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	return strings.EqualFold(pattern, method)
}

// MatchPath checks if the request path matches the pattern and returns the
// captured path parameters.
// Supports:
//   - Exact match: "/api/users" matches "/api/users"
//   - Named params: "/api/users/:id" or "/api/users/{id}" matches "/api/users/123"
//   - Globs: "/files/*" matches one segment, "/files/**" any depth
func MatchPath(pattern, requestPath string) (map[string]string, bool) {
	if pattern == requestPath {
		return nil, true
	}

	glob, names := compilePattern(pattern)
	hasParams := slices.ContainsFunc(names, func(n string) bool { return n != "" })
	if !hasParams && !hasGlobMeta(pattern) {
		return nil, false
	}

	ok, err := doublestar.Match(glob, requestPath)
	if err != nil || !ok {
		return nil, false
	}
	if !hasParams {
		return nil, true
	}

	params := make(map[string]string, len(names))
	segments := strings.Split(strings.Trim(requestPath, "/"), "/")
	patternSegments := strings.Split(strings.Trim(pattern, "/"), "/")
	if len(segments) == len(patternSegments) {
		for i, name := range names {
			if name == "" {
				continue
			}
			if v, err := url.PathUnescape(segments[i]); err == nil {
				params[name] = v
			} else {
				params[name] = segments[i]
			}
		}
	}
	return params, true
}

// ValidatePath reports whether pattern is a usable handler path.
func ValidatePath(pattern string) bool {
	if !strings.HasPrefix(pattern, "/") {
		return false
	}
	glob, _ := compilePattern(pattern)
	return doublestar.ValidatePattern(glob)
}

// JoinPath prefixes a handler path with the interceptor's base path.
func JoinPath(basePath, handlerPath string) string {
	if basePath == "" || basePath == "/" {
		if !strings.HasPrefix(handlerPath, "/") {
			return "/" + handlerPath
		}
		return handlerPath
	}
	joined := path.Join(basePath, handlerPath)
	if strings.HasSuffix(handlerPath, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}

// compilePattern rewrites named parameter segments to single-segment
// wildcards. names is indexed by segment; non-parameter segments are "".
func compilePattern(pattern string) (string, []string) {
	segments := strings.Split(strings.Trim(pattern, "/"), "/")
	names := make([]string, len(segments))
	found := false
	for i, seg := range segments {
		if name, ok := paramName(seg); ok {
			names[i] = name
			segments[i] = "*"
			found = true
		}
	}
	if !found {
		return pattern, nil
	}

	glob := "/" + strings.Join(segments, "/")
	if strings.HasSuffix(pattern, "/") && len(pattern) > 1 {
		glob += "/"
	}
	return glob, names
}

func paramName(segment string) (string, bool) {
	switch {
	case strings.HasPrefix(segment, ":") && len(segment) > 1:
		return segment[1:], isIdent(segment[1:])
	case strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") && len(segment) > 2:
		name := segment[1 : len(segment)-1]
		return name, isIdent(name)
	}
	return "", false
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return s != ""
}

func hasGlobMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
