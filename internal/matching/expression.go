package matching

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/getmockd/interceptd/pkg/body"
	"github.com/getmockd/interceptd/pkg/mock"
)

// expressionCache compiles expr-lang restrictions once per source text.
type expressionCache struct {
	programMu sync.RWMutex
	programs  map[string]*vm.Program
}

func newExpressionCache() *expressionCache {
	return &expressionCache{programs: make(map[string]*vm.Program)}
}

// compile returns the cached program for src, compiling it on first use.
func (c *expressionCache) compile(src string) (*vm.Program, error) {
	c.programMu.RLock()
	if program, ok := c.programs[src]; ok {
		c.programMu.RUnlock()
		return program, nil
	}
	c.programMu.RUnlock()

	program, err := expr.Compile(src, expr.Env(expressionEnvShape()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}

	c.programMu.Lock()
	if existing, ok := c.programs[src]; ok {
		c.programMu.Unlock()
		return existing, nil
	}
	c.programs[src] = program
	c.programMu.Unlock()

	return program, nil
}

// eval runs src against req.
func (c *expressionCache) eval(src string, req *mock.Request) (bool, error) {
	program, err := c.compile(src)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, ExpressionEnv(req))
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", src, err)
	}
	matched, _ := out.(bool)
	return matched, nil
}

func expressionEnvShape() map[string]any {
	return map[string]any{"request": map[string]any{}}
}

// ExpressionEnv builds the variables visible to expression restrictions:
//
//	request.method        string
//	request.url           string
//	request.path          string
//	request.headers       map of lower-cased name to combined value
//	request.searchParams  map of name to first value
//	request.pathParams    map of name to value
//	request.body          decoded JSON, text, or URL-encoded params; nil otherwise
//	request.text          raw body as a string
func ExpressionEnv(req *mock.Request) map[string]any {
	headers := make(map[string]any, len(req.Header))
	for name := range req.Header {
		v, _ := HeaderValue(name, req.Header)
		headers[strings.ToLower(name)] = v
	}

	search := make(map[string]any)
	for name, values := range req.SearchParams() {
		if len(values) > 0 {
			search[name] = values[0]
		}
	}

	pathParams := make(map[string]any, len(req.PathParams))
	for k, v := range req.PathParams {
		pathParams[k] = v
	}

	var decoded any
	if v, err := req.Body(); err == nil {
		switch v.Kind {
		case body.KindJSON:
			decoded = v.JSON
		case body.KindText:
			decoded = v.Text
		case body.KindURLEncoded:
			params := make(map[string]any, len(v.Params))
			for name := range v.Params {
				params[name] = v.Params.Get(name)
			}
			decoded = params
		}
	}

	rawURL := ""
	if req.URL != nil {
		rawURL = req.URL.String()
	}

	return map[string]any{
		"request": map[string]any{
			"method":       req.Method,
			"url":          rawURL,
			"path":         req.Path(),
			"headers":      headers,
			"searchParams": search,
			"pathParams":   pathParams,
			"body":         decoded,
			"text":         string(req.RawBody()),
		},
	}
}
