package mock

import (
	"context"
	"fmt"

	"github.com/getmockd/interceptd/pkg/body"
)

// RestrictionKind identifies what a Restriction inspects.
type RestrictionKind int

// Restriction kinds.
const (
	RestrictHeaders RestrictionKind = iota
	RestrictSearchParams
	RestrictBody
	RestrictComputed
	RestrictExpression
)

func (k RestrictionKind) String() string {
	switch k {
	case RestrictHeaders:
		return "headers"
	case RestrictSearchParams:
		return "searchParams"
	case RestrictBody:
		return "body"
	case RestrictComputed:
		return "computed"
	case RestrictExpression:
		return "expression"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Predicate is a user-supplied restriction. Returning an error aborts the
// evaluation of the request.
type Predicate func(ctx context.Context, req *Request) (bool, error)

// Restriction is one condition a request must meet for a handler to claim
// it. Exactly one of the payload fields is meaningful, selected by Kind.
type Restriction struct {
	Kind RestrictionKind

	// Headers maps case-insensitive header names to exact values.
	Headers map[string]string

	// SearchParams maps query parameter names to exact values.
	SearchParams map[string]string

	// Body is compared against the decoded request body.
	Body body.Value

	// Predicate is evaluated for computed restrictions.
	Predicate Predicate

	// Expression is an expr-lang boolean expression evaluated against the
	// request. Unlike Predicate it can be shipped over the wire.
	Expression string
}

// Headers restricts requests to those carrying every listed header with
// exactly the given value. Header names are case-insensitive.
func Headers(headers map[string]string) Restriction {
	return Restriction{Kind: RestrictHeaders, Headers: headers}
}

// SearchParams restricts requests to those whose query string carries every
// listed parameter with exactly the given value.
func SearchParams(params map[string]string) Restriction {
	return Restriction{Kind: RestrictSearchParams, SearchParams: params}
}

// Body restricts requests to those whose decoded body equals v.
func Body(v body.Value) Restriction {
	return Restriction{Kind: RestrictBody, Body: v}
}

// JSONBody is shorthand for Body(body.JSON(v)).
func JSONBody(v any) Restriction {
	return Body(body.JSON(v))
}

// TextBody is shorthand for Body(body.Text(s)).
func TextBody(s string) Restriction {
	return Body(body.Text(s))
}

// Computed restricts requests with an arbitrary predicate.
func Computed(p Predicate) Restriction {
	return Restriction{Kind: RestrictComputed, Predicate: p}
}

// Expression restricts requests with an expr-lang expression. The
// environment exposes method, path, url, headers, query, pathParams, body
// and text.
func Expression(src string) Restriction {
	return Restriction{Kind: RestrictExpression, Expression: src}
}

// Category is the label used in diagnostics for this restriction.
func (r Restriction) Category() string {
	switch r.Kind {
	case RestrictHeaders:
		return "Headers"
	case RestrictSearchParams:
		return "Search params"
	case RestrictBody:
		return "Body"
	default:
		return "Computed restriction"
	}
}

// Validate checks that the restriction is well formed.
func (r Restriction) Validate() error {
	switch r.Kind {
	case RestrictHeaders:
		for name := range r.Headers {
			if !tokenRegex.MatchString(name) {
				return &ValidationError{Field: "headers", Message: fmt.Sprintf("invalid header name %q", name)}
			}
		}
	case RestrictSearchParams:
	case RestrictBody:
		if err := r.Body.Err(); err != nil {
			return &ValidationError{Field: "body", Message: err.Error(), Err: err}
		}
	case RestrictComputed:
		if r.Predicate == nil {
			return &ValidationError{Field: "computed", Message: "predicate is nil"}
		}
	case RestrictExpression:
		if r.Expression == "" {
			return &ValidationError{Field: "expression", Message: "expression is empty"}
		}
	default:
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown restriction kind %d", int(r.Kind))}
	}
	return nil
}
