package matching

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getmockd/interceptd/pkg/body"
	"github.com/getmockd/interceptd/pkg/mock"
)

// Fragment is the expected/received pair for one mismatching restriction.
// Values are pre-rendered so they stay valid after the request is gone.
type Fragment struct {
	Category string `json:"category"`
	Expected string `json:"expected"`
	Received string `json:"received"`
}

// Result is the outcome of evaluating a handler's restrictions.
type Result struct {
	Matched bool
	// Mismatch describes the first restriction that failed. Nil when
	// Matched is true.
	Mismatch *Fragment
}

// Evaluator evaluates restrictions. It is safe for concurrent use.
type Evaluator struct {
	log   *slog.Logger
	exprs *expressionCache
}

// NewEvaluator creates an evaluator that reports body decode warnings on
// log. A nil logger disables the warnings.
func NewEvaluator(log *slog.Logger) *Evaluator {
	return &Evaluator{log: log, exprs: newExpressionCache()}
}

// Evaluate checks restrictions in order and stops at the first mismatch.
// Errors come only from computed restrictions and are returned as is.
func (e *Evaluator) Evaluate(ctx context.Context, restrictions []mock.Restriction, req *mock.Request) (Result, error) {
	for _, r := range restrictions {
		matched, frag, err := e.Check(ctx, r, req)
		if err != nil {
			return Result{}, err
		}
		if !matched {
			return Result{Matched: false, Mismatch: frag}, nil
		}
	}
	return Result{Matched: true}, nil
}

// Check evaluates a single restriction. The fragment is only built on a
// mismatch.
func (e *Evaluator) Check(ctx context.Context, r mock.Restriction, req *mock.Request) (bool, *Fragment, error) {
	switch r.Kind {
	case mock.RestrictHeaders:
		if MatchHeaders(r.Headers, req.Header) {
			return true, nil, nil
		}
		want, got := headerSubset(r.Headers, req.Header)
		return false, newFragment(r, body.RenderJSON(want), body.RenderJSON(got)), nil

	case mock.RestrictSearchParams:
		params := req.SearchParams()
		if MatchQueryParams(r.SearchParams, params) {
			return true, nil, nil
		}
		want, got := querySubset(r.SearchParams, params)
		return false, newFragment(r, body.RenderJSON(want), body.RenderJSON(got)), nil

	case mock.RestrictBody:
		matched, received := MatchBody(r.Body, req, e.log)
		if matched {
			return true, nil, nil
		}
		return false, newFragment(r, r.Body.String(), received.String()), nil

	case mock.RestrictComputed:
		if r.Predicate == nil {
			return false, nil, fmt.Errorf("computed restriction: nil predicate")
		}
		matched, err := r.Predicate(ctx, req)
		if err != nil {
			return false, nil, fmt.Errorf("computed restriction: %w", err)
		}
		if matched {
			return true, nil, nil
		}
		return false, newFragment(r, "true", "false"), nil

	case mock.RestrictExpression:
		matched, err := e.exprs.eval(r.Expression, req)
		if err != nil {
			return false, nil, fmt.Errorf("expression restriction: %w", err)
		}
		if matched {
			return true, nil, nil
		}
		return false, newFragment(r, r.Expression, "false"), nil

	default:
		return false, nil, fmt.Errorf("unknown restriction kind %s", r.Kind)
	}
}

// CompileExpression reports a syntax or type error in an expression
// restriction before it is ever evaluated.
func (e *Evaluator) CompileExpression(src string) error {
	_, err := e.exprs.compile(src)
	return err
}

func newFragment(r mock.Restriction, expected, received string) *Fragment {
	return &Fragment{Category: r.Category(), Expected: expected, Received: received}
}
