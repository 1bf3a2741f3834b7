package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Action is what the interceptor does with a claimed request.
type Action int

// Actions.
const (
	// ActionRespond answers with a synthetic response.
	ActionRespond Action = iota
	// ActionBypass forwards the request to its real destination.
	ActionBypass
	// ActionReject fails the request at the network level.
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionRespond:
		return "respond"
	case ActionBypass:
		return "bypass"
	case ActionReject:
		return "reject"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}

// ParseAction parses the String form of an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "respond":
		return ActionRespond, nil
	case "bypass":
		return ActionBypass, nil
	case "reject":
		return ActionReject, nil
	default:
		return ActionRespond, fmt.Errorf("unknown action %q", s)
	}
}

// Response is a declarative HTTP response. When JSON is set it is marshaled
// into the body at resolution time and Content-Type defaults to
// application/json.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	JSON   any
}

// JSONResponse returns a response carrying v as JSON.
func JSONResponse(status int, v any) Response {
	return Response{Status: status, JSON: v}
}

// TextResponse returns a text/plain response.
func TextResponse(status int, s string) Response {
	return Response{
		Status: status,
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   []byte(s),
	}
}

// Normalize returns a copy with the status defaulted to 200, JSON
// marshaled into Body and Content-Type set when it can be inferred.
func (r Response) Normalize() (Response, error) {
	out := Response{Status: r.Status, Header: r.Header.Clone(), Body: r.Body}
	if out.Status == 0 {
		out.Status = http.StatusOK
	}
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if r.JSON != nil {
		data, err := json.Marshal(r.JSON)
		if err != nil {
			return Response{}, fmt.Errorf("marshal response JSON: %w", err)
		}
		out.Body = data
		if out.Header.Get("Content-Type") == "" {
			out.Header.Set("Content-Type", "application/json")
		}
	}
	return out, nil
}

// Validate checks status range and header names.
func (r Response) Validate() error {
	if r.Status != 0 && (r.Status < 100 || r.Status > 599) {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("status must be between 100 and 599, got %d", r.Status)}
	}
	for name := range r.Header {
		if !tokenRegex.MatchString(name) {
			return &ValidationError{Field: "headers", Message: fmt.Sprintf("invalid header name %q", name)}
		}
	}
	return nil
}

// Outcome is the resolved answer for a claimed request.
type Outcome struct {
	Action   Action
	Response Response
}

// Reply answers with r.
func Reply(r Response) Outcome {
	return Outcome{Action: ActionRespond, Response: r}
}

// Bypass forwards the request untouched.
func Bypass() Outcome {
	return Outcome{Action: ActionBypass}
}

// Reject fails the request with a network error.
func Reject() Outcome {
	return Outcome{Action: ActionReject}
}

// ResponseFactory computes the outcome for a claimed request.
type ResponseFactory func(ctx context.Context, req *Request) (Outcome, error)

// ResponseSpec is a handler's response: either a fixed Outcome or a
// Factory.
type ResponseSpec struct {
	Static  Outcome
	Factory ResponseFactory
}

// Static returns a spec that always yields o.
func Static(o Outcome) ResponseSpec {
	return ResponseSpec{Static: o}
}

// Dynamic returns a spec that calls fn for each claimed request.
func Dynamic(fn ResponseFactory) ResponseSpec {
	return ResponseSpec{Factory: fn}
}

// Resolve produces the outcome for req.
func (s ResponseSpec) Resolve(ctx context.Context, req *Request) (Outcome, error) {
	if s.Factory != nil {
		return s.Factory(ctx, req)
	}
	return s.Static, nil
}
