package protocol

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/getmockd/interceptd/pkg/body"
	"github.com/getmockd/interceptd/pkg/engine"
	"github.com/getmockd/interceptd/pkg/mock"
)

// HandlerCreate asks the server to register a handler.
type HandlerCreate struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// HandlerRef identifies a handler in replies and requests.
type HandlerRef struct {
	HandlerID string `json:"handlerId"`
	Path      string `json:"path,omitempty"`
}

// HandlerWith appends restrictions.
type HandlerWith struct {
	HandlerID    string        `json:"handlerId"`
	Restrictions []Restriction `json:"restrictions"`
}

// HandlerDelay replaces the delay. Durations are nanoseconds.
type HandlerDelay struct {
	HandlerID  string        `json:"handlerId"`
	Kind       string        `json:"kind"`
	Fixed      time.Duration `json:"fixed,omitempty"`
	Min        time.Duration `json:"min,omitempty"`
	Max        time.Duration `json:"max,omitempty"`
	CallbackID string        `json:"callbackId,omitempty"`
}

// HandlerTimes replaces the times expectation.
type HandlerTimes struct {
	HandlerID   string           `json:"handlerId"`
	Bounded     bool             `json:"bounded"`
	Min         int              `json:"min"`
	Max         int              `json:"max"`
	Declaration *engine.CallSite `json:"declaration,omitempty"`
}

// HandlerRespond replaces the response.
type HandlerRespond struct {
	HandlerID  string    `json:"handlerId"`
	Action     string    `json:"action,omitempty"`
	Response   *Response `json:"response,omitempty"`
	CallbackID string    `json:"callbackId,omitempty"`
}

// Options adjusts session-wide behavior.
type Options struct {
	Unhandled *Unhandled `json:"unhandled,omitempty"`
}

// Unhandled is the wire form of engine.UnhandledStrategy.
type Unhandled struct {
	Action   string    `json:"action"`
	Log      bool      `json:"log"`
	Response *Response `json:"response,omitempty"`
}

// SavedRequest is one entry of a handler.requests reply.
type SavedRequest struct {
	ID       string    `json:"id"`
	Request  Request   `json:"request"`
	Outcome  *Outcome  `json:"outcome,omitempty"`
	Received time.Time `json:"received"`
}

// CallbackInvoke asks the client to run a registered callback.
type CallbackInvoke struct {
	CallbackID string  `json:"callbackId"`
	Request    Request `json:"request"`
}

// RestrictionResult answers callback.restriction.
type RestrictionResult struct {
	Matched bool `json:"matched"`
}

// DelayResult answers callback.delay.
type DelayResult struct {
	Delay time.Duration `json:"delay"`
}

// Outcome answers callback.response and describes resolved outcomes.
type Outcome struct {
	Action   string    `json:"action"`
	Response *Response `json:"response,omitempty"`
}

// Request is a captured request on the wire. Body holds decompressed bytes.
type Request struct {
	Method     string              `json:"method"`
	URL        string              `json:"url"`
	Header     map[string][]string `json:"headers,omitempty"`
	Body       []byte              `json:"body,omitempty"`
	PathParams map[string]string   `json:"pathParams,omitempty"`
}

// Response is a concrete response on the wire.
type Response struct {
	Status int                 `json:"status"`
	Header map[string][]string `json:"headers,omitempty"`
	Body   []byte              `json:"body,omitempty"`
}

// Restriction is the wire form of mock.Restriction. Computed restrictions
// travel as a callback id.
type Restriction struct {
	Kind         string            `json:"kind"`
	Headers      map[string]string `json:"headers,omitempty"`
	SearchParams map[string]string `json:"searchParams,omitempty"`
	Body         *Body             `json:"body,omitempty"`
	Expression   string            `json:"expression,omitempty"`
	CallbackID   string            `json:"callbackId,omitempty"`
}

// Body is the wire form of body.Value.
type Body struct {
	Kind      string              `json:"kind"`
	JSON      json.RawMessage     `json:"json,omitempty"`
	Text      string              `json:"text,omitempty"`
	Data      []byte              `json:"data,omitempty"`
	MediaType string              `json:"mediaType,omitempty"`
	Params    map[string][]string `json:"params,omitempty"`
	Form      map[string][]Part   `json:"form,omitempty"`
}

// Part is the wire form of body.Part.
type Part struct {
	Value       string `json:"value,omitempty"`
	File        bool   `json:"file,omitempty"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"data,omitempty"`
}

// EncodeRequest converts a captured request.
func EncodeRequest(req *mock.Request) Request {
	return Request{
		Method:     req.Method,
		URL:        req.URL.String(),
		Header:     req.Header,
		Body:       req.RawBody(),
		PathParams: req.PathParams,
	}
}

// ToMock rebuilds the captured request.
func (r Request) ToMock() (*mock.Request, error) {
	req, err := mock.NewRequest(r.Method, r.URL, http.Header(r.Header).Clone(), r.Body)
	if err != nil {
		return nil, err
	}
	req.Header.Del("Content-Encoding")
	req.PathParams = r.PathParams
	return req, nil
}

// EncodeResponse normalizes and converts a response.
func EncodeResponse(resp mock.Response) (*Response, error) {
	n, err := resp.Normalize()
	if err != nil {
		return nil, err
	}
	return &Response{Status: n.Status, Header: n.Header, Body: n.Body}, nil
}

// ToMock converts back to a mock.Response.
func (r *Response) ToMock() mock.Response {
	if r == nil {
		return mock.Response{}
	}
	return mock.Response{Status: r.Status, Header: http.Header(r.Header).Clone(), Body: r.Body}
}

// EncodeOutcome converts an outcome.
func EncodeOutcome(out mock.Outcome) (*Outcome, error) {
	wire := &Outcome{Action: out.Action.String()}
	if out.Action == mock.ActionRespond {
		resp, err := EncodeResponse(out.Response)
		if err != nil {
			return nil, err
		}
		wire.Response = resp
	}
	return wire, nil
}

// ToMock converts back to a mock.Outcome.
func (o *Outcome) ToMock() (mock.Outcome, error) {
	action, err := mock.ParseAction(o.Action)
	if err != nil {
		return mock.Outcome{}, err
	}
	return mock.Outcome{Action: action, Response: o.Response.ToMock()}, nil
}

// EncodeUnhandled converts an unhandled strategy.
func EncodeUnhandled(s engine.UnhandledStrategy) (*Unhandled, error) {
	wire := &Unhandled{Action: s.Action.String(), Log: s.Log}
	if s.Action == mock.ActionRespond {
		resp, err := EncodeResponse(s.Response)
		if err != nil {
			return nil, err
		}
		wire.Response = resp
	}
	return wire, nil
}

// ToEngine converts back to an engine.UnhandledStrategy.
func (u *Unhandled) ToEngine() (engine.UnhandledStrategy, error) {
	action, err := mock.ParseAction(u.Action)
	if err != nil {
		return engine.UnhandledStrategy{}, err
	}
	return engine.UnhandledStrategy{Action: action, Log: u.Log, Response: u.Response.ToMock()}, nil
}

// EncodeRestriction converts r. Computed restrictions must be registered
// by the caller under callbackID first.
func EncodeRestriction(r mock.Restriction, callbackID string) (Restriction, error) {
	wire := Restriction{Kind: r.Kind.String()}
	switch r.Kind {
	case mock.RestrictHeaders:
		wire.Headers = r.Headers
	case mock.RestrictSearchParams:
		wire.SearchParams = r.SearchParams
	case mock.RestrictBody:
		b, err := EncodeBody(r.Body)
		if err != nil {
			return Restriction{}, err
		}
		wire.Body = b
	case mock.RestrictExpression:
		wire.Expression = r.Expression
	case mock.RestrictComputed:
		if callbackID == "" {
			return Restriction{}, fmt.Errorf("computed restriction needs a callback id")
		}
		wire.CallbackID = callbackID
	default:
		return Restriction{}, fmt.Errorf("unknown restriction kind %s", r.Kind)
	}
	return wire, nil
}

// ToMock rebuilds the restriction. predicate backs computed restrictions
// and is typically a closure that invokes the client callback.
func (r Restriction) ToMock(predicate mock.Predicate) (mock.Restriction, error) {
	switch r.Kind {
	case "headers":
		return mock.Headers(r.Headers), nil
	case "searchParams":
		return mock.SearchParams(r.SearchParams), nil
	case "body":
		if r.Body == nil {
			return mock.Restriction{}, fmt.Errorf("body restriction without body")
		}
		v, err := r.Body.ToValue()
		if err != nil {
			return mock.Restriction{}, err
		}
		return mock.Body(v), nil
	case "expression":
		return mock.Expression(r.Expression), nil
	case "computed":
		if predicate == nil {
			return mock.Restriction{}, fmt.Errorf("computed restriction %s has no predicate", r.CallbackID)
		}
		return mock.Computed(predicate), nil
	default:
		return mock.Restriction{}, fmt.Errorf("unknown restriction kind %q", r.Kind)
	}
}

// EncodeBody converts a body expectation.
func EncodeBody(v body.Value) (*Body, error) {
	if err := v.Err(); err != nil {
		return nil, err
	}
	wire := &Body{Kind: v.Kind.String()}
	switch v.Kind {
	case body.KindJSON:
		data, err := json.Marshal(v.JSON)
		if err != nil {
			return nil, fmt.Errorf("marshal JSON body: %w", err)
		}
		wire.JSON = data
	case body.KindText:
		wire.Text = v.Text
	case body.KindBlob:
		wire.Data = v.Data
		wire.MediaType = v.MediaType
	case body.KindURLEncoded:
		wire.Params = v.Params
	case body.KindFormData:
		wire.Form = make(map[string][]Part, len(v.Form))
		for name, parts := range v.Form {
			for _, p := range parts {
				wire.Form[name] = append(wire.Form[name], Part(p))
			}
		}
	}
	return wire, nil
}

// ToValue rebuilds the body expectation.
func (b *Body) ToValue() (body.Value, error) {
	kind, err := body.ParseKind(b.Kind)
	if err != nil {
		return body.Value{}, err
	}
	switch kind {
	case body.KindJSON:
		v := body.JSON(b.JSON)
		return v, v.Err()
	case body.KindText:
		return body.Text(b.Text), nil
	case body.KindBlob:
		return body.Blob(b.Data, b.MediaType), nil
	case body.KindURLEncoded:
		return body.Params(b.Params), nil
	case body.KindFormData:
		form := make(map[string][]body.Part, len(b.Form))
		for name, parts := range b.Form {
			for _, p := range parts {
				form[name] = append(form[name], body.Part(p))
			}
		}
		return body.Form(form), nil
	default:
		return body.None(), nil
	}
}
