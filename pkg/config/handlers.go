package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/interceptd/internal/matching"
	"github.com/getmockd/interceptd/pkg/body"
	"github.com/getmockd/interceptd/pkg/engine"
	"github.com/getmockd/interceptd/pkg/interceptor"
	"github.com/getmockd/interceptd/pkg/mock"
)

// HandlerFileVersion is the only supported handler file version.
const HandlerFileVersion = "1"

// HandlerFile is a declarative set of handlers.
type HandlerFile struct {
	Version   string         `yaml:"version"`
	Unhandled *UnhandledSpec `yaml:"unhandled,omitempty"`
	Handlers  []HandlerSpec  `yaml:"handlers"`

	path string
}

// UnhandledSpec is the file form of engine.UnhandledStrategy.
type UnhandledSpec struct {
	Action  string        `yaml:"action"`
	Log     bool          `yaml:"log"`
	Respond *ResponseSpec `yaml:"respond,omitempty"`
}

// HandlerSpec declares one handler.
type HandlerSpec struct {
	Method  string            `yaml:"method"`
	Path    string            `yaml:"path"`
	With    []RestrictionSpec `yaml:"with,omitempty"`
	Delay   *DelaySpec        `yaml:"delay,omitempty"`
	Times   *TimesSpec        `yaml:"times,omitempty"`
	Action  string            `yaml:"action,omitempty"`
	Respond *ResponseSpec     `yaml:"respond,omitempty"`
}

// RestrictionSpec holds exactly one restriction.
type RestrictionSpec struct {
	Headers      map[string]string `yaml:"headers,omitempty"`
	SearchParams map[string]string `yaml:"searchParams,omitempty"`
	JSON         any               `yaml:"json,omitempty"`
	Text         *string           `yaml:"text,omitempty"`
	Form         map[string]string `yaml:"form,omitempty"`
	Expression   string            `yaml:"expression,omitempty"`
}

// DelaySpec is a fixed delay or an inclusive range.
type DelaySpec struct {
	Fixed string `yaml:"fixed,omitempty"`
	Min   string `yaml:"min,omitempty"`
	Max   string `yaml:"max,omitempty"`
}

// TimesSpec is an exact count, an inclusive range, or a minimum when Max is
// omitted.
type TimesSpec struct {
	Exactly *int `yaml:"exactly,omitempty"`
	Min     *int `yaml:"min,omitempty"`
	Max     *int `yaml:"max,omitempty"`
}

// ResponseSpec is a static response. Body and JSON are exclusive.
type ResponseSpec struct {
	Status  int               `yaml:"status,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    *string           `yaml:"body,omitempty"`
	JSON    any               `yaml:"json,omitempty"`
}

// Path is the file the handlers were loaded from.
func (f *HandlerFile) Path() string { return f.path }

// LoadHandlerFile reads and validates a handler file.
func LoadHandlerFile(path string) (*HandlerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseHandlerFile(path, data)
}

// ParseHandlerFile validates data against the handler schema, decodes it
// and checks it semantically. path is used in error messages only.
func ParseHandlerFile(path string, data []byte) (*HandlerFile, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, yamlConfigError(path, err)
	}
	if doc == nil {
		return nil, &ConfigError{Path: path, Message: "empty handler file"}
	}
	if err := validateSchema(path, doc); err != nil {
		return nil, err
	}

	var f HandlerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, yamlConfigError(path, err)
	}
	f.path = path
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks what the schema cannot: method tokens, handler paths,
// duration and count ranges. All problems are reported together.
func (f *HandlerFile) Validate() error {
	var errs []error
	if f.Version != HandlerFileVersion {
		errs = append(errs, fmt.Errorf("unsupported version %q", f.Version))
	}
	if f.Unhandled != nil {
		if _, err := f.Unhandled.strategy(); err != nil {
			errs = append(errs, fmt.Errorf("unhandled: %w", err))
		}
	}
	for i, h := range f.Handlers {
		if err := h.validate(); err != nil {
			errs = append(errs, fmt.Errorf("handlers[%d] %s %s: %w", i, h.Method, h.Path, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", f.path, err)
	}
	return nil
}

func (h HandlerSpec) validate() error {
	if err := mock.ValidateMethod(h.Method); err != nil {
		return err
	}
	if !matching.ValidatePath(h.Path) {
		return &mock.ValidationError{Field: "path", Message: fmt.Sprintf("invalid handler path %q", h.Path)}
	}
	for i, r := range h.With {
		res, err := r.restriction()
		if err != nil {
			return fmt.Errorf("with[%d]: %w", i, err)
		}
		if err := res.Validate(); err != nil {
			return fmt.Errorf("with[%d]: %w", i, err)
		}
	}
	if h.Delay != nil {
		d, err := h.Delay.delay()
		if err != nil {
			return err
		}
		if err := d.Validate(); err != nil {
			return err
		}
	}
	if h.Times != nil {
		if err := h.Times.times().Validate(); err != nil {
			return err
		}
	}
	if _, err := h.outcome(); err != nil {
		return err
	}
	return nil
}

func (r RestrictionSpec) restriction() (mock.Restriction, error) {
	switch {
	case r.Headers != nil:
		return mock.Headers(r.Headers), nil
	case r.SearchParams != nil:
		return mock.SearchParams(r.SearchParams), nil
	case r.JSON != nil:
		v := body.JSON(r.JSON)
		if err := v.Err(); err != nil {
			return mock.Restriction{}, err
		}
		return mock.Body(v), nil
	case r.Text != nil:
		return mock.TextBody(*r.Text), nil
	case r.Form != nil:
		params := make(url.Values, len(r.Form))
		for k, v := range r.Form {
			params.Set(k, v)
		}
		return mock.Body(body.Params(params)), nil
	case r.Expression != "":
		return mock.Expression(r.Expression), nil
	default:
		return mock.Restriction{}, errors.New("empty restriction")
	}
}

func (d DelaySpec) delay() (mock.Delay, error) {
	if d.Fixed != "" {
		fixed, err := time.ParseDuration(d.Fixed)
		if err != nil {
			return mock.Delay{}, fmt.Errorf("delay: %w", err)
		}
		return mock.FixedDelay(fixed), nil
	}
	minDelay, err := time.ParseDuration(d.Min)
	if err != nil {
		return mock.Delay{}, fmt.Errorf("delay min: %w", err)
	}
	maxDelay, err := time.ParseDuration(d.Max)
	if err != nil {
		return mock.Delay{}, fmt.Errorf("delay max: %w", err)
	}
	return mock.RangeDelay(minDelay, maxDelay), nil
}

func (t TimesSpec) times() mock.Times {
	if t.Exactly != nil {
		return mock.Exactly(*t.Exactly)
	}
	var minCalls int
	if t.Min != nil {
		minCalls = *t.Min
	}
	if t.Max == nil {
		return mock.AtLeast(minCalls)
	}
	return mock.Between(minCalls, *t.Max)
}

func (h HandlerSpec) outcome() (mock.Outcome, error) {
	action, err := mock.ParseAction(h.Action)
	if err != nil {
		return mock.Outcome{}, err
	}
	switch action {
	case mock.ActionBypass:
		return mock.Bypass(), nil
	case mock.ActionReject:
		return mock.Reject(), nil
	}
	if h.Respond == nil {
		return mock.Reply(mock.Response{Status: http.StatusOK}), nil
	}
	resp := h.Respond.response()
	if err := resp.Validate(); err != nil {
		return mock.Outcome{}, err
	}
	return mock.Reply(resp), nil
}

func (r *ResponseSpec) response() mock.Response {
	resp := mock.Response{Status: r.Status, JSON: r.JSON}
	if len(r.Headers) > 0 {
		resp.Header = make(http.Header, len(r.Headers))
		for k, v := range r.Headers {
			resp.Header.Set(k, v)
		}
	}
	if r.Body != nil {
		resp.Body = []byte(*r.Body)
	}
	return resp
}

func (u *UnhandledSpec) strategy() (engine.UnhandledStrategy, error) {
	action, err := mock.ParseAction(u.Action)
	if err != nil {
		return engine.UnhandledStrategy{}, err
	}
	s := engine.UnhandledStrategy{Action: action, Log: u.Log}
	if u.Respond != nil {
		s.Response = u.Respond.response()
		if err := s.Response.Validate(); err != nil {
			return engine.UnhandledStrategy{}, err
		}
	}
	return s, nil
}

// unhandledSetter is implemented by both interceptor modes.
type unhandledSetter interface {
	SetUnhandled(engine.UnhandledStrategy) error
}

// Apply declares the file's handlers on ic in file order and returns the
// handlers created. Configuration errors of every handler are joined.
func (f *HandlerFile) Apply(ctx context.Context, ic interceptor.Interceptor) ([]interceptor.Handler, error) {
	var errs []error

	if f.Unhandled != nil {
		s, err := f.Unhandled.strategy()
		if err == nil {
			setter, ok := ic.(unhandledSetter)
			if !ok {
				err = fmt.Errorf("interceptor %T cannot change its unhandled strategy", ic)
			} else {
				err = setter.SetUnhandled(s)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("unhandled: %w", err))
		}
	}

	handlers := make([]interceptor.Handler, 0, len(f.Handlers))
	for i, spec := range f.Handlers {
		if err := ctx.Err(); err != nil {
			return handlers, err
		}
		h := ic.Handle(spec.Method, spec.Path)
		applyHandlerSpec(h, spec)
		if err := h.Err(); err != nil {
			errs = append(errs, fmt.Errorf("handlers[%d] %s %s: %w", i, spec.Method, spec.Path, err))
		}
		handlers = append(handlers, h)
	}
	return handlers, errors.Join(errs...)
}

// applyHandlerSpec configures h. Errors land in h.Err.
func applyHandlerSpec(h interceptor.Handler, spec HandlerSpec) {
	restrictions := make([]mock.Restriction, 0, len(spec.With))
	for _, r := range spec.With {
		res, err := r.restriction()
		if err != nil {
			continue
		}
		restrictions = append(restrictions, res)
	}
	if len(restrictions) > 0 {
		h.With(restrictions...)
	}

	if spec.Delay != nil {
		if d, err := spec.Delay.delay(); err == nil {
			switch d.Kind {
			case mock.DelayFixed:
				h.Delay(d.Fixed)
			case mock.DelayRange:
				h.DelayBetween(d.Min, d.Max)
			}
		}
	}

	if spec.Times != nil {
		t := spec.Times.times()
		if t.IsExact() {
			h.Times(t.Min)
		} else {
			h.Times(t.Min, t.Max)
		}
	}

	out, err := spec.outcome()
	if err != nil {
		return
	}
	switch out.Action {
	case mock.ActionBypass:
		h.Bypass()
	case mock.ActionReject:
		h.Reject()
	default:
		h.Respond(out.Response)
	}
}
