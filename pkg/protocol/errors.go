package protocol

import (
	"errors"
	"fmt"

	"github.com/getmockd/interceptd/pkg/engine"
	"github.com/getmockd/interceptd/pkg/mock"
)

// ErrSessionClosed is returned for calls pending or issued after the
// connection ended.
var ErrSessionClosed = errors.New("session closed")

// TransportError reports a failure of the connection itself.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Error codes.
const (
	CodeTimesCheck        = "times_check"
	CodeEvaluation        = "evaluation"
	CodeBypassUnsupported = "bypass_unsupported"
	CodeInvalidTimes      = "invalid_times"
	CodeInvalidDelay      = "invalid_delay"
	CodeValidation        = "validation"
	CodeNotFound          = "not_found"
	CodeSessionClosed     = "session_closed"
	CodeInternal          = "internal"
	CodeJoined            = "joined"
)

// ErrNotFound reports an unknown handler or callback id.
var ErrNotFound = errors.New("not found")

// Error is an error carried in a reply or result.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Set for times_check.
	Declaration *engine.CallSite `json:"declaration,omitempty"`
	Method      string           `json:"method,omitempty"`
	Path        string           `json:"path,omitempty"`

	// Set for joined errors.
	Errors []*Error `json:"errors,omitempty"`
}

// EncodeError converts err for the wire, keeping enough structure for Err
// to rebuild an error that matches the same sentinels.
func EncodeError(err error) *Error {
	if err == nil {
		return nil
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		wire := &Error{Code: CodeJoined, Message: err.Error()}
		for _, e := range joined.Unwrap() {
			wire.Errors = append(wire.Errors, EncodeError(e))
		}
		return wire
	}

	var tce *engine.TimesCheckError
	if errors.As(err, &tce) {
		return &Error{
			Code:        CodeTimesCheck,
			Message:     tce.Message,
			Declaration: tce.Declaration,
			Method:      tce.Method,
			Path:        tce.Path,
		}
	}

	wire := &Error{Code: CodeInternal, Message: err.Error()}
	var validationErr *mock.ValidationError
	switch {
	case errors.Is(err, engine.ErrBypassUnsupported):
		wire.Code = CodeBypassUnsupported
	case errors.Is(err, mock.ErrInvalidTimes):
		wire.Code = CodeInvalidTimes
	case errors.Is(err, mock.ErrInvalidDelay):
		wire.Code = CodeInvalidDelay
	case errors.Is(err, engine.ErrEvaluation):
		wire.Code = CodeEvaluation
	case errors.Is(err, ErrSessionClosed):
		wire.Code = CodeSessionClosed
	case errors.Is(err, ErrNotFound):
		wire.Code = CodeNotFound
	case errors.As(err, &validationErr):
		wire.Code = CodeValidation
	}
	return wire
}

// Err rebuilds a Go error.
func (e *Error) Err() error {
	if e == nil {
		return nil
	}
	switch e.Code {
	case CodeJoined:
		errs := make([]error, 0, len(e.Errors))
		for _, child := range e.Errors {
			errs = append(errs, child.Err())
		}
		return errors.Join(errs...)
	case CodeTimesCheck:
		return &engine.TimesCheckError{
			Message:     e.Message,
			Declaration: e.Declaration,
			Method:      e.Method,
			Path:        e.Path,
		}
	}
	return &RemoteError{Code: e.Code, Message: e.Message}
}

// RemoteError is an error reported by the other side of the connection.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Unwrap maps the code back to its sentinel.
func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case CodeBypassUnsupported:
		return engine.ErrBypassUnsupported
	case CodeInvalidTimes:
		return mock.ErrInvalidTimes
	case CodeInvalidDelay:
		return mock.ErrInvalidDelay
	case CodeEvaluation:
		return engine.ErrEvaluation
	case CodeSessionClosed:
		return ErrSessionClosed
	case CodeNotFound:
		return ErrNotFound
	default:
		return nil
	}
}
