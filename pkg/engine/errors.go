package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEvaluation matches every *EvaluationError.
	ErrEvaluation = errors.New("handler evaluation failed")

	// ErrTimesCheck matches every *TimesCheckError.
	ErrTimesCheck = errors.New("times expectation not met")

	// ErrBypassUnsupported is returned when a bypass outcome is configured
	// or produced by a handler that runs on an interceptor server.
	ErrBypassUnsupported = errors.New("bypass is not supported in remote mode")
)

// EvaluationError wraps a failure raised by a computed restriction, delay
// or response factory, or by the transport that carries it.
type EvaluationError struct {
	Op        string
	HandlerID string
	Err       error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s (handler %s): %v", e.Op, e.HandlerID, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}

// TimesCheckError reports an unmet times expectation. Message is the full
// rendered diagnostic; Declaration points at the Times call that set the
// expectation.
type TimesCheckError struct {
	Message     string
	Declaration *CallSite
	Method      string
	Path        string
}

func (e *TimesCheckError) Error() string {
	return e.Message
}

func (e *TimesCheckError) Is(target error) bool {
	return target == ErrTimesCheck
}
