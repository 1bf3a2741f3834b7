package mock

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrInvalidTimes is wrapped by errors from Times.Validate.
	ErrInvalidTimes = errors.New("invalid times expectation")

	// ErrInvalidDelay is wrapped by errors from Delay.Validate.
	ErrInvalidDelay = errors.New("invalid delay")
)

// ValidationError represents a validation failure with context.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// tokenRegex validates HTTP header names and methods (RFC 7230 token).
var tokenRegex = regexp.MustCompile(`^[A-Za-z0-9!#$%&'*+\-.^_\x60|~]+$`)

// ValidateMethod checks that method is an HTTP token.
func ValidateMethod(method string) error {
	if !tokenRegex.MatchString(method) {
		return &ValidationError{Field: "method", Message: fmt.Sprintf("invalid method %q", method)}
	}
	return nil
}
