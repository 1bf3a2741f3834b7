package cli

import (
	"errors"
	"fmt"
	"os/exec"
)

// Common CLI errors
var (
	ErrNoCommand     = errors.New("no command given after --")
	ErrNoTokenSecret = errors.New("no token secret configured - set --secret or INTERCEPTD_TOKEN_SECRET")
)

// ExitError carries the exit code of a child process so the CLI exits
// with the same code.
type ExitError struct {
	Name string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Name, e.Code)
}

// childError converts a finished command's error, keeping its exit code.
func childError(name string, err error) error {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return &ExitError{Name: name, Code: ee.ExitCode()}
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}
