package deploy

import (
	"errors"
	"fmt"
)

// Severity decides whether a failed step halts the run.
type Severity int

const (
	// Advisory failures are reported as warnings and the run continues.
	Advisory Severity = iota
	// Fatal failures stop the run with a non-zero exit status.
	Fatal
)

func (s Severity) String() string {
	if s == Fatal {
		return "fatal"
	}
	return "advisory"
}

type StepError struct {
	Step     string
	Severity Severity
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep returns the step name carried by err, if any.
func FailedStep(err error) (string, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step, true
	}
	return "", false
}

func withStderr(err error, stderr string) error {
	if err == nil || stderr == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, stderr)
}
