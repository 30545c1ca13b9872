package pipeline

import (
	"fmt"

	"github.com/signalnine/toolsgen/internal/result"
)

// ValidationError marks model output that failed a structural check. It
// fails the sample, never the run.
type ValidationError struct {
	Stage result.Stage
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation: %v", e.Stage, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(stage result.Stage, format string, args ...any) error {
	return &ValidationError{Stage: stage, Err: fmt.Errorf(format, args...)}
}

// exhaustedError is a stage whose completion retries ran out.
type exhaustedError struct {
	stage    result.Stage
	attempts int
	err      error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.stage, e.attempts, e.err)
}

func (e *exhaustedError) Unwrap() error { return e.err }
