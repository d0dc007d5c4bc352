package agents

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input to a public operation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// DependencyNotFoundError reports that no active agent or department matched.
type DependencyNotFoundError struct {
	Kind string
	Key  string
	Err  error
}

func (e *DependencyNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no active %s matches %q: %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("no active %s matches %q", e.Kind, e.Key)
}

func (e *DependencyNotFoundError) Unwrap() error { return e.Err }

// ExecutionError reports a failed capability invocation.
type ExecutionError struct {
	AgentID string
	Attempt int
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("agent %s attempt %d: %v", e.AgentID, e.Attempt, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// QualityGateFailure describes a specialist that exhausted its retries below
// threshold. It is attached to rejected results and never returned as an error
// from the loop.
type QualityGateFailure struct {
	AgentID   string
	Score     float64
	Threshold float64
	Attempts  int
}

func (e *QualityGateFailure) Error() string {
	return fmt.Sprintf("agent %s rejected after %d attempts: score %.1f below threshold %.1f",
		e.AgentID, e.Attempts, e.Score, e.Threshold)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is a DependencyNotFoundError.
func IsNotFound(err error) bool {
	var nf *DependencyNotFoundError
	return errors.As(err, &nf)
}
