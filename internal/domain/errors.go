package domain

import "errors"

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrValidation = errors.New("validation failed")
)

// ValidationError indicates invalid input that was rejected at the boundary
// before anything was persisted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is allows errors.Is() to match against ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransitionError indicates a status change that would move a record backwards
// through its lifecycle. Statuses only advance; regressions are rejected.
type TransitionError struct {
	Entity string // "context", "fragment", "tool_call"
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return "invalid " + e.Entity + " status transition: " + e.From + " -> " + e.To
}

// Is allows errors.Is() to match against ErrValidation
func (e *TransitionError) Is(target error) bool {
	return target == ErrValidation
}
