package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repo and service functions when the requested
// feature does not exist in the database.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails geometry,
// tag, or query parameter rules.
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrInternal marks failures the caller cannot fix, such as a stored row
// whose geometry no longer decodes.
// Handlers should map this to HTTP 500.
var ErrInternal = errors.New("internal error")

// FieldIssue is one rule violation inside a ValidationError.
type FieldIssue struct {
	// Field names the offending input, e.g. "set", "delete", "limit", "bbox".
	Field string `json:"field"`
	// Index is the position inside a list input (delete keys, editor rows).
	Index *int `json:"index,omitempty"`
	// Key is the tag key the issue refers to, when there is one.
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
	// Rule is a stable code: required, max_length, pattern, duplicate, ...
	Rule string `json:"rule"`
}

// ValidationError aggregates every problem found in one input.
// It matches domain.ErrValidation under errors.Is.
type ValidationError struct {
	Message string
	Issues  []FieldIssue
	// Details carries non-field context, e.g. {"kind": "point", "geometryType": "LineString"}.
	Details map[string]any
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%d issues)", e.Message, len(e.Issues))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError with optional detail pairs.
func NewValidationError(message string, details map[string]any) *ValidationError {
	return &ValidationError{Message: message, Details: details}
}

// InternalError carries a user-facing message plus the diagnostic cause.
// It matches both ErrInternal and the cause under errors.Is.
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *InternalError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrInternal}
	}
	return []error{ErrInternal, e.Cause}
}

// IntPtr returns a pointer to i. Used for FieldIssue.Index.
func IntPtr(i int) *int { return &i }
