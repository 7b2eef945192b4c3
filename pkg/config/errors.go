package config

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRequiredField indicates a required configuration key is unset.
	ErrMissingRequiredField = errors.New("missing required configuration field")

	// ErrInvalidValue indicates a configuration key has an invalid value.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// ValidationError wraps a single configuration field's validation failure
// with enough context to point an operator at the offending env var.
type ValidationError struct {
	Component string // always "config" today; kept for parity with other ValidationError types
	Field     string // the environment variable name
	Note      string // optional extra context
	Err       error
}

// Error returns a formatted error message.
func (e *ValidationError) Error() string {
	if e.Note != "" {
		return fmt.Sprintf("%s: %s: %s: %v", e.Component, e.Field, e.Note, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Component, e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new config ValidationError.
func NewValidationError(component, field, note string, err error) *ValidationError {
	return &ValidationError{Component: component, Field: field, Note: note, Err: err}
}
