package simulation

import (
	"errors"
	"fmt"
)

// Sentinel errors the Simulation Service maps to HTTP status codes (§7).
// Store-level sentinels (store.ErrNotFound, store.ErrBusy, ...) are
// returned by these methods either as is or wrapped with %w; callers
// should errors.Is against both sets.
var (
	// ErrNoModelSelected is returned by Start when the session has no
	// ProviderConfig with a non-empty model_name (§4.6).
	ErrNoModelSelected = errors.New("simulation: no model selected")

	// ErrBranchArchived is returned when an operation targets an
	// archived branch (intervene requires non-archived, §4.6).
	ErrBranchArchived = errors.New("simulation: branch is archived")
)

// ValidationError wraps field-specific request validation failures,
// mirroring this codebase's services package (§7 ValidationError → 400).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %q: %s", e.Field, e.Message)
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
