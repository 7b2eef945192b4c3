package store

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a write loses a uniqueness or
	// sequencing race after retry exhaustion (I1).
	ErrConflict = errors.New("store: conflict")

	// ErrBusy is returned when delete_last_message cannot acquire the
	// branch lock because an append is in flight (I3's per-branch
	// serialization, §4.1's tie-breaking rule).
	ErrBusy = errors.New("store: branch busy")

	// ErrArchived is returned when an operation targets an archived branch.
	ErrArchived = errors.New("store: branch archived")
)
