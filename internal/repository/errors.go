package repository

import "errors"

// Store-level error taxonomy. Handlers map these to response codes;
// anything else is treated as transient I/O.
var (
	// ErrNotFound means the referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the caller does not own the referenced row.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict means the write lost to a state gate: the attempt is
	// already completed, or an active duplicate already exists.
	ErrConflict = errors.New("conflict")
)
