package models

import "errors"

var (
	// ErrNotFound is returned when a work item, facility, task or identity does not exist
	// or falls outside the range in which it can exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned when a request is malformed or facility completion requirements are unmet.
	ErrValidation = errors.New("validation error")
	// ErrInvalidTransition is returned when a status change is not permitted from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict is returned when a concurrent write could not be resolved, e.g. storage is unavailable.
	ErrConflict = errors.New("conflict")
)
