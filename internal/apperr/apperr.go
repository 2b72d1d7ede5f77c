// Package apperr defines the error classes surfaced to API callers.
// Every class is recoverable by the caller; anything else is treated as an
// internal failure of the single operation that hit it.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation - malformed input, rejected before any write.
	ErrValidation = errors.New("validation error")
	// ErrForbidden - an access predicate evaluated false. No partial state
	// change, no detail beyond "not permitted".
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound - dangling reference, the id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict - uniqueness violation or a state-guard refusal
	// (e.g. removing the last admin of a room).
	ErrConflict = errors.New("conflict")
)

// Validationf wraps ErrValidation with caller detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// Forbiddenf wraps ErrForbidden with caller detail. The detail is logged,
// never returned to the caller.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrForbidden)...)
}

// NotFoundf wraps ErrNotFound with caller detail.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Conflictf wraps ErrConflict with caller detail.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}
