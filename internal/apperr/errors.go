// Package apperr defines sentinel errors shared across the engine.
package apperr

import "errors"

var (
	// ErrNotDeckRoot marks a path that is missing, not a directory, or not
	// named with the deck-root suffix. The only error that aborts a whole
	// conformance pass.
	ErrNotDeckRoot = errors.New("not a deck root")
	// ErrNotFound marks a missing file or run record.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a concurrent-modification conflict.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput marks a malformed request parameter.
	ErrInvalidInput = errors.New("invalid input")
)
