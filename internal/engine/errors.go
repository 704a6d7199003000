package engine

import "errors"

var (
	// ErrInvalidInput marks dataset rows the engine refuses to run on.
	// Detected before placement; the wrapped message names the row.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal marks a post-commit invariant violation. Fatal.
	ErrInternal = errors.New("internal invariant violation")
)
