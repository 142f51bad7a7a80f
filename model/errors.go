package model

import "errors"

// Error kinds shared across repositories and services. Callers classify
// with errors.Is; wrapping adds context without changing the kind.
var (
	// ErrNotFound marks lookups of unknown devices, tags, rules or instances.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks rejected input: bad enum values, unsorted time
	// ranges, duplicate ids, invalid patterns. The operation has no side
	// effects.
	ErrValidation = errors.New("validation failed")

	// ErrConflictState marks forward-only state machine violations, e.g.
	// acking a closed alarm. The operation is a no-op.
	ErrConflictState = errors.New("conflicting state")

	// ErrInsufficientData marks learn/predict calls that lack the minimum
	// samples or cycles. It is an expected outcome, logged at debug.
	ErrInsufficientData = errors.New("insufficient data")
)
