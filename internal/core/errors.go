package core

import (
	"errors"
	"fmt"
)

var (
	// ErrIdempotencyConflict signals that a ledger entry for the same
	// definition and due date already exists. Callers treat it as a no-op.
	ErrIdempotencyConflict = errors.New("ledger entry already exists for due date")

	ErrNotFound         = errors.New("not found")
	ErrNotCurrentMonth  = errors.New("only entries of the current month can be changed")
	ErrResolutionLimit  = errors.New("resolution limit per month reached")
	ErrNotRecurring     = errors.New("expense is not recurring")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidMonthKey  = errors.New("invalid month key")
	ErrInvalidWeekKey   = errors.New("invalid week key")
	ErrFuturePeriod     = errors.New("future periods are not allowed")
	ErrEmptyDescription = errors.New("empty description")
)

// ValidationError reports input that was rejected before any state changed.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PersistenceError wraps a storage failure. The operation it belongs to was
// rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPersistence reports whether err carries a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
