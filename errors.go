package strata

import (
	"errors"
	"fmt"
)

// Common errors returned by the Strata engine.
var (
	// ErrNotFound is returned when a requested record is absent.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidScope is returned when an invalid scope is provided.
	ErrInvalidScope = errors.New("invalid fact scope")

	// ErrInvalidLessonType is returned when an invalid lesson type is provided.
	ErrInvalidLessonType = errors.New("invalid lesson type")

	// ErrInvalidConfidence is returned when confidence is out of range [0, 1].
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")

	// ErrEmptyKey is returned when a fact key is empty.
	ErrEmptyKey = errors.New("fact key cannot be empty")

	// ErrEmptyContent is returned when content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrContentTooLong is returned when content exceeds its maximum length.
	ErrContentTooLong = errors.New("content exceeds maximum length")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrBudgetExceeded is returned when the analyzer work budget is spent.
	ErrBudgetExceeded = errors.New("analysis work budget exceeded")

	// ErrToolNotFound is returned when dispatch cannot route a tool name.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNotAllowed is returned when an adapter's allow-list rejects a tool.
	ErrToolNotAllowed = errors.New("tool not allowed for adapter")
)

// ValidationError reports malformed input rejected before reaching a store.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// StoreError marks a backing store as unavailable for one tier. Callers use
// it to degrade to the remaining tiers instead of failing the whole request.
// Extractable via errors.As(). Supports Unwrap().
type StoreError struct {
	Tier Tier
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Tier, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err indicates a store outage rather than a
// caller mistake.
func IsUnavailable(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
