/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error categories in one place for consistency and discoverability.
  Service packages wrap these sentinels with structured context.

ERROR CATEGORIES:
  1. Validation errors  - malformed input, reported to the caller, never retried
  2. State conflicts    - transitions attempted from the wrong state
  3. Authorization      - actor not entitled to act, checked before mutation
  4. Not found          - missing entities

USAGE:
  if errors.Is(err, travel.ErrStateConflict) {
      // map to HTTP 409
  }
*/
package travel

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input (bad dates, bad shapes).
	ErrValidation = errors.New("validation failed")

	// ErrStateConflict is returned when an operation is attempted from a
	// state that does not allow it (finalize on a reviewed trip, reopen on
	// an in-review trip, day-count mismatch).
	ErrStateConflict = errors.New("state conflict")

	// ErrUnauthorized is returned before any mutation when the actor's scope
	// does not cover the target entity.
	ErrUnauthorized = errors.New("not authorized")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - carry additional context
// =============================================================================

// DayCountMismatchError is returned by review finalization when the submitted
// decisions do not cover the trip's day set exactly.
type DayCountMismatchError struct {
	TripID   TripID
	Expected int
	Found    int
}

func (e *DayCountMismatchError) Error() string {
	return fmt.Sprintf("day decisions do not cover trip %s: expected %d days, found %d",
		e.TripID, e.Expected, e.Found)
}

func (e *DayCountMismatchError) Unwrap() error { return ErrStateConflict }

// TripOverlapError is returned when a new trip overlaps an active trip of the
// same employee.
type TripOverlapError struct {
	EmployeeID EmployeeID
	Start      time.Time
	End        time.Time
}

func (e *TripOverlapError) Error() string {
	return fmt.Sprintf("employee %s already has an active trip overlapping %s..%s",
		e.EmployeeID, e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"))
}

func (e *TripOverlapError) Unwrap() error { return ErrValidation }

// UnknownDayError is returned when a day ID in a batch or decision set does
// not belong to the trip being operated on.
type UnknownDayError struct {
	TripID TripID
	DayID  DayID
}

func (e *UnknownDayError) Error() string {
	return fmt.Sprintf("day %s does not belong to trip %s", e.DayID, e.TripID)
}

func (e *UnknownDayError) Unwrap() error { return ErrValidation }

// StateTransitionError is returned for trip transitions attempted from a
// disallowed state.
type StateTransitionError struct {
	TripID TripID
	From   TripState
	Target string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s trip %s in state %s", e.Target, e.TripID, e.From)
}

func (e *StateTransitionError) Unwrap() error { return ErrStateConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid caller input or a
// disallowed transition (as opposed to an infrastructure failure).
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrStateConflict) ||
		errors.Is(err, ErrUnauthorized)
}
