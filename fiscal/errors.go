/*
errors.go - Centralized error types for the fiscal engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  API and store layers wrap these errors with additional context.

ERROR CATEGORIES:
  1. Not-found errors  - Missing period/subscription/obligation/client
  2. Conflict errors   - Duplicate calendar or subscription rows
  3. Transition errors - Illegal lifecycle mutations (locked period,
                         completing a completed obligation)

Store-level I/O failures are NOT represented here: they are wrapped with
fmt.Errorf("...: %w", err) and propagated unchanged, never swallowed.
"Nothing to generate" and "already exists" during generation are counted
outcomes, not errors.

USAGE:
  if errors.Is(err, fiscal.ErrDuplicatePeriod) { ... }
  var dup *fiscal.DuplicatePeriodError
  if errors.As(err, &dup) { ... }
*/
package fiscal

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPeriodNotFound is returned when a referenced fiscal period doesn't exist.
	ErrPeriodNotFound = errors.New("fiscal period not found")

	// ErrSubscriptionNotFound is returned when a referenced subscription doesn't exist.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrObligationNotFound is returned when a referenced obligation doesn't exist.
	ErrObligationNotFound = errors.New("obligation not found")

	// ErrClientNotFound is returned when a referenced client doesn't exist
	// in the directory projection.
	ErrClientNotFound = errors.New("client not found")

	// ErrDuplicatePeriod is returned when (modelCode, label, year) already exists.
	ErrDuplicatePeriod = errors.New("duplicate fiscal period")

	// ErrDuplicateSubscription is returned when an active subscription for the
	// same (client, model) pair already exists.
	ErrDuplicateSubscription = errors.New("duplicate subscription")

	// ErrPeriodLocked is returned when mutating a locked period.
	// Locked periods reject mutation regardless of caller privilege.
	ErrPeriodLocked = errors.New("period is locked")

	// ErrInvalidTransition is returned on illegal obligation lifecycle moves,
	// e.g. completing an already-completed obligation.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidPeriod is returned when a period window is malformed.
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicatePeriodError identifies the conflicting calendar key.
type DuplicatePeriodError struct {
	ModelCode string
	Label     string
	Year      int
}

func (e *DuplicatePeriodError) Error() string {
	return fmt.Sprintf("period %s %s/%d already exists", e.ModelCode, e.Label, e.Year)
}

func (e *DuplicatePeriodError) Unwrap() error { return ErrDuplicatePeriod }

// DuplicateSubscriptionError identifies the conflicting subscription pair.
type DuplicateSubscriptionError struct {
	ClientID  ClientID
	ModelCode string
}

func (e *DuplicateSubscriptionError) Error() string {
	return fmt.Sprintf("client %s already has an active subscription to model %s", e.ClientID, e.ModelCode)
}

func (e *DuplicateSubscriptionError) Unwrap() error { return ErrDuplicateSubscription }

// InvalidTransitionError describes a rejected obligation status move.
type InvalidTransitionError struct {
	ObligationID ObligationID
	From         ObligationStatus
	To           ObligationStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("obligation %s: cannot transition %s -> %s", e.ObligationID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPeriodNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrObligationNotFound) ||
		errors.Is(err, ErrClientNotFound)
}

// IsConflict reports whether the error indicates a uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicatePeriod) ||
		errors.Is(err, ErrDuplicateSubscription)
}

// IsInvalidTransition reports whether the error is a rejected lifecycle move.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrPeriodLocked)
}
