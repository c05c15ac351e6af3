/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All storage-level error types in one place for consistency and
  discoverability. Domain packages wrap these errors with additional
  context.

ERROR CATEGORIES:
  1. Invariant errors - uniqueness violations on append
  2. Transient errors - retryable storage failures (busy, locked, timeout)
  3. Permanent errors - corruption or unrelated constraint violations

USAGE:
  Callers branch with errors.Is:

    if errors.Is(err, ledger.ErrTransientStorage) {
        // retry with backoff
    }

SEE ALSO:
  - retry.go: Policy that consults IsRetryable
  - ../progression/errors.go: Domain-level validation errors
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateFirstChallenge is returned when a batch would create a
	// second first_challenge transaction for a user.
	ErrDuplicateFirstChallenge = errors.New("duplicate first_challenge transaction")

	// ErrDuplicateDailyStreak is returned when a batch would create a second
	// daily_streak transaction for a user on the same calendar day.
	ErrDuplicateDailyStreak = errors.New("duplicate daily_streak transaction for day")

	// ErrInvalidTransaction is returned when a transaction fails basic
	// validation (unknown action, non-positive amount, missing user).
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrTransientStorage indicates a storage failure that may succeed on
	// retry (lock contention, serialization conflict, timeout).
	ErrTransientStorage = errors.New("transient storage failure")

	// ErrPermanentStorage indicates a storage failure that will not succeed
	// on retry (corruption, unrelated constraint violation).
	ErrPermanentStorage = errors.New("permanent storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateStreakError reports which day already holds a daily_streak
// transaction for the user.
type DuplicateStreakError struct {
	UserID UserID
	Day    Day
}

func (e *DuplicateStreakError) Error() string {
	return fmt.Sprintf("daily_streak already recorded for %s on %s", e.UserID, e.Day)
}

func (e *DuplicateStreakError) Unwrap() error { return ErrDuplicateDailyStreak }

// InvalidTransactionError reports why a transaction failed validation.
type InvalidTransactionError struct {
	Index  int // position in the batch
	Reason string
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("invalid transaction at index %d: %s", e.Index, e.Reason)
}

func (e *InvalidTransactionError) Unwrap() error { return ErrInvalidTransaction }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStorage)
}

// IsInvariantViolation returns true for uniqueness violations on append.
// These are never retried: the batch is rejected as a whole.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrDuplicateFirstChallenge) ||
		errors.Is(err, ErrDuplicateDailyStreak)
}
