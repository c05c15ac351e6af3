/*
errors.go - Domain-level validation errors

PURPOSE:
  Client-facing errors raised before any state mutation. Objective-set
  validation is a security boundary: a client must not be able to omit an
  unfavorable check or sneak in an unregistered one.

NOT ERRORS:
  - Objectives failing their checks. That is a normal Result variant.
  - A claim that was not acquired. That is the cached-success path.

SEE ALSO:
  - ../ledger/errors.go: Storage-level errors
*/
package progression

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kubeasy-dev/progress-engine/ledger"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrChallengeNotFound is returned when a slug resolves to nothing.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrIncompleteSubmission is returned when a registered objective is
	// missing from the submitted key set.
	ErrIncompleteSubmission = errors.New("incomplete submission")

	// ErrUnknownObjective is returned when a submitted key is not registered
	// for the challenge.
	ErrUnknownObjective = errors.New("unknown objective")

	// ErrAlreadyCompleted is returned when the progress row is already
	// completed at submission time. Distinct from the post-reset retry path,
	// which succeeds with a zero award.
	ErrAlreadyCompleted = errors.New("challenge already completed")

	// ErrDuplicateObjective is returned when a submission carries the same
	// objective key twice.
	ErrDuplicateObjective = errors.New("duplicate objective in submission")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ChallengeNotFoundError carries the unknown slug.
type ChallengeNotFoundError struct {
	Slug string
}

func (e *ChallengeNotFoundError) Error() string {
	return fmt.Sprintf("challenge not found: %q", e.Slug)
}

func (e *ChallengeNotFoundError) Unwrap() error { return ErrChallengeNotFound }

// IncompleteSubmissionError lists the registered keys missing from the
// submission. Surfaced verbatim to the client.
type IncompleteSubmissionError struct {
	ChallengeSlug string
	MissingKeys   []string
}

func (e *IncompleteSubmissionError) Error() string {
	return fmt.Sprintf("incomplete submission for %q: missing objectives [%s]",
		e.ChallengeSlug, strings.Join(e.MissingKeys, ", "))
}

func (e *IncompleteSubmissionError) Unwrap() error { return ErrIncompleteSubmission }

// UnknownObjectiveError lists submitted keys that are not registered.
type UnknownObjectiveError struct {
	ChallengeSlug string
	UnknownKeys   []string
}

func (e *UnknownObjectiveError) Error() string {
	return fmt.Sprintf("unknown objectives for %q: [%s]",
		e.ChallengeSlug, strings.Join(e.UnknownKeys, ", "))
}

func (e *UnknownObjectiveError) Unwrap() error { return ErrUnknownObjective }

// AlreadyCompletedError carries the offending pair.
type AlreadyCompletedError struct {
	UserID        ledger.UserID
	ChallengeSlug string
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("user %s already completed %q", e.UserID, e.ChallengeSlug)
}

func (e *AlreadyCompletedError) Unwrap() error { return ErrAlreadyCompleted }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// rather than a storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrChallengeNotFound) ||
		errors.Is(err, ErrIncompleteSubmission) ||
		errors.Is(err, ErrUnknownObjective) ||
		errors.Is(err, ErrDuplicateObjective) ||
		errors.Is(err, ErrAlreadyCompleted)
}
