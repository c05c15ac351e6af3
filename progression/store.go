/*
store.go - Composite persistence interface for the orchestrator

PURPOSE:
  The completion workflow touches five kinds of state: ledger transactions,
  completion claims, the cached total, progress rows and submission rows.
  Store aggregates the interfaces so a single handle (and a single database
  transaction) can cover the whole write sequence.

TRANSACTIONS:
  WithTx runs fn against a transactional view of the store. The claim is
  taken OUTSIDE WithTx - it must remain settled even if the award sequence
  fails mid-way - while ledger append, total update and progress upsert run
  inside one transaction so the reconciliation invariant cannot be broken
  by a crash between steps.

IMPLEMENTATIONS:
  - store/sqlite: production, backed by sql.Tx
  - ledger/store (Memory): tests and development, snapshot + rollback
*/
package progression

import (
	"context"

	"github.com/kubeasy-dev/progress-engine/ledger"
)

// =============================================================================
// PROGRESS STORE
// =============================================================================

// ProgressStore persists the resettable per-(user, challenge) display state.
type ProgressStore interface {
	// Progress returns the row for the pair; found is false if absent.
	Progress(ctx context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) (p Progress, found bool, err error)

	// UpsertProgress inserts or replaces the row for (p.UserID, p.ChallengeID).
	UpsertProgress(ctx context.Context, p Progress) error

	// DeleteProgress removes the row. Missing rows are a no-op.
	DeleteProgress(ctx context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) error

	// ProgressByUser returns all progress rows for a user.
	ProgressByUser(ctx context.Context, userID ledger.UserID) ([]Progress, error)
}

// =============================================================================
// SUBMISSION STORE
// =============================================================================

// SubmissionStore persists the submission audit trail.
type SubmissionStore interface {
	// InsertSubmission records an attempt, pass or fail.
	InsertSubmission(ctx context.Context, s Submission) error

	// Submissions returns the attempts for a pair, oldest first.
	Submissions(ctx context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) ([]Submission, error)

	// DeleteSubmissions removes all attempts for a pair. Missing rows are a
	// no-op.
	DeleteSubmissions(ctx context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) error
}

// =============================================================================
// COMPOSITE STORE
// =============================================================================

// Store is everything the orchestrator needs from persistence.
type Store interface {
	ledger.Store
	ledger.ClaimStore
	ledger.TotalStore
	ProgressStore
	SubmissionStore

	// WithTx executes fn within a storage transaction. If fn returns an
	// error the transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
