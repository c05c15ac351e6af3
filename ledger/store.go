/*
store.go - Persistence interfaces for the XP ledger

PURPOSE:
  Defines the interface between the engine and the database. The Store
  handles persistence while maintaining append-only semantics. Different
  implementations can use SQLite or in-memory storage.

APPEND-ONLY CONTRACT:
  - AppendBatch(): Atomic multi-transaction write
  - NO Update() or Delete() methods exist
  The only rows that are ever deleted live outside this interface
  (progress and submission records, which are ephemeral relative to
  the ledger).

ATOMIC BATCHES:
  AppendBatch() ensures all-or-nothing semantics. A completion writes 1-3
  transactions (completion, optional first-challenge bonus, optional streak
  marker); either all are written or none are. If any row violates the
  first_challenge or daily_streak uniqueness invariants, the whole batch
  is rejected.

CLAIMS:
  ClaimStore.Claim is the system's single serialization primitive. It is a
  bare insert attempt against a unique (user_id, challenge_id) constraint;
  the store's constraint enforcement is the atomic test-and-set. Exactly one
  of N concurrent claims for a pair succeeds.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite store
  - ledger/store: In-memory store for tests and development

SEE ALSO:
  - ledger.go: Higher-level interface using Store
  - ../progression/store.go: Composite store used by the orchestrator
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Transaction persistence (append-only)
// =============================================================================

// Store handles persistence of XP transactions.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// AppendBatch persists transactions atomically. Either all succeed or
	// none do. Returns ErrDuplicateFirstChallenge or ErrDuplicateDailyStreak
	// if any row violates those invariants.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns all transactions for a user, ordered by CreatedAt.
	Transactions(ctx context.Context, userID UserID) ([]Transaction, error)

	// TransactionsSince returns a user's transactions for one action with
	// CreatedAt >= since, ordered by CreatedAt.
	TransactionsSince(ctx context.Context, userID UserID, action Action, since time.Time) ([]Transaction, error)

	// SumFor returns the sum of XPAmount over all of a user's transactions.
	// This is the authoritative total; UserTotal merely caches it.
	SumFor(ctx context.Context, userID UserID) (int64, error)

	// UserIDs returns every user with at least one transaction.
	// Used by the reconciliation job.
	UserIDs(ctx context.Context) ([]UserID, error)
}

// =============================================================================
// CLAIM STORE - Idempotency guard
// =============================================================================

// ClaimStore persists completion claims.
//
// Claim is a single insert attempt against the unique (user, challenge)
// constraint. acquired == false means a prior attempt already settled this
// pair; the caller must treat that as "already settled", not as an error.
// A failed claim is terminal and is never retried.
type ClaimStore interface {
	Claim(ctx context.Context, claim CompletionClaim) (acquired bool, err error)

	// HasClaim reports whether a claim exists for the pair. Read-only.
	HasClaim(ctx context.Context, userID UserID, challengeID ChallengeID) (bool, error)
}

// =============================================================================
// TOTAL STORE - Cached aggregate
// =============================================================================

// TotalStore persists the cached per-user XP total.
type TotalStore interface {
	// Total returns the cached total for a user. A user with no row has
	// TotalXP 0 and a zero UpdatedAt.
	Total(ctx context.Context, userID UserID) (UserTotal, error)

	// AddToTotal adds delta to the cached total, creating the row if absent.
	// Returns the new total.
	AddToTotal(ctx context.Context, userID UserID, delta int64, now time.Time) (int64, error)

	// SetTotal overwrites the cached total. Reserved for the reconciliation
	// job; normal flow only ever adds.
	SetTotal(ctx context.Context, userID UserID, total int64, now time.Time) error
}
