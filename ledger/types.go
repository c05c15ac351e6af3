/*
Package ledger provides the append-only XP event log at the core of the
progress engine.

PURPOSE:
  This package contains the types and algorithms for recording experience
  point (XP) awards. The ledger is the immutable source of truth: total XP,
  streaks and ranks are all derived by replaying its transactions. There is
  no authoritative "balance" column that can silently drift.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: An immutable ledger entry recording an XP award
  - Action: Why the XP was granted (completion, first challenge, streak)
  - UserTotal: The cached aggregate, reconstructible from transactions
  - CompletionClaim: The idempotency record serializing repeat completions

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never updated or deleted
  2. Idempotency: A (user, challenge) pair is rewarded at most once, ever
  3. Reconcilability: The cached total can always be recomputed; if the
     cache and the ledger disagree, the ledger wins
  4. Auditability: Every award carries an action, description and timestamp

SEE ALSO:
  - ledger.go: Append/query interface with invariant enforcement
  - store.go: Persistence interfaces
  - day.go: Calendar-day truncation used by streak uniqueness
*/
package ledger

import "time"

// =============================================================================
// ACTION - Why XP was granted
// =============================================================================

type Action string

const (
	// ActionChallengeCompleted is the base award for finishing a challenge.
	ActionChallengeCompleted Action = "challenge_completed"

	// ActionFirstChallenge is the one-time bonus for a user's first ever
	// completed challenge. At most one per user, for the account lifetime.
	ActionFirstChallenge Action = "first_challenge"

	// ActionDailyStreak marks activity for streak purposes. At most one
	// per user per calendar day (UTC).
	ActionDailyStreak Action = "daily_streak"
)

// Actions lists every valid action, in no particular order.
var Actions = []Action{ActionChallengeCompleted, ActionFirstChallenge, ActionDailyStreak}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionChallengeCompleted, ActionFirstChallenge, ActionDailyStreak:
		return true
	}
	return false
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type ChallengeID string
type TransactionID string

// =============================================================================
// TRANSACTION - Immutable XP award
// =============================================================================

// Transaction is a single XP award. Once written it is never modified.
//
// INVARIANTS:
//   - XPAmount > 0
//   - At most one ActionFirstChallenge transaction per user
//   - At most one ActionDailyStreak transaction per user per calendar day
type Transaction struct {
	ID          TransactionID
	UserID      UserID
	Action      Action
	XPAmount    int64
	ChallengeID ChallengeID // empty for awards not tied to a challenge
	Description string
	CreatedAt   time.Time
}

// Day returns the calendar day this transaction falls on.
func (t Transaction) Day() Day {
	return DayOf(t.CreatedAt)
}

// =============================================================================
// USER TOTAL - Cached aggregate
// =============================================================================

// UserTotal caches the sum of a user's transactions. It exists purely as a
// read optimization; at every quiescent point
// TotalXP == sum of Transaction.XPAmount for the user.
type UserTotal struct {
	UserID    UserID
	TotalXP   int64
	UpdatedAt time.Time
}

// =============================================================================
// COMPLETION CLAIM - Idempotency record
// =============================================================================

// CompletionClaim records that reward for a (user, challenge) pair has been
// settled. Created exactly once per pair for the lifetime of the account,
// regardless of progress resets. Its presence means "already settled",
// possibly as zero if a prior attempt failed mid-way after claiming.
type CompletionClaim struct {
	ID          string
	UserID      UserID
	ChallengeID ChallengeID
	CreatedAt   time.Time
}
