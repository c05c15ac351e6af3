/*
ledger.go - Append-only XP transaction log

PURPOSE:
  The Ledger is the immutable source of truth for all XP. Every award is
  recorded here. Totals, streaks and ranks are always computed by replaying
  transactions - the cached total is a read optimization, never an
  authority.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. AT MOST ONE first_challenge transaction per user
  4. AT MOST ONE daily_streak transaction per user per calendar day

WHY APPEND-ONLY?
  - Audit trail: you can always explain how a total got to its value
  - Reconcilability: the cached aggregate can be recomputed at any time
  - Correctness: no partial updates corrupting state

VALIDATION LAYERS:
  The Ledger validates batches before handing them to the Store (shape
  checks plus within-batch duplicate detection). The Store's own unique
  constraints are the final authority for conflicts against existing rows,
  so races between two batches cannot slip through.

SEE ALSO:
  - store.go: Low-level persistence interface
  - ../progression: Domain calculators and the completion orchestrator
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// LEDGER - Validated access to the transaction log
// =============================================================================

type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// AppendBatch validates and atomically appends a batch of transactions.
// Either every transaction is written or none are.
func (l *Ledger) AppendBatch(ctx context.Context, txs []Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	if err := ValidateBatch(txs); err != nil {
		return err
	}
	return l.store.AppendBatch(ctx, txs)
}

// Transactions returns a user's full history, oldest first.
func (l *Ledger) Transactions(ctx context.Context, userID UserID) ([]Transaction, error) {
	return l.store.Transactions(ctx, userID)
}

// TransactionsSince returns a user's transactions for one action from a
// point in time, oldest first.
func (l *Ledger) TransactionsSince(ctx context.Context, userID UserID, action Action, since time.Time) ([]Transaction, error) {
	return l.store.TransactionsSince(ctx, userID, action, since)
}

// SumFor computes the authoritative total from the log itself.
func (l *Ledger) SumFor(ctx context.Context, userID UserID) (int64, error) {
	return l.store.SumFor(ctx, userID)
}

// =============================================================================
// BATCH VALIDATION
// =============================================================================

// ValidateBatch checks transaction shape and within-batch uniqueness.
// Conflicts with already-persisted rows are detected by the store's
// constraints, not here.
func ValidateBatch(txs []Transaction) error {
	firstSeen := false
	streakDays := make(map[UserID]map[Day]bool)

	for i, tx := range txs {
		if err := validateOne(i, tx); err != nil {
			return err
		}

		switch tx.Action {
		case ActionFirstChallenge:
			if firstSeen {
				return ErrDuplicateFirstChallenge
			}
			firstSeen = true
		case ActionDailyStreak:
			day := tx.Day()
			if streakDays[tx.UserID] == nil {
				streakDays[tx.UserID] = make(map[Day]bool)
			}
			if streakDays[tx.UserID][day] {
				return &DuplicateStreakError{UserID: tx.UserID, Day: day}
			}
			streakDays[tx.UserID][day] = true
		}
	}
	return nil
}

func validateOne(i int, tx Transaction) error {
	switch {
	case tx.ID == "":
		return &InvalidTransactionError{Index: i, Reason: "missing id"}
	case tx.UserID == "":
		return &InvalidTransactionError{Index: i, Reason: "missing user id"}
	case !tx.Action.Valid():
		return &InvalidTransactionError{Index: i, Reason: fmt.Sprintf("unknown action %q", tx.Action)}
	case tx.XPAmount <= 0:
		return &InvalidTransactionError{Index: i, Reason: fmt.Sprintf("non-positive amount %d", tx.XPAmount)}
	case tx.CreatedAt.IsZero():
		return &InvalidTransactionError{Index: i, Reason: "missing created_at"}
	}
	return nil
}
