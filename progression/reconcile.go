/*
reconcile.go - Cached total reconciliation

PURPOSE:
  UserTotal is a cache over the ledger. The write path keeps the two in
  step inside one storage transaction, but a cache row can still drift
  (operator intervention, a historical bug, a restore from partial backup).
  The reconciler recomputes each user's total from the ledger and corrects
  the cache. The ledger always wins.

SCHEDULING:
  api.Scheduler runs this periodically; an admin endpoint triggers it on
  demand. Running it concurrently with live traffic is safe: each per-user
  correction is a single SetTotal, and a stale correction is itself
  corrected on the next run.
*/
package progression

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kubeasy-dev/progress-engine/ledger"
)

// Correction records one reconciled user.
type Correction struct {
	UserID  ledger.UserID `json:"userId"`
	Cached  int64         `json:"cached"`
	Actual  int64         `json:"actual"`
}

// Reconciler recomputes cached totals from the ledger.
type Reconciler struct {
	Store Store
	Log   *zap.Logger
	Now   func() time.Time
}

func NewReconciler(store Store, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{Store: store, Log: log, Now: time.Now}
}

// Run reconciles every user with ledger activity and returns the
// corrections applied. An empty slice means no drift was found.
func (r *Reconciler) Run(ctx context.Context) ([]Correction, error) {
	userIDs, err := r.Store.UserIDs(ctx)
	if err != nil {
		return nil, err
	}

	var corrections []Correction
	for _, userID := range userIDs {
		c, drifted, err := r.reconcileUser(ctx, userID)
		if err != nil {
			return corrections, err
		}
		if drifted {
			corrections = append(corrections, c)
		}
	}
	return corrections, nil
}

func (r *Reconciler) reconcileUser(ctx context.Context, userID ledger.UserID) (Correction, bool, error) {
	actual, err := r.Store.SumFor(ctx, userID)
	if err != nil {
		return Correction{}, false, err
	}
	total, err := r.Store.Total(ctx, userID)
	if err != nil {
		return Correction{}, false, err
	}
	if total.TotalXP == actual {
		return Correction{}, false, nil
	}

	if err := r.Store.SetTotal(ctx, userID, actual, r.Now()); err != nil {
		return Correction{}, false, err
	}

	r.Log.Warn("corrected drifted xp total",
		zap.String("user_id", string(userID)),
		zap.Int64("cached", total.TotalXP),
		zap.Int64("actual", actual))

	return Correction{UserID: userID, Cached: total.TotalXP, Actual: actual}, true, nil
}
