/*
scheduler.go - Periodic ledger reconciliation

PURPOSE:
  Runs the total reconciler on a fixed interval so cached user totals
  that drift from the append-only ledger (crash between writes, manual
  database surgery) get repaired without operator action.

DESIGN:
  - gocron scheduler with a single DurationJob
  - Runs once immediately on start, then every interval
  - Each run logs the corrections it applied; a clean run logs nothing
    above debug

USAGE:
  scheduler, err := NewReconcileScheduler(store, interval, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - progression/reconcile.go: The audit itself
  - handlers.go: TriggerReconcile endpoint (manual run)
*/
package api

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/kubeasy-dev/progress-engine/progression"
	"github.com/kubeasy-dev/progress-engine/store/sqlite"
)

// ReconcileScheduler periodically audits cached totals against the ledger.
type ReconcileScheduler struct {
	reconciler *progression.Reconciler
	interval   time.Duration
	log        *zap.Logger
	sched      gocron.Scheduler
}

// NewReconcileScheduler creates a scheduler running every interval.
func NewReconcileScheduler(store *sqlite.Store, interval time.Duration, log *zap.Logger) (*ReconcileScheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &ReconcileScheduler{
		reconciler: progression.NewReconciler(store, log),
		interval:   interval,
		log:        log,
		sched:      sched,
	}, nil
}

// Start begins periodic reconciliation. The first run fires immediately.
func (rs *ReconcileScheduler) Start() error {
	_, err := rs.sched.NewJob(
		gocron.DurationJob(rs.interval),
		gocron.NewTask(rs.runOnce),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}
	rs.sched.Start()
	rs.log.Info("reconcile scheduler started", zap.Duration("interval", rs.interval))
	return nil
}

// Stop shuts the scheduler down, waiting for a running job to finish.
func (rs *ReconcileScheduler) Stop() {
	if err := rs.sched.Shutdown(); err != nil {
		rs.log.Warn("scheduler shutdown", zap.Error(err))
	}
}

func (rs *ReconcileScheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	corrections, err := rs.reconciler.Run(ctx)
	if err != nil {
		rs.log.Error("reconcile run failed", zap.Error(err))
		return
	}
	if len(corrections) > 0 {
		rs.log.Warn("reconcile repaired drifted totals", zap.Int("count", len(corrections)))
	} else {
		rs.log.Debug("reconcile run clean")
	}
}
