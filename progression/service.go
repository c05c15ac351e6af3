/*
service.go - Completion orchestrator

PURPOSE:
  The stateful workflow behind a challenge submission: validate against the
  registered objective catalog, record the attempt, settle the reward at
  most once, write the ledger batch, update the cached total, upsert
  progress, and notify.

STATE MACHINE (per user+challenge):
  not_started -> in_progress -> completed
  completed is terminal except via Reset, which returns the pair to
  not_started for display purposes only. Reward settlement is governed by
  the completion claim and survives resets.

ORDERING GUARANTEE:
  claim -> ledger append -> total update -> progress upsert.
  This order is never relaxed. The claim commits on its own: once acquired,
  the pair is settled even if a later step fails (the reconciliation job
  and the retry policy cover the gap). Ledger append, total update and
  progress upsert run inside one storage transaction, retried with bounded
  backoff on transient failures.

THE RESET/RETRY SUBTLETY:
  When a claim is not acquired, the pair was settled by a previous attempt
  (typically before a reset). The submission still validates, still records
  an attempt, awards zero XP - and still upserts progress to completed.
  Skipping that upsert is the historical defect this design exists to fix:
  progress would stay not_started forever after a post-reset retry.

SEE ALSO:
  - store.go: Composite persistence interface
  - gain.go, streak.go, rank.go: Pure derivations
  - notify.go: Best-effort event delivery
*/
package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubeasy-dev/progress-engine/ledger"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service orchestrates completions, resets and streak recording.
type Service struct {
	store    Store
	catalog  Catalog
	notifier Notifier
	retry    ledger.RetryPolicy
	log      *zap.Logger

	now   func() time.Time
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the event sink. Default: none.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithRetryPolicy overrides the write-path retry policy.
func WithRetryPolicy(p ledger.RetryPolicy) Option { return func(s *Service) { s.retry = p } }

// WithLogger sets the structured logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithClock overrides the time source. Tests use this to pin "today".
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService constructs the orchestrator. The store and catalog are
// required; everything else has defaults.
func NewService(store Store, catalog Catalog, opts ...Option) *Service {
	s := &Service{
		store:   store,
		catalog: catalog,
		retry:   ledger.DefaultRetryPolicy(),
		log:     zap.NewNop(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit processes a challenge submission end to end.
//
// Error cases (see errors.go) surface before any reward state changes.
// Objectives failing their checks is NOT an error: it returns a Result with
// Success=false and the failed objective keys, after recording the attempt.
func (s *Service) Submit(ctx context.Context, userID ledger.UserID, challengeSlug string, results []ObjectiveResult) (Result, error) {
	now := s.now()

	// 1. Resolve challenge and registered objectives.
	challenge, objectives, err := s.catalog.ChallengeBySlug(ctx, challengeSlug)
	if err != nil {
		return Result{}, err
	}

	// 2. The submitted key set must exactly equal the registered key set.
	// This is a security boundary: a client must not omit unfavorable checks.
	if err := validateObjectiveSet(challengeSlug, objectives, results); err != nil {
		return Result{}, err
	}

	// 3. Record the attempt unconditionally, pass or fail. Submissions are
	// an audit trail independent of reward state.
	failed := failedKeys(results)
	sub := Submission{
		ID:          s.newID(),
		UserID:      userID,
		ChallengeID: challenge.ID,
		Passed:      len(failed) == 0,
		Results:     results,
		CreatedAt:   now,
	}
	if err := s.store.InsertSubmission(ctx, sub); err != nil {
		return Result{}, err
	}

	s.notifyObjectives(ctx, userID, challengeSlug, results, now)

	// 4. Failed objectives: normal result variant, no ledger interaction.
	if len(failed) > 0 {
		return Result{Success: false, FailedObjectives: failed}, nil
	}

	// 5. A progress row already marked completed rejects a new submission.
	prior, havePrior, err := s.store.Progress(ctx, userID, challenge.ID)
	if err != nil {
		return Result{}, err
	}
	if havePrior && prior.Status == StatusCompleted {
		return Result{}, &AlreadyCompletedError{UserID: userID, ChallengeSlug: challengeSlug}
	}

	// 6. Pre-award reads: both evaluated before this completion's own
	// transactions are written.
	isFirst, err := s.isFirstChallenge(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	streak, err := CurrentStreak(ctx, s.store, userID, now)
	if err != nil {
		return Result{}, err
	}
	markedToday, err := s.streakMarkedToday(ctx, userID, now)
	if err != nil {
		return Result{}, err
	}

	// 7. The idempotency claim. The unique constraint is the only
	// serialization point; of N concurrent submissions exactly one acquires.
	acquired, err := s.store.Claim(ctx, ledger.CompletionClaim{
		ID:          s.newID(),
		UserID:      userID,
		ChallengeID: challenge.ID,
		CreatedAt:   now,
	})
	if err != nil {
		return Result{}, err
	}

	if !acquired {
		return s.settleCached(ctx, userID, challenge, challengeSlug, prior, havePrior, streak, now)
	}

	// 8. Compute the award from pre-award values. The streak bonus pays out
	// only when it can be recorded: a live streak with no marker yet today.
	// Otherwise the bonus for the day was already settled.
	effectiveStreak := streak
	if markedToday || streak < 1 {
		effectiveStreak = 0
	}
	gain := Gain(challenge.Difficulty, isFirst, effectiveStreak)

	// 9-11. Ledger batch, cached total, progress upsert: one storage
	// transaction, retried on transient failures. The batch total and the
	// aggregate delta are the same number, keeping the cache reconcilable.
	batch := s.buildBatch(userID, challenge, gain, effectiveStreak, now)
	var newTotal int64
	err = s.retry.Do(ctx, func() error {
		return s.store.WithTx(ctx, func(tx Store) error {
			if err := ledger.New(tx).AppendBatch(ctx, batch); err != nil {
				return err
			}
			total, err := tx.AddToTotal(ctx, userID, gain.Total, now)
			if err != nil {
				return err
			}
			newTotal = total
			return tx.UpsertProgress(ctx, s.completedProgress(userID, challenge.ID, prior, havePrior, now))
		})
	})
	if err != nil {
		// Loud failure: the claim is settled but the award did not commit.
		// The reconciliation job will not invent the missing transactions,
		// so this must surface, not silently degrade.
		s.log.Error("award write sequence failed after claim",
			zap.String("user_id", string(userID)),
			zap.String("challenge", challengeSlug),
			zap.Error(err))
		return Result{}, err
	}

	// 12. Rank boundary detection.
	rankBefore := RankFor(newTotal - gain.Total)
	rankAfter := RankFor(newTotal)

	// 13. Best-effort completion event.
	s.notify(ctx, Event{
		UserID:        userID,
		ChallengeSlug: challengeSlug,
		Passed:        true,
		Completed:     true,
		XPAwarded:     gain.Total,
		Timestamp:     now,
	})

	s.log.Info("challenge completed",
		zap.String("user_id", string(userID)),
		zap.String("challenge", challengeSlug),
		zap.Int64("xp_awarded", gain.Total),
		zap.Int64("total_xp", newTotal),
		zap.Bool("first_challenge", isFirst),
		zap.Int("streak", streak))

	return Result{
		Success:        true,
		XPAwarded:      gain.Total,
		TotalXP:        newTotal,
		Rank:           rankAfter,
		RankUp:         rankAfter.MinXP > rankBefore.MinXP,
		FirstChallenge: isFirst,
		StreakBonus:    gain.StreakBonus,
		CurrentStreak:  streak,
		Breakdown:      gain,
	}, nil
}

// settleCached handles the not-acquired branch: the pair was settled by a
// previous attempt (e.g. before a reset). No XP moves, but progress is
// still upserted to completed.
func (s *Service) settleCached(ctx context.Context, userID ledger.UserID, challenge Challenge, slug string, prior Progress, havePrior bool, streak int, now time.Time) (Result, error) {
	err := s.retry.Do(ctx, func() error {
		return s.store.UpsertProgress(ctx, s.completedProgress(userID, challenge.ID, prior, havePrior, now))
	})
	if err != nil {
		return Result{}, err
	}

	total, err := s.store.Total(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	s.notify(ctx, Event{
		UserID:        userID,
		ChallengeSlug: slug,
		Passed:        true,
		Completed:     true,
		Timestamp:     now,
	})

	return Result{
		Success:       true,
		XPAwarded:     0,
		Cached:        true,
		TotalXP:       total.TotalXP,
		Rank:          RankFor(total.TotalXP),
		CurrentStreak: streak,
	}, nil
}

// =============================================================================
// START
// =============================================================================

// Start marks a challenge as in progress for display purposes. Starting an
// already-completed challenge is rejected; starting twice is a no-op.
func (s *Service) Start(ctx context.Context, userID ledger.UserID, challengeSlug string) (Progress, error) {
	challenge, _, err := s.catalog.ChallengeBySlug(ctx, challengeSlug)
	if err != nil {
		return Progress{}, err
	}

	prior, found, err := s.store.Progress(ctx, userID, challenge.ID)
	if err != nil {
		return Progress{}, err
	}
	if found {
		if prior.Status == StatusCompleted {
			return Progress{}, &AlreadyCompletedError{UserID: userID, ChallengeSlug: challengeSlug}
		}
		return prior, nil
	}

	p := Progress{
		ID:          s.newID(),
		UserID:      userID,
		ChallengeID: challenge.ID,
		Status:      StatusInProgress,
		StartedAt:   s.now(),
	}
	if err := s.store.UpsertProgress(ctx, p); err != nil {
		return Progress{}, err
	}
	return p, nil
}

// =============================================================================
// RESET
// =============================================================================

// Reset deletes the progress and submission rows for a pair, returning it
// to not_started for display purposes. The ledger and the completion claim
// are untouched: a subsequent identical submission passes validation, hits
// the already-settled branch, awards zero XP, and marks progress completed
// again. Missing rows are a no-op, not an error.
func (s *Service) Reset(ctx context.Context, userID ledger.UserID, challengeSlug string) error {
	challenge, _, err := s.catalog.ChallengeBySlug(ctx, challengeSlug)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.DeleteProgress(ctx, userID, challenge.ID); err != nil {
			return err
		}
		return tx.DeleteSubmissions(ctx, userID, challenge.ID)
	})
	if err != nil {
		return err
	}

	s.log.Info("progress reset",
		zap.String("user_id", string(userID)),
		zap.String("challenge", challengeSlug))
	return nil
}

// =============================================================================
// DAILY STREAK RECORDING
// =============================================================================

// RecordDailyStreak marks today as an active day for the user, seeding or
// extending the streak chain. The platform calls this on the user's first
// qualifying activity of a day. Idempotent per calendar day: if today is
// already marked the call is a no-op and returns the current streak.
func (s *Service) RecordDailyStreak(ctx context.Context, userID ledger.UserID) (int, error) {
	now := s.now()

	marked, err := s.streakMarkedToday(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	streak, err := CurrentStreak(ctx, s.store, userID, now)
	if err != nil {
		return 0, err
	}
	if marked {
		return streak, nil
	}

	newStreak := streak + 1
	amount := StreakBonusPerDay * int64(newStreak)
	tx := ledger.Transaction{
		ID:          ledger.TransactionID(s.newID()),
		UserID:      userID,
		Action:      ledger.ActionDailyStreak,
		XPAmount:    amount,
		Description: fmt.Sprintf("Daily streak: %d day(s)", newStreak),
		CreatedAt:   now,
	}

	err = s.retry.Do(ctx, func() error {
		return s.store.WithTx(ctx, func(txs Store) error {
			if err := ledger.New(txs).AppendBatch(ctx, []ledger.Transaction{tx}); err != nil {
				return err
			}
			_, err := txs.AddToTotal(ctx, userID, amount, now)
			return err
		})
	})
	if err != nil {
		// A concurrent call won the day marker; that is the no-op case.
		if ledger.IsInvariantViolation(err) {
			return CurrentStreak(ctx, s.store, userID, now)
		}
		return 0, err
	}
	return newStreak, nil
}

// =============================================================================
// READ API
// =============================================================================

// Overview summarizes a user's standing from the cached total.
type Overview struct {
	UserID        ledger.UserID `json:"userId"`
	TotalXP       int64         `json:"totalXp"`
	Rank          Rank          `json:"rank"`
	CurrentStreak int           `json:"currentStreak"`
}

// UserOverview returns total, rank and streak for a user.
func (s *Service) UserOverview(ctx context.Context, userID ledger.UserID) (Overview, error) {
	total, err := s.store.Total(ctx, userID)
	if err != nil {
		return Overview{}, err
	}
	streak, err := CurrentStreak(ctx, s.store, userID, s.now())
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		UserID:        userID,
		TotalXP:       total.TotalXP,
		Rank:          RankFor(total.TotalXP),
		CurrentStreak: streak,
	}, nil
}

// History returns a user's full transaction log, oldest first.
func (s *Service) History(ctx context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	return s.store.Transactions(ctx, userID)
}

// UserProgress returns all progress rows for a user.
func (s *Service) UserProgress(ctx context.Context, userID ledger.UserID) ([]Progress, error) {
	return s.store.ProgressByUser(ctx, userID)
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *Service) isFirstChallenge(ctx context.Context, userID ledger.UserID) (bool, error) {
	// The first_challenge transaction itself is the reset-proof marker:
	// progress rows can be deleted, the ledger cannot.
	txs, err := s.store.TransactionsSince(ctx, userID, ledger.ActionFirstChallenge, time.Time{})
	if err != nil {
		return false, err
	}
	return len(txs) == 0, nil
}

func (s *Service) streakMarkedToday(ctx context.Context, userID ledger.UserID, now time.Time) (bool, error) {
	txs, err := s.store.TransactionsSince(ctx, userID, ledger.ActionDailyStreak, ledger.DayOf(now).Time())
	if err != nil {
		return false, err
	}
	return len(txs) > 0, nil
}

func (s *Service) buildBatch(userID ledger.UserID, challenge Challenge, gain GainBreakdown, effectiveStreak int, now time.Time) []ledger.Transaction {
	batch := []ledger.Transaction{{
		ID:          ledger.TransactionID(s.newID()),
		UserID:      userID,
		Action:      ledger.ActionChallengeCompleted,
		XPAmount:    gain.BaseXP,
		ChallengeID: challenge.ID,
		Description: fmt.Sprintf("Completed challenge: %s", challenge.Title),
		CreatedAt:   now,
	}}
	if gain.FirstChallengeBonus > 0 {
		batch = append(batch, ledger.Transaction{
			ID:          ledger.TransactionID(s.newID()),
			UserID:      userID,
			Action:      ledger.ActionFirstChallenge,
			XPAmount:    gain.FirstChallengeBonus,
			ChallengeID: challenge.ID,
			Description: "First challenge completed",
			CreatedAt:   now,
		})
	}
	if effectiveStreak >= 1 {
		batch = append(batch, ledger.Transaction{
			ID:          ledger.TransactionID(s.newID()),
			UserID:      userID,
			Action:      ledger.ActionDailyStreak,
			XPAmount:    gain.StreakBonus,
			ChallengeID: challenge.ID,
			Description: fmt.Sprintf("Daily streak: %d day(s)", effectiveStreak),
			CreatedAt:   now,
		})
	}
	return batch
}

func (s *Service) completedProgress(userID ledger.UserID, challengeID ledger.ChallengeID, prior Progress, havePrior bool, now time.Time) Progress {
	completedAt := now
	p := Progress{
		ID:          s.newID(),
		UserID:      userID,
		ChallengeID: challengeID,
		Status:      StatusCompleted,
		StartedAt:   now,
		CompletedAt: &completedAt,
	}
	if havePrior {
		p.ID = prior.ID
		p.StartedAt = prior.StartedAt
		p.DailyLimitReached = prior.DailyLimitReached
	}
	return p
}

func (s *Service) notifyObjectives(ctx context.Context, userID ledger.UserID, slug string, results []ObjectiveResult, now time.Time) {
	for _, r := range results {
		s.notify(ctx, Event{
			UserID:        userID,
			ChallengeSlug: slug,
			ObjectiveKey:  r.ObjectiveKey,
			Passed:        r.Passed,
			Timestamp:     now,
		})
	}
}

func (s *Service) notify(ctx context.Context, e Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, e)
}

// =============================================================================
// SUBMISSION VALIDATION
// =============================================================================

// validateObjectiveSet enforces exact key-set equality between submission
// and registration.
func validateObjectiveSet(slug string, registered []Objective, results []ObjectiveResult) error {
	registeredKeys := make(map[string]bool, len(registered))
	for _, o := range registered {
		registeredKeys[o.Key] = true
	}

	submitted := make(map[string]bool, len(results))
	var unknown []string
	for _, r := range results {
		if submitted[r.ObjectiveKey] {
			return fmt.Errorf("%w: %q", ErrDuplicateObjective, r.ObjectiveKey)
		}
		submitted[r.ObjectiveKey] = true
		if !registeredKeys[r.ObjectiveKey] {
			unknown = append(unknown, r.ObjectiveKey)
		}
	}

	var missing []string
	for _, o := range registered {
		if !submitted[o.Key] {
			missing = append(missing, o.Key)
		}
	}

	if len(missing) > 0 {
		return &IncompleteSubmissionError{ChallengeSlug: slug, MissingKeys: missing}
	}
	if len(unknown) > 0 {
		return &UnknownObjectiveError{ChallengeSlug: slug, UnknownKeys: unknown}
	}
	return nil
}

func failedKeys(results []ObjectiveResult) []string {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r.ObjectiveKey)
		}
	}
	return failed
}
