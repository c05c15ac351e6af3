package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeasy-dev/progress-engine/ledger"
	"github.com/kubeasy-dev/progress-engine/progression"
	"github.com/kubeasy-dev/progress-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testTime = time.Date(2026, time.March, 10, 14, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func tx(id, userID string, action ledger.Action, amount int64, at time.Time) ledger.Transaction {
	return ledger.Transaction{
		ID:          ledger.TransactionID(id),
		UserID:      ledger.UserID(userID),
		Action:      action,
		XPAmount:    amount,
		ChallengeID: "chal-1",
		Description: "test",
		CreatedAt:   at,
	}
}

// =============================================================================
// LEDGER TESTS
// =============================================================================

func TestAppendBatch_Roundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	batch := []ledger.Transaction{
		tx("tx-1", "user-1", ledger.ActionChallengeCompleted, 100, testTime),
		tx("tx-2", "user-1", ledger.ActionFirstChallenge, 50, testTime),
	}
	require.NoError(t, store.AppendBatch(ctx, batch))

	got, err := store.Transactions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ledger.TransactionID("tx-1"), got[0].ID)
	assert.Equal(t, ledger.ActionChallengeCompleted, got[0].Action)
	assert.Equal(t, int64(100), got[0].XPAmount)
	assert.Equal(t, ledger.ChallengeID("chal-1"), got[0].ChallengeID)
	assert.True(t, got[0].CreatedAt.Equal(testTime))

	sum, err := store.SumFor(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), sum)
}

func TestAppendBatch_SecondFirstChallenge_RejectedByIndex(t *testing.T) {
	// GIVEN: A persisted first_challenge row for the user
	// WHEN: A later batch tries to add another
	// THEN: The partial unique index rejects it even though batch-level
	//       validation cannot see the earlier row

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendBatch(ctx, []ledger.Transaction{
		tx("tx-1", "user-1", ledger.ActionFirstChallenge, 50, testTime),
	}))

	err := store.AppendBatch(ctx, []ledger.Transaction{
		tx("tx-2", "user-1", ledger.ActionFirstChallenge, 50, testTime.Add(time.Hour)),
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateFirstChallenge)

	// Other users are unaffected
	require.NoError(t, store.AppendBatch(ctx, []ledger.Transaction{
		tx("tx-3", "user-2", ledger.ActionFirstChallenge, 50, testTime),
	}))
}

func TestAppendBatch_SecondStreakSameDay_RejectedByIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendBatch(ctx, []ledger.Transaction{
		tx("tx-1", "user-1", ledger.ActionDailyStreak, 10, testTime),
	}))

	// Same UTC day, different time of day
	err := store.AppendBatch(ctx, []ledger.Transaction{
		tx("tx-2", "user-1", ledger.ActionDailyStreak, 10, testTime.Add(6*time.Hour)),
	})
	require.Error(t, err)
	var dupErr *ledger.DuplicateStreakError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, ledger.UserID("user-1"), dupErr.UserID)

	// Next day is fine
	require.NoError(t, store.AppendBatch(ctx, []ledger.Transaction{
		tx("tx-3", "user-1", ledger.ActionDailyStreak, 20, testTime.AddDate(0, 0, 1)),
	}))
}

func TestAppendBatch_Atomic_FailureLeavesNothing(t *testing.T) {
	// GIVEN: A batch whose last row violates an invariant
	// WHEN: Appending
	// THEN: None of the batch's rows persist

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendBatch(ctx, []ledger.Transaction{
		tx("tx-1", "user-1", ledger.ActionFirstChallenge, 50, testTime),
	}))

	err := store.AppendBatch(ctx, []ledger.Transaction{
		tx("tx-2", "user-1", ledger.ActionChallengeCompleted, 100, testTime.Add(time.Hour)),
		tx("tx-3", "user-1", ledger.ActionFirstChallenge, 50, testTime.Add(time.Hour)),
	})
	require.Error(t, err)

	got, err := store.Transactions(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, got, 1, "the failed batch must leave no partial writes")
}

func TestTransactionsSince_FiltersByActionAndTime(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendBatch(ctx, []ledger.Transaction{
		tx("tx-1", "user-1", ledger.ActionDailyStreak, 10, testTime.AddDate(0, 0, -5)),
		tx("tx-2", "user-1", ledger.ActionDailyStreak, 10, testTime),
		tx("tx-3", "user-1", ledger.ActionChallengeCompleted, 100, testTime),
	}))

	got, err := store.TransactionsSince(ctx, "user-1", ledger.ActionDailyStreak, testTime.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ledger.TransactionID("tx-2"), got[0].ID)
}

func TestUserIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, user := range []string{"user-b", "user-a", "user-b"} {
		require.NoError(t, store.AppendBatch(ctx, []ledger.Transaction{
			tx(fmt.Sprintf("tx-%d", i), user, ledger.ActionChallengeCompleted, 100, testTime.Add(time.Duration(i)*time.Minute)),
		}))
	}

	ids, err := store.UserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ledger.UserID{"user-a", "user-b"}, ids)
}

// =============================================================================
// CLAIM TESTS
// =============================================================================

func TestClaim_FirstAcquires_SecondDoesNot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	claim := ledger.CompletionClaim{ID: "claim-1", UserID: "user-1", ChallengeID: "chal-1", CreatedAt: testTime}
	acquired, err := store.Claim(ctx, claim)
	require.NoError(t, err)
	assert.True(t, acquired)

	// Same pair, different claim ID: conflict is not an error
	claim2 := ledger.CompletionClaim{ID: "claim-2", UserID: "user-1", ChallengeID: "chal-1", CreatedAt: testTime}
	acquired, err = store.Claim(ctx, claim2)
	require.NoError(t, err)
	assert.False(t, acquired)

	has, err := store.HasClaim(ctx, "user-1", "chal-1")
	require.NoError(t, err)
	assert.True(t, has)

	// Other challenge for the same user is independent
	claim3 := ledger.CompletionClaim{ID: "claim-3", UserID: "user-1", ChallengeID: "chal-2", CreatedAt: testTime}
	acquired, err = store.Claim(ctx, claim3)
	require.NoError(t, err)
	assert.True(t, acquired)
}

// =============================================================================
// TOTAL TESTS
// =============================================================================

func TestTotals_UpsertSemantics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Missing row reads as zero
	total, err := store.Total(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), total.TotalXP)

	newTotal, err := store.AddToTotal(ctx, "user-1", 100, testTime)
	require.NoError(t, err)
	assert.Equal(t, int64(100), newTotal)

	newTotal, err = store.AddToTotal(ctx, "user-1", 50, testTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(150), newTotal)

	require.NoError(t, store.SetTotal(ctx, "user-1", 75, testTime.Add(2*time.Hour)))
	total, err = store.Total(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(75), total.TotalXP)
}

// =============================================================================
// PROGRESS TESTS
// =============================================================================

func TestProgress_UpsertAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.Progress(ctx, "user-1", "chal-1")
	require.NoError(t, err)
	assert.False(t, found)

	p := progression.Progress{
		ID:          "prog-1",
		UserID:      "user-1",
		ChallengeID: "chal-1",
		Status:      progression.StatusInProgress,
		StartedAt:   testTime,
	}
	require.NoError(t, store.UpsertProgress(ctx, p))

	// Upsert on the same pair updates in place
	completedAt := testTime.Add(time.Hour)
	p.Status = progression.StatusCompleted
	p.CompletedAt = &completedAt
	require.NoError(t, store.UpsertProgress(ctx, p))

	got, found, err := store.Progress(ctx, "user-1", "chal-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, progression.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(completedAt))
	assert.True(t, got.StartedAt.Equal(testTime))

	list, err := store.ProgressByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteProgress(ctx, "user-1", "chal-1"))
	_, found, err = store.Progress(ctx, "user-1", "chal-1")
	require.NoError(t, err)
	assert.False(t, found)
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestSubmissions_RoundtripAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sub := progression.Submission{
		ID:          "sub-1",
		UserID:      "user-1",
		ChallengeID: "chal-1",
		Passed:      false,
		Results: []progression.ObjectiveResult{
			{ObjectiveKey: "obj-a", Passed: true},
			{ObjectiveKey: "obj-b", Passed: false, Message: "not ready"},
		},
		CreatedAt: testTime,
	}
	require.NoError(t, store.InsertSubmission(ctx, sub))

	got, err := store.Submissions(ctx, "user-1", "chal-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Passed)
	require.Len(t, got[0].Results, 2)
	assert.Equal(t, "not ready", got[0].Results[1].Message)

	require.NoError(t, store.DeleteSubmissions(ctx, "user-1", "chal-1"))
	got, err = store.Submissions(ctx, "user-1", "chal-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

// =============================================================================
// CATALOG TESTS
// =============================================================================

func TestSaveChallenge_ResolveBySlug(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := progression.Challenge{ID: "chal-1", Slug: "pod-basics", Title: "Pod Basics", Difficulty: progression.DifficultyEasy}
	objectives := []progression.Objective{
		{Key: "pod-running", Title: "Pod running"},
		{Key: "labels-set", Title: "Labels set"},
	}
	require.NoError(t, store.SaveChallenge(ctx, c, objectives))

	got, gotObjs, err := store.ChallengeBySlug(ctx, "pod-basics")
	require.NoError(t, err)
	assert.Equal(t, c.Title, got.Title)
	require.Len(t, gotObjs, 2)
	assert.Equal(t, "pod-running", gotObjs[0].Key, "objective order preserved")

	// Re-saving replaces the objective set
	require.NoError(t, store.SaveChallenge(ctx, c, objectives[:1]))
	_, gotObjs, err = store.ChallengeBySlug(ctx, "pod-basics")
	require.NoError(t, err)
	assert.Len(t, gotObjs, 1)
}

func TestChallengeBySlug_Unknown(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.ChallengeBySlug(context.Background(), "missing")

	require.Error(t, err)
	assert.ErrorIs(t, err, progression.ErrChallengeNotFound)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction appending rows and updating the total
	// WHEN: The closure fails after the writes
	// THEN: Nothing persists

	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(s progression.Store) error {
		if err := s.AppendBatch(ctx, []ledger.Transaction{
			tx("tx-1", "user-1", ledger.ActionChallengeCompleted, 100, testTime),
		}); err != nil {
			return err
		}
		if _, err := s.AddToTotal(ctx, "user-1", 100, testTime); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Transactions(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	total, err := store.Total(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), total.TotalXP)
}

func TestWithTx_CommitsTogether(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s progression.Store) error {
		if err := s.AppendBatch(ctx, []ledger.Transaction{
			tx("tx-1", "user-1", ledger.ActionChallengeCompleted, 100, testTime),
		}); err != nil {
			return err
		}
		_, err := s.AddToTotal(ctx, "user-1", 100, testTime)
		return err
	})
	require.NoError(t, err)

	sum, err := store.SumFor(ctx, "user-1")
	require.NoError(t, err)
	total, err := store.Total(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, sum, total.TotalXP)
}

// =============================================================================
// SERVICE INTEGRATION
// =============================================================================

func TestService_OverSQLite_EndToEnd(t *testing.T) {
	// The full award path against the real storage engine: catalog in
	// SQLite, claim constraint, ledger indexes, transactional writes.

	store := newTestStore(t)
	ctx := context.Background()

	c := progression.Challenge{ID: "chal-1", Slug: "pod-basics", Title: "Pod Basics", Difficulty: progression.DifficultyMedium}
	require.NoError(t, store.SaveChallenge(ctx, c, []progression.Objective{
		{Key: "pod-running", Title: "Pod running"},
	}))

	now := testTime
	svc := progression.NewService(store, store,
		progression.WithClock(func() time.Time { return now }))

	result, err := svc.Submit(ctx, "user-1", "pod-basics", []progression.ObjectiveResult{
		{ObjectiveKey: "pod-running", Passed: true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), result.XPAwarded, "100 base + 50 first")
	assert.True(t, result.FirstChallenge)

	// Reset, then the cached settlement path
	require.NoError(t, svc.Reset(ctx, "user-1", "pod-basics"))
	result, err = svc.Submit(ctx, "user-1", "pod-basics", []progression.ObjectiveResult{
		{ObjectiveKey: "pod-running", Passed: true},
	})
	require.NoError(t, err)
	assert.True(t, result.Cached)
	assert.Equal(t, int64(0), result.XPAwarded)
	assert.Equal(t, int64(150), result.TotalXP)

	sum, err := store.SumFor(ctx, "user-1")
	require.NoError(t, err)
	total, err := store.Total(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, sum, total.TotalXP)
}
