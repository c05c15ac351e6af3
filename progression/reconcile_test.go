package progression_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeasy-dev/progress-engine/ledger"
	"github.com/kubeasy-dev/progress-engine/ledger/store"
	"github.com/kubeasy-dev/progress-engine/progression"
)

// =============================================================================
// RECONCILIATION TESTS
// =============================================================================

func TestReconciler_CleanState_NoCorrections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, "user-1", "easy-one", pass("obj-a", "obj-b"))
	require.NoError(t, err)

	rec := progression.NewReconciler(f.store, nil)
	corrections, err := rec.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, corrections)
}

func TestReconciler_DriftedTotal_Repaired(t *testing.T) {
	// GIVEN: A cached total that drifted from the ledger
	// WHEN: Running reconciliation
	// THEN: The ledger wins; the cache is rewritten to the true sum

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, "user-1", "easy-one", pass("obj-a", "obj-b"))
	require.NoError(t, err)

	// Corrupt the cache
	require.NoError(t, f.store.SetTotal(ctx, "user-1", 9999, f.clock.Now()))

	rec := progression.NewReconciler(f.store, nil)
	corrections, err := rec.Run(ctx)
	require.NoError(t, err)

	require.Len(t, corrections, 1)
	assert.Equal(t, ledger.UserID("user-1"), corrections[0].UserID)
	assert.Equal(t, int64(9999), corrections[0].Cached)
	assert.Equal(t, int64(100), corrections[0].Actual)

	total, err := f.store.Total(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), total.TotalXP)
}

func TestReconciler_MissingTotalRow_Created(t *testing.T) {
	// Ledger rows with no cached total at all (crash between the append
	// and the aggregate update) get a fresh total row.
	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.AppendBatch(ctx, []ledger.Transaction{{
		ID:        "tx-1",
		UserID:    "user-1",
		Action:    ledger.ActionChallengeCompleted,
		XPAmount:  200,
		CreatedAt: streakNow,
	}}))

	rec := progression.NewReconciler(m, nil)
	corrections, err := rec.Run(ctx)
	require.NoError(t, err)
	require.Len(t, corrections, 1)

	total, err := m.Total(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), total.TotalXP)
}

func TestReconciler_MultipleUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, "user-1", "easy-one", pass("obj-a", "obj-b"))
	require.NoError(t, err)
	_, err = f.service.Submit(ctx, "user-2", "medium-one", pass("obj-a"))
	require.NoError(t, err)

	require.NoError(t, f.store.SetTotal(ctx, "user-2", 1, f.clock.Now()))

	rec := progression.NewReconciler(f.store, nil)
	corrections, err := rec.Run(ctx)
	require.NoError(t, err)

	require.Len(t, corrections, 1, "only the drifted user is corrected")
	assert.Equal(t, ledger.UserID("user-2"), corrections[0].UserID)
}
