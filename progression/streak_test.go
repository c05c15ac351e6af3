package progression_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeasy-dev/progress-engine/ledger"
	"github.com/kubeasy-dev/progress-engine/ledger/store"
	"github.com/kubeasy-dev/progress-engine/progression"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var streakNow = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

// seedStreakDays inserts one daily_streak transaction per day offset
// (0 = today, 1 = yesterday, ...).
func seedStreakDays(t *testing.T, m *store.Memory, userID string, offsets ...int) {
	t.Helper()
	for i, off := range offsets {
		err := m.AppendBatch(context.Background(), []ledger.Transaction{{
			ID:        ledger.TransactionID(fmt.Sprintf("streak-%s-%d", userID, i)),
			UserID:    ledger.UserID(userID),
			Action:    ledger.ActionDailyStreak,
			XPAmount:  10,
			CreatedAt: streakNow.AddDate(0, 0, -off),
		}})
		require.NoError(t, err)
	}
}

func currentStreak(t *testing.T, m *store.Memory, userID string) int {
	t.Helper()
	s, err := progression.CurrentStreak(context.Background(), m, ledger.UserID(userID), streakNow)
	require.NoError(t, err)
	return s
}

// =============================================================================
// STREAK SCENARIO TESTS
// =============================================================================

func TestCurrentStreak_NoActivity_Zero(t *testing.T) {
	m := store.NewMemory()
	assert.Equal(t, 0, currentStreak(t, m, "user-1"))
}

func TestCurrentStreak_TodayOnly_One(t *testing.T) {
	m := store.NewMemory()
	seedStreakDays(t, m, "user-1", 0)

	assert.Equal(t, 1, currentStreak(t, m, "user-1"))
}

func TestCurrentStreak_YesterdayOnly_StillAlive(t *testing.T) {
	// GIVEN: Activity yesterday, none yet today
	// WHEN: Computing the streak
	// THEN: 1. The chain is alive and extends if the user acts today.

	m := store.NewMemory()
	seedStreakDays(t, m, "user-1", 1)

	assert.Equal(t, 1, currentStreak(t, m, "user-1"))
}

func TestCurrentStreak_TwoDaysAgo_Dead(t *testing.T) {
	// A lone day two days back is a dead chain, never "1".
	m := store.NewMemory()
	seedStreakDays(t, m, "user-1", 2)

	assert.Equal(t, 0, currentStreak(t, m, "user-1"))
}

func TestCurrentStreak_ConsecutiveRun(t *testing.T) {
	// Today, yesterday, the day before: 3.
	m := store.NewMemory()
	seedStreakDays(t, m, "user-1", 0, 1, 2)

	assert.Equal(t, 3, currentStreak(t, m, "user-1"))
}

func TestCurrentStreak_GapTruncatesWalk(t *testing.T) {
	// GIVEN: Days 0,1,2 then a gap, then 4,5
	// WHEN: Walking back from today
	// THEN: 3. The gap ends the chain regardless of older activity.

	m := store.NewMemory()
	seedStreakDays(t, m, "user-1", 0, 1, 2, 4, 5)

	assert.Equal(t, 3, currentStreak(t, m, "user-1"))
}

func TestCurrentStreak_RecentGapKillsChain(t *testing.T) {
	// Activity on days 2..5 but nothing today or yesterday: dead.
	m := store.NewMemory()
	seedStreakDays(t, m, "user-1", 2, 3, 4, 5)

	assert.Equal(t, 0, currentStreak(t, m, "user-1"))
}

func TestCurrentStreak_WindowBound(t *testing.T) {
	// An unbroken run longer than the window reports the window length.
	m := store.NewMemory()
	offsets := make([]int, progression.StreakWindowDays+10)
	for i := range offsets {
		offsets[i] = i
	}
	// Only days inside the window are fetched; older inserts are fine.
	seedStreakDays(t, m, "user-1", offsets...)

	got := currentStreak(t, m, "user-1")
	assert.Equal(t, progression.StreakWindowDays+1, got)
}

func TestCurrentStreak_UsersIndependent(t *testing.T) {
	m := store.NewMemory()
	seedStreakDays(t, m, "user-1", 0, 1)
	seedStreakDays(t, m, "user-2", 0)

	assert.Equal(t, 2, currentStreak(t, m, "user-1"))
	assert.Equal(t, 1, currentStreak(t, m, "user-2"))
}
