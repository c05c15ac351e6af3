package progression_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kubeasy-dev/progress-engine/progression"
)

// =============================================================================
// BASE XP TESTS
// =============================================================================

func TestBaseXP_PerDifficulty(t *testing.T) {
	assert.Equal(t, int64(50), progression.BaseXP(progression.DifficultyEasy))
	assert.Equal(t, int64(100), progression.BaseXP(progression.DifficultyMedium))
	assert.Equal(t, int64(200), progression.BaseXP(progression.DifficultyHard))
}

// =============================================================================
// GAIN COMPOSITION TESTS
// =============================================================================

func TestGain_FirstEverEasyCompletion(t *testing.T) {
	// GIVEN: A user's very first completion, easy difficulty, no live streak
	// WHEN: Computing the gain
	// THEN: 50 base + 50 first bonus = 100, no streak bonus

	g := progression.Gain(progression.DifficultyEasy, true, 0)

	assert.Equal(t, int64(50), g.BaseXP)
	assert.Equal(t, int64(50), g.FirstChallengeBonus)
	assert.Equal(t, int64(0), g.StreakBonus)
	assert.Equal(t, int64(100), g.Total)
}

func TestGain_RepeatHardCompletion_NoBonuses(t *testing.T) {
	g := progression.Gain(progression.DifficultyHard, false, 0)

	assert.Equal(t, int64(200), g.BaseXP)
	assert.Equal(t, int64(0), g.FirstChallengeBonus)
	assert.Equal(t, int64(0), g.StreakBonus)
	assert.Equal(t, int64(200), g.Total)
}

func TestGain_StreakBonus_TenPerDay(t *testing.T) {
	// GIVEN: A 7-day streak eligible for payout
	// WHEN: Computing the gain for a medium completion
	// THEN: 100 base + 70 streak = 170

	g := progression.Gain(progression.DifficultyMedium, false, 7)

	assert.Equal(t, int64(100), g.BaseXP)
	assert.Equal(t, int64(70), g.StreakBonus)
	assert.Equal(t, int64(170), g.Total)
}

func TestGain_AllBonusesStack(t *testing.T) {
	// First completion of a hard challenge with a 3-day streak:
	// 200 + 50 + 30 = 280.
	g := progression.Gain(progression.DifficultyHard, true, 3)

	assert.Equal(t, int64(280), g.Total)
	assert.Equal(t, g.BaseXP+g.FirstChallengeBonus+g.StreakBonus, g.Total,
		"breakdown must sum to total")
}
