/*
gain.go - XP gain calculation

PURPOSE:
  Pure computation of the XP award for a completion. No I/O; testable
  against the literal tables below.

TABLES:
  Base XP by difficulty:  easy=50  medium=100  hard=200
  First-challenge bonus:  flat 50, at most once per account
  Streak bonus:           10 per consecutive day, linear, uncapped
*/
package progression

// Award constants. These are product-level literals, not configuration.
const (
	BaseXPEasy   int64 = 50
	BaseXPMedium int64 = 100
	BaseXPHard   int64 = 200

	FirstChallengeBonus int64 = 50
	StreakBonusPerDay   int64 = 10
)

// BaseXP returns the base award for a difficulty tier. Unknown tiers fall
// back to easy; the catalog validates difficulty at registration time.
func BaseXP(d Difficulty) int64 {
	switch d {
	case DifficultyMedium:
		return BaseXPMedium
	case DifficultyHard:
		return BaseXPHard
	default:
		return BaseXPEasy
	}
}

// Gain combines difficulty, first-completion flag and current streak into a
// structured XP breakdown. currentStreak is the pre-award streak value.
func Gain(d Difficulty, isFirstChallenge bool, currentStreak int) GainBreakdown {
	g := GainBreakdown{BaseXP: BaseXP(d)}
	if isFirstChallenge {
		g.FirstChallengeBonus = FirstChallengeBonus
	}
	if currentStreak > 0 {
		g.StreakBonus = StreakBonusPerDay * int64(currentStreak)
	}
	g.Total = g.BaseXP + g.FirstChallengeBonus + g.StreakBonus
	return g
}
