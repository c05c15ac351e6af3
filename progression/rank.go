/*
rank.go - Rank derivation from cumulative XP

PURPOSE:
  Maps a total XP value onto a named tier via a static ascending threshold
  table, and reports progress toward the next tier as a rounded percentage.

BOUNDARY RULE:
  An exact threshold hit yields progress=0 in the newly entered rank, not
  100% of the previous one. The max rank reports progress=100 and no next
  rank.

PRECISION:
  Progress is computed with decimal division and half-up rounding so that
  e.g. 150/300 reports exactly 50 and one-third boundaries round the way
  humans expect, with no float drift.
*/
package progression

import "github.com/shopspring/decimal"

// =============================================================================
// THRESHOLD TABLE
// =============================================================================

// RankThreshold is one entry of the static rank table.
type RankThreshold struct {
	Name  string
	MinXP int64
}

// RankThresholds is strictly increasing in MinXP; the first entry is 0.
var RankThresholds = []RankThreshold{
	{Name: "Novice", MinXP: 0},
	{Name: "Beginner", MinXP: 300},
	{Name: "Advanced", MinXP: 1200},
	{Name: "Expert", MinXP: 3500},
	{Name: "Master", MinXP: 7000},
	{Name: "Legend", MinXP: 12000},
}

// =============================================================================
// RANK CALCULATION
// =============================================================================

// RankFor returns the rank for a cumulative XP total.
func RankFor(totalXP int64) Rank {
	if totalXP < 0 {
		totalXP = 0
	}

	// Highest entry whose threshold is satisfied.
	idx := 0
	for i := len(RankThresholds) - 1; i >= 0; i-- {
		if RankThresholds[i].MinXP <= totalXP {
			idx = i
			break
		}
	}
	current := RankThresholds[idx]

	rank := Rank{Name: current.Name, MinXP: current.MinXP}
	if idx == len(RankThresholds)-1 {
		rank.Progress = 100
		return rank
	}

	next := RankThresholds[idx+1]
	rank.NextRankXP = &next.MinXP

	span := decimal.NewFromInt(next.MinXP - current.MinXP)
	into := decimal.NewFromInt(totalXP - current.MinXP)
	pct := into.Mul(decimal.NewFromInt(100)).Div(span).Round(0)
	rank.Progress = int(pct.IntPart())
	return rank
}
