/*
Package progression implements the domain layer on top of the XP ledger:
challenge completion, streaks, ranks, XP gain and progress tracking.

PURPOSE:
  The ledger package knows nothing about challenges, objectives or
  difficulty. This package does. It validates submissions against the
  registered objective catalog, orchestrates the award write sequence, and
  derives streaks and ranks by replaying the ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Challenge / Objective: The registered catalog (an external input)
  - ObjectiveResult: One pass/fail check inside a submission
  - Progress: The resettable per-(user, challenge) display state
  - Submission: The audit record of an attempt, pass or fail
  - Result: The structured outcome of a completion attempt

RESET VS REWARD:
  Progress and Submission rows are ephemeral: deleting and recreating them
  never changes ledger or claim state. Reward is gated solely by the
  completion claim, which survives resets for the lifetime of the account.

SEE ALSO:
  - service.go: The completion orchestrator
  - streak.go, rank.go, gain.go: Pure derivations
*/
package progression

import (
	"context"
	"time"

	"github.com/kubeasy-dev/progress-engine/ledger"
)

// =============================================================================
// DIFFICULTY
// =============================================================================

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// =============================================================================
// CHALLENGE CATALOG (consumed input)
// =============================================================================

// Challenge is a registered learning challenge.
type Challenge struct {
	ID         ledger.ChallengeID
	Slug       string
	Title      string
	Difficulty Difficulty
}

// Objective is a single named pass/fail check registered for a challenge.
// A submission must address every registered objective exactly once.
type Objective struct {
	Key         string
	Title       string
	Description string
	Category    string
}

// Catalog resolves challenges and their registered objectives.
// Implementations: catalog.Registry (in-memory, JSON-loaded) and the
// SQLite store.
type Catalog interface {
	// ChallengeBySlug returns the challenge and its objective catalog.
	// Returns ErrChallengeNotFound for unknown slugs.
	ChallengeBySlug(ctx context.Context, slug string) (Challenge, []Objective, error)
}

// =============================================================================
// SUBMISSION
// =============================================================================

// ObjectiveResult is one pass/fail check result submitted by a client.
type ObjectiveResult struct {
	ObjectiveKey string `json:"objectiveKey"`
	Passed       bool   `json:"passed"`
	Message      string `json:"message,omitempty"`
}

// Submission is the audit record of an attempt. Persisted unconditionally,
// pass or fail, before any reward evaluation.
type Submission struct {
	ID          string
	UserID      ledger.UserID
	ChallengeID ledger.ChallengeID
	Passed      bool
	Results     []ObjectiveResult
	CreatedAt   time.Time
}

// =============================================================================
// PROGRESS
// =============================================================================

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Progress is the per-(user, challenge) display state. Resettable: deleting
// this row never re-triggers reward issuance.
type Progress struct {
	ID                string
	UserID            ledger.UserID
	ChallengeID       ledger.ChallengeID
	Status            Status
	StartedAt         time.Time
	CompletedAt       *time.Time
	DailyLimitReached bool
}

// =============================================================================
// RESULTS
// =============================================================================

// GainBreakdown is the structured XP award for a completion.
type GainBreakdown struct {
	BaseXP               int64 `json:"baseXp"`
	FirstChallengeBonus  int64 `json:"firstChallengeBonus"`
	StreakBonus          int64 `json:"streakBonus"`
	Total                int64 `json:"total"`
}

// Rank is a named tier derived from cumulative XP.
type Rank struct {
	Name       string `json:"name"`
	MinXP      int64  `json:"minXp"`
	NextRankXP *int64 `json:"nextRankXp"` // nil at max rank
	Progress   int    `json:"progress"`   // 0..100
}

// Result is the structured outcome of a Submit call.
//
// Success with Cached=true means the pair was already settled (typically
// after a reset): no new XP, but progress was still marked completed.
// Success=false with FailedObjectives set is the normal "objectives did not
// all pass" variant, not an error.
type Result struct {
	Success          bool     `json:"success"`
	FailedObjectives []string `json:"failedObjectives,omitempty"`

	XPAwarded      int64         `json:"xpAwarded"`
	Cached         bool          `json:"cached"`
	TotalXP        int64         `json:"totalXp"`
	Rank           Rank          `json:"rank"`
	RankUp         bool          `json:"rankUp"`
	FirstChallenge bool          `json:"firstChallenge"`
	StreakBonus    int64         `json:"streakBonus"`
	CurrentStreak  int           `json:"currentStreak"`
	Breakdown      GainBreakdown `json:"breakdown"`
}
