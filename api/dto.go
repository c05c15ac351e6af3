/*
dto.go - Request/response data structures

PURPOSE:
  Wire-level shapes for the REST API. Domain types that already carry
  JSON tags (Result, Rank, GainBreakdown, ObjectiveResult) are returned
  directly; everything else gets an explicit DTO here so the JSON surface
  stays stable when internals move.

SEE ALSO:
  - handlers.go: Where these are produced and consumed
*/
package api

import (
	"github.com/kubeasy-dev/progress-engine/progression"
)

// =============================================================================
// REQUESTS
// =============================================================================

// SubmitRequest carries one verification attempt: one result per
// registered objective.
type SubmitRequest struct {
	Results []progression.ObjectiveResult `json:"results"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// ChallengeDTO is the public catalog entry.
type ChallengeDTO struct {
	ID         string `json:"id"`
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	Difficulty string `json:"difficulty"`
}

// ObjectiveDTO describes one registered check of a challenge.
type ObjectiveDTO struct {
	Key         string `json:"key"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// ChallengeDetailDTO is a catalog entry with its objective set.
type ChallengeDetailDTO struct {
	ChallengeDTO
	Objectives []ObjectiveDTO `json:"objectives"`
}

// ProgressDTO is the per-challenge display state for a user.
type ProgressDTO struct {
	ChallengeID       string  `json:"challengeId"`
	Status            string  `json:"status"`
	StartedAt         string  `json:"startedAt"`
	CompletedAt       *string `json:"completedAt,omitempty"`
	DailyLimitReached bool    `json:"dailyLimitReached"`
}

// TransactionDTO is one XP ledger entry.
type TransactionDTO struct {
	ID          string `json:"id"`
	Action      string `json:"action"`
	XPAmount    int64  `json:"xpAmount"`
	ChallengeID string `json:"challengeId,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

// SubmissionDTO is one recorded attempt.
type SubmissionDTO struct {
	ID        string                        `json:"id"`
	Passed    bool                          `json:"passed"`
	Results   []progression.ObjectiveResult `json:"results"`
	CreatedAt string                        `json:"createdAt"`
}

// StreakResponse reports the chain length after a daily activity mark.
type StreakResponse struct {
	CurrentStreak int `json:"currentStreak"`
}

// RankTierDTO is one row of the rank table.
type RankTierDTO struct {
	Name  string `json:"name"`
	MinXP int64  `json:"minXp"`
}

// ReconcileResponse summarizes an audit pass over cached totals.
type ReconcileResponse struct {
	DriftCount  int                      `json:"driftCount"`
	Corrections []progression.Correction `json:"corrections"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
