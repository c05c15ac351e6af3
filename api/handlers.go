/*
handlers.go - HTTP API handlers for the progress engine

PURPOSE:
  Exposes the progression engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Users:
    POST   /api/users/{userID}/challenges/{slug}/submit      Submit attempt
    POST   /api/users/{userID}/challenges/{slug}/start       Mark in progress
    DELETE /api/users/{userID}/challenges/{slug}/progress    Reset progress
    GET    /api/users/{userID}/challenges/{slug}/submissions Attempt history
    GET    /api/users/{userID}/challenges/{slug}/events      SSE event stream
    POST   /api/users/{userID}/streak                        Mark daily activity
    GET    /api/users/{userID}/overview                      Total, rank, streak
    GET    /api/users/{userID}/history                       XP ledger entries
    GET    /api/users/{userID}/progress                      Per-challenge state

  Challenges:
    GET    /api/challenges              List catalog
    GET    /api/challenges/{slug}       Challenge with objectives
    POST   /api/challenges              Register from JSON

  Misc:
    GET    /api/ranks                   Rank threshold table
    POST   /api/admin/reconcile         Audit cached totals against ledger

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Unknown challenge
  - 409: Already completed (start on a settled pair)
  - 503: Storage transient failure after retries
  - 500: Internal errors
  Note that a submission with failing objectives is NOT an error: it is a
  200 with success=false, and a resubmit of a settled pair is a 200 with
  cached=true.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - progression/service.go: The logic these handlers delegate to
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kubeasy-dev/progress-engine/catalog"
	"github.com/kubeasy-dev/progress-engine/ledger"
	"github.com/kubeasy-dev/progress-engine/progression"
	"github.com/kubeasy-dev/progress-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *progression.Service
	Store   *sqlite.Store
	Hub     *progression.Hub
	Log     *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *progression.Service, store *sqlite.Store, hub *progression.Hub, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Service: service, Store: store, Hub: hub, Log: log}
}

// =============================================================================
// SUBMISSION HANDLERS
// =============================================================================

// Submit records a verification attempt and, on a fully passing first
// settlement, awards XP.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	slug := chi.URLParam(r, "slug")

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Service.Submit(r.Context(), userID, slug, req.Results)
	if err != nil {
		h.writeDomainError(w, "Failed to process submission", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Start marks a challenge as in progress for a user.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	slug := chi.URLParam(r, "slug")

	progress, err := h.Service.Start(r.Context(), userID, slug)
	if err != nil {
		h.writeDomainError(w, "Failed to start challenge", err)
		return
	}

	writeJSON(w, http.StatusOK, progressDTO(progress))
}

// ResetProgress deletes the display state and attempt history for a
// (user, challenge) pair. The ledger and the completion claim survive, so
// a later resubmit settles as cached with zero XP.
func (h *Handler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	slug := chi.URLParam(r, "slug")

	if err := h.Service.Reset(r.Context(), userID, slug); err != nil {
		h.writeDomainError(w, "Failed to reset progress", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubmissions returns the attempt history for a (user, challenge) pair.
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	slug := chi.URLParam(r, "slug")

	challenge, _, err := h.Store.ChallengeBySlug(r.Context(), slug)
	if err != nil {
		h.writeDomainError(w, "Failed to resolve challenge", err)
		return
	}

	subs, err := h.Store.Submissions(r.Context(), userID, challenge.ID)
	if err != nil {
		h.writeDomainError(w, "Failed to list submissions", err)
		return
	}

	dtos := make([]SubmissionDTO, len(subs))
	for i, s := range subs {
		dtos[i] = SubmissionDTO{
			ID:        s.ID,
			Passed:    s.Passed,
			Results:   s.Results,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// RecordStreak marks daily activity for a user and returns the resulting
// chain length. Idempotent within a UTC day.
func (h *Handler) RecordStreak(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))

	streak, err := h.Service.RecordDailyStreak(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, "Failed to record daily activity", err)
		return
	}

	writeJSON(w, http.StatusOK, StreakResponse{CurrentStreak: streak})
}

// GetOverview returns total XP, rank and current streak for a user.
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))

	overview, err := h.Service.UserOverview(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, "Failed to load overview", err)
		return
	}

	writeJSON(w, http.StatusOK, overview)
}

// GetHistory returns the full XP ledger for a user, oldest first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))

	txs, err := h.Service.History(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, "Failed to load history", err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = TransactionDTO{
			ID:          string(tx.ID),
			Action:      string(tx.Action),
			XPAmount:    tx.XPAmount,
			ChallengeID: string(tx.ChallengeID),
			Description: tx.Description,
			CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProgress returns per-challenge display state for a user.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))

	progress, err := h.Service.UserProgress(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, "Failed to load progress", err)
		return
	}

	dtos := make([]ProgressDTO, len(progress))
	for i, p := range progress {
		dtos[i] = progressDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CHALLENGE HANDLERS
// =============================================================================

// ListChallenges returns the registered catalog.
func (h *Handler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	challenges, err := h.Store.Challenges(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list challenges", err)
		return
	}

	dtos := make([]ChallengeDTO, len(challenges))
	for i, c := range challenges {
		dtos[i] = challengeDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetChallenge returns one challenge with its objective set.
func (h *Handler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	challenge, objectives, err := h.Store.ChallengeBySlug(r.Context(), slug)
	if err != nil {
		h.writeDomainError(w, "Failed to get challenge", err)
		return
	}

	dto := ChallengeDetailDTO{
		ChallengeDTO: challengeDTO(challenge),
		Objectives:   make([]ObjectiveDTO, len(objectives)),
	}
	for i, o := range objectives {
		dto.Objectives[i] = ObjectiveDTO{
			Key:         o.Key,
			Title:       o.Title,
			Description: o.Description,
			Category:    o.Category,
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// RegisterChallenge validates and persists a challenge definition with
// its objective keys.
func (h *Handler) RegisterChallenge(w http.ResponseWriter, r *http.Request) {
	var cj catalog.ChallengeJSON
	if err := json.NewDecoder(r.Body).Decode(&cj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	challenge, objectives, err := catalog.Parse(cj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid challenge definition", err)
		return
	}

	if err := h.Store.SaveChallenge(r.Context(), challenge, objectives); err != nil {
		h.writeDomainError(w, "Failed to save challenge", err)
		return
	}

	h.Log.Info("challenge registered",
		zap.String("slug", challenge.Slug),
		zap.String("difficulty", string(challenge.Difficulty)))

	writeJSON(w, http.StatusCreated, challengeDTO(challenge))
}

// =============================================================================
// MISC HANDLERS
// =============================================================================

// ListRanks returns the rank threshold table.
func (h *Handler) ListRanks(w http.ResponseWriter, r *http.Request) {
	dtos := make([]RankTierDTO, len(progression.RankThresholds))
	for i, t := range progression.RankThresholds {
		dtos[i] = RankTierDTO{Name: t.Name, MinXP: t.MinXP}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TriggerReconcile audits every cached total against the ledger and
// repairs drift. Safe to call at any time.
func (h *Handler) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	rec := progression.NewReconciler(h.Store, h.Log)
	corrections, err := rec.Run(r.Context())
	if err != nil {
		h.writeDomainError(w, "Reconciliation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, ReconcileResponse{
		DriftCount:  len(corrections),
		Corrections: corrections,
	})
}

// StreamEvents pushes progression events for a (user, challenge) pair as
// server-sent events until the client disconnects.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.Hub == nil {
		writeError(w, http.StatusNotFound, "Event streaming not enabled", nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	userID := ledger.UserID(chi.URLParam(r, "userID"))
	slug := chi.URLParam(r, "slug")

	events, cancel := h.Hub.Subscribe(userID, slug)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func challengeDTO(c progression.Challenge) ChallengeDTO {
	return ChallengeDTO{
		ID:         string(c.ID),
		Slug:       c.Slug,
		Title:      c.Title,
		Difficulty: string(c.Difficulty),
	}
}

func progressDTO(p progression.Progress) ProgressDTO {
	dto := ProgressDTO{
		ChallengeID:       string(p.ChallengeID),
		Status:            string(p.Status),
		StartedAt:         p.StartedAt.Format(time.RFC3339),
		DailyLimitReached: p.DailyLimitReached,
	}
	if p.CompletedAt != nil {
		s := p.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}

// writeDomainError maps domain errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	var status int
	switch {
	case errors.Is(err, progression.ErrChallengeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, progression.ErrAlreadyCompleted):
		status = http.StatusConflict
	case progression.IsClientError(err):
		status = http.StatusBadRequest
	case ledger.IsRetryable(err):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	if status >= 500 {
		h.Log.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
