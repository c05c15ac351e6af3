/*
Package sqlite provides the SQLite-backed implementation of the progress
engine's storage interfaces.

PURPOSE:
  Implements progression.Store (ledger, claims, totals, progress,
  submissions) and progression.Catalog using SQLite. The same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The xp_transactions table takes INSERTs only. No UPDATE or DELETE
  statement for it exists anywhere in this package.

KEY TABLES:
  xp_transactions:       Immutable XP ledger
  challenge_completions: Idempotency records, UNIQUE(user_id, challenge_id)
  user_xp_totals:        Cached per-user totals
  user_progress:         Resettable display state
  user_submissions:      Attempt audit trail
  challenges:            Registered challenge catalog
  challenge_objectives:  Registered objective key sets

CONSTRAINTS AS SERIALIZATION:
  Two partial unique indexes enforce the ledger invariants at the database
  level, so racing batches cannot slip past application checks:
  - idx_unique_first_challenge: one first_challenge row per user, ever
  - idx_unique_daily_streak: one daily_streak row per user per UTC day
  The challenge_completions unique constraint is the completion claim's
  atomic test-and-set: of N concurrent claims exactly one insert succeeds.

ERROR MAPPING:
  SQLITE_BUSY / locked errors map to ledger.ErrTransientStorage (retried by
  the caller's policy); constraint violations map to the matching invariant
  error; anything else maps to ledger.ErrPermanentStorage.

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, single
  writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/progress.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go, progression/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kubeasy-dev/progress-engine/ledger"
	"github.com/kubeasy-dev/progress-engine/progression"
)

// Store implements progression.Store and progression.Catalog using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ progression.Store   = (*Store)(nil)
	_ progression.Catalog = (*Store)(nil)
)

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: serializes writers ahead of SQLite's own lock, and
	// keeps ":memory:" databases from fragmenting across pool connections.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- XP ledger (append-only)
	CREATE TABLE IF NOT EXISTS xp_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		xp_amount INTEGER NOT NULL CHECK (xp_amount > 0),
		challenge_id TEXT,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_xp_transactions_user
		ON xp_transactions(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_xp_transactions_user_action
		ON xp_transactions(user_id, action, created_at);

	-- CRITICAL: at most one first_challenge transaction per user, ever
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_first_challenge
		ON xp_transactions(user_id)
		WHERE action = 'first_challenge';

	-- CRITICAL: at most one daily_streak transaction per user per UTC day
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_daily_streak
		ON xp_transactions(user_id, DATE(created_at))
		WHERE action = 'daily_streak';

	-- Completion claims (idempotency guard)
	CREATE TABLE IF NOT EXISTS challenge_completions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		challenge_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(user_id, challenge_id)
	);

	-- Cached totals (reconstructible from xp_transactions; ledger wins)
	CREATE TABLE IF NOT EXISTS user_xp_totals (
		user_id TEXT PRIMARY KEY,
		total_xp INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	-- Resettable display state
	CREATE TABLE IF NOT EXISTS user_progress (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		challenge_id TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		daily_limit_reached BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE(user_id, challenge_id)
	);

	CREATE INDEX IF NOT EXISTS idx_user_progress_user
		ON user_progress(user_id);

	-- Attempt audit trail
	CREATE TABLE IF NOT EXISTS user_submissions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		challenge_id TEXT NOT NULL,
		passed BOOLEAN NOT NULL,
		results_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_user_submissions_pair
		ON user_submissions(user_id, challenge_id, created_at);

	-- Challenge catalog
	CREATE TABLE IF NOT EXISTS challenges (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS challenge_objectives (
		challenge_id TEXT NOT NULL,
		objective_key TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (challenge_id, objective_key)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// executor abstracts *sql.DB and *sql.Tx so the same statement helpers run
// inside and outside transactions.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

// AppendBatch inserts transactions atomically. Either all rows commit or
// none do; the partial unique indexes reject invariant violations.
func (s *Store) AppendBatch(ctx context.Context, txs []ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer sqlTx.Rollback()

	if err := appendBatchOn(ctx, sqlTx, txs); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapErr(err)
	}
	return nil
}

func appendBatchOn(ctx context.Context, ex executor, txs []ledger.Transaction) error {
	const query = `
		INSERT INTO xp_transactions
		(id, user_id, action, xp_amount, challenge_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, tx := range txs {
		_, err := ex.ExecContext(ctx, query,
			string(tx.ID),
			string(tx.UserID),
			string(tx.Action),
			tx.XPAmount,
			nullString(string(tx.ChallengeID)),
			tx.Description,
			formatTime(tx.CreatedAt),
		)
		if err != nil {
			// The failing row's action identifies which partial unique
			// index fired; SQLite's message only names columns.
			if isUniqueConstraintError(err) {
				switch tx.Action {
				case ledger.ActionFirstChallenge:
					return ledger.ErrDuplicateFirstChallenge
				case ledger.ActionDailyStreak:
					return &ledger.DuplicateStreakError{UserID: tx.UserID, Day: tx.Day()}
				}
			}
			return mapErr(err)
		}
	}
	return nil
}

func (s *Store) Transactions(ctx context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionsOn(ctx, s.db, userID)
}

func transactionsOn(ctx context.Context, ex executor, userID ledger.UserID) ([]ledger.Transaction, error) {
	const query = `
		SELECT id, user_id, action, xp_amount, challenge_id, description, created_at
		FROM xp_transactions
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`
	return queryTransactions(ctx, ex, query, string(userID))
}

func (s *Store) TransactionsSince(ctx context.Context, userID ledger.UserID, action ledger.Action, since time.Time) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionsSinceOn(ctx, s.db, userID, action, since)
}

func transactionsSinceOn(ctx context.Context, ex executor, userID ledger.UserID, action ledger.Action, since time.Time) ([]ledger.Transaction, error) {
	const query = `
		SELECT id, user_id, action, xp_amount, challenge_id, description, created_at
		FROM xp_transactions
		WHERE user_id = ? AND action = ? AND created_at >= ?
		ORDER BY created_at ASC, id ASC
	`
	return queryTransactions(ctx, ex, query, string(userID), string(action), formatTime(since))
}

func (s *Store) SumFor(ctx context.Context, userID ledger.UserID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumForOn(ctx, s.db, userID)
}

func sumForOn(ctx context.Context, ex executor, userID ledger.UserID) (int64, error) {
	var sum int64
	err := ex.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(xp_amount), 0) FROM xp_transactions WHERE user_id = ?",
		string(userID),
	).Scan(&sum)
	if err != nil {
		return 0, mapErr(err)
	}
	return sum, nil
}

func (s *Store) UserIDs(ctx context.Context) ([]ledger.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT user_id FROM xp_transactions ORDER BY user_id")
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []ledger.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, ledger.UserID(id))
	}
	return out, rows.Err()
}

func queryTransactions(ctx context.Context, ex executor, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var (
			tx          ledger.Transaction
			id, user    string
			action      string
			challengeID sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&id, &user, &action, &tx.XPAmount, &challengeID, &tx.Description, &createdAt); err != nil {
			return nil, mapErr(err)
		}
		tx.ID = ledger.TransactionID(id)
		tx.UserID = ledger.UserID(user)
		tx.Action = ledger.Action(action)
		tx.ChallengeID = ledger.ChallengeID(challengeID.String)
		tx.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// =============================================================================
// CLAIM STORE (ledger.ClaimStore interface)
// =============================================================================

// Claim is a single insert attempt; the UNIQUE(user_id, challenge_id)
// constraint is the atomic test-and-set. A conflict means "already
// settled" and reports acquired=false with no error.
func (s *Store) Claim(ctx context.Context, claim ledger.CompletionClaim) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return claimOn(ctx, s.db, claim)
}

func claimOn(ctx context.Context, ex executor, claim ledger.CompletionClaim) (bool, error) {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO challenge_completions (id, user_id, challenge_id, created_at)
		VALUES (?, ?, ?, ?)`,
		claim.ID, string(claim.UserID), string(claim.ChallengeID), formatTime(claim.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return false, nil
		}
		return false, mapErr(err)
	}
	return true, nil
}

func (s *Store) HasClaim(ctx context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasClaimOn(ctx, s.db, userID, challengeID)
}

func hasClaimOn(ctx context.Context, ex executor, userID ledger.UserID, challengeID ledger.ChallengeID) (bool, error) {
	var count int
	err := ex.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM challenge_completions WHERE user_id = ? AND challenge_id = ?",
		string(userID), string(challengeID),
	).Scan(&count)
	if err != nil {
		return false, mapErr(err)
	}
	return count > 0, nil
}

// =============================================================================
// TOTAL STORE (ledger.TotalStore interface)
// =============================================================================

func (s *Store) Total(ctx context.Context, userID ledger.UserID) (ledger.UserTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return totalOn(ctx, s.db, userID)
}

func totalOn(ctx context.Context, ex executor, userID ledger.UserID) (ledger.UserTotal, error) {
	var (
		total     int64
		updatedAt string
	)
	err := ex.QueryRowContext(ctx,
		"SELECT total_xp, updated_at FROM user_xp_totals WHERE user_id = ?",
		string(userID),
	).Scan(&total, &updatedAt)
	if err == sql.ErrNoRows {
		return ledger.UserTotal{UserID: userID}, nil
	}
	if err != nil {
		return ledger.UserTotal{}, mapErr(err)
	}
	ts, err := parseTime(updatedAt)
	if err != nil {
		return ledger.UserTotal{}, err
	}
	return ledger.UserTotal{UserID: userID, TotalXP: total, UpdatedAt: ts}, nil
}

func (s *Store) AddToTotal(ctx context.Context, userID ledger.UserID, delta int64, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addToTotalOn(ctx, s.db, userID, delta, now)
}

func addToTotalOn(ctx context.Context, ex executor, userID ledger.UserID, delta int64, now time.Time) (int64, error) {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO user_xp_totals (user_id, total_xp, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_xp = user_xp_totals.total_xp + excluded.total_xp,
			updated_at = excluded.updated_at`,
		string(userID), delta, formatTime(now),
	)
	if err != nil {
		return 0, mapErr(err)
	}

	var total int64
	err = ex.QueryRowContext(ctx,
		"SELECT total_xp FROM user_xp_totals WHERE user_id = ?",
		string(userID),
	).Scan(&total)
	if err != nil {
		return 0, mapErr(err)
	}
	return total, nil
}

func (s *Store) SetTotal(ctx context.Context, userID ledger.UserID, total int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setTotalOn(ctx, s.db, userID, total, now)
}

func setTotalOn(ctx context.Context, ex executor, userID ledger.UserID, total int64, now time.Time) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO user_xp_totals (user_id, total_xp, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_xp = excluded.total_xp,
			updated_at = excluded.updated_at`,
		string(userID), total, formatTime(now),
	)
	return mapErr(err)
}

// =============================================================================
// PROGRESS STORE (progression.ProgressStore interface)
// =============================================================================

func (s *Store) Progress(ctx context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) (progression.Progress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return progressOn(ctx, s.db, userID, challengeID)
}

func progressOn(ctx context.Context, ex executor, userID ledger.UserID, challengeID ledger.ChallengeID) (progression.Progress, bool, error) {
	const query = `
		SELECT id, user_id, challenge_id, status, started_at, completed_at, daily_limit_reached
		FROM user_progress
		WHERE user_id = ? AND challenge_id = ?
	`
	p, err := scanProgress(ex.QueryRowContext(ctx, query, string(userID), string(challengeID)))
	if err == sql.ErrNoRows {
		return progression.Progress{}, false, nil
	}
	if err != nil {
		return progression.Progress{}, false, err
	}
	return p, true, nil
}

func (s *Store) UpsertProgress(ctx context.Context, p progression.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertProgressOn(ctx, s.db, p)
}

func upsertProgressOn(ctx context.Context, ex executor, p progression.Progress) error {
	var completedAt sql.NullString
	if p.CompletedAt != nil {
		completedAt = sql.NullString{String: formatTime(*p.CompletedAt), Valid: true}
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO user_progress
		(id, user_id, challenge_id, status, started_at, completed_at, daily_limit_reached)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, challenge_id) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			daily_limit_reached = excluded.daily_limit_reached`,
		p.ID, string(p.UserID), string(p.ChallengeID), string(p.Status),
		formatTime(p.StartedAt), completedAt, p.DailyLimitReached,
	)
	return mapErr(err)
}

func (s *Store) DeleteProgress(ctx context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteProgressOn(ctx, s.db, userID, challengeID)
}

func deleteProgressOn(ctx context.Context, ex executor, userID ledger.UserID, challengeID ledger.ChallengeID) error {
	_, err := ex.ExecContext(ctx,
		"DELETE FROM user_progress WHERE user_id = ? AND challenge_id = ?",
		string(userID), string(challengeID))
	return mapErr(err)
}

func (s *Store) ProgressByUser(ctx context.Context, userID ledger.UserID) ([]progression.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return progressByUserOn(ctx, s.db, userID)
}

func progressByUserOn(ctx context.Context, ex executor, userID ledger.UserID) ([]progression.Progress, error) {
	const query = `
		SELECT id, user_id, challenge_id, status, started_at, completed_at, daily_limit_reached
		FROM user_progress
		WHERE user_id = ?
		ORDER BY challenge_id
	`
	rows, err := ex.QueryContext(ctx, query, string(userID))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []progression.Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgress(row rowScanner) (progression.Progress, error) {
	var (
		p           progression.Progress
		userID      string
		challengeID string
		status      string
		startedAt   string
		completedAt sql.NullString
	)
	err := row.Scan(&p.ID, &userID, &challengeID, &status, &startedAt, &completedAt, &p.DailyLimitReached)
	if err == sql.ErrNoRows {
		return progression.Progress{}, sql.ErrNoRows
	}
	if err != nil {
		return progression.Progress{}, mapErr(err)
	}
	p.UserID = ledger.UserID(userID)
	p.ChallengeID = ledger.ChallengeID(challengeID)
	p.Status = progression.Status(status)
	if p.StartedAt, err = parseTime(startedAt); err != nil {
		return progression.Progress{}, err
	}
	if completedAt.Valid {
		ts, err := parseTime(completedAt.String)
		if err != nil {
			return progression.Progress{}, err
		}
		p.CompletedAt = &ts
	}
	return p, nil
}

// =============================================================================
// SUBMISSION STORE (progression.SubmissionStore interface)
// =============================================================================

func (s *Store) InsertSubmission(ctx context.Context, sub progression.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertSubmissionOn(ctx, s.db, sub)
}

func insertSubmissionOn(ctx context.Context, ex executor, sub progression.Submission) error {
	resultsJSON, err := json.Marshal(sub.Results)
	if err != nil {
		return fmt.Errorf("failed to encode submission results: %w", err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO user_submissions (id, user_id, challenge_id, passed, results_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID, string(sub.UserID), string(sub.ChallengeID), sub.Passed,
		string(resultsJSON), formatTime(sub.CreatedAt),
	)
	return mapErr(err)
}

func (s *Store) Submissions(ctx context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) ([]progression.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return submissionsOn(ctx, s.db, userID, challengeID)
}

func submissionsOn(ctx context.Context, ex executor, userID ledger.UserID, challengeID ledger.ChallengeID) ([]progression.Submission, error) {
	const query = `
		SELECT id, user_id, challenge_id, passed, results_json, created_at
		FROM user_submissions
		WHERE user_id = ? AND challenge_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := ex.QueryContext(ctx, query, string(userID), string(challengeID))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []progression.Submission
	for rows.Next() {
		var (
			sub         progression.Submission
			user        string
			challenge   string
			resultsJSON string
			createdAt   string
		)
		if err := rows.Scan(&sub.ID, &user, &challenge, &sub.Passed, &resultsJSON, &createdAt); err != nil {
			return nil, mapErr(err)
		}
		sub.UserID = ledger.UserID(user)
		sub.ChallengeID = ledger.ChallengeID(challenge)
		if err := json.Unmarshal([]byte(resultsJSON), &sub.Results); err != nil {
			return nil, fmt.Errorf("failed to decode submission results: %w", err)
		}
		if sub.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSubmissions(ctx context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteSubmissionsOn(ctx, s.db, userID, challengeID)
}

func deleteSubmissionsOn(ctx context.Context, ex executor, userID ledger.UserID, challengeID ledger.ChallengeID) error {
	_, err := ex.ExecContext(ctx,
		"DELETE FROM user_submissions WHERE user_id = ? AND challenge_id = ?",
		string(userID), string(challengeID))
	return mapErr(err)
}

// =============================================================================
// CHALLENGE CATALOG (progression.Catalog interface)
// =============================================================================

// SaveChallenge registers or updates a challenge and replaces its objective
// set.
func (s *Store) SaveChallenge(ctx context.Context, c progression.Challenge, objectives []progression.Objective) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO challenges (id, slug, title, difficulty, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			slug = excluded.slug,
			title = excluded.title,
			difficulty = excluded.difficulty`,
		string(c.ID), c.Slug, c.Title, string(c.Difficulty),
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return mapErr(err)
	}

	if _, err = sqlTx.ExecContext(ctx,
		"DELETE FROM challenge_objectives WHERE challenge_id = ?", string(c.ID)); err != nil {
		return mapErr(err)
	}
	for i, o := range objectives {
		_, err = sqlTx.ExecContext(ctx, `
			INSERT INTO challenge_objectives
			(challenge_id, objective_key, title, description, category, position)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(c.ID), o.Key, o.Title, o.Description, o.Category, i,
		)
		if err != nil {
			return mapErr(err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return mapErr(err)
	}
	return nil
}

// ChallengeBySlug implements progression.Catalog.
func (s *Store) ChallengeBySlug(ctx context.Context, slug string) (progression.Challenge, []progression.Objective, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		c          progression.Challenge
		id         string
		difficulty string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, slug, title, difficulty FROM challenges WHERE slug = ?", slug,
	).Scan(&id, &c.Slug, &c.Title, &difficulty)
	if err == sql.ErrNoRows {
		return progression.Challenge{}, nil, &progression.ChallengeNotFoundError{Slug: slug}
	}
	if err != nil {
		return progression.Challenge{}, nil, mapErr(err)
	}
	c.ID = ledger.ChallengeID(id)
	c.Difficulty = progression.Difficulty(difficulty)

	rows, err := s.db.QueryContext(ctx, `
		SELECT objective_key, title, description, category
		FROM challenge_objectives
		WHERE challenge_id = ?
		ORDER BY position`, id)
	if err != nil {
		return progression.Challenge{}, nil, mapErr(err)
	}
	defer rows.Close()

	var objectives []progression.Objective
	for rows.Next() {
		var o progression.Objective
		if err := rows.Scan(&o.Key, &o.Title, &o.Description, &o.Category); err != nil {
			return progression.Challenge{}, nil, mapErr(err)
		}
		objectives = append(objectives, o)
	}
	return c, objectives, rows.Err()
}

// Challenges returns the whole registered catalog, ordered by slug.
func (s *Store) Challenges(ctx context.Context) ([]progression.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, slug, title, difficulty FROM challenges ORDER BY slug")
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []progression.Challenge
	for rows.Next() {
		var (
			c          progression.Challenge
			id         string
			difficulty string
		)
		if err := rows.Scan(&id, &c.Slug, &c.Title, &difficulty); err != nil {
			return nil, mapErr(err)
		}
		c.ID = ledger.ChallengeID(id)
		c.Difficulty = progression.Difficulty(difficulty)
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a database transaction. The claim is expected
// to be taken outside; this covers the award write sequence (ledger batch,
// total update, progress upsert) so a crash between steps cannot leave the
// cache out of step with the ledger.
func (s *Store) WithTx(ctx context.Context, fn func(progression.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapErr(err)
	}
	return nil
}

// txStore routes every operation through the open sql.Tx.
type txStore struct {
	tx *sql.Tx
}

var _ progression.Store = (*txStore)(nil)

func (ts *txStore) AppendBatch(ctx context.Context, txs []ledger.Transaction) error {
	return appendBatchOn(ctx, ts.tx, txs)
}

func (ts *txStore) Transactions(ctx context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	return transactionsOn(ctx, ts.tx, userID)
}

func (ts *txStore) TransactionsSince(ctx context.Context, userID ledger.UserID, action ledger.Action, since time.Time) ([]ledger.Transaction, error) {
	return transactionsSinceOn(ctx, ts.tx, userID, action, since)
}

func (ts *txStore) SumFor(ctx context.Context, userID ledger.UserID) (int64, error) {
	return sumForOn(ctx, ts.tx, userID)
}

func (ts *txStore) UserIDs(ctx context.Context) ([]ledger.UserID, error) {
	rows, err := ts.tx.QueryContext(ctx, "SELECT DISTINCT user_id FROM xp_transactions")
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []ledger.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, ledger.UserID(id))
	}
	return out, rows.Err()
}

func (ts *txStore) Claim(ctx context.Context, claim ledger.CompletionClaim) (bool, error) {
	return claimOn(ctx, ts.tx, claim)
}

func (ts *txStore) HasClaim(ctx context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) (bool, error) {
	return hasClaimOn(ctx, ts.tx, userID, challengeID)
}

func (ts *txStore) Total(ctx context.Context, userID ledger.UserID) (ledger.UserTotal, error) {
	return totalOn(ctx, ts.tx, userID)
}

func (ts *txStore) AddToTotal(ctx context.Context, userID ledger.UserID, delta int64, now time.Time) (int64, error) {
	return addToTotalOn(ctx, ts.tx, userID, delta, now)
}

func (ts *txStore) SetTotal(ctx context.Context, userID ledger.UserID, total int64, now time.Time) error {
	return setTotalOn(ctx, ts.tx, userID, total, now)
}

func (ts *txStore) Progress(ctx context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) (progression.Progress, bool, error) {
	return progressOn(ctx, ts.tx, userID, challengeID)
}

func (ts *txStore) UpsertProgress(ctx context.Context, p progression.Progress) error {
	return upsertProgressOn(ctx, ts.tx, p)
}

func (ts *txStore) DeleteProgress(ctx context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) error {
	return deleteProgressOn(ctx, ts.tx, userID, challengeID)
}

func (ts *txStore) ProgressByUser(ctx context.Context, userID ledger.UserID) ([]progression.Progress, error) {
	return progressByUserOn(ctx, ts.tx, userID)
}

func (ts *txStore) InsertSubmission(ctx context.Context, sub progression.Submission) error {
	return insertSubmissionOn(ctx, ts.tx, sub)
}

func (ts *txStore) Submissions(ctx context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) ([]progression.Submission, error) {
	return submissionsOn(ctx, ts.tx, userID, challengeID)
}

func (ts *txStore) DeleteSubmissions(ctx context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) error {
	return deleteSubmissionsOn(ctx, ts.tx, userID, challengeID)
}

// WithTx on a txStore participates in the enclosing transaction.
func (ts *txStore) WithTx(ctx context.Context, fn func(progression.Store) error) error {
	return fn(ts)
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// mapErr classifies driver errors into the engine's taxonomy.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", ledger.ErrTransientStorage, err)
	}
	return fmt.Errorf("%w: %v", ledger.ErrPermanentStorage, err)
}
