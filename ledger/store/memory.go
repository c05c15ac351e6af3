// Package store provides an in-memory implementation of the persistence
// interfaces, used by tests and local development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kubeasy-dev/progress-engine/ledger"
	"github.com/kubeasy-dev/progress-engine/progression"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements progression.Store in memory. All maps are guarded by a
// single mutex; WithTx simulates transactions with snapshot + rollback, the
// same all-or-nothing semantics the SQLite store gets from sql.Tx.
type Memory struct {
	mu sync.RWMutex

	transactions map[ledger.UserID][]ledger.Transaction
	firstSeen    map[ledger.UserID]bool
	streakDays   map[ledger.UserID]map[ledger.Day]bool

	claims map[claimKey]ledger.CompletionClaim
	totals map[ledger.UserID]ledger.UserTotal

	progress    map[pairKey]progression.Progress
	submissions map[pairKey][]progression.Submission
}

type claimKey struct {
	UserID      ledger.UserID
	ChallengeID ledger.ChallengeID
}

type pairKey = claimKey

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[ledger.UserID][]ledger.Transaction),
		firstSeen:    make(map[ledger.UserID]bool),
		streakDays:   make(map[ledger.UserID]map[ledger.Day]bool),
		claims:       make(map[claimKey]ledger.CompletionClaim),
		totals:       make(map[ledger.UserID]ledger.UserTotal),
		progress:     make(map[pairKey]progression.Progress),
		submissions:  make(map[pairKey][]progression.Submission),
	}
}

var _ progression.Store = (*Memory)(nil)

// =============================================================================
// LEDGER STORE
// =============================================================================

func (m *Memory) AppendBatch(_ context.Context, txs []ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendBatchLocked(txs)
}

func (m *Memory) appendBatchLocked(txs []ledger.Transaction) error {
	// Check the whole batch against existing state first (atomic check).
	for _, tx := range txs {
		switch tx.Action {
		case ledger.ActionFirstChallenge:
			if m.firstSeen[tx.UserID] {
				return ledger.ErrDuplicateFirstChallenge
			}
		case ledger.ActionDailyStreak:
			if m.streakDays[tx.UserID][tx.Day()] {
				return &ledger.DuplicateStreakError{UserID: tx.UserID, Day: tx.Day()}
			}
		}
	}

	// Atomic write.
	for _, tx := range txs {
		m.transactions[tx.UserID] = insertSorted(m.transactions[tx.UserID], tx)
		switch tx.Action {
		case ledger.ActionFirstChallenge:
			m.firstSeen[tx.UserID] = true
		case ledger.ActionDailyStreak:
			if m.streakDays[tx.UserID] == nil {
				m.streakDays[tx.UserID] = make(map[ledger.Day]bool)
			}
			m.streakDays[tx.UserID][tx.Day()] = true
		}
	}
	return nil
}

// insertSorted keeps the slice ordered by CreatedAt.
func insertSorted(txs []ledger.Transaction, tx ledger.Transaction) []ledger.Transaction {
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].CreatedAt.After(tx.CreatedAt)
	})
	txs = append(txs, ledger.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	return txs
}

func (m *Memory) Transactions(_ context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Transaction, len(m.transactions[userID]))
	copy(out, m.transactions[userID])
	return out, nil
}

func (m *Memory) TransactionsSince(_ context.Context, userID ledger.UserID, action ledger.Action, since time.Time) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Transaction
	for _, tx := range m.transactions[userID] {
		if tx.Action == action && !tx.CreatedAt.Before(since) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *Memory) SumFor(_ context.Context, userID ledger.UserID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	for _, tx := range m.transactions[userID] {
		sum += tx.XPAmount
	}
	return sum, nil
}

func (m *Memory) UserIDs(_ context.Context) ([]ledger.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.UserID, 0, len(m.transactions))
	for id := range m.transactions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// =============================================================================
// CLAIM STORE
// =============================================================================

func (m *Memory) Claim(_ context.Context, claim ledger.CompletionClaim) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := claimKey{UserID: claim.UserID, ChallengeID: claim.ChallengeID}
	if _, exists := m.claims[k]; exists {
		return false, nil
	}
	m.claims[k] = claim
	return true, nil
}

func (m *Memory) HasClaim(_ context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.claims[claimKey{UserID: userID, ChallengeID: challengeID}]
	return exists, nil
}

// =============================================================================
// TOTAL STORE
// =============================================================================

func (m *Memory) Total(_ context.Context, userID ledger.UserID) (ledger.UserTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.totals[userID]; ok {
		return t, nil
	}
	return ledger.UserTotal{UserID: userID}, nil
}

func (m *Memory) AddToTotal(_ context.Context, userID ledger.UserID, delta int64, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addToTotalLocked(userID, delta, now), nil
}

func (m *Memory) addToTotalLocked(userID ledger.UserID, delta int64, now time.Time) int64 {
	t := m.totals[userID]
	t.UserID = userID
	t.TotalXP += delta
	t.UpdatedAt = now
	m.totals[userID] = t
	return t.TotalXP
}

func (m *Memory) SetTotal(_ context.Context, userID ledger.UserID, total int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[userID] = ledger.UserTotal{UserID: userID, TotalXP: total, UpdatedAt: now}
	return nil
}

// =============================================================================
// PROGRESS STORE
// =============================================================================

func (m *Memory) Progress(_ context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) (progression.Progress, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[pairKey{UserID: userID, ChallengeID: challengeID}]
	return p, ok, nil
}

func (m *Memory) UpsertProgress(_ context.Context, p progression.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[pairKey{UserID: p.UserID, ChallengeID: p.ChallengeID}] = p
	return nil
}

func (m *Memory) DeleteProgress(_ context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.progress, pairKey{UserID: userID, ChallengeID: challengeID})
	return nil
}

func (m *Memory) ProgressByUser(_ context.Context, userID ledger.UserID) ([]progression.Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []progression.Progress
	for k, p := range m.progress {
		if k.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChallengeID < out[j].ChallengeID })
	return out, nil
}

// =============================================================================
// SUBMISSION STORE
// =============================================================================

func (m *Memory) InsertSubmission(_ context.Context, s progression.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pairKey{UserID: s.UserID, ChallengeID: s.ChallengeID}
	m.submissions[k] = append(m.submissions[k], s)
	return nil
}

func (m *Memory) Submissions(_ context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) ([]progression.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k := pairKey{UserID: userID, ChallengeID: challengeID}
	out := make([]progression.Submission, len(m.submissions[k]))
	copy(out, m.submissions[k])
	return out, nil
}

func (m *Memory) DeleteSubmissions(_ context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.submissions, pairKey{UserID: userID, ChallengeID: challengeID})
	return nil
}

// =============================================================================
// TRANSACTIONS - snapshot + rollback
// =============================================================================

// WithTx executes fn against a transactional view. On error the pre-call
// state is restored.
func (m *Memory) WithTx(ctx context.Context, fn func(progression.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	transactions map[ledger.UserID][]ledger.Transaction
	firstSeen    map[ledger.UserID]bool
	streakDays   map[ledger.UserID]map[ledger.Day]bool
	claims       map[claimKey]ledger.CompletionClaim
	totals       map[ledger.UserID]ledger.UserTotal
	progress     map[pairKey]progression.Progress
	submissions  map[pairKey][]progression.Submission
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		transactions: make(map[ledger.UserID][]ledger.Transaction, len(m.transactions)),
		firstSeen:    make(map[ledger.UserID]bool, len(m.firstSeen)),
		streakDays:   make(map[ledger.UserID]map[ledger.Day]bool, len(m.streakDays)),
		claims:       make(map[claimKey]ledger.CompletionClaim, len(m.claims)),
		totals:       make(map[ledger.UserID]ledger.UserTotal, len(m.totals)),
		progress:     make(map[pairKey]progression.Progress, len(m.progress)),
		submissions:  make(map[pairKey][]progression.Submission, len(m.submissions)),
	}
	for k, v := range m.transactions {
		s.transactions[k] = append([]ledger.Transaction{}, v...)
	}
	for k, v := range m.firstSeen {
		s.firstSeen[k] = v
	}
	for k, v := range m.streakDays {
		days := make(map[ledger.Day]bool, len(v))
		for d, b := range v {
			days[d] = b
		}
		s.streakDays[k] = days
	}
	for k, v := range m.claims {
		s.claims[k] = v
	}
	for k, v := range m.totals {
		s.totals[k] = v
	}
	for k, v := range m.progress {
		s.progress[k] = v
	}
	for k, v := range m.submissions {
		s.submissions[k] = append([]progression.Submission{}, v...)
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.transactions = s.transactions
	m.firstSeen = s.firstSeen
	m.streakDays = s.streakDays
	m.claims = s.claims
	m.totals = s.totals
	m.progress = s.progress
	m.submissions = s.submissions
}

// txView proxies to the parent's locked internals. The parent mutex is held
// for the duration of WithTx.
type txView struct {
	parent *Memory
}

var _ progression.Store = (*txView)(nil)

func (tv *txView) AppendBatch(_ context.Context, txs []ledger.Transaction) error {
	return tv.parent.appendBatchLocked(txs)
}

func (tv *txView) Transactions(_ context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	return tv.parent.transactions[userID], nil
}

func (tv *txView) TransactionsSince(_ context.Context, userID ledger.UserID, action ledger.Action, since time.Time) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for _, tx := range tv.parent.transactions[userID] {
		if tx.Action == action && !tx.CreatedAt.Before(since) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (tv *txView) SumFor(_ context.Context, userID ledger.UserID) (int64, error) {
	var sum int64
	for _, tx := range tv.parent.transactions[userID] {
		sum += tx.XPAmount
	}
	return sum, nil
}

func (tv *txView) UserIDs(_ context.Context) ([]ledger.UserID, error) {
	out := make([]ledger.UserID, 0, len(tv.parent.transactions))
	for id := range tv.parent.transactions {
		out = append(out, id)
	}
	return out, nil
}

func (tv *txView) Claim(_ context.Context, claim ledger.CompletionClaim) (bool, error) {
	k := claimKey{UserID: claim.UserID, ChallengeID: claim.ChallengeID}
	if _, exists := tv.parent.claims[k]; exists {
		return false, nil
	}
	tv.parent.claims[k] = claim
	return true, nil
}

func (tv *txView) HasClaim(_ context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) (bool, error) {
	_, exists := tv.parent.claims[claimKey{UserID: userID, ChallengeID: challengeID}]
	return exists, nil
}

func (tv *txView) Total(_ context.Context, userID ledger.UserID) (ledger.UserTotal, error) {
	if t, ok := tv.parent.totals[userID]; ok {
		return t, nil
	}
	return ledger.UserTotal{UserID: userID}, nil
}

func (tv *txView) AddToTotal(_ context.Context, userID ledger.UserID, delta int64, now time.Time) (int64, error) {
	return tv.parent.addToTotalLocked(userID, delta, now), nil
}

func (tv *txView) SetTotal(_ context.Context, userID ledger.UserID, total int64, now time.Time) error {
	tv.parent.totals[userID] = ledger.UserTotal{UserID: userID, TotalXP: total, UpdatedAt: now}
	return nil
}

func (tv *txView) Progress(_ context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) (progression.Progress, bool, error) {
	p, ok := tv.parent.progress[pairKey{UserID: userID, ChallengeID: challengeID}]
	return p, ok, nil
}

func (tv *txView) UpsertProgress(_ context.Context, p progression.Progress) error {
	tv.parent.progress[pairKey{UserID: p.UserID, ChallengeID: p.ChallengeID}] = p
	return nil
}

func (tv *txView) DeleteProgress(_ context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) error {
	delete(tv.parent.progress, pairKey{UserID: userID, ChallengeID: challengeID})
	return nil
}

func (tv *txView) ProgressByUser(_ context.Context, userID ledger.UserID) ([]progression.Progress, error) {
	var out []progression.Progress
	for k, p := range tv.parent.progress {
		if k.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (tv *txView) InsertSubmission(_ context.Context, s progression.Submission) error {
	k := pairKey{UserID: s.UserID, ChallengeID: s.ChallengeID}
	tv.parent.submissions[k] = append(tv.parent.submissions[k], s)
	return nil
}

func (tv *txView) Submissions(_ context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) ([]progression.Submission, error) {
	return tv.parent.submissions[pairKey{UserID: userID, ChallengeID: challengeID}], nil
}

func (tv *txView) DeleteSubmissions(_ context.Context, userID ledger.UserID, challengeID ledger.ChallengeID) error {
	delete(tv.parent.submissions, pairKey{UserID: userID, ChallengeID: challengeID})
	return nil
}

// WithTx on a view participates in the enclosing transaction.
func (tv *txView) WithTx(ctx context.Context, fn func(progression.Store) error) error {
	return fn(tv)
}
