/*
notify.go - Best-effort completion notifications

PURPOSE:
  Emits objective and completion events to interested consumers (UI
  update channels). Delivery is at-most-once and best effort: a full or
  absent subscriber never blocks or fails the completion request, and the
  core carries no correctness dependency on delivery.

SEE ALSO:
  - service.go: emits events after the write sequence commits
*/
package progression

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kubeasy-dev/progress-engine/ledger"
)

// =============================================================================
// EVENTS
// =============================================================================

// Event is a notification about one objective result or a completed
// challenge. Completion-level events have ObjectiveKey == "" and Completed
// set.
type Event struct {
	UserID        ledger.UserID `json:"userId"`
	ChallengeSlug string        `json:"challengeSlug"`
	ObjectiveKey  string        `json:"objectiveKey,omitempty"`
	Passed        bool          `json:"passed"`
	Completed     bool          `json:"completed,omitempty"`
	XPAwarded     int64         `json:"xpAwarded,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Notifier delivers events. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// =============================================================================
// HUB - In-process pub/sub keyed by (user, challenge)
// =============================================================================

type hubKey struct {
	UserID ledger.UserID
	Slug   string
}

// Hub fans events out to per-(user, challenge) subscriber channels.
// Slow subscribers lose events rather than blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[hubKey][]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[hubKey][]chan Event)}
}

// Subscribe returns a buffered channel of events for the pair and a cancel
// function that closes it.
func (h *Hub) Subscribe(userID ledger.UserID, challengeSlug string) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	k := hubKey{UserID: userID, Slug: challengeSlug}

	h.mu.Lock()
	h.subs[k] = append(h.subs[k], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		chans := h.subs[k]
		for i, c := range chans {
			if c == ch {
				h.subs[k] = append(chans[:i], chans[i+1:]...)
				close(ch)
				break
			}
		}
		if len(h.subs[k]) == 0 {
			delete(h.subs, k)
		}
	}
	return ch, cancel
}

// Notify delivers the event to current subscribers. Non-blocking: events
// for full channels are dropped.
func (h *Hub) Notify(_ context.Context, e Event) {
	k := hubKey{UserID: e.UserID, Slug: e.ChallengeSlug}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[k] {
		select {
		case ch <- e:
		default:
			// Subscriber is not keeping up; at-most-once allows dropping.
		}
	}
}

var _ Notifier = (*Hub)(nil)

// =============================================================================
// LOG NOTIFIER
// =============================================================================

// LogNotifier writes events to the structured log. Useful as a default when
// no realtime consumer is wired.
type LogNotifier struct {
	Log *zap.Logger
}

func (n *LogNotifier) Notify(_ context.Context, e Event) {
	if n.Log == nil {
		return
	}
	n.Log.Info("progression event",
		zap.String("user_id", string(e.UserID)),
		zap.String("challenge", e.ChallengeSlug),
		zap.String("objective", e.ObjectiveKey),
		zap.Bool("passed", e.Passed),
		zap.Bool("completed", e.Completed),
		zap.Int64("xp_awarded", e.XPAwarded),
	)
}

var _ Notifier = (*LogNotifier)(nil)
