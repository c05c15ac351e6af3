package progression_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeasy-dev/progress-engine/progression"
)

// =============================================================================
// HUB TESTS
// =============================================================================

func TestHub_DeliversToMatchingSubscriber(t *testing.T) {
	hub := progression.NewHub()
	events, cancel := hub.Subscribe("user-1", "easy-one")
	defer cancel()

	hub.Notify(context.Background(), progression.Event{
		UserID:        "user-1",
		ChallengeSlug: "easy-one",
		ObjectiveKey:  "obj-a",
		Passed:        true,
	})

	select {
	case e := <-events:
		assert.Equal(t, "obj-a", e.ObjectiveKey)
		assert.True(t, e.Passed)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestHub_KeyedByUserAndChallenge(t *testing.T) {
	hub := progression.NewHub()
	events, cancel := hub.Subscribe("user-1", "easy-one")
	defer cancel()

	// Different user, different challenge: not delivered
	hub.Notify(context.Background(), progression.Event{UserID: "user-2", ChallengeSlug: "easy-one"})
	hub.Notify(context.Background(), progression.Event{UserID: "user-1", ChallengeSlug: "hard-one"})

	select {
	case <-events:
		t.Fatal("event for a different pair must not be delivered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_FullSubscriber_DoesNotBlockPublisher(t *testing.T) {
	// GIVEN: A subscriber that never drains its channel
	// WHEN: Publishing far more events than the buffer holds
	// THEN: Notify returns promptly every time; overflow is dropped

	hub := progression.NewHub()
	_, cancel := hub.Subscribe("user-1", "easy-one")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Notify(context.Background(), progression.Event{
				UserID:        "user-1",
				ChallengeSlug: "easy-one",
			})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestHub_CancelClosesChannel(t *testing.T) {
	hub := progression.NewHub()
	events, cancel := hub.Subscribe("user-1", "easy-one")

	cancel()

	_, open := <-events
	assert.False(t, open, "cancel must close the subscription channel")

	// Publishing after cancel is a no-op, not a panic
	hub.Notify(context.Background(), progression.Event{UserID: "user-1", ChallengeSlug: "easy-one"})
}

func TestService_EmitsObjectiveAndCompletionEvents(t *testing.T) {
	// One event per objective result plus one completion event.
	f := newFixture(t)
	hub := progression.NewHub()
	withHub := progression.NewService(f.store, newTestRegistry(t),
		progression.WithNotifier(hub), progression.WithClock(f.clock.Now))

	events, cancel := hub.Subscribe("user-1", "easy-one")
	defer cancel()

	_, err := withHub.Submit(context.Background(), "user-1", "easy-one", pass("obj-a", "obj-b"))
	require.NoError(t, err)

	var got []progression.Event
	timeout := time.After(time.Second)
	for len(got) < 3 {
		select {
		case e := <-events:
			got = append(got, e)
		case <-timeout:
			t.Fatalf("expected 3 events, got %d", len(got))
		}
	}

	assert.Equal(t, "obj-a", got[0].ObjectiveKey)
	assert.Equal(t, "obj-b", got[1].ObjectiveKey)
	assert.True(t, got[2].Completed)
	assert.Equal(t, int64(100), got[2].XPAwarded)
}
