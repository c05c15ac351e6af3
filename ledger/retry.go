/*
retry.go - Bounded exponential backoff for transient storage failures

PURPOSE:
  Write steps that run after a successful completion claim (ledger append,
  total update, progress upsert) are retried on transient storage errors.
  The policy is an explicit, injectable value rather than ad-hoc loops in
  the orchestrator, so retry behavior is independently testable.

WHAT IS NEVER RETRIED:
  - The claim itself. A failed claim is terminal and authoritative.
  - Invariant violations (duplicate first_challenge / daily_streak).
  - Permanent storage errors.

EXHAUSTION:
  When attempts run out the last error is returned. The caller must fail
  loudly: a durable ledger write with no matching aggregate update is the
  one failure mode the reconciliation invariant cannot self-heal without
  the reconciliation job.
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// RETRY POLICY
// =============================================================================

// RetryPolicy retries a function on retryable errors with exponential
// backoff. The zero value is unusable; use DefaultRetryPolicy or construct
// explicitly.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration

	// sleep is swappable in tests. Nil means time.Sleep honoring ctx.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy matches the write-path contract: up to 5 attempts,
// delay doubling from 50ms, capped at 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   50 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    time.Second,
	}
}

// Do runs fn, retrying while IsRetryable(err) and attempts remain.
// Non-retryable errors are returned immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if serr := p.doSleep(ctx, delay); serr != nil {
			return serr
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}

func (p RetryPolicy) doSleep(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WithSleep returns a copy of the policy using the given sleep function.
// Tests use this to avoid real delays.
func (p RetryPolicy) WithSleep(sleep func(ctx context.Context, d time.Duration) error) RetryPolicy {
	p.sleep = sleep
	return p
}
