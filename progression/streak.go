/*
streak.go - Consecutive-day streak derivation

PURPOSE:
  Computes the current streak by replaying daily_streak transactions from
  the ledger. Pure read, no side effects, safe under unlimited concurrency.

ALGORITHM:
  1. Fetch daily_streak transactions in a 90-day trailing window
  2. Truncate to UTC calendar days, deduplicate
  3. Sort descending
  4. A streak is alive only if the most recent day is today or yesterday;
     otherwise it is dead and counts as 0 (a lone old day is never "1")
  5. Walk backward counting exactly-consecutive days; stop at the first gap

EDGE CASES:
  - One transaction today: 1
  - One transaction yesterday, none today: 1 (alive, not yet extended)
  - A 2+ day gap before the most recent run truncates at that gap
  - Multiple transactions on the same day count once
*/
package progression

import (
	"context"
	"sort"
	"time"

	"github.com/kubeasy-dev/progress-engine/ledger"
)

// StreakWindowDays bounds how far back the streak walk looks. A streak
// longer than the window is reported as the window length.
const StreakWindowDays = 90

// CurrentStreak returns the user's consecutive-day streak as of now.
func CurrentStreak(ctx context.Context, store ledger.Store, userID ledger.UserID, now time.Time) (int, error) {
	today := ledger.DayOf(now)
	since := today.AddDays(-StreakWindowDays).Time()

	txs, err := store.TransactionsSince(ctx, userID, ledger.ActionDailyStreak, since)
	if err != nil {
		return 0, err
	}
	return streakOverDays(dedupDays(txs), today), nil
}

// dedupDays truncates transaction timestamps to calendar days and removes
// duplicates.
func dedupDays(txs []ledger.Transaction) []ledger.Day {
	seen := make(map[ledger.Day]bool, len(txs))
	days := make([]ledger.Day, 0, len(txs))
	for _, tx := range txs {
		d := tx.Day()
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	return days
}

// streakOverDays walks deduplicated days backward from the anchor.
func streakOverDays(days []ledger.Day, today ledger.Day) int {
	if len(days) == 0 {
		return 0
	}

	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	// Streak is dead unless the most recent day is today or yesterday.
	gap := ledger.DaysBetween(days[0], today)
	if gap > 1 || gap < 0 {
		return 0
	}

	streak := 1
	prev := days[0]
	for _, d := range days[1:] {
		if ledger.DaysBetween(d, prev) != 1 {
			break
		}
		streak++
		prev = d
	}
	return streak
}
