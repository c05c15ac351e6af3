package ledger

import "time"

// =============================================================================
// DAY - Calendar day (UTC truncation)
// =============================================================================

// Day is a calendar day. All day math in the engine uses a single truncation
// rule: UTC midnight. Streak uniqueness and consecutive-day walks depend on
// every caller applying the same rule, so nothing outside this file should
// truncate timestamps by hand.
type Day struct {
	t time.Time
}

// DayOf truncates ts to its UTC calendar day.
func DayOf(ts time.Time) Day {
	u := ts.UTC()
	return Day{t: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// NewDay builds a Day from explicit components.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Time returns the UTC midnight instant of the day.
func (d Day) Time() time.Time { return d.t }

func (d Day) AddDays(n int) Day     { return Day{t: d.t.AddDate(0, 0, n)} }
func (d Day) Before(o Day) bool     { return d.t.Before(o.t) }
func (d Day) After(o Day) bool      { return d.t.After(o.t) }
func (d Day) Equal(o Day) bool      { return d.t.Equal(o.t) }
func (d Day) IsZero() bool          { return d.t.IsZero() }

// DaysBetween returns the number of whole days from a to b (positive when
// b is after a).
func DaysBetween(a, b Day) int {
	return int(b.t.Sub(a.t) / (24 * time.Hour))
}

func (d Day) String() string { return d.t.Format("2006-01-02") }
