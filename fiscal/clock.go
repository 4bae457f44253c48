package fiscal

import "time"

// =============================================================================
// PERIOD CLOCK - Pure lifecycle derivation from dates
// =============================================================================

// DeriveStatus returns the lifecycle state of a [start, end] window at now.
// Pure, deterministic, no I/O.
func DeriveStatus(now, start, end time.Time) PeriodStatus {
	switch {
	case now.Before(start):
		return StatusPending
	case now.After(end):
		return StatusClosed
	default:
		return StatusOpen
	}
}

// EffectiveStatus resolves the status callers should act on: the persisted
// value for locked periods, the date-derived value otherwise.
func EffectiveStatus(now time.Time, p FiscalPeriod) PeriodStatus {
	if p.Locked {
		return p.Status
	}
	return DeriveStatus(now, p.StartDate, p.EndDate)
}

// IsOpen reports whether a period is currently accepting filings:
// effectively OPEN and not soft-deleted.
func IsOpen(now time.Time, p FiscalPeriod) bool {
	return p.Active && EffectiveStatus(now, p) == StatusOpen
}

// Window carries the derived state plus human-facing day counters.
// DaysToStart is set only while PENDING, DaysToEnd only while OPEN.
type Window struct {
	Status      PeriodStatus
	DaysToStart *int
	DaysToEnd   *int
}

// PeriodWindow derives the window counters for a period at now.
func PeriodWindow(now time.Time, p FiscalPeriod) Window {
	w := Window{Status: EffectiveStatus(now, p)}
	switch w.Status {
	case StatusPending:
		d := DaysUntil(now, p.StartDate)
		w.DaysToStart = &d
	case StatusOpen:
		d := DaysUntil(now, p.EndDate)
		w.DaysToEnd = &d
	}
	return w
}

// DaysUntil returns the number of whole or partial days from now to target,
// rounding up. Zero when target is not after now.
func DaysUntil(now, target time.Time) int {
	if !target.After(now) {
		return 0
	}
	const day = 24 * time.Hour
	diff := target.Sub(now)
	days := int(diff / day)
	if diff%day != 0 {
		days++
	}
	return days
}

// Date builds a UTC midnight timestamp. Period windows are day-granular.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last instant of the given date's day, so inclusive
// end-date comparisons behave as the calendar administrator expects.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}
