// Package schedule computes recurring-transaction occurrence dates and
// materializes due templates.
package schedule

import (
	"fmt"
	"time"

	"bookkeep/internal/core"
)

// NextDate returns the occurrence after prev for the given interval.
//
// The next date is derived from the previous occurrence, not from "now",
// so a missed processing window never skews the cadence. anchor is the
// template's start date: MONTHLY preserves its day-of-month with
// end-of-month clamping (Jan 31 -> Feb 28 -> Mar 31, no drift) and YEARLY
// preserves its month and day, clamping Feb 29 to Feb 28 off leap years.
func NextDate(interval core.RecurringInterval, prev, anchor time.Time) (time.Time, error) {
	switch interval {
	case core.Daily:
		return prev.AddDate(0, 0, 1), nil
	case core.Weekly:
		return prev.AddDate(0, 0, 7), nil
	case core.Monthly:
		year, month := prev.Year(), prev.Month()+1
		day := clampDay(anchor.Day(), year, month)
		return atDay(prev, year, month, day), nil
	case core.Yearly:
		year := prev.Year() + 1
		day := clampDay(anchor.Day(), year, anchor.Month())
		return atDay(prev, year, anchor.Month(), day), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", core.ErrInvalidInterval, interval)
	}
}

// clampDay limits day to the last day of the given month.
func clampDay(day int, year int, month time.Month) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

// atDay rebuilds prev's clock time on a new calendar date. time.Date
// normalizes month overflow (January+12 etc.) for us.
func atDay(prev time.Time, year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day,
		prev.Hour(), prev.Minute(), prev.Second(), prev.Nanosecond(), prev.Location())
}
