package rules

import (
	"math"
	"time"
)

// DateLayout is the calendar date format used in messages and templates
const DateLayout = "2006-01-02"

const day = 24 * time.Hour

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// IsBusinessDay returns false on Saturdays and Sundays
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// BusinessDaysBetween counts the business days after from up to and
// including to, on calendar dates. It is zero when to is not after from.
func BusinessDaysBetween(from, to time.Time) int {
	start := startOfDay(from)
	end := startOfDay(to.In(from.Location()))
	if !end.After(start) {
		return 0
	}

	count := 0
	for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			count++
		}
	}
	return count
}

// AddBusinessDays moves t forward by a possibly fractional number of
// business days: whole days first, then the remainder as hours. Landing on
// a weekend rolls forward to Monday at the same clock time.
func AddBusinessDays(t time.Time, days float64) time.Time {
	if days <= 0 {
		return t
	}

	whole, frac := math.Modf(days)
	out := t
	for i := 0; i < int(whole); i++ {
		out = out.AddDate(0, 0, 1)
		for !IsBusinessDay(out) {
			out = out.AddDate(0, 0, 1)
		}
	}

	out = out.Add(time.Duration(frac * float64(day)))
	for !IsBusinessDay(out) {
		out = out.AddDate(0, 0, 1)
	}
	return out
}

// DaysOpen counts calendar days from submission to now. Unsubmitted
// documents and clocks behind the submission date yield zero.
func DaysOpen(submitted, now time.Time) int {
	if submitted.IsZero() {
		return 0
	}
	start := startOfDay(submitted)
	end := startOfDay(now.In(submitted.Location()))
	if !end.After(start) {
		return 0
	}
	return int(math.Round(end.Sub(start).Hours() / 24))
}
