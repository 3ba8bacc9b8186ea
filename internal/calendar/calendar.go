// Package calendar holds the date-range helpers shared by pricing and
// availability. Every value is a calendar day: midnight UTC, no time of day.
package calendar

import (
	"fmt"
	"time"
)

// Layout is the wire format for calendar days.
const Layout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Date builds a calendar day.
func Date(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// Day drops the time of day, keeping the date as seen in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// Parse reads a YYYY-MM-DD string into a calendar day.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

// IsWeekend reports whether the day is a Saturday or a Sunday.
func IsWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// DaysAfter returns how many whole days b lies after a. Negative when b is earlier.
func DaysAfter(a, b time.Time) int {
	return int((Day(b).Unix() - Day(a).Unix()) / secondsPerDay)
}

// InclusiveDayCount counts the days of [start, end], both ends included.
// Callers must ensure end is not before start.
func InclusiveDayCount(start, end time.Time) int {
	return DaysAfter(start, end) + 1
}

// RangesOverlap reports whether two closed ranges share at least one day.
// Ranges that touch on a boundary day overlap.
func RangesOverlap(startA, endA, startB, endB time.Time) bool {
	return !Day(endA).Before(Day(startB)) && !Day(endB).Before(Day(startA))
}

// EachDay calls fn for every day of [start, end] in order.
func EachDay(start, end time.Time, fn func(time.Time)) {
	last := Day(end)
	for cur := Day(start); !cur.After(last); cur = cur.AddDate(0, 0, 1) {
		fn(cur)
	}
}
