package timeutil

import "time"

var nowFunc = time.Now

// Now returns the current time. It is wrapped so tests can pin the clock for
// air-date comparisons and timestamp assertions.
func Now() time.Time {
	return nowFunc()
}

// NowMillis returns the current time as epoch milliseconds, the timestamp
// representation used throughout the tracking core.
func NowMillis() int64 {
	return nowFunc().UnixMilli()
}

// Today returns the current date truncated to day granularity in UTC.
// Air-date comparisons are date-level, never time-of-day.
func Today() time.Time {
	now := nowFunc().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// SetNowFunc overrides the function used by Now. Passing nil resets it.
func SetNowFunc(fn func() time.Time) {
	if fn == nil {
		nowFunc = time.Now
		return
	}
	nowFunc = fn
}
