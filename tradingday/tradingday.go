// Package tradingday attributes instants to trading dates.
//
// A trading date runs from the cutoff hour (UTC) on calendar day N-1 to the
// cutoff hour on day N. With the default cutoff of 22, the FX session that
// opens after the New York close belongs to the following calendar date:
//
//	2025-02-10 21:59 UTC -> 2025-02-10
//	2025-02-10 22:00 UTC -> 2025-02-11
package tradingday

import (
	"time"
)

// DefaultCutoffHourUTC is the hour the trading day rolls over when the user
// has not chosen another value.
const DefaultCutoffHourUTC = 22

// DateLayout is the format of every trading date string.
const DateLayout = "2006-01-02"

// ClampCutoff forces h into [0,23].
func ClampCutoff(h int) int {
	if h < 0 {
		return 0
	}
	if h > 23 {
		return 23
	}
	return h
}

// Date returns the trading date of t for the given cutoff hour.
func Date(t time.Time, cutoffHourUTC int) string {
	return day(t, cutoffHourUTC).Format(DateLayout)
}

// DateDaysAgo returns the trading date of now shifted back n days. The shift
// is applied to the already resolved trading date.
func DateDaysAgo(now time.Time, n, cutoffHourUTC int) string {
	return day(now, cutoffHourUTC).AddDate(0, 0, -n).Format(DateLayout)
}

// Start returns the instant the given trading date begins, that is the cutoff
// hour of the previous calendar day.
func Start(date string, cutoffHourUTC int) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	c := time.Duration(ClampCutoff(cutoffHourUTC)) * time.Hour
	return d.AddDate(0, 0, -1).Add(c), nil
}

// Bounds returns the half-open interval [start, end) covered by date.
func Bounds(date string, cutoffHourUTC int) (time.Time, time.Time, error) {
	start, err := Start(date, cutoffHourUTC)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}

// day returns midnight UTC of the trading date t belongs to.
func day(t time.Time, cutoffHourUTC int) time.Time {
	u := t.UTC()
	d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	if u.Hour() >= cutoffHourUTC {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// Calendar binds a cutoff hour to a source of the current time.
type Calendar struct {
	Cutoff int
	Now    func() time.Time
}

// NewCalendar returns a Calendar reading the wall clock.
func NewCalendar(cutoffHourUTC int) Calendar {
	return Calendar{Cutoff: ClampCutoff(cutoffHourUTC), Now: time.Now}
}

// Today is the trading date of the current instant.
func (c Calendar) Today() string {
	return Date(c.now(), c.Cutoff)
}

// DaysAgo is the trading date n days before Today.
func (c Calendar) DaysAgo(n int) string {
	return DateDaysAgo(c.now(), n, c.Cutoff)
}

func (c Calendar) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
