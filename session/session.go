// Package session derives the hourly bucket an analysis belongs to and
// detects when the current bucket rolls over.
package session

import (
	"time"
)

// KeyLayout formats a bucket key, e.g. "2026-02-16T14".
const KeyLayout = "2006-01-02T15"

// Key returns the bucket key for t.
func Key(t time.Time) string {
	return t.UTC().Format(KeyLayout)
}

// Timestamp returns the canonical instant of the bucket containing t: the UTC
// hour with minutes, seconds and nanoseconds zeroed.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// KeyTime parses a bucket key back into its canonical instant.
func KeyTime(key string) (time.Time, error) {
	return time.ParseInLocation(KeyLayout, key, time.UTC)
}

// NextBoundary returns the first instant after t that belongs to another
// bucket.
func NextBoundary(t time.Time) time.Time {
	return Timestamp(t).Add(time.Hour)
}
