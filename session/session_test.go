package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyAndTimestamp(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 2, 16, 14, 37, 12, 500, time.UTC)
	assert.Equal(t, "2026-02-16T14", Key(at))
	assert.Equal(t, time.Date(2026, 2, 16, 14, 0, 0, 0, time.UTC), Timestamp(at))
	assert.Equal(t, time.Date(2026, 2, 16, 15, 0, 0, 0, time.UTC), NextBoundary(at))

	back, err := KeyTime(Key(at))
	require.NoError(t, err)
	assert.True(t, back.Equal(Timestamp(at)))

	_, err = KeyTime("2026-02-16")
	assert.Error(t, err)
}

func TestKeyNormalizesToUTC(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+2", 2*60*60)
	at := time.Date(2026, 2, 16, 16, 5, 0, 0, loc)
	assert.Equal(t, "2026-02-16T14", Key(at))
	assert.Equal(t, time.UTC, Timestamp(at).Location())
}

func TestKeyChangesOncePerHour(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 2, 16, 13, 0, 0, 0, time.UTC)
	changes := 0
	prev := Key(start)
	for ts := start; ts.Before(start.Add(3 * time.Hour)); ts = ts.Add(time.Minute) {
		if k := Key(ts); k != prev {
			changes++
			prev = k
		}
	}
	assert.Equal(t, 2, changes)
}

func TestManualClockAdvance(t *testing.T) {
	t.Parallel()

	c := NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var fired []string

	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() {
		fired = append(fired, "a")
		c.AfterFunc(500*time.Millisecond, func() { fired = append(fired, "a2") })
	})
	stopped := c.AfterFunc(time.Second, func() { fired = append(fired, "never") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	c.Advance(900 * time.Millisecond)
	assert.Empty(t, fired)
	assert.Equal(t, 2, c.Pending())

	c.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "a2", "b"}, fired)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 2, 900000000, time.UTC), c.Now())
}

func TestWatcherCheck(t *testing.T) {
	t.Parallel()

	c := NewManualClock(time.Date(2026, 2, 16, 14, 58, 0, 0, time.UTC))
	var got [][2]string
	w := NewWatcher(c, time.Minute, func(prev, next string) {
		got = append(got, [2]string{prev, next})
	})
	assert.Equal(t, "2026-02-16T14", w.Current())

	c.Advance(time.Minute)
	assert.False(t, w.Check())

	c.Advance(time.Minute)
	assert.True(t, w.Check())
	assert.False(t, w.Check())

	assert.Equal(t, [][2]string{{"2026-02-16T14", "2026-02-16T15"}}, got)
	assert.Equal(t, "2026-02-16T15", w.Current())
}

func TestWatcherRunStops(t *testing.T) {
	t.Parallel()

	w := NewWatcher(nil, time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWatcherRunFollowsClock(t *testing.T) {
	t.Parallel()

	c := NewManualClock(time.Date(2026, 2, 16, 14, 59, 0, 0, time.UTC))
	rolled := make(chan string, 1)
	w := NewWatcher(c, time.Minute, func(prev, next string) { rolled <- next })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, time.Millisecond)
	c.Advance(time.Minute)

	select {
	case next := <-rolled:
		assert.Equal(t, "2026-02-16T15", next)
	case <-time.After(time.Second):
		t.Fatal("rollover not reported")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, c.Pending())
}
