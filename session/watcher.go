package session

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is how often a Watcher samples the clock.
const DefaultPollInterval = time.Minute

// RolloverFunc is told the previous and the new bucket key.
type RolloverFunc func(prev, next string)

// Watcher polls a clock and reports bucket rollovers. Detection is only as
// precise as the poll interval.
type Watcher struct {
	clock    Clock
	interval time.Duration
	fn       RolloverFunc

	mu      sync.Mutex
	current string
}

// NewWatcher starts tracking the bucket the clock currently reads.
func NewWatcher(clock Clock, interval time.Duration, fn RolloverFunc) *Watcher {
	if clock == nil {
		clock = System
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		clock:    clock,
		interval: interval,
		fn:       fn,
		current:  Key(clock.Now()),
	}
}

// Current returns the last observed bucket key.
func (w *Watcher) Current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Check samples the clock once and fires the rollover callback when the
// bucket changed since the previous sample.
func (w *Watcher) Check() bool {
	next := Key(w.clock.Now())

	w.mu.Lock()
	prev := w.current
	if next == prev {
		w.mu.Unlock()
		return false
	}
	w.current = next
	w.mu.Unlock()

	if w.fn != nil {
		w.fn(prev, next)
	}
	return true
}

// Run polls until ctx is done. Each poll is scheduled on the watcher's
// clock, so a ManualClock drives it through Advance.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		tick := make(chan struct{})
		t := w.clock.AfterFunc(w.interval, func() { close(tick) })

		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-tick:
			w.Check()
		}
	}
}
