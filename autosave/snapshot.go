package autosave

import (
	"context"

	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/session"
	"github.com/rustyeddy/tradelog/tradingday"
)

// Op names a write the engine performs.
type Op string

const (
	OpCreate     Op = "create"
	OpUpdate     Op = "update"
	OpDelete     Op = "delete"
	OpHistorical Op = "historical"
)

// Observer is told about every write and rollover.
type Observer interface {
	ObserveWrite(op Op, err error)
	ObserveRollover(flushed int)
}

type nopObserver struct{}

func (nopObserver) ObserveWrite(Op, error) {}
func (nopObserver) ObserveRollover(int)    {}

// Apply replaces the known records with a full snapshot and hydrates drafts
// of the current bucket that have no unsaved edits.
func (e *Engine) Apply(items []journal.Analysis) {
	seen := make(map[string]bool, len(items))
	grouped := make(map[string][]journal.Analysis)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, a := range items {
		seen[a.ID] = true
		if a.PairID == "" || e.tombstones[a.ID] {
			continue
		}
		a.Notes = a.Notes.Normalize()
		grouped[a.PairID] = append(grouped[a.PairID], a)
	}
	for pairID, list := range grouped {
		grouped[pairID] = sortNewestFirst(list)
	}
	for id := range e.tombstones {
		if !seen[id] {
			delete(e.tombstones, id)
		}
	}

	e.analyses = grouped
	e.hydrateLocked()
}

// Follow applies every snapshot from ch until it closes or ctx is done.
func (e *Engine) Follow(ctx context.Context, ch <-chan []journal.Analysis) {
	for {
		select {
		case <-ctx.Done():
			return
		case items, ok := <-ch:
			if !ok {
				return
			}
			e.Apply(items)
		}
	}
}

func (e *Engine) hydrateLocked() {
	for pairID, list := range e.analyses {
		rec, ok := findBucket(list, e.current)
		if !ok || e.deleting[rec.ID] {
			continue
		}
		b := e.bucketLocked(pairID, e.current, false)
		if b == nil {
			b = e.bucketLocked(pairID, e.current, true)
			b.draft = rec.Notes.Normalize()
			continue
		}
		if b.clean() {
			b.draft = rec.Notes.Normalize()
		}
	}
}

// Analyses returns the known records of pairID, newest first.
func (e *Engine) Analyses(pairID string) []journal.Analysis {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]journal.Analysis(nil), e.analyses[pairID]...)
}

// History returns the records of pairID outside the current bucket, newest
// first.
func (e *Engine) History(pairID string) []journal.Analysis {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []journal.Analysis
	for _, a := range e.analyses[pairID] {
		if session.Key(a.Timestamp) != e.current {
			out = append(out, a)
		}
	}
	return out
}

// LatestDates maps each pair to the trading date of its newest record.
func (e *Engine) LatestDates(cutoffHourUTC int) map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.analyses))
	for pairID, list := range e.analyses {
		if len(list) > 0 {
			out[pairID] = tradingday.Date(list[0].Timestamp, cutoffHourUTC)
		}
	}
	return out
}
