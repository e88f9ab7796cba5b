// Package autosave keeps in-memory drafts of the current session's analyses
// and reconciles them with the persisted records.
//
// Every (pair, bucket) owns one draft. Edits re-arm a debounce timer; when it
// fires the draft is written, as an update when a record for the bucket is
// known and as a create otherwise. A bucket remembers the record it created
// so a second write path never creates a duplicate while the subscription
// feed is lagging.
package autosave

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/session"
)

const (
	// DefaultDelay is the inactivity window before a draft is written.
	DefaultDelay = 1500 * time.Millisecond
	// DefaultSavedWindow is how long StatusSaved is reported.
	DefaultSavedWindow = 2500 * time.Millisecond
)

// ErrClosed is returned by edits made after Close.
var ErrClosed = errors.New("autosave: engine closed")

// Writer is the part of the persistence collaborator the engine writes to.
type Writer interface {
	CreateAnalysis(ctx context.Context, a journal.Analysis) (journal.Analysis, error)
	UpdateAnalysis(ctx context.Context, id string, p journal.Patch) (journal.Analysis, error)
	DeleteAnalysis(ctx context.Context, id string) error
}

// Options tune an Engine. Zero values pick the defaults.
type Options struct {
	Clock        session.Clock
	Delay        time.Duration
	SavedWindow  time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
	Observer     Observer
}

// Engine owns all drafts, debounce timers and created-record markers.
type Engine struct {
	w     Writer
	clock session.Clock
	delay time.Duration
	saved time.Duration
	log   *slog.Logger
	obs   Observer

	ctx    context.Context
	cancel context.CancelFunc

	watcher *session.Watcher
	wg      sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	current    string
	analyses   map[string][]journal.Analysis // pair -> newest first
	buckets    map[string]map[string]*bucket // pair -> bucket key -> draft
	deleting   map[string]bool
	tombstones map[string]bool
}

// New returns an Engine writing through w. A nil w keeps drafts in memory
// only.
func New(w Writer, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = session.System
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.SavedWindow <= 0 {
		opts.SavedWindow = DefaultSavedWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		w:          w,
		clock:      opts.Clock,
		delay:      opts.Delay,
		saved:      opts.SavedWindow,
		log:        opts.Logger,
		obs:        opts.Observer,
		ctx:        ctx,
		cancel:     cancel,
		analyses:   make(map[string][]journal.Analysis),
		buckets:    make(map[string]map[string]*bucket),
		deleting:   make(map[string]bool),
		tombstones: make(map[string]bool),
	}
	e.watcher = session.NewWatcher(opts.Clock, opts.PollInterval, e.rollover)
	e.current = e.watcher.Current()

	if w == nil {
		e.log.Warn("analysis model unavailable, drafts will not be saved")
	}
	return e
}

// ForStore checks that s carries analyses before writing to it.
func ForStore(s journal.Store, opts Options) *Engine {
	if s == nil || !s.Supports(journal.ModelAnalysis) {
		return New(nil, opts)
	}
	return New(s, opts)
}

// CurrentKey is the bucket drafts are currently keyed by.
func (e *Engine) CurrentKey() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Draft returns the current bucket's draft for pairID. A pair without a draft
// gets empty notes.
func (e *Engine) Draft(pairID string) journal.Notes {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b := e.bucketLocked(pairID, e.current, false); b != nil {
		return b.draft
	}
	return journal.Notes{}.Normalize()
}

// Status reports the save status of the current bucket's draft.
func (e *Engine) Status(pairID string) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b := e.bucketLocked(pairID, e.current, false); b != nil {
		return b.status
	}
	return StatusIdle
}

// State reports where the current bucket of pairID is in its lifecycle.
func (e *Engine) State(pairID string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.bucketLocked(pairID, e.current, false)
	if b == nil {
		return StateEmpty
	}
	switch b.status {
	case StatusPending:
		return StateDirtyPending
	case StatusSaving:
		return StateSaving
	case StatusSaved:
		return StateSaved
	case StatusError:
		return StateError
	}
	if b.draft.IsEmpty() && e.recordIDLocked(b) == "" {
		return StateEmpty
	}
	return StateHydrated
}

// SetField edits one field of the current draft and re-arms its timer.
func (e *Engine) SetField(pairID string, f journal.Field, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	b := e.bucketLocked(pairID, e.current, true)
	if err := b.draft.Set(f, value); err != nil {
		return err
	}
	b.dirty[f] = struct{}{}
	b.status = StatusPending
	b.gen++
	stopTimer(&b.savedTimer)
	e.armLocked(b)
	return nil
}

// Flush writes the current draft of pairID now instead of waiting for the
// timer. It is also how a failed save is retried.
func (e *Engine) Flush(ctx context.Context, pairID string) error {
	e.mu.Lock()
	b := e.bucketLocked(pairID, e.current, false)
	if b == nil {
		e.mu.Unlock()
		return nil
	}
	e.disarmLocked(b)
	e.mu.Unlock()

	return e.flush(ctx, b)
}

// FlushAll flushes every draft of the current bucket.
func (e *Engine) FlushAll(ctx context.Context) error {
	e.mu.Lock()
	var pending []*bucket
	for _, m := range e.buckets {
		if b, ok := m[e.current]; ok {
			e.disarmLocked(b)
			pending = append(pending, b)
		}
	}
	e.mu.Unlock()

	var errs []error
	for _, b := range pending {
		if err := e.flush(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clear drops the current draft of pairID and deletes its persisted record,
// if any.
func (e *Engine) Clear(ctx context.Context, pairID string) error {
	e.mu.Lock()
	var recordID string
	if b := e.bucketLocked(pairID, e.current, false); b != nil {
		e.stopTimersLocked(b)
		b.cleared = true
		recordID = e.recordIDLocked(b)
		delete(e.buckets[pairID], e.current)
	} else if rec, ok := findBucket(e.analyses[pairID], e.current); ok {
		recordID = rec.ID
	}
	e.mu.Unlock()

	if recordID == "" {
		return nil
	}
	return e.Delete(ctx, recordID)
}

// Delete removes a record by id, independent of any draft. Deleting(id) is
// true while the call is in flight.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if e.w == nil {
		return nil
	}
	e.mu.Lock()
	e.deleting[id] = true
	e.mu.Unlock()

	err := e.w.DeleteAnalysis(ctx, id)

	e.mu.Lock()
	delete(e.deleting, id)
	if err == nil || errors.Is(err, journal.ErrNotFound) {
		e.forgetLocked(id)
	}
	e.mu.Unlock()

	e.obs.ObserveWrite(OpDelete, err)
	if err != nil {
		e.log.Error("delete analysis", "id", id, "error", err)
	}
	return err
}

// Deleting reports whether a delete of id is in flight.
func (e *Engine) Deleting(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleting[id]
}

// UpdateHistorical writes a single field of a past record immediately,
// bypassing drafts and timers.
func (e *Engine) UpdateHistorical(ctx context.Context, id string, f journal.Field, value string) error {
	if e.w == nil {
		return nil
	}
	var probe journal.Notes
	if err := probe.Set(f, value); err != nil {
		return err
	}

	saved, err := e.w.UpdateAnalysis(ctx, id, journal.Patch{f: value})
	e.obs.ObserveWrite(OpHistorical, err)
	if err != nil {
		e.log.Error("update analysis", "id", id, "field", f.String(), "error", err)
		return err
	}

	e.mu.Lock()
	e.cacheLocked(saved)
	e.mu.Unlock()
	return nil
}

// CheckRollover samples the clock once and rolls the session over if the
// bucket changed.
func (e *Engine) CheckRollover() bool {
	return e.watcher.Check()
}

// Run polls for rollovers until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	return e.watcher.Run(ctx)
}

// Wait blocks until background flushes started so far have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close cancels every timer, waits for in-flight writes and releases the
// engine. Later edits fail with ErrClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, m := range e.buckets {
		for _, b := range m {
			e.stopTimersLocked(b)
		}
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.cancel()
}

// rollover runs when the watcher sees a new bucket. Dirty drafts of the old
// bucket are flushed in the background; every draft is then discarded and
// the new bucket is hydrated from the known records.
func (e *Engine) rollover(prev, next string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.current = next

	var flushes []*bucket
	for pairID, m := range e.buckets {
		for key, b := range m {
			e.stopTimersLocked(b)
			if !b.draft.IsEmpty() && (len(b.dirty) > 0 || e.recordIDLocked(b) == "") {
				flushes = append(flushes, b)
			}
			delete(m, key)
		}
		delete(e.buckets, pairID)
	}
	e.hydrateLocked()
	e.wg.Add(len(flushes))
	e.mu.Unlock()

	for _, b := range flushes {
		go func(b *bucket) {
			defer e.wg.Done()
			_ = e.flush(e.ctx, b)
		}(b)
	}

	e.obs.ObserveRollover(len(flushes))
	e.log.Info("session rolled over", "from", prev, "to", next, "flushed", len(flushes))
}

// armLocked (re)starts the debounce timer of b.
func (e *Engine) armLocked(b *bucket) {
	stopTimer(&b.timer)
	b.timerSeq++
	seq := b.timerSeq
	b.timer = e.clock.AfterFunc(e.delay, func() { e.fire(b, seq) })
}

// disarmLocked cancels a pending debounce without dropping its dirty fields.
func (e *Engine) disarmLocked(b *bucket) {
	stopTimer(&b.timer)
	b.timerSeq++
}

func (e *Engine) stopTimersLocked(b *bucket) {
	e.disarmLocked(b)
	stopTimer(&b.savedTimer)
}

func (e *Engine) fire(b *bucket, seq int) {
	e.mu.Lock()
	if e.closed || b.timerSeq != seq {
		e.mu.Unlock()
		return
	}
	b.timer = nil
	e.wg.Add(1)
	e.mu.Unlock()

	defer e.wg.Done()
	_ = e.flush(e.ctx, b)
}

// flush writes the draft of b. Only one write per bucket is in flight; a
// flush requested meanwhile runs again once the first returns, by which time
// a created record id is known and the retry becomes an update.
func (e *Engine) flush(ctx context.Context, b *bucket) error {
	e.mu.Lock()
	if b.saving {
		b.again = true
		e.mu.Unlock()
		return nil
	}
	if e.w == nil {
		b.dirty = make(fieldSet)
		b.status = StatusIdle
		e.mu.Unlock()
		return nil
	}

	var (
		op     Op
		target = e.recordIDLocked(b)
		patch  journal.Patch
		rec    journal.Analysis
	)
	switch {
	case target != "":
		if len(b.dirty) == 0 {
			if b.status == StatusPending {
				b.status = StatusIdle
			}
			e.mu.Unlock()
			return nil
		}
		op = OpUpdate
		patch = make(journal.Patch, len(b.dirty))
		for f := range b.dirty {
			patch[f] = b.draft.Get(f)
		}
	case b.draft.IsEmpty():
		b.dirty = make(fieldSet)
		b.status = StatusIdle
		e.mu.Unlock()
		return nil
	default:
		op = OpCreate
		ts, err := session.KeyTime(b.key)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		rec = journal.Analysis{PairID: b.pairID, Timestamp: ts, Notes: b.draft}
	}
	sent := b.dirty
	b.dirty = make(fieldSet)
	b.saving = true
	b.status = StatusSaving
	e.mu.Unlock()

	var saved journal.Analysis
	var err error
	if op == OpCreate {
		saved, err = e.w.CreateAnalysis(ctx, rec)
	} else {
		saved, err = e.w.UpdateAnalysis(ctx, target, patch)
	}

	e.mu.Lock()
	b.saving = false
	var orphan string
	switch {
	case err != nil && op == OpUpdate && errors.Is(err, journal.ErrNotFound):
		// The record went away underneath us; write the whole draft again.
		e.forgetLocked(target)
		b.recordID = ""
		b.dirty.merge(sent)
		b.again = true
	case err != nil:
		b.dirty.merge(sent)
		b.status = StatusError
	default:
		if op == OpCreate {
			b.recordID = saved.ID
		}
		if b.cleared {
			orphan = saved.ID
			break
		}
		e.cacheLocked(saved)
		if b.timer != nil {
			b.status = StatusPending
		} else {
			b.status = StatusSaved
			if e.isCurrentLocked(b) {
				e.armSavedLocked(b)
			}
		}
	}
	again, cleared := b.again, b.cleared
	b.again = false
	e.mu.Unlock()

	e.obs.ObserveWrite(op, err)
	if err != nil && !again {
		e.log.Error("autosave failed", "pair", b.pairID, "bucket", b.key, "op", string(op), "error", err)
	}

	if orphan != "" {
		if derr := e.Delete(ctx, orphan); derr != nil && err == nil {
			err = derr
		}
	}
	if again && !cleared {
		return e.flush(ctx, b)
	}
	return err
}

func (e *Engine) armSavedLocked(b *bucket) {
	stopTimer(&b.savedTimer)
	gen := b.gen
	b.savedTimer = e.clock.AfterFunc(e.saved, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if b.status == StatusSaved && b.gen == gen {
			b.status = StatusIdle
		}
	})
}

func (e *Engine) isCurrentLocked(b *bucket) bool {
	return b.key == e.current && e.buckets[b.pairID][b.key] == b
}

func (e *Engine) bucketLocked(pairID, key string, create bool) *bucket {
	m := e.buckets[pairID]
	if b, ok := m[key]; ok {
		return b
	}
	if !create {
		return nil
	}
	if m == nil {
		m = make(map[string]*bucket)
		e.buckets[pairID] = m
	}
	b := newBucket(pairID, key)
	m[key] = b
	return b
}

// recordIDLocked returns the id of the persisted record for b: the one b
// created itself, else the newest known record stamped with b's bucket.
func (e *Engine) recordIDLocked(b *bucket) string {
	if b.recordID != "" {
		return b.recordID
	}
	if rec, ok := findBucket(e.analyses[b.pairID], b.key); ok {
		return rec.ID
	}
	return ""
}

// cacheLocked folds a written record into the known records ahead of the
// subscription echo.
func (e *Engine) cacheLocked(a journal.Analysis) {
	list := e.analyses[a.PairID]
	for i := range list {
		if list[i].ID == a.ID {
			list[i] = a
			return
		}
	}
	e.analyses[a.PairID] = sortNewestFirst(append(list, a))
}

// forgetLocked drops a deleted record from the known records and from any
// bucket that created it.
func (e *Engine) forgetLocked(id string) {
	e.tombstones[id] = true
	for pairID, list := range e.analyses {
		for i := range list {
			if list[i].ID == id {
				e.analyses[pairID] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
	for _, m := range e.buckets {
		for _, b := range m {
			if b.recordID == id {
				b.recordID = ""
			}
		}
	}
}

func findBucket(list []journal.Analysis, key string) (journal.Analysis, bool) {
	for _, a := range list {
		if session.Key(a.Timestamp) == key {
			return a, true
		}
	}
	return journal.Analysis{}, false
}

func sortNewestFirst(list []journal.Analysis) []journal.Analysis {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Timestamp.Equal(list[j].Timestamp) {
			return list[i].ID > list[j].ID
		}
		return list[i].Timestamp.After(list[j].Timestamp)
	})
	return list
}

func stopTimer(t *session.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
