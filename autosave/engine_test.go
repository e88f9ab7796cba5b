package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/session"
)

type memWriter struct {
	mu      sync.Mutex
	seq     int
	records map[string]journal.Analysis
	creates int
	updates int
	deletes int
	patches []journal.Patch
	failing error

	gate    chan struct{}
	started chan struct{}
}

func newMemWriter() *memWriter {
	return &memWriter{records: make(map[string]journal.Analysis)}
}

func (m *memWriter) block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
	m.started = make(chan struct{}, 1)
}

func (m *memWriter) release() {
	m.mu.Lock()
	gate := m.gate
	m.gate = nil
	m.mu.Unlock()
	close(gate)
}

func (m *memWriter) CreateAnalysis(_ context.Context, a journal.Analysis) (journal.Analysis, error) {
	m.mu.Lock()
	gate, started := m.gate, m.started
	m.mu.Unlock()
	if gate != nil {
		started <- struct{}{}
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		err := m.failing
		m.failing = nil
		return journal.Analysis{}, err
	}
	m.seq++
	m.creates++
	a.ID = fmt.Sprintf("a%02d", m.seq)
	m.records[a.ID] = a
	return a, nil
}

func (m *memWriter) UpdateAnalysis(_ context.Context, id string, p journal.Patch) (journal.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		err := m.failing
		m.failing = nil
		return journal.Analysis{}, err
	}
	a, ok := m.records[id]
	if !ok {
		return journal.Analysis{}, journal.ErrNotFound
	}
	if err := p.Apply(&a.Notes); err != nil {
		return journal.Analysis{}, err
	}
	m.updates++
	m.patches = append(m.patches, p)
	m.records[id] = a
	return a, nil
}

func (m *memWriter) DeleteAnalysis(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return journal.ErrNotFound
	}
	m.deletes++
	delete(m.records, id)
	return nil
}

func (m *memWriter) all() []journal.Analysis {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]journal.Analysis, 0, len(m.records))
	for _, a := range m.records {
		out = append(out, a)
	}
	return out
}

func (m *memWriter) counts() (creates, updates, deletes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates, m.updates, m.deletes
}

type countingObserver struct {
	mu        sync.Mutex
	writes    map[Op]int
	failures  int
	rollovers int
}

func (o *countingObserver) ObserveWrite(op Op, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.writes == nil {
		o.writes = make(map[Op]int)
	}
	o.writes[op]++
	if err != nil {
		o.failures++
	}
}

func (o *countingObserver) ObserveRollover(int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rollovers++
}

var (
	start  = time.Date(2025, 2, 10, 14, 20, 0, 0, time.UTC)
	daily  = journal.NoteField(journal.Daily)
	weekly = journal.NoteField(journal.Weekly)
	oneHr  = journal.NoteField(journal.OneHour)
)

func newTestEngine(t *testing.T, w Writer) (*Engine, *session.ManualClock) {
	t.Helper()
	clock := session.NewManualClock(start)
	e := New(w, Options{Clock: clock})
	t.Cleanup(e.Close)
	return e, clock
}

func TestSetFieldDebouncesCreate(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, clock := newTestEngine(t, w)

	require.NoError(t, e.SetField("EURUSD", weekly, "uptrend"))
	clock.Advance(time.Second)
	require.NoError(t, e.SetField("EURUSD", daily, "pullback"))
	assert.Equal(t, StatusPending, e.Status("EURUSD"))
	assert.Equal(t, StateDirtyPending, e.State("EURUSD"))

	clock.Advance(time.Second)
	creates, _, _ := w.counts()
	assert.Zero(t, creates, "timer restarts on each edit")

	clock.Advance(600 * time.Millisecond)
	creates, updates, _ := w.counts()
	assert.Equal(t, 1, creates)
	assert.Zero(t, updates)
	assert.Equal(t, StatusSaved, e.Status("EURUSD"))

	recs := w.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "EURUSD", recs[0].PairID)
	assert.Equal(t, time.Date(2025, 2, 10, 14, 0, 0, 0, time.UTC), recs[0].Timestamp)
	assert.Equal(t, "uptrend", recs[0].Weekly.Note)
	assert.Equal(t, "pullback", recs[0].Daily.Note)
	assert.Equal(t, e.Draft("EURUSD"), recs[0].Notes)

	clock.Advance(DefaultSavedWindow)
	assert.Equal(t, StatusIdle, e.Status("EURUSD"))
}

func TestSavedIsReplacedByNextEdit(t *testing.T) {
	t.Parallel()
	e, clock := newTestEngine(t, newMemWriter())

	require.NoError(t, e.SetField("EURUSD", daily, "a"))
	clock.Advance(DefaultDelay)
	require.Equal(t, StatusSaved, e.Status("EURUSD"))

	require.NoError(t, e.SetField("EURUSD", daily, "ab"))
	assert.Equal(t, StatusPending, e.Status("EURUSD"))

	clock.Advance(time.Second)
	assert.Equal(t, StatusPending, e.Status("EURUSD"), "stale saved timer must not reset status")
}

func TestFollowUpEditsUpdateDirtyFieldsOnly(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, clock := newTestEngine(t, w)

	require.NoError(t, e.SetField("EURUSD", weekly, "uptrend"))
	clock.Advance(DefaultDelay)

	require.NoError(t, e.SetField("EURUSD", daily, "range"))
	require.NoError(t, e.SetField("EURUSD", journal.SentimentField(journal.Daily), "flat"))
	clock.Advance(DefaultDelay)

	creates, updates, _ := w.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, updates)
	require.Len(t, w.patches, 1)
	sentiment := journal.SentimentField(journal.Daily)
	assert.Equal(t, journal.Patch{daily: "range", sentiment: "flat"}, w.patches[0])
}

func TestClearedFieldIsSentOnUpdate(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, clock := newTestEngine(t, w)

	require.NoError(t, e.SetField("EURUSD", weekly, "uptrend"))
	require.NoError(t, e.SetField("EURUSD", daily, "range"))
	clock.Advance(DefaultDelay)

	require.NoError(t, e.SetField("EURUSD", daily, ""))
	clock.Advance(DefaultDelay)

	recs := w.all()
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].Daily.Note)
	assert.Equal(t, "uptrend", recs[0].Weekly.Note)
}

func TestEmptyDraftIsNeverCreated(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, clock := newTestEngine(t, w)

	require.NoError(t, e.SetField("EURUSD", daily, "x"))
	require.NoError(t, e.SetField("EURUSD", daily, ""))
	clock.Advance(DefaultDelay)

	creates, _, _ := w.counts()
	assert.Zero(t, creates)
	assert.Equal(t, StatusIdle, e.Status("EURUSD"))
	assert.Equal(t, StateEmpty, e.State("EURUSD"))
}

func TestFlushIsIdempotent(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, _ := newTestEngine(t, w)
	ctx := context.Background()

	require.NoError(t, e.SetField("EURUSD", daily, "x"))
	require.NoError(t, e.Flush(ctx, "EURUSD"))
	require.NoError(t, e.Flush(ctx, "EURUSD"))
	require.NoError(t, e.Flush(ctx, "GBPUSD"))

	creates, updates, _ := w.counts()
	assert.Equal(t, 1, creates)
	assert.Zero(t, updates)
}

func TestApplyHydratesCurrentBucket(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, clock := newTestEngine(t, w)

	e.Apply([]journal.Analysis{
		{
			ID:        "r1",
			PairID:    "EURUSD",
			Timestamp: session.Timestamp(start),
			Notes:     journal.Notes{Daily: journal.Entry{Note: "persisted"}},
		},
		{
			ID:        "r0",
			PairID:    "EURUSD",
			Timestamp: session.Timestamp(start).Add(-24 * time.Hour),
			Notes:     journal.Notes{Daily: journal.Entry{Note: "yesterday"}},
		},
	})

	assert.Equal(t, "persisted", e.Draft("EURUSD").Daily.Note)
	assert.Equal(t, journal.SentimentNone, e.Draft("EURUSD").Weekly.Sentiment)
	assert.Equal(t, StateHydrated, e.State("EURUSD"))
	require.Len(t, e.History("EURUSD"), 1)
	assert.Equal(t, "r0", e.History("EURUSD")[0].ID)
	assert.Len(t, e.Analyses("EURUSD"), 2)

	w.records["r1"] = e.Analyses("EURUSD")[0]
	require.NoError(t, e.SetField("EURUSD", oneHr, "entry"))
	clock.Advance(DefaultDelay)

	creates, updates, _ := w.counts()
	assert.Zero(t, creates, "existing bucket record must be updated")
	assert.Equal(t, 1, updates)
}

func TestApplyLeavesDirtyDraftAlone(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, newMemWriter())

	require.NoError(t, e.SetField("EURUSD", daily, "typing"))
	e.Apply([]journal.Analysis{{
		ID:        "r1",
		PairID:    "EURUSD",
		Timestamp: session.Timestamp(start),
		Notes:     journal.Notes{Daily: journal.Entry{Note: "older"}},
	}})
	assert.Equal(t, "typing", e.Draft("EURUSD").Daily.Note)
}

func TestFailedSaveSetsErrorWithoutRetry(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	obs := &countingObserver{}
	clock := session.NewManualClock(start)
	e := New(w, Options{Clock: clock, Observer: obs})
	t.Cleanup(e.Close)

	w.failing = errors.New("offline")
	require.NoError(t, e.SetField("EURUSD", daily, "x"))
	clock.Advance(DefaultDelay)

	assert.Equal(t, StatusError, e.Status("EURUSD"))
	assert.Equal(t, StateError, e.State("EURUSD"))
	assert.Equal(t, "x", e.Draft("EURUSD").Daily.Note, "draft survives a failed save")

	clock.Advance(time.Minute)
	creates, _, _ := w.counts()
	assert.Zero(t, creates)

	require.NoError(t, e.Flush(context.Background(), "EURUSD"))
	creates, _, _ = w.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, StatusSaved, e.Status("EURUSD"))
	assert.Equal(t, 1, obs.failures)
	assert.Equal(t, 2, obs.writes[OpCreate])
}

func TestEditDuringCreateBecomesUpdate(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, _ := newTestEngine(t, w)
	ctx := context.Background()

	require.NoError(t, e.SetField("EURUSD", weekly, "uptrend"))
	w.block()

	done := make(chan error, 1)
	go func() { done <- e.Flush(ctx, "EURUSD") }()
	<-w.started
	assert.Equal(t, StatusSaving, e.Status("EURUSD"))

	require.NoError(t, e.SetField("EURUSD", daily, "pullback"))
	require.NoError(t, e.Flush(ctx, "EURUSD"))

	w.release()
	require.NoError(t, <-done)

	creates, updates, _ := w.counts()
	assert.Equal(t, 1, creates, "a second create must never be issued")
	assert.Equal(t, 1, updates)

	recs := w.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "uptrend", recs[0].Weekly.Note)
	assert.Equal(t, "pullback", recs[0].Daily.Note)
}

func TestMarkerSurvivesStaleSnapshot(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, clock := newTestEngine(t, w)

	require.NoError(t, e.SetField("EURUSD", weekly, "uptrend"))
	clock.Advance(DefaultDelay)

	// Subscription has not caught up with the create yet.
	e.Apply(nil)

	require.NoError(t, e.SetField("EURUSD", daily, "more"))
	clock.Advance(DefaultDelay)

	creates, updates, _ := w.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, updates)
}

func TestRolloverFlushesUnderOldBucket(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	obs := &countingObserver{}
	clock := session.NewManualClock(time.Date(2025, 2, 10, 14, 59, 59, 0, time.UTC))
	e := New(w, Options{Clock: clock, Observer: obs})
	t.Cleanup(e.Close)

	require.NoError(t, e.SetField("EURUSD", daily, "late note"))
	assert.Equal(t, "2025-02-10T14", e.CurrentKey())

	clock.Set(time.Date(2025, 2, 10, 15, 0, 30, 0, time.UTC))
	require.True(t, e.CheckRollover())
	e.Wait()

	assert.Equal(t, "2025-02-10T15", e.CurrentKey())
	assert.True(t, e.Draft("EURUSD").IsEmpty())
	assert.Equal(t, StatusIdle, e.Status("EURUSD"))

	recs := w.all()
	require.Len(t, recs, 1)
	assert.Equal(t, time.Date(2025, 2, 10, 14, 0, 0, 0, time.UTC), recs[0].Timestamp)
	assert.Equal(t, "late note", recs[0].Daily.Note)

	// The old debounce timer was cancelled.
	clock.Advance(5 * time.Second)
	creates, _, _ := w.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, obs.rollovers)

	assert.False(t, e.CheckRollover())
}

func TestRolloverSkipsSavedAndEmptyDrafts(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, clock := newTestEngine(t, w)

	require.NoError(t, e.SetField("EURUSD", daily, "saved"))
	clock.Advance(DefaultDelay)
	require.NoError(t, e.SetField("GBPUSD", daily, ""))

	clock.Set(time.Date(2025, 2, 10, 15, 1, 0, 0, time.UTC))
	require.True(t, e.CheckRollover())
	e.Wait()

	creates, updates, _ := w.counts()
	assert.Equal(t, 1, creates)
	assert.Zero(t, updates)
}

func TestRolloverHydratesNewBucket(t *testing.T) {
	t.Parallel()
	e, clock := newTestEngine(t, newMemWriter())

	next := time.Date(2025, 2, 10, 15, 0, 0, 0, time.UTC)
	e.Apply([]journal.Analysis{{
		ID:        "r2",
		PairID:    "USDJPY",
		Timestamp: next,
		Notes:     journal.Notes{FourHour: journal.Entry{Note: "already there"}},
	}})
	assert.True(t, e.Draft("USDJPY").IsEmpty())

	clock.Set(next.Add(time.Minute))
	require.True(t, e.CheckRollover())
	assert.Equal(t, "already there", e.Draft("USDJPY").FourHour.Note)
}

func TestClearDeletesRecord(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, clock := newTestEngine(t, w)
	ctx := context.Background()

	require.NoError(t, e.SetField("EURUSD", daily, "x"))
	clock.Advance(DefaultDelay)
	require.Len(t, w.all(), 1)

	require.NoError(t, e.Clear(ctx, "EURUSD"))
	assert.Empty(t, w.all())
	assert.True(t, e.Draft("EURUSD").IsEmpty())
	assert.Empty(t, e.Analyses("EURUSD"))
	assert.Equal(t, StateEmpty, e.State("EURUSD"))

	// A later edit starts a fresh record.
	require.NoError(t, e.SetField("EURUSD", daily, "again"))
	clock.Advance(DefaultDelay)
	creates, _, deletes := w.counts()
	assert.Equal(t, 2, creates)
	assert.Equal(t, 1, deletes)
}

func TestClearCancelsPendingSave(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, clock := newTestEngine(t, w)

	require.NoError(t, e.SetField("EURUSD", daily, "x"))
	require.NoError(t, e.Clear(context.Background(), "EURUSD"))
	clock.Advance(DefaultDelay)

	creates, _, _ := w.counts()
	assert.Zero(t, creates)
}

func TestClearDuringCreateRemovesRecord(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, _ := newTestEngine(t, w)
	ctx := context.Background()

	require.NoError(t, e.SetField("EURUSD", daily, "x"))
	w.block()
	done := make(chan error, 1)
	go func() { done <- e.Flush(ctx, "EURUSD") }()
	<-w.started

	require.NoError(t, e.Clear(ctx, "EURUSD"))
	w.release()
	require.NoError(t, <-done)

	assert.Empty(t, w.all())
	assert.Empty(t, e.Analyses("EURUSD"))
}

func TestClearDropsQueuedFlush(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, _ := newTestEngine(t, w)
	ctx := context.Background()

	require.NoError(t, e.SetField("EURUSD", daily, "x"))
	w.block()
	done := make(chan error, 1)
	go func() { done <- e.Flush(ctx, "EURUSD") }()
	<-w.started

	require.NoError(t, e.SetField("EURUSD", weekly, "y"))
	require.NoError(t, e.Flush(ctx, "EURUSD"))
	require.NoError(t, e.Clear(ctx, "EURUSD"))
	w.release()
	require.NoError(t, <-done)

	creates, updates, deletes := w.counts()
	assert.Equal(t, 1, creates)
	assert.Zero(t, updates)
	assert.Equal(t, 1, deletes)
	assert.Empty(t, w.all())
}

func TestRecreateAfterExternalDelete(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, clock := newTestEngine(t, w)

	require.NoError(t, e.SetField("EURUSD", daily, "x"))
	clock.Advance(DefaultDelay)
	for _, a := range w.all() {
		require.NoError(t, w.DeleteAnalysis(context.Background(), a.ID))
	}

	require.NoError(t, e.SetField("EURUSD", weekly, "y"))
	clock.Advance(DefaultDelay)

	recs := w.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "x", recs[0].Daily.Note)
	assert.Equal(t, "y", recs[0].Weekly.Note)
	assert.Equal(t, StatusSaved, e.Status("EURUSD"))
}

func TestDeleteHistorical(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, _ := newTestEngine(t, w)
	ctx := context.Background()

	old, err := w.CreateAnalysis(ctx, journal.Analysis{
		PairID:    "EURUSD",
		Timestamp: session.Timestamp(start).Add(-48 * time.Hour),
		Notes:     journal.Notes{Weekly: journal.Entry{Note: "old"}},
	})
	require.NoError(t, err)
	e.Apply(w.all())

	assert.False(t, e.Deleting(old.ID))
	require.NoError(t, e.Delete(ctx, old.ID))
	assert.Empty(t, e.Analyses("EURUSD"))

	// A lagging snapshot that still carries the record does not resurrect it.
	e.Apply([]journal.Analysis{old})
	assert.Empty(t, e.Analyses("EURUSD"))

	assert.ErrorIs(t, e.Delete(ctx, "missing"), journal.ErrNotFound)
}

func TestUpdateHistorical(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	e, clock := newTestEngine(t, w)
	ctx := context.Background()

	old, err := w.CreateAnalysis(ctx, journal.Analysis{
		PairID:    "EURUSD",
		Timestamp: session.Timestamp(start).Add(-24 * time.Hour),
		Notes:     journal.Notes{Daily: journal.Entry{Note: "old"}},
	})
	require.NoError(t, err)
	e.Apply(w.all())

	require.NoError(t, e.UpdateHistorical(ctx, old.ID, journal.SentimentField(journal.Daily), "bearish"))
	assert.Equal(t, journal.SentimentBearish, e.Analyses("EURUSD")[0].Daily.Sentiment)
	assert.Zero(t, clock.Pending(), "historical edits bypass the debounce")

	require.NoError(t, e.UpdateHistorical(ctx, old.ID, daily, ""))
	assert.Empty(t, w.records[old.ID].Daily.Note)

	err = e.UpdateHistorical(ctx, old.ID, journal.SentimentField(journal.Daily), "sideways")
	assert.ErrorIs(t, err, journal.ErrInvalidField)
	assert.ErrorIs(t, e.UpdateHistorical(ctx, "missing", daily, "x"), journal.ErrNotFound)
}

func TestLatestDates(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, newMemWriter())

	e.Apply([]journal.Analysis{
		{ID: "a", PairID: "EURUSD", Timestamp: time.Date(2025, 2, 7, 10, 0, 0, 0, time.UTC)},
		{ID: "b", PairID: "EURUSD", Timestamp: time.Date(2025, 2, 9, 23, 0, 0, 0, time.UTC)},
		{ID: "c", PairID: "GBPUSD", Timestamp: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)},
		{ID: "d", Timestamp: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)},
	})

	dates := e.LatestDates(22)
	assert.Equal(t, map[string]string{
		"EURUSD": "2025-02-10",
		"GBPUSD": "2025-02-03",
	}, dates)
}

func TestCloseStopsTimersAndRejectsEdits(t *testing.T) {
	t.Parallel()
	w := newMemWriter()
	clock := session.NewManualClock(start)
	e := New(w, Options{Clock: clock})

	require.NoError(t, e.SetField("EURUSD", daily, "x"))
	e.Close()
	e.Close()

	clock.Advance(DefaultDelay)
	creates, _, _ := w.counts()
	assert.Zero(t, creates)
	assert.ErrorIs(t, e.SetField("EURUSD", daily, "y"), ErrClosed)

	clock.Set(start.Add(time.Hour))
	e.CheckRollover()
	assert.Equal(t, "2025-02-10T14", e.CurrentKey())
}

func TestWithoutWriterDraftsStayInMemory(t *testing.T) {
	t.Parallel()
	e, clock := newTestEngine(t, nil)

	require.NoError(t, e.SetField("EURUSD", daily, "x"))
	clock.Advance(DefaultDelay)

	assert.Equal(t, "x", e.Draft("EURUSD").Daily.Note)
	assert.Equal(t, StatusIdle, e.Status("EURUSD"))
	assert.NoError(t, e.Delete(context.Background(), "any"))
}

func TestSetFieldRejectsUnknownSentiment(t *testing.T) {
	t.Parallel()
	e, clock := newTestEngine(t, newMemWriter())

	err := e.SetField("EURUSD", journal.SentimentField(journal.Weekly), "sideways")
	assert.ErrorIs(t, err, journal.ErrInvalidField)
	assert.Zero(t, clock.Pending())
}
