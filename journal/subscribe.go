package journal

import (
	"context"
	"sync"
)

// SubscribeAnalyses delivers the full set of analyses now and after every
// write. A slow reader only sees the latest snapshot. The channel closes when
// ctx ends or the store closes.
func (j *SQLite) SubscribeAnalyses(ctx context.Context) (<-chan []Analysis, error) {
	items, err := j.ListAnalyses(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	return j.analysisSubs.add(ctx, items), nil
}

// SubscribePairSettings is SubscribeAnalyses for pair settings.
func (j *SQLite) SubscribePairSettings(ctx context.Context) (<-chan []PairSetting, error) {
	items, err := j.ListPairSettings(ctx)
	if err != nil {
		return nil, err
	}
	return j.settingSubs.add(ctx, items), nil
}

// hub fans snapshots out to subscribers. Each subscriber channel holds at
// most one pending snapshot; publishing replaces it.
type hub[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan T
}

func (h *hub[T]) add(ctx context.Context, initial T) <-chan T {
	ch := make(chan T, 1)
	ch <- initial

	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[int]chan T)
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(id)
	}()
	return ch
}

func (h *hub[T]) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *hub[T]) empty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs) == 0
}

func (h *hub[T]) publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		// Drop the stale snapshot, if any, then hand over the new one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

func (h *hub[T]) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
