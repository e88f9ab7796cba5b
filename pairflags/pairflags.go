// Package pairflags holds the flag color assigned to each pair. Changes show
// up immediately and are persisted in the background, one write at a time.
package pairflags

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rustyeddy/tradelog/journal"
)

// ErrClosed is returned by Set after Close.
var ErrClosed = errors.New("pairflags: store closed")

// Persister upserts pair settings.
type Persister interface {
	CreatePairSetting(ctx context.Context, s journal.PairSetting) (journal.PairSetting, error)
	UpdatePairSetting(ctx context.Context, id string, flag journal.Flag) (journal.PairSetting, error)
}

// Observer is told about every persisted flag write.
type Observer interface {
	ObserveFlagWrite(err error)
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithObserver(o Observer) Option {
	return func(s *Store) { s.obs = o }
}

// Store is the in-memory flag assignment plus its persistence queue. A failed
// write is logged and the optimistic value is kept.
type Store struct {
	p   Persister
	log *slog.Logger
	obs Observer

	mu       sync.Mutex
	closed   bool
	flags    map[string]journal.Flag
	ids      map[string]string
	queued   map[string]bool
	inflight map[string]bool
	order    []string

	pending sync.WaitGroup
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// New starts a Store writing through p. A nil p keeps flags in memory only.
func New(p Persister, opts ...Option) *Store {
	s := &Store{
		p:        p,
		log:      slog.Default(),
		flags:    make(map[string]journal.Flag),
		ids:      make(map[string]string),
		queued:   make(map[string]bool),
		inflight: make(map[string]bool),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if p == nil {
		s.log.Warn("pair settings model unavailable, flags will not be saved")
	}
	go s.run()
	return s
}

// ForStore checks that st carries pair settings before writing to it.
func ForStore(st journal.Store, opts ...Option) *Store {
	if st == nil || !st.Supports(journal.ModelPairSetting) {
		return New(nil, opts...)
	}
	return New(st, opts...)
}

// Set assigns f to pairID and queues the write.
func (s *Store) Set(pairID string, f journal.Flag) error {
	f, err := journal.ParseFlag(string(f))
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.flags[pairID] = f
	if s.p != nil && !s.queued[pairID] {
		s.queued[pairID] = true
		s.order = append(s.order, pairID)
		s.pending.Add(1)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Flag returns the flag of pairID, none when unset.
func (s *Store) Flag(pairID string) journal.Flag {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.flags[pairID]; ok {
		return f
	}
	return journal.FlagNone
}

// Flags returns a copy of every assigned flag.
func (s *Store) Flags() map[string]journal.Flag {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]journal.Flag, len(s.flags))
	for k, v := range s.flags {
		out[k] = v
	}
	return out
}

// Apply folds a full settings snapshot in. Pairs with a write queued or in
// flight keep their local value.
func (s *Store) Apply(settings []journal.PairSetting) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]journal.Flag, len(settings))
	for _, st := range settings {
		if st.PairID == "" {
			continue
		}
		s.ids[st.PairID] = st.ID
		flag := st.Flag
		if flag == "" {
			flag = journal.FlagNone
		}
		next[st.PairID] = flag
	}
	for pairID, f := range s.flags {
		if s.queued[pairID] || s.inflight[pairID] {
			next[pairID] = f
		}
	}
	s.flags = next
}

// Follow applies every snapshot from ch until it closes or ctx is done.
func (s *Store) Follow(ctx context.Context, ch <-chan []journal.PairSetting) {
	for {
		select {
		case <-ctx.Done():
			return
		case items, ok := <-ch:
			if !ok {
				return
			}
			s.Apply(items)
		}
	}
}

// Wait blocks until every queued write has been attempted.
func (s *Store) Wait() {
	s.pending.Wait()
}

// Close writes what is still queued and stops the worker.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done
}

func (s *Store) run() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.stop:
			s.drain()
			return
		}
	}
}

func (s *Store) drain() {
	for {
		s.mu.Lock()
		if len(s.order) == 0 {
			s.mu.Unlock()
			return
		}
		pairID := s.order[0]
		s.order = s.order[1:]
		delete(s.queued, pairID)
		s.inflight[pairID] = true
		flag, id := s.flags[pairID], s.ids[pairID]
		s.mu.Unlock()

		s.persist(pairID, id, flag)

		s.mu.Lock()
		delete(s.inflight, pairID)
		s.mu.Unlock()
		s.pending.Done()
	}
}

// persist upserts by pair id: update when a row id is known, else create and
// remember the new id.
func (s *Store) persist(pairID, id string, flag journal.Flag) {
	ctx := context.Background()

	var saved journal.PairSetting
	var err error
	if id != "" {
		saved, err = s.p.UpdatePairSetting(ctx, id, flag)
		if errors.Is(err, journal.ErrNotFound) {
			id = ""
		}
	}
	if id == "" {
		saved, err = s.p.CreatePairSetting(ctx, journal.PairSetting{PairID: pairID, Flag: flag})
	}

	if s.obs != nil {
		s.obs.ObserveFlagWrite(err)
	}
	if err != nil {
		s.log.Error("save pair flag", "pair", pairID, "flag", string(flag), "error", err)
		return
	}

	s.mu.Lock()
	s.ids[pairID] = saved.ID
	s.mu.Unlock()
}
