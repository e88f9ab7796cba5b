package autosave

import (
	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/session"
)

// Status is the save indicator shown next to a draft.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSaving
	StatusSaved
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusError:
		return "error"
	}
	return "idle"
}

// State is the lifecycle position of a (pair, bucket) draft.
type State int

const (
	StateEmpty State = iota
	StateHydrated
	StateDirtyPending
	StateSaving
	StateSaved
	StateError
)

func (s State) String() string {
	switch s {
	case StateHydrated:
		return "hydrated"
	case StateDirtyPending:
		return "dirty"
	case StateSaving:
		return "saving"
	case StateSaved:
		return "saved"
	case StateError:
		return "error"
	}
	return "empty"
}

type fieldSet map[journal.Field]struct{}

func (s fieldSet) merge(o fieldSet) {
	for f := range o {
		s[f] = struct{}{}
	}
}

type bucket struct {
	pairID string
	key    string

	draft journal.Notes
	dirty fieldSet

	status   Status
	recordID string // set once this bucket created its record
	saving   bool
	again    bool
	cleared  bool

	timer      session.Timer
	timerSeq   int
	savedTimer session.Timer
	gen        int
}

func newBucket(pairID, key string) *bucket {
	return &bucket{
		pairID: pairID,
		key:    key,
		draft:  journal.Notes{}.Normalize(),
		dirty:  make(fieldSet),
	}
}

// clean reports whether the draft holds nothing the store has not seen.
func (b *bucket) clean() bool {
	return len(b.dirty) == 0 && !b.saving && b.timer == nil && b.status != StatusError
}
