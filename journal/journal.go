// Package journal holds the pre-trade analysis records and pair settings and
// the persistence collaborator that stores them.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a record id is unknown.
	ErrNotFound = errors.New("record not found")
	// ErrUnsupported is returned when the backing store lacks a model.
	ErrUnsupported = errors.New("model not supported by store")
	// ErrInvalidField is returned for a field name or value outside the catalog.
	ErrInvalidField = errors.New("invalid field")
)

// Timeframe is one of the four chart timeframes an analysis covers.
type Timeframe string

const (
	Weekly   Timeframe = "weekly"
	Daily    Timeframe = "daily"
	FourHour Timeframe = "fourHr"
	OneHour  Timeframe = "oneHr"
)

// Timeframes lists every timeframe, highest first.
var Timeframes = []Timeframe{Weekly, Daily, FourHour, OneHour}

// Label is the long display name.
func (tf Timeframe) Label() string {
	switch tf {
	case Weekly:
		return "Weekly"
	case Daily:
		return "Daily"
	case FourHour:
		return "4 Hour"
	case OneHour:
		return "1 Hour"
	}
	return string(tf)
}

// Short is the compact summary label.
func (tf Timeframe) Short() string {
	switch tf {
	case Weekly:
		return "W"
	case Daily:
		return "D"
	case FourHour:
		return "4H"
	case OneHour:
		return "1H"
	}
	return string(tf)
}

// Sentiment is the directional bias attached to a timeframe.
type Sentiment string

const (
	SentimentNone    Sentiment = "none"
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentFlat    Sentiment = "flat"
)

// ParseSentiment accepts the closed set of sentiments. The empty string reads
// as none.
func ParseSentiment(s string) (Sentiment, error) {
	switch Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case "", SentimentNone:
		return SentimentNone, nil
	case SentimentBullish:
		return SentimentBullish, nil
	case SentimentBearish:
		return SentimentBearish, nil
	case SentimentFlat:
		return SentimentFlat, nil
	}
	return SentimentNone, fmt.Errorf("%w: sentiment %q", ErrInvalidField, s)
}

// Flag is the color a pair is tagged with on the watchlist.
type Flag string

const (
	FlagNone   Flag = "none"
	FlagRed    Flag = "red"
	FlagOrange Flag = "orange"
	FlagGreen  Flag = "green"
	FlagBlue   Flag = "blue"
	FlagCyan   Flag = "cyan"
	FlagPink   Flag = "pink"
	FlagPurple Flag = "purple"
)

// Flags is the priority order used when sorting by flag; none comes last.
var Flags = []Flag{FlagRed, FlagOrange, FlagGreen, FlagBlue, FlagCyan, FlagPink, FlagPurple, FlagNone}

var flagLabels = map[Flag][2]string{
	FlagNone:   {"None — unreviewed", "Unflagged"},
	FlagRed:    {"Red — bearish, avoid longs", "Red — Bearish"},
	FlagOrange: {"Orange — bearish lean, uncertain", "Orange — Bearish lean"},
	FlagGreen:  {"Green — bullish, look for longs", "Green — Bullish"},
	FlagBlue:   {"Blue — active trade / prime setup", "Blue — Active trade"},
	FlagCyan:   {"Cyan — neutral, watching", "Cyan — Watching"},
	FlagPink:   {"Pink — neutral, watching", "Pink — Watching"},
	FlagPurple: {"Purple — macro / news watch", "Purple — Macro / News"},
}

// ParseFlag accepts the closed set of flag colors. The empty string reads as
// none.
func ParseFlag(s string) (Flag, error) {
	f := Flag(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FlagNone, nil
	}
	if _, ok := flagLabels[f]; !ok {
		return FlagNone, fmt.Errorf("%w: flag %q", ErrInvalidField, s)
	}
	return f, nil
}

// Label describes what the flag means when picking one.
func (f Flag) Label() string {
	if l, ok := flagLabels[f]; ok {
		return l[0]
	}
	return flagLabels[FlagNone][0]
}

// Heading is the group heading used when the watchlist is sorted by flag.
func (f Flag) Heading() string {
	if l, ok := flagLabels[f]; ok {
		return l[1]
	}
	return flagLabels[FlagNone][1]
}

// Rank is the position of f in Flags. Unknown flags rank with none.
func (f Flag) Rank() int {
	for i, v := range Flags {
		if v == f {
			return i
		}
	}
	return len(Flags) - 1
}

// Entry is what is recorded for a single timeframe. Screenshot is either a
// blob storage key or a legacy inline data URI.
type Entry struct {
	Note       string
	Screenshot string
	Sentiment  Sentiment
}

// IsEmpty reports whether nothing was recorded.
func (e Entry) IsEmpty() bool {
	return e.Note == "" && e.Screenshot == "" && (e.Sentiment == "" || e.Sentiment == SentimentNone)
}

// Notes is the editable body of an analysis: one Entry per timeframe. Drafts
// are plain Notes values.
type Notes struct {
	Weekly   Entry
	Daily    Entry
	FourHour Entry
	OneHour  Entry
}

// Entry returns the entry for tf.
func (n Notes) Entry(tf Timeframe) Entry {
	if p := n.slot(tf); p != nil {
		return *p
	}
	return Entry{}
}

// Get returns the string form of a single field.
func (n Notes) Get(f Field) string {
	e := n.Entry(f.Timeframe)
	switch f.Kind {
	case KindScreenshot:
		return e.Screenshot
	case KindSentiment:
		if e.Sentiment == "" {
			return string(SentimentNone)
		}
		return string(e.Sentiment)
	}
	return e.Note
}

// Set writes a single field.
func (n *Notes) Set(f Field, value string) error {
	p := n.slot(f.Timeframe)
	if p == nil {
		return fmt.Errorf("%w: timeframe %q", ErrInvalidField, f.Timeframe)
	}
	switch f.Kind {
	case KindNote:
		p.Note = value
	case KindScreenshot:
		p.Screenshot = value
	case KindSentiment:
		s, err := ParseSentiment(value)
		if err != nil {
			return err
		}
		p.Sentiment = s
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidField, f.Kind)
	}
	return nil
}

// IsEmpty reports whether every timeframe is empty.
func (n Notes) IsEmpty() bool {
	for _, tf := range Timeframes {
		if !n.Entry(tf).IsEmpty() {
			return false
		}
	}
	return true
}

// HasText reports whether any timeframe carries a note.
func (n Notes) HasText() bool {
	for _, tf := range Timeframes {
		if strings.TrimSpace(n.Entry(tf).Note) != "" {
			return true
		}
	}
	return false
}

// Normalize fills unset sentiments with none.
func (n Notes) Normalize() Notes {
	for _, tf := range Timeframes {
		p := n.slot(tf)
		if p.Sentiment == "" {
			p.Sentiment = SentimentNone
		}
	}
	return n
}

func (n *Notes) slot(tf Timeframe) *Entry {
	switch tf {
	case Weekly:
		return &n.Weekly
	case Daily:
		return &n.Daily
	case FourHour:
		return &n.FourHour
	case OneHour:
		return &n.OneHour
	}
	return nil
}

// Analysis is a persisted pre-trade analysis for one pair in one session
// bucket. Timestamp is the bucket's canonical instant.
type Analysis struct {
	ID        string
	PairID    string
	Timestamp time.Time
	Notes
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PairSetting carries the flag assigned to a pair. There is at most one per
// pair.
type PairSetting struct {
	ID        string
	PairID    string
	Flag      Flag
	UpdatedAt time.Time
}

// Patch maps fields to their new values. An empty value clears the field.
type Patch map[Field]string

// Apply writes every field of p into n.
func (p Patch) Apply(n *Notes) error {
	for f, v := range p {
		if err := n.Set(f, v); err != nil {
			return err
		}
	}
	return nil
}

// PatchFrom returns a patch setting every non-empty field of n.
func PatchFrom(n Notes) Patch {
	p := Patch{}
	for _, f := range Fields() {
		v := n.Get(f)
		if v == "" || (f.Kind == KindSentiment && v == string(SentimentNone)) {
			continue
		}
		p[f] = v
	}
	return p
}

// Filter narrows ListAnalyses. Zero values match everything.
type Filter struct {
	PairID string
	From   time.Time // inclusive
	To     time.Time // exclusive
}

// Model names a persisted entity type.
type Model string

const (
	ModelAnalysis    Model = "analyses"
	ModelPairSetting Model = "pair_settings"
)

// Store is the persistence collaborator.
type Store interface {
	CreateAnalysis(ctx context.Context, a Analysis) (Analysis, error)
	UpdateAnalysis(ctx context.Context, id string, p Patch) (Analysis, error)
	DeleteAnalysis(ctx context.Context, id string) error
	GetAnalysis(ctx context.Context, id string) (Analysis, error)
	ListAnalyses(ctx context.Context, f Filter) ([]Analysis, error)
	SubscribeAnalyses(ctx context.Context) (<-chan []Analysis, error)

	CreatePairSetting(ctx context.Context, s PairSetting) (PairSetting, error)
	UpdatePairSetting(ctx context.Context, id string, flag Flag) (PairSetting, error)
	ListPairSettings(ctx context.Context) ([]PairSetting, error)
	SubscribePairSettings(ctx context.Context) (<-chan []PairSetting, error)

	Supports(m Model) bool
	Close() error
}
