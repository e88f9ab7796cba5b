package journal

import (
	"fmt"
	"strings"
)

// Kind is the part of a timeframe entry a field addresses.
type Kind string

const (
	KindNote       Kind = "note"
	KindScreenshot Kind = "screenshot"
	KindSentiment  Kind = "sentiment"
)

var kinds = []Kind{KindNote, KindScreenshot, KindSentiment}

// Field addresses one editable value of an analysis, e.g. the daily
// screenshot. Its string form matches the record attribute name:
// "daily", "dailyScreenshot", "dailySentiment".
type Field struct {
	Timeframe Timeframe
	Kind      Kind
}

// NoteField, ScreenshotField and SentimentField build fields for tf.
func NoteField(tf Timeframe) Field       { return Field{tf, KindNote} }
func ScreenshotField(tf Timeframe) Field { return Field{tf, KindScreenshot} }
func SentimentField(tf Timeframe) Field  { return Field{tf, KindSentiment} }

func (f Field) String() string {
	switch f.Kind {
	case KindScreenshot:
		return string(f.Timeframe) + "Screenshot"
	case KindSentiment:
		return string(f.Timeframe) + "Sentiment"
	}
	return string(f.Timeframe)
}

// Column is the SQL column backing the field.
func (f Field) Column() string {
	tf := map[Timeframe]string{
		Weekly:   "weekly",
		Daily:    "daily",
		FourHour: "four_hr",
		OneHour:  "one_hr",
	}[f.Timeframe]
	switch f.Kind {
	case KindScreenshot:
		return tf + "_screenshot"
	case KindSentiment:
		return tf + "_sentiment"
	}
	return tf
}

// Fields lists all twelve fields in timeframe order.
func Fields() []Field {
	out := make([]Field, 0, len(Timeframes)*len(kinds))
	for _, tf := range Timeframes {
		for _, k := range kinds {
			out = append(out, Field{tf, k})
		}
	}
	return out
}

// ParseField reads the attribute name form produced by Field.String.
func ParseField(s string) (Field, error) {
	for _, f := range Fields() {
		if strings.EqualFold(f.String(), s) {
			return f, nil
		}
	}
	return Field{}, fmt.Errorf("%w: %q", ErrInvalidField, s)
}
