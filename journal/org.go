package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/tradelog/tradingday"
)

// ReportOptions control how an analysis renders.
type ReportOptions struct {
	// PairName is shown in the heading; the pair id is used when empty.
	PairName string
	// CutoffHourUTC determines the TRADING_DATE property.
	CutoffHourUTC int
	// Screenshot turns a stored screenshot value into a link target. When nil
	// the raw value is linked. An empty result omits the link.
	Screenshot func(value string) string
}

// FormatAnalysisOrg renders an analysis as an Org-mode block: structured facts
// in a PROPERTIES drawer, then one section per timeframe that has content.
func FormatAnalysisOrg(a Analysis, opt ReportOptions) string {
	name := opt.PairName
	if name == "" {
		name = a.PairID
	}
	bucket := a.Timestamp.UTC().Format("2006-01-02 15:04")

	var b strings.Builder
	fmt.Fprintf(&b, "** Analysis: %s %s UTC (%s)\n", name, bucket, shortID(a.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", a.ID)
	fmt.Fprintf(&b, ":PAIR_ID: %s\n", a.PairID)
	fmt.Fprintf(&b, ":BUCKET: %s\n", a.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":TRADING_DATE: %s\n", tradingday.Date(a.Timestamp, opt.CutoffHourUTC))
	if !a.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, ":UPDATED: %s\n", a.UpdatedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString(":END:\n")

	for _, tf := range Timeframes {
		e := a.Entry(tf)
		if strings.TrimSpace(e.Note) == "" && e.Screenshot == "" {
			continue
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "*** %s", tf.Label())
		if e.Sentiment != "" && e.Sentiment != SentimentNone {
			fmt.Fprintf(&b, " :%s:", e.Sentiment)
		}
		b.WriteString("\n")
		if note := strings.TrimSpace(e.Note); note != "" {
			b.WriteString(note)
			b.WriteString("\n")
		}
		if link := screenshotLink(e.Screenshot, opt.Screenshot); link != "" {
			fmt.Fprintf(&b, "[[%s][%s screenshot]]\n", link, tf.Label())
		}
	}

	return b.String()
}

// FormatAnalysesOrg renders multiple analyses separated by blank lines.
func FormatAnalysesOrg(as []Analysis, opt ReportOptions) string {
	var b strings.Builder
	for i, a := range as {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatAnalysisOrg(a, opt))
	}
	return b.String()
}

// Summary condenses notes to one line, e.g. "W+ range high | D- rejected".
// Bullish is marked +, bearish -, flat =. Each note is cut to width runes.
func Summary(n Notes, width int) string {
	var parts []string
	for _, tf := range Timeframes {
		e := n.Entry(tf)
		text := strings.Join(strings.Fields(e.Note), " ")
		if text == "" {
			continue
		}
		parts = append(parts, tf.Short()+sentimentMark(e.Sentiment)+" "+truncate(text, width))
	}
	return strings.Join(parts, " | ")
}

func sentimentMark(s Sentiment) string {
	switch s {
	case SentimentBullish:
		return "+"
	case SentimentBearish:
		return "-"
	case SentimentFlat:
		return "="
	}
	return ""
}

func screenshotLink(value string, resolve func(string) string) string {
	if value == "" {
		return ""
	}
	if resolve == nil {
		if IsInlineImage(value) {
			return ""
		}
		return value
	}
	return resolve(value)
}

// IsInlineImage reports whether a screenshot value is a legacy data URI
// rather than a storage key.
func IsInlineImage(value string) bool {
	return strings.HasPrefix(value, "data:")
}

func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width]) + "…"
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
