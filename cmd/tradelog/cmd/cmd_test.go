package cmd

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/market"
	"github.com/rustyeddy/tradelog/watchlist"
)

func TestParseAssignments(t *testing.T) {
	patch, err := parseAssignments([]string{"weekly=range high", "dailySentiment=bearish", "oneHr="})
	require.NoError(t, err)
	assert.Equal(t, journal.Patch{
		journal.NoteField(journal.Weekly):     "range high",
		journal.SentimentField(journal.Daily): "bearish",
		journal.NoteField(journal.OneHour):    "",
	}, patch)

	_, err = parseAssignments([]string{"weekly"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"monthly=x"})
	assert.ErrorIs(t, err, journal.ErrInvalidField)
	_, err = parseAssignments([]string{"weeklySentiment=sideways"})
	assert.Error(t, err)
}

func TestParseFilters(t *testing.T) {
	set, err := parseFilters([]string{"red", " Green ", "red"})
	require.NoError(t, err)
	assert.Equal(t, watchlist.FilterSet{journal.FlagRed, journal.FlagGreen}, set)

	_, err = parseFilters([]string{"magenta"})
	assert.Error(t, err)
}

func TestPrintBoard(t *testing.T) {
	pairs := []market.Pair{
		{ID: "9", Name: "EURUSD", Category: market.Forex},
		{ID: "2", Name: "AUDUSD", Category: market.Forex},
	}
	flags := map[string]journal.Flag{"9": journal.FlagRed}
	res := watchlist.Build(pairs, flags, nil, watchlist.Options{Sort: watchlist.BySymbol})

	var buf bytes.Buffer
	printBoard(&buf, res, flags, nil)
	assert.Contains(t, buf.String(), "AUDUSD")
	assert.Contains(t, buf.String(), "EURUSD   Forex    red")
	assert.Contains(t, buf.String(), "2 of 2 pairs")
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestDraftSetAndExport(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "journal.db")

	out := run(t, "--db", db, "draft", "set", "EURUSD", "weekly=range high", "weeklySentiment=bearish")
	assert.Contains(t, out, "EURUSD")
	assert.Contains(t, out, "range high")

	csvPath := filepath.Join(dir, "out.csv")
	out = run(t, "--db", db, "analysis", "export", "--format", "csv", "--output", csvPath, "--pair", "EURUSD", "--day", "")
	assert.Contains(t, out, "Exported 1 analyses")

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, journal.CSVHeader, rows[0])
	assert.Equal(t, "9", rows[1][1])
	assert.Equal(t, "range high", rows[1][3])

	out = run(t, "--db", db, "draft", "clear", "EURUSD")
	assert.Contains(t, out, "Cleared EURUSD")

	out = run(t, "--db", db, "analysis", "export", "--format", "csv", "--output", csvPath, "--pair", "", "--day", "")
	assert.Contains(t, out, "Exported 0 analyses")
}

func TestVersion(t *testing.T) {
	assert.Contains(t, run(t, "version"), "tradelog version "+version)
}
