package journal

import (
	"encoding/csv"
	"os"
	"time"
)

// CSVHeader is the first row written by CSVWriter.
var CSVHeader = func() []string {
	h := []string{"id", "pair_id", "timestamp"}
	for _, f := range Fields() {
		h = append(h, f.Column())
	}
	return append(h, "created_at", "updated_at")
}()

// CSVWriter exports analyses to a CSV file.
type CSVWriter struct {
	w *csv.Writer
	f *os.File
}

// NewCSV creates path and writes the header row.
func NewCSV(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}

	return &CSVWriter{w: w, f: f}, nil
}

// WriteAnalysis appends one row. Legacy inline screenshots are exported as
// "inline" to keep rows readable.
func (c *CSVWriter) WriteAnalysis(a Analysis) error {
	row := []string{a.ID, a.PairID, a.Timestamp.UTC().Format(time.RFC3339)}
	for _, f := range Fields() {
		v := a.Notes.Get(f)
		if f.Kind == KindScreenshot && IsInlineImage(v) {
			v = "inline"
		}
		row = append(row, v)
	}
	row = append(row,
		a.CreatedAt.UTC().Format(time.RFC3339),
		a.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return c.w.Write(row)
}

func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}
