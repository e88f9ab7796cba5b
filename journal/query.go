package journal

import (
	"context"
	"fmt"
	"strings"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// GetAnalysis returns a single analysis by id.
func (j *SQLite) GetAnalysis(ctx context.Context, id string) (Analysis, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if err != nil {
		if isNoRows(err) {
			return Analysis{}, fmt.Errorf("analysis %q: %w", id, ErrNotFound)
		}
		return Analysis{}, err
	}
	return a, nil
}

// ListAnalyses returns analyses matching f, newest first.
func (j *SQLite) ListAnalyses(ctx context.Context, f Filter) ([]Analysis, error) {
	var where []string
	var args []any
	if f.PairID != "" {
		where = append(where, "pair_id = ?")
		args = append(args, f.PairID)
	}
	if !f.From.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "timestamp < ?")
		args = append(args, f.To.UTC())
	}

	q := `SELECT ` + analysisColumns + ` FROM analyses`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY timestamp DESC, id DESC`

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPairSettings returns every pair setting ordered by pair id.
func (j *SQLite) ListPairSettings(ctx context.Context) ([]PairSetting, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, pair_id, flag, updated_at FROM pair_settings ORDER BY pair_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PairSetting
	for rows.Next() {
		var s PairSetting
		var flag string
		if err := rows.Scan(&s.ID, &s.PairID, &flag, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Flag = Flag(flag)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanAnalysis(r rowScanner) (Analysis, error) {
	var a Analysis
	var vals [12]nullString
	dest := []any{&a.ID, &a.PairID, &a.Timestamp}
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	dest = append(dest, &a.CreatedAt, &a.UpdatedAt)

	if err := r.Scan(dest...); err != nil {
		return Analysis{}, err
	}
	for i, f := range Fields() {
		if err := a.Notes.Set(f, string(vals[i])); err != nil {
			return Analysis{}, err
		}
	}
	a.Notes = a.Notes.Normalize()
	a.Timestamp = a.Timestamp.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

// nullString scans NULL as "".
type nullString string

func (s *nullString) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		*s = ""
	case string:
		*s = nullString(x)
	case []byte:
		*s = nullString(x)
	default:
		return fmt.Errorf("unexpected column type %T", v)
	}
	return nil
}
