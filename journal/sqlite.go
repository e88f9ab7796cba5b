package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/tradelog/pkg/id"
)

var _ Store = (*SQLite)(nil)

// SQLite is a Store backed by a SQLite file. Every successful write pushes a
// fresh snapshot to subscribers.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
	log *slog.Logger

	analysisSubs hub[[]Analysis]
	settingSubs  hub[[]PairSetting]
}

// Option configures a SQLite store.
type Option func(*SQLite)

// WithLogger sets the logger used for background failures.
func WithLogger(l *slog.Logger) Option {
	return func(j *SQLite) { j.log = l }
}

// WithClock overrides the source of created/updated times.
func WithClock(now func() time.Time) Option {
	return func(j *SQLite) { j.now = now }
}

// NewSQLite opens path and creates any missing tables.
func NewSQLite(path string, opts ...Option) (*SQLite, error) {
	j, err := OpenSQLite(path, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := j.db.Exec(Schema); err != nil {
		j.db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return j, nil
}

// OpenSQLite opens path without touching the schema. Use Supports to find
// out which models the database carries.
func OpenSQLite(path string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	j := &SQLite{db: db, now: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

// Supports reports whether the table for m exists.
func (j *SQLite) Supports(m Model) bool {
	var name string
	err := j.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, string(m)).Scan(&name)
	return err == nil
}

func (j *SQLite) Close() error {
	j.analysisSubs.closeAll()
	j.settingSubs.closeAll()
	return j.db.Close()
}

func (j *SQLite) CreateAnalysis(ctx context.Context, a Analysis) (Analysis, error) {
	if a.PairID == "" {
		return Analysis{}, fmt.Errorf("%w: pair id is required", ErrInvalidField)
	}
	now := j.now().UTC()
	a.ID = id.NewAt(now)
	a.Timestamp = a.Timestamp.UTC()
	a.Notes = a.Notes.Normalize()
	a.CreatedAt = now
	a.UpdatedAt = now

	cols := []string{"id", "pair_id", "timestamp"}
	args := []any{a.ID, a.PairID, a.Timestamp}
	for _, f := range Fields() {
		cols = append(cols, f.Column())
		args = append(args, nullable(a.Notes.Get(f)))
	}
	cols = append(cols, "created_at", "updated_at")
	args = append(args, a.CreatedAt, a.UpdatedAt)

	q := fmt.Sprintf(`INSERT INTO analyses (%s) VALUES (%s)`,
		strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := j.db.ExecContext(ctx, q, args...); err != nil {
		return Analysis{}, err
	}

	j.publishAnalyses(ctx)
	return a, nil
}

func (j *SQLite) UpdateAnalysis(ctx context.Context, id string, p Patch) (Analysis, error) {
	sets := make([]string, 0, len(p)+1)
	args := make([]any, 0, len(p)+2)
	// Walk Fields for a stable column order.
	for _, f := range Fields() {
		v, ok := p[f]
		if !ok {
			continue
		}
		if f.Kind == KindSentiment {
			s, err := ParseSentiment(v)
			if err != nil {
				return Analysis{}, err
			}
			v = string(s)
		}
		sets = append(sets, f.Column()+" = ?")
		args = append(args, nullable(v))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, j.now().UTC(), id)

	res, err := j.db.ExecContext(ctx,
		`UPDATE analyses SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return Analysis{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Analysis{}, fmt.Errorf("analysis %q: %w", id, ErrNotFound)
	}

	a, err := j.GetAnalysis(ctx, id)
	if err != nil {
		return Analysis{}, err
	}
	j.publishAnalyses(ctx)
	return a, nil
}

func (j *SQLite) DeleteAnalysis(ctx context.Context, id string) error {
	res, err := j.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("analysis %q: %w", id, ErrNotFound)
	}
	j.publishAnalyses(ctx)
	return nil
}

func (j *SQLite) CreatePairSetting(ctx context.Context, s PairSetting) (PairSetting, error) {
	if s.PairID == "" {
		return PairSetting{}, fmt.Errorf("%w: pair id is required", ErrInvalidField)
	}
	if s.Flag == "" {
		s.Flag = FlagNone
	}
	now := j.now().UTC()
	s.ID = id.NewAt(now)
	s.UpdatedAt = now

	// A pair keeps its row: creating it again updates the flag in place.
	err := j.db.QueryRowContext(ctx, `
		INSERT INTO pair_settings (id, pair_id, flag, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(pair_id) DO UPDATE SET flag = excluded.flag, updated_at = excluded.updated_at
		RETURNING id`,
		s.ID, s.PairID, string(s.Flag), s.UpdatedAt,
	).Scan(&s.ID)
	if err != nil {
		return PairSetting{}, err
	}
	j.publishSettings(ctx)
	return s, nil
}

func (j *SQLite) UpdatePairSetting(ctx context.Context, id string, flag Flag) (PairSetting, error) {
	now := j.now().UTC()
	res, err := j.db.ExecContext(ctx,
		`UPDATE pair_settings SET flag = ?, updated_at = ? WHERE id = ?`,
		string(flag), now, id)
	if err != nil {
		return PairSetting{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return PairSetting{}, fmt.Errorf("pair setting %q: %w", id, ErrNotFound)
	}

	var s PairSetting
	var f string
	err = j.db.QueryRowContext(ctx,
		`SELECT id, pair_id, flag, updated_at FROM pair_settings WHERE id = ?`, id,
	).Scan(&s.ID, &s.PairID, &f, &s.UpdatedAt)
	if err != nil {
		return PairSetting{}, err
	}
	s.Flag = Flag(f)
	j.publishSettings(ctx)
	return s, nil
}

func (j *SQLite) publishAnalyses(ctx context.Context) {
	if j.analysisSubs.empty() {
		return
	}
	items, err := j.ListAnalyses(context.WithoutCancel(ctx), Filter{})
	if err != nil {
		j.log.Error("analysis snapshot", "error", err)
		return
	}
	j.analysisSubs.publish(items)
}

func (j *SQLite) publishSettings(ctx context.Context) {
	if j.settingSubs.empty() {
		return
	}
	items, err := j.ListPairSettings(context.WithoutCancel(ctx))
	if err != nil {
		j.log.Error("pair settings snapshot", "error", err)
		return
	}
	j.settingSubs.publish(items)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
