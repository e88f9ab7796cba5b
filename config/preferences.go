package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradelog/tradingday"
)

// Preferences are the client-local settings, kept apart from Config.
type Preferences struct {
	CutoffHourUTC int `json:"cutoff_hour_utc" yaml:"cutoff_hour_utc"`
}

// DefaultPreferences returns the preferences used when none are stored.
func DefaultPreferences() Preferences {
	return Preferences{CutoffHourUTC: tradingday.DefaultCutoffHourUTC}
}

// LoadPreferences reads path. A missing file, or a cutoff outside 0-23,
// yields the default.
func LoadPreferences(path string) (Preferences, error) {
	prefs := DefaultPreferences()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return prefs, nil
	}
	if err != nil {
		return prefs, fmt.Errorf("read preferences: %w", err)
	}

	var raw struct {
		CutoffHourUTC *int `yaml:"cutoff_hour_utc"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return prefs, fmt.Errorf("parse preferences: %w", err)
	}
	if raw.CutoffHourUTC != nil && *raw.CutoffHourUTC >= 0 && *raw.CutoffHourUTC <= 23 {
		prefs.CutoffHourUTC = *raw.CutoffHourUTC
	}
	return prefs, nil
}

// SavePreferences writes p to path, clamping the cutoff into 0-23.
func SavePreferences(path string, p Preferences) error {
	p.CutoffHourUTC = tradingday.ClampCutoff(p.CutoffHourUTC)

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preferences dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

// WatchPreferences calls fn with the reloaded preferences whenever path is
// written, until ctx is done. The directory is watched so editors that
// replace the file are noticed too.
func WatchPreferences(ctx context.Context, path string, logger *slog.Logger, fn func(Preferences)) error {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			prefs, err := LoadPreferences(abs)
			if err != nil {
				logger.Warn("reload preferences", "path", abs, "error", err)
				continue
			}
			logger.Info("preferences reloaded", "cutoff_hour_utc", prefs.CutoffHourUTC)
			fn(prefs)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("preferences watcher", "error", err)
		}
	}
}

// PreferenceStore is the live copy of the preferences file.
type PreferenceStore struct {
	path string

	mu    sync.RWMutex
	prefs Preferences
}

// OpenPreferences loads path into a PreferenceStore.
func OpenPreferences(path string) (*PreferenceStore, error) {
	prefs, err := LoadPreferences(path)
	if err != nil {
		return nil, err
	}
	return &PreferenceStore{path: path, prefs: prefs}, nil
}

// Cutoff returns the trading day cutoff hour.
func (s *PreferenceStore) Cutoff() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.CutoffHourUTC
}

// SetCutoff clamps h into 0-23, stores it and returns the stored value.
func (s *PreferenceStore) SetCutoff(h int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.prefs
	next.CutoffHourUTC = tradingday.ClampCutoff(h)
	if err := SavePreferences(s.path, next); err != nil {
		return s.prefs.CutoffHourUTC, err
	}
	s.prefs = next
	return next.CutoffHourUTC, nil
}

// Watch keeps the store in sync with edits made to the file by other
// processes until ctx is done.
func (s *PreferenceStore) Watch(ctx context.Context, logger *slog.Logger) error {
	return WatchPreferences(ctx, s.path, logger, func(p Preferences) {
		s.mu.Lock()
		s.prefs = p
		s.mu.Unlock()
	})
}
