package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, "sqlite", cfg.Journal.Type)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, time.Hour, cfg.ScreenshotTTL())
	assert.NoError(t, cfg.Validate())

	delay, saved, poll, err := cfg.Autosave.Timings()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, delay)
	assert.Equal(t, 2500*time.Millisecond, saved)
	assert.Equal(t, time.Minute, poll)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "unknown journal type",
			mutate:  func(c *Config) { c.Journal.Type = "csv" },
			wantErr: true,
			errMsg:  "journal.type must be 'sqlite'",
		},
		{
			name:    "missing db path",
			mutate:  func(c *Config) { c.Journal.DBPath = "" },
			wantErr: true,
			errMsg:  "journal db_path required",
		},
		{
			name:    "missing screenshot dir",
			mutate:  func(c *Config) { c.Screenshots.Dir = "" },
			wantErr: true,
			errMsg:  "screenshots.dir is required",
		},
		{
			name:    "bad ttl",
			mutate:  func(c *Config) { c.Screenshots.TTL = "soon" },
			wantErr: true,
			errMsg:  "screenshots.ttl",
		},
		{
			name:    "negative delay",
			mutate:  func(c *Config) { c.Autosave.Delay = "-1s" },
			wantErr: true,
			errMsg:  "autosave.delay must not be negative",
		},
		{
			name:    "bad poll interval",
			mutate:  func(c *Config) { c.Autosave.PollInterval = "often" },
			wantErr: true,
			errMsg:  "autosave.poll_interval",
		},
		{
			name:    "missing addr",
			mutate:  func(c *Config) { c.Server.Addr = "" },
			wantErr: true,
			errMsg:  "server.addr is required",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: true,
			errMsg:  "logging.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
			errMsg:  "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Journal.DBPath = "/var/lib/tradelog/journal.db"
			cfg.Autosave.Delay = "2s"
			path := filepath.Join(tmpDir, "test"+tt.ext)

			err := cfg.SaveToFile(path)
			require.NoError(t, err)

			_, err = os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)

			assert.Equal(t, cfg.Journal, loaded.Journal)
			assert.Equal(t, cfg.Autosave, loaded.Autosave)
			assert.Equal(t, cfg.Server, loaded.Server)
		})
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("journal:\n  type: sqlite\n  db_path: ./x.db\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "./x.db", cfg.Journal.DBPath)
	assert.Equal(t, "1.5s", cfg.Autosave.Delay)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("journal: [unterminated"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvDB, "/tmp/env.db")
	t.Setenv(EnvAddr, "127.0.0.1:9999")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvSigningKey, "s3cret")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "/tmp/env.db", cfg.Journal.DBPath)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "s3cret", cfg.Screenshots.SigningKey)
}

func TestPreferences(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prefs", "preferences.yaml")

	prefs, err := LoadPreferences(path)
	require.NoError(t, err)
	assert.Equal(t, 22, prefs.CutoffHourUTC)

	require.NoError(t, SavePreferences(path, Preferences{CutoffHourUTC: 21}))
	prefs, err = LoadPreferences(path)
	require.NoError(t, err)
	assert.Equal(t, 21, prefs.CutoffHourUTC)

	require.NoError(t, SavePreferences(path, Preferences{CutoffHourUTC: 30}))
	prefs, err = LoadPreferences(path)
	require.NoError(t, err)
	assert.Equal(t, 23, prefs.CutoffHourUTC, "clamped on write")

	require.NoError(t, os.WriteFile(path, []byte("cutoff_hour_utc: 40\n"), 0644))
	prefs, err = LoadPreferences(path)
	require.NoError(t, err)
	assert.Equal(t, 22, prefs.CutoffHourUTC, "out of range is ignored on read")

	require.NoError(t, os.WriteFile(path, []byte("cutoff_hour_utc: 0\n"), 0644))
	prefs, err = LoadPreferences(path)
	require.NoError(t, err)
	assert.Equal(t, 0, prefs.CutoffHourUTC)
}

func TestWatchPreferences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.yaml")
	require.NoError(t, SavePreferences(path, Preferences{CutoffHourUTC: 22}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Preferences, 8)
	done := make(chan error, 1)
	go func() {
		done <- WatchPreferences(ctx, path, nil, func(p Preferences) { got <- p })
	}()

	// The watcher registers asynchronously; keep writing until it reports.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case p := <-got:
			if p.CutoffHourUTC != 20 {
				// a truncate-then-write can be observed half way
				continue
			}
			cancel()
			assert.ErrorIs(t, <-done, context.Canceled)
			return
		case <-tick.C:
			require.NoError(t, SavePreferences(path, Preferences{CutoffHourUTC: 20}))
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

func TestPreferenceStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.yaml")

	s, err := OpenPreferences(path)
	require.NoError(t, err)
	assert.Equal(t, 22, s.Cutoff())

	got, err := s.SetCutoff(-3)
	require.NoError(t, err)
	assert.Equal(t, 0, got)
	assert.Equal(t, 0, s.Cutoff())

	reopened, err := OpenPreferences(path)
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Cutoff())
}
