package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradelog/autosave"
	"github.com/rustyeddy/tradelog/config"
	"github.com/rustyeddy/tradelog/internal/logging"
	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/pairflags"
)

var rootCmd = &cobra.Command{
	Use:   "tradelog",
	Short: "A multi-timeframe analysis journal for FX, index and futures pairs",
	Long: `Tradelog keeps a per-pair, per-session analysis journal.

It provides tools for:
  - Drafting weekly, daily, 4H and 1H notes that save themselves
  - Browsing the watchlist grouped by category, flag or last analysis date
  - Reviewing, editing and exporting past analyses
  - Serving the journal over HTTP with a live snapshot stream

Settings are read from a YAML or JSON config file, a .env file and
TRADELOG_* environment variables.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	cfgFile  string
	dbPath   string
	logLevel string

	cfg    *config.Config
	logger *slog.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "path to SQLite journal DB (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
}

// setup loads .env, the config file and the logger before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFromFile(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.Default()
		cfg.ApplyEnv()
	}
	if dbPath != "" {
		cfg.Journal.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger = logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	logging.SetDefault(logger)
	return nil
}

func openJournal() (*journal.SQLite, error) {
	var (
		j   *journal.SQLite
		err error
	)
	if cfg.Journal.Migrate {
		j, err = journal.NewSQLite(cfg.Journal.DBPath, journal.WithLogger(logger))
	} else {
		j, err = journal.OpenSQLite(cfg.Journal.DBPath, journal.WithLogger(logger))
	}
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func openPreferences() (*config.PreferenceStore, error) {
	p, err := config.OpenPreferences(cfg.Preferences)
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	return p, nil
}

// workspace is a short-lived engine and flag store loaded with the current
// contents of the journal, for one-shot commands.
type workspace struct {
	store  *journal.SQLite
	engine *autosave.Engine
	flags  *pairflags.Store
	cutoff int
}

func openWorkspace(ctx context.Context) (*workspace, error) {
	store, err := openJournal()
	if err != nil {
		return nil, err
	}
	prefs, err := openPreferences()
	if err != nil {
		store.Close()
		return nil, err
	}

	w := &workspace{
		store:  store,
		engine: autosave.ForStore(store, autosave.Options{Logger: logger}),
		flags:  pairflags.ForStore(store, pairflags.WithLogger(logger)),
		cutoff: prefs.Cutoff(),
	}

	// A missing table leaves the snapshot empty.
	if store.Supports(journal.ModelAnalysis) {
		list, err := store.ListAnalyses(ctx, journal.Filter{})
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("list analyses: %w", err)
		}
		w.engine.Apply(list)
	}
	if store.Supports(journal.ModelPairSetting) {
		settings, err := store.ListPairSettings(ctx)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("list pair settings: %w", err)
		}
		w.flags.Apply(settings)
	}
	return w, nil
}

// Close drains pending flag writes and releases the journal.
func (w *workspace) Close() {
	w.engine.Close()
	w.flags.Close()
	w.store.Close()
}
