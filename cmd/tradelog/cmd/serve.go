package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradelog/api"
	"github.com/rustyeddy/tradelog/autosave"
	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/metrics"
	"github.com/rustyeddy/tradelog/pairflags"
	"github.com/rustyeddy/tradelog/screenshot"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the journal over HTTP",
	Long: `Serve runs the draft engine and the HTTP API until interrupted.

Drafts are saved after a short pause in editing and flushed when the
session bucket rolls over. Pending drafts are flushed on shutdown.

Example:
  tradelog serve --config tradelog.yaml --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	delay, saved, poll, err := cfg.Autosave.Timings()
	if err != nil {
		return err
	}

	store, err := openJournal()
	if err != nil {
		return err
	}
	defer store.Close()

	prefs, err := openPreferences()
	if err != nil {
		return err
	}
	go func() {
		if err := prefs.Watch(ctx, logger); err != nil {
			logger.Warn("preferences watcher stopped", "error", err)
		}
	}()

	blobs, err := screenshot.NewFileStore(cfg.Screenshots.Dir, cfg.Screenshots.BaseURL, []byte(cfg.Screenshots.SigningKey))
	if err != nil {
		return fmt.Errorf("open screenshot store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.New(reg)

	engine := autosave.ForStore(store, autosave.Options{
		Delay:        delay,
		SavedWindow:  saved,
		PollInterval: poll,
		Logger:       logger,
		Observer:     rec,
	})
	flags := pairflags.ForStore(store, pairflags.WithLogger(logger), pairflags.WithObserver(rec))
	defer flags.Close()

	follow(ctx, store, engine, flags)
	go func() {
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("rollover watcher stopped", "error", err)
		}
	}()

	srv := api.New(api.Deps{
		Store:          store,
		Engine:         engine,
		Flags:          flags,
		Blobs:          blobs,
		Prefs:          prefs,
		Gatherer:       reg,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ScreenshotTTL:  cfg.ScreenshotTTL(),
		Logger:         logger,
	})
	runErr := srv.Run(ctx, addr)

	logger.Info("shutting down, flushing drafts")
	if err := engine.FlushAll(context.Background()); err != nil {
		logger.Error("flush drafts", "error", err)
	}
	engine.Close()

	if runErr != nil {
		return fmt.Errorf("http server: %w", runErr)
	}
	return nil
}

// follow feeds store snapshots into the engine and the flag store. A failed
// subscription is treated as an empty collection.
func follow(ctx context.Context, store journal.Store, engine *autosave.Engine, flags *pairflags.Store) {
	if store.Supports(journal.ModelAnalysis) {
		if ch, err := store.SubscribeAnalyses(ctx); err != nil {
			logger.Error("subscribe analyses", "error", err)
		} else {
			go engine.Follow(ctx, ch)
		}
	}
	if store.Supports(journal.ModelPairSetting) {
		if ch, err := store.SubscribePairSettings(ctx); err != nil {
			logger.Error("subscribe pair settings", "error", err)
		} else {
			go flags.Follow(ctx, ch)
		}
	}
}
