package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stashfs/stashfs/internal/background"
	"github.com/stashfs/stashfs/internal/logger"
	"github.com/stashfs/stashfs/internal/server"
	"github.com/stashfs/stashfs/pkg/config"
	"github.com/stashfs/stashfs/pkg/metrics"
	"github.com/stashfs/stashfs/pkg/recovery"
	"github.com/stashfs/stashfs/pkg/sandbox"
	"github.com/stashfs/stashfs/pkg/service"
	"github.com/stashfs/stashfs/pkg/store"
)

// shutdownGrace is how long in-flight requests get to drain.
const shutdownGrace = 10 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the StashFS server",
	Long: `Start the StashFS server.

Configuration is read from the environment (see --help for the variable
names), optionally preloaded from a .env file. The server recovers its
metadata catalog from the last snapshot plus the write-ahead log before
accepting requests, and writes a final snapshot on shutdown.

Examples:
  # Start with environment configuration
  API_KEY=secret DATA_DIR=/var/lib/stashfs stashfs start

  # Start with a .env file
  stashfs start --env-file /etc/stashfs/stashfs.env`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("loading env file: %w", err)
		}
	} else {
		// Best effort: a .env in the working directory is optional.
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{Level: cfg.LogLevel}); err != nil {
		return err
	}

	logger.Info("starting stashfs",
		"version", Version, "data_dir", cfg.DataDir, "addr", cfg.ListenAddr())

	st := store.New(cfg.DataDir)
	rec, err := recovery.Bootstrap(cfg.ReposDir(), cfg.WALDir(), cfg.SnapshotPath(), st)
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}
	defer rec.WAL.Close()

	met := metrics.New(rec.Catalog)
	svc := service.New(service.Params{
		Catalog:            rec.Catalog,
		WAL:                rec.WAL,
		Store:              st,
		Metrics:            met,
		DefaultMaxRepoSize: cfg.DefaultMaxRepoSize,
		MaxUploadSize:      cfg.MaxUploadSize,
	})
	runner := sandbox.NewRunner(cfg.MaxConcurrentCommands)
	srv := server.New(cfg, svc, rec.Catalog, runner, met, Version)

	// Background loops run until the HTTP server has drained, so the final
	// snapshot covers every completed request.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	snapshotter := background.NewSnapshotter(
		rec.Catalog, rec.WAL, cfg.SnapshotPath(), cfg.SnapshotInterval(), met)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		snapshotter.Run(bgCtx)
	}()
	go func() {
		defer wg.Done()
		background.RunReaper(bgCtx, svc, cfg.TTLSweepInterval())
	}()
	go func() {
		defer wg.Done()
		background.RunQuotaMonitor(bgCtx, svc, cfg.EvictionSweepInterval())
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr())
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		bgCancel()
		wg.Wait()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "grace", shutdownGrace.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("shutdown error", "error", err)
	}

	// Stop the loops; the snapshotter writes its final snapshot on the way out.
	bgCancel()
	wg.Wait()

	logger.Info("stopped")
	return nil
}
