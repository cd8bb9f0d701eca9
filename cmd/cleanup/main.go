package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/abdul-hamid-achik/clipvote/internal/app"
	"github.com/abdul-hamid-achik/clipvote/internal/config"
	"github.com/abdul-hamid-achik/clipvote/internal/db"
	"github.com/abdul-hamid-achik/clipvote/internal/logger"
	"github.com/abdul-hamid-achik/clipvote/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("cleanup failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	log.Info("connecting to database")
	pool, err := app.OpenPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("database connected")

	reaper := worker.NewReaper(db.NewStore(pool), cfg.StaleClaimAfter)
	stats, err := reaper.Run(logger.WithLogger(ctx, log))
	if err != nil {
		return fmt.Errorf("reaper failed: %w", err)
	}

	if stats.UpdateErrors > 0 {
		return fmt.Errorf("%d stale videos could not be marked failed", stats.UpdateErrors)
	}
	return nil
}
