package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdul-hamid-achik/clipvote/internal/app"
	"github.com/abdul-hamid-achik/clipvote/internal/config"
	"github.com/abdul-hamid-achik/clipvote/internal/db"
	"github.com/abdul-hamid-achik/clipvote/internal/health"
	"github.com/abdul-hamid-achik/clipvote/internal/logger"
	"github.com/abdul-hamid-achik/clipvote/internal/metrics"
	"github.com/abdul-hamid-achik/clipvote/internal/tracing"
	"github.com/abdul-hamid-achik/clipvote/internal/version"
	"github.com/abdul-hamid-achik/clipvote/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()
	log.Info("configuration loaded",
		"storage_backend", cfg.StorageBackend,
		"queue_backend", cfg.QueueBackend,
		"max_attempts", cfg.MaxAttempts,
		"max_requeues", cfg.MaxRequeues,
		"hard_time_limit", cfg.HardTimeLimit.String(),
		"visibility_timeout", cfg.VisibilityTimeout.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    "clipvote-worker",
		ServiceVersion: version.Short(),
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Error("error stopping tracing", "error", err)
		}
	}()

	log.Info("connecting to database")
	pool, err := app.OpenPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("database connected")

	files, err := app.NewStorage(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("storage ready", "backend", cfg.StorageBackend)

	consumer := fmt.Sprintf("worker-%d", os.Getpid())
	broker, err := app.NewBroker(ctx, cfg, consumer)
	if err != nil {
		return err
	}
	defer func() { _ = broker.Close() }()
	log.Info("broker ready", "backend", cfg.QueueBackend, "consumer", consumer)

	executor, toolkit, err := app.NewExecutor(ctx, cfg, files)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	store := db.NewStore(pool)
	processor := worker.NewProcessor(store, files, executor)
	supervisor := worker.NewSupervisor(processor, store, broker, worker.PolicyFromConfig(cfg))
	loop := worker.NewLoop(broker, supervisor)

	metrics.SetAppInfo(version.Short(), cfg.Environment, "worker")

	checker := health.NewChecker().
		Register("database", health.PoolProbe(pool)).
		Register("ffmpeg", func(context.Context) error { return toolkit.CheckFFmpeg() }).
		Register("assets", func(context.Context) error { return executor.CheckAssets() })
	if broker.Redis != nil {
		checker.Register("redis", health.RedisProbe(broker.Redis))
	}
	if cfg.StorageBackend == config.StorageS3 {
		checker.Register("storage", files.HealthCheck)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", health.ReadinessHandler(checker))
	mux.HandleFunc("/livez", health.LivenessHandler())

	metricsServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics server starting", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()

	err = loop.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := metricsServer.Shutdown(shutdownCtx); serr != nil {
		log.Error("error stopping metrics server", "error", serr)
	}

	if err != nil {
		return fmt.Errorf("worker loop error: %w", err)
	}
	log.Info("worker stopped gracefully")
	return nil
}
