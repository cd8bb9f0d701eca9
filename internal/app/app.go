// Package app builds the shared service objects of the clipvote binaries
// from configuration. Each binary constructs them once and passes them down.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/clipvote/internal/config"
	"github.com/abdul-hamid-achik/clipvote/internal/logger"
	"github.com/abdul-hamid-achik/clipvote/internal/metrics"
	"github.com/abdul-hamid-achik/clipvote/internal/pipeline"
	"github.com/abdul-hamid-achik/clipvote/internal/processor"
	"github.com/abdul-hamid-achik/clipvote/internal/processor/video"
	"github.com/abdul-hamid-achik/clipvote/internal/queue"
	"github.com/abdul-hamid-achik/clipvote/internal/storage"
)

func OpenPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func StorageConfig(cfg *config.Config) *storage.Config {
	return &storage.Config{
		Backend:         cfg.StorageBackend,
		UploadDir:       cfg.UploadPath,
		ProcessedDir:    cfg.ProcessedPath,
		Endpoint:        cfg.MinIOEndpoint,
		AccessKey:       cfg.MinIOAccessKey,
		SecretKey:       cfg.MinIOSecretKey,
		Bucket:          cfg.MinIOBucket,
		UseSSL:          cfg.MinIOUseSSL,
		Region:          cfg.MinIORegion,
		UploadPrefix:    cfg.S3UploadPrefix,
		ProcessedPrefix: cfg.S3ProcessedPrefix,
		TempDir:         cfg.WorkDir,
	}
}

// NewStorage builds the configured backend wrapped with metrics. Object
// storage gets its bucket created when missing.
func NewStorage(ctx context.Context, cfg *config.Config) (*metrics.InstrumentedStorage, error) {
	port, err := storage.New(StorageConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	if obj, ok := port.(*storage.ObjectStorage); ok {
		if err := obj.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket: %w", err)
		}
	}
	return metrics.NewInstrumentedStorage(port), nil
}

// Broker is a queue.Broker plus the probe used by the health endpoint.
type Broker struct {
	queue.Broker
	Redis *redis.Client
}

func NewBroker(ctx context.Context, cfg *config.Config, consumer string) (*Broker, error) {
	zl := zerolog.New(os.Stdout).With().Timestamp().Str("component", "queue").Logger()
	opts := []queue.Option{
		queue.WithVisibilityTimeout(cfg.VisibilityTimeout),
		queue.WithConsumer(consumer),
		queue.WithLogger(zl),
	}

	switch cfg.QueueBackend {
	case config.QueueSQS:
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		return &Broker{Broker: queue.NewSQSBroker(client, cfg.SQSQueueURL, opts...)}, nil

	default:
		redisOpt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpt)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b := queue.NewRedisBroker(client, cfg.QueueName, opts...)
		if err := b.Setup(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		return &Broker{Broker: b, Redis: client}, nil
	}
}

// Close releases the broker and, for Redis, its client.
func (b *Broker) Close() error {
	err := b.Broker.Close()
	if b.Redis != nil {
		if cerr := b.Redis.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// LoadProfile reads the pipeline profile and points it at the configured
// assets. WATERMARK_POSITION applies only without a profile file.
func LoadProfile(cfg *config.Config) (*video.Profile, error) {
	profile, err := video.LoadProfile(cfg.PipelineProfile)
	if err != nil {
		return nil, err
	}
	if cfg.PipelineProfile == "" && cfg.WatermarkPosition != "" {
		profile.Watermark.Position = cfg.WatermarkPosition
	}
	if profile.Watermark.Image == "" {
		profile.Watermark.Image = filepath.Join(cfg.AssetsDir, video.WatermarkFile)
	}
	if profile.TitleCard.Image == "" {
		profile.TitleCard.Image = filepath.Join(cfg.AssetsDir, video.TitleCardFile)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

// NewExecutor wires the ffmpeg toolkit into the step registry and returns
// an executor over port.
func NewExecutor(ctx context.Context, cfg *config.Config, port storage.Port) (*pipeline.Executor, *video.Toolkit, error) {
	profile, err := LoadProfile(cfg)
	if err != nil {
		return nil, nil, err
	}

	tk := video.NewToolkit(cfg.FFmpegPath, video.ExecRunner{}, profile)
	if err := tk.CheckFFmpeg(); err != nil {
		logger.FromContext(ctx).Warn("ffmpeg unavailable, every attempt will fail until it is installed", "error", err)
	}

	reg := processor.NewRegistry()
	video.RegisterSteps(reg, tk)

	exec, err := pipeline.NewExecutor(port, reg, pipeline.Config{
		WorkDir: cfg.WorkDir,
		Assets:  []string{profile.Watermark.Image, profile.TitleCard.Image},
	})
	if err != nil {
		return nil, nil, err
	}
	return exec, tk, nil
}
