package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	StorageLocal = "local"
	StorageNFS   = "nfs"
	StorageS3    = "s3"

	QueueRedis = "redis"
	QueueSQS   = "sqs"
)

type Config struct {
	Environment string
	LogLevel    string

	DatabaseURL string
	RedisURL    string

	StorageBackend string
	UploadPath     string
	ProcessedPath  string
	MaxUploadSize  int64

	MinIOEndpoint     string
	MinIOAccessKey    string
	MinIOSecretKey    string
	MinIOBucket       string
	MinIOUseSSL       bool
	MinIORegion       string
	S3UploadPrefix    string
	S3ProcessedPrefix string

	QueueBackend string
	QueueName    string
	SQSQueueURL  string
	AWSRegion    string

	MaxAttempts       int
	MaxRequeues       int
	RetryBackoff      time.Duration
	SoftTimeLimit     time.Duration
	HardTimeLimit     time.Duration
	VisibilityTimeout time.Duration
	StaleClaimAfter   time.Duration

	AssetsDir         string
	WatermarkPosition string
	PipelineProfile   string
	FFmpegPath        string
	WorkDir           string

	MetricsPort     int
	TracingEnabled  bool
	OTLPEndpoint    string
	TraceSampleRate float64
}

func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	cfg.RedisURL = getEnvString("REDIS_URL", "redis://localhost:6379/0")

	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	cfg.StorageBackend = getEnvString("STORAGE_BACKEND", StorageLocal)
	cfg.UploadPath = getEnvString("UPLOAD_PATH", "media/uploads")
	cfg.ProcessedPath = getEnvString("PROCESSED_PATH", "media/processed")
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 100*1024*1024)

	cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
	cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	cfg.MinIOBucket = getEnvString("MINIO_BUCKET", "videos")
	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinIORegion = getEnvString("MINIO_REGION", "us-east-1")
	cfg.S3UploadPrefix = getEnvString("S3_UPLOAD_PREFIX", "uploads/")
	cfg.S3ProcessedPrefix = getEnvString("S3_PROCESSED_PREFIX", "processed/")

	cfg.QueueBackend = getEnvString("QUEUE_BACKEND", QueueRedis)
	cfg.QueueName = getEnvString("QUEUE_NAME", "video_processing")
	cfg.SQSQueueURL = os.Getenv("SQS_QUEUE_URL")
	cfg.AWSRegion = getEnvString("AWS_REGION", "us-east-1")

	cfg.MaxAttempts = getEnvInt("MAX_ATTEMPTS", 3)
	cfg.MaxRequeues = getEnvInt("MAX_REQUEUES", 10)
	if cfg.RetryBackoff, err = getEnvDuration("RETRY_BACKOFF", "60s"); err != nil {
		return nil, fmt.Errorf("invalid RETRY_BACKOFF: %w", err)
	}
	if cfg.SoftTimeLimit, err = getEnvDuration("SOFT_TIME_LIMIT", "600s"); err != nil {
		return nil, fmt.Errorf("invalid SOFT_TIME_LIMIT: %w", err)
	}
	if cfg.HardTimeLimit, err = getEnvDuration("HARD_TIME_LIMIT", "1200s"); err != nil {
		return nil, fmt.Errorf("invalid HARD_TIME_LIMIT: %w", err)
	}
	if cfg.VisibilityTimeout, err = getEnvDuration("VISIBILITY_TIMEOUT", "1500s"); err != nil {
		return nil, fmt.Errorf("invalid VISIBILITY_TIMEOUT: %w", err)
	}

	cfg.StaleClaimAfter = cfg.defaultStaleClaimAfter()
	if v := os.Getenv("STALE_CLAIM_AFTER"); v != "" {
		if cfg.StaleClaimAfter, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid STALE_CLAIM_AFTER: %w", err)
		}
	}

	cfg.AssetsDir = getEnvString("ASSETS_DIR", "assets")
	cfg.WatermarkPosition = getEnvString("WATERMARK_POSITION", "top-right")
	cfg.PipelineProfile = os.Getenv("PIPELINE_PROFILE")
	cfg.FFmpegPath = getEnvString("FFMPEG_PATH", "ffmpeg")
	cfg.WorkDir = os.Getenv("WORK_DIR")

	cfg.MetricsPort = getEnvInt("METRICS_PORT", 9090)
	cfg.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.OTLPEndpoint = getEnvString("OTLP_ENDPOINT", "localhost:4317")
	cfg.TraceSampleRate = getEnvFloat("TRACE_SAMPLE_RATE", 1.0)

	return cfg, nil
}

// defaultStaleClaimAfter is the longest a healthy retry lineage can keep a
// row in processing: one visibility window plus every attempt running to the
// hard ceiling followed by its backoff.
func (c *Config) defaultStaleClaimAfter() time.Duration {
	return c.VisibilityTimeout + time.Duration(c.MaxAttempts)*(c.HardTimeLimit+c.RetryBackoff)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return time.ParseDuration(value)
}

func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageLocal, StorageNFS:
		if c.UploadPath == "" || c.ProcessedPath == "" {
			return fmt.Errorf("UPLOAD_PATH and PROCESSED_PATH are required for %s storage", c.StorageBackend)
		}
	case StorageS3:
		if c.MinIOEndpoint == "" || c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
			return fmt.Errorf("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid storage backend: %q", c.StorageBackend)
	}

	switch c.QueueBackend {
	case QueueRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis queue")
		}
	case QueueSQS:
		if c.SQSQueueURL == "" {
			return fmt.Errorf("SQS_QUEUE_URL is required for the sqs queue")
		}
	default:
		return fmt.Errorf("invalid queue backend: %q", c.QueueBackend)
	}

	if c.MaxUploadSize < 1 {
		return fmt.Errorf("invalid max upload size: %d", c.MaxUploadSize)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("invalid max attempts: %d", c.MaxAttempts)
	}
	if c.MaxRequeues < 0 {
		return fmt.Errorf("invalid max requeues: %d", c.MaxRequeues)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("invalid retry backoff: %s", c.RetryBackoff)
	}
	if c.HardTimeLimit <= 0 {
		return fmt.Errorf("invalid hard time limit: %s", c.HardTimeLimit)
	}
	if c.SoftTimeLimit <= 0 || c.SoftTimeLimit > c.HardTimeLimit {
		return fmt.Errorf("soft time limit %s must be positive and not exceed hard time limit %s", c.SoftTimeLimit, c.HardTimeLimit)
	}
	if c.VisibilityTimeout <= c.HardTimeLimit {
		return fmt.Errorf("visibility timeout %s must exceed hard time limit %s", c.VisibilityTimeout, c.HardTimeLimit)
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("invalid trace sample rate: %v", c.TraceSampleRate)
	}

	return nil
}
