package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/abdul-hamid-achik/clipvote/internal/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	_ Port          = (*ObjectStorage)(nil)
	_ HealthChecker = (*ObjectStorage)(nil)
)

// ObjectStorage keeps videos in an S3 compatible bucket. Uploads are staged
// to a local temp file first so the size limit is enforced before anything
// becomes visible in the bucket.
type ObjectStorage struct {
	client          *minio.Client
	bucket          string
	uploadPrefix    string
	processedPrefix string
	tempDir         string
	config          *Config
}

func NewObjectStorage(cfg *Config) (*ObjectStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &ObjectStorage{
		client:          client,
		bucket:          cfg.Bucket,
		uploadPrefix:    cfg.UploadPrefix,
		processedPrefix: cfg.ProcessedPrefix,
		tempDir:         cfg.TempDir,
		config:          cfg,
	}, nil
}

func (s *ObjectStorage) EnsureBucket(ctx context.Context) error {
	log := logger.FromContext(ctx)

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		log.Info("creating bucket", "bucket", s.bucket, "region", s.config.Region)
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{
			Region: s.config.Region,
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info("bucket created", "bucket", s.bucket)
	}

	return nil
}

func (s *ObjectStorage) Save(ctx context.Context, r io.Reader, name string, maxSize int64) (string, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	if err := validateName(name); err != nil {
		return "", err
	}
	key := s.uploadPrefix + name

	staged, err := os.CreateTemp(s.tempDir, "upload-*"+path.Ext(name))
	if err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	defer func() {
		staged.Close()
		if err := os.Remove(staged.Name()); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove staged upload", "path", staged.Name(), "error", err)
		}
	}()

	n, err := copyLimited(staged, r, maxSize)
	if err != nil {
		if errors.Is(err, ErrSizeExceeded) {
			log.Warn("upload rejected", "storage_key", key, "max_size", maxSize)
			return "", err
		}
		return "", fmt.Errorf("stage upload: %w", err)
	}
	if err := staged.Close(); err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}

	_, err = s.client.FPutObject(ctx, s.bucket, key, staged.Name(), minio.PutObjectOptions{
		ContentType: contentTypeFor(name),
	})
	if err != nil {
		log.Error("storage upload failed", "storage_key", key, "size", n, "error", err)
		return "", fmt.Errorf("upload to %s: %w", key, err)
	}

	loc := Location{Bucket: s.bucket, Key: key}.String()
	log.Debug("storage upload completed", "location", loc, "size", n, "duration_ms", time.Since(start).Milliseconds())
	return loc, nil
}

func (s *ObjectStorage) Fetch(ctx context.Context, location, dstDir string) (string, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	loc, err := ParseLocation(location)
	if err != nil {
		return "", err
	}
	if !loc.IsObject() {
		if _, err := os.Stat(loc.Path); err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("%w: %s", ErrNotFound, loc.Path)
			}
			return "", fmt.Errorf("stat %s: %w", loc.Path, err)
		}
		return loc.Path, nil
	}

	dest := filepath.Join(dstDir, path.Base(loc.Key))
	if err := s.client.FGetObject(ctx, loc.Bucket, loc.Key, dest, minio.GetObjectOptions{}); err != nil {
		if isNotFoundError(err) {
			log.Warn("storage object not found", "location", location)
			return "", fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		log.Error("storage download failed", "location", location, "error", err)
		return "", fmt.Errorf("download %s: %w", location, err)
	}

	log.Debug("storage download completed", "location", location, "path", dest, "duration_ms", time.Since(start).Milliseconds())
	return dest, nil
}

func (s *ObjectStorage) Put(ctx context.Context, localPath, name string) (string, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	if err := validateName(name); err != nil {
		return "", err
	}
	key := s.processedPrefix + name

	info, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentTypeFor(name),
	})
	if err != nil {
		log.Error("storage upload failed", "storage_key", key, "error", err)
		return "", fmt.Errorf("upload to %s: %w", key, err)
	}
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove staged output", "path", localPath, "error", err)
	}

	loc := Location{Bucket: s.bucket, Key: key}.String()
	log.Debug("storage put completed", "location", loc, "size", info.Size, "duration_ms", time.Since(start).Milliseconds())
	return loc, nil
}

func (s *ObjectStorage) Delete(ctx context.Context, location string) error {
	log := logger.FromContext(ctx)

	loc, err := ParseLocation(location)
	if err != nil {
		return err
	}
	if !loc.IsObject() {
		if err := os.Remove(loc.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", loc.Path, err)
		}
		return nil
	}

	if err := s.client.RemoveObject(ctx, loc.Bucket, loc.Key, minio.RemoveObjectOptions{}); err != nil {
		log.Error("storage delete failed", "location", location, "error", err)
		return fmt.Errorf("delete %s: %w", location, err)
	}

	log.Debug("storage object deleted", "location", location)
	return nil
}

func (s *ObjectStorage) HealthCheck(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket check: %w", err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errResp := minio.ToErrorResponse(err)
	return errResp.Code == "NoSuchKey"
}
