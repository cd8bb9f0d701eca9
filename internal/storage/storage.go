package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound        = errors.New("storage: file not found")
	ErrInvalidKey      = errors.New("storage: invalid key")
	ErrInvalidLocation = errors.New("storage: invalid location")
	ErrSizeExceeded    = errors.New("storage: size limit exceeded")
)

// ObjectScheme prefixes every object store location.
const ObjectScheme = "s3://"

// Port is the storage contract shared by ingestion and the pipeline. A
// location is either a local filesystem path or an s3://bucket/key URI.
type Port interface {
	// Save streams r under name in the upload area. maxSize <= 0 disables
	// the limit; exceeding it returns ErrSizeExceeded and leaves nothing behind.
	Save(ctx context.Context, r io.Reader, name string, maxSize int64) (string, error)
	// Fetch returns a local path holding the content of location, downloading
	// into dstDir when the location is remote.
	Fetch(ctx context.Context, location, dstDir string) (string, error)
	// Put moves an already local file into the processed area under name.
	Put(ctx context.Context, localPath, name string) (string, error)
	Delete(ctx context.Context, location string) error
}

// HealthChecker is implemented by backends that depend on a remote service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Config struct {
	Backend string

	UploadDir    string
	ProcessedDir string

	Endpoint        string
	AccessKey       string
	SecretKey       string
	Bucket          string
	UseSSL          bool
	Region          string
	UploadPrefix    string
	ProcessedPrefix string
	TempDir         string
}

// New builds the backend named by cfg.Backend: local, nfs or s3.
func New(cfg *Config) (Port, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStorage(cfg.UploadDir, cfg.ProcessedDir)
	case "nfs":
		local, err := NewLocalStorage(cfg.UploadDir, cfg.ProcessedDir)
		if err != nil {
			return nil, err
		}
		return NewDurableStorage(local), nil
	case "s3":
		return NewObjectStorage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

type Location struct {
	Bucket string
	Key    string
	Path   string
}

func (l Location) IsObject() bool {
	return l.Bucket != ""
}

func (l Location) String() string {
	if l.IsObject() {
		return ObjectScheme + l.Bucket + "/" + l.Key
	}
	return l.Path
}

func ParseLocation(loc string) (Location, error) {
	if loc == "" {
		return Location{}, ErrInvalidLocation
	}
	if !strings.HasPrefix(loc, ObjectScheme) {
		return Location{Path: loc}, nil
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(loc, ObjectScheme), "/")
	if !ok || bucket == "" || key == "" {
		return Location{}, fmt.Errorf("%w: %s", ErrInvalidLocation, loc)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

func IsObject(loc string) bool {
	return strings.HasPrefix(loc, ObjectScheme)
}

func validateName(name string) error {
	if name == "" || !filepath.IsLocal(name) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, name)
	}
	return nil
}

// copyLimited copies at most maxSize bytes and reports ErrSizeExceeded when
// r holds more.
func copyLimited(dst io.Writer, r io.Reader, maxSize int64) (int64, error) {
	if maxSize <= 0 {
		return io.Copy(dst, r)
	}
	n, err := io.Copy(dst, io.LimitReader(r, maxSize+1))
	if err != nil {
		return n, err
	}
	if n > maxSize {
		return n, ErrSizeExceeded
	}
	return n, nil
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
