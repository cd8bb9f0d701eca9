package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/abdul-hamid-achik/clipvote/internal/logger"
)

var _ Port = (*LocalStorage)(nil)

// LocalStorage keeps uploads and processed output on a mounted filesystem.
type LocalStorage struct {
	uploadDir    string
	processedDir string
}

func NewLocalStorage(uploadDir, processedDir string) (*LocalStorage, error) {
	if uploadDir == "" || processedDir == "" {
		return nil, fmt.Errorf("local storage requires upload and processed directories")
	}
	for _, dir := range []string{uploadDir, processedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &LocalStorage{uploadDir: uploadDir, processedDir: processedDir}, nil
}

func (s *LocalStorage) Save(ctx context.Context, r io.Reader, name string, maxSize int64) (string, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	if err := validateName(name); err != nil {
		return "", err
	}
	dest := filepath.Join(s.uploadDir, name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create parent dir: %w", err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	n, err := copyLimited(f, r, maxSize)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn("failed to remove partial upload", "location", dest, "error", rmErr)
		}
		if errors.Is(err, ErrSizeExceeded) {
			log.Warn("upload rejected", "location", dest, "max_size", maxSize)
			return "", err
		}
		return "", fmt.Errorf("write %s: %w", dest, err)
	}

	log.Debug("storage save completed", "location", dest, "size", n, "duration_ms", time.Since(start).Milliseconds())
	return dest, nil
}

func (s *LocalStorage) Fetch(ctx context.Context, location, dstDir string) (string, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return "", err
	}
	if loc.IsObject() {
		return "", fmt.Errorf("%w: local storage cannot fetch %s", ErrInvalidLocation, location)
	}
	if _, err := os.Stat(loc.Path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, loc.Path)
		}
		return "", fmt.Errorf("stat %s: %w", loc.Path, err)
	}
	return loc.Path, nil
}

func (s *LocalStorage) Put(ctx context.Context, localPath, name string) (string, error) {
	log := logger.FromContext(ctx)

	if err := validateName(name); err != nil {
		return "", err
	}
	dest := filepath.Join(s.processedDir, name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create parent dir: %w", err)
	}

	if err := os.Rename(localPath, dest); err != nil {
		// Cross-device moves fail with EXDEV; fall back to a copy.
		if err := copyFile(localPath, dest); err != nil {
			return "", fmt.Errorf("place %s: %w", dest, err)
		}
		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove staged output", "path", localPath, "error", err)
		}
	}

	log.Debug("storage put completed", "location", dest)
	return dest, nil
}

func (s *LocalStorage) Delete(ctx context.Context, location string) error {
	loc, err := ParseLocation(location)
	if err != nil {
		return err
	}
	if loc.IsObject() {
		return fmt.Errorf("%w: local storage cannot delete %s", ErrInvalidLocation, location)
	}
	if err := os.Remove(loc.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", loc.Path, err)
	}
	logger.FromContext(ctx).Debug("storage file deleted", "location", loc.Path)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
