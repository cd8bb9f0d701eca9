package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
)

// MemoryBucket is the bucket name MemoryStorage puts into its locations.
const MemoryBucket = "memory"

// MemoryStorage is an in-memory Port for tests. Locations look like object
// store URIs so callers exercise the download path of Fetch.
type MemoryStorage struct {
	files map[string][]byte
	mu    sync.RWMutex

	// DeleteErr, when set, is returned by every Delete call.
	DeleteErr error
	// FetchErr, when set, is returned by every Fetch call.
	FetchErr error

	deletes []string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		files: make(map[string][]byte),
	}
}

var _ Port = (*MemoryStorage)(nil)

func (s *MemoryStorage) Save(ctx context.Context, r io.Reader, name string, maxSize int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateName(name); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := copyLimited(&buf, r, maxSize); err != nil {
		return "", err
	}

	loc := Location{Bucket: MemoryBucket, Key: "uploads/" + name}.String()
	s.mu.Lock()
	s.files[loc] = buf.Bytes()
	s.mu.Unlock()
	return loc, nil
}

func (s *MemoryStorage) Fetch(ctx context.Context, location, dstDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.FetchErr != nil {
		return "", s.FetchErr
	}
	loc, err := ParseLocation(location)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	data, ok := s.files[location]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, location)
	}

	base := loc.Path
	if loc.IsObject() {
		base = loc.Key
	}
	dest := filepath.Join(dstDir, path.Base(base))
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	return dest, nil
}

func (s *MemoryStorage) Put(ctx context.Context, localPath, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateName(name); err != nil {
		return "", err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", localPath, err)
	}

	loc := Location{Bucket: MemoryBucket, Key: "processed/" + name}.String()
	s.mu.Lock()
	s.files[loc] = data
	s.mu.Unlock()
	return loc, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deletes = append(s.deletes, location)
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.files, location)
	return nil
}

// Seed stores data directly at location (test helper).
func (s *MemoryStorage) Seed(location string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[location] = data
}

// GetData returns the raw data stored at location (test helper).
func (s *MemoryStorage) GetData(location string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[location]
	return data, ok
}

// Deletes returns every location Delete was called with (test helper).
func (s *MemoryStorage) Deletes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.deletes...)
}

// Count returns the number of stored files (test helper).
func (s *MemoryStorage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
