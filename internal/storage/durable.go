package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var _ Port = (*DurableStorage)(nil)

// DurableStorage wraps LocalStorage for network filesystems and flushes every
// written file and its directory entry before reporting success.
type DurableStorage struct {
	*LocalStorage
}

func NewDurableStorage(local *LocalStorage) *DurableStorage {
	return &DurableStorage{LocalStorage: local}
}

func (s *DurableStorage) Save(ctx context.Context, r io.Reader, name string, maxSize int64) (string, error) {
	loc, err := s.LocalStorage.Save(ctx, r, name, maxSize)
	if err != nil {
		return "", err
	}
	if err := syncFileAndDir(loc); err != nil {
		return "", err
	}
	return loc, nil
}

func (s *DurableStorage) Put(ctx context.Context, localPath, name string) (string, error) {
	loc, err := s.LocalStorage.Put(ctx, localPath, name)
	if err != nil {
		return "", err
	}
	if err := syncFileAndDir(loc); err != nil {
		return "", err
	}
	return loc, nil
}

func syncFileAndDir(p string) error {
	if err := syncPath(p); err != nil {
		return fmt.Errorf("flush %s: %w", p, err)
	}
	if err := syncPath(filepath.Dir(p)); err != nil {
		return fmt.Errorf("flush dir of %s: %w", p, err)
	}
	return nil
}

func syncPath(p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
