package metrics

import (
	"context"
	"io"
	"time"

	"github.com/abdul-hamid-achik/clipvote/internal/storage"
)

// InstrumentedStorage records a counter and a latency sample for every call
// made through the wrapped Port.
type InstrumentedStorage struct {
	storage.Port
}

var _ storage.Port = (*InstrumentedStorage)(nil)

func NewInstrumentedStorage(s storage.Port) *InstrumentedStorage {
	return &InstrumentedStorage{Port: s}
}

func (s *InstrumentedStorage) Save(ctx context.Context, r io.Reader, name string, maxSize int64) (string, error) {
	start := time.Now()
	loc, err := s.Port.Save(ctx, r, name, maxSize)
	observeStorage("save", start, err)
	return loc, err
}

func (s *InstrumentedStorage) Fetch(ctx context.Context, location, dstDir string) (string, error) {
	start := time.Now()
	p, err := s.Port.Fetch(ctx, location, dstDir)
	observeStorage("fetch", start, err)
	return p, err
}

func (s *InstrumentedStorage) Put(ctx context.Context, localPath, name string) (string, error) {
	start := time.Now()
	loc, err := s.Port.Put(ctx, localPath, name)
	observeStorage("put", start, err)
	return loc, err
}

func (s *InstrumentedStorage) Delete(ctx context.Context, location string) error {
	start := time.Now()
	err := s.Port.Delete(ctx, location)
	observeStorage("delete", start, err)
	return err
}

// HealthCheck forwards to the wrapped backend when it supports one.
func (s *InstrumentedStorage) HealthCheck(ctx context.Context) error {
	if hc, ok := s.Port.(storage.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func observeStorage(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StorageOperationsTotal.WithLabelValues(op, status).Inc()
	StorageOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
