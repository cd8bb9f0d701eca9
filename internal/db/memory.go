package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// MemoryStore is an in-memory Store for tests. Every statement runs under
// one lock, so the conditional updates are atomic the same way the
// Postgres statements are.
type MemoryStore struct {
	mu     sync.Mutex
	videos map[int64]Video
	seq    int64
	now    func() time.Time

	// Injected failures, returned by the matching method when set.
	GetErr        error
	ClaimErr      error
	MarkDoneErr   error
	MarkFailedErr error

	writes map[int64]int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		videos: make(map[int64]Video),
		writes: make(map[int64]int),
		now:    time.Now,
	}
}

// SetClock replaces time.Now for updated_at stamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Put stores v as is, replacing any row with the same id.
func (m *MemoryStore) Put(v Video) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos[v.ID] = v
	if v.ID > m.seq {
		m.seq = v.ID
	}
}

// Writes reports how many statements changed the row with id.
func (m *MemoryStore) Writes(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[id]
}

func (m *MemoryStore) stamp() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: m.now(), Valid: true}
}

func (m *MemoryStore) update(id int64, match func(Video) bool, apply func(*Video)) int64 {
	v, ok := m.videos[id]
	if !ok || !match(v) {
		return 0
	}
	apply(&v)
	v.UpdatedAt = m.stamp()
	m.videos[id] = v
	m.writes[id]++
	return 1
}

// ExecTx restores every row to its state before fn when fn fails. It does
// not isolate fn from concurrent callers.
func (m *MemoryStore) ExecTx(ctx context.Context, fn func(Querier) error) error {
	m.mu.Lock()
	snapshot := make(map[int64]Video, len(m.videos))
	for id, v := range m.videos {
		snapshot[id] = v
	}
	seq := m.seq
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.videos = snapshot
		m.seq = seq
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MemoryStore) CreateVideo(ctx context.Context, arg CreateVideoParams) (Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range m.videos {
		if v.VideoID == arg.VideoID {
			return Video{}, fmt.Errorf("duplicate video_id %s", arg.VideoID)
		}
	}
	m.seq++
	v := Video{
		ID:           m.seq,
		VideoID:      arg.VideoID,
		Title:        arg.Title,
		Status:       VideoStatusUploaded,
		OriginalPath: arg.OriginalPath,
		UserID:       arg.UserID,
		UploadedAt:   m.stamp(),
		UpdatedAt:    m.stamp(),
	}
	m.videos[v.ID] = v
	return v, nil
}

func (m *MemoryStore) GetVideo(ctx context.Context, id int64) (Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetErr != nil {
		return Video{}, m.GetErr
	}
	v, ok := m.videos[id]
	if !ok {
		return Video{}, ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) GetVideoByVideoID(ctx context.Context, videoID string) (Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetErr != nil {
		return Video{}, m.GetErr
	}
	for _, v := range m.videos {
		if v.VideoID == videoID {
			return v, nil
		}
	}
	return Video{}, ErrNotFound
}

func (m *MemoryStore) ClaimVideo(ctx context.Context, arg ClaimVideoParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ClaimErr != nil {
		return 0, m.ClaimErr
	}
	return m.update(arg.ID,
		func(v Video) bool { return v.Status == VideoStatusUploaded },
		func(v *Video) {
			v.Status = VideoStatusProcessing
			v.ClaimToken = arg.ClaimToken
			v.Attempts = 1
		},
	), nil
}

func (m *MemoryStore) ResumeClaim(ctx context.Context, arg ResumeClaimParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.update(arg.ID,
		func(v Video) bool {
			return v.Status == VideoStatusProcessing &&
				sameToken(v.ClaimToken, arg.ClaimToken) &&
				v.Attempts == arg.Attempts-1
		},
		func(v *Video) { v.Attempts = arg.Attempts },
	), nil
}

func (m *MemoryStore) RecordAttemptFailure(ctx context.Context, arg RecordAttemptFailureParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.update(arg.ID,
		func(v Video) bool {
			return v.Status == VideoStatusProcessing && sameToken(v.ClaimToken, arg.ClaimToken)
		},
		func(v *Video) { v.LastError = arg.LastError },
	), nil
}

func (m *MemoryStore) MarkVideoDone(ctx context.Context, arg MarkVideoDoneParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.MarkDoneErr != nil {
		return 0, m.MarkDoneErr
	}
	if arg.ProcessedPath == nil {
		return 0, fmt.Errorf("videos_processed_iff_done: processed_path is null")
	}
	return m.update(arg.ID,
		func(v Video) bool {
			return v.Status == VideoStatusProcessing && sameToken(v.ClaimToken, arg.ClaimToken)
		},
		func(v *Video) {
			v.Status = VideoStatusDone
			v.ProcessedPath = arg.ProcessedPath
			v.LastError = nil
		},
	), nil
}

func (m *MemoryStore) MarkVideoFailed(ctx context.Context, arg MarkVideoFailedParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.MarkFailedErr != nil {
		return 0, m.MarkFailedErr
	}
	return m.update(arg.ID,
		func(v Video) bool {
			return v.Status == VideoStatusUploaded || v.Status == VideoStatusProcessing
		},
		func(v *Video) {
			v.Status = VideoStatusFailed
			v.LastError = arg.LastError
		},
	), nil
}

func (m *MemoryStore) SetTaskID(ctx context.Context, arg SetTaskIDParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.videos[arg.ID]; ok {
		v.TaskID = arg.TaskID
		m.videos[arg.ID] = v
	}
	return nil
}

func (m *MemoryStore) DeleteVideo(ctx context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.videos[id]
	if !ok || v.IsPublic || v.Status == VideoStatusProcessing {
		return 0, nil
	}
	delete(m.videos, id)
	return 1, nil
}

func (m *MemoryStore) ListStaleProcessing(ctx context.Context, arg ListStaleProcessingParams) ([]Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Video
	for _, v := range m.videos {
		if v.Status == VideoStatusProcessing && v.UpdatedAt.Time.Before(arg.UpdatedAt.Time) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Time.Before(out[j].UpdatedAt.Time) })
	if int32(len(out)) > arg.Limit {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ListVideosByStatus(ctx context.Context, arg ListVideosByStatusParams) ([]Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Video
	for _, v := range m.videos {
		if v.Status == arg.Status {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if int32(len(out)) > arg.Limit {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ReapStaleVideo(ctx context.Context, arg ReapStaleVideoParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.MarkFailedErr != nil {
		return 0, m.MarkFailedErr
	}
	return m.update(arg.ID,
		func(v Video) bool {
			return v.Status == VideoStatusProcessing && v.UpdatedAt.Time.Before(arg.UpdatedAt.Time)
		},
		func(v *Video) {
			v.Status = VideoStatusFailed
			v.LastError = arg.LastError
		},
	), nil
}

func (m *MemoryStore) ResetFailedVideo(ctx context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.update(id,
		func(v Video) bool { return v.Status == VideoStatusFailed },
		func(v *Video) {
			v.Status = VideoStatusUploaded
			v.ClaimToken = nil
			v.Attempts = 0
			v.LastError = nil
		},
	), nil
}

func sameToken(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
