package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/clipvote/internal/db"
	"github.com/abdul-hamid-achik/clipvote/internal/pipeline"
	"github.com/abdul-hamid-achik/clipvote/internal/queue"
	"github.com/abdul-hamid-achik/clipvote/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakePipeline stands in for the ffmpeg executor. It writes the processed
// file into the memory storage the way Executor.Run would.
type fakePipeline struct {
	files *storage.MemoryStorage
	runs  atomic.Int32

	// fail, when set, decides the error of the nth run (1-based).
	fail func(n int) error
	// block makes every run wait until ctx is done or release is closed.
	block   bool
	release chan struct{}
	started chan struct{}
	delay   time.Duration
}

func (p *fakePipeline) Run(ctx context.Context, videoID int64, claimToken, originalLocation string) (string, error) {
	n := int(p.runs.Add(1))
	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.block {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-p.release:
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.fail != nil {
		if err := p.fail(n); err != nil {
			return "", err
		}
	}
	loc := fmt.Sprintf("s3://%s/processed/%s", storage.MemoryBucket, pipeline.OutputName(videoID, claimToken))
	p.files.Seed(loc, []byte("processed"))
	return loc, nil
}

func (p *fakePipeline) Runs() int { return int(p.runs.Load()) }

type harness struct {
	clock      *fakeClock
	store      *db.MemoryStore
	files      *storage.MemoryStorage
	broker     *queue.MemoryBroker
	pipeline   *fakePipeline
	processor  *Processor
	supervisor *Supervisor
}

func testPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		MaxRequeues:   2,
		RetryBackoff:  60 * time.Second,
		SoftTimeLimit: 10 * time.Second,
		HardTimeLimit: 20 * time.Second,
	}
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()

	clock := newFakeClock()
	h := &harness{
		clock:  clock,
		store:  db.NewMemoryStore(),
		files:  storage.NewMemoryStorage(),
		broker: queue.NewMemoryBroker(queue.WithClock(clock.Now), queue.WithVisibilityTimeout(25*time.Minute)),
	}
	h.store.SetClock(clock.Now)
	h.pipeline = &fakePipeline{files: h.files}
	h.processor = NewProcessor(h.store, h.files, h.pipeline)
	h.supervisor = NewSupervisor(h.processor, h.store, h.broker, policy)
	return h
}

// seedUploaded creates an uploaded video with a stored original.
func (h *harness) seedUploaded(t *testing.T) db.Video {
	t.Helper()

	loc := fmt.Sprintf("s3://%s/uploads/%d_original.mp4", storage.MemoryBucket, time.Now().UnixNano())
	h.files.Seed(loc, make([]byte, 10*1024))
	v, err := h.store.CreateVideo(context.Background(), db.CreateVideoParams{
		VideoID:      fmt.Sprintf("vid-%d", time.Now().UnixNano()),
		Title:        "clip",
		OriginalPath: loc,
		UserID:       1,
	})
	require.NoError(t, err)
	return v
}

func firstDispatch(v db.Video) queue.Dispatch {
	return queue.Dispatch{VideoID: v.ID, OriginalLocation: v.OriginalPath, Attempt: 1, TaskToken: "task-1"}
}

// drain delivers queued dispatches to the supervisor, moving the clock past
// retry delays, until the queue is empty. It returns the number handled.
func (h *harness) drain(t *testing.T, ctx context.Context) int {
	t.Helper()

	handled := 0
	for i := 0; i < 50; i++ {
		del, err := h.broker.TryReceive()
		require.NoError(t, err)
		if del == nil {
			if h.broker.Len() == 0 {
				return handled
			}
			h.clock.Advance(time.Minute)
			continue
		}
		require.NoError(t, h.supervisor.Handle(ctx, del.Dispatch))
		require.NoError(t, h.broker.Ack(ctx, del))
		handled++
	}
	t.Fatal("queue did not drain")
	return handled
}

func (h *harness) video(t *testing.T, id int64) db.Video {
	t.Helper()
	v, err := h.store.GetVideo(context.Background(), id)
	require.NoError(t, err)
	return v
}
