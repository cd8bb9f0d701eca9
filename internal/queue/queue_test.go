package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDispatchValidate(t *testing.T) {
	tests := []struct {
		name    string
		d       Dispatch
		wantErr bool
	}{
		{"first dispatch", Dispatch{VideoID: 1, OriginalLocation: "/u/a.mp4", Attempt: 1}, false},
		{"retry with token", Dispatch{VideoID: 1, OriginalLocation: "/u/a.mp4", Attempt: 2, ClaimToken: "tok"}, false},
		{"retry without token", Dispatch{VideoID: 1, OriginalLocation: "/u/a.mp4", Attempt: 2}, true},
		{"zero id", Dispatch{OriginalLocation: "/u/a.mp4", Attempt: 1}, true},
		{"empty location", Dispatch{VideoID: 1, Attempt: 1}, true},
		{"requeued", Dispatch{VideoID: 1, OriginalLocation: "/u/a.mp4", Attempt: 1, Requeues: 3}, false},
		{"negative requeues", Dispatch{VideoID: 1, OriginalLocation: "/u/a.mp4", Attempt: 1, Requeues: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDispatch) {
				t.Errorf("Validate() error = %v, want ErrInvalidDispatch", err)
			}
		})
	}
}

func TestDecode_DefaultsAttempt(t *testing.T) {
	d, err := Decode([]byte(`{"video_id":42,"original_location":"s3://videos/uploads/a.mp4"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if d.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", d.Attempt)
	}

	if _, err := Decode([]byte(`not json`)); !errors.Is(err, ErrInvalidDispatch) {
		t.Errorf("Decode(garbage) error = %v, want ErrInvalidDispatch", err)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func newTestBroker() (*MemoryBroker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewMemoryBroker(WithClock(clock.Now), WithVisibilityTimeout(25*time.Minute)), clock
}

func TestMemoryBroker_VisibilityTimeout(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBroker()

	if _, err := b.Enqueue(ctx, Dispatch{VideoID: 7, OriginalLocation: "/u/7.mp4"}, 0); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	first, err := b.TryReceive()
	if err != nil || first == nil {
		t.Fatalf("TryReceive() = %v, %v", first, err)
	}
	if first.Redelivered {
		t.Error("first receive should not be marked redelivered")
	}

	if again, _ := b.TryReceive(); again != nil {
		t.Fatal("in-flight message must stay invisible")
	}

	clock.Advance(25*time.Minute + time.Second)
	second, _ := b.TryReceive()
	if second == nil || !second.Redelivered {
		t.Fatalf("message should be redelivered after the visibility timeout, got %+v", second)
	}

	if err := b.Ack(ctx, first); err != nil {
		t.Fatalf("Ack(stale) error = %v", err)
	}
	if b.Len() != 1 {
		t.Fatal("ack with a stale receipt must not remove the message")
	}
	if err := b.Ack(ctx, second); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d after ack, want 0", b.Len())
	}
}

func TestMemoryBroker_Delay(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBroker()

	d := Dispatch{VideoID: 9, OriginalLocation: "/u/9.mp4", Attempt: 2, ClaimToken: "tok"}
	if _, err := b.Enqueue(ctx, d, time.Minute); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if got, _ := b.TryReceive(); got != nil {
		t.Fatal("delayed message delivered early")
	}
	clock.Advance(time.Minute)
	got, _ := b.TryReceive()
	if got == nil {
		t.Fatal("delayed message not delivered when due")
	}
	if got.Dispatch.Attempt != 2 || got.Dispatch.ClaimToken != "tok" {
		t.Errorf("Dispatch = %+v", got.Dispatch)
	}
}

func TestMemoryBroker_ReceiveBlocksUntilContextDone(t *testing.T) {
	b, _ := newTestBroker()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := b.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Receive() error = %v, want DeadlineExceeded", err)
	}
}

func TestMemoryBroker_Closed(t *testing.T) {
	b, _ := newTestBroker()
	_ = b.Close()

	if _, err := b.Enqueue(context.Background(), Dispatch{VideoID: 1, OriginalLocation: "x"}, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue() after Close error = %v, want ErrClosed", err)
	}
}
