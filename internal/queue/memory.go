package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/clipvote/internal/metrics"
)

var _ Broker = (*MemoryBroker)(nil)

// MemoryBroker is an in-process Broker with the same visibility and delay
// semantics as the networked ones. Time comes from the configured clock so
// tests can step over backoffs without sleeping.
type MemoryBroker struct {
	mu     sync.Mutex
	opts   options
	seq    int
	msgs   []*memoryMessage
	closed bool
	notify chan struct{}
}

type memoryMessage struct {
	id        string
	body      []byte
	visibleAt time.Time
	receipt   string
	receives  int
}

func NewMemoryBroker(opts ...Option) *MemoryBroker {
	o := defaultOptions()
	o.block = 10 * time.Millisecond
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryBroker{opts: o, notify: make(chan struct{}, 1)}
}

func (b *MemoryBroker) Enqueue(ctx context.Context, d Dispatch, delay time.Duration) (string, error) {
	body, err := Encode(d)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", ErrClosed
	}

	b.seq++
	id := fmt.Sprintf("mem-%d", b.seq)
	b.msgs = append(b.msgs, &memoryMessage{
		id:        id,
		body:      body,
		visibleAt: b.opts.now().Add(delay),
	})
	if delay > 0 {
		metrics.RecordQueueMessage("delay")
	} else {
		metrics.RecordQueueMessage("enqueue")
	}

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return id, nil
}

func (b *MemoryBroker) Receive(ctx context.Context) (*Delivery, error) {
	for {
		if del, err := b.TryReceive(); del != nil || err != nil {
			return del, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.notify:
		case <-time.After(b.opts.block):
		}
	}
}

// TryReceive returns the first visible message, or nil when none is.
func (b *MemoryBroker) TryReceive() (*Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	now := b.opts.now()
	for _, m := range b.msgs {
		if m.visibleAt.After(now) {
			continue
		}
		d, err := Decode(m.body)
		if err != nil {
			return nil, err
		}
		m.receives++
		m.visibleAt = now.Add(b.opts.visibility)
		m.receipt = fmt.Sprintf("%s#%d", m.id, m.receives)
		if m.receives > 1 {
			metrics.RecordQueueMessage("redeliver")
		} else {
			metrics.RecordQueueMessage("receive")
		}
		return &Delivery{ID: m.id, Dispatch: d, Receipt: m.receipt, Redelivered: m.receives > 1}, nil
	}
	return nil, nil
}

// Ack removes the message if del is its latest receive. A stale receipt is
// ignored, matching SQS where a newer receive invalidates older handles.
func (b *MemoryBroker) Ack(ctx context.Context, del *Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, m := range b.msgs {
		if m.id == del.ID && m.receipt == del.Receipt {
			b.msgs = append(b.msgs[:i], b.msgs[i+1:]...)
			metrics.RecordQueueMessage("ack")
			return nil
		}
	}
	return nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Pending returns every unacked dispatch with the time it becomes visible.
func (b *MemoryBroker) Pending() []PendingDispatch {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]PendingDispatch, 0, len(b.msgs))
	for _, m := range b.msgs {
		d, err := Decode(m.body)
		if err != nil {
			continue
		}
		out = append(out, PendingDispatch{Dispatch: d, VisibleAt: m.visibleAt})
	}
	return out
}

func (b *MemoryBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

type PendingDispatch struct {
	Dispatch  Dispatch
	VisibleAt time.Time
}
