package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/clipvote/internal/tracing"
)

var (
	ErrClosed          = errors.New("queue: broker closed")
	ErrInvalidDispatch = errors.New("queue: invalid dispatch")
)

// Dispatch is the message that asks a worker to process one video.
type Dispatch struct {
	VideoID          int64  `json:"video_id"`
	OriginalLocation string `json:"original_location"`
	// Attempt is 1 for the first delivery and grows with each retry.
	Attempt int `json:"attempt"`
	// ClaimToken is set on retries and names the claim lineage the retry
	// belongs to. Empty on first dispatch.
	ClaimToken string `json:"claim_token,omitempty"`
	TaskToken  string `json:"task_token,omitempty"`
	// Requeues counts redeliveries of this attempt that failed before the
	// claim was taken.
	Requeues int                  `json:"requeues,omitempty"`
	Trace    tracing.TraceCarrier `json:"trace"`
}

func (d Dispatch) Validate() error {
	if d.VideoID <= 0 {
		return fmt.Errorf("%w: video id %d", ErrInvalidDispatch, d.VideoID)
	}
	if d.OriginalLocation == "" {
		return fmt.Errorf("%w: empty original location", ErrInvalidDispatch)
	}
	if d.Requeues < 0 {
		return fmt.Errorf("%w: negative requeue count", ErrInvalidDispatch)
	}
	if d.Attempt > 1 && d.ClaimToken == "" {
		return fmt.Errorf("%w: retry without claim token", ErrInvalidDispatch)
	}
	return nil
}

func Encode(d Dispatch) ([]byte, error) {
	if d.Attempt < 1 {
		d.Attempt = 1
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(d)
}

func Decode(data []byte) (Dispatch, error) {
	var d Dispatch
	if err := json.Unmarshal(data, &d); err != nil {
		return Dispatch{}, fmt.Errorf("%w: %v", ErrInvalidDispatch, err)
	}
	if d.Attempt < 1 {
		d.Attempt = 1
	}
	if err := d.Validate(); err != nil {
		return Dispatch{}, err
	}
	return d, nil
}

// Delivery is a received message. It stays invisible to other consumers
// until acked or until the visibility timeout passes.
type Delivery struct {
	ID       string
	Dispatch Dispatch
	// Receipt identifies this particular receive of the message.
	Receipt string
	// Redelivered is true when the message was handed out before.
	Redelivered bool
}

// Broker is an at-least-once queue. Unacked deliveries are handed out again
// after the visibility timeout.
type Broker interface {
	// Enqueue publishes d, visible to consumers after delay. The returned id
	// identifies the published message.
	Enqueue(ctx context.Context, d Dispatch, delay time.Duration) (string, error)
	// Receive blocks until one message is available or ctx is done.
	Receive(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Close() error
}

type options struct {
	visibility time.Duration
	block      time.Duration
	consumer   string
	log        zerolog.Logger
	now        func() time.Time
}

type Option func(*options)

func WithVisibilityTimeout(d time.Duration) Option {
	return func(o *options) { o.visibility = d }
}

// WithBlock sets how long a single poll waits for new messages.
func WithBlock(d time.Duration) Option {
	return func(o *options) { o.block = d }
}

func WithConsumer(name string) Option {
	return func(o *options) { o.consumer = name }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithClock replaces time.Now, used by tests to move time forward.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func defaultOptions() options {
	return options{
		visibility: 25 * time.Minute,
		block:      5 * time.Second,
		consumer:   "worker",
		log:        zerolog.Nop(),
		now:        time.Now,
	}
}
