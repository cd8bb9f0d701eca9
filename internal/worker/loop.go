package worker

import (
	"context"
	"errors"
	"time"

	"github.com/abdul-hamid-achik/clipvote/internal/logger"
	"github.com/abdul-hamid-achik/clipvote/internal/queue"
)

// Loop pulls one delivery at a time and hands it to the supervisor. It
// never holds more than one unacked message.
type Loop struct {
	broker     queue.Broker
	supervisor *Supervisor
	errBackoff time.Duration
}

func NewLoop(broker queue.Broker, supervisor *Supervisor) *Loop {
	return &Loop{
		broker:     broker,
		supervisor: supervisor,
		errBackoff: time.Second,
	}
}

// Run consumes until ctx is cancelled or the broker is closed. An attempt
// in progress when ctx is cancelled is cut short and settled like any
// other failed attempt.
func (l *Loop) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	log.Info("worker loop started")

	for {
		del, err := l.broker.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				log.Info("worker loop stopped")
				return nil
			}
			log.Error("failed to receive dispatch", "error", err)
			select {
			case <-ctx.Done():
				log.Info("worker loop stopped")
				return nil
			case <-time.After(l.errBackoff):
			}
			continue
		}

		l.handle(ctx, del)
	}
}

func (l *Loop) handle(ctx context.Context, del *queue.Delivery) {
	log := logger.FromContext(ctx).With(
		"job_id", del.Dispatch.VideoID,
		"message_id", del.ID,
		"redelivered", del.Redelivered,
	)

	if err := l.supervisor.Handle(ctx, del.Dispatch); err != nil {
		// Left unacked; the broker hands it out again after the
		// visibility timeout.
		log.Error("dispatch not settled", "error", err)
		return
	}

	if err := l.broker.Ack(context.WithoutCancel(ctx), del); err != nil {
		log.Error("failed to ack dispatch", "error", err)
	}
}
