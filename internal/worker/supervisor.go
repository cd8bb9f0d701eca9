package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/clipvote/internal/config"
	"github.com/abdul-hamid-achik/clipvote/internal/db"
	"github.com/abdul-hamid-achik/clipvote/internal/logger"
	"github.com/abdul-hamid-achik/clipvote/internal/metrics"
	"github.com/abdul-hamid-achik/clipvote/internal/queue"
	"github.com/abdul-hamid-achik/clipvote/internal/tracing"
)

// Attempt outcomes, also used as metric labels.
const (
	AttemptSucceeded = "succeeded"
	AttemptSkipped   = "skipped"
	AttemptRetried   = "retried"
	AttemptFailed    = "failed"
	AttemptRequeued  = "requeued"
	AttemptRejected  = "rejected"
	AttemptAbandoned = "abandoned"
)

// Policy bounds each attempt and the number of attempts per video.
type Policy struct {
	MaxAttempts int
	// MaxRequeues bounds redeliveries of a dispatch that fails before its
	// claim is taken. Zero drops the dispatch on the first such failure.
	MaxRequeues   int
	RetryBackoff  time.Duration
	SoftTimeLimit time.Duration
	HardTimeLimit time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		MaxRequeues:   10,
		RetryBackoff:  60 * time.Second,
		SoftTimeLimit: 600 * time.Second,
		HardTimeLimit: 1200 * time.Second,
	}
}

// PolicyFromConfig takes the limits from cfg, keeping the default for any
// limit cfg leaves unset.
func PolicyFromConfig(cfg *config.Config) Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.MaxRequeues >= 0 {
		p.MaxRequeues = cfg.MaxRequeues
	}
	if cfg.RetryBackoff > 0 {
		p.RetryBackoff = cfg.RetryBackoff
	}
	if cfg.HardTimeLimit > 0 {
		p.HardTimeLimit = cfg.HardTimeLimit
	}
	if cfg.SoftTimeLimit > 0 && cfg.SoftTimeLimit <= p.HardTimeLimit {
		p.SoftTimeLimit = cfg.SoftTimeLimit
	} else if p.SoftTimeLimit > p.HardTimeLimit {
		p.SoftTimeLimit = p.HardTimeLimit
	}
	return p
}

// JobProcessor runs one attempt of a dispatch.
type JobProcessor interface {
	Process(ctx context.Context, d queue.Dispatch) (Outcome, error)
}

// Supervisor wraps each attempt with the time limits and turns failures
// into either a delayed retry or a failed video.
type Supervisor struct {
	processor JobProcessor
	store     db.Querier
	broker    queue.Broker
	policy    Policy
	newToken  func() string
}

func NewSupervisor(p JobProcessor, store db.Querier, broker queue.Broker, policy Policy) *Supervisor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Supervisor{
		processor: p,
		store:     store,
		broker:    broker,
		policy:    policy,
		newToken:  func() string { return uuid.NewString() },
	}
}

// Handle runs one attempt of d. A nil return means the delivery is settled
// and may be acked: either the attempt finished, or its follow-up (retry
// dispatch or failed mark) has been recorded.
func (s *Supervisor) Handle(ctx context.Context, d queue.Dispatch) error {
	ctx = tracing.ExtractTraceContext(ctx, d.Trace)
	ctx = logger.WithJobID(ctx, d.VideoID)
	ctx = logger.WithTaskToken(ctx, d.TaskToken)
	ctx, span := tracing.StartAttemptSpan(ctx, d.VideoID, d.Attempt)
	log := logger.FromContext(ctx).With("attempt", d.Attempt)

	attemptCtx, cancel := context.WithTimeout(ctx, s.policy.HardTimeLimit)
	defer cancel()

	soft := time.AfterFunc(s.policy.SoftTimeLimit, func() {
		log.Warn("soft time limit exceeded", "limit", s.policy.SoftTimeLimit.String())
		metrics.RecordSoftLimitExceeded()
	})

	metrics.JobsInFlight.Inc()
	start := time.Now()
	out, err := s.processor.Process(attemptCtx, d)
	soft.Stop()
	metrics.JobsInFlight.Dec()
	elapsed := time.Since(start).Seconds()

	if err == nil {
		outcome := AttemptSkipped
		if out.Ran {
			outcome = AttemptSucceeded
			metrics.RecordJobProcessed(string(db.VideoStatusDone))
		}
		metrics.RecordAttempt(outcome, elapsed)
		tracing.EndSpan(span, nil)
		return nil
	}

	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w after %s: %v", ErrHardTimeLimit, s.policy.HardTimeLimit, err)
	}
	tracing.EndSpan(span, err)

	// The attempt context may be gone; bookkeeping must still land.
	bctx := context.WithoutCancel(ctx)
	outcome, herr := s.settle(bctx, d, out, err)
	metrics.RecordAttempt(outcome, elapsed)
	return herr
}

func (s *Supervisor) settle(ctx context.Context, d queue.Dispatch, out Outcome, cause error) (string, error) {
	log := logger.FromContext(ctx).With("attempt", d.Attempt)

	if !out.Claimed {
		if IsPermanent(cause) {
			log.Error("dispatch rejected", "error", cause)
			return AttemptRejected, nil
		}
		if d.Requeues >= s.policy.MaxRequeues {
			log.Error("dispatch abandoned before claim",
				"error", cause,
				"requeues", d.Requeues,
				"max_requeues", s.policy.MaxRequeues,
			)
			return AttemptAbandoned, nil
		}
		// Nothing was claimed, so the attempt never started. Try the same
		// dispatch again later.
		next := d
		next.Requeues = d.Requeues + 1
		log.Warn("dispatch failed before claim, requeueing",
			"error", cause,
			"requeues", next.Requeues,
			"delay", s.policy.RetryBackoff.String(),
		)
		if _, err := s.enqueue(ctx, next, s.policy.RetryBackoff); err != nil {
			return AttemptRequeued, fmt.Errorf("requeue dispatch: %w", err)
		}
		return AttemptRequeued, nil
	}

	if IsPermanent(cause) || d.Attempt >= s.policy.MaxAttempts {
		log.Error("video failed", "error", cause, "max_attempts", s.policy.MaxAttempts, "permanent", IsPermanent(cause))
		s.markFailed(ctx, d.VideoID, cause)
		return AttemptFailed, nil
	}

	token := out.ClaimToken
	if _, err := s.store.RecordAttemptFailure(ctx, db.RecordAttemptFailureParams{
		ID:         d.VideoID,
		ClaimToken: &token,
		LastError:  errString(cause),
	}); err != nil {
		log.Warn("failed to record attempt failure", "error", err)
	}

	next := d
	next.Attempt = d.Attempt + 1
	next.ClaimToken = out.ClaimToken
	next.TaskToken = s.newToken()
	next.Requeues = 0

	if _, err := s.enqueue(ctx, next, s.policy.RetryBackoff); err != nil {
		log.Error("failed to schedule retry, failing video", "error", err)
		s.markFailed(ctx, d.VideoID, fmt.Errorf("%v; retry not scheduled: %w", cause, err))
		return AttemptFailed, nil
	}

	if err := s.store.SetTaskID(ctx, db.SetTaskIDParams{ID: d.VideoID, TaskID: &next.TaskToken}); err != nil {
		log.Warn("failed to record task id", "error", err)
	}

	log.Warn("attempt failed, retry scheduled",
		"error", cause,
		"next_attempt", next.Attempt,
		"delay", s.policy.RetryBackoff.String(),
	)
	return AttemptRetried, nil
}

func (s *Supervisor) enqueue(ctx context.Context, d queue.Dispatch, delay time.Duration) (string, error) {
	ctx, span := tracing.StartEnqueueSpan(ctx, d.VideoID, d.Attempt)
	d.Trace = tracing.InjectTraceContext(ctx)
	id, err := s.broker.Enqueue(ctx, d, delay)
	tracing.EndSpan(span, err)
	return id, err
}

// markFailed is the terminal write. A failure here is logged and
// swallowed; the reaper picks up rows left in processing.
func (s *Supervisor) markFailed(ctx context.Context, id int64, cause error) {
	log := logger.FromContext(ctx)

	n, err := s.store.MarkVideoFailed(ctx, db.MarkVideoFailedParams{ID: id, LastError: errString(cause)})
	if err != nil {
		log.Error("failed to mark video failed", "error", err)
		return
	}
	if n == 0 {
		log.Warn("video already terminal, not marked failed")
		return
	}
	metrics.RecordJobProcessed(string(db.VideoStatusFailed))
}

func errString(err error) *string {
	s := err.Error()
	if len(s) > 2000 {
		s = s[:2000]
	}
	return &s
}
