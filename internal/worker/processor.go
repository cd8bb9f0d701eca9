package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/clipvote/internal/db"
	"github.com/abdul-hamid-achik/clipvote/internal/logger"
	"github.com/abdul-hamid-achik/clipvote/internal/metrics"
	"github.com/abdul-hamid-achik/clipvote/internal/pipeline"
	"github.com/abdul-hamid-achik/clipvote/internal/queue"
	"github.com/abdul-hamid-achik/clipvote/internal/storage"
)

// Claim results, also used as metric labels.
const (
	ClaimClaimed      = "claimed"
	ClaimResumed      = "resumed"
	ClaimContended    = "contended"
	ClaimShortCircuit = "short_circuit"
)

// Pipeline turns an original into a processed video and returns where the
// result was stored. The location is unique to claimToken.
type Pipeline interface {
	Run(ctx context.Context, videoID int64, claimToken, originalLocation string) (string, error)
}

var _ Pipeline = (*pipeline.Executor)(nil)

// Outcome describes what one call to Process did.
type Outcome struct {
	// ProcessedLocation is the stored output, empty while the video is not
	// done.
	ProcessedLocation string
	// Claimed is true when this call held the claim on the video.
	Claimed bool
	// Ran is true when the pipeline was started.
	Ran        bool
	ClaimToken string
	Result     string
}

// Processor applies the claim protocol to one dispatch: only the caller
// that flips the row to processing (or resumes its own claim lineage on a
// retry) runs the pipeline.
type Processor struct {
	store    db.Store
	storage  storage.Port
	pipeline Pipeline
	newToken func() string
}

func NewProcessor(store db.Store, port storage.Port, p Pipeline) *Processor {
	return &Processor{
		store:    store,
		storage:  port,
		pipeline: p,
		newToken: func() string { return uuid.NewString() },
	}
}

func (p *Processor) Process(ctx context.Context, d queue.Dispatch) (Outcome, error) {
	log := logger.FromContext(ctx).With("attempt", d.Attempt)

	video, err := p.store.GetVideo(ctx, d.VideoID)
	if err != nil {
		if db.IsNotFound(err) {
			return Outcome{}, Permanent(fmt.Errorf("%w: id %d", ErrJobNotFound, d.VideoID))
		}
		return Outcome{}, fmt.Errorf("load video: %w", err)
	}

	var out Outcome
	if d.Attempt > 1 {
		out, err = p.resume(ctx, d)
	} else {
		out, err = p.claim(ctx, video)
	}
	if err != nil {
		return Outcome{}, err
	}
	metrics.RecordClaim(out.Result)
	if !out.Claimed {
		log.Info("dispatch skipped", "claim_result", out.Result, "processed_location", out.ProcessedLocation)
		return out, nil
	}

	source := d.OriginalLocation
	if source == "" {
		source = video.OriginalPath
	}

	out.Ran = true
	start := time.Now()
	loc, err := p.pipeline.Run(ctx, video.ID, out.ClaimToken, source)
	if err != nil {
		if errors.Is(err, pipeline.ErrAssetMissing) {
			return out, Permanent(err)
		}
		return out, err
	}

	if err := p.commitDone(ctx, video.ID, out.ClaimToken, loc, d.TaskToken); err != nil {
		if errors.Is(err, ErrClaimLost) {
			p.deleteBestEffort(ctx, loc, "orphaned output")
			return out, Permanent(err)
		}
		return out, err
	}
	out.ProcessedLocation = loc

	p.deleteBestEffort(ctx, source, "original")

	log.Info("video processed",
		"processed_location", loc,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (p *Processor) claim(ctx context.Context, video db.Video) (Outcome, error) {
	switch video.Status {
	case db.VideoStatusProcessing, db.VideoStatusDone:
		return Outcome{ProcessedLocation: deref(video.ProcessedPath), Result: ClaimShortCircuit}, nil
	}

	token := p.newToken()
	n, err := p.store.ClaimVideo(ctx, db.ClaimVideoParams{ID: video.ID, ClaimToken: &token})
	if err != nil {
		return Outcome{}, fmt.Errorf("claim video: %w", err)
	}
	if n == 0 {
		return p.current(ctx, video.ID, ClaimContended)
	}
	return Outcome{Claimed: true, ClaimToken: token, Result: ClaimClaimed}, nil
}

func (p *Processor) resume(ctx context.Context, d queue.Dispatch) (Outcome, error) {
	token := d.ClaimToken
	n, err := p.store.ResumeClaim(ctx, db.ResumeClaimParams{
		ID:         d.VideoID,
		ClaimToken: &token,
		Attempts:   int32(d.Attempt),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("resume claim: %w", err)
	}
	if n == 0 {
		return p.current(ctx, d.VideoID, ClaimContended)
	}
	return Outcome{Claimed: true, ClaimToken: token, Result: ClaimResumed}, nil
}

func (p *Processor) current(ctx context.Context, id int64, result string) (Outcome, error) {
	video, err := p.store.GetVideo(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("reload video: %w", err)
	}
	return Outcome{ProcessedLocation: deref(video.ProcessedPath), Result: result}, nil
}

func (p *Processor) commitDone(ctx context.Context, id int64, claimToken, location, taskToken string) error {
	return p.store.ExecTx(ctx, func(q db.Querier) error {
		n, err := q.MarkVideoDone(ctx, db.MarkVideoDoneParams{
			ID:            id,
			ClaimToken:    &claimToken,
			ProcessedPath: &location,
		})
		if err != nil {
			return fmt.Errorf("mark video done: %w", err)
		}
		if n == 0 {
			return ErrClaimLost
		}
		if taskToken != "" {
			if err := q.SetTaskID(ctx, db.SetTaskIDParams{ID: id, TaskID: &taskToken}); err != nil {
				return fmt.Errorf("set task id: %w", err)
			}
		}
		return nil
	})
}

func (p *Processor) deleteBestEffort(ctx context.Context, location, what string) {
	if location == "" {
		return
	}
	if err := p.storage.Delete(context.WithoutCancel(ctx), location); err != nil {
		logger.FromContext(ctx).Warn("failed to delete "+what, "location", location, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
