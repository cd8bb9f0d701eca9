package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/abdul-hamid-achik/clipvote/internal/db"
	"github.com/abdul-hamid-achik/clipvote/internal/logger"
	"github.com/abdul-hamid-achik/clipvote/internal/metrics"
)

const reapBatchSize = int32(100)

// ReaperStats summarizes one reaper run.
type ReaperStats struct {
	Scanned      int
	Reaped       int
	UpdateErrors int
}

// Reaper fails videos stuck in processing, which happens when a worker dies
// after claiming and its dispatch is acked or lost.
type Reaper struct {
	store      db.Querier
	staleAfter time.Duration
	now        func() time.Time
}

func NewReaper(store db.Querier, staleAfter time.Duration) *Reaper {
	return &Reaper{store: store, staleAfter: staleAfter, now: time.Now}
}

func (r *Reaper) Run(ctx context.Context) (*ReaperStats, error) {
	log := logger.FromContext(ctx)
	log.Info("starting stale claim reaper", "stale_after", r.staleAfter.String())
	start := time.Now()

	stats := &ReaperStats{}
	cutoff := pgtype.Timestamptz{Time: r.now().Add(-r.staleAfter), Valid: true}
	lastError := fmt.Sprintf("stale claim: no progress for %s", r.staleAfter)

	for {
		videos, err := r.store.ListStaleProcessing(ctx, db.ListStaleProcessingParams{
			UpdatedAt: cutoff,
			Limit:     reapBatchSize,
		})
		if err != nil {
			return stats, fmt.Errorf("list stale videos: %w", err)
		}
		if len(videos) == 0 {
			break
		}

		reaped := 0
		for _, v := range videos {
			stats.Scanned++
			n, err := r.store.ReapStaleVideo(ctx, db.ReapStaleVideoParams{
				ID:        v.ID,
				LastError: &lastError,
				UpdatedAt: cutoff,
			})
			if err != nil {
				log.Warn("failed to mark stale video failed", "job_id", v.ID, "error", err)
				stats.UpdateErrors++
				continue
			}
			if n == 1 {
				reaped++
				log.Info("stale video marked failed",
					"job_id", v.ID,
					"attempts", v.Attempts,
					"updated_at", v.UpdatedAt.Time,
				)
			}
		}
		stats.Reaped += reaped
		metrics.RecordReaped(reaped)

		// A batch where nothing changed would be listed again forever.
		if reaped == 0 || int32(len(videos)) < reapBatchSize {
			break
		}
	}

	log.Info("stale claim reaper completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"scanned", stats.Scanned,
		"reaped", stats.Reaped,
		"update_errors", stats.UpdateErrors,
	)
	return stats, nil
}
