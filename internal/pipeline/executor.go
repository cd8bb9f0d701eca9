package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/clipvote/internal/logger"
	"github.com/abdul-hamid-achik/clipvote/internal/metrics"
	"github.com/abdul-hamid-achik/clipvote/internal/processor"
	"github.com/abdul-hamid-achik/clipvote/internal/storage"
	"github.com/abdul-hamid-achik/clipvote/internal/tracing"
)

var ErrAssetMissing = errors.New("pipeline: asset missing")

type Config struct {
	// WorkDir is the parent of the per-run temp directories. Empty means
	// os.TempDir().
	WorkDir string
	// Assets are local files every run depends on, checked before any
	// step starts.
	Assets []string
	// Steps overrides processor.PipelineOrder.
	Steps []string
}

// Executor runs the fixed transformation sequence for one video inside a
// temp directory that is removed when Run returns.
type Executor struct {
	storage storage.Port
	steps   []processor.Step
	workDir string
	assets  []string
}

func NewExecutor(port storage.Port, reg *processor.Registry, cfg Config) (*Executor, error) {
	order := cfg.Steps
	if len(order) == 0 {
		order = processor.PipelineOrder
	}
	steps, err := reg.Resolve(order)
	if err != nil {
		return nil, err
	}

	return &Executor{
		storage: port,
		steps:   steps,
		workDir: cfg.WorkDir,
		assets:  cfg.Assets,
	}, nil
}

// OutputName is the name the processed file of one claim is stored under.
// Different claims on the same video never share a name.
func OutputName(videoID int64, claimToken string) string {
	id := strconv.FormatInt(videoID, 10)
	if len(claimToken) > 8 {
		claimToken = claimToken[:8]
	}
	if claimToken == "" {
		return id + "_processed.mp4"
	}
	return id + "_" + claimToken + "_processed.mp4"
}

// CheckAssets reports the first configured asset that is not a readable
// regular file.
func (e *Executor) CheckAssets() error {
	for _, p := range e.assets {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrAssetMissing, p, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%w: %s is not a regular file", ErrAssetMissing, p)
		}
	}
	return nil
}

// Run resolves originalLocation to a local file, applies every step in
// order and stores the result under the claim's output name. It returns
// the processed location.
func (e *Executor) Run(ctx context.Context, videoID int64, claimToken, originalLocation string) (string, error) {
	log := logger.FromContext(ctx).With("location", originalLocation)
	start := time.Now()

	if err := e.CheckAssets(); err != nil {
		return "", err
	}

	tmp, err := os.MkdirTemp(e.workDir, fmt.Sprintf("video-%d-*", videoID))
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			log.Warn("failed to remove work dir", "path", tmp, "error", err)
		}
	}()

	fetchStart := time.Now()
	current, err := e.storage.Fetch(ctx, originalLocation, tmp)
	if err != nil {
		return "", fmt.Errorf("fetch original: %w", err)
	}
	log.Debug("original fetched", "path", current, "duration_ms", time.Since(fetchStart).Milliseconds())

	for i, step := range e.steps {
		out := filepath.Join(tmp, fmt.Sprintf("%02d_%s.mp4", i+1, step.Name()))
		if err := e.runStep(ctx, step, current, out); err != nil {
			return "", err
		}
		current = out
	}

	loc, err := e.storage.Put(ctx, current, OutputName(videoID, claimToken))
	if err != nil {
		return "", fmt.Errorf("store processed: %w", err)
	}

	log.Info("pipeline completed",
		"processed_location", loc,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return loc, nil
}

func (e *Executor) runStep(ctx context.Context, step processor.Step, in, out string) (err error) {
	ctx, span := tracing.StartStepSpan(ctx, step.Name())
	start := time.Now()
	defer func() {
		metrics.RecordStep(step.Name(), time.Since(start).Seconds(), err)
		tracing.EndSpan(span, err)
	}()

	if err := step.Run(ctx, in, out); err != nil {
		return fmt.Errorf("step %s: %w", step.Name(), err)
	}
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("step %s: %w: no output: %v", step.Name(), processor.ErrStepFailed, err)
	}

	logger.FromContext(ctx).Debug("step finished",
		"step", step.Name(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
