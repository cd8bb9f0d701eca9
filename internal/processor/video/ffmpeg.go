package video

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/clipvote/internal/logger"
)

const silentAudioSource = "anullsrc=channel_layout=stereo:sample_rate=48000"

// Runner executes an external tool. A non-nil error means the tool did not
// exit cleanly.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs tools as child processes. Cancelling ctx kills the child.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	log := logger.FromContext(ctx)
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v (%v)", ErrFFmpegFailed, err, ctx.Err())
		}
		return fmt.Errorf("%w: %v, output: %s", ErrFFmpegFailed, err, tail(output, 2048))
	}

	log.Debug("tool finished", "tool", name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}

// Toolkit builds ffmpeg invocations for each pipeline transformation.
type Toolkit struct {
	ffmpeg  string
	runner  Runner
	profile *Profile
}

func NewToolkit(ffmpegPath string, runner Runner, profile *Profile) *Toolkit {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if profile == nil {
		profile = DefaultProfile()
	}
	return &Toolkit{ffmpeg: ffmpegPath, runner: runner, profile: profile}
}

// CheckFFmpeg verifies the ffmpeg binary can be found.
func (t *Toolkit) CheckFFmpeg() error {
	if _, err := exec.LookPath(t.ffmpeg); err != nil {
		return fmt.Errorf("%w: %v", ErrFFmpegNotFound, err)
	}
	return nil
}

func (t *Toolkit) Profile() *Profile {
	return t.profile
}

// Trim keeps the first seconds of in without re-encoding.
func (t *Toolkit) Trim(ctx context.Context, in, out string, seconds int) error {
	return t.runner.Run(ctx, t.ffmpeg, trimArgs(in, out, seconds)...)
}

// Scale re-encodes to height pixels keeping the aspect ratio, at fps.
func (t *Toolkit) Scale(ctx context.Context, in, out string, height, fps int) error {
	return t.runner.Run(ctx, t.ffmpeg, scaleArgs(in, out, height, fps, t.profile.Preset)...)
}

func (t *Toolkit) StripAudio(ctx context.Context, in, out string, reencode bool) error {
	return t.runner.Run(ctx, t.ffmpeg, stripAudioArgs(in, out, reencode, t.profile.Preset)...)
}

func (t *Toolkit) Watermark(ctx context.Context, in, out, image, position string, margin int) error {
	return t.runner.Run(ctx, t.ffmpeg, watermarkArgs(in, out, image, overlayPosition(position, margin), t.profile.Preset)...)
}

// ComposeIntroOutro renders image as a title card clip, gives in a silent
// audio track and concatenates card, video, card into out.
func (t *Toolkit) ComposeIntroOutro(ctx context.Context, in, out, image string, seconds, w, h, fps int) error {
	workDir, err := os.MkdirTemp(filepath.Dir(out), "compose-*")
	if err != nil {
		return fmt.Errorf("create compose dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.FromContext(ctx).Warn("failed to remove compose dir", "path", workDir, "error", err)
		}
	}()

	intro := filepath.Join(workDir, "intro.mp4")
	outro := filepath.Join(workDir, "outro.mp4")
	middle := filepath.Join(workDir, "middle.mp4")
	preset := t.profile.Preset

	invocations := [][]string{
		titleCardArgs(image, intro, seconds, w, h, fps, preset),
		titleCardArgs(image, outro, seconds, w, h, fps, preset),
		silentAudioArgs(in, middle),
		concatArgs(intro, middle, outro, out, preset),
	}
	for _, args := range invocations {
		if err := t.runner.Run(ctx, t.ffmpeg, args...); err != nil {
			return err
		}
	}
	return nil
}

func trimArgs(in, out string, seconds int) []string {
	return []string{
		"-y",
		"-ss", "0",
		"-t", strconv.Itoa(seconds),
		"-i", in,
		"-c", "copy",
		out,
	}
}

func scaleArgs(in, out string, height, fps int, preset string) []string {
	return []string{
		"-y",
		"-i", in,
		"-vf", fmt.Sprintf("scale=-2:%d,setsar=1,fps=%d", height, fps),
		"-c:v", "libx264",
		"-preset", preset,
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		out,
	}
}

func stripAudioArgs(in, out string, reencode bool, preset string) []string {
	if reencode {
		return []string{
			"-y",
			"-i", in,
			"-c:v", "libx264",
			"-preset", preset,
			"-pix_fmt", "yuv420p",
			"-an",
			out,
		}
	}
	return []string{
		"-y",
		"-i", in,
		"-c:v", "copy",
		"-an",
		out,
	}
}

func overlayPosition(position string, margin int) string {
	m := strconv.Itoa(margin)
	switch position {
	case PositionTopLeft:
		return m + ":" + m
	case PositionBottomLeft:
		return m + ":H-h-" + m
	case PositionBottomRight:
		return "W-w-" + m + ":H-h-" + m
	case PositionCenter:
		return "(W-w)/2:(H-h)/2"
	default:
		return "W-w-" + m + ":" + m
	}
}

func watermarkArgs(in, out, image, overlay, preset string) []string {
	return []string{
		"-y",
		"-i", in,
		"-i", image,
		"-filter_complex", "[0:v][1:v]overlay=" + overlay,
		"-c:v", "libx264",
		"-preset", preset,
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		out,
	}
}

func titleCardArgs(image, out string, seconds, w, h, fps int, preset string) []string {
	s := strconv.Itoa(seconds)
	return []string{
		"-y",
		"-loop", "1",
		"-t", s,
		"-i", image,
		"-f", "lavfi",
		"-t", s,
		"-i", silentAudioSource,
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,format=yuv420p,fps=%d", w, h, w, h, fps),
		"-c:v", "libx264",
		"-preset", preset,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
		out,
	}
}

func silentAudioArgs(in, out string) []string {
	return []string{
		"-y",
		"-i", in,
		"-f", "lavfi",
		"-i", silentAudioSource,
		"-shortest",
		"-c:v", "copy",
		"-c:a", "aac",
		out,
	}
}

func concatArgs(intro, middle, outro, out, preset string) []string {
	return []string{
		"-y",
		"-i", intro,
		"-i", middle,
		"-i", outro,
		"-filter_complex", "[0:v][0:a][1:v][1:a][2:v][2:a]concat=n=3:v=1:a=1[v][a]",
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", "libx264",
		"-preset", preset,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
		out,
	}
}
