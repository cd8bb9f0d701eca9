package video

import (
	"context"

	"github.com/abdul-hamid-achik/clipvote/internal/processor"
)

// RegisterSteps adds the five pipeline steps, configured from the toolkit's
// profile, to reg.
func RegisterSteps(reg *processor.Registry, t *Toolkit) {
	p := t.profile

	reg.Register(processor.NewStep(processor.StepTrim, func(ctx context.Context, in, out string) error {
		return t.Trim(ctx, in, out, p.MaxDuration)
	}))
	reg.Register(processor.NewStep(processor.StepScale, func(ctx context.Context, in, out string) error {
		return t.Scale(ctx, in, out, p.Height, p.FrameRate)
	}))
	reg.Register(processor.NewStep(processor.StepMute, func(ctx context.Context, in, out string) error {
		return t.StripAudio(ctx, in, out, p.ReencodeOnMute)
	}))
	reg.Register(processor.NewStep(processor.StepWatermark, func(ctx context.Context, in, out string) error {
		return t.Watermark(ctx, in, out, p.Watermark.Image, p.Watermark.Position, p.Watermark.Margin)
	}))
	reg.Register(processor.NewStep(processor.StepCompose, func(ctx context.Context, in, out string) error {
		c := p.TitleCard
		return t.ComposeIntroOutro(ctx, in, out, c.Image, c.Seconds, c.Width, c.Height, p.FrameRate)
	}))
}
