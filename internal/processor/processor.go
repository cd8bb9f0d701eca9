package processor

import (
	"context"
	"errors"
)

var (
	ErrStepFailed        = errors.New("processor: step failed")
	ErrStepNotRegistered = errors.New("processor: step not registered")
	ErrInvalidConfig     = errors.New("processor: invalid configuration")
)

// Step transforms the video file at in and writes the result to out.
// Implementations must not modify in.
type Step interface {
	Name() string
	Run(ctx context.Context, in, out string) error
}

type stepFunc struct {
	name string
	fn   func(ctx context.Context, in, out string) error
}

func (s stepFunc) Name() string { return s.name }

func (s stepFunc) Run(ctx context.Context, in, out string) error { return s.fn(ctx, in, out) }

// NewStep adapts a function to the Step interface.
func NewStep(name string, fn func(ctx context.Context, in, out string) error) Step {
	return stepFunc{name: name, fn: fn}
}

// Step names of the video pipeline, in execution order.
const (
	StepTrim      = "trim"
	StepScale     = "scale"
	StepMute      = "mute"
	StepWatermark = "watermark"
	StepCompose   = "compose"
)

// PipelineOrder is the fixed order the executor runs steps in.
var PipelineOrder = []string{StepTrim, StepScale, StepMute, StepWatermark, StepCompose}
