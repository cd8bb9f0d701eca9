package video

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/clipvote/internal/processor"
)

var (
	ErrFFmpegFailed   = fmt.Errorf("video: ffmpeg failed: %w", processor.ErrStepFailed)
	ErrFFmpegNotFound = errors.New("video: ffmpeg not found in PATH")
	ErrInvalidProfile = fmt.Errorf("video: %w", processor.ErrInvalidConfig)
)

// Watermark anchor positions.
const (
	PositionTopLeft     = "top-left"
	PositionTopRight    = "top-right"
	PositionBottomLeft  = "bottom-left"
	PositionBottomRight = "bottom-right"
	PositionCenter      = "center"
)

// Default asset file names inside the assets directory.
const (
	TitleCardFile = "intro-outro.jpg"
	WatermarkFile = "watermark.png"
)

// Profile holds the tunables of the processing pipeline. The zero value is
// not usable; start from DefaultProfile.
type Profile struct {
	MaxDuration int    `yaml:"max_duration"`
	Height      int    `yaml:"height"`
	FrameRate   int    `yaml:"frame_rate"`
	Preset      string `yaml:"preset"`
	// ReencodeOnMute re-encodes video when stripping audio instead of
	// copying the stream.
	ReencodeOnMute bool `yaml:"reencode_on_mute"`

	Watermark WatermarkProfile `yaml:"watermark"`
	TitleCard TitleCardProfile `yaml:"title_card"`
}

type WatermarkProfile struct {
	Image    string `yaml:"image"`
	Position string `yaml:"position"`
	Margin   int    `yaml:"margin"`
}

type TitleCardProfile struct {
	Image   string `yaml:"image"`
	Seconds int    `yaml:"seconds"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
}

func DefaultProfile() *Profile {
	return &Profile{
		MaxDuration: 30,
		Height:      720,
		FrameRate:   30,
		Preset:      "veryfast",
		Watermark: WatermarkProfile{
			Position: PositionTopRight,
			Margin:   10,
		},
		TitleCard: TitleCardProfile{
			Seconds: 3,
			Width:   1280,
			Height:  720,
		},
	}
}

// LoadProfile reads overrides from a YAML file on top of DefaultProfile.
// An empty path returns the defaults.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) Validate() error {
	if p.MaxDuration <= 0 {
		return fmt.Errorf("%w: max_duration must be positive", ErrInvalidProfile)
	}
	if p.Height <= 0 || p.Height%2 != 0 {
		return fmt.Errorf("%w: height must be a positive even number", ErrInvalidProfile)
	}
	if p.FrameRate <= 0 {
		return fmt.Errorf("%w: frame_rate must be positive", ErrInvalidProfile)
	}
	if p.Preset == "" {
		return fmt.Errorf("%w: preset is required", ErrInvalidProfile)
	}
	if p.Watermark.Margin < 0 {
		return fmt.Errorf("%w: watermark margin must not be negative", ErrInvalidProfile)
	}
	switch p.Watermark.Position {
	case PositionTopLeft, PositionTopRight, PositionBottomLeft, PositionBottomRight, PositionCenter:
	default:
		return fmt.Errorf("%w: unknown watermark position %q", ErrInvalidProfile, p.Watermark.Position)
	}
	if p.TitleCard.Seconds <= 0 || p.TitleCard.Width <= 0 || p.TitleCard.Height <= 0 {
		return fmt.Errorf("%w: title card dimensions and seconds must be positive", ErrInvalidProfile)
	}
	return nil
}
