package assets

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"

	"github.com/abdul-hamid-achik/clipvote/internal/processor/video"
)

var fontPaths = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/System/Library/Fonts/Helvetica.ttc",
}

type Options struct {
	// Text is drawn on both the watermark and the title card.
	Text string
	// Overwrite replaces files that already exist.
	Overwrite bool

	CardWidth  int
	CardHeight int
}

func DefaultOptions() Options {
	return Options{
		Text:       "clipvote",
		CardWidth:  1280,
		CardHeight: 720,
	}
}

// Paths returns the watermark and title card paths inside dir.
func Paths(dir string) (watermark, titleCard string) {
	return filepath.Join(dir, video.WatermarkFile), filepath.Join(dir, video.TitleCardFile)
}

// EnsureDefaults renders the watermark PNG and title card JPEG into dir,
// keeping existing files unless opts.Overwrite is set. It returns the files
// it wrote.
func EnsureDefaults(dir string, opts Options) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create assets dir: %w", err)
	}
	if opts.Text == "" {
		opts.Text = DefaultOptions().Text
	}
	if opts.CardWidth <= 0 || opts.CardHeight <= 0 {
		opts.CardWidth, opts.CardHeight = DefaultOptions().CardWidth, DefaultOptions().CardHeight
	}

	watermark, titleCard := Paths(dir)
	var written []string

	if write, err := shouldWrite(watermark, opts.Overwrite); err != nil {
		return written, err
	} else if write {
		if err := RenderWatermark(watermark, opts.Text); err != nil {
			return written, err
		}
		written = append(written, watermark)
	}

	if write, err := shouldWrite(titleCard, opts.Overwrite); err != nil {
		return written, err
	} else if write {
		if err := RenderTitleCard(titleCard, opts.Text, opts.CardWidth, opts.CardHeight); err != nil {
			return written, err
		}
		written = append(written, titleCard)
	}

	return written, nil
}

func shouldWrite(path string, overwrite bool) (bool, error) {
	if overwrite {
		return true, nil
	}
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

// RenderWatermark writes a semi-transparent text badge as PNG.
func RenderWatermark(path, text string) error {
	const fontSize = 28.0

	dc := gg.NewContext(1, 1)
	loadFont(dc, fontSize)
	tw, th := dc.MeasureString(text)

	pad := fontSize * 0.5
	w, h := int(tw+2*pad), int(th+2*pad)
	dc = gg.NewContext(w, h)
	loadFont(dc, fontSize)

	dc.SetRGBA(0, 0, 0, 0.35)
	dc.DrawRoundedRectangle(0, 0, float64(w), float64(h), pad)
	dc.Fill()

	dc.SetRGBA(0, 0, 0, 0.5)
	dc.DrawStringAnchored(text, float64(w)/2+2, float64(h)/2+2, 0.5, 0.5)
	dc.SetRGBA(1, 1, 1, 0.85)
	dc.DrawStringAnchored(text, float64(w)/2, float64(h)/2, 0.5, 0.5)

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	return nil
}

// RenderTitleCard writes a width x height JPEG with text centered on a
// dark gradient.
func RenderTitleCard(path, text string, width, height int) error {
	dc := gg.NewContext(width, height)

	grad := gg.NewLinearGradient(0, 0, 0, float64(height))
	grad.AddColorStop(0, rgb(0x1f, 0x29, 0x37))
	grad.AddColorStop(1, rgb(0x0b, 0x0f, 0x19))
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, float64(width), float64(height))
	dc.Fill()

	loadFont(dc, float64(height)/8)
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(text, float64(width)/2, float64(height)/2, 0.5, 0.5)

	if err := gg.SaveJPG(path, dc.Image(), 90); err != nil {
		return fmt.Errorf("save title card: %w", err)
	}
	return nil
}

// loadFont tries the known system fonts and keeps gg's built-in face when
// none is available.
func loadFont(dc *gg.Context, size float64) {
	for _, p := range fontPaths {
		if err := dc.LoadFontFace(p, size); err == nil {
			return
		}
	}
}

func rgb(r, g, b uint8) color.Color {
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
