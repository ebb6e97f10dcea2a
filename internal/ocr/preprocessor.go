package ocr

import (
	"fmt"

	"github.com/facturaIA/textscan-service/internal/imaging"
)

// Mode selects how aggressively frames are enhanced before recognition.
type Mode string

const (
	// ModeStandard downscales and auto-contrasts.
	ModeStandard Mode = "standard"
	// ModeDocument additionally converts to grayscale and sharpens text edges.
	ModeDocument Mode = "document"
	// ModeBinarize is document mode followed by a hard threshold, for stamps
	// and low-contrast print.
	ModeBinarize Mode = "binarize"
)

// Region is an optional crop applied before scaling, in source pixels.
type Region struct {
	X, Y, Width, Height int
}

// PreprocessorOptions configures a Preprocessor.
type PreprocessorOptions struct {
	MaxWidth  int
	MaxHeight int
	Mode      Mode
	Rotation  int
	Crop      *Region
	Sharpen   float64
	Threshold float64
}

// Preprocessor prepares captured frames for the recognizer.
type Preprocessor struct {
	opts PreprocessorOptions
}

// NewPreprocessor creates a new image preprocessor
func NewPreprocessor(opts PreprocessorOptions) *Preprocessor {
	if opts.Mode == "" {
		opts.Mode = ModeStandard
	}
	if opts.Sharpen <= 0 {
		opts.Sharpen = 0.5
	}
	if opts.Threshold <= 0 || opts.Threshold >= 1 {
		opts.Threshold = 0.5
	}
	return &Preprocessor{opts: opts}
}

// Mode returns the configured enhancement mode.
func (p *Preprocessor) Mode() Mode { return p.opts.Mode }

// Prepare takes ownership of buf and returns the buffer to hand to the
// recognizer. Pipeline: rotate -> crop -> downscale (if above max) ->
// auto-contrast, then the mode-specific filters.
func (p *Preprocessor) Prepare(buf *imaging.PixelBuffer) (*imaging.PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	out := buf
	var err error
	if imaging.NormalizeDegrees(p.opts.Rotation) != 0 {
		if out, err = imaging.Rotate(out, p.opts.Rotation); err != nil {
			return nil, fmt.Errorf("rotate: %w", err)
		}
	}
	if c := p.opts.Crop; c != nil && c.Width > 0 && c.Height > 0 {
		if out, err = imaging.Crop(out, c.X, c.Y, c.Width, c.Height); err != nil {
			return nil, fmt.Errorf("crop: %w", err)
		}
	}
	if p.opts.MaxWidth > 0 && p.opts.MaxHeight > 0 && (out.Width > p.opts.MaxWidth || out.Height > p.opts.MaxHeight) {
		if out, err = imaging.Downscale(out, p.opts.MaxWidth, p.opts.MaxHeight); err != nil {
			return nil, fmt.Errorf("downscale: %w", err)
		}
	}
	if out, err = imaging.AutoContrast(out); err != nil {
		return nil, fmt.Errorf("auto-contrast: %w", err)
	}

	switch p.opts.Mode {
	case ModeDocument, ModeBinarize:
		if out, err = imaging.ToGrayscale(out); err != nil {
			return nil, fmt.Errorf("grayscale: %w", err)
		}
		if out, err = imaging.Sharpen(out, p.opts.Sharpen); err != nil {
			return nil, fmt.Errorf("sharpen: %w", err)
		}
		if p.opts.Mode == ModeBinarize {
			if out, err = imaging.Threshold(out, p.opts.Threshold); err != nil {
				return nil, fmt.Errorf("threshold: %w", err)
			}
		}
	}
	return out, nil
}
