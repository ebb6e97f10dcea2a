package ocr

import (
	"testing"

	apperrors "github.com/facturaIA/textscan-service/internal/errors"
	"github.com/facturaIA/textscan-service/internal/imaging"
)

func TestPrepareDownscalesOnlyAboveMax(t *testing.T) {
	p := NewPreprocessor(PreprocessorOptions{MaxWidth: 1920, MaxHeight: 1080})

	out, err := p.Prepare(imaging.New(2000, 1500, imaging.FormatRGB))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if out.Width != 1440 || out.Height != 1080 {
		t.Fatalf("got %dx%d, want 1440x1080", out.Width, out.Height)
	}

	small := imaging.New(640, 480, imaging.FormatRGB)
	out, _ = p.Prepare(small)
	if out != small {
		t.Fatalf("buffer within bounds should be processed in place")
	}
}

func TestPrepareStretchesContrast(t *testing.T) {
	buf := imaging.New(2, 1, imaging.FormatRGB)
	copy(buf.Data, []byte{100, 100, 100, 150, 150, 150})
	out, err := NewPreprocessor(PreprocessorOptions{MaxWidth: 10, MaxHeight: 10}).Prepare(buf)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if out.Data[0] != 0 || out.Data[3] != 255 {
		t.Fatalf("contrast not stretched: %v", out.Data)
	}
}

func TestPrepareRotateAndCrop(t *testing.T) {
	p := NewPreprocessor(PreprocessorOptions{
		MaxWidth: 100, MaxHeight: 100,
		Rotation: 90,
		Crop:     &Region{X: 0, Y: 0, Width: 3, Height: 2},
	})
	out, err := p.Prepare(imaging.New(4, 6, imaging.FormatRGB))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if out.Width != 3 || out.Height != 2 {
		t.Fatalf("got %dx%d, want 3x2", out.Width, out.Height)
	}
}

func TestPrepareBinarize(t *testing.T) {
	buf := imaging.New(4, 4, imaging.FormatRGBA)
	for i := 0; i < 16; i++ {
		v := byte(40 + i*10)
		buf.Data[i*4], buf.Data[i*4+1], buf.Data[i*4+2], buf.Data[i*4+3] = v, v/2, v, 255
	}
	out, err := NewPreprocessor(PreprocessorOptions{MaxWidth: 10, MaxHeight: 10, Mode: ModeBinarize}).Prepare(buf)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	for i := 0; i < 16; i++ {
		v := out.Data[i*4]
		if v != 0 && v != 255 {
			t.Fatalf("pixel %d = %d, want binary", i, v)
		}
		if out.Data[i*4+3] != 255 {
			t.Fatalf("alpha changed at %d", i)
		}
	}
}

func TestPrepareInvalidInput(t *testing.T) {
	_, err := NewPreprocessor(PreprocessorOptions{}).Prepare(nil)
	if !apperrors.HasCode(err, apperrors.InvalidInput) {
		t.Fatalf("error = %v, want InvalidInput", err)
	}
	if NewPreprocessor(PreprocessorOptions{}).Mode() != ModeStandard {
		t.Fatalf("default mode should be standard")
	}
}
