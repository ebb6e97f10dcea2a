package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	apperrors "github.com/facturaIA/textscan-service/internal/errors"

	// Decoders accepted for pushed and snapshot frames.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultJPEGQuality is used when a caller passes a quality outside 1..100.
	DefaultJPEGQuality = 85
	// DefaultMaxPixels is the decode budget used by Decode.
	DefaultMaxPixels = 40_000_000
)

// EncodeJPEG encodes the buffer as JPEG at the given quality (1-100). Alpha is dropped.
func EncodeJPEG(buf *PixelBuffer, quality int) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, buf.ToImage(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// EncodePNG encodes the buffer losslessly.
func EncodePNG(buf *PixelBuffer) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := png.Encode(&out, buf.ToImage()); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

// Decode parses an encoded PNG, JPEG, BMP, TIFF or WebP image into a buffer.
func Decode(data []byte) (*PixelBuffer, string, error) {
	return DecodeWithin(data, DefaultMaxPixels)
}

// DecodeWithin is Decode with an explicit pixel budget. The header is read
// first so oversized images are rejected with InvalidInput before any raster
// is allocated. A budget <= 0 means DefaultMaxPixels.
func DecodeWithin(data []byte, maxPixels int) (*PixelBuffer, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("decode image: empty payload")
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width > MaxDimension || cfg.Height > MaxDimension || cfg.Width*cfg.Height > maxPixels {
		return nil, "", apperrors.New(apperrors.InvalidInput,
			fmt.Sprintf("image %dx%d exceeds the %d pixel budget", cfg.Width, cfg.Height, maxPixels))
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return FromImage(img), format, nil
}

// FromRaw wraps raw interleaved samples, validating their length.
func FromRaw(width, height int, format Format, data []byte) (*PixelBuffer, error) {
	buf := &PixelBuffer{Width: width, Height: height, Format: format, Data: data}
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	return buf, nil
}
