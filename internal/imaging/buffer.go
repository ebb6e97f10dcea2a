// Package imaging holds the in-memory raster type that flows through the scan
// pipeline and the deterministic transforms applied to it before recognition.
//
// Buffers are owned by exactly one stage at a time. A transform either mutates
// the buffer it is given and returns the same pointer, or returns a brand-new
// buffer; in the latter case the caller must stop using the input once it no
// longer needs it.
package imaging

import (
	"fmt"
	"image"
	"image/color"

	apperrors "github.com/facturaIA/textscan-service/internal/errors"
)

// MaxDimension is the largest accepted width or height.
const MaxDimension = 16384

// Format identifies the sample layout of a PixelBuffer.
type Format int

const (
	// FormatRGB is interleaved 8-bit R, G, B.
	FormatRGB Format = iota
	// FormatRGBA is interleaved 8-bit R, G, B plus a straight (non-premultiplied) alpha.
	FormatRGBA
)

// Channels returns the number of samples per pixel.
func (f Format) Channels() int {
	switch f {
	case FormatRGBA:
		return 4
	default:
		return 3
	}
}

func (f Format) String() string {
	switch f {
	case FormatRGBA:
		return "rgba"
	default:
		return "rgb"
	}
}

// PixelBuffer is a raster image with explicit dimensions and sample data.
type PixelBuffer struct {
	Width  int
	Height int
	Format Format
	Data   []byte
}

// New allocates a zeroed buffer.
func New(width, height int, format Format) *PixelBuffer {
	return &PixelBuffer{
		Width:  width,
		Height: height,
		Format: format,
		Data:   make([]byte, width*height*format.Channels()),
	}
}

// Validate checks len(Data) == Width*Height*Channels and that both dimensions
// lie in 1..MaxDimension.
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return apperrors.New(apperrors.InvalidInput, "nil pixel buffer")
	}
	if b.Width < 1 || b.Height < 1 {
		return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("empty pixel buffer %dx%d", b.Width, b.Height))
	}
	if b.Width > MaxDimension || b.Height > MaxDimension {
		return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("pixel buffer %dx%d exceeds %d per side", b.Width, b.Height, MaxDimension))
	}
	if want := b.Width * b.Height * b.Format.Channels(); len(b.Data) != want {
		return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("pixel data length %d, want %d", len(b.Data), want))
	}
	return nil
}

// Clone returns an independent deep copy.
func (b *PixelBuffer) Clone() *PixelBuffer {
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	return &PixelBuffer{Width: b.Width, Height: b.Height, Format: b.Format, Data: data}
}

// Equal reports whether both buffers have the same dimensions, format and samples.
func (b *PixelBuffer) Equal(o *PixelBuffer) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.Width != o.Width || b.Height != o.Height || b.Format != o.Format || len(b.Data) != len(o.Data) {
		return false
	}
	for i := range b.Data {
		if b.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

// PixelCount returns Width*Height.
func (b *PixelBuffer) PixelCount() int { return b.Width * b.Height }

// offset returns the index of the first sample of pixel (x, y).
func (b *PixelBuffer) offset(x, y int) int {
	return (y*b.Width + x) * b.Format.Channels()
}

// FromImage converts any image.Image into an RGB buffer, or RGBA when the
// source carries an alpha channel.
func FromImage(img image.Image) *PixelBuffer {
	r := img.Bounds()
	format := FormatRGB
	if !opaque(img) {
		format = FormatRGBA
	}
	buf := New(r.Dx(), r.Dy(), format)
	ch := format.Channels()

	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < buf.Height; y++ {
			row := src.Pix[src.PixOffset(r.Min.X, r.Min.Y+y):]
			for x := 0; x < buf.Width; x++ {
				o := (y*buf.Width + x) * ch
				copy(buf.Data[o:o+ch], row[x*4:x*4+ch])
			}
		}
		return buf
	}

	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(r.Min.X+x, r.Min.Y+y)).(color.NRGBA)
			o := (y*buf.Width + x) * ch
			buf.Data[o] = c.R
			buf.Data[o+1] = c.G
			buf.Data[o+2] = c.B
			if ch == 4 {
				buf.Data[o+3] = c.A
			}
		}
	}
	return buf
}

// ToImage converts the buffer into an *image.NRGBA; RGB buffers become fully opaque.
func (b *PixelBuffer) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	ch := b.Format.Channels()
	for i, p := 0, 0; i+ch <= len(b.Data); i, p = i+ch, p+4 {
		img.Pix[p] = b.Data[i]
		img.Pix[p+1] = b.Data[i+1]
		img.Pix[p+2] = b.Data[i+2]
		if ch == 4 {
			img.Pix[p+3] = b.Data[i+3]
		} else {
			img.Pix[p+3] = 0xff
		}
	}
	return img
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return true
}
