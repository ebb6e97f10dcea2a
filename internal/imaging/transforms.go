package imaging

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

const (
	// maxContrastSamples bounds the pixels inspected by AutoContrast.
	maxContrastSamples = 10000
	// flatRange is the luminance spread under which an image is left alone.
	flatRange = 0.01

	fullRangeLow  = 0.10
	fullRangeHigh = 0.90
)

// Luminance returns the perceptual gray value of an 8-bit RGB triple on [0,1].
func Luminance(r, g, b byte) float64 {
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 255
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func toByte(v float64) byte {
	return byte(math.Round(clamp01(v) * 255))
}

// Downscale returns a new buffer no larger than maxW x maxH, preserving aspect
// ratio. It never upscales: when the image already fits, an independent copy
// at the original size is returned. The input is not modified.
func Downscale(buf *PixelBuffer, maxW, maxH int) (*PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	scale := math.Min(float64(maxW)/float64(buf.Width), float64(maxH)/float64(buf.Height))
	scale = math.Min(scale, 1.0)
	if scale >= 1.0 || maxW <= 0 || maxH <= 0 {
		return buf.Clone(), nil
	}

	w := int(math.Round(float64(buf.Width) * scale))
	h := int(math.Round(float64(buf.Height) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	src := buf.ToImage()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := New(w, h, buf.Format)
	ch := buf.Format.Channels()
	for i, p := 0, 0; i < len(out.Data); i, p = i+ch, p+4 {
		copy(out.Data[i:i+ch], dst.Pix[p:p+ch])
	}
	return out, nil
}

// AutoContrast stretches the luminance histogram of buf in place. Near-flat
// images and images already spanning the full range are returned untouched;
// alpha is always preserved.
func AutoContrast(buf *PixelBuffer) (*PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	pixels := buf.PixelCount()
	stride := (pixels + maxContrastSamples - 1) / maxContrastSamples
	if stride < 1 {
		stride = 1
	}

	minLum, maxLum := 1.0, 0.0
	sampled := 0
	for i := 0; i < pixels && sampled < maxContrastSamples; i += stride {
		o := i * buf.Format.Channels()
		lum := Luminance(buf.Data[o], buf.Data[o+1], buf.Data[o+2])
		minLum = math.Min(minLum, lum)
		maxLum = math.Max(maxLum, lum)
		sampled++
	}

	spread := maxLum - minLum
	if spread < flatRange {
		return buf, nil
	}
	if minLum < fullRangeLow && maxLum > fullRangeHigh {
		return buf, nil
	}

	ch := buf.Format.Channels()
	for o := 0; o < len(buf.Data); o += ch {
		r, g, b := buf.Data[o], buf.Data[o+1], buf.Data[o+2]
		lum := Luminance(r, g, b)
		factor := 1.0
		if lum > 1e-6 {
			factor = clamp01((lum-minLum)/spread) / lum
		}
		buf.Data[o] = toByte(float64(r) / 255 * factor)
		buf.Data[o+1] = toByte(float64(g) / 255 * factor)
		buf.Data[o+2] = toByte(float64(b) / 255 * factor)
	}
	return buf, nil
}

// ToGrayscale replaces every pixel's color channels with its luminance.
func ToGrayscale(buf *PixelBuffer) (*PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	ch := buf.Format.Channels()
	for o := 0; o < len(buf.Data); o += ch {
		v := toByte(Luminance(buf.Data[o], buf.Data[o+1], buf.Data[o+2]))
		buf.Data[o], buf.Data[o+1], buf.Data[o+2] = v, v, v
	}
	return buf, nil
}

// Sharpen applies a 5-point kernel (center 1+4s, neighbours -s) to all
// interior pixels. Border rows and columns are left as they were.
func Sharpen(buf *PixelBuffer, strength float64) (*PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if buf.Width < 3 || buf.Height < 3 {
		return buf, nil
	}
	orig := make([]byte, len(buf.Data))
	copy(orig, buf.Data)

	ch := buf.Format.Channels()
	center := 1 + 4*strength
	rowStride := buf.Width * ch
	for y := 1; y < buf.Height-1; y++ {
		for x := 1; x < buf.Width-1; x++ {
			o := buf.offset(x, y)
			for c := 0; c < 3; c++ {
				i := o + c
				sum := float64(orig[i]) * center
				sum -= strength * (float64(orig[i-ch]) + float64(orig[i+ch]) +
					float64(orig[i-rowStride]) + float64(orig[i+rowStride]))
				buf.Data[i] = toByte(sum / 255)
			}
		}
	}
	return buf, nil
}

// Threshold binarizes every pixel: luminance above t becomes white, the rest black.
func Threshold(buf *PixelBuffer, t float64) (*PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	ch := buf.Format.Channels()
	for o := 0; o < len(buf.Data); o += ch {
		var v byte
		if Luminance(buf.Data[o], buf.Data[o+1], buf.Data[o+2]) > t {
			v = 0xff
		}
		buf.Data[o], buf.Data[o+1], buf.Data[o+2] = v, v, v
	}
	return buf, nil
}

// NormalizeDegrees snaps any angle to 0, 90, 180 or 270.
func NormalizeDegrees(degrees int) int {
	d := ((degrees % 360) + 360) % 360
	return (int(math.Round(float64(d)/90)) * 90) % 360
}

// Rotate returns a new buffer rotated clockwise by degrees (snapped to a
// quarter turn). Pixels are permuted exactly; no interpolation.
func Rotate(buf *PixelBuffer, degrees int) (*PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	d := NormalizeDegrees(degrees)
	if d == 0 {
		return buf.Clone(), nil
	}

	w, h := buf.Width, buf.Height
	out := New(w, h, buf.Format)
	if d == 90 || d == 270 {
		out = New(h, w, buf.Format)
	}
	ch := buf.Format.Channels()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var nx, ny int
			switch d {
			case 90:
				nx, ny = h-1-y, x
			case 180:
				nx, ny = w-1-x, h-1-y
			case 270:
				nx, ny = y, w-1-x
			}
			src := buf.offset(x, y)
			dst := out.offset(nx, ny)
			copy(out.Data[dst:dst+ch], buf.Data[src:src+ch])
		}
	}
	return out, nil
}

// Crop returns a new buffer holding the region (x, y, w, h) clamped to the
// source bounds. The result is always at least 1x1.
func Crop(buf *PixelBuffer, x, y, w, h int) (*PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	x = clampInt(x, 0, buf.Width-1)
	y = clampInt(y, 0, buf.Height-1)
	w = clampInt(w, 1, buf.Width-x)
	h = clampInt(h, 1, buf.Height-y)

	out := New(w, h, buf.Format)
	rowBytes := w * buf.Format.Channels()
	for row := 0; row < h; row++ {
		src := buf.offset(x, y+row)
		copy(out.Data[row*rowBytes:(row+1)*rowBytes], buf.Data[src:src+rowBytes])
	}
	return out, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
