package ocr

import (
	"context"
	"time"

	"github.com/facturaIA/textscan-service/internal/coords"
	apperrors "github.com/facturaIA/textscan-service/internal/errors"
)

// ImageFormat identifies the content type handed to a recognition service.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
)

// Service is an opaque text-recognition engine. The response is either bare
// text or a JSON payload with per-block bounding boxes; the Adapter normalizes
// both.
type Service interface {
	Name() string
	Recognize(ctx context.Context, image []byte, format ImageFormat) (string, error)
}

// TextLine is one recognized line with its box in source-image pixel space.
type TextLine struct {
	Text       string      `json:"text"`
	Bounds     coords.Rect `json:"bounds"`
	Confidence float64     `json:"confidence"`
}

// TextBlock groups lines into a logical block (paragraph, label, etc).
type TextBlock struct {
	Text       string      `json:"text"`
	Bounds     coords.Rect `json:"bounds"`
	Confidence float64     `json:"confidence"`
	Lines      []TextLine  `json:"lines,omitempty"`
}

// RecognitionResult is the normalized outcome of one recognition call.
// On success Error is empty; on failure Text and Blocks are empty.
type RecognitionResult struct {
	Success     bool                `json:"success"`
	Text        string              `json:"text"`
	Blocks      []TextBlock         `json:"blocks,omitempty"`
	Duration    time.Duration       `json:"duration"`
	ImageWidth  int                 `json:"imageWidth"`
	ImageHeight int                 `json:"imageHeight"`
	Engine      string              `json:"engine,omitempty"`
	Error       string              `json:"error,omitempty"`
	Code        apperrors.ErrorCode `json:"code,omitempty"`
}

// Boxes returns the block bounds in order.
func (r RecognitionResult) Boxes() []coords.Rect {
	boxes := make([]coords.Rect, 0, len(r.Blocks))
	for _, b := range r.Blocks {
		boxes = append(boxes, b.Bounds)
	}
	return boxes
}

func failure(code apperrors.ErrorCode, message string) RecognitionResult {
	return RecognitionResult{Success: false, Error: message, Code: code}
}
