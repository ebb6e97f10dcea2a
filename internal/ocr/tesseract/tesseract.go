// Package tesseract implements ocr.Service on top of the gosseract client.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/facturaIA/textscan-service/internal/coords"
	"github.com/facturaIA/textscan-service/internal/ocr"
)

// Service runs Tesseract locally and returns the structured wire payload.
type Service struct {
	languages     []string
	variables     map[string]string
	clientFactory func() *gosseract.Client
}

// New creates a Tesseract-backed recognizer. An empty language list uses
// Tesseract's default ("eng").
func New(languages []string, variables map[string]string) *Service {
	return &Service{
		languages:     languages,
		variables:     variables,
		clientFactory: gosseract.NewClient,
	}
}

func (s *Service) Name() string { return "tesseract" }

// Version reports the linked libtesseract version.
func (s *Service) Version() string { return gosseract.Version() }

// Recognize performs OCR on an encoded image. A fresh client is used per call;
// gosseract clients are not safe for concurrent use.
func (s *Service) Recognize(ctx context.Context, img []byte, format ocr.ImageFormat) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := s.clientFactory()
	defer c.Close()

	if len(s.languages) > 0 {
		if err := c.SetLanguage(s.languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	for k, v := range s.variables {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return "", fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	if err := c.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	blocks := extractBlocks(c)
	lines := extractLines(c)
	return ocr.Encode(strings.TrimSpace(text), ocr.GroupLines(blocks, lines))
}

func extractBlocks(c *gosseract.Client) []ocr.TextBlock {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_BLOCK)
	if err != nil {
		return nil
	}
	blocks := make([]ocr.TextBlock, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		blocks = append(blocks, ocr.TextBlock{
			Text:       text,
			Bounds:     toRect(b.Box),
			Confidence: b.Confidence / 100.0,
		})
	}
	return blocks
}

func extractLines(c *gosseract.Client) []ocr.TextLine {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil
	}
	lines := make([]ocr.TextLine, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		lines = append(lines, ocr.TextLine{
			Text:       text,
			Bounds:     toRect(b.Box),
			Confidence: b.Confidence / 100.0,
		})
	}
	return lines
}

func toRect(r image.Rectangle) coords.Rect {
	return coords.Rect{X: float64(r.Min.X), Y: float64(r.Min.Y), Width: float64(r.Dx()), Height: float64(r.Dy())}
}
