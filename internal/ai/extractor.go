package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/facturaIA/textscan-service/internal/ocr"
)

// Provider sends a prompt plus an optional base64 JPEG to a vision model and
// returns the model's raw reply.
type Provider interface {
	Name() string
	ExtractData(ctx context.Context, prompt string, imageBase64 string) (string, error)
}

// Extractor turns a vision-capable model into an ocr.Service. The model is
// asked for the structured wire payload; replies that ignore the format are
// still usable because the adapter falls back to plain text.
type Extractor struct {
	provider  Provider
	languages []string
}

// NewExtractor creates a new AI extractor
func NewExtractor(provider Provider, languages []string) *Extractor {
	return &Extractor{
		provider:  provider,
		languages: languages,
	}
}

// Name returns "ai/<provider>".
func (e *Extractor) Name() string {
	return "ai/" + e.provider.Name()
}

// Recognize implements ocr.Service.
func (e *Extractor) Recognize(ctx context.Context, image []byte, format ocr.ImageFormat) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("empty image")
	}
	response, err := e.provider.ExtractData(ctx, e.buildPromptVision(), base64.StdEncoding.EncodeToString(image))
	if err != nil {
		return "", fmt.Errorf("AI extraction failed: %w", err)
	}
	fmt.Printf("[AI Response] Provider: %s, Response length: %d\n", e.provider.Name(), len(response))
	return response, nil
}

// buildPromptVision asks for a verbatim transcription with block geometry.
func (e *Extractor) buildPromptVision() string {
	langHint := "any language"
	if len(e.languages) > 0 {
		langHint = strings.Join(e.languages, ", ")
	}

	return fmt.Sprintf(`You are an OCR engine. Transcribe EVERY piece of text visible in the image exactly as written (%s).

## RULES
1. Do not translate, summarize, correct or reorder the text.
2. Keep reading order: top to bottom, left to right.
3. Group text into blocks (paragraphs, labels, table cells).
4. Coordinates are pixels in the supplied image, origin at the TOP-LEFT corner.
5. If there is no readable text, return "text": "" and an empty "blocks" array.
6. NEVER invent text you cannot read.

Return ONLY valid JSON (no markdown, no comments):
{
  "success": true,
  "text": "full transcription, blocks separated by newlines",
  "blocks": [
    {
      "text": "block text",
      "x": 0, "y": 0, "width": 0, "height": 0,
      "confidence": 0.0 to 1.0,
      "lines": [{"text": "line text", "x": 0, "y": 0, "width": 0, "height": 0, "confidence": 0.0 to 1.0}]
    }
  ]
}`, langHint)
}
