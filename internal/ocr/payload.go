package ocr

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/facturaIA/textscan-service/internal/coords"
	apperrors "github.com/facturaIA/textscan-service/internal/errors"
)

// wirePayload is the structured response shape produced by the Tesseract
// service and requested from vision models.
type wirePayload struct {
	Success *bool       `json:"success"`
	Text    string      `json:"text"`
	Error   string      `json:"error"`
	Blocks  []wireBlock `json:"blocks"`
}

type wireBlock struct {
	Text       string      `json:"text"`
	X          float64     `json:"x"`
	Y          float64     `json:"y"`
	Width      float64     `json:"width"`
	Height     float64     `json:"height"`
	Confidence *float64    `json:"confidence,omitempty"`
	Lines      []wireBlock `json:"lines,omitempty"`
}

func (p wirePayload) recognized() bool {
	return p.Success != nil || p.Text != "" || p.Error != "" || len(p.Blocks) > 0
}

// cleanResponse strips markdown code fences that models like to wrap JSON in.
func cleanResponse(raw string) string {
	cleaned := strings.TrimSpace(raw)
	backticks := strings.Repeat("`", 3)
	if !strings.HasPrefix(cleaned, backticks) {
		return cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, backticks+"json")
	cleaned = strings.ReplaceAll(cleaned, backticks, "")
	return strings.TrimSpace(cleaned)
}

// Normalize turns a raw service response into a RecognitionResult. Bare text
// and unparseable JSON both become a block-less success carrying the text;
// only an explicit service-reported error yields Success=false.
func Normalize(raw string) RecognitionResult {
	cleaned := cleanResponse(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return plainText(raw)
	}

	var p wirePayload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil || !p.recognized() {
		return plainText(raw)
	}

	if (p.Success != nil && !*p.Success) || (p.Success == nil && p.Error != "" && p.Text == "" && len(p.Blocks) == 0) {
		msg := strings.TrimSpace(p.Error)
		if msg == "" {
			msg = "recognition service reported failure"
		}
		return failure(apperrors.RecognitionFailed, msg)
	}

	blocks := make([]TextBlock, 0, len(p.Blocks))
	for _, wb := range p.Blocks {
		blocks = append(blocks, toBlock(wb))
	}

	text := strings.TrimSpace(p.Text)
	if text == "" && len(blocks) > 0 {
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			if t := strings.TrimSpace(b.Text); t != "" {
				parts = append(parts, t)
			}
		}
		text = strings.Join(parts, "\n")
	}
	return RecognitionResult{Success: true, Text: text, Blocks: blocks}
}

func plainText(raw string) RecognitionResult {
	return RecognitionResult{Success: true, Text: strings.TrimSpace(raw)}
}

func toBlock(wb wireBlock) TextBlock {
	lines := make([]TextLine, 0, len(wb.Lines))
	var sum float64
	var known int
	for _, wl := range wb.Lines {
		line := TextLine{
			Text:   strings.TrimSpace(wl.Text),
			Bounds: coords.Rect{X: wl.X, Y: wl.Y, Width: wl.Width, Height: wl.Height},
		}
		if wl.Confidence != nil {
			line.Confidence = normalizeConfidence(*wl.Confidence)
			sum += line.Confidence
			known++
		}
		lines = append(lines, line)
	}

	block := TextBlock{
		Text:   strings.TrimSpace(wb.Text),
		Bounds: coords.Rect{X: wb.X, Y: wb.Y, Width: wb.Width, Height: wb.Height},
		Lines:  lines,
	}
	switch {
	case wb.Confidence != nil:
		block.Confidence = normalizeConfidence(*wb.Confidence)
	case known > 0:
		block.Confidence = sum / float64(known)
	}
	for i := range block.Lines {
		if block.Lines[i].Confidence == 0 && wb.Lines[i].Confidence == nil {
			block.Lines[i].Confidence = block.Confidence
		}
	}

	if block.Text == "" && len(lines) > 0 {
		parts := make([]string, 0, len(lines))
		for _, l := range lines {
			parts = append(parts, l.Text)
		}
		block.Text = strings.Join(parts, "\n")
	}
	if block.Bounds.IsEmpty() {
		for _, l := range lines {
			block.Bounds = block.Bounds.Union(l.Bounds)
		}
	}
	return block
}

// normalizeConfidence accepts either a [0,1] score or a 0-100 percentage.
func normalizeConfidence(c float64) float64 {
	if c > 1 {
		c = c / 100
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Encode renders text and blocks as the structured wire payload.
func Encode(text string, blocks []TextBlock) (string, error) {
	ok := true
	p := wirePayload{Success: &ok, Text: text, Blocks: make([]wireBlock, 0, len(blocks))}
	for _, b := range blocks {
		conf := b.Confidence
		wb := wireBlock{
			Text: b.Text, X: b.Bounds.X, Y: b.Bounds.Y, Width: b.Bounds.Width, Height: b.Bounds.Height,
			Confidence: &conf,
		}
		for _, l := range b.Lines {
			lc := l.Confidence
			wb.Lines = append(wb.Lines, wireBlock{
				Text: l.Text, X: l.Bounds.X, Y: l.Bounds.Y, Width: l.Bounds.Width, Height: l.Bounds.Height,
				Confidence: &lc,
			})
		}
		p.Blocks = append(p.Blocks, wb)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

// GroupLines assigns each line to the first block containing its center.
// Lines outside every block start a block of their own. Line order is kept.
func GroupLines(blocks []TextBlock, lines []TextLine) []TextBlock {
	out := make([]TextBlock, len(blocks))
	copy(out, blocks)
	for i := range out {
		out[i].Lines = nil
	}
	for _, l := range lines {
		cx := l.Bounds.X + l.Bounds.Width/2
		cy := l.Bounds.Y + l.Bounds.Height/2
		placed := false
		for i := range out {
			b := out[i].Bounds
			if cx >= b.X && cx <= b.X+b.Width && cy >= b.Y && cy <= b.Y+b.Height {
				out[i].Lines = append(out[i].Lines, l)
				placed = true
				break
			}
		}
		if !placed {
			out = append(out, TextBlock{Text: l.Text, Bounds: l.Bounds, Confidence: l.Confidence, Lines: []TextLine{l}})
		}
	}
	return out
}
