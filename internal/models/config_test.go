package models

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestApplyDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if c.Pipeline.Freeze != 300*time.Millisecond || c.Pipeline.Settle != 1500*time.Millisecond {
		t.Fatalf("pipeline timings = %v/%v", c.Pipeline.Freeze, c.Pipeline.Settle)
	}
	if c.Pipeline.PreviewLimit != 50 || c.History.MaxSize != 50 {
		t.Fatalf("limits = %d/%d", c.Pipeline.PreviewLimit, c.History.MaxSize)
	}
	if c.OCR.MaxWidth != 1920 || c.OCR.MaxHeight != 1080 || c.OCR.Quality != 85 {
		t.Fatalf("ocr defaults = %+v", c.OCR)
	}
	if c.OCR.MinConfidence == nil || *c.OCR.MinConfidence != 0.5 {
		t.Fatalf("min_confidence default = %v", c.OCR.MinConfidence)
	}
	if c.Capture.MaxPixels <= 0 {
		t.Fatalf("max_pixels default = %d", c.Capture.MaxPixels)
	}
}

func TestApplyDefaultsNormalizesAndKeepsExplicitZero(t *testing.T) {
	src := `
ocr:
  engine: " Fake "
  min_confidence: 0
  preprocess: Document
ai:
  default_provider: OpenAI
history:
  backend: Memory
clipboard:
  backend: MEMORY
`
	var c Config
	if err := yaml.Unmarshal([]byte(src), &c); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if c.OCR.Engine != "fake" || c.AI.DefaultProvider != "openai" || c.OCR.Preprocess != "document" {
		t.Fatalf("not normalized: engine %q provider %q preprocess %q", c.OCR.Engine, c.AI.DefaultProvider, c.OCR.Preprocess)
	}
	if c.History.Backend != "memory" || c.Clipboard.Backend != "memory" {
		t.Fatalf("backends = %q/%q", c.History.Backend, c.Clipboard.Backend)
	}
	if c.OCR.MinConfidence == nil || *c.OCR.MinConfidence != 0 {
		t.Fatalf("explicit min_confidence 0 overridden: %v", c.OCR.MinConfidence)
	}
}

func TestParseYAMLDurations(t *testing.T) {
	src := `
port: 9000
pipeline:
  freeze: 250ms
  settle: 2s
capture:
  rotation: 90
  crop: {x: 10, y: 20, width: 100, height: 50}
ocr:
  engine: ai
  languages: [eng, spa]
ai:
  default_provider: gemini
`
	var c Config
	if err := yaml.Unmarshal([]byte(src), &c); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if c.Pipeline.Freeze != 250*time.Millisecond || c.Pipeline.Settle != 2*time.Second {
		t.Fatalf("durations = %v/%v", c.Pipeline.Freeze, c.Pipeline.Settle)
	}
	if c.Capture.Crop == nil || c.Capture.Crop.Width != 100 {
		t.Fatalf("crop = %+v", c.Capture.Crop)
	}
	if len(c.OCR.Languages) != 2 {
		t.Fatalf("languages = %v", c.OCR.Languages)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"rotation", func(c *Config) { c.Capture.Rotation = 45 }, "rotation"},
		{"crop", func(c *Config) { c.Capture.Crop = &CropConfig{Width: 0, Height: 10} }, "crop"},
		{"engine", func(c *Config) { c.OCR.Engine = "easyocr" }, "ocr.engine"},
		{"quality", func(c *Config) { c.OCR.Quality = 101 }, "quality"},
		{"confidence", func(c *Config) { mc := 2.0; c.OCR.MinConfidence = &mc }, "min_confidence"},
		{"max pixels", func(c *Config) { c.Capture.MaxPixels = -1 }, "max_pixels"},
		{"preprocess", func(c *Config) { c.OCR.Preprocess = "magic" }, "preprocess"},
		{"provider", func(c *Config) { c.OCR.Engine = "ai"; c.AI.DefaultProvider = "claude" }, "default_provider"},
		{"history", func(c *Config) { c.History.Backend = "sqlite" }, "history.backend"},
		{"clipboard", func(c *Config) { c.Clipboard.Backend = "x11" }, "clipboard.backend"},
		{"negative settle", func(c *Config) { c.Pipeline.Settle = -time.Second }, "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.ApplyDefaults()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
