package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/facturaIA/textscan-service/internal/auth"
	"github.com/facturaIA/textscan-service/internal/imaging"
)

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	Capture   CaptureConfig   `yaml:"capture"`
	OCR       OCRConfig       `yaml:"ocr"`
	AI        AIConfig        `yaml:"ai"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Display   DisplayConfig   `yaml:"display"`
	History   HistoryConfig   `yaml:"history"`
	Clipboard ClipboardConfig `yaml:"clipboard"`
	Events    EventsConfig    `yaml:"events"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
}

// CaptureConfig controls frame acquisition.
type CaptureConfig struct {
	SnapshotURL string        `yaml:"snapshot_url"` // camera still endpoint, used when no pushed frame is fresh
	MaxFrameAge time.Duration `yaml:"max_frame_age"`
	Timeout     time.Duration `yaml:"timeout"`
	Rotation    int           `yaml:"rotation"`   // 0, 90, 180 or 270
	MaxPixels   int           `yaml:"max_pixels"` // decode budget for pushed and snapshot images
	Crop        *CropConfig   `yaml:"crop,omitempty"`
}

// CropConfig is a region of interest in frame pixels.
type CropConfig struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// OCRConfig represents OCR-specific configuration
type OCRConfig struct {
	Engine        string            `yaml:"engine"`    // "tesseract", "ai" or "fake"
	Languages     []string          `yaml:"languages"` // default: ["eng"]
	Variables     map[string]string `yaml:"variables,omitempty"`
	FakeText      string            `yaml:"fake_text,omitempty"` // scripted text for the fake engine
	Quality       int               `yaml:"quality"`
	MinConfidence *float64          `yaml:"min_confidence"` // nil means 0.5; 0 disables the check
	Timeout       time.Duration     `yaml:"timeout"`
	MaxWidth      int               `yaml:"max_width"`
	MaxHeight     int               `yaml:"max_height"`
	Preprocess    string            `yaml:"preprocess"` // standard, document, binarize
}

// AIConfig represents AI provider configuration
type AIConfig struct {
	// OpenAI
	OpenAI OpenAIConfig `yaml:"openai"`

	// Gemini
	Gemini GeminiConfig `yaml:"gemini"`

	// Ollama (local)
	Ollama OllamaConfig `yaml:"ollama"`

	// Default provider
	DefaultProvider string `yaml:"default_provider"` // "openai", "gemini", "ollama"
}

// OpenAIConfig for OpenAI/Azure OpenAI
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"` // For custom endpoints
	Model   string `yaml:"model"`              // Default: "gpt-4o"
}

// GeminiConfig for Google Gemini
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // Default: "gemini-1.5-flash"
}

// OllamaConfig for local Ollama
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"` // Default: "http://localhost:11434"
	Model   string `yaml:"model"`    // Default: "llava"
}

// PipelineConfig holds cycle timings.
type PipelineConfig struct {
	Freeze       time.Duration `yaml:"freeze"`
	Settle       time.Duration `yaml:"settle"`
	PreviewLimit int           `yaml:"preview_limit"`
}

// DisplayConfig is the preview surface highlights are mapped onto.
type DisplayConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// HistoryConfig selects where copied texts are kept.
type HistoryConfig struct {
	Backend     string `yaml:"backend"` // "memory" or "postgres"
	MaxSize     int    `yaml:"max_size"`
	Schema      string `yaml:"schema"`
	DatabaseURL string `yaml:"database_url,omitempty"`
}

// ClipboardConfig selects the delivery sink.
type ClipboardConfig struct {
	Backend string `yaml:"backend"` // "system" or "memory"
}

// EventsConfig controls the feedback feed.
type EventsConfig struct {
	Recent   int    `yaml:"recent"`
	RedisURL string `yaml:"redis_url,omitempty"`
	Channel  string `yaml:"channel"`
	Buffer   int    `yaml:"buffer"`
}

// StorageConfig for MinIO frame archiving. Disabled when Endpoint is empty.
type StorageConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	AccessKey    string        `yaml:"access_key"`
	SecretKey    string        `yaml:"secret_key"`
	Bucket       string        `yaml:"bucket"`
	UseSSL       bool          `yaml:"use_ssl"`
	CreateBucket bool          `yaml:"create_bucket"`
	URLExpiry    time.Duration `yaml:"url_expiry"`
}

// AuthConfig for operator login. Disabled when JWTSecret is empty.
type AuthConfig struct {
	JWTSecret string          `yaml:"jwt_secret"`
	TokenTTL  time.Duration   `yaml:"token_ttl"`
	Operators []auth.Operator `yaml:"operators"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8081
	}
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}

	if c.Capture.MaxFrameAge == 0 {
		c.Capture.MaxFrameAge = 2 * time.Second
	}
	if c.Capture.Timeout == 0 {
		c.Capture.Timeout = 5 * time.Second
	}
	if c.Capture.MaxPixels == 0 {
		c.Capture.MaxPixels = imaging.DefaultMaxPixels
	}

	c.OCR.Engine = strings.ToLower(strings.TrimSpace(c.OCR.Engine))
	if c.OCR.Engine == "" {
		c.OCR.Engine = "tesseract"
	}
	if len(c.OCR.Languages) == 0 {
		c.OCR.Languages = []string{"eng"}
	}
	if c.OCR.Quality == 0 {
		c.OCR.Quality = 85
	}
	if c.OCR.MinConfidence == nil {
		minConfidence := 0.5
		c.OCR.MinConfidence = &minConfidence
	}
	if c.OCR.Timeout == 0 {
		c.OCR.Timeout = 30 * time.Second
	}
	if c.OCR.MaxWidth == 0 {
		c.OCR.MaxWidth = 1920
	}
	if c.OCR.MaxHeight == 0 {
		c.OCR.MaxHeight = 1080
	}
	c.OCR.Preprocess = strings.ToLower(strings.TrimSpace(c.OCR.Preprocess))
	if c.OCR.Preprocess == "" {
		c.OCR.Preprocess = "standard"
	}

	c.AI.DefaultProvider = strings.ToLower(strings.TrimSpace(c.AI.DefaultProvider))
	if c.AI.DefaultProvider == "" {
		c.AI.DefaultProvider = "openai"
	}
	if c.AI.Ollama.BaseURL == "" {
		c.AI.Ollama.BaseURL = "http://localhost:11434"
	}

	if c.Pipeline.Freeze == 0 {
		c.Pipeline.Freeze = 300 * time.Millisecond
	}
	if c.Pipeline.Settle == 0 {
		c.Pipeline.Settle = 1500 * time.Millisecond
	}
	if c.Pipeline.PreviewLimit == 0 {
		c.Pipeline.PreviewLimit = 50
	}

	c.History.Backend = strings.ToLower(strings.TrimSpace(c.History.Backend))
	if c.History.Backend == "" {
		c.History.Backend = "memory"
	}
	if c.History.MaxSize == 0 {
		c.History.MaxSize = 50
	}
	if c.History.Schema == "" {
		c.History.Schema = "public"
	}

	c.Clipboard.Backend = strings.ToLower(strings.TrimSpace(c.Clipboard.Backend))
	if c.Clipboard.Backend == "" {
		c.Clipboard.Backend = "system"
	}

	if c.Events.Recent == 0 {
		c.Events.Recent = 256
	}
	if c.Events.Channel == "" {
		c.Events.Channel = "textscan:events"
	}
	if c.Events.Buffer == 0 {
		c.Events.Buffer = 64
	}

	if c.Storage.Bucket == "" {
		c.Storage.Bucket = "scan-frames"
	}
	if c.Storage.URLExpiry == 0 {
		c.Storage.URLExpiry = 24 * time.Hour
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 12 * time.Hour
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Capture.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("capture.rotation must be 0, 90, 180 or 270, got %d", c.Capture.Rotation)
	}
	if c.Capture.MaxPixels < 0 {
		return fmt.Errorf("capture.max_pixels must not be negative")
	}
	if cr := c.Capture.Crop; cr != nil && (cr.Width <= 0 || cr.Height <= 0 || cr.X < 0 || cr.Y < 0) {
		return fmt.Errorf("capture.crop must have a non-negative origin and positive size")
	}

	switch c.OCR.Engine {
	case "tesseract", "ai", "fake":
	default:
		return fmt.Errorf("unknown ocr.engine %q", c.OCR.Engine)
	}
	if c.OCR.Quality < 1 || c.OCR.Quality > 100 {
		return fmt.Errorf("ocr.quality must be between 1 and 100, got %d", c.OCR.Quality)
	}
	if mc := c.OCR.MinConfidence; mc != nil && (*mc < 0 || *mc > 1) {
		return fmt.Errorf("ocr.min_confidence must be between 0 and 1")
	}
	if c.OCR.MaxWidth <= 0 || c.OCR.MaxHeight <= 0 {
		return fmt.Errorf("ocr.max_width and ocr.max_height must be positive")
	}
	switch c.OCR.Preprocess {
	case "standard", "document", "binarize":
	default:
		return fmt.Errorf("unknown ocr.preprocess %q", c.OCR.Preprocess)
	}
	if c.OCR.Engine == "ai" {
		switch c.AI.DefaultProvider {
		case "openai", "gemini", "ollama":
		default:
			return fmt.Errorf("unknown ai.default_provider %q", c.AI.DefaultProvider)
		}
	}

	if c.Pipeline.Freeze < 0 || c.Pipeline.Settle < 0 {
		return fmt.Errorf("pipeline durations must not be negative")
	}
	switch c.History.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown history.backend %q", c.History.Backend)
	}
	if c.History.MaxSize <= 0 {
		return fmt.Errorf("history.max_size must be positive")
	}
	switch c.Clipboard.Backend {
	case "system", "memory":
	default:
		return fmt.Errorf("unknown clipboard.backend %q", c.Clipboard.Backend)
	}
	if c.Auth.JWTSecret != "" {
		for _, op := range c.Auth.Operators {
			if op.Username == "" || op.PasswordHash == "" {
				return fmt.Errorf("auth operators need a username and password_hash")
			}
		}
	}
	return nil
}
