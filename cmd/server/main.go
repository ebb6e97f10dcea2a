package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/facturaIA/textscan-service/api"
	"github.com/facturaIA/textscan-service/internal/ai"
	"github.com/facturaIA/textscan-service/internal/auth"
	"github.com/facturaIA/textscan-service/internal/capture"
	"github.com/facturaIA/textscan-service/internal/clipboard"
	"github.com/facturaIA/textscan-service/internal/db"
	"github.com/facturaIA/textscan-service/internal/events"
	"github.com/facturaIA/textscan-service/internal/history"
	"github.com/facturaIA/textscan-service/internal/logging"
	"github.com/facturaIA/textscan-service/internal/models"
	"github.com/facturaIA/textscan-service/internal/ocr"
	"github.com/facturaIA/textscan-service/internal/ocr/tesseract"
	"github.com/facturaIA/textscan-service/internal/pipeline"
	"github.com/facturaIA/textscan-service/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	hashPassword := flag.String("hash-password", "", "print a bcrypt hash for an operator password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	// .env is optional
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	// Load configuration
	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.NewLogger("TextScan")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize JWT
	authEnabled := false
	if err := auth.Init(config.Auth.JWTSecret, config.Auth.TokenTTL); err != nil {
		log.Printf("Warning: JWT authentication disabled: %v", err)
	} else {
		authEnabled = true
		log.Println("JWT authentication initialized")
	}

	// History store
	store := buildHistory(ctx, config, logger)

	// MinIO frame archive
	var archive *storage.FrameArchive
	if config.Storage.Endpoint != "" {
		archive, err = storage.New(ctx, storage.Config{
			Endpoint:     config.Storage.Endpoint,
			AccessKey:    config.Storage.AccessKey,
			SecretKey:    config.Storage.SecretKey,
			Bucket:       config.Storage.Bucket,
			UseSSL:       config.Storage.UseSSL,
			CreateBucket: config.Storage.CreateBucket,
			URLExpiry:    config.Storage.URLExpiry,
		})
		if err != nil {
			log.Printf("Warning: MinIO storage not available: %v", err)
			log.Println("Frames will not be archived")
			archive = nil
		} else {
			log.Printf("MinIO storage initialized (bucket %s)", archive.Bucket())
		}
	}

	// Recognition engine
	service, engineVersion, err := buildService(config)
	if err != nil {
		log.Printf("Warning: OCR engine not available: %v", err)
	}
	adapter := ocr.NewAdapter(service, ocr.AdapterOptions{
		MinConfidence: *config.OCR.MinConfidence,
		Logger:        logger.Named("OCR"),
	})

	// Capture: pushed frames first, camera snapshot as fallback
	slot := capture.NewFrameSlot(config.Capture.MaxFrameAge)
	captureOpts := capture.Options{
		Primary: slot,
		Timeout: config.Capture.Timeout,
		Logger:  logger.Named("Capture"),
	}
	if config.Capture.SnapshotURL != "" {
		snapshot := capture.NewSnapshotStrategy(config.Capture.SnapshotURL, nil, config.Capture.Timeout)
		snapshot.MaxPixels = config.Capture.MaxPixels
		captureOpts.Fallback = snapshot
	}
	source, err := capture.NewSource(captureOpts)
	if err != nil {
		log.Fatalf("Failed to create capture source: %v", err)
	}

	// Clipboard
	var sink clipboard.Sink = clipboard.NewMemory()
	if config.Clipboard.Backend == "system" {
		if sys, err := clipboard.NewSystem(); err != nil {
			log.Printf("Warning: system clipboard not available: %v", err)
			log.Println("Copied text kept in memory only")
		} else {
			sink = sys
		}
	}

	// Feedback events
	recorder := events.NewRecorder(config.Events.Recent)
	listeners := []pipeline.Listener{recorder}
	var publisher *events.RedisPublisher
	if config.Events.RedisURL != "" {
		publisher, err = events.NewRedisPublisher(ctx, config.Events.RedisURL, config.Events.Channel, config.Events.Buffer, logger.Named("Events"))
		if err != nil {
			log.Printf("Warning: Redis not available: %v", err)
			publisher = nil
		} else {
			listeners = append(listeners, publisher)
			log.Printf("Publishing events to Redis channel %s", config.Events.Channel)
		}
	}

	orchOpts := pipeline.Options{
		Capture:          source,
		Preprocessor:     buildPreprocessor(config),
		Recognizer:       adapter,
		Delivery:         sink,
		History:          store,
		Listeners:        listeners,
		Freeze:           config.Pipeline.Freeze,
		Settle:           config.Pipeline.Settle,
		PreviewLimit:     config.Pipeline.PreviewLimit,
		Quality:          config.OCR.Quality,
		RecognizeTimeout: config.OCR.Timeout,
		DisplayWidth:     config.Display.Width,
		DisplayHeight:    config.Display.Height,
		Logger:           logger.Named("Pipeline"),
	}
	deps := api.Dependencies{
		Frames:        slot,
		History:       store,
		Events:        recorder,
		Capture:       source,
		Engine:        adapter.Engine(),
		EngineVersion: engineVersion,
	}
	if archive != nil {
		orchOpts.Archive = archive
		deps.Archive = archive
	}
	if publisher != nil {
		deps.Publisher = publisher
	}

	orch, err := pipeline.New(orchOpts)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}
	deps.Scanner = orch

	// Create API handler
	handler := api.NewHandler(config, deps)
	router := handler.SetupRoutes()

	var root http.Handler = router
	if authEnabled {
		router.HandleFunc("/api/login", auth.LoginHandler(config.Auth.Operators)).Methods("POST")
		// Wrap router with JWT middleware (skips /health and /api/login)
		root = auth.JWTMiddleware(router)
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Shutdown does not cancel request contexts; end open event streams.
	srv.RegisterOnShutdown(recorder.Close)

	log.Printf("Starting TextScan Service v%s on %s", api.Version, addr)
	log.Printf("OCR Engine: %s (ready: %v)", config.OCR.Engine, adapter.Ready())
	log.Printf("History: %s", config.History.Backend)
	log.Printf("Database: %v", db.Pool != nil)
	log.Printf("Storage: %v", archive != nil)
	log.Printf("Endpoints:")
	log.Printf("  POST http://%s/api/scan              - Trigger a scan", addr)
	log.Printf("  POST http://%s/api/frames            - Push a camera frame", addr)
	log.Printf("  GET  http://%s/api/state             - Pipeline state", addr)
	log.Printf("  GET  http://%s/api/history           - Copied texts", addr)
	log.Printf("  GET  http://%s/api/events/stream     - Feedback events (SSE)", addr)
	log.Printf("  GET  http://%s/health                - Health check", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
	case err := <-errCh:
		log.Printf("Server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: HTTP shutdown: %v", err)
	}
	if err := orch.Close(); err != nil {
		log.Printf("Warning: pipeline close: %v", err)
	}
	if publisher != nil {
		publisher.Close()
	}
	db.Close()
	log.Println("Stopped")
}

// buildHistory returns the configured store, falling back to memory when
// PostgreSQL cannot be reached.
func buildHistory(ctx context.Context, config *models.Config, logger *logging.Logger) history.Store {
	memory := history.NewMemory(config.History.MaxSize, config.Pipeline.PreviewLimit)
	if config.History.Backend != "postgres" {
		return memory
	}

	// Initialize database connection pool
	if err := db.Init(config.History.DatabaseURL); err != nil {
		log.Printf("Warning: Database not available: %v", err)
		log.Println("Scan history kept in memory")
		return memory
	}
	log.Println("Database connection pool initialized")

	store, err := history.NewPostgres(ctx, config.History.Schema, config.History.MaxSize, config.Pipeline.PreviewLimit, config.OCR.Engine, logger.Named("History"))
	if err != nil {
		log.Printf("Warning: history table not available: %v", err)
		return memory
	}
	return store
}

const defaultFakeText = "TextScan demo: recognized text"

// buildService creates the recognition engine. The returned version func
// feeds the health check.
func buildService(config *models.Config) (ocr.Service, func() (string, error), error) {
	switch config.OCR.Engine {
	case "tesseract":
		tess := tesseract.New(config.OCR.Languages, config.OCR.Variables)
		return tess, func() (string, error) { return tess.Version(), nil }, nil

	case "ai":
		provider, err := createProvider(config)
		if err != nil {
			return nil, nil, err
		}
		return ai.NewExtractor(provider, config.OCR.Languages), nil, nil

	case "fake":
		// Demo mode: every scan recognizes the same scripted text.
		text := config.OCR.FakeText
		if text == "" {
			text = defaultFakeText
		}
		return ocr.NewFakeService(ocr.FakeResponse{Payload: text}), nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported OCR engine: %s", config.OCR.Engine)
	}
}

// createProvider creates the appropriate AI provider
func createProvider(config *models.Config) (ai.Provider, error) {
	switch config.AI.DefaultProvider {
	case "openai":
		if config.AI.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key not configured")
		}
		return ai.NewOpenAIProvider(config.AI.OpenAI.APIKey, config.AI.OpenAI.BaseURL, config.AI.OpenAI.Model), nil

	case "gemini":
		if config.AI.Gemini.APIKey == "" {
			return nil, fmt.Errorf("Gemini API key not configured")
		}
		return ai.NewGeminiProvider(config.AI.Gemini.APIKey, config.AI.Gemini.Model), nil

	case "ollama":
		return ai.NewOllamaProvider(config.AI.Ollama.BaseURL, config.AI.Ollama.Model), nil

	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", config.AI.DefaultProvider)
	}
}

func buildPreprocessor(config *models.Config) *ocr.Preprocessor {
	opts := ocr.PreprocessorOptions{
		MaxWidth:  config.OCR.MaxWidth,
		MaxHeight: config.OCR.MaxHeight,
		Mode:      ocr.Mode(config.OCR.Preprocess),
		Rotation:  config.Capture.Rotation,
	}
	if c := config.Capture.Crop; c != nil {
		opts.Crop = &ocr.Region{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height}
	}
	return ocr.NewPreprocessor(opts)
}

func loadConfig(path string) (*models.Config, error) {
	var config models.Config

	// Read config file
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Parse YAML
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Printf("Warning: %s not found, using defaults", path)
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnv(&config)
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// applyEnv overrides config with environment variables if present
func applyEnv(config *models.Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if engine := os.Getenv("OCR_ENGINE"); engine != "" {
		config.OCR.Engine = engine
	}
	if url := os.Getenv("SNAPSHOT_URL"); url != "" {
		config.Capture.SnapshotURL = url
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.AI.OpenAI.APIKey = apiKey
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.AI.Gemini.APIKey = apiKey
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.AI.Ollama.BaseURL = baseURL
	}
	if provider := os.Getenv("AI_PROVIDER"); provider != "" {
		config.AI.DefaultProvider = provider
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.AI.OpenAI.BaseURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.AI.OpenAI.Model = model
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.AI.Gemini.Model = model
	}
	if backend := os.Getenv("HISTORY_BACKEND"); backend != "" {
		config.History.Backend = backend
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.History.DatabaseURL = url
	}
	if backend := os.Getenv("CLIPBOARD_BACKEND"); backend != "" {
		config.Clipboard.Backend = backend
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		config.Events.RedisURL = url
	}
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		config.Storage.Endpoint = endpoint
	}
	if key := os.Getenv("MINIO_ACCESS_KEY"); key != "" {
		config.Storage.AccessKey = key
	}
	if secret := os.Getenv("MINIO_SECRET_KEY"); secret != "" {
		config.Storage.SecretKey = secret
	}
	if bucket := os.Getenv("MINIO_BUCKET"); bucket != "" {
		config.Storage.Bucket = bucket
	}
	if os.Getenv("MINIO_USE_SSL") == "true" {
		config.Storage.UseSSL = true
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
}
