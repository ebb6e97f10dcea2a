package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/facturaIA/textscan-service/internal/auth"
	"github.com/facturaIA/textscan-service/internal/capture"
	"github.com/facturaIA/textscan-service/internal/db"
	"github.com/facturaIA/textscan-service/internal/events"
	"github.com/facturaIA/textscan-service/internal/history"
	"github.com/facturaIA/textscan-service/internal/imaging"
	"github.com/facturaIA/textscan-service/internal/models"
	"github.com/facturaIA/textscan-service/internal/pipeline"
)

const (
	MaxUploadSize = 32 * 1024 * 1024 // 32MB, a raw 4K RGBA frame fits
	Version       = "1.0.0"
)

// Scanner is the pipeline surface the API drives.
type Scanner interface {
	Trigger() bool
	State() pipeline.State
	LastOutcome() (pipeline.Outcome, bool)
}

// FrameSink accepts frames pushed by a camera client.
type FrameSink interface {
	Push(buf *imaging.PixelBuffer) error
	Stats() capture.SlotStats
}

// FrameLinker resolves archived frames.
type FrameLinker interface {
	PresignedURL(ctx context.Context, cycleID string) (string, error)
	Check(ctx context.Context) error
	Bucket() string
}

// EventPublisher reports delivery counters of an external event feed.
type EventPublisher interface {
	Stats() (published, dropped uint64)
}

// CaptureProbe reports whether a frame acquisition is outstanding.
type CaptureProbe interface {
	Busy() bool
}

// Dependencies are the components behind the routes. Frames, Archive and
// Events may be nil; their routes then answer 503.
type Dependencies struct {
	Scanner Scanner
	Frames  FrameSink
	History history.Store
	Events  *events.Recorder
	Archive FrameLinker
	// Publisher and Capture only feed /health and may be nil.
	Publisher EventPublisher
	Capture   CaptureProbe
	Engine    string
	// EngineVersion reports the OCR engine build, or an error when it
	// cannot be loaded.
	EngineVersion func() (string, error)
}

// Handler handles HTTP requests for the scan service
type Handler struct {
	config *models.Config
	deps   Dependencies
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, deps Dependencies) *Handler {
	return &Handler{
		config: config,
		deps:   deps,
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Scan cycle
	router.HandleFunc("/api/scan", h.TriggerScan).Methods("POST")
	router.HandleFunc("/api/scan/last", h.LastScan).Methods("GET")
	router.HandleFunc("/api/state", h.GetState).Methods("GET")

	// Frames
	router.HandleFunc("/api/frames", h.PushFrame).Methods("POST")
	router.HandleFunc("/api/frames/{cycleId}/url", h.GetFrameURL).Methods("GET")

	// History
	router.HandleFunc("/api/history", h.GetHistory).Methods("GET")
	router.HandleFunc("/api/history/stats", h.GetHistoryStats).Methods("GET")
	router.HandleFunc("/api/history/{id}", h.GetHistoryEntry).Methods("GET")
	router.HandleFunc("/api/history/{id}", h.DeleteHistoryEntry).Methods("DELETE")

	// Feedback events
	router.HandleFunc("/api/events", h.GetEvents).Methods("GET")
	router.HandleFunc("/api/events/stream", h.StreamEvents).Methods("GET")

	// Operator
	router.HandleFunc("/api/me", h.Me).Methods("GET")

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	return router
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string             `json:"status"`
	Version   string             `json:"version"`
	Timestamp string             `json:"timestamp"`
	Uptime    string             `json:"uptime"`
	State     pipeline.State     `json:"state"`
	Memory    MemoryStats        `json:"memory"`
	OCR       ServiceStatus      `json:"ocr"`
	Database  ServiceStatus      `json:"database"`
	Storage   ServiceStatus      `json:"storage"`
	Frames    *capture.SlotStats `json:"frames,omitempty"`
	Capture   *CaptureStatus     `json:"capture,omitempty"`
	Events    *EventStats        `json:"events,omitempty"`
}

// CaptureStatus reports the capture source.
type CaptureStatus struct {
	Busy bool `json:"busy"`
}

// EventStats reports feedback feed counters. Redis fields are set only when
// a publisher is configured.
type EventStats struct {
	StreamDropped  uint64  `json:"streamDropped"`
	RedisPublished *uint64 `json:"redisPublished,omitempty"`
	RedisDropped   *uint64 `json:"redisDropped,omitempty"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	System    string `json:"system"`
}

var startTime = time.Now()

// Health endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ocrStatus := h.checkOCR()
	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		State:     h.deps.Scanner.State(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		OCR:      ocrStatus,
		Database: h.checkDatabase(ctx),
		Storage:  h.checkStorage(ctx),
	}
	if h.deps.Frames != nil {
		stats := h.deps.Frames.Stats()
		response.Frames = &stats
	}
	if h.deps.Capture != nil {
		response.Capture = &CaptureStatus{Busy: h.deps.Capture.Busy()}
	}
	if h.deps.Events != nil {
		response.Events = &EventStats{StreamDropped: h.deps.Events.Dropped()}
		if h.deps.Publisher != nil {
			published, dropped := h.deps.Publisher.Stats()
			response.Events.RedisPublished = &published
			response.Events.RedisDropped = &dropped
		}
	}

	// The recognizer is the only critical dependency
	if !ocrStatus.Available {
		response.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// checkOCR verifies the recognition engine can be loaded
func (h *Handler) checkOCR() ServiceStatus {
	if h.deps.Engine == "" {
		return ServiceStatus{Available: false, Error: "recognizer not initialized"}
	}
	if h.deps.EngineVersion == nil {
		return ServiceStatus{Available: true, Version: h.deps.Engine}
	}
	version, err := h.deps.EngineVersion()
	if err != nil {
		return ServiceStatus{Available: false, Error: err.Error()}
	}
	return ServiceStatus{Available: true, Version: h.deps.Engine + " " + version}
}

// checkDatabase verifies PostgreSQL connection
func (h *Handler) checkDatabase(ctx context.Context) ServiceStatus {
	if db.Pool == nil {
		return ServiceStatus{Available: false, Error: "database pool not initialized"}
	}
	if err := db.Ping(ctx); err != nil {
		return ServiceStatus{Available: false, Error: err.Error()}
	}
	return ServiceStatus{Available: true, Version: "PostgreSQL"}
}

// checkStorage verifies MinIO connection
func (h *Handler) checkStorage(ctx context.Context) ServiceStatus {
	if h.deps.Archive == nil {
		return ServiceStatus{Available: false, Error: "storage client not initialized"}
	}
	if err := h.deps.Archive.Check(ctx); err != nil {
		return ServiceStatus{Available: false, Error: err.Error()}
	}
	return ServiceStatus{Available: true, Version: "MinIO S3 bucket " + h.deps.Archive.Bucket()}
}

// Me returns the operator behind the request token
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	claims, err := auth.GetClaimsFromContext(r.Context())
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	resp := map[string]interface{}{
		"username": claims.Username,
		"role":     claims.Role,
	}
	if claims.ExpiresAt != nil {
		resp["expiresAt"] = claims.ExpiresAt.Time
	}
	json.NewEncoder(w).Encode(resp)
}

// TriggerScan starts a scan cycle. It answers 202 when the cycle starts and
// 409 when one is already running.
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !h.deps.Scanner.Trigger() {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(models.TriggerResponse{
			Accepted: false,
			State:    h.deps.Scanner.State(),
			Error:    "scan already in progress",
		})
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(models.TriggerResponse{
		Accepted: true,
		State:    h.deps.Scanner.State(),
	})
}

// LastScan returns the outcome of the most recent finished cycle
func (h *Handler) LastScan(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	out, ok := h.deps.Scanner.LastOutcome()
	if !ok {
		h.sendError(w, http.StatusNotFound, "no scan has completed yet")
		return
	}
	json.NewEncoder(w).Encode(out)
}

// GetState returns the current pipeline state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	resp := models.StateResponse{State: h.deps.Scanner.State()}
	if out, ok := h.deps.Scanner.LastOutcome(); ok {
		resp.LastCycle = out.CycleID
	}
	if h.deps.Frames != nil {
		stats := h.deps.Frames.Stats()
		resp.Frames = &stats
	}
	json.NewEncoder(w).Encode(resp)
}

// PushFrame stores the latest camera frame. The body is an encoded image,
// or raw samples when Content-Type is application/octet-stream and the
// width, height and format query parameters are set.
func (h *Handler) PushFrame(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.deps.Frames == nil {
		h.sendError(w, http.StatusServiceUnavailable, "frame push not enabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		h.sendError(w, http.StatusRequestEntityTooLarge, "frame too large")
		return
	}

	buf, err := decodeFrame(r, data, h.config.Capture.MaxPixels)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.deps.Frames.Push(buf); err != nil {
		h.sendError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"width":   buf.Width,
		"height":  buf.Height,
	})
}

func decodeFrame(r *http.Request, data []byte, maxPixels int) (*imaging.PixelBuffer, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/octet-stream") {
		buf, _, err := imaging.DecodeWithin(data, maxPixels)
		return buf, err
	}

	q := r.URL.Query()
	width, err := strconv.Atoi(q.Get("width"))
	if err != nil {
		return nil, fmt.Errorf("width query parameter required for raw frames")
	}
	height, err := strconv.Atoi(q.Get("height"))
	if err != nil {
		return nil, fmt.Errorf("height query parameter required for raw frames")
	}
	format := imaging.FormatRGB
	switch strings.ToLower(q.Get("format")) {
	case "", "rgb":
	case "rgba":
		format = imaging.FormatRGBA
	default:
		return nil, fmt.Errorf("unsupported raw format %q", q.Get("format"))
	}
	return imaging.FromRaw(width, height, format, data)
}

// GetFrameURL returns a presigned link to a cycle's archived frame
func (h *Handler) GetFrameURL(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.deps.Archive == nil {
		h.sendError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	cycleID := mux.Vars(r)["cycleId"]
	url, err := h.deps.Archive.PresignedURL(r.Context(), cycleID)
	if err != nil {
		h.sendError(w, http.StatusNotFound, err.Error())
		return
	}

	json.NewEncoder(w).Encode(models.FrameURLResponse{
		CycleID:   cycleID,
		URL:       url,
		ExpiresAt: time.Now().Add(h.config.Storage.URLExpiry),
	})
}

// GetEvents returns recent feedback events after the optional since cursor
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.deps.Events == nil {
		h.sendError(w, http.StatusServiceUnavailable, "event feed not enabled")
		return
	}

	var since uint64
	if s := r.URL.Query().Get("since"); s != "" {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "invalid since")
			return
		}
		since = val
	}

	records := h.deps.Events.Since(since)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"events": records,
		"count":  len(records),
	})
}

// StreamEvents pushes feedback events as server-sent events until the
// client disconnects.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.deps.Events == nil {
		w.Header().Set("Content-Type", "application/json")
		h.sendError(w, http.StatusServiceUnavailable, "event feed not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		h.sendError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, cancel := h.deps.Events.Subscribe(32)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case rec, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", rec.Seq, rec.Kind, data)
			flusher.Flush()
		}
	}
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
