package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/facturaIA/textscan-service/internal/auth"
	"github.com/facturaIA/textscan-service/internal/capture"
	"github.com/facturaIA/textscan-service/internal/events"
	"github.com/facturaIA/textscan-service/internal/history"
	"github.com/facturaIA/textscan-service/internal/imaging"
	"github.com/facturaIA/textscan-service/internal/models"
	"github.com/facturaIA/textscan-service/internal/pipeline"
)

type fakeScanner struct {
	accept bool
	state  pipeline.State
	last   *pipeline.Outcome
}

func (f *fakeScanner) Trigger() bool         { return f.accept }
func (f *fakeScanner) State() pipeline.State { return f.state }
func (f *fakeScanner) LastOutcome() (pipeline.Outcome, bool) {
	if f.last == nil {
		return pipeline.Outcome{}, false
	}
	return *f.last, true
}

type fakeLinker struct{ urls map[string]string }

func (f *fakeLinker) PresignedURL(_ context.Context, id string) (string, error) {
	if u, ok := f.urls[id]; ok {
		return u, nil
	}
	return "", errors.New("no archived frame for cycle " + id)
}

func (f *fakeLinker) Check(context.Context) error { return nil }
func (f *fakeLinker) Bucket() string              { return "scan-frames" }

type fakePublisher struct{ published, dropped uint64 }

func (f fakePublisher) Stats() (uint64, uint64) { return f.published, f.dropped }

type fakeCapture struct{ busy bool }

func (f fakeCapture) Busy() bool { return f.busy }

type testServer struct {
	scanner *fakeScanner
	frames  *capture.FrameSlot
	history *history.Memory
	events  *events.Recorder
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &models.Config{}
	cfg.ApplyDefaults()
	ts := &testServer{
		scanner: &fakeScanner{accept: true, state: pipeline.Idle},
		frames:  capture.NewFrameSlot(time.Minute),
		history: history.NewMemory(10, 50),
		events:  events.NewRecorder(16),
	}
	h := NewHandler(cfg, Dependencies{
		Scanner: ts.scanner,
		Frames:  ts.frames,
		History: ts.history,
		Events:  ts.events,
		Archive: &fakeLinker{urls: map[string]string{"c1": "http://minio/frames/c1.png?sig"}},
		Engine:  "fake",
	})
	ts.router = h.SetupRoutes()
	return ts
}

func (ts *testServer) do(method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestTriggerScan(t *testing.T) {
	ts := newTestServer(t)
	if rec := ts.do(http.MethodPost, "/api/scan", nil, ""); rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	ts.scanner.accept = false
	ts.scanner.state = pipeline.Processing
	rec := ts.do(http.MethodPost, "/api/scan", nil, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp models.TriggerResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Accepted || resp.State != pipeline.Processing {
		t.Fatalf("response = %+v", resp)
	}
}

func TestLastScanAndState(t *testing.T) {
	ts := newTestServer(t)
	if rec := ts.do(http.MethodGet, "/api/scan/last", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	ts.scanner.last = &pipeline.Outcome{CycleID: "c1", State: pipeline.Copied, Text: "hello"}
	rec := ts.do(http.MethodGet, "/api/scan/last", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"state":"copied"`) {
		t.Fatalf("last = %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(http.MethodGet, "/api/state", nil, "")
	var st models.StateResponse
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.State != pipeline.Idle || st.LastCycle != "c1" || st.Frames == nil {
		t.Fatalf("state = %+v", st)
	}
}

func TestPushFrame(t *testing.T) {
	ts := newTestServer(t)

	png, err := imaging.EncodePNG(imaging.New(4, 3, imaging.FormatRGB))
	if err != nil {
		t.Fatal(err)
	}
	if rec := ts.do(http.MethodPost, "/api/frames", png, "image/png"); rec.Code != http.StatusAccepted {
		t.Fatalf("encoded push = %d %s", rec.Code, rec.Body.String())
	}
	if st := ts.frames.Stats(); !st.HasFrame || st.Width != 4 || st.Height != 3 {
		t.Fatalf("slot stats = %+v", st)
	}

	raw := make([]byte, 2*2*4)
	if rec := ts.do(http.MethodPost, "/api/frames?width=2&height=2&format=rgba", raw, "application/octet-stream"); rec.Code != http.StatusAccepted {
		t.Fatalf("raw push = %d %s", rec.Code, rec.Body.String())
	}

	tests := []struct {
		name string
		path string
		body []byte
		ct   string
	}{
		{"garbage image", "/api/frames", []byte("nope"), "image/png"},
		{"raw without dims", "/api/frames", raw, "application/octet-stream"},
		{"raw short", "/api/frames?width=3&height=3", raw, "application/octet-stream"},
		{"raw bad format", "/api/frames?width=2&height=2&format=yuv", raw, "application/octet-stream"},
		{"raw overflowing dims", "/api/frames?width=4294967296&height=4294967296", nil, "application/octet-stream"},
		{"declared oversize png", "/api/frames", hugePNG(t, 60000, 60000), "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := ts.do(http.MethodPost, tt.path, tt.body, tt.ct); rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
	if st := ts.frames.Stats(); st.Width != 2 || st.Height != 2 {
		t.Fatalf("rejected push replaced the slot frame: %+v", st)
	}
}

// hugePNG returns a tiny PNG whose header claims w x h pixels.
func hugePNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data, err := imaging.EncodePNG(imaging.New(1, 1, imaging.FormatRGB))
	if err != nil {
		t.Fatal(err)
	}
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestHistoryRoutes(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	for _, text := range []string{"first", "second", "third"} {
		if err := ts.history.Append(ctx, text); err != nil {
			t.Fatal(err)
		}
	}

	rec := ts.do(http.MethodGet, "/api/history?limit=2&page=1", nil, "")
	var list models.HistoryListResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 3 || len(list.Entries) != 2 || list.Entries[0].Text != "third" {
		t.Fatalf("list = %+v", list)
	}

	id := list.Entries[0].ID
	if rec := ts.do(http.MethodGet, "/api/history/"+id, nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
	if rec := ts.do(http.MethodDelete, "/api/history/"+id, nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/api/history/"+id, nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", rec.Code)
	}
	if rec := ts.do(http.MethodDelete, "/api/history/"+id, nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d", rec.Code)
	}

	rec = ts.do(http.MethodGet, "/api/history/stats", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":2`) {
		t.Fatalf("stats = %d %s", rec.Code, rec.Body.String())
	}
}

func TestFrameURL(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/frames/c1/url", nil, "")
	var resp models.FrameURLResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if rec.Code != http.StatusOK || resp.URL == "" || resp.CycleID != "c1" {
		t.Fatalf("frame url = %d %+v", rec.Code, resp)
	}
	if rec := ts.do(http.MethodGet, "/api/frames/zz/url", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown cycle = %d", rec.Code)
	}
}

func TestEventsSince(t *testing.T) {
	ts := newTestServer(t)
	ts.events.OnEvent(pipeline.Event{Kind: pipeline.EventStateChanged, State: pipeline.Capturing})
	ts.events.OnEvent(pipeline.Event{Kind: pipeline.EventToast, Message: "Copied"})

	rec := ts.do(http.MethodGet, "/api/events?since=1", nil, "")
	var resp struct {
		Events []events.Record `json:"events"`
		Count  int             `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Events[0].Message != "Copied" {
		t.Fatalf("events = %+v", resp)
	}
	if rec := ts.do(http.MethodGet, "/api/events?since=x", nil, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad cursor = %d", rec.Code)
	}
}

func TestStreamEvents(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	ts.events.OnEvent(pipeline.Event{Kind: pipeline.EventHapticSuccess, CycleID: "c9"})

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	if len(lines) != 3 || lines[1] != "event: haptic_success" || !strings.Contains(lines[2], `"cycleId":"c9"`) {
		t.Fatalf("frame = %q", lines)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/health", nil, "")
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || resp.Status != "healthy" || !resp.OCR.Available {
		t.Fatalf("health = %d %+v", rec.Code, resp)
	}
	if resp.Database.Available || !resp.Storage.Available || !strings.Contains(resp.Storage.Version, "scan-frames") {
		t.Fatalf("dependency status = %+v / %+v", resp.Database, resp.Storage)
	}
	if resp.Events == nil || resp.Events.RedisPublished != nil || resp.Capture != nil {
		t.Fatalf("optional sections = %+v / %+v", resp.Events, resp.Capture)
	}

	cfg := &models.Config{}
	cfg.ApplyDefaults()
	h := NewHandler(cfg, Dependencies{
		Scanner:       ts.scanner,
		History:       ts.history,
		Engine:        "tesseract",
		EngineVersion: func() (string, error) { return "", errors.New("libtesseract not found") },
	})
	rec = httptest.NewRecorder()
	h.SetupRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "degraded") {
		t.Fatalf("degraded health = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.SetupRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("events without recorder = %d", rec.Code)
	}
}

func TestHealthReportsFeedAndCapture(t *testing.T) {
	cfg := &models.Config{}
	cfg.ApplyDefaults()
	recorder := events.NewRecorder(4)
	_, cancel := recorder.Subscribe(1)
	defer cancel()
	recorder.OnEvent(pipeline.Event{Kind: pipeline.EventToast})
	recorder.OnEvent(pipeline.Event{Kind: pipeline.EventToast})

	h := NewHandler(cfg, Dependencies{
		Scanner:   &fakeScanner{state: pipeline.Capturing},
		Events:    recorder,
		Publisher: fakePublisher{published: 7, dropped: 2},
		Capture:   fakeCapture{busy: true},
		Engine:    "fake",
	})
	rec := httptest.NewRecorder()
	h.SetupRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Capture == nil || !resp.Capture.Busy {
		t.Fatalf("capture = %+v", resp.Capture)
	}
	ev := resp.Events
	if ev == nil || ev.StreamDropped != 1 || ev.RedisPublished == nil || *ev.RedisPublished != 7 || *ev.RedisDropped != 2 {
		t.Fatalf("events = %+v", ev)
	}
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)
	if rec := ts.do(http.MethodGet, "/api/me", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d, want 401", rec.Code)
	}

	if err := auth.Init("api-test-secret-0123456789", time.Hour); err != nil {
		t.Fatal(err)
	}
	token, err := auth.GenerateToken("ana", "operator")
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	auth.JWTMiddleware(ts.router).ServeHTTP(rec, req)

	var resp map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&resp)
	if rec.Code != http.StatusOK || resp["username"] != "ana" || resp["role"] != "operator" {
		t.Fatalf("me = %d %v", rec.Code, resp)
	}
}

func TestStreamEventsEndsOnRecorderClose(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()

	ts.events.Close()
	if _, err := io.ReadAll(resp.Body); err != nil {
		t.Fatalf("stream did not end cleanly: %v", err)
	}
}
