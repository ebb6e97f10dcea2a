package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/facturaIA/textscan-service/internal/imaging"
)

// maxSnapshotBytes caps a single snapshot download.
const maxSnapshotBytes = 32 << 20

// SnapshotStrategy fetches a still image from a camera's HTTP snapshot URL.
type SnapshotStrategy struct {
	url    string
	client *http.Client

	// MaxPixels bounds the decoded frame; zero means imaging.DefaultMaxPixels.
	MaxPixels int
}

// NewSnapshotStrategy creates a snapshot strategy. A nil client gets a
// default one with the given timeout.
func NewSnapshotStrategy(url string, client *http.Client, timeout time.Duration) *SnapshotStrategy {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &SnapshotStrategy{url: url, client: client}
}

func (s *SnapshotStrategy) Name() string { return "snapshot" }

// Acquire downloads and decodes one frame.
func (s *SnapshotStrategy) Acquire(ctx context.Context) (*imaging.PixelBuffer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("snapshot HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) > maxSnapshotBytes {
		return nil, fmt.Errorf("snapshot exceeds %d bytes", maxSnapshotBytes)
	}
	buf, _, err := imaging.DecodeWithin(data, s.MaxPixels)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Close drops idle keep-alive connections.
func (s *SnapshotStrategy) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
