package ocr

import (
	"context"
	"sync"
	"time"
)

// FakeResponse is one scripted reply.
type FakeResponse struct {
	Payload string
	Err     error
}

// FakeService replays scripted responses in order, repeating the last one.
// With no script it answers with an empty string.
type FakeService struct {
	mu        sync.Mutex
	responses []FakeResponse
	calls     int
	lastImage []byte

	// Delay is slept (honouring ctx) before answering.
	Delay time.Duration
}

// NewFakeService creates a fake recognizer.
func NewFakeService(responses ...FakeResponse) *FakeService {
	return &FakeService{responses: responses}
}

// Name returns "fake".
func (f *FakeService) Name() string { return "fake" }

// Recognize returns the next scripted response.
func (f *FakeService) Recognize(ctx context.Context, image []byte, format ImageFormat) (string, error) {
	if f.Delay > 0 {
		t := time.NewTimer(f.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastImage = append(f.lastImage[:0], image...)
	f.calls++
	if len(f.responses) == 0 {
		return "", nil
	}
	i := f.calls - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	r := f.responses[i]
	return r.Payload, r.Err
}

// Calls reports how many times Recognize ran.
func (f *FakeService) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastImage returns a copy of the most recent encoded image.
func (f *FakeService) LastImage() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.lastImage...)
}
