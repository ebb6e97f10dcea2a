package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/facturaIA/textscan-service/internal/imaging"
)

var (
	// ErrNoFrame means nothing has been pushed yet.
	ErrNoFrame = errors.New("no frame pushed yet")
	// ErrSlotClosed is returned after Close.
	ErrSlotClosed = errors.New("frame slot closed")
)

// FrameSlot holds the most recent frame pushed by the capture environment.
// A new frame overwrites the previous one; overwritten frames are counted as
// drops.
type FrameSlot struct {
	mu       sync.Mutex
	frame    *imaging.PixelBuffer
	pushedAt time.Time
	maxAge   time.Duration
	closed   bool

	pushes uint64
	drops  uint64
	now    func() time.Time
}

// SlotStats is a point-in-time view of the slot.
type SlotStats struct {
	HasFrame bool      `json:"hasFrame"`
	Width    int       `json:"width,omitempty"`
	Height   int       `json:"height,omitempty"`
	PushedAt time.Time `json:"pushedAt,omitempty"`
	Pushes   uint64    `json:"pushes"`
	Drops    uint64    `json:"drops"`
}

// NewFrameSlot creates a slot. Frames older than maxAge are refused by
// Acquire; zero disables the age check.
func NewFrameSlot(maxAge time.Duration) *FrameSlot {
	return &FrameSlot{maxAge: maxAge, now: time.Now}
}

func (f *FrameSlot) Name() string { return "frame-slot" }

// Push stores buf as the current frame. The slot takes ownership of buf.
func (f *FrameSlot) Push(buf *imaging.PixelBuffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrSlotClosed
	}
	if f.frame != nil {
		f.drops++
	}
	f.pushes++
	f.frame = buf
	f.pushedAt = f.now()
	return nil
}

// Acquire returns a copy of the current frame.
func (f *FrameSlot) Acquire(ctx context.Context) (*imaging.PixelBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.closed:
		return nil, ErrSlotClosed
	case f.frame == nil:
		return nil, ErrNoFrame
	}
	if f.maxAge > 0 {
		if age := f.now().Sub(f.pushedAt); age > f.maxAge {
			return nil, fmt.Errorf("latest frame is stale (%s old)", age.Round(time.Millisecond))
		}
	}
	return f.frame.Clone(), nil
}

// Stats reports slot occupancy and counters.
func (f *FrameSlot) Stats() SlotStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := SlotStats{Pushes: f.pushes, Drops: f.drops}
	if f.frame != nil {
		st.HasFrame = true
		st.Width, st.Height = f.frame.Width, f.frame.Height
		st.PushedAt = f.pushedAt
	}
	return st
}

// Close drops the held frame. Further pushes fail.
func (f *FrameSlot) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.frame = nil
	return nil
}
