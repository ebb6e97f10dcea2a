package capture

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/facturaIA/textscan-service/internal/errors"
	"github.com/facturaIA/textscan-service/internal/imaging"
)

type funcStrategy struct {
	name   string
	fn     func(ctx context.Context) (*imaging.PixelBuffer, error)
	closed bool
}

func (f *funcStrategy) Name() string { return f.name }
func (f *funcStrategy) Acquire(ctx context.Context) (*imaging.PixelBuffer, error) {
	return f.fn(ctx)
}
func (f *funcStrategy) Close() error {
	f.closed = true
	return nil
}

func failing(name string) *funcStrategy {
	return &funcStrategy{name: name, fn: func(context.Context) (*imaging.PixelBuffer, error) {
		return nil, errors.New(name + " down")
	}}
}

func TestNewSourceRequiresPrimary(t *testing.T) {
	if _, err := NewSource(Options{}); err == nil {
		t.Fatalf("expected error without a primary strategy")
	}
}

func TestCaptureBusyWhileOutstanding(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	slow := &funcStrategy{name: "slow", fn: func(ctx context.Context) (*imaging.PixelBuffer, error) {
		close(entered)
		<-release
		return imaging.New(2, 2, imaging.FormatRGB), nil
	}}
	src, _ := NewSource(Options{Primary: slow})

	done := make(chan error, 1)
	go func() {
		_, err := src.Capture(context.Background())
		done <- err
	}()
	<-entered

	if _, err := src.Capture(context.Background()); !apperrors.HasCode(err, apperrors.Busy) {
		t.Fatalf("second capture error = %v, want Busy", err)
	}
	if !src.Busy() {
		t.Fatalf("Busy() = false during capture")
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first capture error = %v", err)
	}
	if src.Busy() {
		t.Fatalf("Busy() = true after capture finished")
	}
}

func TestCaptureFallsBack(t *testing.T) {
	slot := NewFrameSlot(0)
	_ = slot.Push(imaging.New(3, 2, imaging.FormatRGB))
	src, _ := NewSource(Options{Primary: failing("primary"), Fallback: slot})

	buf, err := src.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if buf.Width != 3 || buf.Height != 2 {
		t.Fatalf("got %dx%d", buf.Width, buf.Height)
	}
}

func TestCaptureBothFail(t *testing.T) {
	src, _ := NewSource(Options{Primary: failing("primary"), Fallback: failing("fallback")})
	_, err := src.Capture(context.Background())
	if !apperrors.HasCode(err, apperrors.CaptureFailed) {
		t.Fatalf("error = %v, want CaptureFailed", err)
	}
}

func TestCaptureRejectsInvalidFrame(t *testing.T) {
	bad := &funcStrategy{name: "bad", fn: func(context.Context) (*imaging.PixelBuffer, error) {
		return &imaging.PixelBuffer{Width: 2, Height: 2}, nil
	}}
	src, _ := NewSource(Options{Primary: bad})
	if _, err := src.Capture(context.Background()); !apperrors.HasCode(err, apperrors.CaptureFailed) {
		t.Fatalf("error = %v, want CaptureFailed", err)
	}
}

func TestCaptureTimeout(t *testing.T) {
	hang := &funcStrategy{name: "hang", fn: func(ctx context.Context) (*imaging.PixelBuffer, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	src, _ := NewSource(Options{Primary: hang, Timeout: 20 * time.Millisecond})
	start := time.Now()
	if _, err := src.Capture(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded in chain", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not applied")
	}
}

func TestCaptureReturnsIndependentCopies(t *testing.T) {
	slot := NewFrameSlot(0)
	_ = slot.Push(imaging.New(2, 2, imaging.FormatRGB))
	src, _ := NewSource(Options{Primary: slot})

	a, _ := src.Capture(context.Background())
	b, _ := src.Capture(context.Background())
	a.Data[0] = 99
	if b.Data[0] == 99 {
		t.Fatalf("captures share storage")
	}
}

func TestCloseReleasesStrategies(t *testing.T) {
	primary := failing("primary")
	slot := NewFrameSlot(0)
	_ = slot.Push(imaging.New(1, 1, imaging.FormatRGB))
	src, _ := NewSource(Options{Primary: primary, Fallback: slot})

	if err := src.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !primary.closed {
		t.Fatalf("primary strategy not closed")
	}
	if slot.Stats().HasFrame {
		t.Fatalf("slot still holds a frame")
	}
	if _, err := src.Capture(context.Background()); !apperrors.HasCode(err, apperrors.CaptureFailed) {
		t.Fatalf("capture after close = %v", err)
	}
}

func TestFrameSlotStaleAndDrops(t *testing.T) {
	slot := NewFrameSlot(time.Second)
	now := time.Unix(1000, 0)
	slot.now = func() time.Time { return now }

	if _, err := slot.Acquire(context.Background()); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("empty slot error = %v", err)
	}
	_ = slot.Push(imaging.New(1, 1, imaging.FormatRGB))
	_ = slot.Push(imaging.New(2, 1, imaging.FormatRGB))
	if st := slot.Stats(); st.Pushes != 2 || st.Drops != 1 || st.Width != 2 {
		t.Fatalf("stats = %+v", st)
	}

	now = now.Add(2 * time.Second)
	if _, err := slot.Acquire(context.Background()); err == nil {
		t.Fatalf("stale frame accepted")
	}
	if err := slot.Push(&imaging.PixelBuffer{}); !apperrors.HasCode(err, apperrors.InvalidInput) {
		t.Fatalf("invalid push error = %v", err)
	}
}

func TestSnapshotStrategy(t *testing.T) {
	frame := imaging.New(4, 3, imaging.FormatRGB)
	png, _ := imaging.EncodePNG(frame)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	s := NewSnapshotStrategy(srv.URL+"/snap.png", nil, time.Second)
	buf, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !buf.Equal(frame) {
		t.Fatalf("decoded frame differs")
	}

	if _, err := NewSnapshotStrategy(srv.URL+"/missing", nil, time.Second).Acquire(context.Background()); err == nil {
		t.Fatalf("expected HTTP error")
	}
	_ = s.Close()
}

func TestSnapshotOverPixelBudget(t *testing.T) {
	png, _ := imaging.EncodePNG(imaging.New(20, 20, imaging.FormatRGB))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	snap := NewSnapshotStrategy(srv.URL, nil, time.Second)
	snap.MaxPixels = 100
	if _, err := snap.Acquire(context.Background()); !apperrors.HasCode(err, apperrors.InvalidInput) {
		t.Fatalf("Acquire() error = %v, want InvalidInput", err)
	}

	src, _ := NewSource(Options{Primary: failing("primary"), Fallback: snap})
	if _, err := src.Capture(context.Background()); !apperrors.HasCode(err, apperrors.CaptureFailed) {
		t.Fatalf("Capture() error = %v, want CaptureFailed", err)
	}
}
