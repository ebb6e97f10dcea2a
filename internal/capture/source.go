// Package capture acquires a single frame on demand from the capture
// environment. At most one capture is outstanding at a time; a primary
// strategy is tried first and a fallback strategy second.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/facturaIA/textscan-service/internal/errors"
	"github.com/facturaIA/textscan-service/internal/imaging"
	"github.com/facturaIA/textscan-service/internal/logging"
)

// DefaultTimeout bounds a single Capture call when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Strategy produces one frame. Returned buffers must not be shared with the
// strategy afterwards.
type Strategy interface {
	Name() string
	Acquire(ctx context.Context) (*imaging.PixelBuffer, error)
}

// Options configures a Source.
type Options struct {
	Primary  Strategy
	Fallback Strategy
	Timeout  time.Duration
	Logger   *logging.Logger
}

// Source is the single-outstanding capture front end.
type Source struct {
	primary  Strategy
	fallback Strategy
	timeout  time.Duration
	log      *logging.Logger

	busy      atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewSource creates a capture source. A primary strategy is required.
func NewSource(opts Options) (*Source, error) {
	if opts.Primary == nil {
		return nil, fmt.Errorf("capture: primary strategy is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Source{
		primary:  opts.Primary,
		fallback: opts.Fallback,
		timeout:  opts.Timeout,
		log:      log,
	}, nil
}

// Capture returns an independent copy of the current frame. A call made
// while another is in flight fails immediately with Busy.
func (s *Source) Capture(ctx context.Context) (*imaging.PixelBuffer, error) {
	if s.closed.Load() {
		return nil, apperrors.New(apperrors.CaptureFailed, "capture source closed")
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, apperrors.New(apperrors.Busy, "capture already in progress")
	}
	defer s.busy.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	buf, primaryErr := s.acquire(ctx, s.primary)
	if primaryErr == nil {
		return buf, nil
	}
	s.log.Warn("primary capture failed", "strategy", s.primary.Name(), "error", primaryErr)

	if s.fallback == nil {
		return nil, apperrors.Wrap(apperrors.CaptureFailed, "camera frame unavailable", primaryErr)
	}
	buf, fallbackErr := s.acquire(ctx, s.fallback)
	if fallbackErr == nil {
		s.log.Info("fallback capture succeeded", "strategy", s.fallback.Name())
		return buf, nil
	}
	s.log.Warn("fallback capture failed", "strategy", s.fallback.Name(), "error", fallbackErr)
	return nil, apperrors.Wrap(apperrors.CaptureFailed, "camera frame unavailable", errors.Join(primaryErr, fallbackErr))
}

func (s *Source) acquire(ctx context.Context, strategy Strategy) (*imaging.PixelBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf, err := strategy.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strategy.Name(), err)
	}
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", strategy.Name(), err)
	}
	return buf, nil
}

// Busy reports whether a capture is outstanding.
func (s *Source) Busy() bool { return s.busy.Load() }

// Close releases strategy resources. Later captures fail with CaptureFailed.
func (s *Source) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		for _, st := range []Strategy{s.primary, s.fallback} {
			if c, ok := st.(io.Closer); ok {
				if err := c.Close(); err != nil {
					errs = append(errs, fmt.Errorf("close %s: %w", st.Name(), err))
				}
			}
		}
	})
	return errors.Join(errs...)
}
