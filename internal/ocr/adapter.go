package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/facturaIA/textscan-service/internal/errors"
	"github.com/facturaIA/textscan-service/internal/imaging"
	"github.com/facturaIA/textscan-service/internal/logging"
)

// AdapterOptions configures an Adapter.
type AdapterOptions struct {
	// MinConfidence is advisory: blocks below it are counted and logged, never dropped.
	MinConfidence float64
	Logger        *logging.Logger
}

// Adapter wraps a Service and normalizes whatever it returns into a
// RecognitionResult. It never returns an error and never panics.
type Adapter struct {
	service       Service
	minConfidence float64
	log           *logging.Logger
}

// NewAdapter creates an adapter. A nil service is allowed; every call then
// reports RecognizerUnavailable.
func NewAdapter(service Service, opts AdapterOptions) *Adapter {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Adapter{service: service, minConfidence: opts.MinConfidence, log: log}
}

// Engine returns the wrapped service name, or "" when unavailable.
func (a *Adapter) Engine() string {
	if a == nil || a.service == nil {
		return ""
	}
	return a.service.Name()
}

// Ready reports whether a service is configured.
func (a *Adapter) Ready() bool {
	return a != nil && a.service != nil
}

// Recognize encodes buf as JPEG at quality and runs the service on it. The
// call returns when the service does or when ctx is done, whichever is first.
func (a *Adapter) Recognize(ctx context.Context, buf *imaging.PixelBuffer, quality int) RecognitionResult {
	start := time.Now()
	result := a.recognize(ctx, buf, quality)
	result.Duration = time.Since(start)
	if buf != nil {
		result.ImageWidth, result.ImageHeight = buf.Width, buf.Height
	}
	result.Engine = a.Engine()

	if result.Success {
		low := a.countLowConfidence(result.Blocks)
		a.log.Info("recognition complete",
			"engine", result.Engine,
			"blocks", len(result.Blocks),
			"low_confidence", low,
			"chars", len([]rune(result.Text)),
			"duration", result.Duration)
	} else {
		a.log.Warn("recognition failed", "engine", result.Engine, "code", result.Code, "error", result.Error)
	}
	return result
}

func (a *Adapter) recognize(ctx context.Context, buf *imaging.PixelBuffer, quality int) RecognitionResult {
	if !a.Ready() {
		return failure(apperrors.RecognizerUnavailable, "recognizer not initialized")
	}
	if err := buf.Validate(); err != nil {
		return failure(apperrors.InvalidInput, err.Error())
	}
	data, err := imaging.EncodeJPEG(buf, quality)
	if err != nil {
		return failure(apperrors.RecognitionFailed, err.Error())
	}

	raw, err := a.call(ctx, data)
	if err != nil {
		code := apperrors.CodeOf(err)
		if code == "" {
			code = apperrors.RecognitionFailed
		}
		return failure(code, err.Error())
	}
	return Normalize(raw)
}

type callResult struct {
	raw string
	err error
}

// call runs the service on its own goroutine so a service that ignores ctx
// still cannot hold the cycle past its deadline.
func (a *Adapter) call(ctx context.Context, data []byte) (string, error) {
	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: fmt.Errorf("%s panicked: %v", a.service.Name(), r)}
			}
		}()
		raw, err := a.service.Recognize(ctx, data, ImageFormatJPEG)
		done <- callResult{raw: raw, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			return "", contextError(ctx)
		}
		return r.raw, r.err
	case <-ctx.Done():
		return "", contextError(ctx)
	}
}

func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("recognition timed out: %w", ctx.Err())
	}
	return fmt.Errorf("recognition cancelled: %w", ctx.Err())
}

func (a *Adapter) countLowConfidence(blocks []TextBlock) int {
	if a.minConfidence <= 0 {
		return 0
	}
	n := 0
	for _, b := range blocks {
		if b.Confidence < a.minConfidence {
			n++
			a.log.Debug("low confidence block", "confidence", b.Confidence, "min", a.minConfidence, "text", b.Text)
		}
	}
	return n
}
