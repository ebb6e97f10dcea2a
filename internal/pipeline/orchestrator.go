// Package pipeline runs the capture-to-delivery scan cycle. One Orchestrator
// exists per process; it owns the cycle state and admits at most one cycle at
// a time.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/facturaIA/textscan-service/internal/coords"
	apperrors "github.com/facturaIA/textscan-service/internal/errors"
	"github.com/facturaIA/textscan-service/internal/imaging"
	"github.com/facturaIA/textscan-service/internal/logging"
	"github.com/facturaIA/textscan-service/internal/ocr"
)

// Defaults applied by New for zero-valued options.
const (
	DefaultFreeze           = 300 * time.Millisecond
	DefaultSettle           = 1500 * time.Millisecond
	DefaultPreviewLimit     = 50
	DefaultRecognizeTimeout = 30 * time.Second
	DefaultArchiveTimeout   = 10 * time.Second
)

// Capturer supplies one frame per call.
type Capturer interface {
	Capture(ctx context.Context) (*imaging.PixelBuffer, error)
	Close() error
}

// Preparer turns a captured frame into the recognizer input.
type Preparer interface {
	Prepare(buf *imaging.PixelBuffer) (*imaging.PixelBuffer, error)
}

// Recognizer runs text recognition and never fails outright.
type Recognizer interface {
	Recognize(ctx context.Context, buf *imaging.PixelBuffer, quality int) ocr.RecognitionResult
}

// Delivery receives the full recognized text once per successful cycle.
type Delivery interface {
	SetText(ctx context.Context, text string) error
}

// History records successful scans. Failures are logged and ignored.
type History interface {
	Append(ctx context.Context, text string) error
}

// FrameArchiver stores captured frames for later inspection. Best-effort.
type FrameArchiver interface {
	Archive(ctx context.Context, cycleID string, buf *imaging.PixelBuffer) error
}

// Options wires an Orchestrator. Capture, Recognizer and Delivery are required.
type Options struct {
	Capture      Capturer
	Preprocessor Preparer
	Recognizer   Recognizer
	Delivery     Delivery
	History      History
	Archive      FrameArchiver
	Listeners    []Listener

	Freeze           time.Duration
	Settle           time.Duration
	PreviewLimit     int
	Quality          int
	RecognizeTimeout time.Duration
	// Display size highlights are mapped onto. When either is unset the
	// recognized image size is used.
	DisplayWidth  float64
	DisplayHeight float64

	Logger *logging.Logger
}

// Outcome summarizes the most recent finished cycle.
type Outcome struct {
	CycleID    string              `json:"cycleId"`
	State      State               `json:"state"`
	Text       string              `json:"text,omitempty"`
	Preview    string              `json:"preview,omitempty"`
	Message    string              `json:"message,omitempty"`
	Code       apperrors.ErrorCode `json:"code,omitempty"`
	Detail     string              `json:"detail,omitempty"`
	Engine     string              `json:"engine,omitempty"`
	Blocks     int                 `json:"blocks"`
	Boxes      []coords.Rect       `json:"boxes,omitempty"`
	StartedAt  time.Time           `json:"startedAt"`
	FinishedAt time.Time           `json:"finishedAt"`
	Duration   time.Duration       `json:"duration"`
}

// Orchestrator is the scan state machine.
type Orchestrator struct {
	capture    Capturer
	prep       Preparer
	recognizer Recognizer
	delivery   Delivery
	history    History
	archive    FrameArchiver

	freeze           time.Duration
	settle           time.Duration
	previewLimit     int
	quality          int
	recognizeTimeout time.Duration
	displayW         float64
	displayH         float64
	log              *logging.Logger

	mu        sync.Mutex
	state     State
	running   bool
	closed    bool
	last      *Outcome
	listeners []Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator in the Idle state.
func New(opts Options) (*Orchestrator, error) {
	if opts.Capture == nil {
		return nil, fmt.Errorf("pipeline: capture source is required")
	}
	if opts.Recognizer == nil {
		return nil, fmt.Errorf("pipeline: recognizer is required")
	}
	if opts.Delivery == nil {
		return nil, fmt.Errorf("pipeline: delivery sink is required")
	}
	if opts.Preprocessor == nil {
		opts.Preprocessor = ocr.NewPreprocessor(ocr.PreprocessorOptions{MaxWidth: 1920, MaxHeight: 1080})
	}
	if opts.Freeze < 0 {
		opts.Freeze = 0
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = DefaultPreviewLimit
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		opts.Quality = imaging.DefaultJPEGQuality
	}
	if opts.RecognizeTimeout <= 0 {
		opts.RecognizeTimeout = DefaultRecognizeTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		capture:          opts.Capture,
		prep:             opts.Preprocessor,
		recognizer:       opts.Recognizer,
		delivery:         opts.Delivery,
		history:          opts.History,
		archive:          opts.Archive,
		freeze:           opts.Freeze,
		settle:           opts.Settle,
		previewLimit:     opts.PreviewLimit,
		quality:          opts.Quality,
		recognizeTimeout: opts.RecognizeTimeout,
		displayW:         opts.DisplayWidth,
		displayH:         opts.DisplayHeight,
		log:              log,
		state:            Idle,
		listeners:        append([]Listener(nil), opts.Listeners...),
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// Subscribe adds a listener for subsequent events.
func (o *Orchestrator) Subscribe(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastOutcome returns the most recently finished cycle, if any.
func (o *Orchestrator) LastOutcome() (Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Outcome{}, false
	}
	return *o.last, true
}

// Trigger starts a scan cycle if the orchestrator is Idle. It returns false,
// and does nothing else, when a cycle is already running or after Close.
func (o *Orchestrator) Trigger() bool {
	o.mu.Lock()
	if o.closed || o.running || o.state != Idle {
		state := o.state
		o.mu.Unlock()
		o.log.Info("trigger dropped", "state", state)
		return false
	}
	o.running = true
	o.state = Capturing
	o.wg.Add(1)
	o.mu.Unlock()

	cycleID := uuid.NewString()
	go o.run(cycleID)
	return true
}

// Close cancels any in-flight cycle, waits for it to finish and releases the
// capture source.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	return o.capture.Close()
}

func (o *Orchestrator) run(cycleID string) {
	defer o.wg.Done()
	ctx := o.ctx
	out := &Outcome{CycleID: cycleID, StartedAt: time.Now()}
	o.log.Info("scan started", "cycle", cycleID)
	o.emit(Event{Kind: EventStateChanged, CycleID: cycleID, State: Capturing})

	o.guard(ctx, out)
	o.finish(ctx, out)
}

// guard runs process and turns a stage panic into an Error outcome so the
// cycle still settles back to Idle.
func (o *Orchestrator) guard(ctx context.Context, out *Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("scan stage panicked", "cycle", out.CycleID, "panic", r)
			out.State = Error
			out.Code = ""
			out.Message = MessageGeneric
			out.Detail = fmt.Sprintf("panic: %v", r)
		}
	}()
	o.process(ctx, out)
}

// process drives Capturing and Processing and fills out with the terminal
// result.
func (o *Orchestrator) process(ctx context.Context, out *Outcome) {
	buf, err := o.capture.Capture(ctx)
	if err != nil {
		o.failed(out, apperrors.CodeOf(err), err.Error())
		return
	}
	if o.archive != nil {
		o.archiveFrame(out.CycleID, buf.Clone())
	}

	if !sleep(ctx, o.freeze) {
		o.failed(out, "", "scan cancelled during freeze")
		return
	}
	o.transition(out.CycleID, Processing)

	prepared, err := o.prep.Prepare(buf)
	if err != nil {
		o.failed(out, apperrors.CodeOf(err), fmt.Sprintf("preprocess: %v", err))
		return
	}

	rctx, cancel := context.WithTimeout(ctx, o.recognizeTimeout)
	res := o.recognizer.Recognize(rctx, prepared, o.quality)
	cancel()
	out.Engine = res.Engine

	if !res.Success {
		o.failed(out, res.Code, res.Error)
		return
	}
	if strings.TrimSpace(res.Text) == "" {
		o.failed(out, apperrors.NoTextDetected, "recognizer returned blank text")
		return
	}

	out.Blocks = len(res.Blocks)
	srcW, srcH := float64(res.ImageWidth), float64(res.ImageHeight)
	dstW, dstH := o.displayW, o.displayH
	if dstW <= 0 || dstH <= 0 {
		dstW, dstH = srcW, srcH
	}
	out.Boxes = coords.MapAll(res.Boxes(), srcW, srcH, dstW, dstH)
	o.emit(Event{Kind: EventHighlight, CycleID: out.CycleID, State: Processing, Boxes: out.Boxes})

	if err := o.delivery.SetText(ctx, res.Text); err != nil {
		o.log.Error("delivery failed", "cycle", out.CycleID, "error", err)
		out.State = Error
		out.Message = MessageGeneric
		out.Detail = fmt.Sprintf("delivery: %v", err)
		return
	}
	out.State = Copied
	out.Text = res.Text
	out.Preview = Preview(res.Text, o.previewLimit)
}

func (o *Orchestrator) failed(out *Outcome, code apperrors.ErrorCode, detail string) {
	out.State = Error
	out.Code = code
	out.Detail = detail
	out.Message = UserMessage(code, detail)
}

// finish emits the terminal notifications, waits out the settle delay and
// returns to Idle.
func (o *Orchestrator) finish(ctx context.Context, out *Outcome) {
	o.transition(out.CycleID, out.State)

	if out.State == Copied {
		if o.history != nil {
			if err := o.history.Append(ctx, out.Text); err != nil {
				o.log.Warn("history append failed", "cycle", out.CycleID, "error", err)
			}
		}
		o.emit(Event{Kind: EventToast, CycleID: out.CycleID, State: Copied, Message: out.Preview})
		o.emit(Event{Kind: EventHapticSuccess, CycleID: out.CycleID, State: Copied})
	} else {
		o.emit(Event{Kind: EventToast, CycleID: out.CycleID, State: Error, Message: out.Message})
		o.emit(Event{Kind: EventHapticError, CycleID: out.CycleID, State: Error})
	}

	out.FinishedAt = time.Now()
	out.Duration = out.FinishedAt.Sub(out.StartedAt)
	o.mu.Lock()
	last := *out
	o.last = &last
	o.mu.Unlock()

	if out.State == Copied {
		o.log.Info("scan copied", "cycle", out.CycleID, "chars", len([]rune(out.Text)), "blocks", out.Blocks, "duration", out.Duration)
	} else {
		o.log.Warn("scan failed", "cycle", out.CycleID, "code", out.Code, "detail", out.Detail, "duration", out.Duration)
	}

	sleep(ctx, o.settle)
	o.transition(out.CycleID, Idle)

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

func (o *Orchestrator) transition(cycleID string, s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.emit(Event{Kind: EventStateChanged, CycleID: cycleID, State: s})
}

func (o *Orchestrator) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	o.mu.Lock()
	listeners := append([]Listener(nil), o.listeners...)
	o.mu.Unlock()

	for _, l := range listeners {
		o.notify(l, e)
	}
}

func (o *Orchestrator) notify(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("listener panicked", "event", e.Kind, "panic", r)
		}
	}()
	l.OnEvent(e)
}

func (o *Orchestrator) archiveFrame(cycleID string, buf *imaging.PixelBuffer) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(o.ctx, DefaultArchiveTimeout)
		defer cancel()
		if err := o.archive.Archive(ctx, cycleID, buf); err != nil {
			o.log.Warn("frame archive failed", "cycle", cycleID, "error", err)
		}
	}()
}

// sleep waits for d or until ctx is done. It reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
