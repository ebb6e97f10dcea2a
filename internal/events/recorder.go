// Package events fans pipeline notifications out to HTTP pollers, streaming
// clients and Redis subscribers.
package events

import (
	"sync"

	"github.com/facturaIA/textscan-service/internal/pipeline"
)

// DefaultCapacity is the number of events a Recorder retains.
const DefaultCapacity = 256

// Record is an event with its feed sequence number.
type Record struct {
	Seq uint64 `json:"seq"`
	pipeline.Event
}

// Recorder keeps the most recent events and forwards new ones to
// subscribers. Slow subscribers lose events rather than block the cycle.
type Recorder struct {
	mu       sync.Mutex
	ring     []Record
	capacity int
	seq      uint64
	subs     map[chan Record]struct{}
	dropped  uint64
	closed   bool
}

// NewRecorder creates a recorder retaining capacity events.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{capacity: capacity, subs: make(map[chan Record]struct{})}
}

// OnEvent implements pipeline.Listener.
func (r *Recorder) OnEvent(e pipeline.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	rec := Record{Seq: r.seq, Event: e}
	r.ring = append(r.ring, rec)
	if len(r.ring) > r.capacity {
		r.ring = append([]Record(nil), r.ring[len(r.ring)-r.capacity:]...)
	}
	for ch := range r.subs {
		select {
		case ch <- rec:
		default:
			r.dropped++
		}
	}
}

// Since returns retained events with Seq greater than seq, oldest first.
func (r *Recorder) Since(seq uint64) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Record{}
	for _, rec := range r.ring {
		if rec.Seq > seq {
			out = append(out, rec)
		}
	}
	return out
}

// Subscribe returns a channel of future events and a function that ends
// the subscription.
func (r *Recorder) Subscribe(buffer int) (<-chan Record, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Record, buffer)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	r.subs[ch] = struct{}{}

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
	}
}

// Close ends every subscription so streaming readers return. Events are
// still retained for Since afterwards; new subscriptions start closed.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for ch := range r.subs {
		delete(r.subs, ch)
		close(ch)
	}
}

// Dropped reports how many deliveries to subscribers were skipped.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
