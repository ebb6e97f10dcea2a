package pipeline

import (
	"time"

	"github.com/facturaIA/textscan-service/internal/coords"
)

// EventKind names a feedback notification.
type EventKind string

const (
	EventStateChanged  EventKind = "state_changed"
	EventHighlight     EventKind = "highlight"
	EventToast         EventKind = "toast"
	EventHapticSuccess EventKind = "haptic_success"
	EventHapticError   EventKind = "haptic_error"
)

// Event is a fire-and-forget notification for UI and haptics consumers.
type Event struct {
	Kind    EventKind     `json:"kind"`
	CycleID string        `json:"cycleId"`
	State   State         `json:"state"`
	Boxes   []coords.Rect `json:"boxes,omitempty"`
	Message string        `json:"message,omitempty"`
	Time    time.Time     `json:"time"`
}

// Listener receives events synchronously on the cycle goroutine, in the
// order transitions happen. Implementations must not block.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }
