package pipeline

import "fmt"

// State is the orchestrator's position in a scan cycle.
type State int

const (
	Idle State = iota
	Capturing
	Processing
	Copied
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Processing:
		return "processing"
	case Copied:
		return "copied"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s ends a cycle before the settle delay.
func (s State) Terminal() bool { return s == Copied || s == Error }

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, c := range []State{Idle, Capturing, Processing, Copied, Error} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown pipeline state %q", string(b))
}
