// Package clipboard delivers recognized text to its destination.
package clipboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
)

// Sink receives the full recognized text of a successful scan.
type Sink interface {
	SetText(ctx context.Context, text string) error
}

// System writes to the host clipboard (pbcopy, xclip/xsel/wl-copy or the
// Windows API, depending on the platform).
type System struct{}

// NewSystem returns a system clipboard sink, or an error when the platform
// has no clipboard utility available.
func NewSystem() (*System, error) {
	if clipboard.Unsupported {
		return nil, fmt.Errorf("no clipboard utility available on this host")
	}
	return &System{}, nil
}

func (s *System) SetText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

// Memory keeps the last delivered text in process. Used in headless
// deployments and tests.
type Memory struct {
	mu     sync.Mutex
	text   string
	writes int
}

// NewMemory creates an in-memory sink.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) SetText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.writes++
	return nil
}

// Text returns the last delivered text and how many deliveries happened.
func (m *Memory) Text() (string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, m.writes
}
