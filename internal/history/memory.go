package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/facturaIA/textscan-service/internal/pipeline"
)

// Memory keeps the newest maxSize entries in process.
type Memory struct {
	mu           sync.Mutex
	entries      []Entry // oldest first
	maxSize      int
	previewLimit int
	now          func() time.Time
}

// NewMemory creates an in-memory store.
func NewMemory(maxSize, previewLimit int) *Memory {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Memory{maxSize: maxSize, previewLimit: previewLimit, now: time.Now}
}

func (m *Memory) Append(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entry{
		ID:        uuid.NewString(),
		Text:      text,
		Preview:   pipeline.Preview(text, m.previewLimit),
		CreatedAt: m.now(),
	})
	if over := len(m.entries) - m.maxSize; over > 0 {
		m.entries = append([]Entry(nil), m.entries[over:]...)
	}
	return nil
}

// List returns entries newest first.
func (m *Memory) List(_ context.Context, limit, offset int) ([]Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := len(m.entries)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = total
	}
	out := []Entry{}
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, total, nil
}

func (m *Memory) Get(_ context.Context, id string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{Total: len(m.entries), MaxSize: m.maxSize}
	y, mo, d := m.now().Date()
	var chars int
	for _, e := range m.entries {
		chars += len([]rune(e.Text))
		if ey, emo, ed := e.CreatedAt.Date(); ey == y && emo == mo && ed == d {
			st.Today++
		}
	}
	if st.Total > 0 {
		st.AvgChars = float64(chars) / float64(st.Total)
	}
	return st, nil
}
