package clipboard

import (
	"context"
	"testing"
)

func TestMemorySink(t *testing.T) {
	m := NewMemory()
	if err := m.SetText(context.Background(), "first"); err != nil {
		t.Fatalf("SetText() error = %v", err)
	}
	_ = m.SetText(context.Background(), "second\nline")
	text, writes := m.Text()
	if text != "second\nline" || writes != 2 {
		t.Fatalf("Text() = %q, %d", text, writes)
	}
}

func TestMemorySinkHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()
	if err := m.SetText(ctx, "late"); err == nil {
		t.Fatalf("expected context error")
	}
	if _, writes := m.Text(); writes != 0 {
		t.Fatalf("cancelled write recorded")
	}
}
