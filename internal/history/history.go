// Package history records successfully delivered scans.
package history

import (
	"context"
	"errors"
	"time"
)

// DefaultMaxSize bounds stored entries when no size is configured.
const DefaultMaxSize = 50

// ErrNotFound is returned by Get and Delete for unknown IDs.
var ErrNotFound = errors.New("history entry not found")

// Entry is one stored scan.
type Entry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"createdAt"`
}

// Stats summarises stored entries.
type Stats struct {
	Total    int     `json:"total"`
	Today    int     `json:"today"`
	AvgChars float64 `json:"avgChars"`
	MaxSize  int     `json:"maxSize"`
}

// Store is the history sink plus the read side used by the API.
type Store interface {
	Append(ctx context.Context, text string) error
	List(ctx context.Context, limit, offset int) ([]Entry, int, error)
	Get(ctx context.Context, id string) (Entry, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (Stats, error)
}
