package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/facturaIA/textscan-service/internal/db"
	"github.com/facturaIA/textscan-service/internal/logging"
	"github.com/facturaIA/textscan-service/internal/pipeline"
)

// Postgres stores history in the scan_history table of the shared pool.
type Postgres struct {
	schema       string
	maxSize      int
	previewLimit int
	engine       string
	log          *logging.Logger
}

// NewPostgres creates the table if needed. db.Init must have succeeded.
func NewPostgres(ctx context.Context, schema string, maxSize, previewLimit int, engine string, log *logging.Logger) (*Postgres, error) {
	if db.GetPool() == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if log == nil {
		log = logging.Discard()
	}
	if err := db.EnsureSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}
	return &Postgres{
		schema:       db.SchemaName(schema),
		maxSize:      maxSize,
		previewLimit: previewLimit,
		engine:       engine,
		log:          log,
	}, nil
}

// Append inserts the entry and trims the table to maxSize rows.
func (p *Postgres) Append(ctx context.Context, text string) error {
	scan := &db.Scan{Text: text, Preview: pipeline.Preview(text, p.previewLimit), Engine: p.engine}
	if err := db.SaveScan(ctx, p.schema, scan); err != nil {
		return fmt.Errorf("save scan: %w", err)
	}
	removed, err := db.TrimScans(ctx, p.schema, p.maxSize)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	if removed > 0 {
		p.log.Debug("history trimmed", "removed", removed, "max", p.maxSize)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	if limit <= 0 {
		limit = p.maxSize
	}
	scans, total, err := db.GetScansPaginated(ctx, p.schema, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	entries := make([]Entry, 0, len(scans))
	for _, s := range scans {
		entries = append(entries, toEntry(s))
	}
	return entries, total, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (Entry, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return Entry{}, ErrNotFound
	}
	s, err := db.GetScanByID(ctx, p.schema, uid)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get history entry: %w", err)
	}
	return toEntry(*s), nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	found, err := db.DeleteScan(ctx, p.schema, uid)
	if err != nil {
		return fmt.Errorf("delete history entry: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	s, err := db.GetScanStats(ctx, p.schema)
	if err != nil {
		return Stats{}, fmt.Errorf("history stats: %w", err)
	}
	return Stats{Total: s.TotalScans, Today: s.TodayScans, AvgChars: s.AvgChars, MaxSize: p.maxSize}, nil
}

func toEntry(s db.Scan) Entry {
	return Entry{ID: s.ID.String(), Text: s.Text, Preview: s.Preview, CreatedAt: s.CreatedAt}
}
