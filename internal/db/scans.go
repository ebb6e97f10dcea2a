package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Scan is one delivered recognition result.
type Scan struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	Preview   string    `json:"preview"`
	Engine    string    `json:"engine,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ScanStats summarises stored scans.
type ScanStats struct {
	Day        string  `json:"day"`
	TotalScans int     `json:"total_scans"`
	TodayScans int     `json:"today_scans"`
	AvgChars   float64 `json:"avg_chars"`
}

// EnsureSchema creates the history table if it is missing.
func EnsureSchema(ctx context.Context, schema string) error {
	schema = SchemaName(schema)
	query := fmt.Sprintf(`
		CREATE SCHEMA IF NOT EXISTS %[1]s;
		CREATE TABLE IF NOT EXISTS %[1]s.scan_history (
			id         UUID PRIMARY KEY,
			text       TEXT NOT NULL,
			preview    TEXT NOT NULL DEFAULT '',
			engine     TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS scan_history_created_at_idx ON %[1]s.scan_history (created_at DESC);
	`, schema)

	_, err := Pool.Exec(ctx, query)
	return err
}

// SaveScan inserts a scan, assigning its ID when unset.
func SaveScan(ctx context.Context, schema string, s *Scan) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s.scan_history (id, text, preview, engine)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, SchemaName(schema))

	return Pool.QueryRow(ctx, query, s.ID, s.Text, s.Preview, s.Engine).Scan(&s.CreatedAt)
}

// GetScansPaginated returns scans newest first and the total count.
func GetScansPaginated(ctx context.Context, schema string, limit, offset int) ([]Scan, int, error) {
	schema = SchemaName(schema)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s.scan_history", schema)
	if err := Pool.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, text, COALESCE(preview, ''), COALESCE(engine, ''), created_at
		FROM %s.scan_history
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, schema)

	rows, err := Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	scans := []Scan{}
	for rows.Next() {
		var s Scan
		if err := rows.Scan(&s.ID, &s.Text, &s.Preview, &s.Engine, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		scans = append(scans, s)
	}
	return scans, total, rows.Err()
}

// GetScanByID retrieves a single scan by ID
func GetScanByID(ctx context.Context, schema string, id uuid.UUID) (*Scan, error) {
	query := fmt.Sprintf(`
		SELECT id, text, COALESCE(preview, ''), COALESCE(engine, ''), created_at
		FROM %s.scan_history
		WHERE id = $1
	`, SchemaName(schema))

	var s Scan
	if err := Pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.Text, &s.Preview, &s.Engine, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteScan removes a scan, reporting whether a row existed.
func DeleteScan(ctx context.Context, schema string, id uuid.UUID) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s.scan_history WHERE id = $1", SchemaName(schema))
	tag, err := Pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// TrimScans deletes everything but the newest keep rows.
func TrimScans(ctx context.Context, schema string, keep int) (int64, error) {
	query := fmt.Sprintf(`
		DELETE FROM %[1]s.scan_history
		WHERE id IN (
			SELECT id FROM %[1]s.scan_history
			ORDER BY created_at DESC
			OFFSET $1
		)
	`, SchemaName(schema))

	tag, err := Pool.Exec(ctx, query, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetScanStats returns totals for all stored scans and for today
func GetScanStats(ctx context.Context, schema string) (*ScanStats, error) {
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) as total_scans,
			COUNT(*) FILTER (WHERE created_at >= DATE_TRUNC('day', NOW())) as today_scans,
			COALESCE(AVG(LENGTH(text)), 0) as avg_chars
		FROM %s.scan_history
	`, SchemaName(schema))

	stats := &ScanStats{
		Day: time.Now().Format("2006-01-02"),
	}
	err := Pool.QueryRow(ctx, query).Scan(&stats.TotalScans, &stats.TodayScans, &stats.AvgChars)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
