package core

// history.go records a summary of every batch run.
//
// Only run metadata and statistics are stored. Row values and cipher
// parameters never leave the process.

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RunRecord is the history entry for one run.
type RunRecord struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	Column     string    `json:"column"`
	Mode       Mode      `json:"mode"`
	Phase      Phase     `json:"phase"`
	Stats      Stats     `json:"stats"`
	Error      string    `json:"error,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// HistoryStore persists run records.
type HistoryStore interface {
	Record(ctx context.Context, rec RunRecord) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]RunRecord, error)
	// Purge deletes records started before olderThan.
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

// DefaultHistoryCapacity is the number of records MemoryHistory keeps.
const DefaultHistoryCapacity = 200

// MemoryHistory is an in-process HistoryStore holding the most recent
// records. It is used when no database is configured.
type MemoryHistory struct {
	mu       sync.Mutex
	records  []RunRecord // oldest first
	capacity int
}

// NewMemoryHistory creates a store that keeps at most capacity records.
func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &MemoryHistory{capacity: capacity}
}

func (h *MemoryHistory) Record(_ context.Context, rec RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.records) == h.capacity {
		h.records = append(h.records[:0], h.records[1:]...)
	}
	h.records = append(h.records, rec)
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, limit int) ([]RunRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 || limit > len(h.records) {
		limit = len(h.records)
	}
	out := make([]RunRecord, 0, limit)
	for i := len(h.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.records[i])
	}
	return out, nil
}

func (h *MemoryHistory) Purge(_ context.Context, olderThan time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.records[:0]
	for _, rec := range h.records {
		if !rec.StartedAt.Before(olderThan) {
			kept = append(kept, rec)
		}
	}
	purged := int64(len(h.records) - len(kept))
	h.records = kept
	return purged, nil
}

// PostgresHistory stores run records in the transform_runs table.
type PostgresHistory struct {
	db DBTX
}

// NewPostgresHistory creates a store on db, typically a *pgxpool.Pool.
func NewPostgresHistory(db DBTX) *PostgresHistory {
	return &PostgresHistory{db: db}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS transform_runs (
		id           UUID PRIMARY KEY,
		file_name    TEXT NOT NULL,
		column_name  TEXT NOT NULL,
		mode         TEXT NOT NULL,
		phase        TEXT NOT NULL,
		total_rows   INTEGER NOT NULL,
		success_rows INTEGER NOT NULL,
		error_rows   INTEGER NOT NULL,
		success_rate TEXT NOT NULL,
		error        TEXT NOT NULL DEFAULT '',
		client_ip    TEXT NOT NULL DEFAULT '',
		started_at   TIMESTAMPTZ NOT NULL,
		duration_ms  BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transform_runs_started_at_idx
		ON transform_runs (started_at DESC)`,
}

// EnsureSchema creates the history table if it does not exist.
func (h *PostgresHistory) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := h.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure history schema: %w", err)
		}
	}
	return nil
}

const insertRunSQL = `
INSERT INTO transform_runs (
	id, file_name, column_name, mode, phase,
	total_rows, success_rows, error_rows, success_rate,
	error, client_ip, started_at, duration_ms
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func (h *PostgresHistory) Record(ctx context.Context, rec RunRecord) error {
	_, err := h.db.Exec(ctx, insertRunSQL,
		rec.ID, rec.FileName, rec.Column, string(rec.Mode), string(rec.Phase),
		rec.Stats.Total, rec.Stats.Success, rec.Stats.Error, rec.Stats.SuccessRate,
		rec.Error, rec.ClientIP, rec.StartedAt, rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.ID, err)
	}
	return nil
}

const recentRunsSQL = `
SELECT id::text, file_name, column_name, mode, phase,
	total_rows, success_rows, error_rows, success_rate,
	error, client_ip, started_at, duration_ms
FROM transform_runs
ORDER BY started_at DESC
LIMIT $1`

func (h *PostgresHistory) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryCapacity
	}

	rows, err := h.db.Query(ctx, recentRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec         RunRecord
			mode, phase string
		)
		if err := rows.Scan(
			&rec.ID, &rec.FileName, &rec.Column, &mode, &phase,
			&rec.Stats.Total, &rec.Stats.Success, &rec.Stats.Error, &rec.Stats.SuccessRate,
			&rec.Error, &rec.ClientIP, &rec.StartedAt, &rec.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Mode = Mode(mode)
		rec.Phase = Phase(phase)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func (h *PostgresHistory) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := h.db.Exec(ctx, `DELETE FROM transform_runs WHERE started_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
