package core

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

func runRecord(id string, started time.Time) RunRecord {
	return RunRecord{
		ID:        id,
		FileName:  "users.csv",
		Column:    "phone",
		Mode:      ModeEncrypt,
		Phase:     PhaseCompleted,
		Stats:     Stats{Total: 2, Success: 1, Error: 1, SuccessRate: "50.00"},
		StartedAt: started,
	}
}

func recordIDs(records []RunRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func TestMemoryHistory_RecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := h.Record(ctx, runRecord(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Record(%s) error = %v", id, err)
		}
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{0, []string{"c", "b", "a"}},
		{2, []string{"c", "b"}},
		{10, []string{"c", "b", "a"}},
	}
	for _, tt := range tests {
		got, err := h.Recent(ctx, tt.limit)
		if err != nil {
			t.Fatalf("Recent(%d) error = %v", tt.limit, err)
		}
		if diff := cmp.Diff(tt.want, recordIDs(got)); diff != "" {
			t.Errorf("Recent(%d) mismatch (-want +got):\n%s", tt.limit, diff)
		}
	}
}

func TestMemoryHistory_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(2)
	now := time.Now()

	for _, id := range []string{"a", "b", "c"} {
		h.Record(ctx, runRecord(id, now))
	}

	got, _ := h.Recent(ctx, 0)
	if diff := cmp.Diff([]string{"c", "b"}, recordIDs(got)); diff != "" {
		t.Errorf("Recent mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryHistory_Purge(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(10)
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	h.Record(ctx, runRecord("old", cutoff.Add(-time.Hour)))
	h.Record(ctx, runRecord("edge", cutoff))
	h.Record(ctx, runRecord("new", cutoff.Add(time.Hour)))

	purged, err := h.Purge(ctx, cutoff)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	got, _ := h.Recent(ctx, 0)
	if diff := cmp.Diff([]string{"new", "edge"}, recordIDs(got)); diff != "" {
		t.Errorf("Recent mismatch (-want +got):\n%s", diff)
	}
}

type fakeDB struct {
	sql  []string
	args [][]interface{}
	tag  pgconn.CommandTag
	err  error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return f.tag, f.err
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	f.sql = append(f.sql, sql)
	return nil, f.err
}

func (f *fakeDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}

func TestPostgresHistory_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	if err := NewPostgresHistory(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if len(db.sql) != len(schemaStatements) {
		t.Fatalf("executed %d statements, want %d", len(db.sql), len(schemaStatements))
	}
	if !strings.Contains(db.sql[0], "CREATE TABLE IF NOT EXISTS transform_runs") {
		t.Errorf("first statement = %q", db.sql[0])
	}
}

func TestPostgresHistory_Record(t *testing.T) {
	db := &fakeDB{}
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := runRecord("3f0e7a8e-0d4c-4b8e-9a53-6f1f0a7f2a11", started)
	rec.ClientIP = "10.0.0.7"

	if err := NewPostgresHistory(db).Record(context.Background(), rec); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	want := []interface{}{
		rec.ID, "users.csv", "phone", "encrypt", "completed",
		2, 1, 1, "50.00",
		"", "10.0.0.7", started, int64(0),
	}
	if diff := cmp.Diff(want, db.args[0]); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestPostgresHistory_Errors(t *testing.T) {
	db := &fakeDB{err: errors.New("connection refused")}
	h := NewPostgresHistory(db)
	ctx := context.Background()

	if err := h.EnsureSchema(ctx); err == nil || !strings.Contains(err.Error(), "ensure history schema") {
		t.Errorf("EnsureSchema() error = %v", err)
	}
	if err := h.Record(ctx, runRecord("x", time.Now())); err == nil || !strings.Contains(err.Error(), "record run x") {
		t.Errorf("Record() error = %v", err)
	}
	if _, err := h.Recent(ctx, 5); err == nil || !strings.Contains(err.Error(), "query runs") {
		t.Errorf("Recent() error = %v", err)
	}
	if _, err := h.Purge(ctx, time.Now()); err == nil || !strings.Contains(err.Error(), "purge runs") {
		t.Errorf("Purge() error = %v", err)
	}
}

func TestPostgresHistory_Purge(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("DELETE 3")}

	purged, err := NewPostgresHistory(db).Purge(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if purged != 3 {
		t.Errorf("purged = %d, want 3", purged)
	}
}

// TestPostgresHistory_Integration runs against a real database inside a
// transaction that is rolled back.
func TestPostgresHistory_Integration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)

	h := NewPostgresHistory(tx)
	if err := h.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	// Far-future timestamps sort ahead of any existing rows.
	base := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	older := runRecord(uuid.New().String(), base)
	newer := runRecord(uuid.New().String(), base.Add(time.Minute))
	for _, rec := range []RunRecord{older, newer} {
		if err := h.Record(ctx, rec); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := h.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if diff := cmp.Diff([]string{newer.ID, older.ID}, recordIDs(got)); diff != "" {
		t.Errorf("Recent mismatch (-want +got):\n%s", diff)
	}
	if got[0].Stats != newer.Stats || got[0].Mode != ModeEncrypt {
		t.Errorf("Recent()[0] = %+v", got[0])
	}

	purged, err := h.Purge(ctx, base.Add(30*time.Second))
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if purged < 1 {
		t.Errorf("purged = %d, want at least 1", purged)
	}
}
