package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/csvcrypt/internal/crypt"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Mode selects the transform applied to the target column.
type Mode string

const (
	ModeEncrypt Mode = "encrypt"
	ModeDecrypt Mode = "decrypt"
)

// ParseMode converts s to a Mode. Returns ErrInvalidMode for anything other
// than "encrypt" or "decrypt".
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeEncrypt || m == ModeDecrypt
}

// OutputColumn returns the name of the column a run adds, e.g. "phone_encrypted".
func (m Mode) OutputColumn(column string) string {
	return column + "_" + m.pastTense()
}

// FileName returns the download name for a result derived from fileName.
func (m Mode) FileName(fileName string) string {
	return m.pastTense() + "_" + fileName
}

func (m Mode) pastTense() string {
	return string(m) + "ed"
}

// Phase indicates the current stage of a batch run.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseParsing    Phase = "parsing"
	PhaseValidating Phase = "validating"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// Keys added to every output row.
const (
	FieldStatus = "status"
	FieldError  = "error"
)

// RowStatus is the outcome of transforming one row.
type RowStatus string

const (
	StatusSuccess RowStatus = "success"
	StatusError   RowStatus = "error"
)

// Request describes one batch run. Params is copied into the run, so
// changing the caller's value afterwards has no effect.
type Request struct {
	Column string
	Mode   Mode
	Params crypt.Params
}

// RowResult is one transformed row.
type RowResult struct {
	Line   int               // source line of the record
	Fields map[string]string // original fields plus status, error or the output column
	Status RowStatus
	Error  string // non-empty if Status is StatusError
}

// Stats summarizes a run. Success + Error == Total.
type Stats struct {
	Total       int    `json:"total"`
	Success     int    `json:"success"`
	Error       int    `json:"error"`
	SuccessRate string `json:"successRate"`
}

// RunResult contains the output of a batch run.
type RunResult struct {
	Column   string
	Mode     Mode
	Phase    Phase
	Columns  []string // output column order
	Rows     []RowResult
	Stats    Stats
	Duration time.Duration
}

// OutputRows returns the field maps of all rows, in order.
func (r *RunResult) OutputRows() []map[string]string {
	rows := make([]map[string]string, len(r.Rows))
	for i, row := range r.Rows {
		rows[i] = row.Fields
	}
	return rows
}

// RunProgress represents the current state of a batch run.
type RunProgress struct {
	Phase      Phase
	TotalRows  int
	CurrentRow int // rows processed so far
	Success    int
	Failed     int
}

// Percent returns the progress as a percentage (0-100).
func (p RunProgress) Percent() int {
	if p.TotalRows > 0 {
		return (p.CurrentRow * 100) / p.TotalRows
	}
	return 0
}

// ProgressCallback is called as a run moves through its phases and after
// each processed row. Calls are serialized.
type ProgressCallback func(RunProgress)
