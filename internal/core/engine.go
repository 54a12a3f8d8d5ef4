package core

// engine.go implements the row transform engine.
//
// A run validates the request, then transforms every record of the table
// exactly once. Row failures (invalid phone numbers, undecryptable values)
// are recorded on the row and never stop the run. The engine keeps no state
// between runs; the cipher is built from the request for each run.
//
// By default rows are processed one at a time in input order. With more
// than one worker, rows are fanned out to a bounded errgroup pool and each
// result is written back to its input index, so the output order is the
// same either way.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/csvcrypt/internal/crypt"
	"github.com/JonMunkholm/csvcrypt/internal/tabular"
)

// ErrInvalidMode is returned for a mode other than encrypt or decrypt.
var ErrInvalidMode = errors.New("invalid mode, must be encrypt or decrypt")

// Engine runs batch transforms. The zero value processes rows sequentially
// without progress reporting.
type Engine struct {
	workers  int
	progress ProgressCallback
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWorkers sets the number of rows transformed concurrently.
// Values below 2 mean sequential processing.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) { e.workers = n }
}

// WithProgress sets a callback invoked on phase changes and after each row.
func WithProgress(cb ProgressCallback) EngineOption {
	return func(e *Engine) { e.progress = cb }
}

// NewEngine creates an Engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run transforms the target column of every record in table.
//
// Returns *tabular.ColumnNotFoundError, ErrInvalidMode or
// *crypt.KeyLengthError without processing any row. If ctx is cancelled
// mid-run the partial result is returned with Phase set to PhaseCancelled,
// along with the wrapped context error.
func (e *Engine) Run(ctx context.Context, table *tabular.Table, req Request) (*RunResult, error) {
	start := time.Now()
	tracker := newProgressTracker(e.progress, table.Len())

	tracker.phase(PhaseValidating)
	c, err := validateRun(table, req)
	if err != nil {
		tracker.phase(PhaseFailed)
		return nil, err
	}

	tracker.phase(PhaseProcessing)
	rows := make([]RowResult, table.Len())
	done := make([]bool, table.Len())

	if e.workers > 1 {
		err = e.runPool(ctx, c, table, req, rows, done, tracker)
	} else {
		err = e.runSequential(ctx, c, table, req, rows, done, tracker)
	}

	result := &RunResult{
		Column: req.Column,
		Mode:   req.Mode,
		Phase:  PhaseCompleted,
		Rows:   rows,
	}
	if err != nil {
		result.Phase = PhaseCancelled
		result.Rows = completedRows(rows, done)
	}

	result.Columns = tabular.UnionColumns(
		table.Columns, result.OutputRows(),
		tabular.ExtraColumn, req.Mode.OutputColumn(req.Column), FieldStatus, FieldError,
	)
	result.Stats = ComputeStats(result.Rows)
	result.Duration = time.Since(start)

	tracker.phase(result.Phase)
	return result, err
}

func (e *Engine) runSequential(ctx context.Context, c *crypt.Cipher, table *tabular.Table, req Request, rows []RowResult, done []bool, tracker *progressTracker) error {
	for i, rec := range table.Records {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled at line %d: %w", rec.Line, err)
		}
		rows[i] = transformRow(c, req.Mode, req.Column, rec)
		done[i] = true
		tracker.row(rows[i].Status)
	}
	return nil
}

func (e *Engine) runPool(ctx context.Context, c *crypt.Cipher, table *tabular.Table, req Request, rows []RowResult, done []bool, tracker *progressTracker) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, rec := range table.Records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("run cancelled at line %d: %w", rec.Line, err)
			}
			rows[i] = transformRow(c, req.Mode, req.Column, rec)
			done[i] = true
			tracker.row(rows[i].Status)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	// Cancellation can stop the loop before any goroutine observes it.
	if err := ctx.Err(); err != nil {
		for i, ok := range done {
			if !ok {
				return fmt.Errorf("run cancelled at line %d: %w", table.Records[i].Line, err)
			}
		}
	}
	return nil
}

// transformRow applies mode to one record. The record is copied first, with
// any cells beyond the header under tabular.ExtraColumn.
func transformRow(c *crypt.Cipher, mode Mode, column string, rec tabular.Record) RowResult {
	fields := rec.OutputFields()
	result := RowResult{Line: rec.Line, Fields: fields}

	value, err := applyMode(c, mode, rec, column)
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		fields[FieldStatus] = string(StatusError)
		fields[FieldError] = result.Error
		return result
	}

	result.Status = StatusSuccess
	fields[mode.OutputColumn(column)] = value
	fields[FieldStatus] = string(StatusSuccess)
	return result
}

func applyMode(c *crypt.Cipher, mode Mode, rec tabular.Record, column string) (string, error) {
	if err := validateRow(mode, rec, column); err != nil {
		return "", err
	}
	value := rec.Fields[column]
	if mode == ModeEncrypt {
		return c.Encrypt(value), nil
	}
	return c.Decrypt(value)
}

func completedRows(rows []RowResult, done []bool) []RowResult {
	out := make([]RowResult, 0, len(rows))
	for i, ok := range done {
		if ok {
			out = append(out, rows[i])
		}
	}
	return out
}

// progressTracker serializes progress callbacks from concurrent workers.
type progressTracker struct {
	cb ProgressCallback

	mu       sync.Mutex
	progress RunProgress
}

func newProgressTracker(cb ProgressCallback, total int) *progressTracker {
	return &progressTracker{
		cb:       cb,
		progress: RunProgress{Phase: PhaseIdle, TotalRows: total},
	}
}

func (t *progressTracker) phase(p Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Phase = p
	if t.cb != nil {
		t.cb(t.progress)
	}
}

func (t *progressTracker) row(status RowStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.CurrentRow++
	if status == StatusSuccess {
		t.progress.Success++
	} else {
		t.progress.Failed++
	}
	if t.cb != nil {
		t.cb(t.progress)
	}
}
