package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvcrypt/internal/crypt"
	"github.com/JonMunkholm/csvcrypt/internal/logging"
	"github.com/JonMunkholm/csvcrypt/internal/tabular"
)

var (
	// ErrRunNotFound is returned for an unknown or expired run id.
	ErrRunNotFound = errors.New("run not found")

	// ErrNoFile is returned when a request carries no input file.
	ErrNoFile = errors.New("no file provided")
)

// Default service settings, used for zero fields of ServiceConfig.
const (
	DefaultRunTimeout = 5 * time.Minute
	DefaultResultTTL  = 30 * time.Minute
)

// DefaultFileName is used when a request does not name its file.
const DefaultFileName = "data.csv"

// ServiceConfig holds the tunables of a Service.
type ServiceConfig struct {
	Workers          int           // rows transformed concurrently; <2 is sequential
	PreviewRows      int           // data rows returned by Preview
	MaxConcurrent    int           // runs processed at once
	MaxWait          time.Duration // wait for a run slot before ErrTooManyRuns
	Timeout          time.Duration // per-run deadline
	ResultTTL        time.Duration // how long results stay downloadable
	HistoryRetention time.Duration // history purge age; 0 keeps everything
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.PreviewRows <= 0 {
		c.PreviewRows = tabular.DefaultPreviewRows
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultRunTimeout
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = DefaultResultTTL
	}
	return c
}

// DownloadSink receives a serialized result.
type DownloadSink interface {
	Deliver(filename, mimeType string, content []byte) error
}

// Service orchestrates batch runs: parse, transform, keep the result for
// download and record history. It is safe for concurrent use.
type Service struct {
	cfg     ServiceConfig
	limiter *RunLimiter
	history HistoryStore
	now     func() time.Time

	mu   sync.RWMutex
	runs map[string]*Run
}

// Run is a completed batch run held for download.
type Run struct {
	ID        string
	FileName  string
	CreatedAt time.Time
	Result    *RunResult
}

// NewService creates a Service. A nil history uses a MemoryHistory.
func NewService(cfg ServiceConfig, history HistoryStore) *Service {
	cfg = cfg.withDefaults()
	if history == nil {
		history = NewMemoryHistory(DefaultHistoryCapacity)
	}

	return &Service{
		cfg:     cfg,
		limiter: NewRunLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		history: history,
		now:     time.Now,
		runs:    make(map[string]*Run),
	}
}

// PreviewResponse is the first rows of a file and whether the target column
// exists.
type PreviewResponse struct {
	Columns     []string            `json:"columns"`
	Rows        []map[string]string `json:"rows"`
	Truncated   bool                `json:"truncated"`
	ColumnFound bool                `json:"column_found"`
	Warning     string              `json:"warning,omitempty"`
}

// Preview parses the header and the first rows of r. A missing column is
// reported as a warning rather than an error; Process rejects it.
func (s *Service) Preview(ctx context.Context, r io.Reader, column string) (*PreviewResponse, error) {
	if r == nil {
		return nil, ErrNoFile
	}

	table, err := tabular.ParsePreview(r, s.cfg.PreviewRows)
	if err != nil {
		return nil, err
	}

	resp := &PreviewResponse{
		Columns:   table.Columns,
		Rows:      table.Rows(),
		Truncated: table.Truncated,
	}
	if err := table.RequireColumn(column); err != nil {
		resp.Warning = err.Error()
	} else {
		resp.ColumnFound = true
	}

	logging.FromContext(ctx).Debug("preview parsed",
		"columns", len(table.Columns),
		"rows", table.Len(),
		"column_found", resp.ColumnFound,
	)
	return resp, nil
}

// ProcessRequest describes a full run over an input file.
type ProcessRequest struct {
	FileName string
	Column   string
	Mode     Mode
	Params   crypt.Params
	Body     io.Reader

	// Progress is optional.
	Progress ProgressCallback
}

// Process parses Body, transforms it and stores the result for Download.
//
// Parse errors, a missing column, an unknown mode and short key material are
// returned without any row being processed. Row failures are part of the
// result, not errors.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (*Run, error) {
	if req.Body == nil {
		return nil, ErrNoFile
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	run := &Run{
		ID:        uuid.New().String(),
		FileName:  cleanFileName(req.FileName),
		CreatedAt: s.now(),
	}
	logger := logging.WithFields(ctx,
		"run_id", run.ID,
		"file", run.FileName,
		"mode", req.Mode,
		"column", req.Column,
	)
	if ua := UserAgentFromContext(ctx); ua != "" {
		logger = logger.With("user_agent", ua)
	}

	rec := RunRecord{
		ID:        run.ID,
		FileName:  run.FileName,
		Column:    req.Column,
		Mode:      req.Mode,
		Phase:     PhaseParsing,
		ClientIP:  ClientIPFromContext(ctx),
		StartedAt: run.CreatedAt,
	}

	progress := req.Progress
	if progress != nil {
		progress(RunProgress{Phase: PhaseParsing})
	}

	body := tabular.NewCountingReader(req.Body)
	table, err := tabular.ParseAll(body)
	if err != nil {
		logger.Warn("parse failed", "error", err, "bytes_read", body.BytesRead)
		s.recordHistory(ctx, rec, nil, err)
		return nil, err
	}
	logger.Debug("file parsed", "rows", table.Len(), "bytes_read", body.BytesRead)

	engine := NewEngine(WithWorkers(s.cfg.Workers), WithProgress(progress))
	result, err := engine.Run(ctx, table, Request{
		Column: req.Column,
		Mode:   req.Mode,
		Params: req.Params,
	})
	if err != nil {
		logger.Warn("run failed", "error", err)
		s.recordHistory(ctx, rec, result, err)
		return nil, err
	}

	run.Result = result
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()

	logger.Info("run completed",
		"total", result.Stats.Total,
		"success", result.Stats.Success,
		"error", result.Stats.Error,
		"duration_ms", result.Duration.Milliseconds(),
	)
	s.recordHistory(ctx, rec, result, nil)
	return run, nil
}

// recordHistory stores the outcome of a run. History failures are logged,
// not returned.
func (s *Service) recordHistory(ctx context.Context, rec RunRecord, result *RunResult, runErr error) {
	rec.Phase = PhaseFailed
	if result != nil {
		rec.Phase = result.Phase
		rec.Stats = result.Stats
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	rec.DurationMS = s.now().Sub(rec.StartedAt).Milliseconds()

	// The run context may already be done; history is written regardless.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.history.Record(hctx, rec); err != nil {
		logging.FromContext(ctx).Error("record run history failed", "run_id", rec.ID, "error", err)
	}
}

// Result returns a stored run.
func (s *Service) Result(runID string) (*Run, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// Download serializes a stored run and hands it to sink as
// "{encrypted|decrypted}_{file name}".
func (s *Service) Download(ctx context.Context, runID string, sink DownloadSink) error {
	run, err := s.Result(runID)
	if err != nil {
		return err
	}

	content, err := tabular.Marshal(run.Result.Columns, run.Result.OutputRows())
	if err != nil {
		return fmt.Errorf("serialize run %s: %w", runID, err)
	}

	name := run.Result.Mode.FileName(run.FileName)
	if err := sink.Deliver(name, tabular.MIMEType, content); err != nil {
		return fmt.Errorf("deliver %s: %w", name, err)
	}

	logging.FromContext(ctx).Debug("result delivered", "run_id", runID, "file", name, "bytes", len(content))
	return nil
}

// History returns up to limit recent runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]RunRecord, error) {
	return s.history.Recent(ctx, limit)
}

// WaitForRuns blocks until in-flight runs finish or ctx is done.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// LimiterStatus returns the run limiter state.
func (s *Service) LimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// cleanFileName strips directories from a client-supplied name.
func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return DefaultFileName
	}
	return name
}
