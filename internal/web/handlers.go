package web

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/csvcrypt/internal/core"
	"github.com/JonMunkholm/csvcrypt/internal/crypt"
	"github.com/JonMunkholm/csvcrypt/internal/logging"
	"github.com/JonMunkholm/csvcrypt/internal/web/templates"
)

var (
	// errInvalidForm maps to FILE004.
	errInvalidForm = errors.New("invalid upload form")

	// errFileTooLarge maps to FILE001.
	errFileTooLarge = errors.New("file too large")
)

const (
	// maxFormMemory is the part of a multipart form kept in memory; larger
	// files spill to temporary files.
	maxFormMemory = 32 << 20

	defaultHistoryLimit = 20
	pageHistoryLimit    = 10
)

// upload is a parsed console form.
type upload struct {
	file     multipart.File
	fileName string
	column   string
	params   crypt.Params
}

// readUpload parses the multipart console form. Missing column, key and IV
// fields fall back to the configured defaults.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Transform.MaxFileSize)

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) || strings.Contains(err.Error(), "request body too large") {
			return nil, fmt.Errorf("%w: %v", errFileTooLarge, err)
		}
		return nil, fmt.Errorf("%w: %v", errInvalidForm, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, core.ErrNoFile
		}
		return nil, fmt.Errorf("%w: %v", errInvalidForm, err)
	}

	up := &upload{
		file:     file,
		fileName: header.Filename,
		column:   strings.TrimSpace(r.FormValue("column")),
		params:   s.cfg.Transform.Params(),
	}
	if up.column == "" {
		up.column = s.cfg.Transform.DefaultColumn
	}
	if key := r.FormValue("key"); key != "" {
		up.params.Key = key
	}
	if iv := r.FormValue("iv"); iv != "" {
		up.params.IV = iv
	}
	return up, nil
}

// handleIndex renders the console page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, templates.PageParams{})
}

// renderPage renders the console with the configured defaults for any empty
// form field and the most recent runs.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, p templates.PageParams) {
	defaults := s.cfg.Transform.Params()
	if p.Column == "" {
		p.Column = s.cfg.Transform.DefaultColumn
	}
	if p.Key == "" {
		p.Key = defaults.Key
	}
	if p.IV == "" {
		p.IV = defaults.IV
	}

	history, err := s.service.History(r.Context(), pageHistoryLimit)
	if err != nil {
		logging.FromContext(r.Context()).Warn("load run history failed", "error", err)
	}
	p.History = history

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.Page(p).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render page failed", "error", err)
	}
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePreview returns the header and first rows of an uploaded file and
// whether the target column exists.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer up.file.Close()

	preview, err := s.service.Preview(r.Context(), up.file, up.column)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := templates.PreviewPartial(*preview).Render(r.Context(), w); err != nil {
			logging.FromContext(r.Context()).Error("render preview failed", "error", err)
		}
	case wantsHTML(r):
		s.renderPage(w, r, http.StatusOK, templates.PageParams{
			Column:  up.column,
			Key:     up.params.Key,
			IV:      up.params.IV,
			Preview: preview,
		})
	default:
		writeJSON(w, r, http.StatusOK, preview)
	}
}

// runSummary is the JSON view of a finished run.
type runSummary struct {
	RunID       string              `json:"run_id"`
	FileName    string              `json:"file_name"`
	Mode        core.Mode           `json:"mode"`
	Column      string              `json:"column"`
	Phase       core.Phase          `json:"phase"`
	Stats       core.Stats          `json:"stats"`
	Columns     []string            `json:"columns"`
	Rows        []map[string]string `json:"rows"`
	DownloadURL string              `json:"download_url"`
	DurationMS  int64               `json:"duration_ms"`
}

func downloadURL(runID string) string {
	return "/api/runs/" + runID + "/download"
}

func newRunSummary(run *core.Run) runSummary {
	return runSummary{
		RunID:       run.ID,
		FileName:    run.FileName,
		Mode:        run.Result.Mode,
		Column:      run.Result.Column,
		Phase:       run.Result.Phase,
		Stats:       run.Result.Stats,
		Columns:     run.Result.Columns,
		Rows:        run.Result.OutputRows(),
		DownloadURL: downloadURL(run.ID),
		DurationMS:  run.Result.Duration.Milliseconds(),
	}
}

func newResultView(run *core.Run) templates.ResultView {
	return templates.ResultView{
		RunID:       run.ID,
		FileName:    run.FileName,
		Mode:        run.Result.Mode,
		Column:      run.Result.Column,
		Columns:     run.Result.Columns,
		Rows:        run.Result.OutputRows(),
		Stats:       run.Result.Stats,
		DownloadURL: downloadURL(run.ID),
	}
}

// handleTransform runs encrypt or decrypt over an uploaded file.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	mode, err := core.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	up, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer up.file.Close()

	ctx := withRequestMetadata(r.Context(), r)
	run, err := s.service.Process(ctx, core.ProcessRequest{
		FileName: up.fileName,
		Column:   up.column,
		Mode:     mode,
		Params:   up.params,
		Body:     up.file,
	})
	if err != nil {
		if errors.Is(err, core.ErrTooManyRuns) {
			w.Header().Set("Retry-After", strconv.Itoa(int(s.cfg.Transform.MaxWaitTime.Seconds())))
		}
		respondError(w, r, err, statusFor(err))
		return
	}

	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := templates.ResultPartial(newResultView(run)).Render(r.Context(), w); err != nil {
			logging.FromContext(r.Context()).Error("render result failed", "error", err)
		}
	case wantsHTML(r):
		view := newResultView(run)
		s.renderPage(w, r, http.StatusOK, templates.PageParams{
			Column: up.column,
			Key:    up.params.Key,
			IV:     up.params.IV,
			Result: &view,
		})
	default:
		writeJSON(w, r, http.StatusOK, newRunSummary(run))
	}
}

// handleRunSummary returns a stored run.
func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.Result(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, newRunSummary(run))
}

// handleDownload sends a stored run as a CSV attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sink := &attachmentSink{w: w}
	err := s.service.Download(r.Context(), chi.URLParam(r, "runID"), sink)
	if err == nil {
		return
	}
	if sink.wrote {
		// Headers are out; the client sees a truncated body.
		logging.FromContext(r.Context()).Error("download write failed", "error", err)
		return
	}
	respondError(w, r, err, statusFor(err))
}

// handleHistory returns recent runs, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", defaultHistoryLimit)
	if limit > core.DefaultHistoryCapacity {
		limit = core.DefaultHistoryCapacity
	}

	records, err := s.service.History(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := templates.HistoryTable(records).Render(r.Context(), w); err != nil {
			logging.FromContext(r.Context()).Error("render history failed", "error", err)
		}
		return
	}
	if records == nil {
		records = []core.RunRecord{}
	}
	writeJSON(w, r, http.StatusOK, records)
}

// handleLimiterStatus returns the run limiter state.
func (s *Server) handleLimiterStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.LimiterStatus())
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// attachmentSink delivers a download as an HTTP attachment.
type attachmentSink struct {
	w     http.ResponseWriter
	wrote bool
}

func (s *attachmentSink) Deliver(filename, mimeType string, content []byte) error {
	h := s.w.Header()
	h.Set("Content-Type", mimeType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	h.Set("Content-Length", strconv.Itoa(len(content)))
	h.Set("Cache-Control", "no-store")

	s.wrote = true
	s.w.WriteHeader(http.StatusOK)
	_, err := s.w.Write(content)
	return err
}
