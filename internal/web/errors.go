package web

// errors.go renders every error response of the console.
//
// Errors are logged with their technical detail and request id, mapped to a
// user message with core.MapError, then written as an HTMX fragment, JSON or
// the full console page, depending on the request.

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvcrypt/internal/core"
	"github.com/JonMunkholm/csvcrypt/internal/crypt"
	"github.com/JonMunkholm/csvcrypt/internal/logging"
	"github.com/JonMunkholm/csvcrypt/internal/tabular"
	"github.com/JonMunkholm/csvcrypt/internal/web/templates"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for an error returned by the service.
func statusFor(err error) int {
	var (
		maxBytes *http.MaxBytesError
		parseErr *tabular.ParseError
		colErr   *tabular.ColumnNotFoundError
		keyErr   *crypt.KeyLengthError
		valErr   *core.ValidationError
	)

	switch {
	case errors.As(err, &maxBytes), errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.As(err, &parseErr),
		errors.As(err, &colErr),
		errors.As(err, &keyErr),
		errors.As(err, &valErr),
		errors.Is(err, tabular.ErrEmptyFile),
		errors.Is(err, core.ErrNoFile),
		errors.Is(err, core.ErrInvalidMode),
		errors.Is(err, errInvalidForm):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes a user-facing error response.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context()).With(
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	)
	if status >= http.StatusInternalServerError {
		logger.Error("request error")
	} else {
		logger.Warn("request error")
	}

	detail := errorDetail(err)

	if wantsJSON(r) {
		text := msg.Message
		if detail != "" {
			text = detail
		}
		writeJSON(w, r, status, ErrorResponse{
			Error:   text,
			Message: msg.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		})
		return
	}

	// HTMX swaps the fragment in; a plain form post shows it on its own.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ErrorAlert(msg.Message, msg.Action, msg.Code, detail).Render(r.Context(), w); err != nil {
		logger.Error("render error alert failed", "render_error", err)
	}
}

// errorDetail returns the exact text of errors that abort a run before any
// row is processed, so the operator sees the line or the available columns.
// Other errors have no detail.
func errorDetail(err error) string {
	var (
		parseErr *tabular.ParseError
		colErr   *tabular.ColumnNotFoundError
		keyErr   *crypt.KeyLengthError
	)
	switch {
	case errors.As(err, &colErr):
		return colErr.Error()
	case errors.As(err, &keyErr):
		return keyErr.Error()
	case errors.As(err, &parseErr):
		return parseErr.Error()
	default:
		return ""
	}
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsHTML reports whether a browser submitted the console form directly.
func wantsHTML(r *http.Request) bool {
	return !isHTMX(r) && strings.Contains(r.Header.Get("Accept"), "text/html")
}

// wantsJSON checks if the client prefers a JSON response. API routes default
// to JSON unless HTMX or a browser asked for HTML.
func wantsJSON(r *http.Request) bool {
	if isHTMX(r) {
		return false
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if wantsHTML(r) {
		return false
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
