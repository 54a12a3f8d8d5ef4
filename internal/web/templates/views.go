// Package templates holds the console's templ components. Components are
// authored in console.templ; console_templ.go is generated by templ.
//
//go:generate templ generate
package templates

import (
	"fmt"

	"github.com/JonMunkholm/csvcrypt/internal/core"
)

// MaxResultRows is the number of result rows rendered in the console. The
// download always has every row.
const MaxResultRows = 100

const timeLayout = "2006-01-02 15:04:05"

// PageParams is the state of the console page.
type PageParams struct {
	Column string
	Key    string
	IV     string

	Preview *core.PreviewResponse
	Result  *ResultView
	History []core.RunRecord

	Error *core.UserMessage
	// ErrorDetail is the verbatim error text shown under the message.
	ErrorDetail string
}

// ResultView is a finished run as shown in the console.
type ResultView struct {
	RunID       string
	FileName    string
	Mode        core.Mode
	Column      string
	Columns     []string
	Rows        []map[string]string
	Stats       core.Stats
	DownloadURL string
}

// Heading is the result title, e.g. "encrypt: users.csv".
func (r ResultView) Heading() string {
	return fmt.Sprintf("%s: %s", r.Mode, r.FileName)
}

// VisibleRows returns at most MaxResultRows rows.
func (r ResultView) VisibleRows() []map[string]string {
	if len(r.Rows) > MaxResultRows {
		return r.Rows[:MaxResultRows]
	}
	return r.Rows
}

// Truncated reports whether rows were left out of the rendered table.
func (r ResultView) Truncated() bool {
	return len(r.Rows) > MaxResultRows
}

func (r ResultView) truncatedNote() string {
	return fmt.Sprintf("Showing %d of %d rows. Download for the full result.", len(r.VisibleRows()), len(r.Rows))
}

func isErrorRow(row map[string]string) bool {
	return row[core.FieldStatus] == string(core.StatusError)
}
