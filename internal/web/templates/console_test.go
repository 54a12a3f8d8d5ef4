package templates

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/csvcrypt/internal/core"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var b strings.Builder
	if err := c.Render(context.Background(), &b); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return b.String()
}

func TestPage_EscapesFormValues(t *testing.T) {
	html := render(t, Page(PageParams{
		Column: `phone"><script>`,
		Key:    "-VWdb-9Ha^NSGbb4",
		IV:     "?L$%!G-ADpj>ykP8",
	}))

	if strings.Contains(html, "<script>") {
		t.Errorf("Page() rendered unescaped column value:\n%s", html)
	}
	if !strings.Contains(html, "?L$%!G-ADpj&gt;ykP8") {
		t.Errorf("Page() missing escaped IV:\n%s", html)
	}
	for _, action := range []string{"/api/preview", "/api/transform/encrypt", "/api/transform/decrypt"} {
		if !strings.Contains(html, action) {
			t.Errorf("Page() missing form action %s", action)
		}
	}
	if !strings.Contains(html, "No runs yet.") {
		t.Error("Page() without history should say so")
	}
}

func TestPage_Sections(t *testing.T) {
	html := render(t, Page(PageParams{
		Column:      "phone",
		Preview:     &core.PreviewResponse{Columns: []string{"phone"}, Warning: "Column \"phone\" not found."},
		Result:      &ResultView{RunID: "run-1", Mode: core.ModeEncrypt, FileName: "users.csv"},
		Error:       &core.UserMessage{Message: "File is not a valid CSV", Code: "PARSE001"},
		ErrorDetail: "Error parsing CSV: line 2: bare \" in non-quoted-field",
	}))

	for _, want := range []string{
		`class="preview"`,
		`data-run-id="run-1"`,
		"PARSE001",
		"Column &#34;phone&#34; not found.",
		"Error parsing CSV: line 2: bare &#34; in non-quoted-field",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("Page() missing %q", want)
		}
	}
}

func TestPreviewPartial(t *testing.T) {
	html := render(t, PreviewPartial(core.PreviewResponse{
		Columns:   []string{"name", "phone"},
		Rows:      []map[string]string{{"name": "Ann & Bo", "phone": "09123456789"}},
		Truncated: true,
	}))

	for _, want := range []string{"<th>name</th>", "<td>Ann &amp; Bo</td>", "Showing the first 1 rows."} {
		if !strings.Contains(html, want) {
			t.Errorf("PreviewPartial() missing %q:\n%s", want, html)
		}
	}
}

func TestResultPartial_LimitsRows(t *testing.T) {
	rows := make([]map[string]string, MaxResultRows+5)
	for i := range rows {
		rows[i] = map[string]string{"phone": "x", core.FieldStatus: string(core.StatusSuccess)}
	}
	rows[0][core.FieldStatus] = string(core.StatusError)

	html := render(t, ResultPartial(ResultView{
		RunID:       "run-1",
		FileName:    "users.csv",
		Mode:        core.ModeDecrypt,
		Columns:     []string{"phone", core.FieldStatus},
		Rows:        rows,
		Stats:       core.Stats{Total: len(rows), Success: len(rows) - 1, Error: 1, SuccessRate: "99.05"},
		DownloadURL: "/api/runs/run-1/download",
	}))

	if got := strings.Count(html, "<tr"); got != MaxResultRows+1 {
		t.Errorf("rendered %d table rows, want %d (header + %d)", got, MaxResultRows+1, MaxResultRows)
	}
	if strings.Count(html, `class="row-error"`) != 1 {
		t.Error("ResultPartial() should mark exactly one error row")
	}
	for _, want := range []string{"decrypt: users.csv", "99.05%", `href="/api/runs/run-1/download"`, "Showing 100 of 105 rows."} {
		if !strings.Contains(html, want) {
			t.Errorf("ResultPartial() missing %q", want)
		}
	}
}

func TestHistoryTable(t *testing.T) {
	html := render(t, HistoryTable([]core.RunRecord{{
		ID:        "run-1",
		FileName:  "users.csv",
		Mode:      core.ModeEncrypt,
		Column:    "phone",
		Phase:     core.PhaseFailed,
		Error:     `Column "phone" not found.`,
		StartedAt: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
	}}))

	for _, want := range []string{"2024-05-01 12:30:00", "users.csv", "failed", `title="Column &#34;phone&#34; not found."`} {
		if !strings.Contains(html, want) {
			t.Errorf("HistoryTable() missing %q:\n%s", want, html)
		}
	}
}

func TestErrorAlert(t *testing.T) {
	tests := []struct {
		name    string
		message string
		action  string
		detail  string
		want    []string
		notWant []string
	}{
		{
			name:    "message only",
			message: "Too many requests",
			want:    []string{"<strong>Too many requests</strong>", "Code: RATE001"},
			notWant: []string{"<p>", "error-detail"},
		},
		{
			name:    "detail shown verbatim",
			message: "Target column not found in the file",
			action:  "Check the column name",
			detail:  `Column "mobile" not found. Available columns: phone, name`,
			want: []string{
				"<p>Check the column name</p>",
				`<pre class="error-detail">Column &#34;mobile&#34; not found. Available columns: phone, name</pre>`,
			},
		},
		{
			name:    "detail equal to message is not repeated",
			message: "Too many requests",
			detail:  "Too many requests",
			notWant: []string{"error-detail"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := render(t, ErrorAlert(tt.message, tt.action, "RATE001", tt.detail))
			for _, want := range tt.want {
				if !strings.Contains(html, want) {
					t.Errorf("ErrorAlert() missing %q:\n%s", want, html)
				}
			}
			for _, bad := range tt.notWant {
				if strings.Contains(html, bad) {
					t.Errorf("ErrorAlert() should not contain %q:\n%s", bad, html)
				}
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRender_ReturnsWriteError(t *testing.T) {
	err := Page(PageParams{}).Render(context.Background(), failingWriter{})
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Errorf("Render() error = %v, want broken pipe", err)
	}
}
