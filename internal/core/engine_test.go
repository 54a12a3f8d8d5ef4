package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/csvcrypt/internal/crypt"
	"github.com/JonMunkholm/csvcrypt/internal/tabular"
)

func mustParse(t testing.TB, input string) *tabular.Table {
	t.Helper()
	table, err := tabular.ParseAll(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseAll() error = %v", err)
	}
	return table
}

func encryptRequest() Request {
	return Request{Column: "phone", Mode: ModeEncrypt, Params: crypt.DefaultParams()}
}

func TestEngineRun_EncryptValidPhone(t *testing.T) {
	table := mustParse(t, "phone\n09123456789\n")

	result, err := NewEngine().Run(context.Background(), table, encryptRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Phase != PhaseCompleted {
		t.Errorf("Phase = %q, want %q", result.Phase, PhaseCompleted)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(result.Rows))
	}

	row := result.Rows[0]
	if row.Status != StatusSuccess {
		t.Errorf("Status = %q, want %q (error %q)", row.Status, StatusSuccess, row.Error)
	}
	wantFields := map[string]string{
		"phone":           "09123456789",
		"phone_encrypted": "63BUkMbh/09XRmJ6syctGw==",
		"status":          "success",
	}
	if diff := cmp.Diff(wantFields, row.Fields); diff != "" {
		t.Errorf("Fields mismatch (-want +got):\n%s", diff)
	}

	wantStats := Stats{Total: 1, Success: 1, Error: 0, SuccessRate: "100.00"}
	if diff := cmp.Diff(wantStats, result.Stats); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"phone", "phone_encrypted", "status"}, result.Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineRun_EncryptInvalidPhone(t *testing.T) {
	table := mustParse(t, "phone\n12345\n")

	result, err := NewEngine().Run(context.Background(), table, encryptRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	row := result.Rows[0]
	if row.Status != StatusError {
		t.Errorf("Status = %q, want %q", row.Status, StatusError)
	}
	if row.Error != "Invalid phone number format" {
		t.Errorf("Error = %q, want %q", row.Error, "Invalid phone number format")
	}
	if _, ok := row.Fields["phone_encrypted"]; ok {
		t.Error("phone_encrypted present on failed row")
	}
	if row.Fields["error"] != row.Error {
		t.Errorf("error field = %q, want %q", row.Fields["error"], row.Error)
	}

	wantStats := Stats{Total: 1, Success: 0, Error: 1, SuccessRate: "0.00"}
	if diff := cmp.Diff(wantStats, result.Stats); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"phone", "status", "error"}, result.Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineRun_ColumnNotFound(t *testing.T) {
	table := mustParse(t, "phone\n09123456789\n")

	var phases []Phase
	engine := NewEngine(WithProgress(func(p RunProgress) { phases = append(phases, p.Phase) }))

	req := encryptRequest()
	req.Column = "mobile"
	result, err := engine.Run(context.Background(), table, req)

	if result != nil {
		t.Errorf("Run() result = %+v, want nil", result)
	}
	var cnf *tabular.ColumnNotFoundError
	if !errors.As(err, &cnf) {
		t.Fatalf("Run() error = %v, want *ColumnNotFoundError", err)
	}
	if diff := cmp.Diff([]string{"phone"}, cnf.Available); diff != "" {
		t.Errorf("Available mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Phase{PhaseValidating, PhaseFailed}, phases); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineRun_DecryptContinuesAfterFailure(t *testing.T) {
	table := mustParse(t, "phone\nnot base64!!\n63BUkMbh/09XRmJ6syctGw==\n")

	req := Request{Column: "phone", Mode: ModeDecrypt, Params: crypt.DefaultParams()}
	result, err := NewEngine().Run(context.Background(), table, req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := result.Rows[0]; got.Status != StatusError || !strings.HasPrefix(got.Error, "Decryption failed") {
		t.Errorf("row 1 = {%q, %q}, want error starting with %q", got.Status, got.Error, "Decryption failed")
	}
	if got := result.Rows[1]; got.Status != StatusSuccess || got.Fields["phone_decrypted"] != "09123456789" {
		t.Errorf("row 2 = {%q, %q}, want success with 09123456789", got.Status, got.Fields["phone_decrypted"])
	}

	wantStats := Stats{Total: 2, Success: 1, Error: 1, SuccessRate: "50.00"}
	if diff := cmp.Diff(wantStats, result.Stats); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
	wantColumns := []string{"phone", "phone_decrypted", "status", "error"}
	if diff := cmp.Diff(wantColumns, result.Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineRun_DecryptDoesNotValidatePhone(t *testing.T) {
	// "hello" encrypted with the default parameters.
	ciphertext, err := crypt.Encrypt("hello", crypt.DefaultKey, crypt.DefaultIV)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	table := mustParse(t, "phone\n"+ciphertext+"\n")

	req := Request{Column: "phone", Mode: ModeDecrypt, Params: crypt.DefaultParams()}
	result, err := NewEngine().Run(context.Background(), table, req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := result.Rows[0].Fields["phone_decrypted"]; got != "hello" {
		t.Errorf("phone_decrypted = %q, want %q", got, "hello")
	}
}

func TestEngineRun_RoundTrip(t *testing.T) {
	phones := []string{"09123456789", "09350000000", "09999999999", "09000000000"}
	input := "phone,name\n"
	for i, p := range phones {
		input += fmt.Sprintf("%s,user%d\n", p, i)
	}

	params := crypt.Params{Key: "ABCDEFGHIJKLMNOPQRST", IV: "ééééééééé"}
	engine := NewEngine()

	encrypted, err := engine.Run(context.Background(), mustParse(t, input),
		Request{Column: "phone", Mode: ModeEncrypt, Params: params})
	if err != nil {
		t.Fatalf("encrypt Run() error = %v", err)
	}

	out, err := tabular.Marshal(encrypted.Columns, encrypted.OutputRows())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	decrypted, err := engine.Run(context.Background(), mustParse(t, string(out)),
		Request{Column: "phone_encrypted", Mode: ModeDecrypt, Params: params})
	if err != nil {
		t.Fatalf("decrypt Run() error = %v", err)
	}

	for i, row := range decrypted.Rows {
		if got := row.Fields["phone_encrypted_decrypted"]; got != phones[i] {
			t.Errorf("row %d: decrypted = %q, want %q", i, got, phones[i])
		}
	}
	if decrypted.Stats.Success != len(phones) {
		t.Errorf("Success = %d, want %d", decrypted.Stats.Success, len(phones))
	}
}

func TestEngineRun_StatsInvariant(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantRate string
	}{
		{"empty batch", "phone\n", "0"},
		{"one of three", "phone\n09123456789\nabc\n0912\n", "33.33"},
		{"two of three", "phone\n09123456789\n09123456780\n0912\n", "66.67"},
		{"all valid", "phone\n09123456789\n09123456780\n", "100.00"},
		{"short rows count as invalid", "phone,name\n09123456789,a\n,b\n", "50.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewEngine().Run(context.Background(), mustParse(t, tt.input), encryptRequest())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			s := result.Stats
			if s.Success+s.Error != s.Total {
				t.Errorf("Success(%d) + Error(%d) != Total(%d)", s.Success, s.Error, s.Total)
			}
			if s.SuccessRate != tt.wantRate {
				t.Errorf("SuccessRate = %q, want %q", s.SuccessRate, tt.wantRate)
			}
		})
	}
}

func TestEngineRun_DoesNotMutateInput(t *testing.T) {
	table := mustParse(t, "phone\n09123456789\n12345\n")

	if _, err := NewEngine().Run(context.Background(), table, encryptRequest()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, rec := range table.Records {
		if len(rec.Fields) != 1 {
			t.Errorf("line %d: input fields modified: %v", rec.Line, rec.Fields)
		}
	}
}

func TestEngineRun_NoStateAcrossRuns(t *testing.T) {
	table := mustParse(t, "phone\n09123456789\n")
	engine := NewEngine()

	if _, err := engine.Run(context.Background(), table, encryptRequest()); err != nil {
		t.Fatalf("encrypt Run() error = %v", err)
	}

	req := Request{Column: "phone", Mode: ModeDecrypt, Params: crypt.Params{Key: "0123456789abcdef", IV: "fedcba9876543210"}}
	result, err := engine.Run(context.Background(), table, req)
	if err != nil {
		t.Fatalf("decrypt Run() error = %v", err)
	}

	if _, ok := result.Rows[0].Fields["phone_encrypted"]; ok {
		t.Error("second run carries output of the first")
	}
	if diff := cmp.Diff([]string{"phone", "status", "error"}, result.Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineRun_AddedFieldsOverrideOriginals(t *testing.T) {
	table := mustParse(t, "phone,status\n09123456789,pending\n")

	result, err := NewEngine().Run(context.Background(), table, encryptRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := result.Rows[0].Fields["status"]; got != "success" {
		t.Errorf("status = %q, want success", got)
	}
	if diff := cmp.Diff([]string{"phone", "status", "phone_encrypted"}, result.Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineRun_KeepsExtraCells(t *testing.T) {
	table := mustParse(t, "phone,a\n09123456789,x,EXTRA\n12345,y\n")

	result, err := NewEngine().Run(context.Background(), table, encryptRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantColumns := []string{"phone", "a", tabular.ExtraColumn, "phone_encrypted", "status", "error"}
	if diff := cmp.Diff(wantColumns, result.Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}

	out, err := tabular.Marshal(result.Columns, result.OutputRows())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := "phone,a,__parsed_extra,phone_encrypted,status,error\n" +
		"09123456789,x,EXTRA,63BUkMbh/09XRmJ6syctGw==,success,\n" +
		"12345,y,,,error,Invalid phone number format\n"
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineRun_ValidationErrors(t *testing.T) {
	table := mustParse(t, "phone\n09123456789\n")

	tests := []struct {
		name  string
		req   Request
		check func(error) bool
	}{
		{
			name:  "invalid mode",
			req:   Request{Column: "phone", Mode: "rot13", Params: crypt.DefaultParams()},
			check: func(err error) bool { return errors.Is(err, ErrInvalidMode) },
		},
		{
			name: "short key",
			req:  Request{Column: "phone", Mode: ModeEncrypt, Params: crypt.Params{Key: "short", IV: crypt.DefaultIV}},
			check: func(err error) bool {
				var kle *crypt.KeyLengthError
				return errors.As(err, &kle) && kle.Param == "key"
			},
		},
		{
			name: "short iv",
			req:  Request{Column: "phone", Mode: ModeDecrypt, Params: crypt.Params{Key: crypt.DefaultKey, IV: ""}},
			check: func(err error) bool {
				var kle *crypt.KeyLengthError
				return errors.As(err, &kle) && kle.Param == "iv"
			},
		},
		{
			name: "missing column checked first",
			req:  Request{Column: "mobile", Mode: "rot13", Params: crypt.Params{}},
			check: func(err error) bool {
				var cnf *tabular.ColumnNotFoundError
				return errors.As(err, &cnf)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewEngine().Run(context.Background(), table, tt.req)
			if result != nil {
				t.Errorf("Run() result = %+v, want nil", result)
			}
			if !tt.check(err) {
				t.Errorf("Run() error = %v", err)
			}
		})
	}
}

func mixedInput(n int) string {
	var b strings.Builder
	b.WriteString("id,phone\n")
	for i := 0; i < n; i++ {
		if i%3 == 0 {
			fmt.Fprintf(&b, "%d,bad-%d\n", i, i)
		} else {
			fmt.Fprintf(&b, "%d,09%09d\n", i, i)
		}
	}
	return b.String()
}

func TestEngineRun_WorkersPreserveOrder(t *testing.T) {
	table := mustParse(t, mixedInput(200))

	sequential, err := NewEngine().Run(context.Background(), table, encryptRequest())
	if err != nil {
		t.Fatalf("sequential Run() error = %v", err)
	}
	pooled, err := NewEngine(WithWorkers(8)).Run(context.Background(), table, encryptRequest())
	if err != nil {
		t.Fatalf("pooled Run() error = %v", err)
	}

	if diff := cmp.Diff(sequential.Rows, pooled.Rows); diff != "" {
		t.Errorf("Rows mismatch (-sequential +pooled):\n%s", diff)
	}
	if diff := cmp.Diff(sequential.Stats, pooled.Stats); diff != "" {
		t.Errorf("Stats mismatch (-sequential +pooled):\n%s", diff)
	}
	if diff := cmp.Diff(sequential.Columns, pooled.Columns); diff != "" {
		t.Errorf("Columns mismatch (-sequential +pooled):\n%s", diff)
	}
}

func TestEngineRun_Progress(t *testing.T) {
	table := mustParse(t, mixedInput(6))

	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			var updates []RunProgress
			engine := NewEngine(
				WithWorkers(workers),
				WithProgress(func(p RunProgress) { updates = append(updates, p) }),
			)

			if _, err := engine.Run(context.Background(), table, encryptRequest()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if got := updates[0].Phase; got != PhaseValidating {
				t.Errorf("first phase = %q, want %q", got, PhaseValidating)
			}
			last := updates[len(updates)-1]
			if last.Phase != PhaseCompleted {
				t.Errorf("last phase = %q, want %q", last.Phase, PhaseCompleted)
			}
			if last.CurrentRow != 6 || last.Success+last.Failed != 6 {
				t.Errorf("last progress = %+v, want 6 rows", last)
			}
			if last.Percent() != 100 {
				t.Errorf("Percent() = %d, want 100", last.Percent())
			}
		})
	}
}

func TestEngineRun_CancelledBeforeStart(t *testing.T) {
	table := mustParse(t, mixedInput(10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			result, err := NewEngine(WithWorkers(workers)).Run(ctx, table, encryptRequest())
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("Run() error = %v, want context.Canceled", err)
			}
			if result.Phase != PhaseCancelled {
				t.Errorf("Phase = %q, want %q", result.Phase, PhaseCancelled)
			}
			if len(result.Rows) != 0 {
				t.Errorf("got %d rows, want 0", len(result.Rows))
			}
		})
	}
}

func TestEngineRun_CancelledBetweenRows(t *testing.T) {
	table := mustParse(t, mixedInput(10))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := NewEngine(WithProgress(func(p RunProgress) {
		if p.CurrentRow == 2 {
			cancel()
		}
	}))

	result, err := engine.Run(ctx, table, encryptRequest())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if !strings.Contains(err.Error(), "line 4") {
		t.Errorf("error = %q, want line 4", err.Error())
	}
	if len(result.Rows) != 2 || result.Stats.Total != 2 {
		t.Errorf("got %d rows (total %d), want 2", len(result.Rows), result.Stats.Total)
	}
	if result.Phase != PhaseCancelled {
		t.Errorf("Phase = %q, want %q", result.Phase, PhaseCancelled)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"encrypt", ModeEncrypt, false},
		{"decrypt", ModeDecrypt, false},
		{"Encrypt", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestModeNames(t *testing.T) {
	if got := ModeEncrypt.OutputColumn("phone"); got != "phone_encrypted" {
		t.Errorf("OutputColumn = %q, want phone_encrypted", got)
	}
	if got := ModeDecrypt.OutputColumn("phone"); got != "phone_decrypted" {
		t.Errorf("OutputColumn = %q, want phone_decrypted", got)
	}
	if got := ModeEncrypt.FileName("users.csv"); got != "encrypted_users.csv" {
		t.Errorf("FileName = %q, want encrypted_users.csv", got)
	}
	if got := ModeDecrypt.FileName("users.csv"); got != "decrypted_users.csv" {
		t.Errorf("FileName = %q, want decrypted_users.csv", got)
	}
}
