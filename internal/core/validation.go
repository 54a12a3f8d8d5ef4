package core

// validation.go provides the checks made before and during a run.
//
// Validation happens at two levels:
//  1. Run validation: the target column exists, the mode is known and the
//     key/IV produce usable cipher material. Any failure aborts the run
//     before the first row.
//  2. Row validation: in encrypt mode each value must be a phone number.
//     A failure is recorded on that row only.

import (
	"github.com/JonMunkholm/csvcrypt/internal/crypt"
	"github.com/JonMunkholm/csvcrypt/internal/tabular"
)

// MsgInvalidPhone is the row error for values that are not phone numbers.
const MsgInvalidPhone = "Invalid phone number format"

// ValidationError represents a row value rejected before transformation.
type ValidationError struct {
	Line    int    // source line
	Field   string // column name
	Value   string // the invalid value
	Message string // human-readable error message
}

func (e *ValidationError) Error() string {
	return e.Message
}

// validateRun checks the request against the table and returns the cipher
// for the run.
func validateRun(table *tabular.Table, req Request) (*crypt.Cipher, error) {
	if err := table.RequireColumn(req.Column); err != nil {
		return nil, err
	}
	if !req.Mode.Valid() {
		_, err := ParseMode(string(req.Mode))
		return nil, err
	}
	return crypt.NewFromParams(req.Params)
}

// validateRow returns a *ValidationError if value cannot be processed in mode.
// Decrypt mode does not validate its input.
func validateRow(mode Mode, rec tabular.Record, column string) error {
	if mode != ModeEncrypt {
		return nil
	}
	value := rec.Fields[column]
	if crypt.ValidatePhoneNumber(value) {
		return nil
	}
	return &ValidationError{
		Line:    rec.Line,
		Field:   column,
		Value:   value,
		Message: MsgInvalidPhone,
	}
}
