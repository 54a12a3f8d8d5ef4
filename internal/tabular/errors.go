package tabular

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyFile is returned when the input has no header row.
var ErrEmptyFile = errors.New("empty file")

// ParseError reports input that is not well-formed delimited text.
type ParseError struct {
	Line int // 1-indexed; 0 when not tied to a line
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("Error parsing CSV: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("Error parsing CSV: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ColumnNotFoundError reports a target column absent from the header.
type ColumnNotFoundError struct {
	Column    string
	Available []string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("Column %q not found. Available columns: %s", e.Column, strings.Join(e.Available, ", "))
}
