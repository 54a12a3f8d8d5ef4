package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// DefaultPreviewRows is the number of data rows shown before a full run.
const DefaultPreviewRows = 5

// ParseAll parses the whole input into a Table.
// Returns *ParseError if the input is empty or not well-formed.
func ParseAll(r io.Reader) (*Table, error) {
	return parse(r, -1)
}

// ParsePreview parses the header and at most maxRows data rows. Input past
// the limit is not read beyond the next record, which is only used to set
// Table.Truncated.
func ParsePreview(r io.Reader, maxRows int) (*Table, error) {
	if maxRows < 0 {
		maxRows = 0
	}
	return parse(r, maxRows)
}

// parse reads records until EOF or until limit data rows were read.
// A negative limit means no limit.
func parse(r io.Reader, limit int) (*Table, error) {
	cr := newCSVReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &ParseError{Err: ErrEmptyFile}
	}
	if err != nil {
		return nil, toParseError(err)
	}

	headerLine, _ := cr.FieldPos(0)
	columns, err := checkHeader(headerLine, header)
	if err != nil {
		return nil, err
	}

	t := &Table{Columns: columns}
	for {
		if limit >= 0 && len(t.Records) == limit {
			if _, err := cr.Read(); err != io.EOF {
				t.Truncated = true
			}
			break
		}

		cells, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, toParseError(err)
		}

		line, _ := cr.FieldPos(0)
		t.Records = append(t.Records, newRecord(line, columns, cells))
	}

	return t, nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(NewInputReader(r))
	// Rows may be shorter or longer than the header.
	cr.FieldsPerRecord = -1
	return cr
}

// checkHeader enforces the column set invariant: no duplicate names.
func checkHeader(line int, header []string) ([]string, error) {
	seen := make(map[string]bool, len(header))
	for _, name := range header {
		if seen[name] {
			return nil, &ParseError{Line: line, Err: fmt.Errorf("duplicate column %q", name)}
		}
		seen[name] = true
	}
	return header, nil
}

func newRecord(line int, columns, cells []string) Record {
	fields := make(map[string]string, len(columns))
	for i, col := range columns {
		if i < len(cells) {
			fields[col] = cells[i]
		} else {
			fields[col] = ""
		}
	}

	var extra []string
	if len(cells) > len(columns) {
		extra = cells[len(columns):]
	}

	return Record{Line: line, Fields: fields, Extra: extra}
}

// toParseError converts csv syntax errors to *ParseError. Read errors from
// the underlying input are returned wrapped but unconverted.
func toParseError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Line: pe.Line, Err: pe.Err}
	}
	return fmt.Errorf("read input: %w", err)
}
