package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
)

// MIMEType is the content type of serialized output.
const MIMEType = "text/csv;charset=utf-8;"

// Serialize writes a header line followed by one line per row. Columns
// missing from a row are written as empty fields. Values containing the
// delimiter, quotes or line breaks are quoted per RFC 4180.
func Serialize(w io.Writer, columns []string, rows []map[string]string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(columns))
	for i, row := range rows {
		for j, col := range columns {
			record[j] = row[col]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Marshal is Serialize into a byte slice.
func Marshal(columns []string, rows []map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Serialize(&buf, columns, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnionColumns returns base followed by each key in extra that at least one
// row carries and that is not already in base. The result is the same for
// any permutation of rows.
func UnionColumns(base []string, rows []map[string]string, extra ...string) []string {
	out := slices.Clone(base)
	for _, key := range extra {
		if slices.Contains(out, key) {
			continue
		}
		for _, row := range rows {
			if _, ok := row[key]; ok {
				out = append(out, key)
				break
			}
		}
	}
	return out
}
