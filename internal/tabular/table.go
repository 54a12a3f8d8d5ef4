// Package tabular parses delimited text into header-keyed records and
// serializes records back to CSV.
//
// Every value is a string; no trimming or type inference is applied. The
// header row defines the column set, whose order is preserved end to end so
// a transformed file keeps the layout of the file it came from.
package tabular

import (
	"slices"
	"strings"
)

// ExtraColumn is the output column that carries a record's Extra cells,
// joined with commas.
const ExtraColumn = "__parsed_extra"

// Record is one data row keyed by column name.
type Record struct {
	// Line is the 1-indexed line in the source where the record starts.
	Line int

	// Fields holds one value per header column. Cells missing from a short
	// row are present as "".
	Fields map[string]string

	// Extra holds cells beyond the header width, in source order.
	Extra []string
}

// Clone returns a copy of the record whose Fields map can be modified without
// affecting the original.
func (r Record) Clone() Record {
	fields := make(map[string]string, len(r.Fields)+3)
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{
		Line:   r.Line,
		Fields: fields,
		Extra:  slices.Clone(r.Extra),
	}
}

// OutputFields returns a copy of Fields with the Extra cells, if any, under
// ExtraColumn, so that writing the record back out keeps every cell.
func (r Record) OutputFields() map[string]string {
	fields := r.Clone().Fields
	if len(r.Extra) > 0 {
		fields[ExtraColumn] = strings.Join(r.Extra, ",")
	}
	return fields
}

// Table is the parsed form of a delimited file.
type Table struct {
	Columns []string
	Records []Record

	// Truncated is set by ParsePreview when rows beyond the limit exist.
	Truncated bool
}

// Len returns the number of data records.
func (t *Table) Len() int {
	return len(t.Records)
}

// HasColumn reports whether name is one of the table's columns.
func (t *Table) HasColumn(name string) bool {
	return slices.Contains(t.Columns, name)
}

// RequireColumn returns *ColumnNotFoundError if name is not a column.
func (t *Table) RequireColumn(name string) error {
	if t.HasColumn(name) {
		return nil
	}
	return &ColumnNotFoundError{
		Column:    name,
		Available: slices.Clone(t.Columns),
	}
}

// Rows returns the field maps of all records, in order.
func (t *Table) Rows() []map[string]string {
	rows := make([]map[string]string, len(t.Records))
	for i, rec := range t.Records {
		rows[i] = rec.Fields
	}
	return rows
}
