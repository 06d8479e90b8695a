package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedTable is returned by ParseTable for a handoff table that
// cannot be read back.
var ErrMalformedTable = errors.New("malformed table")

// Row maps normalized column names to cleaned cell values.
type Row map[string]string

// Table is a normalized table: ordered columns and rows keyed by column.
type Table struct {
	Columns []string
	Rows    []Row
}

// Has reports whether every named column is present.
func (t *Table) Has(cols ...string) bool {
	for _, c := range cols {
		if !t.hasColumn(c) {
			return false
		}
	}
	return true
}

func (t *Table) hasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// addColumn appends col if the table does not already have it.
func (t *Table) addColumn(col string) {
	if !t.hasColumn(col) {
		t.Columns = append(t.Columns, col)
	}
}

// Preview returns at most n rows.
func (t *Table) Preview(n int) []Row {
	if len(t.Rows) < n {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// Serialize writes the table as CSV with a header row.
func (t *Table) Serialize() (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(t.Columns); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, c := range t.Columns {
			rec[i] = row[c]
		}
		if err := w.Write(rec); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush table: %w", err)
	}
	return b.String(), nil
}

// ParseTable reads a table produced by Serialize.
func ParseTable(serialized string) (*Table, error) {
	r := csv.NewReader(strings.NewReader(serialized))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing header row", ErrMalformedTable)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	for i, h := range header {
		if strings.TrimSpace(h) == "" {
			return nil, fmt.Errorf("%w: blank header at column %d", ErrMalformedTable, i+1)
		}
	}

	t := &Table{Columns: header}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTable, err)
		}
		row := make(Row, len(header))
		for i, c := range header {
			if i < len(rec) {
				row[c] = rec[i]
			} else {
				row[c] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
