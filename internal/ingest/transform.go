package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/lmsbridge/pkg/models"
	"github.com/kiranshivaraju/lmsbridge/pkg/naming"
)

// PreviewRows is the number of rows returned for caller display.
const PreviewRows = 5

// Result is the outcome of analysing an upload. Exactly one of
// (Valid, Operation, SerializedTable) or Error is set.
type Result struct {
	Valid           bool                  `json:"valid"`
	Operation       *models.OperationKind `json:"operation"`
	SerializedTable *string               `json:"serialized_table"`
	Preview         []Row                 `json:"preview"`
	Error           *string               `json:"error"`
	Summary         string                `json:"summary"`
	Filename        string                `json:"filename"`
	Columns         []string              `json:"columns,omitempty"`
	TotalRows       int                   `json:"total_rows"`
}

// Transformer runs the ingest pipeline. It holds no state between calls.
type Transformer struct {
	rules naming.Rules
}

// NewTransformer creates a new Transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Analyze runs the pipeline and reports the outcome as a Result. It never
// returns a partially valid result.
func (t *Transformer) Analyze(filename string, data []byte) Result {
	table, op, err := t.Transform(data)
	if err != nil {
		slog.Info("upload rejected", "filename", filename, "error", err)
		msg := err.Error()
		res := Result{
			Error:    &msg,
			Preview:  []Row{},
			Summary:  "file rejected",
			Filename: filename,
		}
		var unrecognized *UnrecognizedColumnsError
		if errors.As(err, &unrecognized) {
			res.Columns = unrecognized.Found
		}
		return res
	}

	serialized, err := table.Serialize()
	if err != nil {
		msg := fmt.Sprintf("serialize table: %v", err)
		return Result{Error: &msg, Preview: []Row{}, Summary: "file rejected", Filename: filename}
	}

	return Result{
		Valid:           true,
		Operation:       &op,
		SerializedTable: &serialized,
		Preview:         table.Preview(PreviewRows),
		Summary:         fmt.Sprintf("%d records detected for %s", len(table.Rows), op),
		Filename:        filename,
		Columns:         table.Columns,
		TotalRows:       len(table.Rows),
	}
}

// Transform decodes, normalizes, cleans, derives and classifies an upload.
// It stops at the first step that fails.
func (t *Transformer) Transform(data []byte) (*Table, models.OperationKind, error) {
	raw, err := Decode(data)
	if err != nil {
		return nil, "", err
	}
	if len(raw.Header) == 0 {
		return nil, "", ErrEmptyFile
	}

	table := &Table{Columns: NormalizeHeaders(raw.Header)}
	hasUsername := table.Has(ColUsername)
	academic := table.Has(naming.AcademicColumns...)
	if academic {
		for _, c := range []string{ColShortname, ColFullname, ColCategoryIDNumber, ColFormat, ColTemplateCourse} {
			table.addColumn(c)
		}
	}

	for _, rec := range raw.Records {
		row := make(Row, len(table.Columns))
		blank := true
		for i, cell := range rec {
			col := table.Columns[i]
			if col == ColUsername && hasUsername {
				row[col] = CleanIdentifier(cell)
			} else {
				row[col] = CleanText(cell)
			}
			if row[col] != "" {
				blank = false
			}
		}
		// Emptiness is judged on the uploaded cells; derived and defaulted
		// values below would otherwise keep blank rows alive.
		if blank {
			continue
		}

		if academic {
			d := t.rules.Derive(naming.AcademicRowFrom(row))
			row[ColShortname] = d.Shortname
			row[ColFullname] = d.Fullname
			row[ColCategoryIDNumber] = d.CategoryIDNumber
			row[ColFormat] = d.Format
			row[ColTemplateCourse] = d.TemplateCourse
		}
		if _, ok := row[ColVisible]; ok {
			row[ColVisible] = strconv.Itoa(coerceFlag(row[ColVisible], 1))
		}
		if _, ok := row[ColDelete]; ok {
			row[ColDelete] = strconv.Itoa(coerceFlag(row[ColDelete], 0))
		}
		table.Rows = append(table.Rows, row)
	}

	if len(table.Rows) == 0 {
		return nil, "", ErrEmptyFile
	}

	op, err := Classify(table.Columns)
	if err != nil {
		return nil, "", err
	}
	return table, op, nil
}

// coerceFlag parses a 0/1 style cell, accepting float artifacts like "1.0".
func coerceFlag(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
		return int(f)
	}
	return def
}
