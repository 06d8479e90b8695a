// Command lmsbatch analyses a spreadsheet export offline and prints what the
// server would do with it, without contacting the LMS.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kiranshivaraju/lmsbridge/internal/ingest"
	"github.com/spf13/pflag"
)

const (
	formatSummary = "summary"
	formatJSON    = "json"
	formatTable   = "table"
)

var errRejected = errors.New("file rejected")

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("lmsbatch failed", "error", err)
		if errors.Is(err, errRejected) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("lmsbatch", pflag.ContinueOnError)
	format := fs.StringP("format", "f", formatSummary, "output format: summary, json or table")
	preview := fs.IntP("preview", "n", 5, "rows to show with the summary format")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: lmsbatch [--format summary|json|table] [--preview N] FILE")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("exactly one input file is required")
	}
	switch *format {
	case formatSummary, formatJSON, formatTable:
	default:
		return fmt.Errorf("unknown format %q", *format)
	}

	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	result := ingest.NewTransformer().Analyze(filepath.Base(path), data)
	slog.Debug("analysed file", "filename", result.Filename, "valid", result.Valid, "rows", result.TotalRows)

	switch *format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	case formatTable:
		if result.Valid {
			fmt.Fprint(out, *result.SerializedTable)
		}
	default:
		writeSummary(out, result, *preview)
	}

	if !result.Valid {
		return fmt.Errorf("%w: %s", errRejected, *result.Error)
	}
	return nil
}

func writeSummary(out io.Writer, result ingest.Result, n int) {
	fmt.Fprintf(out, "file:      %s\n", result.Filename)
	if !result.Valid {
		fmt.Fprintf(out, "error:     %s\n", *result.Error)
		if len(result.Columns) > 0 {
			fmt.Fprintf(out, "columns:   %v\n", result.Columns)
		}
		return
	}
	fmt.Fprintf(out, "operation: %s\n", *result.Operation)
	fmt.Fprintf(out, "rows:      %d\n", result.TotalRows)
	fmt.Fprintf(out, "summary:   %s\n", result.Summary)

	rows := result.Preview
	if n >= 0 && n < len(rows) {
		rows = rows[:n]
	}
	for i, row := range rows {
		b, err := json.Marshal(row)
		if err != nil {
			continue
		}
		fmt.Fprintf(out, "%4d  %s\n", i+1, b)
	}
}
