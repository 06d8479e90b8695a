package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrEmptyFile      = errors.New("empty file")
	ErrUnreadableFile = errors.New("unreadable file")
)

var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

// Source encodings reported by Decode.
const (
	SourceWorkbook = "xlsx"
	SourceUTF8     = "csv/utf-8"
	SourceLatin1   = "csv/latin-1"
)

// RawTable is a decoded upload before header normalization and cleaning.
// Every record has exactly len(Header) cells.
type RawTable struct {
	Header  []string
	Records [][]string
	Source  string
}

// Decode reads data as an xlsx workbook (first sheet), falling back to
// delimited text in UTF-8 and then Latin-1.
func Decode(data []byte) (*RawTable, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	if raw, err := decodeWorkbook(data); err == nil {
		return raw, nil
	}
	return decodeDelimited(data)
}

func decodeWorkbook(data []byte) (*RawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return newRawTable(rows, SourceWorkbook), nil
}

func decodeDelimited(data []byte) (*RawTable, error) {
	data = bytes.TrimPrefix(data, bomUTF8)

	source := SourceUTF8
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("%w: latin-1 decode: %v", ErrUnreadableFile, err)
		}
		data = decoded
		source = SourceLatin1
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
		}
		records = append(records, rec)
	}
	return newRawTable(records, source), nil
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab on the
// header line. Comma wins ties.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', strings.Count(string(line), ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(string(line), string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// newRawTable splits rows into header and records, padding or truncating
// each record to the header width.
func newRawTable(rows [][]string, source string) *RawTable {
	raw := &RawTable{Source: source}
	if len(rows) == 0 {
		return raw
	}
	raw.Header = rows[0]
	width := len(raw.Header)
	for _, rec := range rows[1:] {
		switch {
		case len(rec) < width:
			padded := make([]string, width)
			copy(padded, rec)
			rec = padded
		case len(rec) > width:
			rec = rec[:width]
		}
		raw.Records = append(raw.Records, rec)
	}
	return raw
}
