// Package ingest turns uploaded spreadsheets into normalized, classified
// tables ready for batch execution.
package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// missingSentinels are cell values that spreadsheet tooling writes for an
// absent value. They are compared case-insensitively after trimming.
var missingSentinels = map[string]struct{}{
	"nan":  {},
	"none": {},
	"null": {},
	"nat":  {},
	"#n/a": {},
	"<na>": {},
}

// CleanText returns the trimmed string form of v, or "" for nil, NaN and
// missing-value sentinels.
func CleanText(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s = x
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		if math.IsNaN(float64(x)) {
			return ""
		}
		s = strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}

	s = strings.TrimSpace(s)
	if _, missing := missingSentinels[strings.ToLower(s)]; missing {
		return ""
	}
	return s
}

// CleanIdentifier lowercases v and keeps only [a-z0-9.-@_]. Invalid
// characters are dropped, so the result may be empty.
func CleanIdentifier(v any) string {
	s := strings.ToLower(CleanText(v))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '@', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
