// Package analysis groups the failed rows of a batch job into an error
// distribution.
package analysis

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/lmsbridge/pkg/models"
)

// Normalization regexes compiled once at package init.
var (
	reSingleQuoted = regexp.MustCompile(`'[^']*'`)
	reDoubleQuoted = regexp.MustCompile(`"[^"]*"`)
	reEmail        = regexp.MustCompile(`[\w.+\-]+@[\w\-]+(\.[\w\-]+)+`)
	reUUID         = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	reNumber       = regexp.MustCompile(`\b\d+\b`)
	reWhitespace   = regexp.MustCompile(`\s+`)
)

const maxSampleBytes = 1000

// Distribution groups ERROR entries into buckets by message fingerprint.
// Returns buckets sorted by (Count DESC, Message ASC).
// Returns empty slice for input without errors (never nil).
func Distribution(entries []*models.RowAuditEntry) []models.ErrorBucket {
	groups := make(map[string]*models.ErrorBucket)

	for _, e := range entries {
		if e == nil || e.Status != models.OutcomeError {
			continue
		}
		fp := Fingerprint(e.Message)
		b, exists := groups[fp]
		if !exists {
			b = &models.ErrorBucket{
				Fingerprint:      fp,
				Message:          truncateString(e.Message, maxSampleBytes),
				SampleIdentifier: e.Identifier,
			}
			groups[fp] = b
		}
		b.Count++
	}

	buckets := make([]models.ErrorBucket, 0, len(groups))
	for _, b := range groups {
		buckets = append(buckets, *b)
	}

	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Message < buckets[j].Message
	})

	return buckets
}

// SuccessRate returns the share of processed rows that succeeded, as a
// percentage rounded to one decimal. A job with no processed rows has rate 0.
func SuccessRate(success, failed int) float64 {
	processed := success + failed
	if processed == 0 {
		return 0
	}
	rate := float64(success) * 100 / float64(processed)
	return float64(int(rate*10+0.5)) / 10
}

// Fingerprint computes a stable SHA-256 fingerprint for an audit message.
func Fingerprint(message string) string {
	normalized := NormalizeMessage(message)
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hash)
}

// NormalizeMessage masks the row-specific parts of an audit message so that
// the same failure on different rows yields the same text.
func NormalizeMessage(msg string) string {
	msg = reSingleQuoted.ReplaceAllString(msg, "'X'")
	msg = reDoubleQuoted.ReplaceAllString(msg, `"X"`)
	msg = reEmail.ReplaceAllString(msg, "EMAIL")
	msg = reUUID.ReplaceAllString(msg, "UUID")
	msg = reNumber.ReplaceAllString(msg, "N")
	msg = reWhitespace.ReplaceAllString(msg, " ")
	msg = strings.ToLower(msg)
	msg = strings.TrimSpace(msg)
	msg = truncateString(msg, 500)
	return msg
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
