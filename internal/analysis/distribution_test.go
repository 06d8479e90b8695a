package analysis

import (
	"strings"
	"testing"

	"github.com/kiranshivaraju/lmsbridge/pkg/models"
)

// --- NormalizeMessage tests ---

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "masks single-quoted identifiers",
			input:    "user 'jdoe' not found in LMS",
			expected: "user 'x' not found in lms",
		},
		{
			name:     "masks double-quoted identifiers",
			input:    `course "MAT101_s1G-A" not found`,
			expected: `course "x" not found`,
		},
		{
			name:     "masks numbers",
			input:    "password too short: must be at least 8 characters (got 5)",
			expected: "password too short: must be at least n characters (got n)",
		},
		{
			name:     "masks emails",
			input:    "Invalid email jdoe@example.edu",
			expected: "invalid email email",
		},
		{
			name:     "masks UUIDs",
			input:    "job 550e8400-e29b-41d4-a716-446655440000 failed",
			expected: "job uuid failed",
		},
		{
			name:     "keeps codes embedded in words",
			input:    "category URA_04_s1 missing",
			expected: "category ura_04_s1 missing",
		},
		{
			name:     "collapses whitespace",
			input:    "too   many    spaces",
			expected: "too many spaces",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeMessage(tt.input)
			if got != tt.expected {
				t.Errorf("\nexpected: %q\ngot:      %q", tt.expected, got)
			}
		})
	}
}

func TestNormalizeMessage_TruncatesTo500(t *testing.T) {
	got := NormalizeMessage(strings.Repeat("a", 600))
	if len(got) > 500 {
		t.Errorf("expected max 500 chars, got %d", len(got))
	}
}

// --- Fingerprint tests ---

func TestFingerprint_SameFailureDifferentRows(t *testing.T) {
	fp1 := Fingerprint("user 'jdoe' not found in LMS")
	fp2 := Fingerprint("user 'asmith' not found in LMS")
	if fp1 != fp2 {
		t.Errorf("same failure on different rows should have same fingerprint:\n  %s\n  %s", fp1, fp2)
	}
}

func TestFingerprint_DifferentMessages(t *testing.T) {
	fp1 := Fingerprint("user 'jdoe' not found in LMS")
	fp2 := Fingerprint("course 'C1' not found in LMS")
	if fp1 == fp2 {
		t.Error("different messages should have different fingerprints")
	}
}

func TestFingerprint_IsLowercaseHex(t *testing.T) {
	fp := Fingerprint("test message")
	if len(fp) != 64 {
		t.Errorf("expected 64 char hex string, got %d chars: %s", len(fp), fp)
	}
	for _, c := range fp {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("fingerprint contains non-lowercase-hex char: %c", c)
			break
		}
	}
}

// --- Distribution tests ---

func auditEntry(identifier, status, message string) *models.RowAuditEntry {
	return &models.RowAuditEntry{Identifier: identifier, Status: status, Message: message}
}

func TestDistribution_GroupsErrorsOnly(t *testing.T) {
	entries := []*models.RowAuditEntry{
		auditEntry("jdoe", models.OutcomeError, "user 'jdoe' not found in LMS"),
		auditEntry("asmith", models.OutcomeSuccess, "enrolled"),
		auditEntry("bkim", models.OutcomeError, "user 'bkim' not found in LMS"),
		auditEntry("cruz", models.OutcomeError, "course 'C1' not found in LMS"),
	}

	buckets := Distribution(entries)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].Count != 2 {
		t.Errorf("expected largest bucket first with count 2, got %d", buckets[0].Count)
	}
	if buckets[0].Message != "user 'jdoe' not found in LMS" {
		t.Errorf("expected first message as sample, got %q", buckets[0].Message)
	}
	if buckets[0].SampleIdentifier != "jdoe" {
		t.Errorf("expected sample identifier jdoe, got %q", buckets[0].SampleIdentifier)
	}
	if buckets[1].Count != 1 {
		t.Errorf("expected count 1, got %d", buckets[1].Count)
	}
}

func TestDistribution_TieBreaksByMessage(t *testing.T) {
	entries := []*models.RowAuditEntry{
		auditEntry("a", models.OutcomeError, "zeta failure"),
		auditEntry("b", models.OutcomeError, "alpha failure"),
	}

	buckets := Distribution(entries)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].Message != "alpha failure" {
		t.Errorf("expected alpha first, got %q", buckets[0].Message)
	}
}

func TestDistribution_EmptyInput(t *testing.T) {
	buckets := Distribution(nil)
	if buckets == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(buckets) != 0 {
		t.Errorf("expected 0 buckets, got %d", len(buckets))
	}
}

func TestDistribution_FingerprintSet(t *testing.T) {
	buckets := Distribution([]*models.RowAuditEntry{auditEntry("x", models.OutcomeError, "boom")})
	if buckets[0].Fingerprint != Fingerprint("boom") {
		t.Errorf("expected fingerprint of message, got %s", buckets[0].Fingerprint)
	}
}

// --- SuccessRate tests ---

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		success, failed int
		want            float64
	}{
		{0, 0, 0},
		{3, 0, 100},
		{0, 4, 0},
		{2, 1, 66.7},
		{1, 2, 33.3},
	}
	for _, tt := range tests {
		if got := SuccessRate(tt.success, tt.failed); got != tt.want {
			t.Errorf("SuccessRate(%d, %d) = %v, want %v", tt.success, tt.failed, got, tt.want)
		}
	}
}
