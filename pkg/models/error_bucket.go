package models

// ErrorBucket groups failed rows of a job whose messages share a normalized
// fingerprint. Buckets are returned sorted by Count descending.
type ErrorBucket struct {
	Fingerprint      string `json:"fingerprint"`
	Message          string `json:"message"`
	Count            int    `json:"count"`
	SampleIdentifier string `json:"sample_identifier"`
}
