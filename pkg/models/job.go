package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	// JobStatusCreated is only ever mirrored to the cache: a job is queued
	// but no worker has picked it up, so no store row exists yet.
	JobStatusCreated    = "CREATED"
	JobStatusProcessing = "PROCESSING"
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
)

// BatchJob tracks one execution of a batch against the LMS. The API returns a
// job_id on POST /api/v1/jobs; the client polls GET /api/v1/jobs/{job_id} until
// status is COMPLETED or FAILED.
type BatchJob struct {
	ID           uuid.UUID     `db:"id"            json:"id"`
	Filename     string        `db:"filename"      json:"filename"`
	Operation    OperationKind `db:"operation"     json:"operation"`
	Status       string        `db:"status"        json:"status"`
	TotalRecords int           `db:"total_records" json:"total_records"`
	SuccessCount int           `db:"success_count" json:"success_count"`
	ErrorCount   int           `db:"error_count"   json:"error_count"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time     `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"    json:"updated_at"`
	CompletedAt  *time.Time    `db:"completed_at"  json:"completed_at,omitempty"`
}

// Processed is the number of rows attempted so far.
func (j *BatchJob) Processed() int {
	return j.SuccessCount + j.ErrorCount
}

// Terminal reports whether the job reached COMPLETED or FAILED.
func (j *BatchJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// BatchTask is the queue payload handed from the API to a worker.
type BatchTask struct {
	JobID      uuid.UUID     `json:"job_id"`
	Filename   string        `json:"filename"`
	Operation  OperationKind `json:"operation"`
	Table      string        `json:"table"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}
