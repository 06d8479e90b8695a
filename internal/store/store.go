package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lmsbridge/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.BatchJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.BatchJob, error)
	ListJobs(ctx context.Context, limit int) ([]*models.BatchJob, error)
	SetTotalRecords(ctx context.Context, id uuid.UUID, total int) error
	FinishJob(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error

	// FlushProgress appends entries and sets the job's running counters in a
	// single transaction. success and failed are cumulative totals.
	FlushProgress(ctx context.Context, id uuid.UUID, entries []models.RowAuditEntry, success, failed int) error
	ListAuditEntries(ctx context.Context, filter AuditFilter) ([]*models.RowAuditEntry, int, error)
}

// AuditFilter selects audit entries of one job. A Limit of zero returns all
// matching entries.
type AuditFilter struct {
	JobID  uuid.UUID
	Status string
	Page   int
	Limit  int
}

// JobUpdate carries the optional fields of a job status change.
type JobUpdate struct {
	ErrorMessage *string
	Success      *int
	Errors       *int
}

type JobUpdateOption func(*JobUpdate)

// ApplyJobUpdateOptions resolves opts into a JobUpdate. Store
// implementations call it from FinishJob.
func ApplyJobUpdateOptions(opts ...JobUpdateOption) JobUpdate {
	var u JobUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *JobUpdate) {
		p.ErrorMessage = &msg
	}
}

// WithCounts sets the final success and error counters.
func WithCounts(success, failed int) JobUpdateOption {
	return func(p *JobUpdate) {
		p.Success = &success
		p.Errors = &failed
	}
}
