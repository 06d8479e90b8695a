// Package batch replays an analysed table against the LMS as an asynchronous
// job and keeps its audit trail.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lmsbridge/internal/cache"
	"github.com/kiranshivaraju/lmsbridge/internal/ingest"
	"github.com/kiranshivaraju/lmsbridge/internal/moodle"
	"github.com/kiranshivaraju/lmsbridge/internal/store"
	"github.com/kiranshivaraju/lmsbridge/pkg/models"
)

const (
	DefaultRowDelay  = 500 * time.Millisecond
	DefaultFlushSize = 50

	// StatusTTL bounds how long a job status stays mirrored in the cache.
	StatusTTL = 24 * time.Hour
)

// Executor runs one batch job: rows are replayed in order, one audit entry
// is written per row and progress is flushed in batches.
type Executor struct {
	store     store.Store
	cache     cache.Cache
	lms       moodle.Client
	roles     moodle.RoleIDs
	rowDelay  time.Duration
	flushSize int
	now       func() time.Time
}

type Option func(*Executor)

// WithRowDelay overrides the pause taken before each row.
func WithRowDelay(d time.Duration) Option {
	return func(e *Executor) { e.rowDelay = d }
}

// WithFlushSize sets how many audit entries are buffered between writes.
func WithFlushSize(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.flushSize = n
		}
	}
}

// WithRoleIDs sets the site-specific role ids used for enrolments.
func WithRoleIDs(ids moodle.RoleIDs) Option {
	return func(e *Executor) { e.roles = ids }
}

func withClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an Executor. c may be nil, in which case job status is
// not mirrored.
func NewExecutor(st store.Store, c cache.Cache, lms moodle.Client, opts ...Option) *Executor {
	e := &Executor{
		store:     st,
		cache:     c,
		lms:       lms,
		roles:     moodle.RoleIDs{},
		rowDelay:  DefaultRowDelay,
		flushSize: DefaultFlushSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes task. Row failures are recorded and never abort the job. A
// job-level fault marks the job FAILED and is returned.
func (e *Executor) Run(ctx context.Context, task models.BatchTask) (*models.BatchJob, error) {
	now := e.now()
	job := &models.BatchJob{
		ID:        task.JobID,
		Filename:  task.Filename,
		Operation: task.Operation,
		Status:    models.JobStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	logger := slog.With("job_id", job.ID, "operation", task.Operation)

	if err := e.store.CreateJob(ctx, job); err != nil {
		// Without a row there is nothing to mark FAILED in the store.
		e.mirror(ctx, job.ID, models.JobStatusFailed)
		return job, fmt.Errorf("create job: %w", err)
	}
	e.mirror(ctx, job.ID, models.JobStatusProcessing)
	logger.Info("batch job started", "filename", task.Filename)

	table, err := ingest.ParseTable(task.Table)
	if err != nil {
		return job, e.fail(ctx, job, fmt.Errorf("parse table: %w", err))
	}
	op, err := models.ParseOperationKind(string(task.Operation))
	if err != nil {
		return job, e.fail(ctx, job, err)
	}

	job.TotalRecords = len(table.Rows)
	if err := e.store.SetTotalRecords(ctx, job.ID, job.TotalRecords); err != nil {
		return job, e.fail(ctx, job, fmt.Errorf("set total records: %w", err))
	}

	hasRole := table.Has(ingest.ColRole)
	pending := make([]models.RowAuditEntry, 0, e.flushSize)

	for i, row := range table.Rows {
		if !sleepWithContext(ctx, e.rowDelay) {
			return job, e.fail(ctx, job, fmt.Errorf("interrupted at row %d: %w", i+1, ctx.Err()))
		}

		entry := e.processRow(ctx, logger, op, i+1, row, hasRole)
		entry.JobID = job.ID
		if entry.Status == models.OutcomeSuccess {
			job.SuccessCount++
		} else {
			job.ErrorCount++
		}
		pending = append(pending, entry)

		if len(pending) >= e.flushSize {
			if err := e.store.FlushProgress(ctx, job.ID, pending, job.SuccessCount, job.ErrorCount); err != nil {
				return job, e.fail(ctx, job, fmt.Errorf("flush progress: %w", err))
			}
			logger.Debug("progress flushed", "processed", job.Processed(), "total", job.TotalRecords)
			pending = make([]models.RowAuditEntry, 0, e.flushSize)
		}
	}

	if len(pending) > 0 {
		if err := e.store.FlushProgress(ctx, job.ID, pending, job.SuccessCount, job.ErrorCount); err != nil {
			return job, e.fail(ctx, job, fmt.Errorf("flush progress: %w", err))
		}
	}

	if err := e.store.FinishJob(ctx, job.ID, models.JobStatusCompleted,
		store.WithCounts(job.SuccessCount, job.ErrorCount)); err != nil {
		return job, e.fail(ctx, job, fmt.Errorf("complete job: %w", err))
	}

	completed := e.now()
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &completed
	job.UpdatedAt = completed
	e.mirror(ctx, job.ID, models.JobStatusCompleted)

	logger.Info("batch job completed",
		"total", job.TotalRecords,
		"success", job.SuccessCount,
		"errors", job.ErrorCount,
	)
	return job, nil
}

// processRow decodes and dispatches one row. It always returns an entry, a
// panic in a handler included.
func (e *Executor) processRow(ctx context.Context, logger *slog.Logger, op models.OperationKind, n int, row ingest.Row, hasRole bool) (entry models.RowAuditEntry) {
	entry = models.RowAuditEntry{
		RowNumber:  n,
		Action:     op,
		Identifier: truncate(rowIdentifier(op, row), models.MaxIdentifierBytes),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("row handler panicked", "row", n, "panic", r)
			entry.Status = models.OutcomeError
			entry.Message = truncate(fmt.Sprintf("internal error: %v", r), models.MaxMessageBytes)
			entry.Details = nil
		}
		entry.CreatedAt = e.now()
	}()

	rec, err := DecodeRecord(op, row, hasRole)
	if err != nil {
		entry.Status = models.OutcomeError
		entry.Message = truncate(err.Error(), models.MaxMessageBytes)
		return entry
	}
	entry.Identifier = truncate(rec.Identifier(), models.MaxIdentifierBytes)

	out, err := e.dispatch(ctx, rec)
	if err != nil {
		logger.Debug("row failed", "row", n, "identifier", entry.Identifier, "error", err)
		entry.Status = models.OutcomeError
		entry.Message = truncate(err.Error(), models.MaxMessageBytes)
		entry.Details = marshalDetails(remoteDetails(err))
		return entry
	}

	entry.Status = models.OutcomeSuccess
	entry.Message = truncate(out.Message, models.MaxMessageBytes)
	entry.Details = marshalDetails(out.Details)
	return entry
}

// fail marks the job FAILED on a best-effort basis and returns cause.
func (e *Executor) fail(ctx context.Context, job *models.BatchJob, cause error) error {
	msg := truncate(cause.Error(), models.MaxMessageBytes)
	if err := e.store.FinishJob(ctx, job.ID, models.JobStatusFailed, store.WithErrorMessage(msg)); err != nil {
		slog.Error("failed to mark job failed", "job_id", job.ID, "error", err)
	}

	now := e.now()
	job.Status = models.JobStatusFailed
	job.ErrorMessage = &msg
	job.CompletedAt = &now
	job.UpdatedAt = now
	e.mirror(ctx, job.ID, models.JobStatusFailed)

	slog.Error("batch job failed", "job_id", job.ID, "operation", job.Operation, "error", cause)
	return cause
}

func (e *Executor) mirror(ctx context.Context, jobID uuid.UUID, status string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetJobStatus(ctx, jobID, status, StatusTTL); err != nil {
		slog.Warn("failed to mirror job status", "job_id", jobID, "status", status, "error", err)
	}
}

func marshalDetails(details map[string]any) json.RawMessage {
	if len(details) == 0 {
		return nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil
	}
	return b
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// truncate trims s to maxBytes without splitting UTF-8 runes.
func truncate(s string, maxBytes int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
