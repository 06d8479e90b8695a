package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lmsbridge/internal/analysis"
	"github.com/kiranshivaraju/lmsbridge/internal/cache"
	"github.com/kiranshivaraju/lmsbridge/internal/ingest"
	"github.com/kiranshivaraju/lmsbridge/internal/store"
	"github.com/kiranshivaraju/lmsbridge/pkg/models"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrAnalysisNotFound  = errors.New("analysis not found or expired")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrInvalidFilter     = errors.New("invalid filter")
)

const (
	// AnalysisTTL is how long an analysed upload waits for confirmation.
	AnalysisTTL = 30 * time.Minute

	DefaultEntryLimit  = 50
	MaxEntryLimit      = 500
	DefaultRecentLimit = 20
	MaxRecentLimit     = 100

	defaultFilename = "upload.csv"
)

// Service is the entry point used by the HTTP layer: it stages analysed
// uploads, enqueues jobs and reports their status.
type Service struct {
	store       store.Store
	cache       cache.Cache
	queue       cache.Queue
	transformer *ingest.Transformer
	now         func() time.Time
}

// NewService creates a new Service.
func NewService(st store.Store, c cache.Cache, q cache.Queue) *Service {
	return &Service{
		store:       st,
		cache:       c,
		queue:       q,
		transformer: ingest.NewTransformer(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// stagedAnalysis is the cached form of a valid ingest.Result.
type stagedAnalysis struct {
	Filename  string               `json:"filename"`
	Operation models.OperationKind `json:"operation"`
	Table     string               `json:"table"`
	TotalRows int                  `json:"total_rows"`
}

// SubmitRequest confirms a staged analysis or carries a table inline.
type SubmitRequest struct {
	AnalysisID *uuid.UUID
	Filename   string
	Operation  string
	Table      string
}

// JobStatus is the read model returned to callers polling a job.
type JobStatus struct {
	JobID             uuid.UUID            `json:"job_id"`
	Status            string               `json:"status"`
	Operation         models.OperationKind `json:"operation,omitempty"`
	Filename          string               `json:"filename,omitempty"`
	TotalRecords      int                  `json:"total_records"`
	Processed         int                  `json:"processed"`
	SuccessCount      int                  `json:"success_count"`
	ErrorCount        int                  `json:"error_count"`
	CreatedAt         *time.Time           `json:"created_at,omitempty"`
	CompletedAt       *time.Time           `json:"completed_at,omitempty"`
	ErrorMessage      *string              `json:"error_message,omitempty"`
	SuccessRate       *float64             `json:"success_rate,omitempty"`
	ErrorDistribution []models.ErrorBucket `json:"error_distribution,omitempty"`
}

// EntryFilter selects a page of a job's audit entries.
type EntryFilter struct {
	Status string
	Page   int
	Limit  int
}

// Analyze runs the ingest pipeline and, when the upload is valid, stages it
// for confirmation. The returned id is nil for rejected uploads.
func (s *Service) Analyze(ctx context.Context, filename string, data []byte) (ingest.Result, *uuid.UUID, error) {
	result := s.transformer.Analyze(filename, data)
	if !result.Valid {
		return result, nil, nil
	}
	id, err := s.Stage(ctx, result)
	if err != nil {
		return result, nil, err
	}
	return result, &id, nil
}

// Stage stores a valid analysis under a fresh id for AnalysisTTL.
func (s *Service) Stage(ctx context.Context, result ingest.Result) (uuid.UUID, error) {
	if !result.Valid || result.Operation == nil || result.SerializedTable == nil {
		return uuid.Nil, fmt.Errorf("%w: analysis is not valid", ErrInvalidSubmission)
	}

	b, err := json.Marshal(stagedAnalysis{
		Filename:  result.Filename,
		Operation: *result.Operation,
		Table:     *result.SerializedTable,
		TotalRows: result.TotalRows,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode analysis: %w", err)
	}

	id := uuid.New()
	if err := s.cache.Set(ctx, cache.AnalysisKey(id), b, AnalysisTTL); err != nil {
		return uuid.Nil, fmt.Errorf("stage analysis: %w", err)
	}
	return id, nil
}

// Submit enqueues a job and returns its id. A staged analysis can be
// submitted once.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	if req.AnalysisID != nil {
		return s.submitStaged(ctx, *req.AnalysisID)
	}

	op, err := models.ParseOperationKind(req.Operation)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	if _, err := ingest.ParseTable(req.Table); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	return s.enqueue(ctx, req.Filename, op, req.Table)
}

// AnalyzeAndSubmit analyses an upload and enqueues it without a separate
// confirmation step.
func (s *Service) AnalyzeAndSubmit(ctx context.Context, filename string, data []byte) (ingest.Result, uuid.UUID, error) {
	result := s.transformer.Analyze(filename, data)
	if !result.Valid {
		return result, uuid.Nil, fmt.Errorf("%w: %s", ErrInvalidSubmission, *result.Error)
	}
	id, err := s.enqueue(ctx, filename, *result.Operation, *result.SerializedTable)
	return result, id, err
}

func (s *Service) submitStaged(ctx context.Context, analysisID uuid.UUID) (uuid.UUID, error) {
	key := cache.AnalysisKey(analysisID)
	b, found, err := s.cache.Get(ctx, key)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load analysis: %w", err)
	}
	if !found {
		return uuid.Nil, ErrAnalysisNotFound
	}

	var staged stagedAnalysis
	if err := json.Unmarshal(b, &staged); err != nil {
		return uuid.Nil, fmt.Errorf("decode analysis: %w", err)
	}

	jobID, err := s.enqueue(ctx, staged.Filename, staged.Operation, staged.Table)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		slog.Warn("failed to drop staged analysis", "analysis_id", analysisID, "error", err)
	}
	return jobID, nil
}

func (s *Service) enqueue(ctx context.Context, filename string, op models.OperationKind, table string) (uuid.UUID, error) {
	if filename == "" {
		filename = defaultFilename
	}
	task := models.BatchTask{
		JobID:      uuid.New(),
		Filename:   filename,
		Operation:  op,
		Table:      table,
		EnqueuedAt: s.now(),
	}
	b, err := json.Marshal(task)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode task: %w", err)
	}

	if err := s.cache.SetJobStatus(ctx, task.JobID, models.JobStatusCreated, StatusTTL); err != nil {
		return uuid.Nil, fmt.Errorf("mirror job status: %w", err)
	}
	if err := s.queue.Enqueue(ctx, b); err != nil {
		return uuid.Nil, fmt.Errorf("enqueue job: %w", err)
	}

	slog.Info("batch job queued", "job_id", task.JobID, "operation", op, "filename", filename)
	return task.JobID, nil
}

// Status reports a job's progress. Terminal jobs also carry the outcome
// summary.
func (s *Service) Status(ctx context.Context, jobID uuid.UUID) (*JobStatus, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return s.queuedStatus(ctx, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	st := &JobStatus{
		JobID:        job.ID,
		Status:       job.Status,
		Operation:    job.Operation,
		Filename:     job.Filename,
		TotalRecords: job.TotalRecords,
		Processed:    job.Processed(),
		SuccessCount: job.SuccessCount,
		ErrorCount:   job.ErrorCount,
		CreatedAt:    &job.CreatedAt,
		CompletedAt:  job.CompletedAt,
		ErrorMessage: job.ErrorMessage,
	}
	if !job.Terminal() {
		return st, nil
	}

	failed, _, err := s.store.ListAuditEntries(ctx, store.AuditFilter{JobID: job.ID, Status: models.OutcomeError})
	if err != nil {
		return nil, fmt.Errorf("list failed rows: %w", err)
	}
	rate := analysis.SuccessRate(job.SuccessCount, job.ErrorCount)
	st.SuccessRate = &rate
	st.ErrorDistribution = analysis.Distribution(failed)
	return st, nil
}

func (s *Service) queuedStatus(ctx context.Context, jobID uuid.UUID) (*JobStatus, error) {
	status, found, err := s.cache.GetJobStatus(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get cached job status: %w", err)
	}
	if !found || status != models.JobStatusCreated {
		return nil, ErrJobNotFound
	}
	return &JobStatus{JobID: jobID, Status: models.JobStatusCreated}, nil
}

// Entries returns one page of a job's audit trail and the total match count.
func (s *Service) Entries(ctx context.Context, jobID uuid.UUID, filter EntryFilter) ([]*models.RowAuditEntry, int, error) {
	switch filter.Status {
	case "", models.OutcomeSuccess, models.OutcomeError:
	default:
		return nil, 0, fmt.Errorf("%w: status must be %s or %s", ErrInvalidFilter, models.OutcomeSuccess, models.OutcomeError)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultEntryLimit
	}
	if filter.Limit > MaxEntryLimit {
		filter.Limit = MaxEntryLimit
	}

	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, ErrJobNotFound
		}
		return nil, 0, fmt.Errorf("get job: %w", err)
	}

	entries, total, err := s.store.ListAuditEntries(ctx, store.AuditFilter{
		JobID:  jobID,
		Status: filter.Status,
		Page:   filter.Page,
		Limit:  filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, total, nil
}

// Recent lists the most recently created jobs.
func (s *Service) Recent(ctx context.Context, limit int) ([]*models.BatchJob, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	jobs, err := s.store.ListJobs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}
