package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/lmsbridge/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, filename, operation, status, total_records, success_count, error_count,
	error_message, created_at, updated_at, completed_at`

func scanJob(row pgx.Row) (*models.BatchJob, error) {
	var j models.BatchJob
	err := row.Scan(&j.ID, &j.Filename, &j.Operation, &j.Status, &j.TotalRecords,
		&j.SuccessCount, &j.ErrorCount, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.BatchJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO batch_jobs (id, filename, operation, status, total_records, success_count, error_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.Filename, string(job.Operation), job.Status, job.TotalRecords,
		job.SuccessCount, job.ErrorCount, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.BatchJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM batch_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, limit int) ([]*models.BatchJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM batch_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.BatchJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) SetTotalRecords(ctx context.Context, id uuid.UUID, total int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batch_jobs SET total_records = $2, updated_at = NOW()
		 WHERE id = $1 AND status = $3`, id, total, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("set total records: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrClosed(ctx, id)
	}
	return nil
}

func (s *PostgresStore) FlushProgress(ctx context.Context, id uuid.UUID, entries []models.RowAuditEntry, success, failed int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(entries) > 0 {
		rows := make([][]any, 0, len(entries))
		for _, e := range entries {
			var details any
			if len(e.Details) > 0 {
				details = string(e.Details)
			}
			createdAt := e.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			rows = append(rows, []any{
				id, e.RowNumber, e.Identifier, string(e.Action), e.Status, e.Message, details, createdAt,
			})
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"row_audit_entries"},
			[]string{"job_id", "row_number", "identifier", "action", "status", "message", "details", "created_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy audit entries: %w", err)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE batch_jobs SET success_count = $2, error_count = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $4`, id, success, failed, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("update job counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrClosed(ctx, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit flush: %w", err)
	}
	return nil
}

var validTransitions = map[string][]string{
	models.JobStatusProcessing: {models.JobStatusCompleted, models.JobStatusFailed},
}

func (s *PostgresStore) FinishJob(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := ApplyJobUpdateOptions(opts...)

	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM batch_jobs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	valid := false
	for _, a := range validTransitions[currentStatus] {
		if a == status {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE batch_jobs SET status = $2, updated_at = $3, completed_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.Success != nil && params.Errors != nil {
		query += fmt.Sprintf(", success_count = $%d, error_count = $%d", argIdx, argIdx+1)
		args = append(args, *params.Success, *params.Errors)
		argIdx += 2
	}

	// Guard against a concurrent finish between the read and the write.
	query += fmt.Sprintf(" WHERE id = $1 AND status = $%d", argIdx)
	args = append(args, currentStatus)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}
	return nil
}

// missingOrClosed explains why an update guarded on PROCESSING matched no row.
func (s *PostgresStore) missingOrClosed(ctx context.Context, id uuid.UUID) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM batch_jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: job is %s", ErrInvalidTransition, status)
}

// --- Audit entries ---

func (s *PostgresStore) ListAuditEntries(ctx context.Context, filter AuditFilter) ([]*models.RowAuditEntry, int, error) {
	where := `WHERE job_id = $1`
	args := []any{filter.JobID}
	if filter.Status != "" {
		where += ` AND status = $2`
		args = append(args, filter.Status)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM row_audit_entries `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	query := `SELECT id, job_id, row_number, identifier, action, status, message, details, created_at
		 FROM row_audit_entries ` + where + ` ORDER BY row_number, id`
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.Limit, (page-1)*filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*models.RowAuditEntry{}
	for rows.Next() {
		var (
			e       models.RowAuditEntry
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.JobID, &e.RowNumber, &e.Identifier, &e.Action,
			&e.Status, &e.Message, &details, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(details) > 0 {
			e.Details = details
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, total, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
