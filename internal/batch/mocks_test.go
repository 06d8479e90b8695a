package batch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lmsbridge/internal/store"
	"github.com/kiranshivaraju/lmsbridge/pkg/models"
)

// --- mocks ---

type mockStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*models.BatchJob
	entries   map[uuid.UUID][]models.RowAuditEntry
	flushes   []int
	finishes  []finishCall
	createErr error
	getJobErr error
	// flushErrAt fails the n-th FlushProgress call (1-based) when > 0.
	flushErrAt int
	flushErr   error
}

type finishCall struct {
	ID     uuid.UUID
	Status string
	Update store.JobUpdate
}

func newMockStore() *mockStore {
	return &mockStore{
		jobs:    make(map[uuid.UUID]*models.BatchJob),
		entries: make(map[uuid.UUID][]models.RowAuditEntry),
	}
}

func (s *mockStore) Ping(_ context.Context) error { return nil }

func (s *mockStore) CreateJob(_ context.Context, job *models.BatchJob) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return store.ErrDuplicateKey
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *mockStore) GetJob(_ context.Context, id uuid.UUID) (*models.BatchJob, error) {
	if s.getJobErr != nil {
		return nil, s.getJobErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *mockStore) ListJobs(_ context.Context, limit int) ([]*models.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]*models.BatchJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		cp := *j
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].CreatedAt.After(jobs[b].CreatedAt) })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *mockStore) SetTotalRecords(_ context.Context, id uuid.UUID, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if j.Status != models.JobStatusProcessing {
		return store.ErrInvalidTransition
	}
	j.TotalRecords = total
	return nil
}

func (s *mockStore) FlushProgress(_ context.Context, id uuid.UUID, entries []models.RowAuditEntry, success, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes = append(s.flushes, len(entries))
	if s.flushErrAt > 0 && len(s.flushes) == s.flushErrAt {
		return s.flushErr
	}
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if j.Status != models.JobStatusProcessing {
		return store.ErrInvalidTransition
	}
	s.entries[id] = append(s.entries[id], entries...)
	j.SuccessCount = success
	j.ErrorCount = failed
	return nil
}

func (s *mockStore) FinishJob(_ context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := store.ApplyJobUpdateOptions(opts...)
	s.finishes = append(s.finishes, finishCall{ID: id, Status: status, Update: u})

	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if j.Status != models.JobStatusProcessing {
		return store.ErrInvalidTransition
	}
	now := time.Now().UTC()
	j.Status = status
	j.CompletedAt = &now
	j.ErrorMessage = u.ErrorMessage
	if u.Success != nil && u.Errors != nil {
		j.SuccessCount = *u.Success
		j.ErrorCount = *u.Errors
	}
	return nil
}

func (s *mockStore) ListAuditEntries(_ context.Context, f store.AuditFilter) ([]*models.RowAuditEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*models.RowAuditEntry
	for i := range s.entries[f.JobID] {
		e := s.entries[f.JobID][i]
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		matched = append(matched, &e)
	}
	total := len(matched)
	if f.Limit > 0 {
		start := (f.Page - 1) * f.Limit
		if start > total {
			start = total
		}
		end := start + f.Limit
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (s *mockStore) job(id uuid.UUID) *models.BatchJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.jobs[id]
	return &cp
}

func (s *mockStore) auditTrail(id uuid.UUID) []models.RowAuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RowAuditEntry(nil), s.entries[id]...)
}

// mockCache implements both cache.Cache and cache.Queue in memory.
type mockCache struct {
	mu       sync.Mutex
	kv       map[string][]byte
	statuses map[uuid.UUID]string
	tasks    chan []byte
	dead     [][]byte
	setErr   error
}

func newMockCache() *mockCache {
	return &mockCache{
		kv:       make(map[string][]byte),
		statuses: make(map[uuid.UUID]string),
		tasks:    make(chan []byte, 100),
	}
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kv[key] = value
	return nil
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.kv[key]
	return v, ok, nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.kv, key)
	return nil
}

func (c *mockCache) Ping(_ context.Context) error { return nil }
func (c *mockCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

func (c *mockCache) SetJobStatus(_ context.Context, jobID uuid.UUID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[jobID] = status
	return nil
}

func (c *mockCache) GetJobStatus(_ context.Context, jobID uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[jobID]
	return s, ok, nil
}

func (c *mockCache) Enqueue(_ context.Context, payload []byte) error {
	select {
	case c.tasks <- payload:
		return nil
	default:
		return errors.New("queue full")
	}
}

func (c *mockCache) Dequeue(ctx context.Context, timeout time.Duration) ([]byte, bool, error) {
	select {
	case p := <-c.tasks:
		return p, true, nil
	case <-time.After(timeout):
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (c *mockCache) DeadLetter(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dead = append(c.dead, payload)
	return nil
}

func (c *mockCache) status(id uuid.UUID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statuses[id]
}

func (c *mockCache) deadLetters() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.dead...)
}
