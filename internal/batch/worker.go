package batch

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime"
	"time"

	"github.com/kiranshivaraju/lmsbridge/internal/cache"
	"github.com/kiranshivaraju/lmsbridge/pkg/models"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers = 2
	// PollTimeout bounds each blocking dequeue so cancellation is noticed.
	PollTimeout = 5 * time.Second
)

// Runner executes one task. *Executor is the production Runner.
type Runner interface {
	Run(ctx context.Context, task models.BatchTask) (*models.BatchJob, error)
}

// DeadLetter is the payload pushed when a task ends in a job-level fault.
type DeadLetter struct {
	Task     models.BatchTask `json:"task"`
	Error    string           `json:"error"`
	FailedAt time.Time        `json:"failed_at"`
}

// Worker pulls tasks off the queue and runs them concurrently, one job per
// goroutine.
type Worker struct {
	queue   cache.Queue
	runner  Runner
	workers int
	poll    time.Duration
}

// NewWorker creates a Worker. The number of workers is capped at twice the
// number of CPUs.
func NewWorker(q cache.Queue, r Runner, workers int) *Worker {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if maxWorkers := runtime.NumCPU() * 2; workers > maxWorkers {
		workers = maxWorkers
	}
	return &Worker{queue: q, runner: r, workers: workers, poll: PollTimeout}
}

// Run blocks until ctx is cancelled. Jobs already picked up run to completion.
func (w *Worker) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "starting batch workers", "count", w.workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		workerID := i + 1
		g.Go(func() error {
			w.loop(ctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			return
		}

		payload, ok, err := w.queue.Dequeue(ctx, w.poll)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("dequeue failed", "worker", workerID, "error", err)
			if !sleepWithContext(ctx, time.Second) {
				return
			}
			continue
		}
		if !ok {
			continue
		}

		w.handle(ctx, workerID, payload)
	}
}

func (w *Worker) handle(ctx context.Context, workerID int, payload []byte) {
	// A job cannot be cancelled midway: it keeps running after shutdown starts.
	jobCtx := context.WithoutCancel(ctx)

	var task models.BatchTask
	if err := json.Unmarshal(payload, &task); err != nil {
		slog.Error("discarding undecodable task", "worker", workerID, "error", err)
		if dlErr := w.queue.DeadLetter(jobCtx, payload); dlErr != nil {
			slog.Error("dead-letter push failed", "worker", workerID, "error", dlErr)
		}
		return
	}

	slog.Info("task picked up", "worker", workerID, "job_id", task.JobID, "operation", task.Operation)
	if _, err := w.runner.Run(jobCtx, task); err != nil {
		w.deadLetter(jobCtx, workerID, task, err)
	}
}

func (w *Worker) deadLetter(ctx context.Context, workerID int, task models.BatchTask, cause error) {
	slog.Error("batch job fault", "worker", workerID, "job_id", task.JobID, "error", cause)

	b, err := json.Marshal(DeadLetter{Task: task, Error: cause.Error(), FailedAt: time.Now().UTC()})
	if err != nil {
		slog.Error("encoding dead letter", "job_id", task.JobID, "error", err)
		return
	}
	if err := w.queue.DeadLetter(ctx, b); err != nil {
		slog.Error("dead-letter push failed", "job_id", task.JobID, "error", err)
	}
}
