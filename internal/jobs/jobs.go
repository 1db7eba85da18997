// Package jobs runs document processing in the background and tracks each run
// in the store so callers can poll for the outcome.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/pavelanni/qcm/internal/model"
	"github.com/pavelanni/qcm/internal/store"
)

// DefaultWorkers is the number of jobs run at once when none is configured.
const DefaultWorkers = 2

// Func is the work of one job.
type Func func(ctx context.Context) (model.ProcessResult, error)

// Runner executes jobs on a bounded pool.
type Runner struct {
	store  *store.Store
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex // guards closed and wg.Add against Shutdown
	closed bool
}

// NewRunner creates a runner executing at most workers jobs at once.
func NewRunner(st *store.Store, workers int) *Runner {
	if workers < 1 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:  st,
		sem:    semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit records a queued job for a document and starts it in the
// background. The job outlives ctx, which only bounds the initial save.
func (r *Runner) Submit(ctx context.Context, ownerID, docID int64, fn Func) (model.Job, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return model.Job{}, fmt.Errorf("job runner stopped: %w", model.ErrInternal)
	}
	r.wg.Add(1)
	r.mu.Unlock()

	j := model.Job{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		DocumentID: docID,
		Status:     model.JobQueued,
		CreatedAt:  time.Now(),
	}
	if err := r.store.SaveJob(ctx, j); err != nil {
		r.wg.Done()
		return model.Job{}, fmt.Errorf("save job: %w", err)
	}
	slog.Info("job queued", "job_id", j.ID, "document", docID, "owner", ownerID)

	go func() {
		defer r.wg.Done()
		r.run(j, fn)
	}()
	return j, nil
}

func (r *Runner) run(j model.Job, fn Func) {
	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		r.finish(j, model.ProcessResult{}, fmt.Errorf("interrupted: %w", err))
		return
	}
	defer r.sem.Release(1)

	j.Status = model.JobRunning
	if err := r.store.SaveJob(r.ctx, j); err != nil {
		slog.Warn("failed to mark job running", "job_id", j.ID, "error", err)
	}

	res, err := r.call(j, fn)
	r.finish(j, res, err)
}

func (r *Runner) call(j model.Job, fn Func) (res model.ProcessResult, err error) {
	defer func() {
		if v := recover(); v != nil {
			slog.Error("job panic", "job_id", j.ID, "panic", v)
			err = fmt.Errorf("job panic: %w", model.ErrInternal)
		}
	}()
	return fn(r.ctx)
}

func (r *Runner) finish(j model.Job, res model.ProcessResult, err error) {
	if err != nil {
		j.Status = model.JobFailed
		j.ErrorKind = model.Kind(err)
		if model.IsClientError(err) {
			j.Error = err.Error()
		} else {
			j.Error = "internal error"
		}
		if res.DocumentID != 0 {
			j.Result = &res
		}
		slog.Error("job failed", "job_id", j.ID, "document", j.DocumentID, "kind", j.ErrorKind, "error", err)
	} else {
		j.Status = model.JobSucceeded
		j.Result = &res
		slog.Info("job succeeded", "job_id", j.ID, "document", j.DocumentID, "generated", res.Generated)
	}
	// The runner context may already be cancelled on shutdown.
	if err := r.store.SaveJob(context.Background(), j); err != nil {
		slog.Error("failed to save job", "job_id", j.ID, "error", err)
	}
}

// Status returns a job of ownerID.
func (r *Runner) Status(ctx context.Context, ownerID int64, id string) (model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Job{}, fmt.Errorf("job %q: %w", id, model.ErrNotFound)
	}
	return r.store.GetJob(ctx, ownerID, id)
}

// Wait blocks until every submitted job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels running jobs and waits for them until ctx is done.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
