// Package jobs runs the long-lived background tasks: store syncs,
// enrichment passes, news and update polling. Jobs persist across
// restarts, cancel cooperatively, and never run two of a type at once.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"gamehoard/internal/logging"
	"gamehoard/internal/store"
)

// ErrAlreadyRunning is returned when a job of the same type is active.
var ErrAlreadyRunning = errors.New("job of this type already running")

// ErrUnknownJobType is returned for unregistered types.
var ErrUnknownJobType = errors.New("unknown job type")

const (
	sweepInterval = time.Hour
	sweepMaxAge   = 24 * time.Hour
)

// Body is one job implementation. It returns a serialized result
// summary on success. Bodies must poll run.Cancelled() at every
// per-item boundary and return promptly when it flips.
type Body func(run *Run) (string, error)

type handler struct {
	body      Body
	resumable bool
}

// Engine owns job scheduling, persistence, and cancellation.
type Engine struct {
	store *store.LibraryStore

	mu        sync.Mutex
	handlers  map[string]handler
	cancelled map[string]struct{}

	wg sync.WaitGroup
}

// NewEngine builds an engine over the given store.
func NewEngine(s *store.LibraryStore) *Engine {
	return &Engine{
		store:     s,
		handlers:  make(map[string]handler),
		cancelled: make(map[string]struct{}),
	}
}

// Register installs a job body. Resumable types are rescheduled after a
// restart; the rest fail their orphaned rows.
func (e *Engine) Register(jobType string, resumable bool, body Body) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[jobType] = handler{body: body, resumable: resumable}
}

// Start schedules a job and returns its id. At most one job per type
// may be pending or running.
func (e *Engine) Start(ctx context.Context, jobType string, force bool) (string, error) {
	e.mu.Lock()
	h, ok := e.handlers[jobType]
	e.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}

	if existing, err := e.store.RunningJobOfType(jobType); err != nil {
		return "", err
	} else if existing != nil {
		return existing.ID, ErrAlreadyRunning
	}

	// First uuid segment: short enough for urls and logs, unique enough
	// for a table the sweeper prunes daily.
	id := uuid.NewString()[:8]
	if err := e.store.CreateJob(id, jobType); err != nil {
		return "", err
	}

	e.wg.Add(1)
	go e.run(ctx, id, jobType, h.body, force)
	logging.Jobs("Scheduled %s job %s", jobType, id)
	return id, nil
}

func (e *Engine) run(ctx context.Context, id, jobType string, body Body, force bool) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryJobs).Error("Job %s panicked: %v", id, r)
			e.store.FailJob(id, fmt.Sprintf("internal error: %v", r))
		}
		e.forget(id)
	}()

	if err := e.store.MarkJobRunning(id); err != nil {
		logging.Get(logging.CategoryJobs).Warn("Job %s: mark running: %v", id, err)
		return
	}

	run := &Run{ID: id, Force: force, Ctx: ctx, engine: e}
	result, err := body(run)

	switch {
	case run.Cancelled():
		e.store.FailJob(id, "Cancelled by user")
		logging.Jobs("Job %s (%s) cancelled", id, jobType)
	case err != nil:
		e.store.FailJob(id, err.Error())
		logging.Get(logging.CategoryJobs).Warn("Job %s (%s) failed: %v", id, jobType, err)
	default:
		if run.total > 0 {
			e.store.UpdateJobProgress(id, run.total, run.total, run.message)
		}
		e.store.CompleteJob(id, result)
		logging.Jobs("Job %s (%s) completed", id, jobType)
	}
}

// Cancel flags a job for cooperative shutdown. Idempotent; unknown ids
// are an error. Terminal rows are immutable, so cancelling a finished
// job is a no-op.
func (e *Engine) Cancel(id string) error {
	job, err := e.store.GetJob(id)
	if err != nil {
		return err
	}
	if job.Status != store.JobPending && job.Status != store.JobRunning {
		return nil
	}
	e.mu.Lock()
	e.cancelled[id] = struct{}{}
	e.mu.Unlock()
	return e.store.MarkJobCancelled(id)
}

// IsCancelled reports whether a cancel was requested for the job.
func (e *Engine) IsCancelled(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.cancelled[id]
	return ok
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	delete(e.cancelled, id)
	e.mu.Unlock()
}

// ResumeOrphans handles jobs left active by a previous process: the
// resumable types are rewound to pending and rescheduled without force
// so per-item caches suppress redundant work; the rest fail. Called
// once at startup, before the engine accepts new work.
func (e *Engine) ResumeOrphans(ctx context.Context) error {
	orphans, err := e.store.ActiveJobs()
	if err != nil {
		return err
	}

	for _, job := range orphans {
		e.mu.Lock()
		h, ok := e.handlers[job.Type]
		e.mu.Unlock()

		if !ok || !h.resumable {
			e.store.FailJob(job.ID, "Server restarted — job type cannot auto-resume")
			logging.Jobs("Orphaned %s job %s failed (not resumable)", job.Type, job.ID)
			continue
		}

		if err := e.store.ResetJobPending(job.ID); err != nil {
			logging.Get(logging.CategoryJobs).Warn("Orphan %s: reset failed: %v", job.ID, err)
			continue
		}
		e.wg.Add(1)
		go e.run(ctx, job.ID, job.Type, h.body, false)
		logging.Jobs("Resumed orphaned %s job %s", job.Type, job.ID)
	}
	return nil
}

// StartSweeper deletes terminal jobs older than 24 h, hourly, until ctx
// is done.
func (e *Engine) StartSweeper(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := e.store.SweepOldJobs(time.Now().Add(-sweepMaxAge)); err != nil {
					logging.Get(logging.CategoryJobs).Warn("Job sweep failed: %v", err)
				}
			}
		}
	}()
}

// Wait blocks until every scheduled job has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Run is the per-execution handle a body receives.
type Run struct {
	ID    string
	Force bool
	Ctx   context.Context

	engine   *Engine
	mu       sync.Mutex
	progress int64
	total    int64
	message  string
}

// Progress updates the persisted counters. Progress never moves
// backwards within a run.
func (r *Run) Progress(n, total int64, message string) {
	r.mu.Lock()
	if n < r.progress {
		n = r.progress
	}
	r.progress, r.total, r.message = n, total, message
	r.mu.Unlock()

	if err := r.engine.store.UpdateJobProgress(r.ID, n, total, message); err != nil {
		logging.Get(logging.CategoryJobs).Warn("Job %s: progress update: %v", r.ID, err)
	}
}

// Cancelled reports whether the user asked this run to stop.
func (r *Run) Cancelled() bool {
	return r.engine.IsCancelled(r.ID)
}
