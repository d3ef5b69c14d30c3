// Package jobs keeps in-memory job bookkeeping. Durable progress lives in
// checkpoints; the registry only answers "what is this job doing now".
package jobs

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// Registry is the job bookkeeping seam. Implementations must be safe for
// concurrent use and must hand out copies, never shared pointers.
type Registry interface {
	Create(ctx context.Context, job entity.Job) (entity.Job, error)
	Update(ctx context.Context, id string, fn func(*entity.Job)) (entity.Job, error)
	Transition(ctx context.Context, id string, from []constants.JobStatus, fn func(*entity.Job)) (entity.Job, error)
	Get(ctx context.Context, id string) (entity.Job, bool, error)
	List(ctx context.Context) ([]entity.Job, error)
}

// MemoryRegistry is a lock-guarded map.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]entity.Job
	now  func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		jobs: make(map[string]entity.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRegistry) Create(_ context.Context, job entity.Job) (entity.Job, error) {
	if job.ID == "" {
		return entity.Job{}, common.NewAppError("INVALID_JOB", "job id is required", common.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return entity.Job{}, common.NewAppError("JOB_EXISTS", fmt.Sprintf("job %s already exists", job.ID), common.ErrConflict)
	}
	ts := r.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = ts
	}
	job.UpdatedAt = ts
	r.jobs[job.ID] = job
	return clone(job), nil
}

// Update applies fn to the stored job under the lock and returns the result.
func (r *MemoryRegistry) Update(_ context.Context, id string, fn func(*entity.Job)) (entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return entity.Job{}, common.NewAppError("JOB_NOT_FOUND", "job "+id+" not found", common.ErrNotFound)
	}
	fn(&job)
	job.ID = id
	job.UpdatedAt = r.now()
	r.jobs[id] = job
	return clone(job), nil
}

// Transition applies fn only when the stored status is one of from. The
// status test and the write happen under one lock, so of several callers
// racing to move a job out of the same status exactly one wins; the rest get
// a JOB_STATE_CONFLICT wrapping ErrConflict.
func (r *MemoryRegistry) Transition(_ context.Context, id string, from []constants.JobStatus, fn func(*entity.Job)) (entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return entity.Job{}, common.NewAppError("JOB_NOT_FOUND", "job "+id+" not found", common.ErrNotFound)
	}
	if !slices.Contains(from, job.Status) {
		return clone(job), common.NewAppError("JOB_STATE_CONFLICT", fmt.Sprintf("job %s is %s", id, job.Status), common.ErrConflict)
	}
	fn(&job)
	job.ID = id
	job.UpdatedAt = r.now()
	r.jobs[id] = job
	return clone(job), nil
}

func (r *MemoryRegistry) Get(_ context.Context, id string) (entity.Job, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return entity.Job{}, false, nil
	}
	return clone(job), true, nil
}

// List returns jobs newest first.
func (r *MemoryRegistry) List(_ context.Context) ([]entity.Job, error) {
	r.mu.RLock()
	out := make([]entity.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, clone(j))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out, nil
}

// clone copies the result pointer so callers cannot mutate stored state.
func clone(j entity.Job) entity.Job {
	if j.Result != nil {
		r := *j.Result
		j.Result = &r
	}
	return j
}
