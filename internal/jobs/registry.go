// Package jobs owns the in-memory job registry and its state machine.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/tts-job-service/internal/core"
)

// Registry maps job ids to jobs. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*core.Job
	store core.ArtifactStore
}

// NewRegistry creates an empty registry. store is consulted by FetchResult
// to confirm that a finished job's artifact still exists.
func NewRegistry(store core.ArtifactStore) *Registry {
	return &Registry{
		mu:    sync.RWMutex{},
		jobs:  make(map[string]*core.Job),
		store: store,
	}
}

// Submit registers a new job in the queued state. The duplicate check and
// the insert happen under one lock.
func (r *Registry) Submit(id, text, voice string, opts *core.SynthesisOptions) (core.Job, error) {
	if strings.TrimSpace(id) == "" {
		return core.Job{}, core.ErrEmptyJobID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[id]; exists {
		return core.Job{}, fmt.Errorf("%w: '%s'", core.ErrDuplicateJob, id)
	}

	job := &core.Job{
		ID:             id,
		Text:           text,
		Voice:          voice,
		Options:        opts,
		State:          core.JobStateQueued,
		ResultLocation: "",
		Error:          "",
		CreatedAt:      time.Now(),
		StartedAt:      time.Time{},
		FinishedAt:     time.Time{},
	}
	r.jobs[id] = job

	return *job, nil
}

// Status returns a snapshot of the job.
func (r *Registry) Status(id string) (core.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return core.Job{}, fmt.Errorf("%w: '%s'", core.ErrJobNotFound, id)
	}

	return *job, nil
}

// FetchResult returns the artifact location of a finished job.
func (r *Registry) FetchResult(ctx context.Context, id string) (string, error) {
	job, err := r.Status(id)
	if err != nil {
		return "", err
	}

	switch job.State {
	case core.JobStateQueued, core.JobStateProcessing:
		return "", &core.JobNotReadyError{State: job.State}
	case core.JobStateFailed:
		return "", &core.JobFailedError{Message: job.Error}
	case core.JobStateDone:
	}

	exists, err := r.store.Exists(ctx, job.ResultLocation)
	if err != nil {
		return "", fmt.Errorf("failed to check result of job '%s': %w", id, err)
	}

	if !exists {
		return "", fmt.Errorf("%w: job '%s'", core.ErrResultMissing, id)
	}

	return job.ResultLocation, nil
}

// MarkProcessing moves a queued job to processing and returns its snapshot.
func (r *Registry) MarkProcessing(id string) (core.Job, error) {
	return r.transition(id, core.JobStateProcessing, func(job *core.Job) {
		job.StartedAt = time.Now()
	})
}

// MarkDone records a successful result.
func (r *Registry) MarkDone(id, location string) (core.Job, error) {
	return r.transition(id, core.JobStateDone, func(job *core.Job) {
		job.ResultLocation = location
		job.FinishedAt = time.Now()
	})
}

// MarkFailed records a failure message.
func (r *Registry) MarkFailed(id, message string) (core.Job, error) {
	return r.transition(id, core.JobStateFailed, func(job *core.Job) {
		job.Error = message
		job.FinishedAt = time.Now()
	})
}

func (r *Registry) transition(id string, to core.JobState, apply func(*core.Job)) (core.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return core.Job{}, fmt.Errorf("%w: '%s'", core.ErrJobNotFound, id)
	}

	if !isValidTransition(job.State, to) {
		return core.Job{}, fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, job.State, to)
	}

	job.State = to
	apply(job)

	return *job, nil
}

// Evict removes terminal jobs that finished before cutoff and returns them.
func (r *Registry) Evict(cutoff time.Time) []core.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []core.Job

	for id, job := range r.jobs {
		if job.State.IsTerminal() && job.FinishedAt.Before(cutoff) {
			evicted = append(evicted, *job)
			delete(r.jobs, id)
		}
	}

	return evicted
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.jobs)
}

// Counts returns the number of jobs per state.
func (r *Registry) Counts() map[core.JobState]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[core.JobState]int, 4)
	for _, job := range r.jobs {
		counts[job.State]++
	}

	return counts
}

// isValidTransition enforces the forward-only job state machine.
func isValidTransition(from, to core.JobState) bool {
	switch from {
	case core.JobStateQueued:
		return to == core.JobStateProcessing
	case core.JobStateProcessing:
		return to == core.JobStateDone || to == core.JobStateFailed
	case core.JobStateDone, core.JobStateFailed:
		return false
	default:
		return false
	}
}
