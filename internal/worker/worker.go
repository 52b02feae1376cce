// Package worker runs queued synthesis jobs on a fixed pool of workers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/core"
	"github.com/book-expert/tts-job-service/internal/jobs"
	"github.com/book-expert/tts-job-service/internal/metrics"
)

const (
	// DefaultWorkers is the pool size used when none is configured.
	DefaultWorkers = 3
	// DefaultNotifyTimeout bounds a single completion notification.
	DefaultNotifyTimeout = 10 * time.Second

	maxJanitorInterval = time.Minute
)

var (
	// ErrPoolClosed indicates a submission after Shutdown.
	ErrPoolClosed = errors.New("worker pool is shut down")
	// ErrPipelinePanic indicates that the pipeline panicked while running a job.
	ErrPipelinePanic = errors.New("pipeline panicked")
)

// JobRunner executes the pipeline of one job and returns the artifact location.
type JobRunner interface {
	Run(ctx context.Context, job core.Job) (string, error)
}

// Config holds the pool settings. Zero values select defaults; a zero
// Retention keeps finished jobs forever and a zero JobTimeout never times out.
type Config struct {
	Workers       int
	NotifyTimeout time.Duration
	JobTimeout    time.Duration
	Retention     time.Duration
}

// Pool owns the queue and the workers consuming it.
type Pool struct {
	config   Config
	registry *jobs.Registry
	runner   JobRunner
	store    core.ArtifactStore
	notifier core.Notifier
	metrics  *metrics.Metrics
	log      *logger.Logger
	queue    *Queue

	mu          sync.Mutex
	started     bool
	closed      bool
	workers     sync.WaitGroup
	stopJanitor chan struct{}
}

// NewPool creates a pool. notifier and m may be nil.
func NewPool(
	cfg Config,
	registry *jobs.Registry,
	runner JobRunner,
	store core.ArtifactStore,
	notifier core.Notifier,
	m *metrics.Metrics,
	log *logger.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}

	return &Pool{
		config:      cfg,
		registry:    registry,
		runner:      runner,
		store:       store,
		notifier:    notifier,
		metrics:     m,
		log:         log,
		queue:       NewQueue(),
		mu:          sync.Mutex{},
		started:     false,
		closed:      false,
		workers:     sync.WaitGroup{},
		stopJanitor: make(chan struct{}),
	}
}

// Start launches the workers and, when retention is configured, the janitor.
// Calling Start more than once has no effect.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.closed {
		return
	}

	p.startWorkersLocked()

	if p.config.Retention > 0 {
		go p.janitor()
	}

	p.log.Info("Worker pool started with %d workers", p.config.Workers)
}

// startWorkersLocked launches the workers. p.mu must be held.
func (p *Pool) startWorkersLocked() {
	p.started = true

	for workerID := 1; workerID <= p.config.Workers; workerID++ {
		p.workers.Add(1)

		go p.loop(workerID)
	}
}

// Submit registers the job and enqueues it as one step.
func (p *Pool) Submit(id, text, voice string, opts *core.SynthesisOptions) (core.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return core.Job{}, ErrPoolClosed
	}

	job, err := p.registry.Submit(id, text, voice, opts)
	if err != nil {
		return core.Job{}, err
	}

	// The queue only closes under p.mu, so this push cannot be rejected.
	err = p.queue.Push(job.ID)
	if err != nil {
		return core.Job{}, fmt.Errorf("failed to enqueue job '%s': %w", job.ID, err)
	}

	p.metrics.JobSubmitted()
	p.metrics.SetQueueDepth(p.queue.Len())

	return job, nil
}

// QueueDepth returns the number of jobs waiting for a worker.
func (p *Pool) QueueDepth() int {
	return p.queue.Len()
}

// Shutdown stops accepting jobs and waits until the workers have drained the
// backlog or ctx is done. A pool that was never started launches its workers
// here so that jobs accepted before shutdown still run.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.queue.Close()
		close(p.stopJanitor)

		if !p.started && p.queue.Len() > 0 {
			p.log.Warn("Worker pool shut down before Start, draining %d queued jobs", p.queue.Len())
			p.startWorkersLocked()
		}
	}
	p.mu.Unlock()

	done := make(chan struct{})

	go func() {
		p.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("Worker pool drained")

		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool did not drain: %w", ctx.Err())
	}
}

func (p *Pool) loop(workerID int) {
	defer p.workers.Done()

	for {
		id, ok := p.queue.Pop()
		if !ok {
			return
		}

		p.metrics.SetQueueDepth(p.queue.Len())
		p.process(workerID, id)
	}
}

func (p *Pool) process(workerID int, id string) {
	job, err := p.registry.MarkProcessing(id)
	if err != nil {
		p.log.Error("Worker %d: cannot start job %s: %v", workerID, id, err)

		return
	}

	p.log.Info("Worker %d: processing job %s", workerID, id)
	p.metrics.JobStarted()

	started := time.Now()

	location, runErr := p.runSafely(job)
	if runErr != nil {
		job, err = p.registry.MarkFailed(id, runErr.Error())
		p.log.Error("Worker %d: job %s failed: %v", workerID, id, runErr)
	} else {
		job, err = p.registry.MarkDone(id, location)
		p.log.Info("Worker %d: job %s done in %s", workerID, id, time.Since(started))
	}

	if err != nil {
		p.log.Error("Worker %d: failed to record outcome of job %s: %v", workerID, id, err)

		return
	}

	p.metrics.JobFinished(job.State, time.Since(started))
	p.notify(job)
}

func (p *Pool) runSafely(job core.Job) (location string, err error) {
	defer func() {
		recovered := recover()
		if recovered != nil {
			location = ""
			err = fmt.Errorf("%w: %v", ErrPipelinePanic, recovered)
		}
	}()

	ctx := context.Background()

	if p.config.JobTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.config.JobTimeout)
		defer cancel()
	}

	return p.runner.Run(ctx, job)
}

// notify delivers the outcome once. Failures are logged and dropped.
func (p *Pool) notify(job core.Job) {
	if p.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.NotifyTimeout)
	defer cancel()

	err := p.notifier.Notify(ctx, core.Notification{
		JobID:  job.ID,
		Status: job.State,
		Path:   job.ResultLocation,
		Error:  job.Error,
	})
	if err != nil {
		p.metrics.NotifyFailed()
		p.log.Warn("Failed to notify completion of job %s: %v", job.ID, err)
	}
}

func (p *Pool) janitor() {
	interval := min(p.config.Retention, maxJanitorInterval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopJanitor:
			return
		case now := <-ticker.C:
			p.evict(now.Add(-p.config.Retention))
		}
	}
}

func (p *Pool) evict(cutoff time.Time) {
	evicted := p.registry.Evict(cutoff)
	if len(evicted) == 0 {
		return
	}

	for _, job := range evicted {
		if job.ResultLocation == "" {
			continue
		}

		err := p.store.Delete(context.Background(), job.ResultLocation)
		if err != nil {
			p.log.Warn("Failed to delete artifact of evicted job %s: %v", job.ID, err)
		}
	}

	p.metrics.JobsEvicted(len(evicted))
	p.log.Info("Evicted %d finished jobs", len(evicted))
}
