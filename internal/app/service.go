// Package service wires the attendance pipeline, the job queue, the worker
// pool and the job store into the service used by the HTTP API and the CLI.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/okian/muster/internal/adapters/mq/queue"
	"github.com/okian/muster/internal/adapters/mq/worker"
	"github.com/okian/muster/internal/adapters/notify"
	"github.com/okian/muster/internal/adapters/repository"
	"github.com/okian/muster/internal/domain/model"
	"github.com/okian/muster/internal/domain/window"
	"github.com/okian/muster/pkg/logger"
	"github.com/okian/muster/pkg/metrics"
)

const (
	defaultWorkerCount = 2
	defaultQueueSize   = 64
	defaultMaxJobs     = 256
)

// Service accepts scrape requests and runs them in the background.
type Service struct {
	mu sync.RWMutex

	// Core components
	source     Source
	pipeline   *Pipeline
	jobs       repository.Store
	queue      *queue.InMemoryQueue
	workerPool *worker.Pool

	// Configuration
	workerCount     int
	queueSize       int
	maxJobs         int
	minParticipants int
	maxPages        int
	clock           window.Clock

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     defaultWorkerCount,
		queueSize:       defaultQueueSize,
		maxJobs:         defaultMaxJobs,
		minParticipants: window.DefaultMinParticipants,
		clock:           time.Now,
		logger:          logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.source == nil {
		return ErrNoSource
	}

	s.logger.Info(ctx, "starting attendance service...")

	s.pipeline = NewPipeline(s.source, s.minParticipants, s.maxPages, s.clock, nil)
	s.jobs = repository.NewMemoryStore(repository.WithMaxJobs(s.maxJobs))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.workerPool = worker.NewPool(s.workerCount, s.queue, s.pipeline)

	// Workers outlive the start request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.workerPool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "attendance service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("maxJobs", s.maxJobs),
		logger.Int("minParticipants", s.minParticipants),
	)
	return nil
}

// Stop waits for running jobs and shuts the service down. Queued jobs that
// have not started are dropped.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping attendance service...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.cancel()

	s.started = false
	s.logger.Info(ctx, "attendance service stopped")
}

// Submit records a job for w and queues it. Signals go to the job store and
// to every extra notifier.
func (s *Service) Submit(ctx context.Context, w model.Window, extra ...notify.Notifier) (repository.Job, error) {
	if err := w.Validate(); err != nil {
		return repository.Job{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return repository.Job{}, ErrNotStarted
	}

	job, err := s.jobs.Create(ctx, w)
	if err != nil {
		return repository.Job{}, errors.Wrap(err, "create job")
	}

	n := notify.Join(append([]notify.Notifier{s.jobs.Notifier(job.ID)}, extra...)...)
	if err := s.queue.Enqueue(ctx, queue.Job{ID: job.ID, Window: w, Notifier: n}); err != nil {
		if derr := s.jobs.Delete(ctx, job.ID); derr != nil {
			s.logger.Warn(ctx, "failed to forget rejected job", logger.String("job_id", job.ID), logger.Error(derr))
		}
		return repository.Job{}, err
	}

	s.logger.Debug(ctx, "job queued",
		logger.String("job_id", job.ID),
		logger.Time("start", w.Start),
		logger.Time("end", w.End),
	)
	return job, nil
}

// Job returns the current state of a submitted job.
func (s *Service) Job(ctx context.Context, id string) (repository.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return repository.Job{}, ErrNotStarted
	}
	return s.jobs.Get(ctx, id)
}

// Compute runs the pipeline synchronously on the caller's goroutine.
func (s *Service) Compute(ctx context.Context, w model.Window) (model.Result, error) {
	s.mu.RLock()
	p := s.pipeline
	s.mu.RUnlock()
	if p == nil {
		return model.Result{}, ErrNotStarted
	}
	return p.Compute(ctx, w)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"maxJobs":         s.maxJobs,
		"minParticipants": s.minParticipants,
	}
	if s.started {
		queueLen := s.queue.Len()
		tracked := s.jobs.Count(context.Background())
		stats["queueLength"] = queueLen
		stats["jobsTracked"] = tracked

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateJobsTracked(tracked)
	}
	if bs, ok := s.source.(interface{ BreakerState() string }); ok {
		stats["breakerState"] = bs.BreakerState()
	}
	return stats
}
