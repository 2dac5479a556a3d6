// Package worker runs scrape jobs off the caller's goroutine and reports
// their progress through each job's notifier.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sourcegraph/conc/panics"

	"github.com/okian/muster/internal/adapters/mq/queue"
	"github.com/okian/muster/internal/adapters/notify"
	"github.com/okian/muster/internal/domain/model"
	"github.com/okian/muster/pkg/logger"
	"github.com/okian/muster/pkg/metrics"
)

const (
	defaultWorkerCount  = 2
	poolShutdownTimeout = 30 * time.Second
)

// Error kinds reported to job notifiers.
var (
	ErrPanicked = errors.New("scrape run panicked")
	ErrShutdown = errors.New("service stopped before the job started")
)

// Runner computes the attendance result for one window.
type Runner interface {
	Compute(ctx context.Context, w model.Window) (model.Result, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
	Len() int
}

// Worker consumes jobs one at a time.
type Worker struct {
	queue  Queue
	runner Runner
	name   string

	shutdown chan struct{}
	done     chan struct{}
	once     sync.Once

	logger logger.Logger
}

// New creates a worker reading from q and running jobs with runner.
func New(q Queue, runner Runner, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		runner:   runner,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes jobs until ctx is done, Shutdown is called or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		// Shutdown wins over a pending job once the current one is done.
		select {
		case <-w.shutdown:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			metrics.UpdateQueueSize(w.queue.Len())
			w.Process(ctx, j)
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.once.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return errors.Wrap(ctx.Err(), "worker shutdown")
	}
}

// Process runs one job. Busy(true) is signalled first and Busy(false) always
// last, whether the run succeeds, fails or panics.
func (w *Worker) Process(ctx context.Context, j queue.Job) {
	n := j.Notifier
	if n == nil {
		n = notify.Join()
	}

	w.signal(ctx, j, "busy", n.Busy(ctx, true))
	metrics.IncBusyWorkers()
	defer func() {
		metrics.DecBusyWorkers()
		// The run's context may be gone by now; idle must still reach the observer.
		idleCtx := context.WithoutCancel(ctx)
		w.signal(idleCtx, j, "idle", n.Busy(idleCtx, false))
	}()

	start := time.Now()
	res, err := w.compute(ctx, j.Window)
	elapsed := float64(time.Since(start).Milliseconds())

	if err != nil {
		metrics.RecordRun("failed", elapsed)
		metrics.RecordErrorByComponent("worker", errorKind(err))
		w.logger.Error(ctx, "scrape failed",
			logger.String("job_id", j.ID),
			logger.Error(err),
		)
		w.signal(ctx, j, "message", n.Message(ctx, notify.TitleError, fmt.Sprintf("%+v", err)))
		return
	}

	metrics.RecordRun("succeeded", elapsed)
	w.logger.Info(ctx, "scrape finished",
		logger.String("job_id", j.ID),
		logger.Int("players", len(res.PerPlayer)),
		logger.Float64("total_minutes", res.Stats.TotalMinutes),
	)
	w.signal(ctx, j, "result", n.Result(ctx, queryDate(j.Window), res.PerPlayer))
	w.signal(ctx, j, "message", n.Message(ctx, notify.TitleSuccess, res.Summary()))
}

func (w *Worker) compute(ctx context.Context, win model.Window) (res model.Result, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		res, err = w.runner.Compute(ctx, win)
	})
	if r := pc.Recovered(); r != nil {
		return model.Result{}, errors.Mark(errors.Wrap(r.AsError(), "compute"), ErrPanicked)
	}
	return res, err
}

func (w *Worker) signal(ctx context.Context, j queue.Job, kind string, err error) {
	if err != nil {
		w.logger.Warn(ctx, "signal not delivered",
			logger.String("job_id", j.ID),
			logger.String("signal", kind),
			logger.Error(err),
		)
	}
}

// queryDate is the calendar day of the window start.
func queryDate(win model.Window) time.Time {
	s := win.Start.UTC()
	return time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, model.ErrNoQualifyingEvents):
		return "no_qualifying_events"
	case errors.Is(err, model.ErrMalformedRow):
		return "malformed_row"
	case errors.Is(err, model.ErrInvalidWindow):
		return "invalid_window"
	case errors.Is(err, model.ErrPageLimit):
		return "page_limit"
	case errors.Is(err, ErrPanicked):
		return "panic"
	default:
		return "other"
	}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*Worker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates workerCount workers; values below 1 use the default.
func NewPool(workerCount int, q Queue, runner Runner) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*Worker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = New(q, runner, WithName("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, waits for every worker to finish its job and
// fails the jobs still queued with ErrShutdown.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			errs = errors.CombineErrors(errs, err)
		}
	}
	p.failPending(ctx)
	return errs
}

// failPending tells the observers of every job left in the queue that it
// will not run.
func (p *Pool) failPending(ctx context.Context) {
	jobs := p.queue.Dequeue(ctx)
	for {
		var (
			j  queue.Job
			ok bool
		)
		select {
		case j, ok = <-jobs:
		default:
		}
		if !ok {
			metrics.UpdateQueueSize(0)
			return
		}

		n := j.Notifier
		if n == nil {
			continue
		}
		metrics.RecordRun("dropped", 0)
		p.logger.Warn(ctx, "queued job dropped", logger.String("job_id", j.ID))
		idleCtx := context.WithoutCancel(ctx)
		err := errors.CombineErrors(
			n.Message(idleCtx, notify.TitleError, errors.Wrapf(ErrShutdown, "job %s", j.ID).Error()),
			n.Busy(idleCtx, false),
		)
		if err != nil {
			p.logger.Warn(ctx, "signal not delivered", logger.String("job_id", j.ID), logger.Error(err))
		}
	}
}
