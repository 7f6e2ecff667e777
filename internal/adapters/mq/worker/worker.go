package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/barkwatch/internal/domain/model"
	"github.com/okian/barkwatch/pkg/logger"
	"github.com/okian/barkwatch/pkg/metrics"
)

// Default worker configuration constants.
const (
	poolShutdownTimeout = 30 * time.Second
	shutdownReason      = "shutdown: worker pool stopped before the job ran"
)

// Job abstracts what workers read off the queue.
type Job = model.Job

// Runner executes detection for one job.
type Runner interface {
	Run(ctx context.Context, job Job) (model.Report, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job Job) (model.Report, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, job Job) (model.Report, error) { //nolint:gocritic // hugeParam
	return f(ctx, job)
}

// Updater persists job state transitions.
type Updater interface {
	Update(ctx context.Context, job Job) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker once its current job finishes.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker. Each worker owns one recording at a time
// and runs it to completion before taking the next.
type InMemoryWorker struct {
	queue      Queue
	runner     Runner
	updater    Updater
	name       string
	jobTimeout time.Duration
	now        func() time.Time
	active     *atomic.Int64

	// Shutdown control
	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, runner Runner, updater Updater, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		runner:   runner,
		updater:  updater,
		name:     "worker",
		now:      time.Now,
		active:   new(atomic.Int64),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if w.stopping() {
				w.abandon(ctx, job)
				return
			}
			metrics.RecordQueueDequeue()
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "error processing job", logger.String("job_id", job.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

func (w *InMemoryWorker) stopping() bool {
	select {
	case <-w.shutdown:
		return true
	default:
		return false
	}
}

// abandon records a job that was dequeued but will never run.
func (w *InMemoryWorker) abandon(ctx context.Context, job Job) { //nolint:gocritic // hugeParam
	job.Status = model.JobFailed
	job.Error = shutdownReason
	job.FinishedAt = w.now()
	metrics.RecordJobFinished(metrics.OutcomeFailed)
	if err := w.updater.Update(context.WithoutCancel(ctx), job); err != nil {
		metrics.RecordError("worker", metrics.ErrorTypeInternal)
		w.logger.Error(ctx, "recording abandoned job", logger.String("job_id", job.ID), logger.Error(err))
	}
}

// process runs one job and records its terminal state. A failed detection
// is not a worker error; only store failures are returned.
func (w *InMemoryWorker) process(ctx context.Context, job Job) error { //nolint:gocritic // hugeParam
	start := time.Now()
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	job.Status = model.JobRunning
	job.StartedAt = w.now()
	if err := w.updater.Update(ctx, job); err != nil {
		metrics.RecordError("worker", metrics.ErrorTypeInternal)
		return fmt.Errorf("mark job %s running: %w", job.ID, err)
	}

	runCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	report, err := w.runner.Run(runCtx, job)
	job.FinishedAt = w.now()
	if err != nil {
		job.Status = model.JobFailed
		job.Error = err.Error()
		job.Report = nil
		errType := metrics.ErrorTypeInternal
		if errors.Is(err, context.DeadlineExceeded) {
			errType = metrics.ErrorTypeTimeout
		}
		metrics.RecordError("worker", errType)
		metrics.RecordJobFinished(metrics.OutcomeFailed)
		w.logger.Warn(ctx, "job failed",
			logger.String("job_id", job.ID),
			logger.String("recording", job.Source),
			logger.Error(err),
		)
	} else {
		job.Status = model.JobCompleted
		job.Report = &report
		metrics.RecordJobFinished(metrics.OutcomeCompleted)
		w.logger.Info(ctx, "job completed",
			logger.String("job_id", job.ID),
			logger.Int("episodes", len(report.Episodes)),
		)
	}

	// the terminal state must land even if the service is stopping
	if uerr := w.updater.Update(context.WithoutCancel(ctx), job); uerr != nil {
		metrics.RecordError("worker", metrics.ErrorTypeInternal)
		return fmt.Errorf("record job %s result: %w", job.ID, uerr)
	}
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	active  *atomic.Int64

	logger logger.Logger
}

// NewPool creates a new worker pool. A non-positive count uses one worker
// per CPU.
func NewPool(workerCount int, queue Queue, runner Runner, updater Updater, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		active:  new(atomic.Int64),
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append(append([]Option(nil), opts...), WithName("worker-"+strconv.Itoa(i)))
		w := NewInMemoryWorker(queue, runner, updater, wopts...)
		w.active = pool.active
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Active returns the number of workers currently running a job.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Shutdown closes the queue and waits for workers to drain it, up to the
// context deadline or poolShutdownTimeout. Workers still busy at the
// deadline are told to stop after their current job.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			timedOut = true
			worker.stop()
		}
	}
	if timedOut {
		if n := p.abandonQueued(ctx); n > 0 {
			p.logger.Warn(ctx, "failed jobs left in queue at shutdown", logger.Int("jobs", n))
		}
		return fmt.Errorf("worker pool: %w", context.DeadlineExceeded)
	}
	return nil
}

// abandonQueued marks every job still buffered in the queue as failed so
// none stays queued after the pool is gone.
func (p *Pool) abandonQueued(ctx context.Context) int {
	jobs := p.queue.Dequeue(ctx)
	n := 0
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return n
			}
			p.workers[0].abandon(ctx, job)
			n++
		default:
			return n
		}
	}
}
