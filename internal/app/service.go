// Package service provides the job service that implements the
// dependencies required by the HTTP API and the inbox watcher.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	jobqueue "github.com/okian/barkwatch/internal/adapters/mq/queue"
	workerpool "github.com/okian/barkwatch/internal/adapters/mq/worker"
	repository "github.com/okian/barkwatch/internal/adapters/repository"
	"github.com/okian/barkwatch/internal/domain/dedupe"
	"github.com/okian/barkwatch/internal/domain/detection"
	"github.com/okian/barkwatch/internal/domain/model"
	"github.com/okian/barkwatch/pkg/logger"
	"github.com/okian/barkwatch/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize     = 1000
	defaultDedupeSize    = 50_000
	defaultRetainedJobs  = 10_000
	defaultStatsInterval = 10 * time.Second
	stopTimeout          = 30 * time.Second
)

// Service accepts detection jobs, runs them on a worker pool and keeps
// their results in a store.
type Service struct {
	mu sync.RWMutex
	// claimMu makes claim, create and enqueue of a keyed job one step
	claimMu sync.Mutex

	// Core components
	detector *detection.Detector
	store    repository.Store
	deduper  dedupe.Deduper
	queue    *jobqueue.InMemoryQueue
	pool     *workerpool.Pool

	// Configuration
	workerCount   int
	queueSize     int
	dedupeSize    int
	jobTimeout    time.Duration
	statsInterval time.Duration
	now           func() time.Time
	newID         func() string

	// State
	started bool
	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the idempotency key cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithStore replaces the default in-memory job store. The service closes it
// on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithJobTimeout bounds each detection job.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithStatsInterval sets how often runtime stats are published to metrics.
func WithStatsInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.statsInterval = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the job id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// New constructs a Service around a configured detector.
func New(detector *detection.Detector, opts ...Option) *Service {
	s := &Service{
		detector:      detector,
		workerCount:   runtime.NumCPU(),
		queueSize:     defaultQueueSize,
		dedupeSize:    defaultDedupeSize,
		statsInterval: defaultStatsInterval,
		now:           time.Now,
		newID:         uuid.NewString,
		stopCh:        make(chan struct{}),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the queue, deduper and worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.detector == nil {
		return fmt.Errorf("start service: %w", detection.ErrMissingDependency)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting detection service...")

	// workers outlive the start request; Stop cancels them
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if s.store == nil {
		s.store = repository.NewMemoryStore(runCtx, repository.WithMaxJobs(defaultRetainedJobs))
		s.logger.Info(ctx, "using in-memory job store")
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))

	opts := []workerpool.Option{workerpool.WithClock(s.now)}
	if s.jobTimeout > 0 {
		opts = append(opts, workerpool.WithJobTimeout(s.jobTimeout))
	}
	s.pool = workerpool.NewPool(s.workerCount, s.queue, workerpool.RunnerFunc(s.run), s.store, opts...)
	s.pool.Start(runCtx)

	s.wg.Add(1)
	go s.publishStats(runCtx)

	s.started = true
	s.logger.Info(ctx, "detection service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the queue, stops workers and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping detection service...")

	shutdownCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := s.pool.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}

	close(s.stopCh)
	s.cancel()
	s.wg.Wait()

	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing job store", logger.Error(err))
	}

	s.started = false
	s.stopCh = make(chan struct{})
	s.store = nil
	s.logger.Info(ctx, "detection service stopped")
}

// run is the worker entry point for one job.
func (s *Service) run(ctx context.Context, job model.Job) (model.Report, error) { //nolint:gocritic // hugeParam
	d, err := s.detector.Tune(job.Params)
	if err != nil {
		return model.Report{}, err
	}
	return d.Detect(ctx, job.Source)
}

// Submit validates and enqueues a job built from req's Source,
// IdempotencyKey and Params. When the key was already used, the earlier job
// is returned with duplicate set.
func (s *Service) Submit(ctx context.Context, req model.Job) (job model.Job, duplicate bool, err error) { //nolint:gocritic // hugeParam
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.Job{}, false, ErrNotStarted
	}

	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		return model.Job{}, false, fmt.Errorf("%w: source is required", model.ErrInvalidJob)
	}
	if _, err := s.detector.Tune(req.Params); err != nil {
		return model.Job{}, false, fmt.Errorf("%w: %w", model.ErrInvalidJob, err)
	}

	job = model.Job{
		ID:             s.newID(),
		Source:         req.Source,
		IdempotencyKey: req.IdempotencyKey,
		Params:         req.Params,
		Status:         model.JobQueued,
		CreatedAt:      s.now(),
	}

	if key := job.IdempotencyKey; key != "" {
		s.claimMu.Lock()
		defer s.claimMu.Unlock()
		if existing, seen, err := s.claim(ctx, key, job.ID); err != nil || seen {
			return existing, seen, err
		}
	}

	if err := s.store.Create(ctx, job); err != nil {
		s.release(ctx, job.IdempotencyKey)
		return model.Job{}, false, err
	}

	if err := s.queue.TryEnqueue(ctx, job); err != nil {
		s.release(ctx, job.IdempotencyKey)
		job.Status = model.JobFailed
		job.Error = "rejected: " + err.Error()
		job.FinishedAt = s.now()
		if uerr := s.store.Update(context.WithoutCancel(ctx), job); uerr != nil {
			s.logger.Warn(ctx, "recording rejected job", logger.String("job_id", job.ID), logger.Error(uerr))
		}
		if errors.Is(err, jobqueue.ErrFull) {
			return model.Job{}, false, fmt.Errorf("%w: %w", model.ErrQueueFull, err)
		}
		return model.Job{}, false, err
	}

	metrics.RecordJobSubmitted()
	s.logger.Debug(ctx, "job queued",
		logger.String("job_id", job.ID),
		logger.String("recording", job.Source),
	)
	return job, false, nil
}

// claim binds key to id. A key bound to a job the store no longer holds is
// rebound; callers hold claimMu so a miss always means eviction.
func (s *Service) claim(ctx context.Context, key, id string) (model.Job, bool, error) {
	existingID, seen := s.deduper.Claim(ctx, key, id)
	if !seen {
		return model.Job{}, false, nil
	}
	existing, err := s.store.Get(ctx, existingID)
	if err == nil {
		metrics.RecordJobDuplicate()
		return existing, true, nil
	}
	if !errors.Is(err, model.ErrJobNotFound) {
		return model.Job{}, false, err
	}
	s.logger.Debug(ctx, "rebinding idempotency key of evicted job",
		logger.String("key", key),
		logger.String("evicted_job_id", existingID),
	)
	s.deduper.Release(ctx, key)
	s.deduper.Claim(ctx, key, id)
	return model.Job{}, false, nil
}

func (s *Service) release(ctx context.Context, key string) {
	if key != "" {
		s.deduper.Release(ctx, key)
	}
}

// Job returns a job by id.
func (s *Service) Job(ctx context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.Job{}, ErrNotStarted
	}
	return s.store.Get(ctx, id)
}

// Jobs returns up to limit jobs, newest first.
func (s *Service) Jobs(ctx context.Context, limit int) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store.List(ctx, limit)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["activeWorkers"] = s.pool.Active()
		stats["dedupeKeys"] = s.deduper.Size()

		jobs := map[string]int{}
		if counts, err := s.store.CountByStatus(ctx); err == nil {
			total := 0
			for status, n := range counts {
				jobs[string(status)] = n
				total += n
			}
			stats["totalJobs"] = total
			metrics.UpdateStoreJobs(total)
		}
		stats["jobs"] = jobs
	}

	return stats
}

// publishStats periodically refreshes runtime and queue gauges.
func (s *Service) publishStats(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			metrics.UpdateSystemStats()
			s.queue.Len(ctx)
		}
	}
}
