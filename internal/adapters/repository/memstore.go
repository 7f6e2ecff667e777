package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/barkwatch/internal/domain/model"
	"github.com/okian/barkwatch/pkg/metrics"
)

// MemoryStore keeps jobs in a map guarded by a RWMutex.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]model.Job
	order []string // insertion order, oldest first

	maxJobs               int
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore constructs an in-memory store with configuration options.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		jobs:                  make(map[string]model.Job),
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	s.startMetricsUpdater(ctx)
	return s
}

// Create implements Store.Create.
func (s *MemoryStore) Create(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam
	if err := validateJob(&job); err != nil {
		return err
	}
	defer observe(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	s.order = append(s.order, job.ID)
	s.evictLocked()
	return nil
}

// Update implements Store.Update.
func (s *MemoryStore) Update(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam
	if err := validateJob(&job); err != nil {
		return err
	}
	defer observe(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(ctx context.Context, id string) (model.Job, error) {
	defer observe(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneJob(job), nil
}

// List implements Store.List. Jobs are returned in reverse insertion order.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	defer observe(time.Now())

	s.mu.RLock()
	out := make([]model.Job, 0, min(limit, len(s.order)))
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneJob(s.jobs[s.order[i]]))
	}
	s.mu.RUnlock()
	return out, nil
}

// CountByStatus implements Store.CountByStatus.
func (s *MemoryStore) CountByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.JobStatus]int, 4)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

// Count returns the number of retained jobs.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Close stops the background metrics goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// evictLocked drops the oldest terminal jobs while over maxJobs. Jobs that
// are still queued or running are kept so workers can finish them.
func (s *MemoryStore) evictLocked() {
	if s.maxJobs <= 0 || len(s.jobs) <= s.maxJobs {
		return
	}
	kept := s.order[:0]
	excess := len(s.jobs) - s.maxJobs
	for _, id := range s.order {
		if excess > 0 && s.jobs[id].Status.Terminal() {
			delete(s.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateStoreJobs(s.Count())
			}
		}
	}()
}

func observe(start time.Time) {
	metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
}

// cloneJob copies the report so callers cannot mutate stored state.
func cloneJob(job model.Job) model.Job { //nolint:gocritic // hugeParam
	if job.Report != nil {
		r := *job.Report
		r.Episodes = append([]model.Episode(nil), r.Episodes...)
		job.Report = &r
	}
	return job
}
