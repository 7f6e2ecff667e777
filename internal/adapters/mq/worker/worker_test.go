package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	worker "github.com/okian/barkwatch/internal/adapters/mq/worker"
	model "github.com/okian/barkwatch/internal/domain/model"
	logging "github.com/okian/barkwatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs      chan model.Job
	closeOnce sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan model.Job, 200)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan model.Job { return mq.jobs }

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.jobs) })
	return nil
}

func (mq *mockQueue) add(job model.Job) { mq.jobs <- job } //nolint:gocritic // hugeParam

type mockRunner struct {
	mu     sync.Mutex
	errs   map[string]error
	delay  time.Duration
	ran    []string
	report model.Report
}

func newMockRunner() *mockRunner {
	return &mockRunner{
		errs:   make(map[string]error),
		report: model.Report{Episodes: []model.Episode{{StartTime: 1, EndTime: 2, Confidence: 0.8}}},
	}
}

func (r *mockRunner) Run(ctx context.Context, job model.Job) (model.Report, error) { //nolint:gocritic // hugeParam
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return model.Report{}, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, job.ID)
	if err, ok := r.errs[job.ID]; ok {
		return model.Report{}, err
	}
	rep := r.report
	rep.Source = job.Source
	return rep, nil
}

type mockUpdater struct {
	mu     sync.Mutex
	states map[string][]model.Job
	fail   map[model.JobStatus]error
}

func newMockUpdater() *mockUpdater {
	return &mockUpdater{states: make(map[string][]model.Job), fail: make(map[model.JobStatus]error)}
}

func (u *mockUpdater) Update(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam
	u.mu.Lock()
	defer u.mu.Unlock()
	if err, ok := u.fail[job.Status]; ok {
		return err
	}
	u.states[job.ID] = append(u.states[job.ID], job)
	return nil
}

func (u *mockUpdater) last(id string) (model.Job, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	s := u.states[id]
	if len(s) == 0 {
		return model.Job{}, false
	}
	return s[len(s)-1], true
}

func (u *mockUpdater) history(id string) []model.JobStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []model.JobStatus
	for _, j := range u.states[id] {
		out = append(out, j.Status)
	}
	return out
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func terminal(u *mockUpdater, id string) func() bool {
	return func() bool {
		j, ok := u.last(id)
		return ok && j.Status.Terminal()
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running InMemoryWorker", t, func() {
		_ = logging.Init()

		queue := newMockQueue()
		runner := newMockRunner()
		updater := newMockUpdater()
		fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

		w := worker.NewInMemoryWorker(queue, runner, updater,
			worker.WithName("test-worker"),
			worker.WithClock(func() time.Time { return fixed }),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job succeeds", func() {
			queue.add(model.Job{ID: "job-1", Source: "a.wav", Status: model.JobQueued})
			convey.So(waitFor(terminal(updater, "job-1")), convey.ShouldBeTrue)

			convey.Convey("Then it moves through running to completed with a report", func() {
				convey.So(updater.history("job-1"), convey.ShouldResemble,
					[]model.JobStatus{model.JobRunning, model.JobCompleted})
				job, _ := updater.last("job-1")
				convey.So(job.Report, convey.ShouldNotBeNil)
				convey.So(job.Report.Source, convey.ShouldEqual, "a.wav")
				convey.So(job.StartedAt, convey.ShouldEqual, fixed)
				convey.So(job.FinishedAt, convey.ShouldEqual, fixed)
				convey.So(job.Error, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When detection fails", func() {
			runner.errs["job-2"] = errors.New("score chunk 2: model unavailable")
			queue.add(model.Job{ID: "job-2", Source: "b.wav"})
			queue.add(model.Job{ID: "job-3", Source: "c.wav"})
			convey.So(waitFor(terminal(updater, "job-3")), convey.ShouldBeTrue)

			convey.Convey("Then the job is failed with the error text", func() {
				job, _ := updater.last("job-2")
				convey.So(job.Status, convey.ShouldEqual, model.JobFailed)
				convey.So(job.Error, convey.ShouldContainSubstring, "score chunk 2")
				convey.So(job.Report, convey.ShouldBeNil)
			})

			convey.Convey("And later jobs are unaffected", func() {
				job, _ := updater.last("job-3")
				convey.So(job.Status, convey.ShouldEqual, model.JobCompleted)
			})
		})

		convey.Convey("When the store rejects the running state", func() {
			updater.fail[model.JobRunning] = errors.New("store down")
			queue.add(model.Job{ID: "job-4"})
			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then the job is not run", func() {
				runner.mu.Lock()
				defer runner.mu.Unlock()
				convey.So(runner.ran, convey.ShouldNotContain, "job-4")
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			convey.Convey("Then it stops gracefully and twice is harmless", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a worker with a job timeout", t, func() {
		_ = logging.Init()
		queue := newMockQueue()
		runner := newMockRunner()
		runner.delay = time.Second
		updater := newMockUpdater()

		w := worker.NewInMemoryWorker(queue, runner, updater, worker.WithJobTimeout(20*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		queue.add(model.Job{ID: "slow"})

		convey.Convey("Then a slow job fails with a deadline error", func() {
			convey.So(waitFor(terminal(updater, "slow")), convey.ShouldBeTrue)
			job, _ := updater.last("slow")
			convey.So(job.Status, convey.ShouldEqual, model.JobFailed)
			convey.So(job.Error, convey.ShouldContainSubstring, context.DeadlineExceeded.Error())
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a started pool of four workers", t, func() {
		_ = logging.Init()

		queue := newMockQueue()
		runner := newMockRunner()
		updater := newMockUpdater()
		pool := worker.NewPool(4, queue, runner, updater)
		convey.So(pool.Size(), convey.ShouldEqual, 4)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When many jobs are queued concurrently", func() {
			const perProducer, producers = 20, 5
			var wg sync.WaitGroup
			for p := 0; p < producers; p++ {
				wg.Add(1)
				go func(p int) {
					defer wg.Done()
					for j := 0; j < perProducer; j++ {
						queue.add(model.Job{ID: fmt.Sprintf("job-%d-%d", p, j)})
					}
				}(p)
			}
			wg.Wait()

			convey.Convey("Then every job reaches a terminal state", func() {
				allDone := func() bool {
					for p := 0; p < producers; p++ {
						for j := 0; j < perProducer; j++ {
							if !terminal(updater, fmt.Sprintf("job-%d-%d", p, j))() {
								return false
							}
						}
					}
					return true
				}
				convey.So(waitFor(allDone), convey.ShouldBeTrue)
				convey.So(pool.Active(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When shutting down with queued work", func() {
			queue.add(model.Job{ID: "tail-1"})
			queue.add(model.Job{ID: "tail-2"})
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then the queue drains before the pool stops", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(terminal(updater, "tail-1")(), convey.ShouldBeTrue)
				convey.So(terminal(updater, "tail-2")(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a single busy worker and jobs waiting behind it", t, func() {
		_ = logging.Init()

		queue := newMockQueue()
		runner := newMockRunner()
		runner.delay = 2 * time.Second
		updater := newMockUpdater()
		pool := worker.NewPool(1, queue, runner, updater)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		queue.add(model.Job{ID: "busy"})
		convey.So(waitFor(func() bool { return pool.Active() == 1 }), convey.ShouldBeTrue)
		queue.add(model.Job{ID: "waiting-1", Status: model.JobQueued})
		queue.add(model.Job{ID: "waiting-2", Status: model.JobQueued})

		convey.Convey("When shutdown runs out of time", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer shutdownCancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then the waiting jobs are failed with a shutdown reason", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				for _, id := range []string{"waiting-1", "waiting-2"} {
					job, ok := updater.last(id)
					convey.So(ok, convey.ShouldBeTrue)
					convey.So(job.Status, convey.ShouldEqual, model.JobFailed)
					convey.So(job.Error, convey.ShouldContainSubstring, "shutdown")
					convey.So(job.FinishedAt.IsZero(), convey.ShouldBeFalse)
				}
				runner.mu.Lock()
				defer runner.mu.Unlock()
				convey.So(runner.ran, convey.ShouldNotContain, "waiting-1")
				convey.So(runner.ran, convey.ShouldNotContain, "waiting-2")
			})
		})
	})

	convey.Convey("Given a pool with a default count", t, func() {
		pool := worker.NewPool(0, newMockQueue(), worker.RunnerFunc(func(ctx context.Context, job model.Job) (model.Report, error) {
			return model.Report{}, nil
		}), newMockUpdater())

		convey.Convey("Then it sizes itself from the CPU count", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})
}
