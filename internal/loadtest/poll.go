package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/barkwatch/pkg/logger"
)

// pollJobs waits concurrently for every job to reach a terminal status or
// for WaitTimeout to pass. Jobs still running at the deadline are returned
// with their last seen status.
func pollJobs(ctx context.Context, config *Config, ids []string) []JobResult {
	log := logger.Get()
	log.Info(ctx, "waiting for jobs", logger.Int("jobs", len(ids)), logger.Int("workers", config.Workers))

	ctx, cancel := context.WithTimeout(ctx, config.WaitTimeout)
	defer cancel()

	client := newHTTPClient(config.Timeout)
	results := make([]JobResult, len(ids))
	var finished int64

	idxChan := make(chan int, config.Workers*WorkerChannelMultiplier) // Send indices instead of IDs
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range idxChan {
				results[index] = pollSingleJob(ctx, client, config, ids[index])
				if n := atomic.AddInt64(&finished, 1); config.Verbose && n%100 == 0 {
					log.Info(ctx, "poll progress", logger.Int64("done", n), logger.Int("total", len(ids)))
				}
			}
		}()
	}

	go func() {
		defer close(idxChan)
		for i := range ids {
			select {
			case <-ctx.Done():
				return
			case idxChan <- i:
			}
		}
	}()

	wg.Wait()

	// Indices never handed to a worker keep their ID so they count as unfinished.
	for i := range results {
		if results[i].ID == "" {
			results[i] = JobResult{ID: ids[i]}
		}
	}
	return results
}

// pollSingleJob fetches a job until it is terminal or ctx is done.
func pollSingleJob(ctx context.Context, client *HTTPClient, config *Config, id string) JobResult {
	last := JobResult{ID: id}
	url := config.BaseURL + "/jobs/" + id
	for {
		job, err := fetchJob(ctx, client, url)
		if err == nil {
			last = job
			if job.Status == "completed" || job.Status == "failed" {
				return job
			}
		} else if config.Verbose {
			logger.Get().Warn(ctx, "failed to fetch job", logger.String("id", id), logger.Error(err))
		}

		select {
		case <-ctx.Done():
			return last
		case <-time.After(config.PollInterval):
		}
	}
}

func fetchJob(ctx context.Context, client *HTTPClient, url string) (JobResult, error) {
	resp, err := client.Get(ctx, url)
	if err != nil {
		return JobResult{}, err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return JobResult{}, err
	}
	if resp.StatusCode != StatusOK {
		return JobResult{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var job JobResult
	if err := json.Unmarshal(body, &job); err != nil {
		return JobResult{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
