package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/barkwatch/pkg/logger"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client *http.Client
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body.
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

type submitOutcome int

const (
	outcomeAccepted submitOutcome = iota
	outcomeDuplicate
	outcomeRejected
	outcomeFailed
)

// submitJobs submits requests concurrently using a worker pool and returns
// the IDs of accepted jobs.
func submitJobs(ctx context.Context, config *Config, reqs []JobRequest, stats *Stats) []string {
	log := logger.Get()
	log.Info(ctx, "submitting jobs", logger.Int("jobs", len(reqs)), logger.Int("workers", config.Workers))

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/jobs"

	var (
		accepted  int64
		duplicate int64
		rejected  int64
		failed    int64
		submitted int64
		mu        sync.Mutex
		ids       []string
		lastMu    sync.Mutex
		last      time.Time
	)

	reqChan := make(chan JobRequest, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range reqChan {
				if ctx.Err() != nil {
					return
				}
				outcome, id := submitSingleJob(ctx, client, url, req)
				atomic.AddInt64(&submitted, 1)
				switch outcome {
				case outcomeAccepted:
					atomic.AddInt64(&accepted, 1)
					mu.Lock()
					ids = append(ids, id)
					mu.Unlock()
				case outcomeDuplicate:
					atomic.AddInt64(&duplicate, 1)
				case outcomeRejected:
					atomic.AddInt64(&rejected, 1)
				case outcomeFailed:
					atomic.AddInt64(&failed, 1)
				}

				lastMu.Lock()
				report := time.Since(last) >= progressInterval
				if report {
					last = time.Now()
				}
				lastMu.Unlock()
				if report && config.Verbose {
					log.Info(ctx, "submission progress",
						logger.Int64("submitted", atomic.LoadInt64(&submitted)),
						logger.Int("total", len(reqs)),
						logger.Int64("accepted", atomic.LoadInt64(&accepted)),
						logger.Int64("duplicate", atomic.LoadInt64(&duplicate)),
						logger.Int64("rejected", atomic.LoadInt64(&rejected)),
						logger.Int64("failed", atomic.LoadInt64(&failed)))
				}
			}
		}()
	}

	// Duplicates must follow their original, so keys are fed in order and
	// a repeated key waits for the first submission of that key.
	go func() {
		defer close(reqChan)
		for i, req := range reqs {
			if i > 0 && reqs[i-1].IdempotencyKey == req.IdempotencyKey {
				waitForSubmitted(ctx, &submitted, int64(i))
			}
			select {
			case <-ctx.Done():
				return
			case reqChan <- req:
			}
		}
	}()

	wg.Wait()

	stats.JobsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.JobsAccepted = int(atomic.LoadInt64(&accepted))
	stats.JobsDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.JobsRejected = int(atomic.LoadInt64(&rejected))
	stats.JobsFailed = int(atomic.LoadInt64(&failed))

	log.Info(ctx, "job submission completed",
		logger.Int("accepted", stats.JobsAccepted),
		logger.Int("duplicate", stats.JobsDuplicate),
		logger.Int("rejected", stats.JobsRejected),
		logger.Int("failed", stats.JobsFailed))
	return ids
}

// waitForSubmitted blocks until at least n submissions have completed.
func waitForSubmitted(ctx context.Context, submitted *int64, n int64) {
	for atomic.LoadInt64(submitted) < n {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Millisecond):
		}
	}
}

// submitSingleJob submits one request and classifies the response.
func submitSingleJob(ctx context.Context, client *HTTPClient, url string, req JobRequest) (submitOutcome, string) {
	resp, err := client.Post(ctx, url, req)
	if err != nil {
		return outcomeFailed, ""
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return outcomeFailed, ""
	}

	switch resp.StatusCode {
	case StatusAccepted:
		var ack SubmitResponse
		if err := json.Unmarshal(body, &ack); err != nil || ack.Job.ID == "" {
			return outcomeFailed, ""
		}
		return outcomeAccepted, ack.Job.ID
	case StatusOK:
		return outcomeDuplicate, ""
	case StatusTooManyRequests:
		return outcomeRejected, ""
	default:
		return outcomeFailed, ""
	}
}
