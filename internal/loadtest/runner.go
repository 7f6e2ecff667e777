package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/barkwatch/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// Run executes the complete load test and returns its statistics.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	applyDefaults(config)
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting barkwatch load test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("jobs", config.NumJobs),
		logger.Int("sources", len(config.Sources)),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Bool("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate requests
	reqs, err := generateRequests(ctx, config, stats)
	if err != nil {
		return stats, fmt.Errorf("request generation failed: %w", err)
	}

	// Step 3: Submit jobs concurrently
	ids := submitJobs(ctx, config, reqs, stats)

	// Step 4: Wait for processing
	results := pollJobs(ctx, config, ids)

	// Step 5: Verify results
	verifyErr := verifyResults(ctx, config, reqs, results, stats)

	// Step 6: Save results to file
	if config.OutputFile != "" {
		if err := saveResultsToFile(ctx, config.OutputFile, results); err != nil {
			logger.Get().Warn(ctx, "failed to save results to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if verifyErr != nil {
		return stats, fmt.Errorf("result verification failed: %w", verifyErr)
	}
	logger.Get().Info(ctx, "test completed successfully")
	return stats, nil
}

func applyDefaults(config *Config) {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = DefaultWaitTimeout
	}
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if _, err := readResponseBody(resp); err != nil {
		return fmt.Errorf("read health response: %w", err)
	}

	// Accept any 200 response as healthy (the service returns Prometheus metrics)
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveResultsToFile writes the polled jobs to filename as a JSON array.
func saveResultsToFile(ctx context.Context, filename string, results []JobResult) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "results saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final test statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, jobsPerSecond float64

	if stats.JobsAccepted > 0 {
		successRate = float64(stats.JobsCompleted) / float64(stats.JobsAccepted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		jobsPerSecond = float64(stats.JobsCompleted+stats.JobsErrored) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("jobsGenerated", stats.JobsGenerated),
		logger.Int("jobsSubmitted", stats.JobsSubmitted),
		logger.Int("jobsAccepted", stats.JobsAccepted),
		logger.Int("jobsDuplicate", stats.JobsDuplicate),
		logger.Int("jobsRejected", stats.JobsRejected),
		logger.Int("jobsFailed", stats.JobsFailed),
		logger.Int("jobsCompleted", stats.JobsCompleted),
		logger.Int("jobsErrored", stats.JobsErrored),
		logger.Int("jobsUnfinished", stats.JobsUnfinished),
		logger.Int("totalDetections", stats.TotalDetections),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("jobsPerSecond", jobsPerSecond))
}
