package loadtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/barkwatch/pkg/logger"
)

// Verification errors.
var (
	ErrUnfinishedJobs    = errors.New("jobs did not finish in time")
	ErrDuplicateMismatch = errors.New("duplicate count mismatch")
)

// verifyResults tallies job outcomes and checks that every accepted job
// finished and every repeated key was reported as a duplicate.
func verifyResults(ctx context.Context, config *Config, reqs []JobRequest, results []JobResult, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "verifying results")

	for _, r := range results {
		switch r.Status {
		case "completed":
			stats.JobsCompleted++
			if r.Report != nil {
				stats.TotalDetections += r.Report.TotalDetections
			}
		case "failed":
			stats.JobsErrored++
			if config.Verbose {
				log.Warn(ctx, "job failed", logger.String("id", r.ID), logger.String("source", r.Source), logger.String("error", r.Error))
			}
		default:
			stats.JobsUnfinished++
		}
	}

	var errs []error
	if stats.JobsUnfinished > 0 {
		errs = append(errs, fmt.Errorf("%w: %d of %d", ErrUnfinishedJobs, stats.JobsUnfinished, len(results)))
	}
	// Only a run without rejections has a predictable duplicate count.
	if want := expectedDuplicates(reqs); stats.JobsRejected == 0 && stats.JobsFailed == 0 && stats.JobsDuplicate != want {
		errs = append(errs, fmt.Errorf("%w: got %d, want %d", ErrDuplicateMismatch, stats.JobsDuplicate, want))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	log.Info(ctx, "result verification completed")
	return nil
}
