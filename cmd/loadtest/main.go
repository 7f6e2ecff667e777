// Command loadtest submits detection jobs to a running barkwatch service and
// verifies that every job finishes.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/barkwatch/internal/loadtest"
	"github.com/spf13/cobra"
)

// Default configuration constants.
const (
	defaultNumJobs        = 100
	defaultDuplicateEvery = 10
	defaultWorkers        = 2 // multiplier for runtime.NumCPU()
	defaultTimeout        = 30 * time.Second
	defaultTestTimeout    = 10 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	config := &loadtest.Config{}
	var logFile string

	cmd := &cobra.Command{
		Use:   "loadtest <recording>...",
		Short: "Submit detection jobs concurrently and wait for them to finish",
		Example: `  loadtest /data/yard.wav /data/porch.mp3
  loadtest --jobs 1000 --workers 16 --url http://localhost:8080 /data/yard.wav`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := loadtest.SetupLogging(logFile)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTestTimeout)
			defer cancel()

			config.Sources = args
			_, err = loadtest.Run(ctx, config)
			return err
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&config.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	fs.IntVar(&config.NumJobs, "jobs", defaultNumJobs, "number of jobs to submit")
	fs.IntVar(&config.DuplicateEvery, "duplicate-every", defaultDuplicateEvery, "resubmit the previous idempotency key every n jobs; 0 disables")
	fs.IntVar(&config.Workers, "workers", runtime.NumCPU()*defaultWorkers, "number of concurrent workers")
	fs.DurationVar(&config.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	fs.DurationVar(&config.PollInterval, "poll-interval", loadtest.DefaultPollInterval, "delay between status checks of one job")
	fs.DurationVar(&config.WaitTimeout, "wait", loadtest.DefaultWaitTimeout, "upper bound for all jobs to finish")
	fs.StringVar(&config.OutputFile, "output", "", "write job results to this JSON file")
	fs.StringVar(&logFile, "log", "", "log file for test output (default: loadtest_TIMESTAMP.log)")
	fs.BoolVar(&config.Verbose, "verbose", false, "enable verbose logging")
	return cmd
}
