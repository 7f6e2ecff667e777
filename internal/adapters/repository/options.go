package repository

import "time"

const defaultMetricsUpdateInterval = 5 * time.Second

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithMaxJobs bounds the number of retained jobs. Once exceeded, the oldest
// terminal jobs are dropped. Zero keeps everything.
func WithMaxJobs(n int) Option {
	return func(s *MemoryStore) {
		if n >= 0 {
			s.maxJobs = n
		}
	}
}
