package loadtest

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/google/uuid"
	"github.com/okian/barkwatch/pkg/logger"
)

// Constants for random threshold generation.
const (
	randomFloatDivisor = 1000000
	thresholdMin       = 0.2
	thresholdRange     = 0.4
)

// ErrNoSources is returned when the config names no recordings.
var ErrNoSources = errors.New("no sources configured")

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// generateRequests builds NumJobs submissions cycling over the sources. Every
// DuplicateEvery-th request repeats the previous idempotency key.
func generateRequests(ctx context.Context, config *Config, stats *Stats) ([]JobRequest, error) {
	if len(config.Sources) == 0 {
		return nil, ErrNoSources
	}
	logger.Get().Info(ctx, "generating job requests", logger.Int("numJobs", config.NumJobs))

	reqs := make([]JobRequest, config.NumJobs)
	for i := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		threshold := thresholdMin + getRandomFloat()*thresholdRange
		req := JobRequest{
			Source:              config.Sources[i%len(config.Sources)],
			IdempotencyKey:      "loadtest-" + uuid.NewString(),
			ConfidenceThreshold: &threshold,
		}
		if config.DuplicateEvery > 0 && i > 0 && i%config.DuplicateEvery == 0 {
			req = reqs[i-1]
		}
		reqs[i] = req
	}

	stats.JobsGenerated = len(reqs)
	return reqs, nil
}

// expectedDuplicates counts the requests that repeat an earlier key.
func expectedDuplicates(reqs []JobRequest) int {
	seen := make(map[string]bool, len(reqs))
	n := 0
	for _, r := range reqs {
		if seen[r.IdempotencyKey] {
			n++
		}
		seen[r.IdempotencyKey] = true
	}
	return n
}
