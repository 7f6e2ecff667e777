// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and BARKWATCH_* env vars over the defaults.
// - Errors are wrapped with ErrInvalidConfig or ErrLoadConfig.
package config

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/okian/barkwatch/internal/domain/chunking"
	"github.com/okian/barkwatch/internal/domain/extract"
	"github.com/okian/barkwatch/internal/domain/merge"
	"github.com/okian/barkwatch/internal/domain/scoring"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of detection workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the idempotency key cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxJobsLimit caps GET /jobs?limit.
	MaxJobsLimit int `koanf:"max_jobs_limit"`

	// JobTimeoutMS bounds a single detection job. Zero disables the bound.
	JobTimeoutMS int `koanf:"job_timeout_ms"`

	// Pipeline settings.
	SampleRate          int      `koanf:"sample_rate"`
	ChunkDuration       float64  `koanf:"chunk_duration"`
	ChunkOverlap        float64  `koanf:"chunk_overlap"`
	FrameDuration       float64  `koanf:"frame_duration"`
	HopDuration         float64  `koanf:"hop_duration"`
	ConfidenceThreshold float64  `koanf:"confidence_threshold"`
	MergeGap            float64  `koanf:"merge_gap"`
	MergeEnabled        bool     `koanf:"merge_enabled"`
	TargetClasses       []string `koanf:"target_classes"`
	ClassMapPath        string   `koanf:"class_map_path"`

	// Normalize scales every chunk to unit peak before scoring.
	Normalize bool `koanf:"normalize"`

	// NoiseGate attenuates samples below this amplitude. Zero disables it.
	NoiseGate float64 `koanf:"noise_gate"`

	// ScorerURL points at the model server. Empty selects the in-memory scorer.
	ScorerURL       string `koanf:"scorer_url"`
	ScorerTimeoutMS int    `koanf:"scorer_timeout_ms"`

	// FFmpegPath and FFprobePath locate the decoder binaries.
	FFmpegPath  string `koanf:"ffmpeg_path"`
	FFprobePath string `koanf:"ffprobe_path"`

	// WatchDir enables the inbox watcher when set.
	WatchDir string `koanf:"watch_dir"`

	// DatabaseURL selects the PostgreSQL job store when set.
	DatabaseURL string `koanf:"database_url"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		QueueSize:           1000,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          50_000,
		MaxJobsLimit:        100,
		SampleRate:          scoring.DefaultSampleRate,
		ChunkDuration:       chunking.DefaultChunkDuration,
		ChunkOverlap:        chunking.DefaultOverlap,
		FrameDuration:       extract.DefaultFrameDuration,
		HopDuration:         extract.DefaultHopDuration,
		ConfidenceThreshold: extract.DefaultThreshold,
		MergeGap:            merge.DefaultGap,
		MergeEnabled:        true,
		TargetClasses:       append([]string(nil), scoring.DefaultTargetPatterns...),
		ScorerTimeoutMS:     60_000,
		FFmpegPath:          "ffmpeg",
		FFprobePath:         "ffprobe",
	}
}

// Validate rejects settings the pipeline cannot run with, before any
// recording is touched.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if _, err := chunking.NewPlan(c.ChunkDuration, c.ChunkOverlap); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := merge.Validate(c.MergeGap); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if math.IsNaN(c.ConfidenceThreshold) || c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence_threshold %v not in [0, 1]", ErrInvalidConfig, c.ConfidenceThreshold)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample_rate must be positive", ErrInvalidConfig)
	}
	if !(c.FrameDuration > 0) || !(c.HopDuration > 0) {
		return fmt.Errorf("%w: frame_duration and hop_duration must be positive", ErrInvalidConfig)
	}
	if c.NoiseGate < 0 {
		return fmt.Errorf("%w: noise_gate must not be negative", ErrInvalidConfig)
	}
	if len(c.Targets()) == 0 {
		return fmt.Errorf("%w: target_classes must not be empty", ErrInvalidConfig)
	}
	if c.QueueSize <= 0 || c.MaxJobsLimit <= 0 {
		return fmt.Errorf("%w: queue_size and max_jobs_limit must be positive", ErrInvalidConfig)
	}
	return nil
}

// Targets returns the trimmed, non-empty target class patterns.
func (c *Config) Targets() []string {
	out := make([]string, 0, len(c.TargetClasses))
	for _, p := range c.TargetClasses {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JobTimeout returns JobTimeoutMS as a duration.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutMS) * time.Millisecond
}

// ScorerTimeout returns ScorerTimeoutMS as a duration.
func (c *Config) ScorerTimeout() time.Duration {
	return time.Duration(c.ScorerTimeoutMS) * time.Millisecond
}
