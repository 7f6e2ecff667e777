package service

import (
	"fmt"

	"github.com/okian/barkwatch/internal/adapters/scorer"
	"github.com/okian/barkwatch/internal/adapters/source"
	"github.com/okian/barkwatch/internal/config"
	"github.com/okian/barkwatch/internal/domain/chunking"
	"github.com/okian/barkwatch/internal/domain/detection"
	"github.com/okian/barkwatch/internal/domain/extract"
	"github.com/okian/barkwatch/internal/domain/preprocess"
	"github.com/okian/barkwatch/internal/domain/scoring"
	"github.com/okian/barkwatch/pkg/logger"
)

// NewDetector wires the detection pipeline described by cfg. A nil src
// uses ffmpeg/ffprobe; an empty scorer URL uses the in-memory scorer.
func NewDetector(cfg *config.Config, src chunking.Source, log logger.Logger) (*detection.Detector, error) {
	if log == nil {
		log = logger.Get()
	}

	classes := scoring.DefaultClassMap()
	if cfg.ClassMapPath != "" {
		m, err := scoring.LoadClassMapFile(cfg.ClassMapPath)
		if err != nil {
			return nil, err
		}
		classes = m
	}
	targets, err := classes.Resolve(cfg.Targets())
	if err != nil {
		return nil, err
	}

	ex, err := extract.New(
		extract.WithTargets(targets...),
		extract.WithThreshold(cfg.ConfidenceThreshold),
		extract.WithFrameDuration(cfg.FrameDuration),
		extract.WithHopDuration(cfg.HopDuration),
		extract.WithLabels(classes.Label),
	)
	if err != nil {
		return nil, err
	}

	sc, err := newScorer(cfg, classes.Size(), targets)
	if err != nil {
		return nil, err
	}

	if src == nil {
		src = source.NewFFmpegSource(
			source.WithFFmpegPath(cfg.FFmpegPath),
			source.WithFFprobePath(cfg.FFprobePath),
			source.WithSampleRate(cfg.SampleRate),
		)
	}

	plan, err := chunking.NewPlan(cfg.ChunkDuration, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	var steps []preprocess.Func
	if cfg.Normalize {
		steps = append(steps, preprocess.Normalize)
	}
	if cfg.NoiseGate > 0 {
		steps = append(steps, preprocess.NoiseGate(cfg.NoiseGate))
	}

	d, err := detection.New(src, sc, ex,
		detection.WithPlan(plan),
		detection.WithMergeGap(cfg.MergeGap),
		detection.WithMerge(cfg.MergeEnabled),
		detection.WithPreprocess(steps...),
		detection.WithLogger(log.Named("detector")),
	)
	if err != nil {
		return nil, fmt.Errorf("build detector: %w", err)
	}
	return d, nil
}

func newScorer(cfg *config.Config, classes int, targets []int) (scoring.Scorer, error) {
	if cfg.ScorerURL != "" {
		s, err := scorer.NewHTTPScorer(cfg.ScorerURL,
			scorer.WithSampleRate(cfg.SampleRate),
			scorer.WithClasses(classes),
			scorer.WithTimeout(cfg.ScorerTimeout()),
		)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := scoring.NewInMemoryScorer(
		scoring.WithSampleRate(cfg.SampleRate),
		scoring.WithClasses(classes),
		scoring.WithTargetClasses(targets...),
		scoring.WithFrameTiming(cfg.FrameDuration, cfg.HopDuration),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
