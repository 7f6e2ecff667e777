// Package detection drives the chunked detection pipeline over one
// recording: schedule, score, extract, rebase to recording time, merge and
// summarize.
package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/barkwatch/internal/domain/chunking"
	"github.com/okian/barkwatch/internal/domain/extract"
	"github.com/okian/barkwatch/internal/domain/merge"
	"github.com/okian/barkwatch/internal/domain/model"
	"github.com/okian/barkwatch/internal/domain/preprocess"
	"github.com/okian/barkwatch/internal/domain/scoring"
	"github.com/okian/barkwatch/internal/domain/summary"
	"github.com/okian/barkwatch/pkg/logger"
	"github.com/okian/barkwatch/pkg/metrics"
)

// Detector runs the pipeline for one recording at a time. It holds no
// per-recording state, so one instance may serve concurrent Detect calls as
// long as the scorer and source allow it.
type Detector struct {
	source     chunking.Source
	scorer     scoring.Scorer
	extractor  *extract.Extractor
	plan       chunking.Plan
	mergeGap   float64
	merge      bool
	preprocess preprocess.Func
	logger     logger.Logger
}

// New builds a Detector and rejects configuration errors before any chunk
// is scheduled.
func New(source chunking.Source, scorer scoring.Scorer, extractor *extract.Extractor, opts ...Option) (*Detector, error) {
	if source == nil || scorer == nil || extractor == nil {
		return nil, ErrMissingDependency
	}
	d := &Detector{
		source:    source,
		scorer:    scorer,
		extractor: extractor,
		plan:      chunking.DefaultPlan(),
		mergeGap:  merge.DefaultGap,
		merge:     true,
		logger:    logger.Nop(),
	}

	// Apply all options
	for _, opt := range opts {
		opt(d)
	}

	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Detector) validate() error {
	if _, err := chunking.NewPlan(d.plan.ChunkDuration(), d.plan.Overlap()); err != nil {
		return err
	}
	if err := merge.Validate(d.mergeGap); err != nil {
		return err
	}
	if err := scoring.CheckSampleRate(d.scorer.SampleRate(), d.source.SampleRate()); err != nil {
		return err
	}
	if classes := d.scorer.Classes(); classes > 0 {
		for _, idx := range d.extractor.Targets() {
			if idx >= classes {
				return fmt.Errorf("%w: target %d, scorer has %d classes", extract.ErrClassOutOfRange, idx, classes)
			}
		}
	}
	return nil
}

// Tune returns a copy of the detector with per-job overrides applied.
func (d *Detector) Tune(params model.JobParams) (*Detector, error) {
	c := *d
	if params.ConfidenceThreshold != nil {
		ex, err := d.extractor.ForThreshold(*params.ConfidenceThreshold)
		if err != nil {
			return nil, err
		}
		c.extractor = ex
	}
	if params.MergeGap != nil {
		if err := merge.Validate(*params.MergeGap); err != nil {
			return nil, err
		}
		c.mergeGap = *params.MergeGap
	}
	if params.NoMerge {
		c.merge = false
	}
	return &c, nil
}

// Plan returns the chunking plan in use.
func (d *Detector) Plan() chunking.Plan { return d.plan }

// Detect processes path chunk by chunk, strictly in order. Any chunk
// failure aborts the recording. ctx is checked between chunks.
func (d *Detector) Detect(ctx context.Context, path string) (model.Report, error) {
	start := time.Now()
	report, err := d.detect(ctx, path)
	report.ProcessingTime = time.Since(start)

	latency := float64(report.ProcessingTime.Milliseconds())
	if err != nil {
		metrics.RecordRecording(metrics.OutcomeFailed, report.Duration, 0, latency)
		metrics.RecordError("detector", errorType(ctx))
		d.logger.Error(ctx, "recording failed",
			logger.String("recording", path),
			logger.Int("chunks_done", report.Chunks),
			logger.Error(err),
		)
		return model.Report{}, err
	}

	metrics.RecordRecording(metrics.OutcomeCompleted, report.Duration, len(report.Episodes), latency)
	d.logger.Info(ctx, "recording processed",
		logger.String("recording", path),
		logger.Float64("duration_s", report.Duration),
		logger.Int("chunks", report.Chunks),
		logger.Int("raw_detections", report.RawDetections),
		logger.Int("episodes", len(report.Episodes)),
		logger.Bool("merged", report.Merged),
		logger.Duration("took", report.ProcessingTime),
	)
	return report, nil
}

func (d *Detector) detect(ctx context.Context, path string) (model.Report, error) {
	report := model.Report{Source: path, Merged: d.merge}

	sched, err := chunking.NewScheduler(ctx, d.source, path, d.plan)
	if err != nil {
		return report, err
	}
	report.Duration = sched.Duration()
	d.logger.Debug(ctx, "recording scheduled",
		logger.String("recording", path),
		logger.Float64("duration_s", sched.Duration()),
		logger.Int("chunks", sched.Total()),
	)

	var events []model.DetectionEvent
	for {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("detect %s: %w", path, err)
		}
		chunk, ok, err := sched.Next(ctx)
		if err != nil {
			return report, err
		}
		if !ok {
			break
		}
		chunkEvents, err := d.processChunk(ctx, chunk)
		if err != nil {
			return report, err
		}
		events = append(events, chunkEvents...)
		report.Chunks++
	}

	report.RawDetections = len(events)
	if d.merge {
		report.Episodes, err = merge.Merge(events, d.mergeGap)
		if err != nil {
			return report, err
		}
	} else {
		report.Episodes = merge.Sorted(events)
	}
	report.Summary = summary.Reduce(report.Episodes)
	return report, nil
}

// processChunk scores one chunk and returns its events in recording time.
func (d *Detector) processChunk(ctx context.Context, chunk model.Chunk) ([]model.DetectionEvent, error) {
	start := time.Now()

	samples := chunk.Samples
	if d.preprocess != nil {
		samples = d.preprocess(samples)
	}

	frames, err := d.scorer.Score(ctx, samples, chunk.SampleRate)
	if err == nil {
		err = scoring.ValidateFrames(frames, d.scorer.Classes())
	}
	if err != nil {
		return nil, fmt.Errorf("%w %d [%.3f, %.3f): %w", ErrScoreChunk, chunk.Index, chunk.Start, chunk.End, err)
	}

	local, err := d.extractor.Extract(frames)
	if err != nil {
		return nil, fmt.Errorf("%w %d: %w", ErrExtractChunk, chunk.Index, err)
	}
	global := make([]model.DetectionEvent, len(local))
	for i, ev := range local {
		global[i] = ev.Shifted(chunk.Start)
	}

	metrics.RecordChunkProcessed(len(frames), len(global), float64(time.Since(start).Milliseconds()))
	d.logger.Debug(ctx, "chunk processed",
		logger.Int("chunk", chunk.Index),
		logger.Float64("start_s", chunk.Start),
		logger.Float64("end_s", chunk.End),
		logger.Int("frames", len(frames)),
		logger.Int("detections", len(global)),
	)
	return global, nil
}

func errorType(ctx context.Context) string {
	if ctx.Err() != nil {
		return metrics.ErrorTypeTimeout
	}
	return metrics.ErrorTypeInternal
}
