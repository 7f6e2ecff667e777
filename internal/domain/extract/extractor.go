// Package extract turns per-frame class probabilities into timestamped
// detection events.
package extract

import (
	"fmt"
	"math"
	"strconv"

	"github.com/okian/barkwatch/internal/domain/model"
)

// Default extractor configuration constants (YAMNet frame geometry).
const (
	DefaultFrameDuration = 0.96
	DefaultHopDuration   = 0.48
	DefaultThreshold     = 0.3
)

// LabelFunc maps a class index to its display name.
type LabelFunc func(classIndex int) string

// Option applies a configuration option to the Extractor.
type Option func(*Extractor)

// WithFrameDuration sets the length of one analysis frame in seconds.
func WithFrameDuration(seconds float64) Option {
	return func(e *Extractor) {
		e.frameDuration = seconds
	}
}

// WithHopDuration sets the distance between consecutive frame starts in seconds.
func WithHopDuration(seconds float64) Option {
	return func(e *Extractor) {
		e.hopDuration = seconds
	}
}

// WithThreshold sets the minimum target-class probability that emits an event.
func WithThreshold(threshold float64) Option {
	return func(e *Extractor) {
		e.threshold = threshold
	}
}

// WithTargets sets the target class indices. Enumeration order is the
// tie-break order: on equal scores the earlier target wins.
func WithTargets(indices ...int) Option {
	return func(e *Extractor) {
		e.targets = append([]int(nil), indices...)
	}
}

// WithLabels sets the class label lookup.
func WithLabels(labels LabelFunc) Option {
	return func(e *Extractor) {
		if labels != nil {
			e.labels = labels
		}
	}
}

// Extractor emits at most one event per frame.
type Extractor struct {
	frameDuration float64
	hopDuration   float64
	threshold     float64
	targets       []int
	labels        LabelFunc
}

// New builds an Extractor and validates its configuration.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{
		frameDuration: DefaultFrameDuration,
		hopDuration:   DefaultHopDuration,
		threshold:     DefaultThreshold,
		labels:        strconv.Itoa,
	}

	// Apply all options
	for _, opt := range opts {
		opt(e)
	}

	if !(e.frameDuration > 0) || !(e.hopDuration > 0) {
		return nil, fmt.Errorf("%w: frame %v, hop %v", ErrInvalidTiming, e.frameDuration, e.hopDuration)
	}
	if math.IsNaN(e.threshold) || e.threshold < 0 || e.threshold > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, e.threshold)
	}
	if len(e.targets) == 0 {
		return nil, ErrNoTargets
	}
	for _, idx := range e.targets {
		if idx < 0 {
			return nil, fmt.Errorf("%w: %d", ErrClassOutOfRange, idx)
		}
	}
	return e, nil
}

// ForThreshold returns a copy of the extractor using a different threshold.
func (e *Extractor) ForThreshold(threshold float64) (*Extractor, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	c := *e
	c.threshold = threshold
	return &c, nil
}

// Threshold returns the configured confidence threshold.
func (e *Extractor) Threshold() float64 { return e.threshold }

// FrameDuration returns the frame length in seconds.
func (e *Extractor) FrameDuration() float64 { return e.frameDuration }

// HopDuration returns the hop length in seconds.
func (e *Extractor) HopDuration() float64 { return e.hopDuration }

// Targets returns a copy of the target class indices.
func (e *Extractor) Targets() []int { return append([]int(nil), e.targets...) }

// Extract scans frames in order and returns chunk-local events. Frame i
// spans [i*hop, i*hop+frame).
func (e *Extractor) Extract(frames [][]float64) ([]model.DetectionEvent, error) {
	var events []model.DetectionEvent
	for i, scores := range frames {
		best := -1
		bestScore := math.Inf(-1)
		for _, idx := range e.targets {
			if idx >= len(scores) {
				return nil, fmt.Errorf("%w: class %d, frame %d has %d classes", ErrClassOutOfRange, idx, i, len(scores))
			}
			// strict comparison keeps the first target on ties
			if scores[idx] > bestScore {
				best = idx
				bestScore = scores[idx]
			}
		}
		if best < 0 || bestScore < e.threshold {
			continue
		}
		start := float64(i) * e.hopDuration
		events = append(events, model.DetectionEvent{
			StartTime:  start,
			EndTime:    start + e.frameDuration,
			Confidence: bestScore,
			ClassLabel: e.labels(best),
			ClassIndex: best,
		})
	}
	return events, nil
}
