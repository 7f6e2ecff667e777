package scoring

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Default in-memory scorer configuration constants.
const (
	DefaultSampleRate    = 16000
	defaultFrameDuration = 0.96
	defaultHopDuration   = 0.48
	defaultGain          = 4.0
)

// InMemoryOption applies a configuration option to the InMemoryScorer.
type InMemoryOption func(*InMemoryScorer)

// WithSampleRate sets the rate the scorer accepts.
func WithSampleRate(rate int) InMemoryOption {
	return func(s *InMemoryScorer) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithClasses sets the probability vector length.
func WithClasses(n int) InMemoryOption {
	return func(s *InMemoryScorer) {
		if n > 0 {
			s.classes = n
		}
	}
}

// WithTargetClasses sets the classes that light up with signal energy.
func WithTargetClasses(indices ...int) InMemoryOption {
	return func(s *InMemoryScorer) {
		s.targets = append([]int(nil), indices...)
	}
}

// WithFrameTiming sets frame and hop lengths in seconds.
func WithFrameTiming(frame, hop float64) InMemoryOption {
	return func(s *InMemoryScorer) {
		if frame > 0 && hop > 0 {
			s.frameDuration = frame
			s.hopDuration = hop
		}
	}
}

// WithGain sets the RMS-to-probability multiplier.
func WithGain(gain float64) InMemoryOption {
	return func(s *InMemoryScorer) {
		if gain > 0 {
			s.gain = gain
		}
	}
}

// WithLatency simulates a fixed model inference delay per call.
func WithLatency(d time.Duration) InMemoryOption {
	return func(s *InMemoryScorer) {
		if d >= 0 {
			s.latency = d
		}
	}
}

// InMemoryScorer is a deterministic stand-in for a model: each frame's RMS
// energy, scaled by gain and clamped to 1, becomes the probability of every
// target class. Other classes score 0. It holds no mutable state.
type InMemoryScorer struct {
	sampleRate    int
	classes       int
	targets       []int
	frameDuration float64
	hopDuration   float64
	gain          float64
	latency       time.Duration
}

// NewInMemoryScorer creates a new in-memory scorer with configuration options.
func NewInMemoryScorer(opts ...InMemoryOption) (*InMemoryScorer, error) {
	s := &InMemoryScorer{
		sampleRate:    DefaultSampleRate,
		classes:       YAMNetClasses,
		frameDuration: defaultFrameDuration,
		hopDuration:   defaultHopDuration,
		gain:          defaultGain,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	for _, idx := range s.targets {
		if idx < 0 || idx >= s.classes {
			return nil, fmt.Errorf("%w: target %d outside [0, %d)", ErrClassCount, idx, s.classes)
		}
	}
	return s, nil
}

// SampleRate implements Scorer.
func (s *InMemoryScorer) SampleRate() int { return s.sampleRate }

// Classes implements Scorer.
func (s *InMemoryScorer) Classes() int { return s.classes }

// Score implements Scorer.
func (s *InMemoryScorer) Score(ctx context.Context, samples []float32, sampleRate int) ([][]float64, error) {
	if err := CheckSampleRate(s.sampleRate, sampleRate); err != nil {
		return nil, err
	}
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		case <-time.After(s.latency):
		}
	} else if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	frameLen := int(math.Round(s.frameDuration * float64(sampleRate)))
	hopLen := int(math.Round(s.hopDuration * float64(sampleRate)))
	n := FrameCount(len(samples), frameLen, hopLen)

	frames := make([][]float64, n)
	for i := range frames {
		lo := i * hopLen
		hi := min(lo+frameLen, len(samples))
		p := math.Min(1, rms(samples[lo:hi])*s.gain)

		vec := make([]float64, s.classes)
		for _, idx := range s.targets {
			vec[idx] = p
		}
		frames[i] = vec
	}
	return frames, nil
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
