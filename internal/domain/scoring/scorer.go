// Package scoring defines the frame scorer contract and the class map that
// names its output columns.
package scoring

import (
	"context"
	"fmt"
	"math"
)

// Scorer turns a mono sample buffer into ordered per-frame class
// probability vectors. A single instance is built at startup and shared by
// reference for the whole run; implementations must be safe for concurrent use.
type Scorer interface {
	// SampleRate is the only rate Score accepts.
	SampleRate() int
	// Classes is the length of every probability vector.
	Classes() int
	// Score returns one vector per analysis frame, honoring ctx for cancellation.
	Score(ctx context.Context, samples []float32, sampleRate int) ([][]float64, error)
}

// CheckSampleRate returns ErrSampleRateMismatch when got differs from want.
func CheckSampleRate(want, got int) error {
	if want != got {
		return fmt.Errorf("%w: scorer expects %d Hz, got %d Hz", ErrSampleRateMismatch, want, got)
	}
	return nil
}

// ValidateFrames checks that every vector has classes entries, each a
// probability in [0, 1]. classes <= 0 skips the length check.
func ValidateFrames(frames [][]float64, classes int) error {
	for i, frame := range frames {
		if classes > 0 && len(frame) != classes {
			return fmt.Errorf("%w: frame %d has %d, want %d", ErrClassCount, i, len(frame), classes)
		}
		for c, p := range frame {
			if math.IsNaN(p) || p < 0 || p > 1 {
				return fmt.Errorf("%w: frame %d class %d = %v", ErrInvalidProbability, i, c, p)
			}
		}
	}
	return nil
}

// FrameCount returns how many analysis frames a buffer of n samples yields
// with the given frame and hop lengths in samples. A non-empty buffer shorter
// than one frame still yields a single padded frame.
func FrameCount(n, frameLen, hopLen int) int {
	switch {
	case n <= 0 || frameLen <= 0 || hopLen <= 0:
		return 0
	case n <= frameLen:
		return 1
	default:
		return 1 + (n-frameLen)/hopLen
	}
}
