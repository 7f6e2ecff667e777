// Package chunking partitions a recording into overlapping fixed-duration
// chunks and reads them lazily from a source.
package chunking

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/barkwatch/internal/domain/model"
)

// Default chunking configuration constants.
const (
	DefaultChunkDuration = 60.0
	DefaultOverlap       = 2.0
)

// Source provides random access to a recording by time range.
type Source interface {
	// Duration returns the total recording length in seconds.
	Duration(ctx context.Context, path string) (float64, error)
	// Read returns mono samples at SampleRate for [offset, offset+duration).
	Read(ctx context.Context, path string, offset, duration float64) ([]float32, error)
	// SampleRate is the rate of the samples returned by Read.
	SampleRate() int
}

// Window is one planned chunk interval in recording time.
type Window struct {
	Index int
	Start float64
	End   float64
}

// Plan holds validated chunking parameters.
type Plan struct {
	chunkDuration float64
	overlap       float64
}

// NewPlan validates chunkDuration > 0 and 0 <= overlap < chunkDuration.
func NewPlan(chunkDuration, overlap float64) (Plan, error) {
	if math.IsNaN(chunkDuration) || chunkDuration <= 0 || math.IsInf(chunkDuration, 0) {
		return Plan{}, fmt.Errorf("%w: %v", ErrInvalidChunkDuration, chunkDuration)
	}
	if math.IsNaN(overlap) || overlap < 0 || overlap >= chunkDuration {
		return Plan{}, fmt.Errorf("%w: overlap %v, chunk %v", ErrInvalidOverlap, overlap, chunkDuration)
	}
	return Plan{chunkDuration: chunkDuration, overlap: overlap}, nil
}

// DefaultPlan returns the 60s/2s plan.
func DefaultPlan() Plan {
	return Plan{chunkDuration: DefaultChunkDuration, overlap: DefaultOverlap}
}

// ChunkDuration returns the configured chunk length in seconds.
func (p Plan) ChunkDuration() float64 { return p.chunkDuration }

// Overlap returns the configured overlap in seconds.
func (p Plan) Overlap() float64 { return p.overlap }

// Step is the distance between consecutive chunk starts.
func (p Plan) Step() float64 { return p.chunkDuration - p.overlap }

// Count returns the number of chunks needed to cover duration seconds.
func (p Plan) Count(duration float64) int {
	if !(duration > 0) || math.IsInf(duration, 0) {
		return 0
	}
	step := p.Step()
	n := int(math.Ceil(duration / step))
	// Guard against float rounding in either direction: the last start must be
	// < duration and the next one >= duration.
	for n > 1 && p.start(n-1) >= duration {
		n--
	}
	for p.start(n) < duration {
		n++
	}
	return n
}

// Window returns the i-th planned window for a recording of duration seconds.
func (p Plan) Window(i int, duration float64) Window {
	start := p.start(i)
	return Window{Index: i, Start: start, End: math.Min(start+p.chunkDuration, duration)}
}

// Windows lists every window covering [0, duration).
func (p Plan) Windows(duration float64) []Window {
	n := p.Count(duration)
	out := make([]Window, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, p.Window(i, duration))
	}
	return out
}

func (p Plan) start(i int) float64 {
	return float64(i) * p.Step()
}

// Scheduler is a forward-only cursor over the chunks of one recording.
// It is not reusable after exhaustion; build a new one from the source.
type Scheduler struct {
	source   Source
	path     string
	plan     Plan
	duration float64
	total    int
	next     int
}

// NewScheduler asks the source for the recording duration and prepares the
// cursor. No audio is read until Next is called.
func NewScheduler(ctx context.Context, source Source, path string, plan Plan) (*Scheduler, error) {
	if plan.chunkDuration <= 0 {
		return nil, ErrInvalidChunkDuration
	}
	duration, err := source.Duration(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	if math.IsNaN(duration) || duration < 0 || math.IsInf(duration, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDuration, duration)
	}
	return &Scheduler{
		source:   source,
		path:     path,
		plan:     plan,
		duration: duration,
		total:    plan.Count(duration),
	}, nil
}

// Duration returns the recording duration in seconds.
func (s *Scheduler) Duration() float64 { return s.duration }

// Total returns the number of chunks the cursor will produce.
func (s *Scheduler) Total() int { return s.total }

// Next reads and returns the next chunk. It returns false once the whole
// recording has been produced, and keeps returning false afterwards.
func (s *Scheduler) Next(ctx context.Context) (model.Chunk, bool, error) {
	if s.next >= s.total {
		return model.Chunk{}, false, nil
	}
	w := s.plan.Window(s.next, s.duration)
	samples, err := s.source.Read(ctx, s.path, w.Start, w.End-w.Start)
	if err != nil {
		return model.Chunk{}, false, fmt.Errorf("%w: chunk %d [%.3f, %.3f): %w", ErrReadChunk, w.Index, w.Start, w.End, err)
	}
	s.next++
	return model.Chunk{
		Index:      w.Index,
		Samples:    samples,
		SampleRate: s.source.SampleRate(),
		Start:      w.Start,
		End:        w.End,
	}, true, nil
}
