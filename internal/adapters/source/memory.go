package source

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// MemorySource serves recordings held in memory, keyed by name.
type MemorySource struct {
	mu         sync.RWMutex
	sampleRate int
	recordings map[string][]float32
}

// NewMemorySource creates an empty in-memory source at sampleRate.
func NewMemorySource(sampleRate int) *MemorySource {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &MemorySource{sampleRate: sampleRate, recordings: make(map[string][]float32)}
}

// Put stores samples under name, replacing any previous recording.
func (m *MemorySource) Put(name string, samples []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordings[name] = append([]float32(nil), samples...)
}

// SampleRate implements chunking.Source.
func (m *MemorySource) SampleRate() int { return m.sampleRate }

// Duration implements chunking.Source.
func (m *MemorySource) Duration(ctx context.Context, name string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recordings[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return float64(len(rec)) / float64(m.sampleRate), nil
}

// Read implements chunking.Source. Spans past the end are truncated.
func (m *MemorySource) Read(ctx context.Context, name string, offset, duration float64) ([]float32, error) {
	if offset < 0 || !(duration > 0) {
		return nil, fmt.Errorf("%w: offset %v, duration %v", ErrInvalidSpan, offset, duration)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recordings[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	lo := min(int(math.Round(offset*float64(m.sampleRate))), len(rec))
	hi := min(lo+int(math.Round(duration*float64(m.sampleRate))), len(rec))
	return append([]float32(nil), rec[lo:hi]...), nil
}
