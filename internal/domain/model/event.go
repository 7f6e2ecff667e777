// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"math"
	"time"
)

// DetectionEvent is one above-threshold classification result for a single
// analysis frame. The extractor emits it in chunk-local time; the detector
// rewrites it to recording time before it is accumulated. Values are never
// mutated after emission, only derived via Shifted and Absorb.
type DetectionEvent struct {
	StartTime  float64 // seconds
	EndTime    float64 // seconds, always > StartTime
	Confidence float64 // probability in [0,1]
	ClassLabel string  // display name of the winning class
	ClassIndex int     // index of the winning class in the scorer output
}

// Episode is a merged, non-overlapping detection event.
type Episode = DetectionEvent

// Duration returns EndTime - StartTime.
func (e DetectionEvent) Duration() float64 {
	return e.EndTime - e.StartTime
}

// Shifted returns a copy of e moved by offset seconds.
func (e DetectionEvent) Shifted(offset float64) DetectionEvent {
	e.StartTime += offset
	e.EndTime += offset
	return e
}

// Absorb returns a copy of e extended to cover other. The receiver keeps its
// own label and class index.
func (e DetectionEvent) Absorb(other DetectionEvent) DetectionEvent {
	e.EndTime = math.Max(e.EndTime, other.EndTime)
	e.Confidence = math.Max(e.Confidence, other.Confidence)
	return e
}

// Chunk is a bounded slice of a recording handed to the scorer once and then
// discarded.
type Chunk struct {
	Index      int
	Samples    []float32
	SampleRate int
	Start      float64 // recording time, seconds
	End        float64 // recording time, seconds
}

// Duration returns the chunk length in seconds.
func (c Chunk) Duration() float64 {
	return c.End - c.Start
}

// Summary aggregates statistics over a list of episodes.
type Summary struct {
	TotalEvents   int
	TotalDuration float64
	AvgDuration   float64
	AvgConfidence float64
	MaxConfidence float64
	MinConfidence float64
}

// Report is the complete outcome of running the pipeline over one recording.
type Report struct {
	Source         string
	Duration       float64 // recording duration in seconds
	Chunks         int
	RawDetections  int
	Merged         bool
	Episodes       []Episode
	Summary        Summary
	ProcessingTime time.Duration
}

// FormatTimestamp renders seconds as HH:MM:SS.mmm.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := int(seconds / 3600)
	minutes := int(math.Mod(seconds, 3600) / 60)
	secs := math.Mod(seconds, 60)
	return fmt.Sprintf("%02d:%02d:%06.3f", hours, minutes, secs)
}
