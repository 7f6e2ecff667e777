// Package preprocess applies optional signal conditioning to chunk samples
// before scoring.
package preprocess

import "math"

// GateAttenuation scales samples that fall below the noise gate threshold.
const GateAttenuation = 0.1

// Func transforms a sample buffer into a new one.
type Func func(samples []float32) []float32

// Normalize scales samples so the absolute peak is 1. Silent buffers are
// returned as an unchanged copy.
func Normalize(samples []float32) []float32 {
	out := make([]float32, len(samples))
	var peak float64
	for _, s := range samples {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	if peak == 0 {
		copy(out, samples)
		return out
	}
	scale := float32(1 / peak)
	for i, s := range samples {
		out[i] = s * scale
	}
	return out
}

// NoiseGate attenuates every sample with magnitude below threshold.
func NoiseGate(threshold float64) Func {
	return func(samples []float32) []float32 {
		out := make([]float32, len(samples))
		for i, s := range samples {
			if math.Abs(float64(s)) < threshold {
				out[i] = s * GateAttenuation
				continue
			}
			out[i] = s
		}
		return out
	}
}

// Chain applies fns in order. With no functions it returns nil.
func Chain(fns ...Func) Func {
	if len(fns) == 0 {
		return nil
	}
	return func(samples []float32) []float32 {
		for _, fn := range fns {
			samples = fn(samples)
		}
		return samples
	}
}
