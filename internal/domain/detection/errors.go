package detection

import "errors"

// Sentinel errors for the detector.
var (
	ErrMissingDependency = errors.New("detector dependency is nil")
	ErrScoreChunk        = errors.New("score chunk")
	ErrExtractChunk      = errors.New("extract chunk")
)
