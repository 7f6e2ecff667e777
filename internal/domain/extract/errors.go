package extract

import "errors"

// Sentinel errors for the event extractor.
var (
	ErrInvalidThreshold = errors.New("confidence threshold must be in [0, 1]")
	ErrInvalidTiming    = errors.New("frame and hop durations must be positive")
	ErrNoTargets        = errors.New("at least one target class is required")
	ErrClassOutOfRange  = errors.New("target class index out of range")
)
