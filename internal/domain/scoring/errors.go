package scoring

import "errors"

// Sentinel errors for frame scoring.
var (
	ErrSampleRateMismatch = errors.New("sample rate mismatch")
	ErrInvalidProbability = errors.New("class probability outside [0, 1]")
	ErrClassCount         = errors.New("frame has unexpected class count")
	ErrInvalidClassMap    = errors.New("invalid class map")
	ErrNoMatchingClasses  = errors.New("no class matches the target patterns")
)
