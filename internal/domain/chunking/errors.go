package chunking

import "errors"

// Sentinel errors for chunk planning and scheduling.
var (
	ErrInvalidChunkDuration = errors.New("chunk duration must be positive")
	ErrInvalidOverlap       = errors.New("overlap must be in [0, chunk duration)")
	ErrInvalidDuration      = errors.New("recording duration is invalid")
	ErrReadChunk            = errors.New("read chunk failed")
)
