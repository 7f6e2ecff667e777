package source

import "errors"

// Sentinel errors for source readers.
var (
	ErrProbe       = errors.New("probe recording")
	ErrDecode      = errors.New("decode recording")
	ErrNotFound    = errors.New("recording not found")
	ErrInvalidSpan = errors.New("invalid read span")

	ErrInvalidSource = errors.New("invalid recording source")
)
