package model

import "errors"

// Sentinel errors shared by the job service, its stores and the API.
var (
	ErrJobNotFound = errors.New("job not found")
	ErrInvalidJob  = errors.New("invalid job")
	ErrQueueFull   = errors.New("job queue full")
)
