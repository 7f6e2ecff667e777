package service

import "errors"

// Sentinel errors for the job service.
var (
	ErrNotStarted = errors.New("service not started")
)
