package watcher

import "errors"

// Error constants.
var (
	ErrEmptyDir       = errors.New("watch directory is empty")
	ErrNoSubmitter    = errors.New("submitter is nil")
	ErrAlreadyStarted = errors.New("watcher already started")
)
