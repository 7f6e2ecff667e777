package model

import "time"

// JobStatus is the lifecycle state of a detection job.
type JobStatus string

// Job lifecycle states.
const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status will not change anymore.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobParams overrides pipeline settings for a single job. Nil fields fall
// back to the service configuration.
type JobParams struct {
	ConfidenceThreshold *float64
	MergeGap            *float64
	NoMerge             bool
}

// Job is a request to run detection over one recording.
type Job struct {
	ID             string
	Source         string // path understood by the configured source reader
	IdempotencyKey string
	Params         JobParams
	Status         JobStatus
	Error          string
	Report         *Report
	CreatedAt      time.Time
	StartedAt      time.Time
	FinishedAt     time.Time
}
