package loadtest

import "time"

// Config holds configuration for a load test run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Sources        []string      // Recordings the service can read; cycled across jobs
	NumJobs        int           // Number of submissions
	DuplicateEvery int           // Every nth submission reuses the previous key; 0 disables
	Workers        int           // Number of concurrent workers
	Timeout        time.Duration // HTTP request timeout
	PollInterval   time.Duration // Delay between status checks of one job
	WaitTimeout    time.Duration // Upper bound for all jobs to finish
	OutputFile     string        // Output file for job results
	Verbose        bool          // Enable verbose logging
}

// JobRequest is the body of POST /jobs.
type JobRequest struct {
	Source              string   `json:"source"`
	IdempotencyKey      string   `json:"idempotency_key,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
}

// JobResult is the subset of a job read back from the service.
type JobResult struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Report *struct {
		TotalDetections int `json:"total_detections"`
	} `json:"report,omitempty"`
}

// SubmitResponse is the body returned by POST /jobs.
type SubmitResponse struct {
	Job       JobResult `json:"job"`
	Duplicate bool      `json:"duplicate"`
}

// Stats holds test statistics.
type Stats struct {
	JobsGenerated   int
	JobsSubmitted   int
	JobsAccepted    int
	JobsDuplicate   int
	JobsRejected    int // 429 backpressure
	JobsFailed      int // transport or unexpected status
	JobsCompleted   int
	JobsErrored     int // finished with status failed
	JobsUnfinished  int
	TotalDetections int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
