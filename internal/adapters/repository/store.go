// Package repository defines the job store interface and its in-memory and
// PostgreSQL implementations.
package repository

import (
	"context"

	"github.com/okian/barkwatch/internal/domain/model"
)

// Store provides read/write access to detection jobs and their reports.
type Store interface {
	// Create inserts a new job. Returns ErrDuplicateID if the id is taken.
	Create(ctx context.Context, job model.Job) error

	// Update replaces the stored state of an existing job.
	// Returns ErrNotFound if the job is unknown.
	Update(ctx context.Context, job model.Job) error

	// Get returns a job by id. Returns ErrNotFound if the job is unknown.
	Get(ctx context.Context, id string) (model.Job, error)

	// List returns up to limit jobs, newest first.
	List(ctx context.Context, limit int) ([]model.Job, error)

	// CountByStatus returns the number of jobs per status.
	CountByStatus(ctx context.Context) (map[model.JobStatus]int, error)

	// Close releases background resources.
	Close() error
}

func validateJob(job *model.Job) error {
	if job.ID == "" {
		return ErrInvalidJob
	}
	return nil
}
