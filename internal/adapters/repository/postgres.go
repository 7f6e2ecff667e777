package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/okian/barkwatch/internal/domain/model"
	"github.com/okian/barkwatch/internal/domain/types"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS detection_jobs (
	id              TEXT PRIMARY KEY,
	source          TEXT NOT NULL,
	idempotency_key TEXT NOT NULL DEFAULT '',
	params          JSONB NOT NULL DEFAULT '{}',
	status          TEXT NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	report          JSONB,
	created_at      TIMESTAMPTZ NOT NULL,
	started_at      TIMESTAMPTZ,
	finished_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS detection_jobs_created_at_idx ON detection_jobs (created_at DESC);
`

const selectColumns = `id, source, idempotency_key, params, status, error, report, created_at, started_at, finished_at`

// PostgresStore persists jobs in PostgreSQL. Reports are stored as JSONB.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to url, verifies the connection and applies the schema.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := NewPostgresStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the jobs table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Create implements Store.Create.
func (s *PostgresStore) Create(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam
	if err := validateJob(&job); err != nil {
		return err
	}
	defer observe(time.Now())

	row, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO detection_jobs (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		row.id, row.source, row.idempotencyKey, row.params, row.status,
		row.errText, row.report, row.createdAt, row.startedAt, row.finishedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
	}
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// Update implements Store.Update.
func (s *PostgresStore) Update(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam
	if err := validateJob(&job); err != nil {
		return err
	}
	defer observe(time.Now())

	row, err := encodeJob(job)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE detection_jobs SET source=$2, idempotency_key=$3, params=$4, status=$5,
		       error=$6, report=$7, created_at=$8, started_at=$9, finished_at=$10
		WHERE id=$1`,
		row.id, row.source, row.idempotencyKey, row.params, row.status,
		row.errText, row.report, row.createdAt, row.startedAt, row.finishedAt,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, job.ID)
	}
	return nil
}

// Get implements Store.Get.
func (s *PostgresStore) Get(ctx context.Context, id string) (model.Job, error) {
	defer observe(time.Now())

	job, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM detection_jobs WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// List implements Store.List.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	defer observe(time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM detection_jobs ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// CountByStatus implements Store.CountByStatus.
func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM detection_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int, 4)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count jobs: %w", err)
		}
		counts[model.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type jobRow struct {
	id             string
	source         string
	idempotencyKey string
	params         []byte
	status         string
	errText        string
	report         []byte
	createdAt      time.Time
	startedAt      sql.NullTime
	finishedAt     sql.NullTime
}

func encodeJob(job model.Job) (jobRow, error) { //nolint:gocritic // hugeParam
	row := jobRow{
		id:             job.ID,
		source:         job.Source,
		idempotencyKey: job.IdempotencyKey,
		status:         string(job.Status),
		errText:        job.Error,
		createdAt:      job.CreatedAt,
		startedAt:      sql.NullTime{Time: job.StartedAt, Valid: !job.StartedAt.IsZero()},
		finishedAt:     sql.NullTime{Time: job.FinishedAt, Valid: !job.FinishedAt.IsZero()},
	}
	params, err := json.Marshal(types.JobParamsRecord{
		ConfidenceThreshold: job.Params.ConfidenceThreshold,
		MergeGap:            job.Params.MergeGap,
		NoMerge:             job.Params.NoMerge,
	})
	if err != nil {
		return jobRow{}, fmt.Errorf("encode params: %w", err)
	}
	row.params = params
	if job.Report != nil {
		report, err := json.Marshal(job.Report)
		if err != nil {
			return jobRow{}, fmt.Errorf("encode report: %w", err)
		}
		row.report = report
	}
	return row, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (model.Job, error) {
	var row jobRow
	if err := sc.Scan(&row.id, &row.source, &row.idempotencyKey, &row.params, &row.status,
		&row.errText, &row.report, &row.createdAt, &row.startedAt, &row.finishedAt); err != nil {
		return model.Job{}, err
	}
	return decodeJob(row)
}

func decodeJob(row jobRow) (model.Job, error) { //nolint:gocritic // hugeParam
	job := model.Job{
		ID:             row.id,
		Source:         row.source,
		IdempotencyKey: row.idempotencyKey,
		Status:         model.JobStatus(row.status),
		Error:          row.errText,
		CreatedAt:      row.createdAt,
	}
	if row.startedAt.Valid {
		job.StartedAt = row.startedAt.Time
	}
	if row.finishedAt.Valid {
		job.FinishedAt = row.finishedAt.Time
	}
	if len(row.params) > 0 {
		var p types.JobParamsRecord
		if err := json.Unmarshal(row.params, &p); err != nil {
			return model.Job{}, fmt.Errorf("decode params: %w", err)
		}
		job.Params = model.JobParams{
			ConfidenceThreshold: p.ConfidenceThreshold,
			MergeGap:            p.MergeGap,
			NoMerge:             p.NoMerge,
		}
	}
	if len(row.report) > 0 {
		var r model.Report
		if err := json.Unmarshal(row.report, &r); err != nil {
			return model.Job{}, fmt.Errorf("decode report: %w", err)
		}
		job.Report = &r
	}
	return job, nil
}
