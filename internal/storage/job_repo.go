package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobRepo provides methods for the scheduler's job rows. The unique key
// (job_type, window_start_ts, window_end_ts) is the idempotency anchor.
type JobRepo struct {
	db *sql.DB
}

// NewJobRepo creates a new JobRepo.
func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

// GetOrCreate returns the job for the idempotency key, creating a pending
// one if none exists. Concurrent callers converge on the same row.
func (r *JobRepo) GetOrCreate(ctx context.Context, jobType string, windowStartTS, windowEndTS int64) (*Job, error) {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, job_type, window_start_ts, window_end_ts, status, attempts, last_error, created_ts, updated_ts)
		 VALUES (?, ?, ?, ?, ?, 0, '', ?, ?)
		 ON CONFLICT (job_type, window_start_ts, window_end_ts) DO NOTHING`,
		uuid.New().String(), jobType, windowStartTS, windowEndTS, JobStatusPending, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return r.GetByKey(ctx, jobType, windowStartTS, windowEndTS)
}

// GetByKey gets a job by its idempotency key. Returns ErrNotFound if missing.
func (r *JobRepo) GetByKey(ctx context.Context, jobType string, windowStartTS, windowEndTS int64) (*Job, error) {
	return r.get(ctx,
		`SELECT id, job_type, window_start_ts, window_end_ts, status, attempts, last_error, created_ts, updated_ts
		 FROM jobs WHERE job_type = ? AND window_start_ts = ? AND window_end_ts = ?`,
		jobType, windowStartTS, windowEndTS)
}

// GetByID gets a job by id. Returns ErrNotFound if missing.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*Job, error) {
	return r.get(ctx,
		`SELECT id, job_type, window_start_ts, window_end_ts, status, attempts, last_error, created_ts, updated_ts
		 FROM jobs WHERE id = ?`, id)
}

// TransitionRunning moves a pending or failed job to running and bumps the
// attempt counter. It reports false if the job was not eligible, which is
// how at-most-one-runner-per-key is enforced at the database.
func (r *JobRepo) TransitionRunning(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempts = attempts + 1, updated_ts = ?
		 WHERE id = ? AND status IN (?, ?)`,
		JobStatusRunning, time.Now().Unix(), id, JobStatusPending, JobStatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition job to running: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkSuccess moves a running job to success and clears last_error.
func (r *JobRepo) MarkSuccess(ctx context.Context, id string) error {
	return r.finish(ctx, id, JobStatusSuccess, "")
}

// MarkFailed moves a running job to failed and records the error.
func (r *JobRepo) MarkFailed(ctx context.Context, id string, cause string) error {
	return r.finish(ctx, id, JobStatusFailed, cause)
}

// RevertToPending moves a running job back to pending without counting the
// aborted attempt as a failure; used on shutdown and crash recovery.
func (r *JobRepo) RevertToPending(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_ts = ? WHERE id = ? AND status = ?`,
		JobStatusPending, time.Now().Unix(), id, JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to revert job to pending: %w", err)
	}
	return nil
}

// Reset forces a terminal job back to pending with a fresh attempt budget.
// Used by manual reprocessing; a running job cannot be reset.
func (r *JobRepo) Reset(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempts = 0, last_error = '', updated_ts = ?
		 WHERE id = ? AND status IN (?, ?)`,
		JobStatusPending, time.Now().Unix(), id, JobStatusSuccess, JobStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to reset job: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %s cannot be reset while running", id)
	}
	return nil
}

// RecoverInterrupted reverts every running job to pending. Called once at
// startup so a crash mid-run is resumed, never mistaken for completion.
func (r *JobRepo) RecoverInterrupted(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_ts = ? WHERE status = ?`,
		JobStatusPending, time.Now().Unix(), JobStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListRunnable returns pending jobs plus failed jobs still under the attempt
// limit, oldest window first. Cleanup jobs are exempt from the limit: a
// failed integrity check must keep retrying on later cycles, it is never
// abandoned.
func (r *JobRepo) ListRunnable(ctx context.Context, maxAttempts int) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, job_type, window_start_ts, window_end_ts, status, attempts, last_error, created_ts, updated_ts
		 FROM jobs WHERE status = ? OR (status = ? AND (attempts < ? OR job_type = ?))
		 ORDER BY window_start_ts, job_type`,
		JobStatusPending, JobStatusFailed, maxAttempts, JobTypeCleanup,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runnable jobs: %w", err)
	}
	return scanJobs(rows)
}

// ListFilter returns jobs matching the optional type/status filters inside
// the window range, newest first.
func (r *JobRepo) ListFilter(ctx context.Context, jobType, status string, windowStartTS, windowEndTS int64) ([]Job, error) {
	query := `SELECT id, job_type, window_start_ts, window_end_ts, status, attempts, last_error, created_ts, updated_ts
		 FROM jobs WHERE window_start_ts >= ? AND window_start_ts < ?`
	args := []any{windowStartTS, windowEndTS}
	if jobType != "" {
		query += ` AND job_type = ?`
		args = append(args, jobType)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY window_start_ts DESC, job_type`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	return scanJobs(rows)
}

// CountNonTerminal returns how many jobs of the given type inside
// [windowStartTS, windowEndTS) have not reached a terminal state: pending,
// running, or failed with attempts left, since such a failure re-enters
// pending. The scheduler gates the daily job on this reaching zero for the
// day's hourly jobs.
func (r *JobRepo) CountNonTerminal(ctx context.Context, jobType string, windowStartTS, windowEndTS int64, maxAttempts int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs
		 WHERE job_type = ? AND window_start_ts >= ? AND window_start_ts < ?
		 AND (status IN (?, ?) OR (status = ? AND attempts < ?))`,
		jobType, windowStartTS, windowEndTS, JobStatusPending, JobStatusRunning, JobStatusFailed, maxAttempts,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count non-terminal jobs: %w", err)
	}
	return n, nil
}

func (r *JobRepo) finish(ctx context.Context, id, status, cause string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, last_error = ?, updated_ts = ? WHERE id = ? AND status = ?`,
		status, cause, time.Now().Unix(), id, JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job %s: %w", status, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %s is not running", id)
	}
	return nil
}

func (r *JobRepo) get(ctx context.Context, query string, args ...any) (*Job, error) {
	var j Job
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&j.ID, &j.JobType, &j.WindowStartTS, &j.WindowEndTS, &j.Status, &j.Attempts, &j.LastError, &j.CreatedTS, &j.UpdatedTS,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]Job, error) {
	defer func() {
		_ = rows.Close()
	}()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.JobType, &j.WindowStartTS, &j.WindowEndTS, &j.Status, &j.Attempts, &j.LastError, &j.CreatedTS, &j.UpdatedTS); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
