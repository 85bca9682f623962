package postgres

import (
	"context"
	"fmt"
	"time"

	"railsync/internal/interfaces/scheduler"
)

// claimLease is how long a claimed job stays invisible to other
// claimers. Must exceed the runner's task timeout.
const claimLease = 5 * time.Minute

// JobRepository implements the scheduler.JobStore interface for
// PostgreSQL: the durable ("jobbing") task queue.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new PostgreSQL job repository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Enqueue persists a job to run at runAt. attempts is non-zero when an
// in-process retry is diverted here, so the attempt ceiling survives
// the handoff.
func (r *JobRepository) Enqueue(ctx context.Context, name string, payload []byte, attempts int, runAt time.Time) (int64, error) {
	query := `
		INSERT INTO poll_jobs (name, payload, attempts, next_run_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	if err := r.db.QueryRowContext(ctx, query, name, payload, attempts, runAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return id, nil
}

// ClaimDue claims up to limit due jobs. SKIP LOCKED keeps concurrent
// claimers (other replicas) from grabbing the same rows; the lease
// pushes next_run_at forward so a crashed worker's jobs resurface.
func (r *JobRepository) ClaimDue(ctx context.Context, limit int) ([]*scheduler.Job, error) {
	query := `
		UPDATE poll_jobs
		SET next_run_at = now() + $1::interval
		WHERE id IN (
			SELECT id FROM poll_jobs
			WHERE next_run_at <= now()
			ORDER BY next_run_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, name, payload, attempts, next_run_at
	`

	rows, err := r.db.QueryContext(ctx, query, claimLease.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*scheduler.Job
	for rows.Next() {
		var job scheduler.Job
		if err := rows.Scan(&job.ID, &job.Name, &job.Payload, &job.Attempts, &job.NextRunAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// Complete removes a finished job.
func (r *JobRepository) Complete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM poll_jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to complete job %d: %w", id, err)
	}
	return nil
}

// Reschedule records a retry with the bumped attempt count.
func (r *JobRepository) Reschedule(ctx context.Context, id int64, attempts int, nextRunAt time.Time) error {
	query := `UPDATE poll_jobs SET attempts = $1, next_run_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, attempts, nextRunAt, id); err != nil {
		return fmt.Errorf("failed to reschedule job %d: %w", id, err)
	}
	return nil
}
