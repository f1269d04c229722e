// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the outbox Store using pgx.
//
// Jobs live in system.emailjob. Claiming uses FOR UPDATE SKIP LOCKED so a
// second dispatcher instance (e.g. during a rolling deploy) never double-sends.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of the Store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

/*
Create persists a new outbox job.

Parameters:
  - context: context.Context
  - job: *Job

Returns:
  - error: Insert failures
*/
func (store *PostgresStore) Create(context context.Context, job *Job) error {
	const query = `
		INSERT INTO system.emailjob (
			id, templatename, subject, toemail, toname, templatedata,
			status, retrycount, maxretryattempts, lasterror, scheduledfor, triggeredby, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	_, err := store.pool.Exec(context, query,
		job.ID,
		job.TemplateName,
		job.Subject,
		job.ToEmail,
		job.ToName,
		job.TemplateData,
		job.Status,
		job.RetryCount,
		job.MaxRetryAttempts,
		job.LastError,
		job.ScheduledFor,
		job.TriggeredBy,
		job.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_emailjob_create_failed: %w", err)
	}

	return nil
}

/*
ClaimBatch atomically claims up to limit due jobs for processing.

Description: A single UPDATE over a locked sub-select; claimed rows flip to
Processing and are returned fully hydrated. SKIP LOCKED makes concurrent
claimants disjoint.

Parameters:
  - context: context.Context
  - now: time.Time (due cutoff)
  - limit: int (batch size)

Returns:
  - []*Job: The claimed jobs, oldest first
  - error: Query failures
*/
func (store *PostgresStore) ClaimBatch(context context.Context, now time.Time, limit int) ([]*Job, error) {
	const query = `
		UPDATE system.emailjob
		SET status = 'Processing'
		WHERE id IN (
			SELECT id FROM system.emailjob
			WHERE status IN ('Pending', 'Retrying') AND scheduledfor <= $1
			ORDER BY scheduledfor
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, templatename, subject, toemail, toname, templatedata,
			status, retrycount, maxretryattempts, lasterror, scheduledfor, sentat, triggeredby, createdat`

	rows, err := store.pool.Query(context, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres_emailjob_claim_failed: %w", err)
	}
	defer rows.Close()

	jobs := make([]*Job, 0, limit)
	for rows.Next() {
		job := &Job{}
		if err := rows.Scan(
			&job.ID,
			&job.TemplateName,
			&job.Subject,
			&job.ToEmail,
			&job.ToName,
			&job.TemplateData,
			&job.Status,
			&job.RetryCount,
			&job.MaxRetryAttempts,
			&job.LastError,
			&job.ScheduledFor,
			&job.SentAt,
			&job.TriggeredBy,
			&job.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres_emailjob_scan_failed: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_emailjob_rows_failed: %w", err)
	}

	return jobs, nil
}

/*
MarkSent records a successful delivery.

Parameters:
  - context: context.Context
  - jobID: string
  - sentAt: time.Time

Returns:
  - error: Update failures
*/
func (store *PostgresStore) MarkSent(context context.Context, jobID string, sentAt time.Time) error {
	const query = `
		UPDATE system.emailjob
		SET status = 'Sent', sentat = $2, lasterror = ''
		WHERE id = $1`

	_, err := store.pool.Exec(context, query, jobID, sentAt)
	if err != nil {
		return fmt.Errorf("postgres_emailjob_mark_sent_failed: %w", err)
	}

	return nil
}

/*
MarkRetrying schedules a redelivery attempt with backoff.

Parameters:
  - context: context.Context
  - jobID: string
  - retryCount: int (attempts consumed so far)
  - lastError: string
  - scheduledFor: time.Time (next due time)

Returns:
  - error: Update failures
*/
func (store *PostgresStore) MarkRetrying(context context.Context, jobID string, retryCount int, lastError string, scheduledFor time.Time) error {
	const query = `
		UPDATE system.emailjob
		SET status = 'Retrying', retrycount = $2, lasterror = $3, scheduledfor = $4
		WHERE id = $1`

	_, err := store.pool.Exec(context, query, jobID, retryCount, lastError, scheduledFor)
	if err != nil {
		return fmt.Errorf("postgres_emailjob_mark_retrying_failed: %w", err)
	}

	return nil
}

/*
MarkFailed records a terminal delivery failure.

Parameters:
  - context: context.Context
  - jobID: string
  - retryCount: int
  - lastError: string

Returns:
  - error: Update failures
*/
func (store *PostgresStore) MarkFailed(context context.Context, jobID string, retryCount int, lastError string) error {
	const query = `
		UPDATE system.emailjob
		SET status = 'Failed', retrycount = $2, lasterror = $3
		WHERE id = $1`

	_, err := store.pool.Exec(context, query, jobID, retryCount, lastError)
	if err != nil {
		return fmt.Errorf("postgres_emailjob_mark_failed_failed: %w", err)
	}

	return nil
}

/*
ResetProcessing returns abandoned Processing jobs to Pending.

Description: Crash recovery. Run once at dispatcher start, before the first
claim, while no job is legitimately in flight.

Parameters:
  - context: context.Context

Returns:
  - int64: Number of reclaimed jobs
  - error: Update failures
*/
func (store *PostgresStore) ResetProcessing(context context.Context) (int64, error) {
	const query = "UPDATE system.emailjob SET status = 'Pending' WHERE status = 'Processing'"

	tag, err := store.pool.Exec(context, query)
	if err != nil {
		return 0, fmt.Errorf("postgres_emailjob_reset_processing_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}
