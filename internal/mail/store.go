// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mail

import (
	"context"
	"time"
)

// Store defines the persistence contract for the email outbox.
type Store interface {
	// Create persists a new job in Pending state.
	Create(context context.Context, job *Job) error

	// ClaimBatch atomically moves up to limit due Pending/Retrying jobs to
	// Processing and returns them. Concurrent dispatchers never claim the
	// same job twice.
	ClaimBatch(context context.Context, now time.Time, limit int) ([]*Job, error)

	// MarkSent records successful delivery.
	MarkSent(context context.Context, jobID string, sentAt time.Time) error

	// MarkRetrying schedules a redelivery attempt.
	MarkRetrying(context context.Context, jobID string, retryCount int, lastError string, scheduledFor time.Time) error

	// MarkFailed records terminal failure.
	MarkFailed(context context.Context, jobID string, retryCount int, lastError string) error

	// ResetProcessing returns jobs abandoned mid-flight (e.g. by a crash)
	// to Pending so they are picked up again. Called once at dispatcher start.
	ResetProcessing(context context.Context) (int64, error)
}
