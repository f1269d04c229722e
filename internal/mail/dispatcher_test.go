// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mail

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory outbox Store.
type fakeStore struct {
	jobs map[string]*Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*Job)}
}

func (store *fakeStore) Create(_ context.Context, job *Job) error {
	copied := *job
	store.jobs[job.ID] = &copied
	return nil
}

func (store *fakeStore) ClaimBatch(_ context.Context, now time.Time, limit int) ([]*Job, error) {
	claimed := make([]*Job, 0, limit)
	for _, job := range store.jobs {
		if len(claimed) >= limit {
			break
		}
		if (job.Status == StatusPending || job.Status == StatusRetrying) && !job.ScheduledFor.After(now) {
			job.Status = StatusProcessing
			copied := *job
			claimed = append(claimed, &copied)
		}
	}
	return claimed, nil
}

func (store *fakeStore) MarkSent(_ context.Context, jobID string, sentAt time.Time) error {
	job := store.jobs[jobID]
	job.Status = StatusSent
	job.SentAt = &sentAt
	job.LastError = ""
	return nil
}

func (store *fakeStore) MarkRetrying(_ context.Context, jobID string, retryCount int, lastError string, scheduledFor time.Time) error {
	job := store.jobs[jobID]
	job.Status = StatusRetrying
	job.RetryCount = retryCount
	job.LastError = lastError
	job.ScheduledFor = scheduledFor
	return nil
}

func (store *fakeStore) MarkFailed(_ context.Context, jobID string, retryCount int, lastError string) error {
	job := store.jobs[jobID]
	job.Status = StatusFailed
	job.RetryCount = retryCount
	job.LastError = lastError
	return nil
}

func (store *fakeStore) ResetProcessing(_ context.Context) (int64, error) {
	var count int64
	for _, job := range store.jobs {
		if job.Status == StatusProcessing {
			job.Status = StatusPending
			count++
		}
	}
	return count, nil
}

// fakeSender records sends and fails on demand.
type fakeSender struct {
	sent     []Message
	failWith error
}

func (sender *fakeSender) Send(message Message) error {
	if sender.failWith != nil {
		return sender.failWith
	}
	sender.sent = append(sender.sent, message)
	return nil
}

type noopAudit struct{}

func (noopAudit) MailEvent(context.Context, string, string, string) {}
func (noopAudit) System(context.Context, string, string, string)   {}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeStore, *fakeSender, *Queue) {
	t.Helper()
	store := newFakeStore()
	sender := &fakeSender{}
	templates, err := NewTemplateRegistry()
	require.NoError(t, err)

	dispatcher := NewDispatcher(store, sender, templates, noopAudit{}, slog.Default(), "Yomira ID", "no-reply@yomira.app")
	return dispatcher, store, sender, NewQueue(store)
}

func TestDispatcher_DeliversPendingJob(t *testing.T) {
	dispatcher, store, sender, queue := newTestDispatcher(t)
	ctx := context.Background()

	// 1. Enqueue a verification email
	job, err := queue.Enqueue(ctx, EnqueueInput{
		TemplateName: TemplateVerificationEmail,
		Subject:      "Confirm your email",
		ToEmail:      "member@example.com",
		ToName:       "Member",
		TemplateData: map[string]string{
			"Name":             "Member",
			"VerificationLink": "https://id.yomira.app/verify?token=abc",
			"Code":             "482913",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)

	// 2. One poll cycle delivers it
	dispatcher.processBatch(ctx)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "member@example.com", sender.sent[0].ToEmail)
	assert.Contains(t, sender.sent[0].TextBody, "482913")
	assert.Contains(t, sender.sent[0].TextBody, "https://id.yomira.app/verify?token=abc")

	// 3. The job is terminally Sent
	stored := store.jobs[job.ID]
	assert.Equal(t, StatusSent, stored.Status)
	require.NotNil(t, stored.SentAt)
}

func TestDispatcher_TransientFailureSchedulesBackoff(t *testing.T) {
	dispatcher, store, sender, queue := newTestDispatcher(t)
	ctx := context.Background()
	sender.failWith = errors.New("relay unreachable")

	job, err := queue.Enqueue(ctx, EnqueueInput{
		TemplateName: TemplateLockoutNotice,
		Subject:      "Account locked",
		ToEmail:      "member@example.com",
		TemplateData: map[string]string{"Name": "Member", "LockoutMinutes": "10"},
	})
	require.NoError(t, err)

	before := time.Now()
	dispatcher.processBatch(ctx)

	stored := store.jobs[job.ID]
	assert.Equal(t, StatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Contains(t, stored.LastError, "relay unreachable")

	// First retry is due one backoff step out
	assert.WithinDuration(t, before.Add(RetryBackoff[0]), stored.ScheduledFor, 2*time.Second)

	// Not due yet: the next cycle must skip it
	dispatcher.processBatch(ctx)
	assert.Equal(t, 1, store.jobs[job.ID].RetryCount)
}

func TestDispatcher_ExhaustedRetriesFailTerminally(t *testing.T) {
	dispatcher, store, sender, queue := newTestDispatcher(t)
	ctx := context.Background()
	sender.failWith = errors.New("relay unreachable")

	job, err := queue.Enqueue(ctx, EnqueueInput{
		TemplateName: TemplateWelcome,
		Subject:      "Welcome",
		ToEmail:      "member@example.com",
		TemplateData: map[string]string{"Name": "Member", "AppLink": "https://yomira.app"},
	})
	require.NoError(t, err)

	// Burn through the whole retry budget
	for i := 0; i < DefaultMaxRetryAttempts; i++ {
		store.jobs[job.ID].ScheduledFor = time.Now().Add(-time.Second)
		dispatcher.processBatch(ctx)
	}

	stored := store.jobs[job.ID]
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, DefaultMaxRetryAttempts, stored.RetryCount)
}

func TestDispatcher_MissingTemplateIsPermanent(t *testing.T) {
	dispatcher, store, sender, queue := newTestDispatcher(t)
	ctx := context.Background()

	job, err := queue.Enqueue(ctx, EnqueueInput{
		TemplateName: "no_such_template",
		Subject:      "???",
		ToEmail:      "member@example.com",
	})
	require.NoError(t, err)

	dispatcher.processBatch(ctx)

	// Failed on the first pass: no retry can fix a missing template
	stored := store.jobs[job.ID]
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Empty(t, sender.sent)
}

func TestBackoffFor_CapsAtTableEnd(t *testing.T) {
	assert.Equal(t, RetryBackoff[0], BackoffFor(1))
	assert.Equal(t, RetryBackoff[2], BackoffFor(3))
	assert.Equal(t, RetryBackoff[len(RetryBackoff)-1], BackoffFor(99))
	// Degenerate input clamps to the first step
	assert.Equal(t, RetryBackoff[0], BackoffFor(0))
}

func TestQueue_Enqueue_Validation(t *testing.T) {
	_, _, _, queue := newTestDispatcher(t)

	_, err := queue.Enqueue(context.Background(), EnqueueInput{Subject: "No template or recipient"})
	assert.Error(t, err)
}

func TestQueue_Enqueue_DefaultsTriggeredBy(t *testing.T) {
	_, _, _, queue := newTestDispatcher(t)

	job, err := queue.Enqueue(context.Background(), EnqueueInput{
		TemplateName: TemplateWelcome,
		Subject:      "Welcome",
		ToEmail:      "member@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "system", job.TriggeredBy)
	assert.Equal(t, DefaultMaxRetryAttempts, job.MaxRetryAttempts)
}
