// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// AuditLogger defines the secure-log operations the dispatcher needs.
type AuditLogger interface {
	MailEvent(context context.Context, action, logContext, message string)
	System(context context.Context, action, logContext, message string)
}

const logContext = "mail"

// Dispatcher tuning.
const (
	// PollInterval is the outbox scan frequency.
	PollInterval = 15 * time.Second

	// BatchSize bounds the jobs processed per cycle.
	BatchSize = 10

	// InterMessageDelay throttles sends so a burst of registrations cannot
	// overwhelm the relay.
	InterMessageDelay = 250 * time.Millisecond
)

// Dispatcher is the long-lived background loop that drains the outbox.
type Dispatcher struct {
	store     Store
	sender    Sender
	templates *TemplateRegistry
	auditLog  AuditLogger
	logger    *slog.Logger

	fromName  string
	fromEmail string
}

// NewDispatcher constructs a background email dispatcher.
func NewDispatcher(store Store, sender Sender, templates *TemplateRegistry, auditLog AuditLogger, logger *slog.Logger, fromName, fromEmail string) *Dispatcher {
	return &Dispatcher{
		store:     store,
		sender:    sender,
		templates: templates,
		auditLog:  auditLog,
		logger:    logger,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

/*
Run drains the outbox until the context is canceled.

Description: Blocking loop intended for its own goroutine. Each tick claims a
bounded batch and processes it with an inter-message delay. Cancellation is
honored between messages, so shutdown abandons the in-flight batch promptly;
abandoned Processing jobs are reclaimed by the stale sweep on a later start.

Parameters:
  - context: context.Context (cancel to stop)
*/
func (dispatcher *Dispatcher) Run(context context.Context) {
	dispatcher.logger.Info("mail_dispatcher_started",
		slog.Duration("poll_interval", PollInterval),
		slog.Int("batch_size", BatchSize),
	)
	dispatcher.auditLog.System(context, "dispatcher_started", logContext, "Email dispatcher loop started")

	// Recover jobs a previous process abandoned mid-flight
	if reclaimed, err := dispatcher.store.ResetProcessing(context); err != nil {
		dispatcher.logger.Error("mail_dispatcher_reclaim_failed", slog.Any("error", err))
	} else if reclaimed > 0 {
		dispatcher.logger.Info("mail_dispatcher_reclaimed_jobs", slog.Int64("count", reclaimed))
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-context.Done():
			dispatcher.logger.Info("mail_dispatcher_stopped")
			return
		case <-ticker.C:
			dispatcher.processBatch(context)
		}
	}
}

// processBatch claims and delivers one batch of due jobs.
func (dispatcher *Dispatcher) processBatch(context context.Context) {
	jobs, err := dispatcher.store.ClaimBatch(context, time.Now(), BatchSize)
	if err != nil {
		dispatcher.logger.Error("mail_dispatcher_claim_failed", slog.Any("error", err))
		return
	}

	for index, job := range jobs {

		// Throttle between messages, bailing out promptly on shutdown
		if index > 0 {
			select {
			case <-context.Done():
				return
			case <-time.After(InterMessageDelay):
			}
		}

		dispatcher.processJob(context, job)
	}
}

// processJob renders and sends one claimed job, then records the outcome.
func (dispatcher *Dispatcher) processJob(context context.Context, job *Job) {

	// ── 1. Render ─────────────────────────────────────────────────────────
	body, err := dispatcher.templates.Render(job.TemplateName, job.TemplateData)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			// Permanent: no number of retries fixes a missing template.
			dispatcher.fail(context, job, err)
			return
		}
		dispatcher.retryOrFail(context, job, err)
		return
	}

	// ── 2. Deliver ────────────────────────────────────────────────────────
	message := Message{
		FromName:  dispatcher.fromName,
		FromEmail: dispatcher.fromEmail,
		ToName:    job.ToName,
		ToEmail:   job.ToEmail,
		Subject:   job.Subject,
		TextBody:  body,
	}

	if err := dispatcher.sender.Send(message); err != nil {
		dispatcher.retryOrFail(context, job, err)
		return
	}

	// ── 3. Record success ─────────────────────────────────────────────────
	if err := dispatcher.store.MarkSent(context, job.ID, time.Now()); err != nil {
		dispatcher.logger.Error("mail_dispatcher_mark_sent_failed",
			slog.String("job_id", job.ID), slog.Any("error", err))
		return
	}

	dispatcher.auditLog.MailEvent(context, "email_sent", logContext,
		fmt.Sprintf("Job %s (%s) delivered", job.ID, job.TemplateName))
}

// retryOrFail schedules a backoff retry, or fails the job when the retry
// budget is spent.
func (dispatcher *Dispatcher) retryOrFail(context context.Context, job *Job, cause error) {
	nextRetryCount := job.RetryCount + 1

	if nextRetryCount >= job.MaxRetryAttempts {
		job.RetryCount = nextRetryCount
		dispatcher.fail(context, job, cause)
		return
	}

	scheduledFor := time.Now().Add(BackoffFor(nextRetryCount))
	if err := dispatcher.store.MarkRetrying(context, job.ID, nextRetryCount, cause.Error(), scheduledFor); err != nil {
		dispatcher.logger.Error("mail_dispatcher_mark_retrying_failed",
			slog.String("job_id", job.ID), slog.Any("error", err))
		return
	}

	dispatcher.auditLog.MailEvent(context, "email_retry_scheduled", logContext,
		fmt.Sprintf("Job %s (%s) retry %d of %d scheduled for %s",
			job.ID, job.TemplateName, nextRetryCount, job.MaxRetryAttempts, scheduledFor.Format(time.RFC3339)))
}

// fail records a terminal failure. Terminal failures are logged, never fatal:
// the dispatcher loop must survive any single poisoned job.
func (dispatcher *Dispatcher) fail(context context.Context, job *Job, cause error) {
	if err := dispatcher.store.MarkFailed(context, job.ID, job.RetryCount, cause.Error()); err != nil {
		dispatcher.logger.Error("mail_dispatcher_mark_failed_failed",
			slog.String("job_id", job.ID), slog.Any("error", err))
		return
	}

	dispatcher.auditLog.MailEvent(context, "email_failed", logContext,
		fmt.Sprintf("Job %s (%s) permanently failed: %v", job.ID, job.TemplateName, cause))
}
