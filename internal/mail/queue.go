// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/taibuivan/yomira-id/internal/platform/apperr"
	"github.com/taibuivan/yomira-id/internal/platform/constants"
	"github.com/taibuivan/yomira-id/pkg/uuid"
)

// Queue is the fire-and-forget entry point for outbound email.
//
// Enqueueing only writes an outbox row; delivery is the dispatcher's job.
type Queue struct {
	store Store
}

// NewQueue constructs a new outbox [Queue].
func NewQueue(store Store) *Queue {
	return &Queue{store: store}
}

// EnqueueInput describes one email to be sent.
type EnqueueInput struct {
	TemplateName string
	Subject      string
	ToEmail      string
	ToName       string            // optional display name
	TemplateData map[string]string // variables for the template
	TriggeredBy  string            // component or pseudonym responsible; defaults to "system"
}

/*
Enqueue persists a new Pending job due immediately.

Description: Fire-and-forget from the caller's perspective. The core never
waits for actual delivery.

Parameters:
  - context: context.Context
  - input: EnqueueInput

Returns:
  - *Job: The created outbox entry
  - error: Validation or storage failures
*/
func (queue *Queue) Enqueue(context context.Context, input EnqueueInput) (*Job, error) {
	if input.TemplateName == "" || input.ToEmail == "" {
		return nil, apperr.ValidationError("Email job requires a template and a recipient",
			apperr.FieldError{Field: "template_name", Message: "must not be empty"},
			apperr.FieldError{Field: "to_email", Message: "must not be empty"})
	}

	triggeredBy := input.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = constants.SystemUser
	}

	data := input.TemplateData
	if data == nil {
		data = map[string]string{}
	}

	job := &Job{
		ID:               uuid.New(),
		TemplateName:     input.TemplateName,
		Subject:          input.Subject,
		ToEmail:          input.ToEmail,
		ToName:           input.ToName,
		TemplateData:     data,
		Status:           StatusPending,
		MaxRetryAttempts: DefaultMaxRetryAttempts,
		ScheduledFor:     time.Now(),
		TriggeredBy:      triggeredBy,
	}

	if err := queue.store.Create(context, job); err != nil {
		return nil, fmt.Errorf("mail_queue_enqueue_failed: %w", err)
	}

	return job, nil
}
