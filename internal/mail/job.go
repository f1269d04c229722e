// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mail implements the durable email outbox.

Components enqueue jobs and move on; a single background dispatcher owns
delivery, retries, and backoff. Mail delivery is therefore never on a request
path and a flaky SMTP relay can never fail a registration.

Job lifecycle:

	Pending ──► Processing ──► Sent
	   ▲             │
	   │             ├──► Retrying (backoff, bounded) ──► Processing ...
	   │             │
	   └─────────────┴──► Failed (terminal)
*/
package mail

import "time"

// Status is the lifecycle state of an outbox job.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusSent       Status = "Sent"
	StatusFailed     Status = "Failed"
	StatusRetrying   Status = "Retrying"
)

// DefaultMaxRetryAttempts bounds redelivery of a transiently failing job.
const DefaultMaxRetryAttempts = 5

// RetryBackoff is the delay table indexed by retry count. Retries beyond the
// table length reuse the final entry.
var RetryBackoff = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
	6 * time.Hour,
}

// BackoffFor returns the redelivery delay after the given retry count.
func BackoffFor(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	index := retryCount - 1
	if index >= len(RetryBackoff) {
		index = len(RetryBackoff) - 1
	}
	return RetryBackoff[index]
}

// Job is one outbox entry.
type Job struct {
	ID               string            `json:"id"`
	TemplateName     string            `json:"template_name"`
	Subject          string            `json:"subject"`
	ToEmail          string            `json:"to_email"`
	ToName           string            `json:"to_name,omitempty"`
	TemplateData     map[string]string `json:"template_data"`
	Status           Status            `json:"status"`
	RetryCount       int               `json:"retry_count"`
	MaxRetryAttempts int               `json:"max_retry_attempts"`
	LastError        string            `json:"last_error,omitempty"`
	ScheduledFor     time.Time         `json:"scheduled_for"`
	SentAt           *time.Time        `json:"sent_at,omitempty"`
	TriggeredBy      string            `json:"triggered_by"`
	CreatedAt        time.Time         `json:"created_at"`
}
