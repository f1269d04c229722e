// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package audit implements the secure logging subsystem.

Every security-relevant branch in the platform (login, registration, token
validation, session rotation, mail dispatch) records exactly one entry here.
Entries are append-only: the core never mutates or deletes them.

Privacy model:

  - The user column carries a pseudonym, never a raw identifier.
  - AUDIT and ERROR entries additionally carry the identifier encrypted with
    a separate key, so a privileged operator can reveal it with justification.
  - The message column must never contain PII; callers are responsible for
    keeping raw identifiers and codes out of it.
*/
package audit

import "time"

// Category classifies a log entry.
type Category string

const (
	CategoryError   Category = "ERROR"
	CategoryAudit   Category = "AUDIT"
	CategoryRequest Category = "REQUEST"
	CategoryMail    Category = "MAIL"
	CategorySystem  Category = "SYSTEM"
)

// carriesEncryptedInfo reports whether entries of this category store the
// reversible encrypted identifier alongside the pseudonym.
func (category Category) carriesEncryptedInfo() bool {
	return category == CategoryAudit || category == CategoryError
}

// Entry is an immutable secure log record.
type Entry struct {
	ID                string    `json:"id"`
	Category          Category  `json:"category"`
	Action            string    `json:"action"`
	Context           string    `json:"context"`
	Message           string    `json:"message"`
	User              string    `json:"user"` // Pseudonymized identifier, default "anonymous".
	EncryptedUserInfo string    `json:"-"`    // Present only for AUDIT/ERROR. Never serialized to clients.
	CreatedAt         time.Time `json:"created_at"`
}
