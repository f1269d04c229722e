// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/yomira-id/internal/platform/apperr"
	"github.com/taibuivan/yomira-id/internal/platform/constants"
	"github.com/taibuivan/yomira-id/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-id/pkg/pagination"
	"github.com/taibuivan/yomira-id/pkg/uuid"
)

// Protector defines the data protection operations the log service needs.
type Protector interface {
	PseudonymizeEmail(email string) string
	EncryptUserInfo(userInfo string) (string, error)
	DecryptUserInfo(encrypted string) (string, error)
}

// Service writes and reads secure log entries.
//
// # Failure Policy
//
// Writing a log entry is best-effort: a storage failure is reported to the
// operational logger but never propagated to the caller. A login must not
// fail because the audit table is briefly unreachable.
type Service struct {
	store     Store
	protector Protector
}

// NewService constructs the secure log service.
func NewService(store Store, protector Protector) *Service {
	return &Service{
		store:     store,
		protector: protector,
	}
}

// # Recording

/*
Audit records a security-relevant event (category AUDIT).

Description: The identifier is pseudonymized for the user column and encrypted
into the reversible column. Pass the raw email; never pre-hash it.

Parameters:
  - context: context.Context
  - action: string (machine-readable event name, e.g. "login_locked_out")
  - logContext: string (component name, e.g. "auth")
  - message: string (human-readable, must not contain PII)
  - identifier: string (raw email, or "" for anonymous)
*/
func (service *Service) Audit(context context.Context, action, logContext, message, identifier string) {
	service.record(context, CategoryAudit, action, logContext, message, identifier)
}

// Error records an internal failure (category ERROR) tied to an identity.
func (service *Service) Error(context context.Context, action, logContext, message, identifier string) {
	service.record(context, CategoryError, action, logContext, message, identifier)
}

// System records an internally-triggered event with the "system" identity.
func (service *Service) System(context context.Context, action, logContext, message string) {
	service.record(context, CategorySystem, action, logContext, message, constants.SystemUser)
}

// MailEvent records an email delivery lifecycle event (category MAIL).
func (service *Service) MailEvent(context context.Context, action, logContext, message string) {
	service.record(context, CategoryMail, action, logContext, message, constants.SystemUser)
}

// record builds and appends one entry. All public helpers funnel through here.
func (service *Service) record(context context.Context, category Category, action, logContext, message, identifier string) {

	// 1. Resolve the identity column. Well-known identities stay literal.
	user := identifier
	switch identifier {
	case "", constants.AnonymousUser:
		user = constants.AnonymousUser
	case constants.SystemUser:
		// keep as-is
	default:
		user = service.protector.PseudonymizeEmail(identifier)
	}

	entry := &Entry{
		ID:        uuid.New(),
		Category:  category,
		Action:    action,
		Context:   logContext,
		Message:   message,
		User:      user,
		CreatedAt: time.Now(),
	}

	// 2. Reversible identifier only for the privileged-reveal categories
	if category.carriesEncryptedInfo() && user != constants.AnonymousUser && user != constants.SystemUser {
		encrypted, err := service.protector.EncryptUserInfo(identifier)
		if err != nil {
			ctxutil.GetLogger(context).ErrorContext(context, "securelog_encrypt_failed",
				slog.String("action", action),
				slog.Any("error", err),
			)
		} else {
			entry.EncryptedUserInfo = encrypted
		}
	}

	// 3. Best-effort append
	if err := service.store.Append(context, entry); err != nil {
		ctxutil.GetLogger(context).ErrorContext(context, "securelog_append_failed",
			slog.String("action", action),
			slog.String("category", string(category)),
			slog.Any("error", err),
		)
	}
}

// # Privileged Access

/*
RevealUserInfo decrypts the identifier behind a log entry for an operator.

Description: This is the only path back from a pseudonymized entry to a raw
identifier. It requires a non-empty justification and records its own AUDIT
entry naming the requesting admin, so every reveal is itself auditable.

Parameters:
  - context: context.Context
  - entryID: string (target log entry)
  - adminIdentifier: string (raw email of the requesting admin)
  - justification: string (mandatory free-text reason)

Returns:
  - string: The decrypted identifier
  - error: Validation, not-found, or decryption failures
*/
func (service *Service) RevealUserInfo(context context.Context, entryID, adminIdentifier, justification string) (string, error) {

	// A reveal without a reason is not allowed, full stop.
	if justification == "" {
		return "", apperr.ValidationError("A justification is required to reveal user information",
			apperr.FieldError{Field: "justification", Message: "must not be empty"})
	}

	entry, err := service.store.FindByID(context, entryID)
	if err != nil {
		return "", err
	}

	if !entry.Category.carriesEncryptedInfo() || entry.EncryptedUserInfo == "" {
		return "", apperr.NotFound("Log entry carries no reversible user information")
	}

	plaintext, err := service.protector.DecryptUserInfo(entry.EncryptedUserInfo)
	if err != nil {
		return "", fmt.Errorf("securelog_reveal_decrypt_failed: %w", err)
	}

	// The reveal is itself an audited event, attributed to the admin.
	service.Audit(context, "securelog_user_info_revealed", "audit",
		fmt.Sprintf("Encrypted user info revealed for entry %s. Justification: %s", entryID, justification),
		adminIdentifier,
	)

	return plaintext, nil
}

/*
List returns one page of log entries, newest first.

Parameters:
  - context: context.Context
  - category: string ("" for all; otherwise one of the known categories)
  - params: pagination.Params

Returns:
  - []*Entry: One page of entries
  - int: Total matching rows
  - error: Validation or query failures
*/
func (service *Service) List(context context.Context, category string, params pagination.Params) ([]*Entry, int, error) {
	switch Category(category) {
	case "", CategoryError, CategoryAudit, CategoryRequest, CategoryMail, CategorySystem:
		// valid
	default:
		return nil, 0, apperr.ValidationError("Unknown log category",
			apperr.FieldError{Field: "category", Message: "must be one of ERROR, AUDIT, REQUEST, MAIL, SYSTEM"})
	}

	return service.store.List(context, Category(category), params)
}
