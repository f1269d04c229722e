// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package token

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/taibuivan/yomira-id/internal/platform/apperr"
	"github.com/taibuivan/yomira-id/internal/platform/sec"
)

// AuditLogger defines the secure-log operations the token service needs.
type AuditLogger interface {
	Audit(context context.Context, action, logContext, message, identifier string)
	Error(context context.Context, action, logContext, message, identifier string)
}

const logContext = "token"

// Service manages the lifecycle of temporary single-use codes.
//
// # Review Process
//
// This service is critical for security. Any change to the validation order,
// the comparison primitive, or the attempt accounting must be reviewed by the
// security team.
type Service struct {
	store    Store
	auditLog AuditLogger
}

// NewService constructs a new token [Service].
func NewService(store Store, auditLog AuditLogger) *Service {
	return &Service{
		store:    store,
		auditLog: auditLog,
	}
}

/*
StoreToken hashes and persists a fresh code for (user, purpose).

Description: Overwrites any existing slot for the purpose: issuing a new code
always invalidates the previous one. The audit entry never contains the code.

Parameters:
  - context: context.Context
  - userID: string
  - email: string (raw address, used only for audit attribution)
  - purpose: Purpose
  - code: string (plaintext one-time code)
  - expiresIn: time.Duration

Returns:
  - error: Validation or storage failures
*/
func (service *Service) StoreToken(context context.Context, userID, email string, purpose Purpose, code string, expiresIn time.Duration) error {
	if !purpose.IsValid() {
		return apperr.ValidationError("Unknown token purpose",
			apperr.FieldError{Field: "purpose", Message: "must be a known purpose"})
	}
	if code == "" {
		return apperr.ValidationError("Code must not be empty",
			apperr.FieldError{Field: "code", Message: "must not be empty"})
	}

	temporaryToken := &TemporaryToken{
		UserID:      userID,
		Purpose:     purpose,
		CodeHash:    sec.HashCode(code),
		ExpiresAt:   time.Now().Add(expiresIn),
		MaxAttempts: DefaultMaxAttempts,
	}

	if err := service.store.Upsert(context, temporaryToken); err != nil {
		return fmt.Errorf("token_service_store_failed: %w", err)
	}

	service.auditLog.Audit(context, "temporary_token_stored", logContext,
		fmt.Sprintf("Token stored for purpose %s, expires in %s", purpose, expiresIn), email)

	return nil
}

/*
ValidateAndConsume checks a submitted code against the (user, purpose) slot.

Description: The decision tree below maps every outcome to exactly one audit
or error entry. The client only ever learns true/false; which branch fired is
server-side knowledge.

 1. Missing slot            → false (no mutation)
 2. Expired                 → false, slot removed
 3. Attempts exhausted      → false, slot removed
 4. Hash mismatch           → false, attempt counter bumped atomically
 5. Match                   → true, slot consumed atomically (single-use)

The hash comparison is constant-time. Consumption is a conditional delete
keyed on the hash, so a concurrent duplicate submission loses cleanly.

Parameters:
  - context: context.Context
  - userID: string
  - email: string (raw address, used only for audit attribution)
  - purpose: Purpose
  - code: string

Returns:
  - bool: true exactly when the code was valid and has now been consumed
*/
func (service *Service) ValidateAndConsume(context context.Context, userID, email string, purpose Purpose, code string) bool {

	// ── 1. Missing slot ───────────────────────────────────────────────────
	temporaryToken, err := service.store.Find(context, userID, purpose)
	if err != nil {
		if apperr.IsAppError(err) {
			service.auditLog.Audit(context, "token_validation_no_token", logContext,
				fmt.Sprintf("No active token for purpose %s", purpose), email)
		} else {
			service.auditLog.Error(context, "token_validation_store_failed", logContext,
				fmt.Sprintf("Token lookup failed for purpose %s: %v", purpose, err), email)
		}
		return false
	}

	now := time.Now()

	// ── 2. Expired ────────────────────────────────────────────────────────
	if temporaryToken.IsExpired(now) {
		_ = service.store.Delete(context, userID, purpose)
		service.auditLog.Audit(context, "token_validation_expired", logContext,
			fmt.Sprintf("Token for purpose %s expired at %s", purpose, temporaryToken.ExpiresAt.Format(time.RFC3339)), email)
		return false
	}

	// ── 3. Attempts exhausted ─────────────────────────────────────────────
	if temporaryToken.IsExhausted() {
		_ = service.store.Delete(context, userID, purpose)
		service.auditLog.Audit(context, "token_validation_exhausted", logContext,
			fmt.Sprintf("Token for purpose %s exhausted after %d failed attempts", purpose, temporaryToken.FailedAttempts), email)
		return false
	}

	// ── 4. Hash comparison (constant-time) ────────────────────────────────
	submittedHash := sec.HashCode(code)
	if subtle.ConstantTimeCompare(temporaryToken.CodeHash, submittedHash) != 1 {
		attempts, err := service.store.IncrementFailed(context, userID, purpose)
		if err != nil {
			// Slot may have been consumed or replaced concurrently.
			service.auditLog.Error(context, "token_validation_increment_failed", logContext,
				fmt.Sprintf("Failed-attempt increment failed for purpose %s: %v", purpose, err), email)
			return false
		}
		service.auditLog.Audit(context, "token_validation_mismatch", logContext,
			fmt.Sprintf("Wrong code for purpose %s (attempt %d of %d)", purpose, attempts, temporaryToken.MaxAttempts), email)
		return false
	}

	// ── 5. Consume (single-use) ───────────────────────────────────────────
	consumed, err := service.store.ConsumeMatching(context, userID, purpose, submittedHash)
	if err != nil {
		service.auditLog.Error(context, "token_consume_store_failed", logContext,
			fmt.Sprintf("Token consumption failed for purpose %s: %v", purpose, err), email)
		return false
	}
	if !consumed {
		// Lost the race against a concurrent consumption or replacement.
		service.auditLog.Audit(context, "token_consume_raced", logContext,
			fmt.Sprintf("Token for purpose %s was consumed or replaced concurrently", purpose), email)
		return false
	}

	service.auditLog.Audit(context, "token_validation_succeeded", logContext,
		fmt.Sprintf("Token for purpose %s validated and consumed", purpose), email)

	return true
}

/*
RemoveToken unconditionally clears the (user, purpose) slot.

Description: Idempotent: clearing an absent slot is a success.

Parameters:
  - context: context.Context
  - userID: string
  - purpose: Purpose

Returns:
  - error: Storage failures
*/
func (service *Service) RemoveToken(context context.Context, userID string, purpose Purpose) error {
	if err := service.store.Delete(context, userID, purpose); err != nil {
		return fmt.Errorf("token_service_remove_failed: %w", err)
	}
	return nil
}
