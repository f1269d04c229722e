// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/taibuivan/yomira-id/internal/platform/apperr"
	"github.com/taibuivan/yomira-id/internal/platform/sec"
	"github.com/taibuivan/yomira-id/pkg/uuid"
)

// AuditLogger defines the secure-log operations the session service needs.
type AuditLogger interface {
	Audit(context context.Context, action, logContext, message, identifier string)
	Error(context context.Context, action, logContext, message, identifier string)
}

// CSRFIssuer mints anti-forgery tokens bound to a session ID.
type CSRFIssuer interface {
	Issue(sessionID string) (string, error)
}

const logContext = "session"

// Service manages session issuance, rotation, and invalidation.
//
// # Review Process
//
// Rotate is the session-fixation defense of the whole platform. Any change to
// its ordering (revoke → stamp → create) must be reviewed by the security team.
type Service struct {
	store    Store
	users    UserDirectory
	auditLog AuditLogger
	csrf     CSRFIssuer
}

// NewService constructs a new session [Service].
func NewService(store Store, users UserDirectory, auditLog AuditLogger, csrf CSRFIssuer) *Service {
	return &Service{
		store:    store,
		users:    users,
		auditLog: auditLog,
		csrf:     csrf,
	}
}

// # Rotation (Fixation Defense)

/*
Rotate atomically replaces the caller's session after an authentication event.

Description: The one entry point for crossing an authentication boundary.
Strict internal order:

 1. Revoke the presented session (sign-out completes first).
 2. Rotate the user's security stamp (strands every other live session).
 3. Mint a brand-new token and session row carrying the fresh stamp.

An attacker-seeded pre-auth token can therefore never become privileged: by
the time the new session exists, the presented one is already dead.

Parameters:
  - context: context.Context
  - user: *UserSnapshot (the freshly authenticated user)
  - presentedToken: string (cookie value sent with the request; may be "")
  - isPersistent: bool ("remember me")
  - userAgent: string
  - ipAddress: string
  - reason: string (audit trail, e.g. "password_login", "email_2fa_completed")

Returns:
  - *Established: New cookie token + CSRF token + expiry
  - error: Storage or token-minting failures
*/
func (service *Service) Rotate(context context.Context, user *UserSnapshot, presentedToken string, isPersistent bool, userAgent, ipAddress, reason string) (*Established, error) {

	// ── 1. Sign-out strictly first ────────────────────────────────────────
	if presentedToken != "" {
		if old, err := service.store.FindByTokenHash(context, sec.HashToken(presentedToken)); err == nil {
			if err := service.store.Revoke(context, old.ID); err != nil {
				return nil, fmt.Errorf("session_service_rotate_revoke_failed: %w", err)
			}
		}
	}

	// ── 2. Stamp rotation ─────────────────────────────────────────────────
	newStamp, err := service.users.RotateSecurityStamp(context, user.ID)
	if err != nil {
		return nil, fmt.Errorf("session_service_rotate_stamp_failed: %w", err)
	}

	// ── 3. Fresh session ──────────────────────────────────────────────────
	established, err := service.issue(context, user.ID, newStamp, isPersistent, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}

	service.auditLog.Audit(context, "session_rotated", logContext,
		fmt.Sprintf("Session rotated (%s), persistent=%t", reason, isPersistent), user.Email)

	return established, nil
}

// issue mints an opaque token and persists the session row.
func (service *Service) issue(context context.Context, userID, securityStamp string, isPersistent bool, userAgent, ipAddress string) (*Established, error) {
	token, err := sec.GenerateSecureToken(TokenLength)
	if err != nil {
		return nil, fmt.Errorf("session_service_token_generation_failed: %w", err)
	}

	ttl := TransientTTL
	if isPersistent {
		ttl = PersistentTTL
	}

	newSession := &Session{
		ID:            uuid.New(),
		UserID:        userID,
		TokenHash:     sec.HashToken(token),
		SecurityStamp: securityStamp,
		IsPersistent:  isPersistent,
		UserAgent:     userAgent,
		IPAddress:     ipAddress,
		ExpiresAt:     time.Now().Add(ttl),
		IsRevoked:     false,
	}

	if err := service.store.Create(context, newSession); err != nil {
		return nil, fmt.Errorf("session_service_create_failed: %w", err)
	}

	csrfToken, err := service.csrf.Issue(newSession.ID)
	if err != nil {
		return nil, fmt.Errorf("session_service_csrf_issue_failed: %w", err)
	}

	return &Established{
		SessionID: newSession.ID,
		Token:     token,
		CSRFToken: csrfToken,
		ExpiresAt: newSession.ExpiresAt,
	}, nil
}

// # Invalidation

/*
InvalidateAll kills every session for a user.

Description: Rotates the stamp AND revokes all rows. Used after a password
change or reset, where nothing previously issued may survive.

Parameters:
  - context: context.Context
  - userID: string
  - email: string (audit attribution)
  - reason: string

Returns:
  - error: Storage failures
*/
func (service *Service) InvalidateAll(context context.Context, userID, email, reason string) error {
	if _, err := service.users.RotateSecurityStamp(context, userID); err != nil {
		service.auditLog.Error(context, "session_invalidate_all_failed", logContext,
			fmt.Sprintf("Stamp rotation failed (%s): %v", reason, err), email)
		return fmt.Errorf("session_service_invalidate_stamp_failed: %w", err)
	}

	if err := service.store.RevokeAllForUser(context, userID); err != nil {
		service.auditLog.Error(context, "session_invalidate_all_failed", logContext,
			fmt.Sprintf("Bulk revocation failed (%s): %v", reason, err), email)
		return fmt.Errorf("session_service_invalidate_revoke_failed: %w", err)
	}

	service.auditLog.Audit(context, "session_invalidated_all", logContext,
		fmt.Sprintf("All sessions invalidated (%s)", reason), email)

	return nil
}

/*
RefreshSecurityStamp rotates the stamp without ending the current session.

Description: Lightweight invalidation of OTHER sessions. The session the user
is currently on keeps working only until its next resolution, when the stale
snapshot fails the stamp check; callers wanting to keep the current session
alive must Rotate instead.

Parameters:
  - context: context.Context
  - userID: string
  - email: string (audit attribution)
  - reason: string

Returns:
  - error: Rotation failures (also audit-logged)
*/
func (service *Service) RefreshSecurityStamp(context context.Context, userID, email, reason string) error {
	if _, err := service.users.RotateSecurityStamp(context, userID); err != nil {
		service.auditLog.Error(context, "security_stamp_refresh_failed", logContext,
			fmt.Sprintf("Stamp refresh failed (%s): %v", reason, err), email)
		return fmt.Errorf("session_service_refresh_stamp_failed: %w", err)
	}

	service.auditLog.Audit(context, "security_stamp_refreshed", logContext,
		fmt.Sprintf("Security stamp refreshed (%s)", reason), email)

	return nil
}

/*
Invalidate revokes the session behind one presented token.

Description: Idempotent: an unknown or already-dead token is a successful
logout.

Parameters:
  - context: context.Context
  - presentedToken: string

Returns:
  - *Session: The revoked session, or nil when none matched
  - error: Revocation failures
*/
func (service *Service) Invalidate(context context.Context, presentedToken string) (*Session, error) {
	if presentedToken == "" {
		return nil, nil
	}

	existing, err := service.store.FindByTokenHash(context, sec.HashToken(presentedToken))
	if err != nil {
		return nil, nil
	}

	if err := service.store.Revoke(context, existing.ID); err != nil {
		return nil, fmt.Errorf("session_service_invalidate_failed: %w", err)
	}

	return existing, nil
}

// # Resolution

/*
ResolveSession turns an opaque cookie token into a request identity.

Description: Implements the middleware's SessionResolver contract. A session
whose stamp snapshot no longer matches the user's current stamp is revoked on
sight.

Parameters:
  - request: *http.Request (carries the context and trace metadata)
  - token: string (cookie value)

Returns:
  - *sec.Identity: The resolved identity
  - error: apperr.Unauthorized when the token cannot be resolved
*/
func (service *Service) ResolveSession(request *http.Request, token string) (*sec.Identity, error) {
	ctx := request.Context()

	existing, err := service.store.FindByTokenHash(ctx, sec.HashToken(token))
	if err != nil {
		return nil, apperr.Unauthorized("Session is invalid or expired")
	}

	user, err := service.users.LookupSessionUser(ctx, existing.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("Session is invalid or expired")
	}

	// Stamp check: a rotated stamp retires this session permanently.
	if existing.SecurityStamp != user.SecurityStamp {
		_ = service.store.Revoke(ctx, existing.ID)
		service.auditLog.Audit(ctx, "session_stamp_mismatch", logContext,
			"Session retired after security stamp rotation", user.Email)
		return nil, apperr.Unauthorized("Session is invalid or expired")
	}

	return &sec.Identity{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		SessionID: existing.ID,
	}, nil
}

// # Lookup

// Find returns the active session for a presented token, or nil.
func (service *Service) Find(context context.Context, presentedToken string) *Session {
	if presentedToken == "" {
		return nil
	}
	existing, err := service.store.FindByTokenHash(context, sec.HashToken(presentedToken))
	if err != nil {
		return nil
	}
	return existing
}
