// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taibuivan/yomira-id/internal/mail"
	"github.com/taibuivan/yomira-id/internal/platform/apperr"
	"github.com/taibuivan/yomira-id/internal/platform/dberr"
	"github.com/taibuivan/yomira-id/internal/platform/sec"
	"github.com/taibuivan/yomira-id/internal/session"
	"github.com/taibuivan/yomira-id/internal/token"
	"github.com/taibuivan/yomira-id/pkg/username"
	"github.com/taibuivan/yomira-id/pkg/uuid"
)

// # Collaborator Contracts

// TemporaryTokenService manages single-use expiring codes per (user, purpose).
type TemporaryTokenService interface {
	StoreToken(context context.Context, userID, email string, purpose token.Purpose, code string, expiresIn time.Duration) error
	ValidateAndConsume(context context.Context, userID, email string, purpose token.Purpose, code string) bool
	RemoveToken(context context.Context, userID string, purpose token.Purpose) error
}

// SessionManager crosses authentication boundaries on behalf of the orchestrator.
type SessionManager interface {
	Rotate(context context.Context, user *session.UserSnapshot, presentedToken string, isPersistent bool, userAgent, ipAddress, reason string) (*session.Established, error)
	InvalidateAll(context context.Context, userID, email, reason string) error
	RefreshSecurityStamp(context context.Context, userID, email, reason string) error
	Invalidate(context context.Context, presentedToken string) (*session.Session, error)
}

// MailQueue enqueues outbound email into the durable outbox.
type MailQueue interface {
	Enqueue(context context.Context, input mail.EnqueueInput) (*mail.Job, error)
}

// AuditLogger defines the secure-log operations the orchestrator needs.
type AuditLogger interface {
	Audit(context context.Context, action, logContext, message, identifier string)
	Error(context context.Context, action, logContext, message, identifier string)
}

// # Generic Client Messages

// Anti-enumeration: every internal failure reason on a sensitive path collapses
// into one of these. The precise reason lives only in the audit log.
const (
	genericCredentialsMessage = "Invalid credentials"
	genericLockoutMessage     = "Account is temporarily locked. Please try again later."
	genericCodeMessage        = "Invalid or expired code"
	genericRecoveryMessage    = "Invalid recovery code"
)

// dummyPasswordHash is a throwaway bcrypt hash compared against when the
// account does not exist, so the unknown-identity branch costs as much as a
// wrong password.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Service is the authentication orchestrator: the login/2FA/registration/
// password-recovery state machine tying the token, session, mail, and audit
// subsystems together.
//
// # Review Process
//
// Any change to branch ordering, generic messages, or audit coverage in this
// service must be reviewed by the security team.
type Service struct {
	users         UserRepository
	recoveryCodes RecoveryCodeRepository
	verifyTokens  LinkTokenRepository
	resetTokens   LinkTokenRepository
	tokens        TemporaryTokenService
	sessions      SessionManager
	mailQueue     MailQueue
	auditLog      AuditLogger
	totp          TOTPProvider

	appBaseURL       string
	sendWelcomeEmail bool
}

// NewService constructs the authentication orchestrator.
func NewService(
	users UserRepository,
	recoveryCodes RecoveryCodeRepository,
	verifyTokens LinkTokenRepository,
	resetTokens LinkTokenRepository,
	tokens TemporaryTokenService,
	sessions SessionManager,
	mailQueue MailQueue,
	auditLog AuditLogger,
	totp TOTPProvider,
	appBaseURL string,
	sendWelcomeEmail bool,
) *Service {
	return &Service{
		users:            users,
		recoveryCodes:    recoveryCodes,
		verifyTokens:     verifyTokens,
		resetTokens:      resetTokens,
		tokens:           tokens,
		sessions:         sessions,
		mailQueue:        mailQueue,
		auditLog:         auditLog,
		totp:             totp,
		appBaseURL:       strings.TrimRight(appBaseURL, "/"),
		sendWelcomeEmail: sendWelcomeEmail,
	}
}

// # Registration

// RegisterInput carries a registration request.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

/*
Register creates a new unconfirmed account and issues verification artifacts.

Description: The enumeration policy is uniform across both identifiers.
A collision on either the email or the username returns exactly the same nil
result as a successful registration, padded with a small random delay so its
timing matches the create-and-email path. Only the audit log records the
collision, and that entry carries no raw identifier.

Parameters:
  - context: context.Context
  - input: RegisterInput (raw, un-normalized fields)

Returns:
  - error: Validation failures or storage failures.
    nil on success AND on a silent collision.
*/
func (service *Service) Register(context context.Context, input RegisterInput) error {
	normalizedUsername := username.Normalize(input.Username)
	normalizedEmail := username.NormalizeEmail(input.Email)

	// ── 1. Username collision: silent, timing-equalized ───────────────────
	if _, err := service.users.FindByUsername(context, normalizedUsername); err == nil {
		service.auditLog.Audit(context, "registration_username_collision", logContext,
			"Registration attempted against an already taken username", "")
		service.equalizeTiming()
		return nil
	}

	// ── 2. Email collision: silent, timing-equalized ──────────────────────
	if _, err := service.users.FindByEmail(context, normalizedEmail); err == nil {
		service.auditLog.Audit(context, "registration_email_collision", logContext,
			"Registration attempted against an already registered address", "")
		service.equalizeTiming()
		return nil
	}

	// ── 3. Create the unconfirmed account ─────────────────────────────────
	passwordHash, err := sec.HashPassword(input.Password)
	if err != nil {
		return fmt.Errorf("auth_service_register_hash_failed: %w", err)
	}

	now := time.Now()
	user := &User{
		ID:              uuid.New(),
		Username:        normalizedUsername,
		Email:           normalizedEmail,
		PasswordHash:    passwordHash,
		DisplayName:     strings.TrimSpace(input.DisplayName),
		Role:            sec.RoleMember,
		EmailConfirmed:  false,
		TwoFactorMethod: MethodNone,
		SecurityStamp:   uuid.New(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if user.DisplayName == "" {
		user.DisplayName = input.Username
	}

	if err := service.users.Create(context, user); err != nil {
		// The pre-checks above cannot close the race window between two
		// concurrent registrations. The loser lands here; treat it like the
		// silent collision branches so the response shape stays identical.
		if errors.Is(err, dberr.ErrDuplicate) {
			service.auditLog.Audit(context, "registration_identifier_collision", logContext,
				"Registration lost a uniqueness race against a concurrent signup", "")
			service.equalizeTiming()
			return nil
		}
		return fmt.Errorf("auth_service_register_create_failed: %w", err)
	}

	// ── 4. Dual-path verification: link token + 6-digit code ──────────────
	if err := service.issueVerification(context, user); err != nil {
		return err
	}

	service.auditLog.Audit(context, "user_registered", logContext,
		fmt.Sprintf("Account created for username %q, verification email dispatched", user.Username), user.Email)

	return nil
}

// issueVerification mints a fresh link token and numeric code for the user's
// email verification and dispatches the verification email. Re-issuing
// replaces both artifacts.
func (service *Service) issueVerification(context context.Context, user *User) error {
	linkToken, err := sec.GenerateSecureToken(LinkTokenLength)
	if err != nil {
		return fmt.Errorf("auth_service_verification_token_failed: %w", err)
	}
	if err := service.verifyTokens.Set(context, linkToken, user.ID, VerificationTTL); err != nil {
		return fmt.Errorf("auth_service_verification_store_failed: %w", err)
	}

	code, err := sec.GenerateNumericCode(OneTimeCodeLength)
	if err != nil {
		return fmt.Errorf("auth_service_verification_code_failed: %w", err)
	}
	if err := service.tokens.StoreToken(context, user.ID, user.Email, token.PurposeEmailVerification, code, VerificationTTL); err != nil {
		return err
	}

	_, err = service.mailQueue.Enqueue(context, mail.EnqueueInput{
		TemplateName: mail.TemplateVerificationEmail,
		Subject:      "Confirm your email address",
		ToEmail:      user.Email,
		ToName:       user.DisplayName,
		TemplateData: map[string]string{
			"Name":             user.DisplayName,
			"Code":             code,
			"VerificationLink": service.appBaseURL + "/verify-email?token=" + linkToken,
		},
	})
	if err != nil {
		return fmt.Errorf("auth_service_verification_enqueue_failed: %w", err)
	}

	return nil
}

// equalizeTiming sleeps a small cryptographically-drawn random duration so
// short-circuit branches are indistinguishable from full ones.
func (service *Service) equalizeTiming() {
	steps, err := sec.RandomDelayJitter(collisionJitterSteps)
	if err != nil {
		steps = collisionJitterSteps / 2
	}
	time.Sleep(time.Duration(steps) * time.Millisecond)
}

// # Login State Machine

// LoginOutcome is the terminal state of one login transition.
type LoginOutcome string

const (
	// OutcomeAuthenticated: a fresh session has been established.
	OutcomeAuthenticated LoginOutcome = "Authenticated"

	// OutcomeTwoFactorRequired: credentials accepted, second factor pending.
	// No session exists yet.
	OutcomeTwoFactorRequired LoginOutcome = "TwoFactorRequired"

	// OutcomeTwoFactorSetupRequired: authenticated, but 2FA is enforced and
	// not yet configured. A session exists so enrollment can proceed.
	OutcomeTwoFactorSetupRequired LoginOutcome = "Setup2FARequired"
)

// LoginInput carries a credential-based login request.
type LoginInput struct {
	Login          string // username or email
	Password       string
	RememberMe     bool
	UserAgent      string
	IPAddress      string
	PresentedToken string // pre-auth session cookie, may be ""
}

// LoginResult is the outcome of a login transition. Session is non-nil only
// for the outcomes that establish one.
type LoginResult struct {
	Outcome         LoginOutcome
	TwoFactorMethod TwoFactorMethod
	Session         *session.Established
	User            *User
}

/*
Login runs the CredentialsSubmitted transition of the state machine.

Description: Branches, in order: unknown identity, active lockout, wrong
password (possibly arming a new lockout), 2FA challenge, enforced-but-missing
2FA, full authentication. Every branch writes exactly one audit entry; the
client only ever sees one of the generic messages.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginResult: The reached state and, where applicable, the new session
  - error: apperr.Unauthorized / apperr.Locked with generic messages
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginResult, error) {

	// ── 1. Identity lookup ────────────────────────────────────────────────
	user, err := service.findByLogin(context, input.Login)
	if err != nil {
		// Burn a bcrypt comparison so this branch costs as much as a wrong
		// password against a real account.
		sec.CheckPasswordHash(input.Password, dummyPasswordHash)
		service.auditLog.Audit(context, "login_unknown_identity", logContext,
			"Login attempt against an unknown username or email", input.Login)
		return nil, apperr.Unauthorized(genericCredentialsMessage)
	}

	// ── 2. Active lockout: reject without touching the counter ────────────
	if user.IsLockedOut(time.Now()) {
		service.auditLog.Audit(context, "login_rejected_locked", logContext,
			"Login attempt during an active lockout", user.Email)
		return nil, apperr.Locked(genericLockoutMessage)
	}

	// ── 3. Password verification with lockout bookkeeping ─────────────────
	if !sec.CheckPasswordHash(input.Password, user.PasswordHash) {
		failedCount, lockedUntil, err := service.users.RecordFailedAccess(context, user.ID, MaxFailedAccess, LockoutDuration)
		if err != nil {
			service.auditLog.Error(context, "login_failure_bookkeeping_failed", logContext,
				fmt.Sprintf("Failed-access accounting failed: %v", err), user.Email)
			return nil, apperr.Unauthorized(genericCredentialsMessage)
		}

		if lockedUntil != nil {
			service.notifyLockout(context, user)
			service.auditLog.Audit(context, "login_locked_out", logContext,
				fmt.Sprintf("Lockout triggered after %d failed attempts, until %s",
					failedCount, lockedUntil.Format(time.RFC3339)), user.Email)
			return nil, apperr.Locked(genericLockoutMessage)
		}

		service.auditLog.Audit(context, "login_wrong_password", logContext,
			fmt.Sprintf("Wrong password (failed attempt %d of %d)", failedCount, MaxFailedAccess), user.Email)
		return nil, apperr.Unauthorized(genericCredentialsMessage)
	}

	if err := service.users.ResetAccessFailures(context, user.ID); err != nil {
		service.auditLog.Error(context, "login_failure_reset_failed", logContext,
			fmt.Sprintf("Failed-access reset failed: %v", err), user.Email)
	}

	// ── 4. Second-factor branching ────────────────────────────────────────
	if user.RequiresTwoFactor() {
		return service.beginTwoFactorChallenge(context, user)
	}

	if user.NeedsTwoFactorSetup() {
		// Authenticated, but enrollment is mandatory before anything else.
		// A session is issued so the enrollment endpoints are reachable.
		established, err := service.sessions.Rotate(context, snapshotOf(user), input.PresentedToken,
			input.RememberMe, input.UserAgent, input.IPAddress, "password_login_setup_required")
		if err != nil {
			return nil, fmt.Errorf("auth_service_login_rotate_failed: %w", err)
		}
		service.auditLog.Audit(context, "login_two_factor_setup_required", logContext,
			"Login succeeded; enforced two-factor enrollment pending", user.Email)
		return &LoginResult{
			Outcome: OutcomeTwoFactorSetupRequired,
			Session: established,
			User:    user,
		}, nil
	}

	// ── 5. Authenticated ──────────────────────────────────────────────────
	established, err := service.sessions.Rotate(context, snapshotOf(user), input.PresentedToken,
		input.RememberMe, input.UserAgent, input.IPAddress, "password_login")
	if err != nil {
		return nil, fmt.Errorf("auth_service_login_rotate_failed: %w", err)
	}

	service.auditLog.Audit(context, "login_succeeded", logContext,
		"Password login completed without a second factor", user.Email)

	return &LoginResult{
		Outcome: OutcomeAuthenticated,
		Session: established,
		User:    user,
	}, nil
}

// beginTwoFactorChallenge transitions to TwoFactorRequired(method). For the
// email method this mints and dispatches the one-time code; for the
// authenticator method the client already holds the generator.
func (service *Service) beginTwoFactorChallenge(context context.Context, user *User) (*LoginResult, error) {
	if user.TwoFactorMethod == MethodEmail {
		code, err := sec.GenerateNumericCode(OneTimeCodeLength)
		if err != nil {
			return nil, fmt.Errorf("auth_service_challenge_code_failed: %w", err)
		}
		if err := service.tokens.StoreToken(context, user.ID, user.Email, token.PurposeEmailTwoFactorLogin, code, TwoFactorCodeTTL); err != nil {
			return nil, err
		}
		if _, err := service.mailQueue.Enqueue(context, mail.EnqueueInput{
			TemplateName: mail.TemplateTwoFactorLoginCode,
			Subject:      "Your sign-in code",
			ToEmail:      user.Email,
			ToName:       user.DisplayName,
			TemplateData: map[string]string{"Name": user.DisplayName, "Code": code},
		}); err != nil {
			return nil, fmt.Errorf("auth_service_challenge_enqueue_failed: %w", err)
		}
	}

	service.auditLog.Audit(context, "login_two_factor_challenge", logContext,
		fmt.Sprintf("Password accepted, %s second factor pending", user.TwoFactorMethod), user.Email)

	return &LoginResult{
		Outcome:         OutcomeTwoFactorRequired,
		TwoFactorMethod: user.TwoFactorMethod,
		User:            user,
	}, nil
}

// notifyLockout dispatches the lockout notice. Best-effort: a mail outage
// must not change the login response.
func (service *Service) notifyLockout(context context.Context, user *User) {
	_, err := service.mailQueue.Enqueue(context, mail.EnqueueInput{
		TemplateName: mail.TemplateLockoutNotice,
		Subject:      "Your account has been temporarily locked",
		ToEmail:      user.Email,
		ToName:       user.DisplayName,
		TemplateData: map[string]string{
			"Name":           user.DisplayName,
			"LockoutMinutes": fmt.Sprintf("%d", int(LockoutDuration.Minutes())),
		},
	})
	if err != nil {
		service.auditLog.Error(context, "lockout_notice_enqueue_failed", logContext,
			fmt.Sprintf("Lockout notice could not be queued: %v", err), user.Email)
	}
}

// findByLogin resolves a raw login string to a user. Inputs containing "@"
// are treated as email addresses, everything else as usernames.
func (service *Service) findByLogin(context context.Context, login string) (*User, error) {
	if strings.Contains(login, "@") {
		return service.users.FindByEmail(context, username.NormalizeEmail(login))
	}
	return service.users.FindByUsername(context, username.Normalize(login))
}

// snapshotOf adapts a user entity to the session layer's view.
func snapshotOf(user *User) *session.UserSnapshot {
	return &session.UserSnapshot{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		Role:          user.Role,
		SecurityStamp: user.SecurityStamp,
	}
}

// # Two-Factor Completion

// TwoFactorInput carries a second-factor completion request. No session
// exists yet, so the user is re-identified by email.
type TwoFactorInput struct {
	Email          string
	Code           string
	RememberMe     bool
	UserAgent      string
	IPAddress      string
	PresentedToken string
}

/*
CompleteEmailTwoFactor finishes TwoFactorRequired(Email).

Description: Validates the emailed code through the single-use token slot.
All failure sub-cases (unknown email, wrong code, expired, exhausted) collapse
into one generic message; the token service audits the precise reason.

Parameters:
  - context: context.Context
  - input: TwoFactorInput

Returns:
  - *LoginResult: Authenticated with a fresh session on success
  - error: apperr.Unauthorized with the generic code message
*/
func (service *Service) CompleteEmailTwoFactor(context context.Context, input TwoFactorInput) (*LoginResult, error) {
	user, err := service.users.FindByEmail(context, username.NormalizeEmail(input.Email))
	if err != nil {
		service.auditLog.Audit(context, "email_two_factor_unknown_identity", logContext,
			"Email 2FA completion attempted for an unknown address", input.Email)
		return nil, apperr.Unauthorized(genericCodeMessage)
	}

	if !service.tokens.ValidateAndConsume(context, user.ID, user.Email, token.PurposeEmailTwoFactorLogin, input.Code) {
		return nil, apperr.Unauthorized(genericCodeMessage)
	}

	return service.completeAuthentication(context, user, input, "email_2fa_completed")
}

/*
CompleteAuthenticatorTwoFactor finishes TwoFactorRequired(Authenticator).

Parameters:
  - context: context.Context
  - input: TwoFactorInput (Code is the 6-digit TOTP value)

Returns:
  - *LoginResult: Authenticated with a fresh session on success
  - error: apperr.Unauthorized with the generic code message
*/
func (service *Service) CompleteAuthenticatorTwoFactor(context context.Context, input TwoFactorInput) (*LoginResult, error) {
	user, err := service.users.FindByEmail(context, username.NormalizeEmail(input.Email))
	if err != nil {
		service.auditLog.Audit(context, "authenticator_two_factor_unknown_identity", logContext,
			"Authenticator 2FA completion attempted for an unknown address", input.Email)
		return nil, apperr.Unauthorized(genericCodeMessage)
	}

	if !user.TwoFactorEnabled || user.TwoFactorMethod != MethodAuthenticator || user.AuthenticatorKey == "" {
		service.auditLog.Audit(context, "authenticator_two_factor_not_configured", logContext,
			"Authenticator 2FA completion attempted without an enrolled authenticator", user.Email)
		return nil, apperr.Unauthorized(genericCodeMessage)
	}

	if !service.totp.Validate(input.Code, user.AuthenticatorKey) {
		service.auditLog.Audit(context, "authenticator_two_factor_rejected", logContext,
			"Authenticator code rejected", user.Email)
		return nil, apperr.Unauthorized(genericCodeMessage)
	}

	return service.completeAuthentication(context, user, input, "authenticator_2fa_completed")
}

/*
LoginWithRecoveryCode finishes a 2FA challenge with a single-use backup code.

Description: The submitted code is bcrypt-compared against every unused code
of the user; a hit is burned atomically, so replaying it (even concurrently)
fails.

Parameters:
  - context: context.Context
  - input: TwoFactorInput (Code is the recovery code)

Returns:
  - *LoginResult: Authenticated with a fresh session on success
  - error: apperr.Unauthorized with the generic recovery message
*/
func (service *Service) LoginWithRecoveryCode(context context.Context, input TwoFactorInput) (*LoginResult, error) {
	user, err := service.users.FindByEmail(context, username.NormalizeEmail(input.Email))
	if err != nil {
		service.auditLog.Audit(context, "recovery_login_unknown_identity", logContext,
			"Recovery-code login attempted for an unknown address", input.Email)
		return nil, apperr.Unauthorized(genericRecoveryMessage)
	}

	codes, err := service.recoveryCodes.ListActive(context, user.ID)
	if err != nil {
		service.auditLog.Error(context, "recovery_login_store_failed", logContext,
			fmt.Sprintf("Recovery-code lookup failed: %v", err), user.Email)
		return nil, apperr.Unauthorized(genericRecoveryMessage)
	}

	submitted := strings.ToUpper(strings.TrimSpace(input.Code))
	for _, candidate := range codes {
		if !sec.CheckPasswordHash(submitted, candidate.CodeHash) {
			continue
		}

		consumed, err := service.recoveryCodes.MarkUsed(context, candidate.ID)
		if err != nil {
			service.auditLog.Error(context, "recovery_login_consume_failed", logContext,
				fmt.Sprintf("Recovery-code consumption failed: %v", err), user.Email)
			return nil, apperr.Unauthorized(genericRecoveryMessage)
		}
		if !consumed {
			// Lost a race against a concurrent use of the same code.
			service.auditLog.Audit(context, "recovery_login_code_raced", logContext,
				"Recovery code was consumed concurrently", user.Email)
			return nil, apperr.Unauthorized(genericRecoveryMessage)
		}

		service.auditLog.Audit(context, "recovery_code_used", logContext,
			fmt.Sprintf("Recovery code consumed, %d remaining", len(codes)-1), user.Email)
		return service.completeAuthentication(context, user, input, "recovery_code_login")
	}

	service.auditLog.Audit(context, "recovery_login_rejected", logContext,
		"Submitted recovery code matched no active code", user.Email)
	return nil, apperr.Unauthorized(genericRecoveryMessage)
}

// completeAuthentication is the shared terminal transition into Authenticated:
// session rotation (the fixation defense) followed by one audit entry.
func (service *Service) completeAuthentication(context context.Context, user *User, input TwoFactorInput, reason string) (*LoginResult, error) {
	established, err := service.sessions.Rotate(context, snapshotOf(user), input.PresentedToken,
		input.RememberMe, input.UserAgent, input.IPAddress, reason)
	if err != nil {
		return nil, fmt.Errorf("auth_service_complete_rotate_failed: %w", err)
	}

	service.auditLog.Audit(context, "login_succeeded", logContext,
		fmt.Sprintf("Authentication completed (%s)", reason), user.Email)

	return &LoginResult{
		Outcome: OutcomeAuthenticated,
		Session: established,
		User:    user,
	}, nil
}

// # Logout

/*
Logout ends the presented session.

Description: Idempotent; an absent or already-dead cookie is a successful
logout. Audit attribution resolves the identity best-effort and falls back to
anonymous.

Parameters:
  - context: context.Context
  - presentedToken: string (session cookie value, may be "")

Returns:
  - error: Revocation failures
*/
func (service *Service) Logout(context context.Context, presentedToken string) error {
	revoked, err := service.sessions.Invalidate(context, presentedToken)
	if err != nil {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}

	identifier := ""
	if revoked != nil {
		if user, err := service.users.FindByID(context, revoked.UserID); err == nil {
			identifier = user.Email
		}
	}

	service.auditLog.Audit(context, "logout", logContext, "Session terminated by user", identifier)
	return nil
}
