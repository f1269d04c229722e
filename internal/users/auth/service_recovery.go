// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"

	"github.com/taibuivan/yomira-id/internal/mail"
	"github.com/taibuivan/yomira-id/internal/platform/apperr"
	"github.com/taibuivan/yomira-id/internal/platform/sec"
	"github.com/taibuivan/yomira-id/internal/token"
	"github.com/taibuivan/yomira-id/pkg/username"
)

// # Email Verification

/*
VerifyEmailByLink confirms an address via the emailed link token.

Description: The link path and the code path are independent; either one
confirms the address. Both artifacts are destroyed on success so neither can
be replayed.

Parameters:
  - context: context.Context
  - linkToken: string (opaque token from the emailed URL)

Returns:
  - error: apperr.Unauthorized on an unknown or expired token
*/
func (service *Service) VerifyEmailByLink(context context.Context, linkToken string) error {
	userID, err := service.verifyTokens.Get(context, linkToken)
	if err != nil {
		service.auditLog.Audit(context, "email_verification_link_rejected", logContext,
			"Verification link token unknown or expired", "")
		return apperr.Unauthorized(genericCodeMessage)
	}

	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return err
	}

	return service.confirmEmail(context, user, "link")
}

/*
VerifyEmailByCode confirms an address via the 6-digit emailed code.

Parameters:
  - context: context.Context
  - email: string (the address being confirmed; no session exists yet)
  - code: string

Returns:
  - error: apperr.Unauthorized on any invalid-code sub-case
*/
func (service *Service) VerifyEmailByCode(context context.Context, email, code string) error {
	user, err := service.users.FindByEmail(context, username.NormalizeEmail(email))
	if err != nil {
		service.auditLog.Audit(context, "email_verification_unknown_identity", logContext,
			"Code verification attempted for an unknown address", email)
		return apperr.Unauthorized(genericCodeMessage)
	}

	if !service.tokens.ValidateAndConsume(context, user.ID, user.Email, token.PurposeEmailVerification, code) {
		return apperr.Unauthorized(genericCodeMessage)
	}

	return service.confirmEmail(context, user, "code")
}

// confirmEmail is the shared tail of both verification paths: flip the flag,
// destroy both artifacts, optionally send the welcome email.
func (service *Service) confirmEmail(context context.Context, user *User, path string) error {
	if err := service.users.MarkEmailConfirmed(context, user.ID); err != nil {
		return fmt.Errorf("auth_service_confirm_email_failed: %w", err)
	}

	// Both artifacts die on success, whichever path verified. The code path
	// never sees the link value, so the link is burned by user.
	_ = service.verifyTokens.DeleteForUser(context, user.ID)
	_ = service.tokens.RemoveToken(context, user.ID, token.PurposeEmailVerification)

	service.auditLog.Audit(context, "email_verified", logContext,
		fmt.Sprintf("Email address confirmed via %s", path), user.Email)

	if service.sendWelcomeEmail {
		if _, err := service.mailQueue.Enqueue(context, mail.EnqueueInput{
			TemplateName: mail.TemplateWelcome,
			Subject:      "Welcome to Yomira",
			ToEmail:      user.Email,
			ToName:       user.DisplayName,
			TemplateData: map[string]string{"Name": user.DisplayName, "AppLink": service.appBaseURL},
		}); err != nil {
			service.auditLog.Error(context, "welcome_email_enqueue_failed", logContext,
				fmt.Sprintf("Welcome email could not be queued: %v", err), user.Email)
		}
	}

	return nil
}

/*
ResendVerification re-issues both verification artifacts for an address.

Description: Enumeration-safe: the response is identical whether the address
is unknown, already confirmed, or freshly re-mailed.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - error: Only internal failures on the real-issue path
*/
func (service *Service) ResendVerification(context context.Context, email string) error {
	user, err := service.users.FindByEmail(context, username.NormalizeEmail(email))
	if err != nil || user.EmailConfirmed {
		service.auditLog.Audit(context, "verification_resend_ignored", logContext,
			"Verification resend requested for an unknown or already confirmed address", "")
		service.equalizeTiming()
		return nil
	}

	if err := service.issueVerification(context, user); err != nil {
		return err
	}

	service.auditLog.Audit(context, "verification_resent", logContext,
		"Verification email re-dispatched", user.Email)

	return nil
}

// # Password Recovery

/*
ForgotPassword starts password recovery for an address.

Description: The response is byte-identical whether the address exists,
exists unconfirmed, or is unknown; the miss branches are timing-equalized.
When recovery does proceed, a link token AND an independent 6-digit code are
both issued (30 minutes), and one email carries both paths.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - error: Only internal failures on the real-issue path
*/
func (service *Service) ForgotPassword(context context.Context, email string) error {
	user, err := service.users.FindByEmail(context, username.NormalizeEmail(email))
	if err != nil {
		service.auditLog.Audit(context, "password_reset_unknown_identity", logContext,
			"Password reset requested for an unknown address", "")
		service.equalizeTiming()
		return nil
	}

	if !user.EmailConfirmed {
		service.auditLog.Audit(context, "password_reset_unconfirmed", logContext,
			"Password reset requested for an unconfirmed address", user.Email)
		service.equalizeTiming()
		return nil
	}

	linkToken, err := sec.GenerateSecureToken(LinkTokenLength)
	if err != nil {
		return fmt.Errorf("auth_service_reset_token_failed: %w", err)
	}
	if err := service.resetTokens.Set(context, linkToken, user.ID, ResetTTL); err != nil {
		return fmt.Errorf("auth_service_reset_store_failed: %w", err)
	}

	code, err := sec.GenerateNumericCode(OneTimeCodeLength)
	if err != nil {
		return fmt.Errorf("auth_service_reset_code_failed: %w", err)
	}
	if err := service.tokens.StoreToken(context, user.ID, user.Email, token.PurposePasswordReset, code, ResetTTL); err != nil {
		return err
	}

	if _, err := service.mailQueue.Enqueue(context, mail.EnqueueInput{
		TemplateName: mail.TemplatePasswordReset,
		Subject:      "Reset your password",
		ToEmail:      user.Email,
		ToName:       user.DisplayName,
		TemplateData: map[string]string{
			"Name":      user.DisplayName,
			"Code":      code,
			"ResetLink": service.appBaseURL + "/reset-password?token=" + linkToken,
		},
	}); err != nil {
		return fmt.Errorf("auth_service_reset_enqueue_failed: %w", err)
	}

	service.auditLog.Audit(context, "password_reset_requested", logContext,
		"Password reset artifacts issued and emailed", user.Email)

	return nil
}

// ResetPasswordInput carries a password reset completion. Exactly one of
// Token or (Email, Code) identifies the reset.
type ResetPasswordInput struct {
	Token       string // link-token path
	Email       string // code path
	Code        string // code path
	NewPassword string
}

/*
ResetPassword completes a password reset via either issued artifact.

Description: The link token is tried first; if absent or invalid, the code
path runs through the single-use token slot. Whichever path verifies, the
other artifact is destroyed too. Success rotates the security stamp and
revokes every session (a reset must kill everything previously issued)
then sends a "password changed" notice.

Parameters:
  - context: context.Context
  - input: ResetPasswordInput

Returns:
  - error: apperr.Unauthorized with the generic code message on any
    verification failure; storage failures otherwise
*/
func (service *Service) ResetPassword(context context.Context, input ResetPasswordInput) error {
	user, err := service.verifyResetArtifact(context, input)
	if err != nil {
		return err
	}

	newHash, err := sec.HashPassword(input.NewPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_hash_failed: %w", err)
	}

	if err := service.users.UpdatePassword(context, user.ID, newHash); err != nil {
		return fmt.Errorf("auth_service_reset_update_failed: %w", err)
	}

	// Burn both artifacts regardless of which one verified. The code path
	// never sees the link value, so the link is burned by user.
	_ = service.resetTokens.DeleteForUser(context, user.ID)
	_ = service.tokens.RemoveToken(context, user.ID, token.PurposePasswordReset)

	// A reset also clears any standing lockout: the legitimate owner has
	// just proven control of the mailbox.
	if err := service.users.ResetAccessFailures(context, user.ID); err != nil {
		service.auditLog.Error(context, "password_reset_unlock_failed", logContext,
			fmt.Sprintf("Post-reset lockout clear failed: %v", err), user.Email)
	}

	if err := service.sessions.InvalidateAll(context, user.ID, user.Email, "password_reset"); err != nil {
		return err
	}

	if _, err := service.mailQueue.Enqueue(context, mail.EnqueueInput{
		TemplateName: mail.TemplatePasswordChangedNotice,
		Subject:      "Your password was changed",
		ToEmail:      user.Email,
		ToName:       user.DisplayName,
		TemplateData: map[string]string{"Name": user.DisplayName},
	}); err != nil {
		service.auditLog.Error(context, "password_changed_notice_failed", logContext,
			fmt.Sprintf("Password-changed notice could not be queued: %v", err), user.Email)
	}

	service.auditLog.Audit(context, "password_reset_completed", logContext,
		"Password reset completed; all sessions invalidated", user.Email)

	return nil
}

// verifyResetArtifact resolves the user behind a reset request: link token
// first, then the emailed code.
func (service *Service) verifyResetArtifact(context context.Context, input ResetPasswordInput) (*User, error) {
	if input.Token != "" {
		userID, err := service.resetTokens.Get(context, input.Token)
		if err == nil {
			user, err := service.users.FindByID(context, userID)
			if err != nil {
				return nil, err
			}
			return user, nil
		}
		service.auditLog.Audit(context, "password_reset_link_rejected", logContext,
			"Reset link token unknown or expired", "")
		// Fall through to the code path when one was also submitted.
	}

	if input.Email != "" && input.Code != "" {
		user, err := service.users.FindByEmail(context, username.NormalizeEmail(input.Email))
		if err != nil {
			service.auditLog.Audit(context, "password_reset_code_unknown_identity", logContext,
				"Reset code submitted for an unknown address", input.Email)
			return nil, apperr.Unauthorized(genericCodeMessage)
		}
		if !service.tokens.ValidateAndConsume(context, user.ID, user.Email, token.PurposePasswordReset, input.Code) {
			return nil, apperr.Unauthorized(genericCodeMessage)
		}
		return user, nil
	}

	return nil, apperr.Unauthorized(genericCodeMessage)
}
