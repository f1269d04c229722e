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
)

// # Authenticator Enrollment

// AuthenticatorEnrollment is the provisioning material returned when an
// authenticator enrollment begins. The secret is shown exactly once.
type AuthenticatorEnrollment struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

/*
BeginAuthenticatorEnrollment generates a fresh TOTP secret for the user.

Description: Always resets any previous pending secret. TwoFactorEnabled does
not flip here; the user must prove possession of the generator first via
ConfirmAuthenticatorEnrollment.

Parameters:
  - context: context.Context
  - userID: string (the authenticated caller)

Returns:
  - *AuthenticatorEnrollment: Secret and otpauth:// URI for the client
  - error: Lookup or storage failures
*/
func (service *Service) BeginAuthenticatorEnrollment(context context.Context, userID string) (*AuthenticatorEnrollment, error) {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return nil, err
	}

	secret, provisioningURI, err := service.totp.GenerateSecret(user.Email)
	if err != nil {
		return nil, fmt.Errorf("auth_service_enrollment_secret_failed: %w", err)
	}

	if err := service.users.SetAuthenticatorKey(context, user.ID, secret); err != nil {
		return nil, fmt.Errorf("auth_service_enrollment_store_failed: %w", err)
	}

	service.auditLog.Audit(context, "authenticator_enrollment_started", logContext,
		"New authenticator secret generated, confirmation pending", user.Email)

	return &AuthenticatorEnrollment{Secret: secret, ProvisioningURI: provisioningURI}, nil
}

/*
ConfirmAuthenticatorEnrollment verifies the first TOTP code and enables 2FA.

Description: On success the authenticator method goes live and exactly
RecoveryCodeCount single-use backup codes are generated, returned once, and
stored only as bcrypt hashes.

Parameters:
  - context: context.Context
  - userID: string
  - code: string (6-digit TOTP value from the user's app)

Returns:
  - []string: The plaintext recovery codes, the only time they exist
  - error: apperr.Unauthorized on a wrong code; storage failures
*/
func (service *Service) ConfirmAuthenticatorEnrollment(context context.Context, userID, code string) ([]string, error) {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return nil, err
	}

	if user.AuthenticatorKey == "" {
		return nil, apperr.Unprocessable("No authenticator enrollment in progress")
	}

	if !service.totp.Validate(code, user.AuthenticatorKey) {
		service.auditLog.Audit(context, "authenticator_enrollment_rejected", logContext,
			"Enrollment confirmation code rejected", user.Email)
		return nil, apperr.Unauthorized(genericCodeMessage)
	}

	if err := service.users.SetTwoFactor(context, user.ID, true, MethodAuthenticator, user.AuthenticatorKey); err != nil {
		return nil, fmt.Errorf("auth_service_enrollment_enable_failed: %w", err)
	}

	recoveryCodes, err := service.issueRecoveryCodes(context, user)
	if err != nil {
		return nil, err
	}

	service.auditLog.Audit(context, "two_factor_enabled", logContext,
		"Two-factor authentication enabled (Authenticator)", user.Email)

	return recoveryCodes, nil
}

// # Email Enrollment

/*
BeginEmailEnrollment dispatches a setup code to the user's address.

Description: The code proves the mailbox is reachable and under the user's
control before email becomes the second factor.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Lookup, token, or mail failures
*/
func (service *Service) BeginEmailEnrollment(context context.Context, userID string) error {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return err
	}

	code, err := sec.GenerateNumericCode(OneTimeCodeLength)
	if err != nil {
		return fmt.Errorf("auth_service_email_enrollment_code_failed: %w", err)
	}

	if err := service.tokens.StoreToken(context, user.ID, user.Email, token.PurposeEmailTwoFactorSetup, code, TwoFactorCodeTTL); err != nil {
		return err
	}

	if _, err := service.mailQueue.Enqueue(context, mail.EnqueueInput{
		TemplateName: mail.TemplateTwoFactorSetupCode,
		Subject:      "Confirm two-factor authentication",
		ToEmail:      user.Email,
		ToName:       user.DisplayName,
		TemplateData: map[string]string{"Name": user.DisplayName, "Code": code},
	}); err != nil {
		return fmt.Errorf("auth_service_email_enrollment_enqueue_failed: %w", err)
	}

	service.auditLog.Audit(context, "email_enrollment_started", logContext,
		"Email 2FA setup code dispatched", user.Email)

	return nil
}

/*
ConfirmEmailEnrollment consumes the setup code and enables email 2FA.

Parameters:
  - context: context.Context
  - userID: string
  - code: string

Returns:
  - []string: The plaintext recovery codes, shown once
  - error: apperr.Unauthorized on an invalid code; storage failures
*/
func (service *Service) ConfirmEmailEnrollment(context context.Context, userID, code string) ([]string, error) {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return nil, err
	}

	if !service.tokens.ValidateAndConsume(context, user.ID, user.Email, token.PurposeEmailTwoFactorSetup, code) {
		return nil, apperr.Unauthorized(genericCodeMessage)
	}

	if err := service.users.SetTwoFactor(context, user.ID, true, MethodEmail, ""); err != nil {
		return nil, fmt.Errorf("auth_service_email_enrollment_enable_failed: %w", err)
	}

	recoveryCodes, err := service.issueRecoveryCodes(context, user)
	if err != nil {
		return nil, err
	}

	service.auditLog.Audit(context, "two_factor_enabled", logContext,
		"Two-factor authentication enabled (Email)", user.Email)

	return recoveryCodes, nil
}

// issueRecoveryCodes replaces the user's backup code set and returns the new
// plaintext codes. Storage only ever sees bcrypt hashes.
func (service *Service) issueRecoveryCodes(context context.Context, user *User) ([]string, error) {
	plaintext := make([]string, 0, RecoveryCodeCount)
	hashes := make([]string, 0, RecoveryCodeCount)

	for i := 0; i < RecoveryCodeCount; i++ {
		code, err := sec.GenerateAlphanumericCode(RecoveryCodeLength)
		if err != nil {
			return nil, fmt.Errorf("auth_service_recovery_generate_failed: %w", err)
		}
		hash, err := sec.HashPassword(code)
		if err != nil {
			return nil, fmt.Errorf("auth_service_recovery_hash_failed: %w", err)
		}
		plaintext = append(plaintext, code)
		hashes = append(hashes, hash)
	}

	if err := service.recoveryCodes.Replace(context, user.ID, hashes); err != nil {
		return nil, fmt.Errorf("auth_service_recovery_store_failed: %w", err)
	}

	return plaintext, nil
}

// # Disable & Admin Reset

/*
DisableTwoFactor turns off the user's second factor at their own request.

Description: Refused outright when 2FA is administratively enforced: the
enforcement cannot be self-disabled. On success the authenticator key and
recovery codes are destroyed, the security stamp is refreshed so other
sessions die, and a security notice is sent.

Parameters:
  - context: context.Context
  - userID: string (the authenticated caller)

Returns:
  - error: apperr.Forbidden when enforced; storage failures
*/
func (service *Service) DisableTwoFactor(context context.Context, userID string) error {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return err
	}

	if user.TwoFactorEnforced {
		service.auditLog.Audit(context, "two_factor_disable_refused", logContext,
			"Self-service 2FA disable refused: administratively enforced", user.Email)
		return apperr.Forbidden("Two-factor authentication is required for this account")
	}

	if err := service.clearTwoFactor(context, user); err != nil {
		return err
	}

	if err := service.sessions.RefreshSecurityStamp(context, user.ID, user.Email, "two_factor_disabled"); err != nil {
		return err
	}

	if _, err := service.mailQueue.Enqueue(context, mail.EnqueueInput{
		TemplateName: mail.TemplateTwoFactorDisabled,
		Subject:      "Two-factor authentication was disabled",
		ToEmail:      user.Email,
		ToName:       user.DisplayName,
		TemplateData: map[string]string{"Name": user.DisplayName},
	}); err != nil {
		service.auditLog.Error(context, "two_factor_disable_notice_failed", logContext,
			fmt.Sprintf("Disable notice could not be queued: %v", err), user.Email)
	}

	service.auditLog.Audit(context, "two_factor_disabled", logContext,
		"Two-factor authentication disabled by the user", user.Email)

	return nil
}

/*
AdminResetTwoFactor forcibly clears a user's second factor.

Description: The admin path deliberately skips the enforced-check that blocks
self-service disables. The notification names the acting admin, and the audit
trail carries both identities: one entry attributed to the admin, one to the
affected user.

Parameters:
  - context: context.Context
  - targetUserID: string
  - adminUsername: string (display attribution in the notice)
  - adminEmail: string (audit attribution)

Returns:
  - error: Lookup or storage failures
*/
func (service *Service) AdminResetTwoFactor(context context.Context, targetUserID, adminUsername, adminEmail string) error {
	user, err := service.users.FindByID(context, targetUserID)
	if err != nil {
		return err
	}

	if err := service.clearTwoFactor(context, user); err != nil {
		return err
	}

	if err := service.sessions.RefreshSecurityStamp(context, user.ID, user.Email, "two_factor_admin_reset"); err != nil {
		return err
	}

	if _, err := service.mailQueue.Enqueue(context, mail.EnqueueInput{
		TemplateName: mail.TemplateTwoFactorAdminReset,
		Subject:      "Two-factor authentication was reset by an administrator",
		ToEmail:      user.Email,
		ToName:       user.DisplayName,
		TemplateData: map[string]string{"Name": user.DisplayName, "AdminName": adminUsername},
	}); err != nil {
		service.auditLog.Error(context, "two_factor_admin_reset_notice_failed", logContext,
			fmt.Sprintf("Admin reset notice could not be queued: %v", err), user.Email)
	}

	service.auditLog.Audit(context, "two_factor_admin_reset", logContext,
		fmt.Sprintf("Two-factor state reset for user %q by an administrator", user.Username), adminEmail)
	service.auditLog.Audit(context, "two_factor_reset_by_admin", logContext,
		"Two-factor authentication was reset by an administrator", user.Email)

	return nil
}

// clearTwoFactor wipes method, key, recovery codes, and any pending setup slot.
func (service *Service) clearTwoFactor(context context.Context, user *User) error {
	if err := service.users.SetTwoFactor(context, user.ID, false, MethodNone, ""); err != nil {
		return fmt.Errorf("auth_service_two_factor_clear_failed: %w", err)
	}
	if err := service.recoveryCodes.Replace(context, user.ID, nil); err != nil {
		return fmt.Errorf("auth_service_recovery_clear_failed: %w", err)
	}
	if err := service.tokens.RemoveToken(context, user.ID, token.PurposeEmailTwoFactorSetup); err != nil {
		return fmt.Errorf("auth_service_setup_slot_clear_failed: %w", err)
	}
	return nil
}
