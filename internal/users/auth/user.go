// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the core identity and access management flows.

It covers registration, the login/2FA state machine, email verification,
password recovery, and two-factor enrollment, orchestrating the session,
token, mail, and audit subsystems.

# Architecture

This layer is the "Truth" of the system. Entities defined here encapsulate
the business rules of user identity; every security-relevant branch writes
exactly one audit entry, and every response on a sensitive path is generic
by construction.
*/
package auth

import (
	"time"

	"github.com/taibuivan/yomira-id/internal/platform/sec"
)

// # Domain Entities

// TwoFactorMethod is the user's configured second factor.
type TwoFactorMethod string

const (
	MethodNone          TwoFactorMethod = "None"
	MethodAuthenticator TwoFactorMethod = "Authenticator"
	MethodEmail         TwoFactorMethod = "Email"
)

// User represents a registered account.
type User struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"` // Explicitly omitted from JSON for security.
	DisplayName  string       `json:"display_name"`
	Role         sec.UserRole `json:"role"`

	EmailConfirmed bool `json:"email_confirmed"`

	TwoFactorEnabled  bool            `json:"two_factor_enabled"`
	TwoFactorMethod   TwoFactorMethod `json:"two_factor_method"`
	TwoFactorEnforced bool            `json:"two_factor_enforced"`
	AuthenticatorKey  string          `json:"-"` // TOTP shared secret. Omitted for security.

	// SecurityStamp rotates on every authentication boundary and credential
	// change; sessions snapshot it and die when it moves.
	SecurityStamp string `json:"-"`

	FailedAccessCount int        `json:"-"`
	LockoutEndAt      *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLockedOut reports whether the account is under an active lockout.
func (user *User) IsLockedOut(now time.Time) bool {
	return user.LockoutEndAt != nil && now.Before(*user.LockoutEndAt)
}

// RequiresTwoFactor reports whether login must go through a 2FA challenge.
func (user *User) RequiresTwoFactor() bool {
	return user.TwoFactorEnabled && user.TwoFactorMethod != MethodNone
}

// NeedsTwoFactorSetup reports the enforced-but-unconfigured state: the user
// may authenticate but must enroll a second factor before doing anything else.
func (user *User) NeedsTwoFactorSetup() bool {
	return user.TwoFactorEnforced && !user.TwoFactorEnabled
}

// RecoveryCode is one single-use bcrypt-hashed backup code.
type RecoveryCode struct {
	ID        string
	UserID    string
	CodeHash  string
	IsUsed    bool
	CreatedAt time.Time
}

// # Field Identifiers

// Global field names for validation and identity mapping in the auth domain.
const (
	FieldUsername     = "username"
	FieldEmail        = "email"
	FieldPassword     = "password"
	FieldDisplayName  = "display_name"
	FieldLogin        = "login"
	FieldToken        = "token"
	FieldCode         = "code"
	FieldNewPassword  = "new_password"
	FieldRecoveryCode = "recovery_code"
	FieldMessage      = "message"
	FieldCSRFToken    = "csrf_token"
)
