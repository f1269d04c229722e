// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"
)

// # Repository Contracts

// UserRepository defines the persistence contract for accounts.
type UserRepository interface {
	// Create persists a new user record.
	Create(context context.Context, user *User) error

	// FindByID retrieves a user by primary key.
	FindByID(context context.Context, id string) (*User, error)

	// FindByEmail retrieves a user by normalized email.
	FindByEmail(context context.Context, email string) (*User, error)

	// FindByUsername retrieves a user by normalized username.
	FindByUsername(context context.Context, username string) (*User, error)

	// UpdatePassword replaces only the password hash.
	UpdatePassword(context context.Context, userID, newHash string) error

	// MarkEmailConfirmed flips emailconfirmed to true.
	MarkEmailConfirmed(context context.Context, userID string) error

	// RecordFailedAccess atomically bumps the failed-access counter and, when
	// the threshold is reached, arms the lockout in the same statement. It
	// returns the new counter and the lockout deadline if one is now active.
	RecordFailedAccess(context context.Context, userID string, threshold int, lockoutFor time.Duration) (int, *time.Time, error)

	// ResetAccessFailures clears the counter and any lockout after a
	// successful authentication.
	ResetAccessFailures(context context.Context, userID string) error

	// SetTwoFactor updates the 2FA configuration in one statement.
	SetTwoFactor(context context.Context, userID string, enabled bool, method TwoFactorMethod, authenticatorKey string) error

	// SetAuthenticatorKey stores a pending TOTP secret without enabling 2FA.
	SetAuthenticatorKey(context context.Context, userID, key string) error
}

// RecoveryCodeRepository defines the persistence contract for backup codes.
type RecoveryCodeRepository interface {
	// Replace deletes every code of the user and inserts the given hashes.
	// Called with an empty slice, it simply clears the set.
	Replace(context context.Context, userID string, codeHashes []string) error

	// ListActive returns the user's unused codes.
	ListActive(context context.Context, userID string) ([]*RecoveryCode, error)

	// MarkUsed atomically burns one code. It reports whether the code was
	// still unused, the single-use guarantee under concurrency.
	MarkUsed(context context.Context, codeID string) (bool, error)
}

// LinkTokenRepository defines the volatile store for emailed link tokens
// (email verification, password reset). Tokens expire on their own. At most
// one live token per user: Set replaces any earlier one.
type LinkTokenRepository interface {
	Set(context context.Context, token, userID string, ttl time.Duration) error
	Get(context context.Context, token string) (string, error)
	Delete(context context.Context, token string) error

	// DeleteForUser burns the user's live token without knowing its value.
	// This is how the code-based flows destroy the counterpart link.
	DeleteForUser(context context.Context, userID string) error
}
