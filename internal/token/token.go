// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package token implements single-use temporary codes bound to a user and purpose.

One slot exists per (user, purpose) at any time. Storing a new code overwrites
the previous slot; validating the correct code consumes the slot atomically.
Only the SHA-256 hash of a code is ever persisted.

Lifecycle of a slot:

	Absent → Active → {Consumed, Expired, AttemptsExhausted, Replaced}

The 6-digit code space is small, so attempt limiting (3 tries) is the primary
brute-force defense; the hash comparison is constant-time to close the timing
side channel.
*/
package token

import "time"

// Purpose distinguishes independent code slots issued to the same user.
//
// Purposes are first-class: an emailed login code can never be replayed as a
// password-reset code, because they live in different slots.
type Purpose string

const (
	PurposeEmailTwoFactorLogin Purpose = "EmailTwoFactorLogin"
	PurposeEmailTwoFactorSetup Purpose = "EmailTwoFactorSetup"
	PurposeEmailVerification   Purpose = "EmailVerification"
	PurposePasswordReset       Purpose = "PasswordReset"
)

// IsValid reports whether the purpose is one of the known slot keys.
func (purpose Purpose) IsValid() bool {
	switch purpose {
	case PurposeEmailTwoFactorLogin, PurposeEmailTwoFactorSetup, PurposeEmailVerification, PurposePasswordReset:
		return true
	}
	return false
}

// DefaultMaxAttempts is the number of wrong codes tolerated before a slot
// is exhausted.
const DefaultMaxAttempts = 3

// TemporaryToken is the persisted state of one (user, purpose) slot.
type TemporaryToken struct {
	UserID         string
	Purpose        Purpose
	CodeHash       []byte // SHA-256 of the plaintext code. The plaintext is never stored.
	ExpiresAt      time.Time
	FailedAttempts int
	MaxAttempts    int
	CreatedAt      time.Time
}

// IsExpired reports whether the slot has passed its deadline.
func (token *TemporaryToken) IsExpired(now time.Time) bool {
	return !now.Before(token.ExpiresAt)
}

// IsExhausted reports whether the slot has burned through its attempts.
func (token *TemporaryToken) IsExhausted() bool {
	return token.FailedAttempts >= token.MaxAttempts
}
