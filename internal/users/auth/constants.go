// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "time"

// # Authentication Constraints

const (
	// TwoFactorCodeTTL is the lifetime of an emailed login or setup code.
	// Short-lived (10 minutes): the user is at the keyboard.
	TwoFactorCodeTTL = 10 * time.Minute

	// VerificationTTL is the lifetime of the email-verification link and code.
	// Long-lived (24 hours) as users might not check email immediately.
	VerificationTTL = 24 * time.Hour

	// ResetTTL is the lifetime of the password-reset link and code.
	ResetTTL = 30 * time.Minute

	// LinkTokenLength is the byte length of emailed link tokens.
	LinkTokenLength = 32

	// OneTimeCodeLength is the digit count of emailed one-time codes.
	OneTimeCodeLength = 6

	// MaxFailedAccess is the failed-login threshold that triggers a lockout.
	MaxFailedAccess = 5

	// LockoutDuration is how long a triggered lockout lasts.
	LockoutDuration = 10 * time.Minute

	// RecoveryCodeCount is the number of single-use backup codes generated
	// when a second factor is enabled. Shown exactly once.
	RecoveryCodeCount = 10

	// RecoveryCodeLength is the character length of each backup code.
	RecoveryCodeLength = 10

	// collisionJitterSteps bounds the random delay added to registration and
	// recovery paths whose timing could otherwise betray account existence.
	collisionJitterSteps = 200
)

const logContext = "auth"
