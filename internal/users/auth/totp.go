// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"fmt"

	"github.com/pquerna/otp/totp"

	"github.com/taibuivan/yomira-id/internal/platform/constants"
)

// # TOTP Provider

// TOTPProvider abstracts time-based one-time password generation and
// validation so tests can swap in a deterministic fake.
type TOTPProvider interface {
	// GenerateSecret creates a fresh shared secret for the account and the
	// otpauth:// provisioning URI that authenticator apps consume.
	GenerateSecret(accountName string) (secret, provisioningURI string, err error)

	// Validate checks a 6-digit code against the shared secret, tolerating
	// standard clock skew.
	Validate(code, secret string) bool
}

// StandardTOTP implements TOTPProvider with RFC 6238 defaults
// (SHA-1, 6 digits, 30-second period).
type StandardTOTP struct{}

// NewStandardTOTP creates the production TOTP provider.
func NewStandardTOTP() *StandardTOTP {
	return &StandardTOTP{}
}

/*
GenerateSecret creates a new TOTP secret for the given account.

Parameters:
  - accountName: string (the user's email, shown in the authenticator app)

Returns:
  - string: The base32 shared secret, for manual entry
  - string: The otpauth:// provisioning URI, for QR rendering
  - error: Generation failures
*/
func (provider *StandardTOTP) GenerateSecret(accountName string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      constants.AuthIssuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", "", fmt.Errorf("totp_generate_failed: %w", err)
	}

	return key.Secret(), key.URL(), nil
}

// Validate checks a code against the shared secret.
func (provider *StandardTOTP) Validate(code, secret string) bool {
	return totp.Validate(code, secret)
}
