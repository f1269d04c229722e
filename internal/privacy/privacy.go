// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package privacy implements the data protection layer for log compliance.

It provides three complementary transformations of user identifiers:

  - Pseudonymization: deterministic one-way HMAC mapping, safe to store and
    correlate but never reversible.
  - Encryption: authenticated reversible encryption (AES-256-GCM) for the
    audit categories where a privileged, justified reveal must stay possible.
  - Masking: display-level redaction for operational tooling.

The two secrets are independent on purpose: leaking the pseudonym key must
not unlock the encrypted identifiers, and vice versa.
*/
package privacy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/taibuivan/yomira-id/internal/platform/constants"
)

// pseudonymPrefixLength is the number of base64url characters kept from the
// HMAC digest. 12 characters (72 bits) is plenty to avoid collisions while
// keeping log lines readable.
const pseudonymPrefixLength = 12

// Service performs pseudonymization, encryption, and masking of identifiers.
type Service struct {
	pseudonymKey  []byte
	encryptionKey []byte
}

// NewService constructs a [Service] from the two required secrets.
//
// The encryption key is derived as SHA-256(secret) so any passphrase length
// yields a valid AES-256 key.
func NewService(pseudonymSecret, encryptionSecret string) *Service {
	encryptionKey := sha256.Sum256([]byte(encryptionSecret))
	return &Service{
		pseudonymKey:  []byte(pseudonymSecret),
		encryptionKey: encryptionKey[:],
	}
}

// # Pseudonymization

/*
PseudonymizeEmail maps an email address to a stable, non-reversible pseudonym.

Description: HMAC-SHA256 over the lowercased input, base64url-encoded and
truncated, prefixed with "user_". The original domain is appended when present
so operators can still group log lines by mail provider.

Parameters:
  - email: string (raw address; may be empty)

Returns:
  - string: e.g. "user_dGhpc2lzbm90@example.com", or "anonymous" for empty input
*/
func (service *Service) PseudonymizeEmail(email string) string {

	// Empty identity resolves to the well-known anonymous pseudonym
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return constants.AnonymousUser
	}

	// Deterministic digest: same secret + same email = same pseudonym, always
	mac := hmac.New(sha256.New, service.pseudonymKey)
	mac.Write([]byte(strings.ToLower(trimmed)))
	digest := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	pseudonym := "user_" + digest[:pseudonymPrefixLength]

	// Keep the domain for operational grouping; it is not identifying on its own
	if at := strings.LastIndex(trimmed, "@"); at >= 0 && at < len(trimmed)-1 {
		pseudonym += "@" + strings.ToLower(trimmed[at+1:])
	}

	return pseudonym
}

// # Reversible Encryption

/*
EncryptUserInfo encrypts a user identifier for privileged later retrieval.

Description: AES-256-GCM with a random nonce, output as base64(nonce||cipher).
The well-known identities "anonymous" and "system" pass through unchanged;
there is nothing to protect.

Parameters:
  - userInfo: string

Returns:
  - string: base64 ciphertext, or the input itself for well-known identities
  - error: cipher initialization or RNG failures
*/
func (service *Service) EncryptUserInfo(userInfo string) (string, error) {
	if userInfo == "" || userInfo == constants.AnonymousUser || userInfo == constants.SystemUser {
		return userInfo, nil
	}

	block, err := aes.NewCipher(service.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("privacy_cipher_init_failed: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("privacy_gcm_init_failed: %w", err)
	}

	// Fresh nonce per message; GCM security collapses on nonce reuse
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("privacy_nonce_generation_failed: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(userInfo), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

/*
DecryptUserInfo reverses [Service.EncryptUserInfo].

Description: This is the privileged path. Callers are expected to gate it
behind role checks and justification logging; the function itself only does
the cryptography.

Parameters:
  - encrypted: string (base64 ciphertext)

Returns:
  - string: The original identifier
  - error: Malformed input or authentication (tag) failures
*/
func (service *Service) DecryptUserInfo(encrypted string) (string, error) {
	if encrypted == "" || encrypted == constants.AnonymousUser || encrypted == constants.SystemUser {
		return encrypted, nil
	}

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("privacy_decrypt_decode_failed: %w", err)
	}

	block, err := aes.NewCipher(service.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("privacy_cipher_init_failed: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("privacy_gcm_init_failed: %w", err)
	}

	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("privacy_decrypt_failed: ciphertext shorter than nonce")
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("privacy_decrypt_failed: %w", err)
	}

	return string(plaintext), nil
}

// # Display Masking

// MaskSensitiveData redacts the middle of a value for display purposes.
// Inputs of four characters or fewer return a fixed mask so short values
// never leak their length.
func MaskSensitiveData(data string) string {
	if len(data) <= 4 {
		return "****"
	}
	return data[:2] + strings.Repeat("*", len(data)-4) + data[len(data)-2:]
}
