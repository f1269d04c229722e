// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// # One-Time Code Generation

const (
	// NumericCodeMinLength / NumericCodeMaxLength bound emailed one-time codes.
	NumericCodeMinLength = 4
	NumericCodeMaxLength = 10

	// AlphanumericCodeMinLength / AlphanumericCodeMaxLength bound opaque codes.
	AlphanumericCodeMinLength = 8
	AlphanumericCodeMaxLength = 128
)

// alphanumericAlphabet is the uppercase+digit alphabet for opaque codes.
// Uppercase-only avoids case-sensitivity confusion when users retype codes.
const alphanumericAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

/*
GenerateNumericCode returns a zero-padded numeric one-time code.

Description: Draws uniform randomness from crypto/rand and maps it into
[10^(length-1), 10^length - 1]. A non-cryptographic PRNG is never acceptable
here: emailed 2FA codes are the second factor.

Parameters:
  - length: int (must be within [NumericCodeMinLength, NumericCodeMaxLength])

Returns:
  - string: All-digit code of exactly `length` characters
  - error: Length violations or entropy source failures
*/
func GenerateNumericCode(length int) (string, error) {

	// Reject lengths outside the supported window
	if length < NumericCodeMinLength || length > NumericCodeMaxLength {
		return "", fmt.Errorf("sec: numeric code length %d outside [%d,%d]",
			length, NumericCodeMinLength, NumericCodeMaxLength)
	}

	// Compute the inclusive range [10^(length-1), 10^length - 1]
	lower := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length-1)), nil)
	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	span := new(big.Int).Sub(upper, lower)

	// Uniform draw within the span, then shift into the range
	offset, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("sec: failed to draw random code: %w", err)
	}

	value := new(big.Int).Add(lower, offset)
	return fmt.Sprintf("%0*d", length, value), nil
}

/*
GenerateAlphanumericCode returns a random uppercase+digit code.

Description: Draws `length` cryptographically random bytes and maps each
byte modulo the alphabet size.

Parameters:
  - length: int (must be within [AlphanumericCodeMinLength, AlphanumericCodeMaxLength])

Returns:
  - string: Code of exactly `length` characters from [A-Z0-9]
  - error: Length violations or entropy source failures
*/
func GenerateAlphanumericCode(length int) (string, error) {

	// Reject lengths outside the supported window
	if length < AlphanumericCodeMinLength || length > AlphanumericCodeMaxLength {
		return "", fmt.Errorf("sec: alphanumeric code length %d outside [%d,%d]",
			length, AlphanumericCodeMinLength, AlphanumericCodeMaxLength)
	}

	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to draw random bytes: %w", err)
	}

	// Map each byte into the alphabet
	code := make([]byte, length)
	for i, b := range buffer {
		code[i] = alphanumericAlphabet[int(b)%len(alphanumericAlphabet)]
	}

	return string(code), nil
}

/*
RandomDelayJitter returns a cryptographically-sourced value in [0, maxSteps).

Description: Used to equalize response timing on enumeration-sensitive paths
(e.g., registration with an already-taken email) so that the collision branch
is indistinguishable from the success branch.
*/
func RandomDelayJitter(maxSteps int64) (int64, error) {
	if maxSteps <= 0 {
		return 0, fmt.Errorf("sec: jitter span must be positive")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(maxSteps))
	if err != nil {
		return 0, fmt.Errorf("sec: failed to draw jitter: %w", err)
	}
	return n.Int64(), nil
}
