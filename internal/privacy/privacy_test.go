// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package privacy_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-id/internal/privacy"
)

func newTestService() *privacy.Service {
	return privacy.NewService("pseudonym-secret", "encryption-secret")
}

func TestPseudonymizeEmail_Deterministic(t *testing.T) {
	service := newTestService()

	// 1. Same input must always produce the same pseudonym
	first := service.PseudonymizeEmail("a@b.com")
	second := service.PseudonymizeEmail("a@b.com")
	assert.Equal(t, first, second)

	// 2. Different local parts must diverge
	other := service.PseudonymizeEmail("c@b.com")
	assert.NotEqual(t, first, other)

	// 3. Shape: prefix + preserved domain
	assert.True(t, strings.HasPrefix(first, "user_"))
	assert.True(t, strings.HasSuffix(first, "@b.com"))
}

func TestPseudonymizeEmail_CaseInsensitive(t *testing.T) {
	service := newTestService()

	lower := service.PseudonymizeEmail("member@example.com")
	upper := service.PseudonymizeEmail("MEMBER@EXAMPLE.COM")
	assert.Equal(t, lower, upper)
}

func TestPseudonymizeEmail_EmptyIsAnonymous(t *testing.T) {
	service := newTestService()

	assert.Equal(t, "anonymous", service.PseudonymizeEmail(""))
	assert.Equal(t, "anonymous", service.PseudonymizeEmail("   "))
}

func TestPseudonymizeEmail_SecretSeparation(t *testing.T) {
	// Different pseudonym secrets must not correlate
	serviceA := privacy.NewService("secret-a", "enc")
	serviceB := privacy.NewService("secret-b", "enc")

	assert.NotEqual(t, serviceA.PseudonymizeEmail("a@b.com"), serviceB.PseudonymizeEmail("a@b.com"))
}

func TestEncryptDecryptUserInfo_RoundTrip(t *testing.T) {
	service := newTestService()

	// 1. Encrypt a real identifier
	ciphertext, err := service.EncryptUserInfo("member@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "member@example.com", ciphertext)

	// 2. Decrypt must restore the original
	plaintext, err := service.DecryptUserInfo(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "member@example.com", plaintext)
}

func TestEncryptUserInfo_RandomizedCiphertext(t *testing.T) {
	service := newTestService()

	// Fresh nonce per call: two encryptions of the same value must differ
	first, err := service.EncryptUserInfo("member@example.com")
	require.NoError(t, err)
	second, err := service.EncryptUserInfo("member@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestEncryptUserInfo_WellKnownIdentitiesPassThrough(t *testing.T) {
	service := newTestService()

	for _, identity := range []string{"anonymous", "system", ""} {
		out, err := service.EncryptUserInfo(identity)
		require.NoError(t, err)
		assert.Equal(t, identity, out)
	}
}

func TestDecryptUserInfo_RejectsTampering(t *testing.T) {
	service := newTestService()

	ciphertext, err := service.EncryptUserInfo("member@example.com")
	require.NoError(t, err)

	// Flip a character in the base64 payload; GCM must refuse to open it
	tampered := []byte(ciphertext)
	if tampered[len(tampered)-5] == 'A' {
		tampered[len(tampered)-5] = 'B'
	} else {
		tampered[len(tampered)-5] = 'A'
	}

	_, err = service.DecryptUserInfo(string(tampered))
	assert.Error(t, err)
}

func TestDecryptUserInfo_WrongKeyFails(t *testing.T) {
	ciphertext, err := newTestService().EncryptUserInfo("member@example.com")
	require.NoError(t, err)

	other := privacy.NewService("pseudonym-secret", "another-encryption-secret")
	_, err = other.DecryptUserInfo(ciphertext)
	assert.Error(t, err)
}

func TestMaskSensitiveData(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"", "****"},
		{"ab", "****"},
		{"abcd", "****"},
		{"abcde", "ab*de"},
		{"member@example.com", "me**************om"},
	}

	for _, testCase := range testCases {
		assert.Equal(t, testCase.expected, privacy.MaskSensitiveData(testCase.input), "input=%q", testCase.input)
	}
}
