// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-id/internal/platform/sec"
)

/*
TestGenerateNumericCode_Length verifies the code is all digits at exact length.
*/
func TestGenerateNumericCode_Length(t *testing.T) {
	for _, length := range []int{4, 6, 10} {
		code, err := sec.GenerateNumericCode(length)
		require.NoError(t, err)

		// 1. Exact length
		assert.Len(t, code, length)

		// 2. Digits only
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "code %q contains non-digit %q", code, r)
		}
	}
}

/*
TestGenerateNumericCode_RejectsBadLength verifies the [4,10] window.
*/
func TestGenerateNumericCode_RejectsBadLength(t *testing.T) {
	for _, length := range []int{0, 3, 11, -1} {
		_, err := sec.GenerateNumericCode(length)
		assert.Error(t, err, "length %d should be rejected", length)
	}
}

/*
TestGenerateNumericCode_NotConstant draws several codes and expects variation.
A constant output would indicate a broken entropy source.
*/
func TestGenerateNumericCode_NotConstant(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		code, err := sec.GenerateNumericCode(6)
		require.NoError(t, err)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
}

/*
TestGenerateAlphanumericCode verifies alphabet membership and length window.
*/
func TestGenerateAlphanumericCode(t *testing.T) {
	code, err := sec.GenerateAlphanumericCode(32)
	require.NoError(t, err)
	assert.Len(t, code, 32)

	for _, r := range code {
		isUpper := r >= 'A' && r <= 'Z'
		isDigit := r >= '0' && r <= '9'
		assert.True(t, isUpper || isDigit, "code %q contains %q", code, r)
	}

	_, err = sec.GenerateAlphanumericCode(7)
	assert.Error(t, err)

	_, err = sec.GenerateAlphanumericCode(129)
	assert.Error(t, err)
}

/*
TestCSRFService_RoundTrip verifies issue/verify and session binding.
*/
func TestCSRFService_RoundTrip(t *testing.T) {
	service := sec.NewCSRFService("test-secret", "id.yomira.test", time.Hour)

	token, err := service.Issue("session-1")
	require.NoError(t, err)

	// 1. Valid for the bound session
	assert.NoError(t, service.Verify(token, "session-1"))

	// 2. Rejected for any other session
	assert.Error(t, service.Verify(token, "session-2"))

	// 3. Rejected when tampered
	assert.Error(t, service.Verify(token+"x", "session-1"))
}
