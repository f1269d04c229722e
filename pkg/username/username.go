// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package username canonicalizes account identifiers before storage or lookup.
//
// # Why normalization matters
//
// Two visually identical usernames can be composed of different Unicode code
// points (e.g., precomposed "é" vs "e" + combining acute). Without a canonical
// form, an attacker could register a confusable twin of an existing account.
// All username comparisons in the identity service go through this package.
package username

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// # Canonical Forms

// Normalize returns the canonical storage form of a username.
//
// # Transformation Pipeline
//
// 1. Trims surrounding whitespace.
// 2. Applies Unicode NFKC normalization (folds compatibility variants).
// 3. Lowercases the result.
func Normalize(raw string) string {

	// 1. Trim surrounding whitespace
	trimmed := strings.TrimSpace(raw)

	// 2. NFKC folds visually-confusable compatibility forms into one
	composed := norm.NFKC.String(trimmed)

	// 3. Case-insensitive identity
	return strings.ToLower(composed)
}

// NormalizeEmail returns the canonical lookup form of an email address.
//
// Email local parts are case-preserved by RFC but treated case-insensitively
// by every mainstream provider; the platform matches that reality.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Equal reports whether two raw usernames collide after canonicalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
