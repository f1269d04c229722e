// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package session implements server-side cookie session management.

The browser holds one opaque token in an HttpOnly cookie; the server holds the
session row keyed by the token's SHA-256 hash. Each row also snapshots the
user's security stamp at issue time: rotating the stamp (password change,
admin action) instantly strands every previously issued session.

Fixation defense: a session token is NEVER carried across an authentication
boundary. Every successful login or 2FA completion revokes the presented
session first and only then mints a brand-new token (see [Service.Rotate]).
*/
package session

import "time"

// # Session Lifetimes

const (
	// PersistentTTL is the lifetime of a "remember me" session.
	PersistentTTL = 30 * 24 * time.Hour

	// TransientTTL is the lifetime of a plain browser session.
	TransientTTL = 24 * time.Hour

	// TokenLength is the byte length of the random opaque session token.
	TokenLength = 32
)

// Session represents one issued authentication cookie.
type Session struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	TokenHash     string    `json:"-"` // SHA-256 of the cookie value. Omitted for security.
	SecurityStamp string    `json:"-"` // Stamp snapshot at issue time. A stale stamp invalidates the session.
	IsPersistent  bool      `json:"is_persistent"`
	UserAgent     string    `json:"user_agent"`
	IPAddress     string    `json:"ip_address"`
	ExpiresAt     time.Time `json:"expires_at"`
	IsRevoked     bool      `json:"is_revoked"`
	CreatedAt     time.Time `json:"created_at"`
}

// Established is the result of a successful session rotation, ready for the
// HTTP layer to turn into a Set-Cookie header plus a CSRF response field.
type Established struct {
	SessionID string
	Token     string // Opaque cookie value. Exists only in this response.
	CSRFToken string // Anti-forgery JWT bound to SessionID.
	ExpiresAt time.Time
}
