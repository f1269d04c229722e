// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"

	"github.com/taibuivan/yomira-id/internal/platform/sec"
)

// Store defines the persistence contract for session rows.
type Store interface {
	// Create persists a new session row.
	Create(context context.Context, session *Session) error

	// FindByTokenHash retrieves an active (unrevoked, unexpired) session.
	FindByTokenHash(context context.Context, tokenHash string) (*Session, error)

	// Revoke marks one session as revoked.
	Revoke(context context.Context, sessionID string) error

	// RevokeAllForUser marks every active session of a user as revoked.
	RevokeAllForUser(context context.Context, userID string) error

	// DeleteExpired removes rows past their expiry (maintenance).
	DeleteExpired(context context.Context) error
}

// UserSnapshot carries the user fields session resolution depends on.
type UserSnapshot struct {
	ID            string
	Username      string
	Email         string
	Role          sec.UserRole
	SecurityStamp string
}

// UserDirectory provides stamp-aware user lookups for the session service.
//
// It is implemented by the auth user repository; defining it here keeps this
// package free of a dependency on the user domain.
type UserDirectory interface {
	// LookupSessionUser fetches the snapshot for an active user.
	LookupSessionUser(context context.Context, userID string) (*UserSnapshot, error)

	// RotateSecurityStamp replaces the user's stamp and returns the new value.
	RotateSecurityStamp(context context.Context, userID string) (string, error)
}
