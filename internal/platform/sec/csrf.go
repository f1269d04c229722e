// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, code generation,
// anti-forgery tokens) from the domain logic. It acts as an Infrastructure
// service injected into the Application layer via small interfaces.
package sec

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CSRFClaims is the payload embedded inside an anti-forgery token.
//
// # Why bind to the session?
//
// The token carries the session ID it was minted for. A stolen CSRF token is
// useless with any other session cookie, and rotating the session (every
// authentication transition does) orphans all previously issued tokens.
type CSRFClaims struct {
	jwt.RegisteredClaims

	// SessionID is the server-side session this token is bound to.
	SessionID string `json:"sid"`
}

// CSRFService mints and verifies HS256-signed anti-forgery tokens.
//
// Every mutating response that changes session state returns a fresh token
// so the client can continue issuing state-changing requests.
type CSRFService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewCSRFService creates a CSRFService keyed by the session secret.
func NewCSRFService(secret, issuer string, ttl time.Duration) *CSRFService {
	return &CSRFService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}
}

// Issue mints a fresh anti-forgery token bound to the given session ID.
func (service *CSRFService) Issue(sessionID string) (string, error) {
	currentTime := time.Now()
	claims := CSRFClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(service.ttl)),
		},
		SessionID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(service.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign csrf token: %w", err)
	}

	return signedToken, nil
}

// Verify checks the signature, expiry, and session binding of a token.
func (service *CSRFService) Verify(tokenString, sessionID string) error {
	token, err := jwt.ParseWithClaims(tokenString, &CSRFClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return service.secret, nil
	})

	if err != nil {
		return fmt.Errorf("sec: invalid csrf token: %w", err)
	}

	claims, ok := token.Claims.(*CSRFClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("sec: invalid csrf token claims")
	}

	if claims.SessionID != sessionID {
		return fmt.Errorf("sec: csrf token bound to a different session")
	}

	return nil
}
