// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"net/http"

	"github.com/taibuivan/yomira-id/internal/platform/apperr"
	"github.com/taibuivan/yomira-id/internal/platform/constants"
	"github.com/taibuivan/yomira-id/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-id/internal/platform/respond"
	"github.com/taibuivan/yomira-id/internal/platform/sec"
)

// SessionResolver resolves an opaque session cookie value into an identity.
//
// # Why an interface?
//
// Defining SessionResolver here decouples the middleware from the session
// service implementation, allowing us to easily inject fakes during testing.
//
// # Security Stamp
//
// Implementations must compare the session's recorded security stamp against
// the user's current stamp; a rotated stamp (password change, admin action)
// invalidates every previously issued session immediately.
type SessionResolver interface {
	ResolveSession(request *http.Request, token string) (*sec.Identity, error)
}

// CSRFVerifier checks an anti-forgery token against the resolved session.
type CSRFVerifier interface {
	Verify(tokenString, sessionID string) error
}

// Authenticate resolves the session cookie into a request identity.
//
// # Flow
//  1. Check for the session cookie.
//  2. If absent, the request proceeds as anonymous.
//  3. If present, resolve the opaque token via [SessionResolver].
//  4. Inject [*sec.Identity] into the request context for downstream use.
//
// An unresolvable cookie does NOT abort the request: public endpoints (login,
// register) must remain reachable with a stale cookie still on the client.
func Authenticate(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// ── 1. Anonymous Access ───────────────────────────────────────────
			cookie, err := request.Cookie(constants.SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// ── 2. Session Resolution ─────────────────────────────────────────
			identity, err := resolver.ResolveSession(request, cookie.Value)
			if err != nil || identity == nil {
				// Stale or revoked cookie: continue anonymously.
				next.ServeHTTP(writer, request)
				return
			}

			// ── 3. Context Injection ──────────────────────────────────────────
			ctx := ctxutil.WithIdentity(request.Context(), identity)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		identity := ctxutil.GetIdentity(request.Context())
		if identity == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole blocks requests whose identity does not meet the target role.
//
// # Usage
//
//	r.Use(middleware.RequireRole(sec.RoleAdmin))
func RequireRole(target sec.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			identity := ctxutil.GetIdentity(request.Context())
			if identity == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			if !identity.Role.AtLeast(target) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient privileges"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// RequireCSRF enforces the anti-forgery token on mutating requests.
//
// # Flow
//  1. Safe methods (GET/HEAD/OPTIONS) pass through untouched.
//  2. Anonymous requests pass through (nothing to forge against).
//  3. Authenticated mutations must carry X-CSRF-Token bound to the session.
func RequireCSRF(verifier CSRFVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			switch request.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(writer, request)
				return
			}

			identity := ctxutil.GetIdentity(request.Context())
			if identity == nil {
				next.ServeHTTP(writer, request)
				return
			}

			token := request.Header.Get(constants.CSRFHeaderName)
			if token == "" {
				respond.Error(writer, request, apperr.Forbidden("Missing anti-forgery token"))
				return
			}

			if err := verifier.Verify(token, identity.SessionID); err != nil {
				respond.Error(writer, request, apperr.Forbidden("Invalid anti-forgery token"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
