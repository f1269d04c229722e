// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package admin provides the HTTP delivery layer for privileged operations.

It exposes the secure-log review surface (listing, justified decryption of
pseudonymized identities) and the forced two-factor reset. Every route runs
behind role checks; support staff may review logs and reset 2FA, while
decryption of user identifiers is reserved for administrators.
*/
package admin

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/yomira-id/internal/audit"
	"github.com/taibuivan/yomira-id/internal/platform/middleware"
	requestutil "github.com/taibuivan/yomira-id/internal/platform/request"
	"github.com/taibuivan/yomira-id/internal/platform/respond"
	"github.com/taibuivan/yomira-id/internal/platform/sec"
	"github.com/taibuivan/yomira-id/internal/platform/validate"
	"github.com/taibuivan/yomira-id/pkg/pagination"
)

// # Definitions & Constructors

// AuditReader is the slice of the secure-log service this surface consumes.
type AuditReader interface {
	List(context context.Context, category string, params pagination.Params) ([]*audit.Entry, int, error)
	RevealUserInfo(context context.Context, entryID, adminIdentifier, justification string) (string, error)
}

// TwoFactorResetter forcibly clears a user's second factor.
type TwoFactorResetter interface {
	AdminResetTwoFactor(context context.Context, targetUserID, adminUsername, adminEmail string) error
}

// AdminDirectory resolves the acting admin's email for audit attribution.
type AdminDirectory interface {
	EmailByID(context context.Context, userID string) (string, error)
}

// Handler implements the privileged HTTP endpoints.
type Handler struct {
	auditReader AuditReader
	resetter    TwoFactorResetter
	directory   AdminDirectory
}

// NewHandler constructs a new [Handler].
func NewHandler(auditReader AuditReader, resetter TwoFactorResetter, directory AdminDirectory) *Handler {
	return &Handler{
		auditReader: auditReader,
		resetter:    resetter,
		directory:   directory,
	}
}

// Routes returns a [chi.Router] with the privileged surface.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Support staff: read-only log review and 2FA rescue
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(sec.RoleSupport))
		r.Get("/logs", handler.listLogs)
		r.Post("/users/{userID}/2fa/reset", handler.resetTwoFactor)
	})

	// Administrators only: decryption of pseudonymized identities
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(sec.RoleAdmin))
		r.Post("/logs/{entryID}/reveal", handler.revealLogIdentity)
	})

	return router
}

// # Handlers

/*
listLogs returns one page of secure log entries, newest first.

GET /api/v1/admin/logs?category=AUDIT&page=1&limit=20

Response:
  - 200: Paginated []audit.Entry (user column pseudonymized)
  - 400: Unknown category
*/
func (handler *Handler) listLogs(writer http.ResponseWriter, request *http.Request) {
	params := pagination.FromRequest(request)
	category := request.URL.Query().Get("category")

	entries, total, err := handler.auditReader.List(request.Context(), category, params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, entries, pagination.NewMeta(params.Page, params.Limit, total))
}

type revealRequest struct {
	Justification string `json:"justification"`
}

type revealResponse struct {
	EntryID  string `json:"entry_id"`
	UserInfo string `json:"user_info"`
}

/*
revealLogIdentity decrypts the identifier behind one log entry.

POST /api/v1/admin/logs/{entryID}/reveal

Description: The justification is mandatory and lands verbatim in a new AUDIT
entry attributed to the acting admin, so every reveal is itself reviewable.

Response:
  - 200: revealResponse (the decrypted identifier)
  - 400: Missing justification
  - 404: Entry unknown or carries no reversible identity
*/
func (handler *Handler) revealLogIdentity(writer http.ResponseWriter, request *http.Request) {
	identity, err := requestutil.RequiredIdentity(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	entryID := requestutil.Param(request, "entryID")

	var input revealRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.UUID("entry_id", entryID).
		Required("justification", input.Justification).
		MinLen("justification", input.Justification, 10)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	adminEmail, err := handler.directory.EmailByID(request.Context(), identity.UserID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	userInfo, err := handler.auditReader.RevealUserInfo(request.Context(), entryID, adminEmail, input.Justification)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, revealResponse{EntryID: entryID, UserInfo: userInfo})
}

/*
resetTwoFactor forcibly clears a user's second factor.

POST /api/v1/admin/users/{userID}/2fa/reset

Response:
  - 204: Reset complete, user notified
  - 404: Unknown user
*/
func (handler *Handler) resetTwoFactor(writer http.ResponseWriter, request *http.Request) {
	identity, err := requestutil.RequiredIdentity(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	targetUserID := requestutil.Param(request, "userID")

	validator := &validate.Validator{}
	validator.UUID("user_id", targetUserID)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	adminEmail, err := handler.directory.EmailByID(request.Context(), identity.UserID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.resetter.AdminResetTwoFactor(request.Context(), targetUserID, identity.Username, adminEmail); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
