// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/taibuivan/yomira-id/internal/platform/request"
	"github.com/taibuivan/yomira-id/internal/platform/respond"
	"github.com/taibuivan/yomira-id/internal/platform/validate"
)

// # Two-Factor Management Endpoints
//
// All routes here run behind RequireAuth: the caller is identified by their
// session, never by a request field.

// mountTwoFactorRoutes attaches the 2FA management surface to the protected
// route group.
func (handler *Handler) mountTwoFactorRoutes(router chi.Router) {
	router.Route("/2fa", func(r chi.Router) {
		r.Post("/authenticator", handler.beginAuthenticatorEnrollment)
		r.Post("/authenticator/confirm", handler.confirmAuthenticatorEnrollment)
		r.Post("/email", handler.beginEmailEnrollment)
		r.Post("/email/confirm", handler.confirmEmailEnrollment)
		r.Delete("/", handler.disableTwoFactor)
	})
}

type confirmEnrollmentRequest struct {
	Code string `json:"code"`
}

// recoveryCodesResponse carries the once-only plaintext backup codes.
type recoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
	Message       string   `json:"message"`
}

const recoveryCodesNotice = "Store these recovery codes somewhere safe. They will not be shown again."

/*
beginAuthenticatorEnrollment starts TOTP enrollment.

POST /api/v1/auth/2fa/authenticator

Response:
  - 200: AuthenticatorEnrollment (secret + provisioning URI, shown once)
*/
func (handler *Handler) beginAuthenticatorEnrollment(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	enrollment, err := handler.authService.BeginAuthenticatorEnrollment(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, enrollment)
}

/*
confirmAuthenticatorEnrollment verifies the first TOTP code and enables 2FA.

POST /api/v1/auth/2fa/authenticator/confirm

Response:
  - 200: recoveryCodesResponse (the only time the codes exist in plaintext)
  - 401: Generic invalid-code message
*/
func (handler *Handler) confirmAuthenticatorEnrollment(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input confirmEnrollmentRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.NumericCode(FieldCode, input.Code, OneTimeCodeLength)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	codes, err := handler.authService.ConfirmAuthenticatorEnrollment(request.Context(), userID, input.Code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, recoveryCodesResponse{RecoveryCodes: codes, Message: recoveryCodesNotice})
}

/*
beginEmailEnrollment dispatches the email 2FA setup code.

POST /api/v1/auth/2fa/email
*/
func (handler *Handler) beginEmailEnrollment(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.BeginEmailEnrollment(request.Context(), userID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, messageResponse{Message: "A confirmation code has been sent to your email."})
}

/*
confirmEmailEnrollment consumes the setup code and enables email 2FA.

POST /api/v1/auth/2fa/email/confirm

Response:
  - 200: recoveryCodesResponse
  - 401: Generic invalid-code message
*/
func (handler *Handler) confirmEmailEnrollment(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input confirmEnrollmentRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.NumericCode(FieldCode, input.Code, OneTimeCodeLength)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	codes, err := handler.authService.ConfirmEmailEnrollment(request.Context(), userID, input.Code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, recoveryCodesResponse{RecoveryCodes: codes, Message: recoveryCodesNotice})
}

/*
disableTwoFactor turns off the caller's second factor.

DELETE /api/v1/auth/2fa

Response:
  - 204: Disabled
  - 403: Administratively enforced, cannot self-disable
*/
func (handler *Handler) disableTwoFactor(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.DisableTwoFactor(request.Context(), userID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
