// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/yomira-id/internal/platform/constants"
	"github.com/taibuivan/yomira-id/internal/platform/middleware"
	requestutil "github.com/taibuivan/yomira-id/internal/platform/request"
	"github.com/taibuivan/yomira-id/internal/platform/respond"
	"github.com/taibuivan/yomira-id/internal/platform/validate"
	"github.com/taibuivan/yomira-id/internal/session"
)

// # Definitions & Constructors

// Handler implements the HTTP delivery layer for the authentication lifecycle.
//
// # Scope
//
// Registration, the login/2FA state machine, email verification, password
// recovery, and logout. Two-factor management endpoints live in
// http_twofactor.go.
//
// This layer is strictly responsible for transport concerns (status codes,
// cookies, JSON); every security decision belongs to [Service].
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Routes returns a [chi.Router] configured with authentication routes.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/login/email-code", handler.completeEmailTwoFactor)
	router.Post("/login/authenticator", handler.completeAuthenticatorTwoFactor)
	router.Post("/login/recovery-code", handler.loginWithRecoveryCode)
	router.Post("/verify-email", handler.verifyEmail)
	router.Post("/verify-email/resend", handler.resendVerification)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/logout", handler.logout)
		handler.mountTwoFactorRoutes(r)
	})

	return router
}

// # Cookie Handling

// setSessionCookie attaches the freshly established session to the response.
// HttpOnly+Strict: the token is never script-readable and never cross-origin.
func setSessionCookie(writer http.ResponseWriter, established *session.Established) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    established.Token,
		Path:     constants.SessionCookiePath,
		Expires:  established.ExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookie expires the session cookie on the client.
func clearSessionCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    "",
		Path:     constants.SessionCookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// # Request Payloads

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Login      string `json:"login"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type twoFactorRequest struct {
	Email      string `json:"email"`
	Code       string `json:"code"`
	RememberMe bool   `json:"remember_me"`
}

type recoveryCodeRequest struct {
	Email        string `json:"email"`
	RecoveryCode string `json:"recovery_code"`
	RememberMe   bool   `json:"remember_me"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
	Email string `json:"email"`
	Code  string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// # Response Payloads

// loginResponse is the uniform shape for every login-family endpoint.
type loginResponse struct {
	Outcome         LoginOutcome    `json:"outcome"`
	Requires2FA     bool            `json:"requires_2fa"`
	TwoFactorMethod TwoFactorMethod `json:"two_factor_method,omitempty"`
	CSRFToken       string          `json:"csrf_token,omitempty"`
	User            *User           `json:"user,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// genericRecoveryResponse is the enumeration-safe reply shared by the
// registration, resend, and forgot-password endpoints.
var genericRecoveryResponse = messageResponse{
	Message: "If the address is valid, an email is on its way.",
}

// writeLoginResult maps a LoginResult onto the wire: cookie for the outcomes
// that establish a session, uniform JSON body for all of them.
func writeLoginResult(writer http.ResponseWriter, result *LoginResult) {
	response := loginResponse{
		Outcome:         result.Outcome,
		Requires2FA:     result.Outcome == OutcomeTwoFactorRequired,
		TwoFactorMethod: result.TwoFactorMethod,
	}

	if result.Session != nil {
		setSessionCookie(writer, result.Session)
		response.CSRFToken = result.Session.CSRFToken
		response.User = result.User
	}

	respond.OK(writer, response)
}

// # Handlers

/*
register handles the creation of a new user account.

POST /api/v1/auth/register

Description: The response is the same generic message whether the account was
created or either identifier was already registered. Existence of an email or
a username is never disclosed here.

Request:
  - Body: registerRequest (Username, Email, Password, DisplayName)

Response:
  - 201: messageResponse (generic, enumeration-safe)
  - 400: Validation failure
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUsername, input.Username).
		MinLen(FieldUsername, input.Username, 3).
		MaxLen(FieldUsername, input.Username, 32).
		Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, 8).
		MaxLen(FieldDisplayName, input.DisplayName, 64)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.Register(request.Context(), RegisterInput{
		Username:    input.Username,
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.DisplayName,
	}); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, genericRecoveryResponse)
}

/*
login runs the CredentialsSubmitted transition.

POST /api/v1/auth/login

Response:
  - 200: loginResponse (Authenticated, TwoFactorRequired, or Setup2FARequired)
  - 401: Generic invalid-credentials message
  - 423: Generic lockout message
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldLogin, input.Login).
		Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.Login(request.Context(), LoginInput{
		Login:          input.Login,
		Password:       input.Password,
		RememberMe:     input.RememberMe,
		UserAgent:      request.UserAgent(),
		IPAddress:      middleware.RealIP(request),
		PresentedToken: requestutil.SessionToken(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	writeLoginResult(writer, result)
}

/*
completeEmailTwoFactor finishes TwoFactorRequired(Email).

POST /api/v1/auth/login/email-code

Response:
  - 200: loginResponse (Authenticated)
  - 401: Generic invalid-code message
*/
func (handler *Handler) completeEmailTwoFactor(writer http.ResponseWriter, request *http.Request) {
	handler.completeChallenge(writer, request, handler.authService.CompleteEmailTwoFactor)
}

/*
completeAuthenticatorTwoFactor finishes TwoFactorRequired(Authenticator).

POST /api/v1/auth/login/authenticator
*/
func (handler *Handler) completeAuthenticatorTwoFactor(writer http.ResponseWriter, request *http.Request) {
	handler.completeChallenge(writer, request, handler.authService.CompleteAuthenticatorTwoFactor)
}

// completeChallenge is the shared transport plumbing of both code-based
// completion endpoints.
func (handler *Handler) completeChallenge(
	writer http.ResponseWriter,
	request *http.Request,
	complete func(ctx context.Context, input TwoFactorInput) (*LoginResult, error),
) {
	var input twoFactorRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		NumericCode(FieldCode, input.Code, OneTimeCodeLength)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := complete(request.Context(), TwoFactorInput{
		Email:          input.Email,
		Code:           input.Code,
		RememberMe:     input.RememberMe,
		UserAgent:      request.UserAgent(),
		IPAddress:      middleware.RealIP(request),
		PresentedToken: requestutil.SessionToken(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	writeLoginResult(writer, result)
}

/*
loginWithRecoveryCode finishes a 2FA challenge with a single-use backup code.

POST /api/v1/auth/login/recovery-code
*/
func (handler *Handler) loginWithRecoveryCode(writer http.ResponseWriter, request *http.Request) {
	var input recoveryCodeRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldRecoveryCode, input.RecoveryCode)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.LoginWithRecoveryCode(request.Context(), TwoFactorInput{
		Email:          input.Email,
		Code:           input.RecoveryCode,
		RememberMe:     input.RememberMe,
		UserAgent:      request.UserAgent(),
		IPAddress:      middleware.RealIP(request),
		PresentedToken: requestutil.SessionToken(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	writeLoginResult(writer, result)
}

/*
verifyEmail confirms an address via either verification artifact.

POST /api/v1/auth/verify-email

Description: A body with a token runs the link path; a body with email+code
runs the code path.

Response:
  - 200: messageResponse
  - 401: Generic invalid-code message
*/
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	var input verifyEmailRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if input.Token != "" {
		if err := handler.authService.VerifyEmailByLink(request.Context(), input.Token); err != nil {
			respond.Error(writer, request, err)
			return
		}
		respond.OK(writer, messageResponse{Message: "Email address confirmed."})
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		NumericCode(FieldCode, input.Code, OneTimeCodeLength)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.VerifyEmailByCode(request.Context(), input.Email, input.Code); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, messageResponse{Message: "Email address confirmed."})
}

/*
resendVerification re-issues the verification email.

POST /api/v1/auth/verify-email/resend

Response:
  - 200: messageResponse (generic, enumeration-safe)
*/
func (handler *Handler) resendVerification(writer http.ResponseWriter, request *http.Request) {
	var input emailRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResendVerification(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, genericRecoveryResponse)
}

/*
forgotPassword starts password recovery.

POST /api/v1/auth/forgot-password

Response:
  - 200: messageResponse (generic, identical whether the address exists)
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input emailRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ForgotPassword(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, genericRecoveryResponse)
}

/*
resetPassword completes a password reset via link token or emailed code.

POST /api/v1/auth/reset-password

Response:
  - 200: messageResponse
  - 401: Generic invalid-code message
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldNewPassword, input.NewPassword).
		MinLen(FieldNewPassword, input.NewPassword, 8)
	if input.Token == "" {
		validator.Required(FieldEmail, input.Email).
			Email(FieldEmail, input.Email).
			NumericCode(FieldCode, input.Code, OneTimeCodeLength)
	}

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResetPassword(request.Context(), ResetPasswordInput{
		Token:       input.Token,
		Email:       input.Email,
		Code:        input.Code,
		NewPassword: input.NewPassword,
	}); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, messageResponse{Message: "Password has been reset. Please sign in again."})
}

/*
logout terminates the presented session.

POST /api/v1/auth/logout

Response:
  - 204: Session ended (idempotent)
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if err := handler.authService.Logout(request.Context(), requestutil.SessionToken(request)); err != nil {
		respond.Error(writer, request, err)
		return
	}

	clearSessionCookie(writer)
	respond.NoContent(writer)
}
