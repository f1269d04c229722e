// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-id/internal/mail"
	"github.com/taibuivan/yomira-id/internal/platform/apperr"
	"github.com/taibuivan/yomira-id/internal/platform/dberr"
	"github.com/taibuivan/yomira-id/internal/session"
	"github.com/taibuivan/yomira-id/internal/token"
	"github.com/taibuivan/yomira-id/pkg/uuid"
)

const (
	testEmail    = "member@example.com"
	testPassword = "correct horse battery staple"
	totpSecret   = "JBSWY3DPEHPK3PXP"
	totpGoodCode = "428031"
)

// # Fakes

type fakeUsers struct {
	byID map[string]*User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[string]*User)}
}

func (repo *fakeUsers) Create(_ context.Context, user *User) error {
	copied := *user
	repo.byID[user.ID] = &copied
	return nil
}

func (repo *fakeUsers) FindByID(_ context.Context, id string) (*User, error) {
	if user, ok := repo.byID[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, apperr.NotFound("User")
}

func (repo *fakeUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	for _, user := range repo.byID {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (repo *fakeUsers) FindByUsername(_ context.Context, name string) (*User, error) {
	for _, user := range repo.byID {
		if user.Username == name {
			copied := *user
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (repo *fakeUsers) UpdatePassword(_ context.Context, userID, newHash string) error {
	repo.byID[userID].PasswordHash = newHash
	return nil
}

func (repo *fakeUsers) MarkEmailConfirmed(_ context.Context, userID string) error {
	repo.byID[userID].EmailConfirmed = true
	return nil
}

func (repo *fakeUsers) RecordFailedAccess(_ context.Context, userID string, threshold int, lockoutFor time.Duration) (int, *time.Time, error) {
	user := repo.byID[userID]

	// A served (expired) lockout restarts the count, matching the store.
	if user.LockoutEndAt != nil && !user.LockoutEndAt.After(time.Now()) {
		user.FailedAccessCount = 0
		user.LockoutEndAt = nil
	}

	user.FailedAccessCount++
	if user.FailedAccessCount >= threshold {
		deadline := time.Now().Add(lockoutFor)
		user.LockoutEndAt = &deadline
		return user.FailedAccessCount, &deadline, nil
	}
	user.LockoutEndAt = nil
	return user.FailedAccessCount, nil, nil
}

func (repo *fakeUsers) ResetAccessFailures(_ context.Context, userID string) error {
	user := repo.byID[userID]
	user.FailedAccessCount = 0
	user.LockoutEndAt = nil
	return nil
}

func (repo *fakeUsers) SetTwoFactor(_ context.Context, userID string, enabled bool, method TwoFactorMethod, key string) error {
	user := repo.byID[userID]
	user.TwoFactorEnabled = enabled
	user.TwoFactorMethod = method
	user.AuthenticatorKey = key
	return nil
}

func (repo *fakeUsers) SetAuthenticatorKey(_ context.Context, userID, key string) error {
	repo.byID[userID].AuthenticatorKey = key
	return nil
}

type fakeRecoveryCodes struct {
	byID map[string]*RecoveryCode
}

func newFakeRecoveryCodes() *fakeRecoveryCodes {
	return &fakeRecoveryCodes{byID: make(map[string]*RecoveryCode)}
}

func (repo *fakeRecoveryCodes) Replace(_ context.Context, userID string, hashes []string) error {
	for id, code := range repo.byID {
		if code.UserID == userID {
			delete(repo.byID, id)
		}
	}
	for _, hash := range hashes {
		id := uuid.New()
		repo.byID[id] = &RecoveryCode{ID: id, UserID: userID, CodeHash: hash}
	}
	return nil
}

func (repo *fakeRecoveryCodes) ListActive(_ context.Context, userID string) ([]*RecoveryCode, error) {
	var active []*RecoveryCode
	for _, code := range repo.byID {
		if code.UserID == userID && !code.IsUsed {
			active = append(active, code)
		}
	}
	return active, nil
}

func (repo *fakeRecoveryCodes) MarkUsed(_ context.Context, codeID string) (bool, error) {
	code, ok := repo.byID[codeID]
	if !ok || code.IsUsed {
		return false, nil
	}
	code.IsUsed = true
	return true, nil
}

type fakeLinkTokens struct {
	entries map[string]string
}

func newFakeLinkTokens() *fakeLinkTokens {
	return &fakeLinkTokens{entries: make(map[string]string)}
}

func (repo *fakeLinkTokens) Set(_ context.Context, tok, userID string, _ time.Duration) error {
	// Mirrors the Redis repository: one live token per user.
	for existing, owner := range repo.entries {
		if owner == userID {
			delete(repo.entries, existing)
		}
	}
	repo.entries[tok] = userID
	return nil
}

func (repo *fakeLinkTokens) Get(_ context.Context, tok string) (string, error) {
	if userID, ok := repo.entries[tok]; ok {
		return userID, nil
	}
	return "", dberr.ErrNotFound
}

func (repo *fakeLinkTokens) Delete(_ context.Context, tok string) error {
	delete(repo.entries, tok)
	return nil
}

func (repo *fakeLinkTokens) DeleteForUser(_ context.Context, userID string) error {
	for tok, owner := range repo.entries {
		if owner == userID {
			delete(repo.entries, tok)
		}
	}
	return nil
}

// one returns the single stored token, for tests that captured an email link.
func (repo *fakeLinkTokens) one(t *testing.T) string {
	t.Helper()
	require.Len(t, repo.entries, 1)
	for tok := range repo.entries {
		return tok
	}
	return ""
}

// fakeTokens mirrors the single-use slot semantics in memory, keyed on
// plaintext codes for test readability.
type fakeTokens struct {
	slots map[string]string // (userID|purpose) -> code
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{slots: make(map[string]string)}
}

func slotKey(userID string, purpose token.Purpose) string {
	return userID + "|" + string(purpose)
}

func (tokens *fakeTokens) StoreToken(_ context.Context, userID, _ string, purpose token.Purpose, code string, _ time.Duration) error {
	tokens.slots[slotKey(userID, purpose)] = code
	return nil
}

func (tokens *fakeTokens) ValidateAndConsume(_ context.Context, userID, _ string, purpose token.Purpose, code string) bool {
	key := slotKey(userID, purpose)
	if stored, ok := tokens.slots[key]; ok && stored == code {
		delete(tokens.slots, key)
		return true
	}
	return false
}

func (tokens *fakeTokens) RemoveToken(_ context.Context, userID string, purpose token.Purpose) error {
	delete(tokens.slots, slotKey(userID, purpose))
	return nil
}

// fakeSessions records every boundary crossing.
type fakeSessions struct {
	rotations       []string // reasons, in order
	invalidatedAll  []string // reasons
	stampsRefreshed []string // reasons
	counter         int
}

func (sessions *fakeSessions) Rotate(_ context.Context, _ *session.UserSnapshot, _ string, isPersistent bool, _, _, reason string) (*session.Established, error) {
	sessions.rotations = append(sessions.rotations, reason)
	sessions.counter++
	ttl := session.TransientTTL
	if isPersistent {
		ttl = session.PersistentTTL
	}
	return &session.Established{
		SessionID: uuid.New(),
		Token:     fmt.Sprintf("tok-%d", sessions.counter),
		CSRFToken: fmt.Sprintf("csrf-%d", sessions.counter),
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (sessions *fakeSessions) InvalidateAll(_ context.Context, _, _, reason string) error {
	sessions.invalidatedAll = append(sessions.invalidatedAll, reason)
	return nil
}

func (sessions *fakeSessions) RefreshSecurityStamp(_ context.Context, _, _, reason string) error {
	sessions.stampsRefreshed = append(sessions.stampsRefreshed, reason)
	return nil
}

func (sessions *fakeSessions) Invalidate(_ context.Context, _ string) (*session.Session, error) {
	return nil, nil
}

type fakeMailQueue struct {
	enqueued []mail.EnqueueInput
}

func (queue *fakeMailQueue) Enqueue(_ context.Context, input mail.EnqueueInput) (*mail.Job, error) {
	queue.enqueued = append(queue.enqueued, input)
	return &mail.Job{ID: uuid.New()}, nil
}

func (queue *fakeMailQueue) last(t *testing.T) mail.EnqueueInput {
	t.Helper()
	require.NotEmpty(t, queue.enqueued)
	return queue.enqueued[len(queue.enqueued)-1]
}

type recordingAudit struct {
	actions []string
}

func (audit *recordingAudit) Audit(_ context.Context, action, _, _, _ string) {
	audit.actions = append(audit.actions, action)
}

func (audit *recordingAudit) Error(_ context.Context, action, _, _, _ string) {
	audit.actions = append(audit.actions, action)
}

func (audit *recordingAudit) has(action string) bool {
	for _, recorded := range audit.actions {
		if recorded == action {
			return true
		}
	}
	return false
}

// fakeTOTP accepts exactly one code for one secret.
type fakeTOTP struct{}

func (fakeTOTP) GenerateSecret(accountName string) (string, string, error) {
	return totpSecret, "otpauth://totp/Yomira:" + accountName, nil
}

func (fakeTOTP) Validate(code, secret string) bool {
	return secret == totpSecret && code == totpGoodCode
}

// # Harness

type harness struct {
	service       *Service
	users         *fakeUsers
	recoveryCodes *fakeRecoveryCodes
	verifyTokens  *fakeLinkTokens
	resetTokens   *fakeLinkTokens
	tokens        *fakeTokens
	sessions      *fakeSessions
	mailQueue     *fakeMailQueue
	audit         *recordingAudit
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		users:         newFakeUsers(),
		recoveryCodes: newFakeRecoveryCodes(),
		verifyTokens:  newFakeLinkTokens(),
		resetTokens:   newFakeLinkTokens(),
		tokens:        newFakeTokens(),
		sessions:      &fakeSessions{},
		mailQueue:     &fakeMailQueue{},
		audit:         &recordingAudit{},
	}
	h.service = NewService(
		h.users, h.recoveryCodes, h.verifyTokens, h.resetTokens,
		h.tokens, h.sessions, h.mailQueue, h.audit, fakeTOTP{},
		"https://id.yomira.app", false,
	)
	return h
}

// register creates an account through the real path and returns the stored user.
func (h *harness) register(t *testing.T) *User {
	t.Helper()
	err := h.service.Register(context.Background(), RegisterInput{
		Username: "member",
		Email:    testEmail,
		Password: testPassword,
	})
	require.NoError(t, err)

	user, err := h.users.FindByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	return user
}

// verificationCode extracts the 6-digit code from the last verification email.
func (h *harness) verificationCode(t *testing.T, userID string, purpose token.Purpose) string {
	t.Helper()
	code, ok := h.tokens.slots[slotKey(userID, purpose)]
	require.True(t, ok, "no code stored for purpose %s", purpose)
	return code
}

// # Registration

func TestRegister_CreatesUnconfirmedAccountAndDispatchesVerification(t *testing.T) {
	h := newHarness(t)

	user := h.register(t)
	assert.False(t, user.EmailConfirmed)
	assert.Equal(t, MethodNone, user.TwoFactorMethod)
	assert.NotEmpty(t, user.SecurityStamp)

	// Dual verification path: one link token AND one code slot
	assert.Len(t, h.verifyTokens.entries, 1)
	_, hasCode := h.tokens.slots[slotKey(user.ID, token.PurposeEmailVerification)]
	assert.True(t, hasCode)

	sent := h.mailQueue.last(t)
	assert.Equal(t, mail.TemplateVerificationEmail, sent.TemplateName)
	assert.Equal(t, testEmail, sent.ToEmail)
	assert.Contains(t, sent.TemplateData["VerificationLink"], "https://id.yomira.app/verify-email?token=")
}

func TestRegister_EmailCollisionIsSilent(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	// Same address, different username: identical nil result, no new account
	err := h.service.Register(context.Background(), RegisterInput{
		Username: "othername",
		Email:    testEmail,
		Password: testPassword,
	})
	assert.NoError(t, err)
	assert.Len(t, h.users.byID, 1)
	assert.True(t, h.audit.has("registration_email_collision"))
}

func TestRegister_UsernameCollisionIsSilent(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	// The enumeration policy is uniform: a taken username behaves exactly
	// like a taken email.
	err := h.service.Register(context.Background(), RegisterInput{
		Username: "MEMBER", // collides after normalization
		Email:    "other@example.com",
		Password: testPassword,
	})
	assert.NoError(t, err)
	assert.Len(t, h.users.byID, 1)
	assert.True(t, h.audit.has("registration_username_collision"))
}

// # Email Verification

func TestVerifyEmail_CodePathConfirmsAndBurnsBothArtifacts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t)

	code := h.verificationCode(t, user.ID, token.PurposeEmailVerification)
	require.NoError(t, h.service.VerifyEmailByCode(ctx, testEmail, code))

	confirmed, _ := h.users.FindByID(ctx, user.ID)
	assert.True(t, confirmed.EmailConfirmed)

	// The unconsumed link token is destroyed too
	assert.Empty(t, h.verifyTokens.entries)

	// Replays fail
	err := h.service.VerifyEmailByCode(ctx, testEmail, code)
	assert.Error(t, err)
}

func TestVerifyEmail_LinkPathConfirms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t)

	linkToken := h.verifyTokens.one(t)
	require.NoError(t, h.service.VerifyEmailByLink(ctx, linkToken))

	confirmed, _ := h.users.FindByID(ctx, user.ID)
	assert.True(t, confirmed.EmailConfirmed)

	// The unconsumed code slot is destroyed too
	_, hasCode := h.tokens.slots[slotKey(user.ID, token.PurposeEmailVerification)]
	assert.False(t, hasCode)
}

// # Login State Machine

func TestLogin_WithoutTwoFactorAuthenticates(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	result, err := h.service.Login(context.Background(), LoginInput{
		Login:    "member",
		Password: testPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthenticated, result.Outcome)
	require.NotNil(t, result.Session)
	assert.NotEmpty(t, result.Session.CSRFToken)
	assert.Equal(t, []string{"password_login"}, h.sessions.rotations)
}

func TestLogin_ByEmailWorksToo(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	result, err := h.service.Login(context.Background(), LoginInput{
		Login:    "Member@Example.COM",
		Password: testPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthenticated, result.Outcome)
}

func TestLogin_UnknownIdentityIsGeneric(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	_, err := h.service.Login(context.Background(), LoginInput{
		Login:    "nobody",
		Password: testPassword,
	})
	require.Error(t, err)
	appErr := apperr.As(err)
	assert.Equal(t, "UNAUTHORIZED", appErr.Code)
	assert.Equal(t, genericCredentialsMessage, appErr.Message)
}

func TestLogin_WrongPasswordMatchesUnknownIdentityShape(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	_, wrongPassword := h.service.Login(context.Background(), LoginInput{Login: "member", Password: "nope nope nope"})
	_, unknownUser := h.service.Login(context.Background(), LoginInput{Login: "nobody", Password: "nope nope nope"})

	// Anti-enumeration: both failures must be byte-identical to the client
	assert.Equal(t, apperr.As(unknownUser).Code, apperr.As(wrongPassword).Code)
	assert.Equal(t, apperr.As(unknownUser).Message, apperr.As(wrongPassword).Message)
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	ctx := context.Background()

	// Four failures stay generic 401
	for i := 0; i < MaxFailedAccess-1; i++ {
		_, err := h.service.Login(ctx, LoginInput{Login: "member", Password: "wrong"})
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	}

	// The fifth arms the lockout and dispatches the notice
	_, err := h.service.Login(ctx, LoginInput{Login: "member", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, "LOCKED", apperr.As(err).Code)
	assert.Equal(t, mail.TemplateLockoutNotice, h.mailQueue.last(t).TemplateName)
	assert.True(t, h.audit.has("login_locked_out"))

	// During the lockout even the CORRECT password is rejected, and the
	// counter is not consumed further
	before := h.users.byID[user.ID].FailedAccessCount
	_, err = h.service.Login(ctx, LoginInput{Login: "member", Password: testPassword})
	require.Error(t, err)
	assert.Equal(t, "LOCKED", apperr.As(err).Code)
	assert.Equal(t, before, h.users.byID[user.ID].FailedAccessCount)
}

func TestLogin_ExpiredLockoutRestartsFailureCounter(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	ctx := context.Background()

	// Arm the lockout, then let it lapse
	for i := 0; i < MaxFailedAccess; i++ {
		_, _ = h.service.Login(ctx, LoginInput{Login: "member", Password: "wrong"})
	}
	expired := time.Now().Add(-time.Minute)
	h.users.byID[user.ID].LockoutEndAt = &expired

	// The full failure budget is available again: one wrong password is a
	// generic rejection, not an instant re-lock
	_, err := h.service.Login(ctx, LoginInput{Login: "member", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	assert.Equal(t, 1, h.users.byID[user.ID].FailedAccessCount)

	// And the correct password still gets in
	_, err = h.service.Login(ctx, LoginInput{Login: "member", Password: testPassword})
	assert.NoError(t, err)
}

func TestLogin_SuccessResetsFailureCounter(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	ctx := context.Background()

	_, _ = h.service.Login(ctx, LoginInput{Login: "member", Password: "wrong"})
	_, err := h.service.Login(ctx, LoginInput{Login: "member", Password: testPassword})
	require.NoError(t, err)
	assert.Zero(t, h.users.byID[user.ID].FailedAccessCount)
}

func TestLogin_EnforcedWithoutSetupEstablishesSessionButFlagsSetup(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	h.users.byID[user.ID].TwoFactorEnforced = true

	result, err := h.service.Login(context.Background(), LoginInput{
		Login:    "member",
		Password: testPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTwoFactorSetupRequired, result.Outcome)
	require.NotNil(t, result.Session, "enrollment endpoints must be reachable")
}

// # Email 2FA Round Trip

func TestEmailTwoFactor_FullRoundTrip(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	ctx := context.Background()

	// Enroll: begin dispatches a setup code, confirm consumes it
	require.NoError(t, h.service.BeginEmailEnrollment(ctx, user.ID))
	assert.Equal(t, mail.TemplateTwoFactorSetupCode, h.mailQueue.last(t).TemplateName)

	setupCode := h.verificationCode(t, user.ID, token.PurposeEmailTwoFactorSetup)
	recoveryCodes, err := h.service.ConfirmEmailEnrollment(ctx, user.ID, setupCode)
	require.NoError(t, err)
	assert.Len(t, recoveryCodes, RecoveryCodeCount)

	// Login now halts at the challenge: no session yet
	result, err := h.service.Login(ctx, LoginInput{Login: "member", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTwoFactorRequired, result.Outcome)
	assert.Equal(t, MethodEmail, result.TwoFactorMethod)
	assert.Nil(t, result.Session)
	assert.Equal(t, mail.TemplateTwoFactorLoginCode, h.mailQueue.last(t).TemplateName)

	// Completing with the emailed code authenticates
	loginCode := h.verificationCode(t, user.ID, token.PurposeEmailTwoFactorLogin)
	completed, err := h.service.CompleteEmailTwoFactor(ctx, TwoFactorInput{Email: testEmail, Code: loginCode})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthenticated, completed.Outcome)
	require.NotNil(t, completed.Session)

	// The code is single-use
	_, err = h.service.CompleteEmailTwoFactor(ctx, TwoFactorInput{Email: testEmail, Code: loginCode})
	assert.Error(t, err)
}

// # Authenticator 2FA

func TestAuthenticatorEnrollment_RequiresProofBeforeEnabling(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	ctx := context.Background()

	enrollment, err := h.service.BeginAuthenticatorEnrollment(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, totpSecret, enrollment.Secret)
	assert.Contains(t, enrollment.ProvisioningURI, "otpauth://")

	// Still disabled until the first code is proven
	pending, _ := h.users.FindByID(ctx, user.ID)
	assert.False(t, pending.TwoFactorEnabled)

	// Wrong code keeps it disabled
	_, err = h.service.ConfirmAuthenticatorEnrollment(ctx, user.ID, "000000")
	require.Error(t, err)

	// Right code enables and hands out recovery codes
	recoveryCodes, err := h.service.ConfirmAuthenticatorEnrollment(ctx, user.ID, totpGoodCode)
	require.NoError(t, err)
	assert.Len(t, recoveryCodes, RecoveryCodeCount)

	enabled, _ := h.users.FindByID(ctx, user.ID)
	assert.True(t, enabled.TwoFactorEnabled)
	assert.Equal(t, MethodAuthenticator, enabled.TwoFactorMethod)
}

func TestAuthenticatorLogin_CompletesWithTOTPCode(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	ctx := context.Background()

	_, err := h.service.BeginAuthenticatorEnrollment(ctx, user.ID)
	require.NoError(t, err)
	_, err = h.service.ConfirmAuthenticatorEnrollment(ctx, user.ID, totpGoodCode)
	require.NoError(t, err)

	result, err := h.service.Login(ctx, LoginInput{Login: "member", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTwoFactorRequired, result.Outcome)
	assert.Equal(t, MethodAuthenticator, result.TwoFactorMethod)

	completed, err := h.service.CompleteAuthenticatorTwoFactor(ctx, TwoFactorInput{Email: testEmail, Code: totpGoodCode})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthenticated, completed.Outcome)
}

// # Recovery Codes

func TestRecoveryCodeLogin_IsSingleUse(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	ctx := context.Background()

	_, err := h.service.BeginAuthenticatorEnrollment(ctx, user.ID)
	require.NoError(t, err)
	codes, err := h.service.ConfirmAuthenticatorEnrollment(ctx, user.ID, totpGoodCode)
	require.NoError(t, err)

	result, err := h.service.LoginWithRecoveryCode(ctx, TwoFactorInput{Email: testEmail, Code: codes[0]})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthenticated, result.Outcome)

	// Replay fails with the same generic message as a bad code
	_, err = h.service.LoginWithRecoveryCode(ctx, TwoFactorInput{Email: testEmail, Code: codes[0]})
	require.Error(t, err)
	assert.Equal(t, genericRecoveryMessage, apperr.As(err).Message)
}

// # Disable & Admin Reset

func TestDisableTwoFactor_RefusedWhenEnforced(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	h.users.byID[user.ID].TwoFactorEnforced = true
	h.users.byID[user.ID].TwoFactorEnabled = true
	h.users.byID[user.ID].TwoFactorMethod = MethodEmail

	err := h.service.DisableTwoFactor(context.Background(), user.ID)
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", apperr.As(err).Code)
}

func TestDisableTwoFactor_ClearsStateAndNotifies(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	ctx := context.Background()
	h.users.byID[user.ID].TwoFactorEnabled = true
	h.users.byID[user.ID].TwoFactorMethod = MethodAuthenticator
	h.users.byID[user.ID].AuthenticatorKey = totpSecret

	require.NoError(t, h.service.DisableTwoFactor(ctx, user.ID))

	disabled, _ := h.users.FindByID(ctx, user.ID)
	assert.False(t, disabled.TwoFactorEnabled)
	assert.Equal(t, MethodNone, disabled.TwoFactorMethod)
	assert.Empty(t, disabled.AuthenticatorKey)
	assert.Equal(t, mail.TemplateTwoFactorDisabled, h.mailQueue.last(t).TemplateName)
	assert.Equal(t, []string{"two_factor_disabled"}, h.sessions.stampsRefreshed)
}

func TestAdminResetTwoFactor_BypassesEnforcedCheck(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	ctx := context.Background()
	h.users.byID[user.ID].TwoFactorEnforced = true
	h.users.byID[user.ID].TwoFactorEnabled = true
	h.users.byID[user.ID].TwoFactorMethod = MethodAuthenticator

	require.NoError(t, h.service.AdminResetTwoFactor(ctx, user.ID, "rootops", "admin@yomira.app"))

	reset, _ := h.users.FindByID(ctx, user.ID)
	assert.False(t, reset.TwoFactorEnabled)

	notice := h.mailQueue.last(t)
	assert.Equal(t, mail.TemplateTwoFactorAdminReset, notice.TemplateName)
	assert.Equal(t, "rootops", notice.TemplateData["AdminName"])

	// Both identities are audited
	assert.True(t, h.audit.has("two_factor_admin_reset"))
	assert.True(t, h.audit.has("two_factor_reset_by_admin"))
}

// # Password Recovery

func TestForgotPassword_IsEnumerationSafe(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	ctx := context.Background()

	// Unconfirmed address: generic success, nothing issued
	require.NoError(t, h.service.ForgotPassword(ctx, testEmail))
	assert.Empty(t, h.resetTokens.entries)

	// Unknown address: same generic success
	require.NoError(t, h.service.ForgotPassword(ctx, "nobody@example.com"))
	assert.Empty(t, h.resetTokens.entries)

	// Confirmed address: both artifacts issued, one email
	h.users.byID[user.ID].EmailConfirmed = true
	require.NoError(t, h.service.ForgotPassword(ctx, testEmail))
	assert.Len(t, h.resetTokens.entries, 1)
	_, hasCode := h.tokens.slots[slotKey(user.ID, token.PurposePasswordReset)]
	assert.True(t, hasCode)
	assert.Equal(t, mail.TemplatePasswordReset, h.mailQueue.last(t).TemplateName)
}

func TestResetPassword_LinkPathKillsAllSessions(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	ctx := context.Background()
	h.users.byID[user.ID].EmailConfirmed = true
	require.NoError(t, h.service.ForgotPassword(ctx, testEmail))

	linkToken := h.resetTokens.one(t)
	require.NoError(t, h.service.ResetPassword(ctx, ResetPasswordInput{
		Token:       linkToken,
		NewPassword: "brand new passphrase",
	}))

	// Old password dead, new one live
	_, err := h.service.Login(ctx, LoginInput{Login: "member", Password: testPassword})
	assert.Error(t, err)
	_, err = h.service.Login(ctx, LoginInput{Login: "member", Password: "brand new passphrase"})
	assert.NoError(t, err)

	// A reset must kill everything previously issued
	assert.Equal(t, []string{"password_reset"}, h.sessions.invalidatedAll)
	assert.Equal(t, mail.TemplatePasswordChangedNotice, h.mailQueue.last(t).TemplateName)

	// Both artifacts are burned: the counterpart code no longer works
	_, codeStillStored := h.tokens.slots[slotKey(user.ID, token.PurposePasswordReset)]
	assert.False(t, codeStillStored)
}

func TestResetPassword_CodePathWorksWhenLinkAbsent(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	ctx := context.Background()
	h.users.byID[user.ID].EmailConfirmed = true
	require.NoError(t, h.service.ForgotPassword(ctx, testEmail))

	code := h.verificationCode(t, user.ID, token.PurposePasswordReset)
	require.NoError(t, h.service.ResetPassword(ctx, ResetPasswordInput{
		Email:       testEmail,
		Code:        code,
		NewPassword: "brand new passphrase",
	}))

	_, err := h.service.Login(ctx, LoginInput{Login: "member", Password: "brand new passphrase"})
	assert.NoError(t, err)
}

func TestResetPassword_CodePathBurnsTheEmailedLink(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	ctx := context.Background()
	h.users.byID[user.ID].EmailConfirmed = true
	require.NoError(t, h.service.ForgotPassword(ctx, testEmail))
	emailedLink := h.resetTokens.one(t)

	code := h.verificationCode(t, user.ID, token.PurposePasswordReset)
	require.NoError(t, h.service.ResetPassword(ctx, ResetPasswordInput{
		Email:       testEmail,
		Code:        code,
		NewPassword: "brand new passphrase",
	}))

	// The link issued alongside the code must not survive the reset; a
	// second reset through it would undo the one that just happened.
	assert.Empty(t, h.resetTokens.entries)
	err := h.service.ResetPassword(ctx, ResetPasswordInput{
		Token:       emailedLink,
		NewPassword: "attacker chosen phrase",
	})
	require.Error(t, err)
	assert.Equal(t, genericCodeMessage, apperr.As(err).Message)
}

func TestResetPassword_RejectsWithoutAnyArtifact(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	err := h.service.ResetPassword(context.Background(), ResetPasswordInput{
		NewPassword: "brand new passphrase",
	})
	require.Error(t, err)
	assert.Equal(t, genericCodeMessage, apperr.As(err).Message)
}

func TestResetPassword_ClearsStandingLockout(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	ctx := context.Background()
	h.users.byID[user.ID].EmailConfirmed = true

	// Lock the account
	for i := 0; i < MaxFailedAccess; i++ {
		_, _ = h.service.Login(ctx, LoginInput{Login: "member", Password: "wrong"})
	}
	require.True(t, h.users.byID[user.ID].IsLockedOut(time.Now()))

	require.NoError(t, h.service.ForgotPassword(ctx, testEmail))
	require.NoError(t, h.service.ResetPassword(ctx, ResetPasswordInput{
		Token:       h.resetTokens.one(t),
		NewPassword: "brand new passphrase",
	}))

	// The mailbox owner is unlocked immediately
	result, err := h.service.Login(ctx, LoginInput{Login: "member", Password: "brand new passphrase"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthenticated, result.Outcome)
}
