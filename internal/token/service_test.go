// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package token_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-id/internal/platform/apperr"
	"github.com/taibuivan/yomira-id/internal/token"
)

// fakeStore is an in-memory Store mirroring the conditional SQL semantics.
type fakeStore struct {
	mu    sync.Mutex
	slots map[string]*token.TemporaryToken
}

func newFakeStore() *fakeStore {
	return &fakeStore{slots: make(map[string]*token.TemporaryToken)}
}

func slotKey(userID string, purpose token.Purpose) string {
	return userID + "/" + string(purpose)
}

func (store *fakeStore) Upsert(_ context.Context, temporaryToken *token.TemporaryToken) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	copied := *temporaryToken
	store.slots[slotKey(temporaryToken.UserID, temporaryToken.Purpose)] = &copied
	return nil
}

func (store *fakeStore) Find(_ context.Context, userID string, purpose token.Purpose) (*token.TemporaryToken, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	slot, found := store.slots[slotKey(userID, purpose)]
	if !found {
		return nil, apperr.NotFound("Token")
	}
	copied := *slot
	return &copied, nil
}

func (store *fakeStore) Delete(_ context.Context, userID string, purpose token.Purpose) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.slots, slotKey(userID, purpose))
	return nil
}

func (store *fakeStore) ConsumeMatching(_ context.Context, userID string, purpose token.Purpose, codeHash []byte) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	slot, found := store.slots[slotKey(userID, purpose)]
	if !found || !bytes.Equal(slot.CodeHash, codeHash) {
		return false, nil
	}
	delete(store.slots, slotKey(userID, purpose))
	return true, nil
}

func (store *fakeStore) IncrementFailed(_ context.Context, userID string, purpose token.Purpose) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	slot, found := store.slots[slotKey(userID, purpose)]
	if !found {
		return 0, apperr.NotFound("Token")
	}
	slot.FailedAttempts++
	return slot.FailedAttempts, nil
}

// recordingAudit captures the action names written by the service.
type recordingAudit struct {
	actions []string
}

func (a *recordingAudit) Audit(_ context.Context, action, _, _, _ string) {
	a.actions = append(a.actions, action)
}

func (a *recordingAudit) Error(_ context.Context, action, _, _, _ string) {
	a.actions = append(a.actions, action)
}

func (a *recordingAudit) last() string {
	if len(a.actions) == 0 {
		return ""
	}
	return a.actions[len(a.actions)-1]
}

func newTestService() (*token.Service, *fakeStore, *recordingAudit) {
	store := newFakeStore()
	auditLog := &recordingAudit{}
	return token.NewService(store, auditLog), store, auditLog
}

const (
	testUserID = "0198c6b1-0000-7000-8000-000000000001"
	testEmail  = "member@example.com"
)

func TestValidateAndConsume_SingleUse(t *testing.T) {
	service, _, auditLog := newTestService()
	ctx := context.Background()

	// 1. Store a fresh code
	err := service.StoreToken(ctx, testUserID, testEmail, token.PurposeEmailVerification, "482913", 10*time.Minute)
	require.NoError(t, err)

	// 2. First validation consumes the slot
	assert.True(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposeEmailVerification, "482913"))
	assert.Equal(t, "token_validation_succeeded", auditLog.last())

	// 3. Replay with the identical code must fail
	assert.False(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposeEmailVerification, "482913"))
	assert.Equal(t, "token_validation_no_token", auditLog.last())
}

func TestValidateAndConsume_MissingSlot(t *testing.T) {
	service, _, auditLog := newTestService()

	assert.False(t, service.ValidateAndConsume(context.Background(), testUserID, testEmail, token.PurposePasswordReset, "111111"))
	assert.Equal(t, "token_validation_no_token", auditLog.last())
}

func TestValidateAndConsume_ExpiredRemovesSlot(t *testing.T) {
	service, store, auditLog := newTestService()
	ctx := context.Background()

	// Already-elapsed TTL: the token is born expired
	require.NoError(t, service.StoreToken(ctx, testUserID, testEmail, token.PurposePasswordReset, "482913", -1*time.Second))

	// 1. Expired validation fails and removes the slot
	assert.False(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposePasswordReset, "482913"))
	assert.Equal(t, "token_validation_expired", auditLog.last())

	// 2. The slot is gone, not merely expired
	_, err := store.Find(ctx, testUserID, token.PurposePasswordReset)
	assert.Error(t, err)

	// 3. Even the correct code fails afterwards
	assert.False(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposePasswordReset, "482913"))
	assert.Equal(t, "token_validation_no_token", auditLog.last())
}

func TestValidateAndConsume_AttemptExhaustion(t *testing.T) {
	service, _, auditLog := newTestService()
	ctx := context.Background()

	require.NoError(t, service.StoreToken(ctx, testUserID, testEmail, token.PurposeEmailTwoFactorLogin, "482913", 10*time.Minute))

	// 1. Three wrong codes burn the attempt budget
	for i := 0; i < 3; i++ {
		assert.False(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposeEmailTwoFactorLogin, "000000"))
		assert.Equal(t, "token_validation_mismatch", auditLog.last())
	}

	// 2. The fourth attempt fails even with the CORRECT code
	assert.False(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposeEmailTwoFactorLogin, "482913"))
	assert.Equal(t, "token_validation_exhausted", auditLog.last())
}

func TestStoreToken_ReplacesExistingSlot(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	// 1. Store a first code, then overwrite it
	require.NoError(t, service.StoreToken(ctx, testUserID, testEmail, token.PurposeEmailTwoFactorSetup, "111111", 10*time.Minute))
	require.NoError(t, service.StoreToken(ctx, testUserID, testEmail, token.PurposeEmailTwoFactorSetup, "222222", 10*time.Minute))

	// 2. The replaced code is dead; only the new one works
	assert.False(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposeEmailTwoFactorSetup, "111111"))
	assert.True(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposeEmailTwoFactorSetup, "222222"))
}

func TestStoreToken_ReplacementResetsAttempts(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	// 1. Burn two attempts against the first code
	require.NoError(t, service.StoreToken(ctx, testUserID, testEmail, token.PurposeEmailVerification, "111111", 10*time.Minute))
	assert.False(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposeEmailVerification, "999999"))
	assert.False(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposeEmailVerification, "999999"))

	// 2. A fresh code gets a fresh attempt budget
	require.NoError(t, service.StoreToken(ctx, testUserID, testEmail, token.PurposeEmailVerification, "222222", 10*time.Minute))
	assert.False(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposeEmailVerification, "999999"))
	assert.False(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposeEmailVerification, "999999"))
	assert.True(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposeEmailVerification, "222222"))
}

func TestValidateAndConsume_PurposesAreIsolated(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, service.StoreToken(ctx, testUserID, testEmail, token.PurposeEmailVerification, "482913", 10*time.Minute))

	// A login-2FA validation must not see the verification slot
	assert.False(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposeEmailTwoFactorLogin, "482913"))
	assert.True(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposeEmailVerification, "482913"))
}

func TestStoreToken_RejectsUnknownPurpose(t *testing.T) {
	service, _, _ := newTestService()

	err := service.StoreToken(context.Background(), testUserID, testEmail, token.Purpose("Bogus"), "482913", time.Minute)
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
}

func TestRemoveToken_Idempotent(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, service.StoreToken(ctx, testUserID, testEmail, token.PurposePasswordReset, "482913", time.Minute))

	assert.NoError(t, service.RemoveToken(ctx, testUserID, token.PurposePasswordReset))
	// Removing an absent slot is still a success
	assert.NoError(t, service.RemoveToken(ctx, testUserID, token.PurposePasswordReset))

	assert.False(t, service.ValidateAndConsume(ctx, testUserID, testEmail, token.PurposePasswordReset, "482913"))
}
