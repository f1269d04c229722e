// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package audit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-id/internal/audit"
	"github.com/taibuivan/yomira-id/internal/platform/apperr"
	"github.com/taibuivan/yomira-id/internal/privacy"
	"github.com/taibuivan/yomira-id/pkg/pagination"
)

// fakeStore is an in-memory Store for service-level tests.
type fakeStore struct {
	entries []*audit.Entry
}

func (store *fakeStore) Append(_ context.Context, entry *audit.Entry) error {
	store.entries = append(store.entries, entry)
	return nil
}

func (store *fakeStore) FindByID(_ context.Context, id string) (*audit.Entry, error) {
	for _, entry := range store.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return nil, apperr.NotFound("Log entry")
}

func (store *fakeStore) List(_ context.Context, category audit.Category, params pagination.Params) ([]*audit.Entry, int, error) {
	matched := make([]*audit.Entry, 0)
	for _, entry := range store.entries {
		if category == "" || entry.Category == category {
			matched = append(matched, entry)
		}
	}
	return matched, len(matched), nil
}

func newTestAudit() (*audit.Service, *fakeStore, *privacy.Service) {
	store := &fakeStore{}
	protector := privacy.NewService("pseudonym-secret", "encryption-secret")
	return audit.NewService(store, protector), store, protector
}

func TestAudit_PseudonymizesAndEncrypts(t *testing.T) {
	service, store, protector := newTestAudit()

	// 1. Record an audit event for a real identifier
	service.Audit(context.Background(), "login_succeeded", "auth", "Login completed", "member@example.com")
	require.Len(t, store.entries, 1)
	entry := store.entries[0]

	// 2. The user column must be the pseudonym, never the raw email
	assert.Equal(t, protector.PseudonymizeEmail("member@example.com"), entry.User)
	assert.NotContains(t, entry.User, "member@")

	// 3. The encrypted column must decrypt back to the raw email
	require.NotEmpty(t, entry.EncryptedUserInfo)
	plaintext, err := protector.DecryptUserInfo(entry.EncryptedUserInfo)
	require.NoError(t, err)
	assert.Equal(t, "member@example.com", plaintext)

	assert.Equal(t, audit.CategoryAudit, entry.Category)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestAudit_EmptyIdentifierDefaultsToAnonymous(t *testing.T) {
	service, store, _ := newTestAudit()

	service.Audit(context.Background(), "login_rejected", "auth", "Unknown account", "")
	require.Len(t, store.entries, 1)

	assert.Equal(t, "anonymous", store.entries[0].User)
	assert.Empty(t, store.entries[0].EncryptedUserInfo)
}

func TestSystem_NoEncryptedInfo(t *testing.T) {
	service, store, _ := newTestAudit()

	service.System(context.Background(), "dispatcher_started", "mail", "Dispatcher loop started")
	require.Len(t, store.entries, 1)

	entry := store.entries[0]
	assert.Equal(t, "system", entry.User)
	assert.Equal(t, audit.CategorySystem, entry.Category)
	assert.Empty(t, entry.EncryptedUserInfo)
}

func TestRevealUserInfo_RoundTrip(t *testing.T) {
	service, store, _ := newTestAudit()

	// 1. Seed an audit entry with an encrypted identifier
	service.Audit(context.Background(), "login_failed", "auth", "Wrong password", "member@example.com")
	require.Len(t, store.entries, 1)
	targetID := store.entries[0].ID

	// 2. Reveal with a justification
	plaintext, err := service.RevealUserInfo(context.Background(), targetID, "admin@yomira.app", "Abuse investigation #4411")
	require.NoError(t, err)
	assert.Equal(t, "member@example.com", plaintext)

	// 3. The reveal itself must have produced a second AUDIT entry naming the admin
	require.Len(t, store.entries, 2)
	revealEntry := store.entries[1]
	assert.Equal(t, "securelog_user_info_revealed", revealEntry.Action)
	assert.Contains(t, revealEntry.Message, targetID)
	assert.Contains(t, revealEntry.Message, "Abuse investigation #4411")
	assert.NotEqual(t, "anonymous", revealEntry.User)
}

func TestRevealUserInfo_RequiresJustification(t *testing.T) {
	service, store, _ := newTestAudit()

	service.Audit(context.Background(), "login_failed", "auth", "Wrong password", "member@example.com")
	targetID := store.entries[0].ID

	_, err := service.RevealUserInfo(context.Background(), targetID, "admin@yomira.app", "")
	require.Error(t, err)

	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "VALIDATION_ERROR", appError.Code)

	// No reveal entry was written
	assert.Len(t, store.entries, 1)
}

func TestRevealUserInfo_SystemEntryHasNothingToReveal(t *testing.T) {
	service, store, _ := newTestAudit()

	service.System(context.Background(), "dispatcher_started", "mail", "Dispatcher loop started")
	targetID := store.entries[0].ID

	_, err := service.RevealUserInfo(context.Background(), targetID, "admin@yomira.app", "Routine check")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)
}

func TestList_RejectsUnknownCategory(t *testing.T) {
	service, _, _ := newTestAudit()

	_, _, err := service.List(context.Background(), "BOGUS", pagination.Params{Page: 1, Limit: 20})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
}

func TestList_FiltersByCategory(t *testing.T) {
	service, _, _ := newTestAudit()

	service.Audit(context.Background(), "a", "auth", "m", "member@example.com")
	service.System(context.Background(), "b", "mail", "m")

	entries, total, err := service.List(context.Background(), "SYSTEM", pagination.Params{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.CategorySystem, entries[0].Category)
}
