// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package token

import "context"

// Store defines the persistence contract for temporary token slots.
//
// # Atomicity
//
// ConsumeMatching and IncrementFailed exist so the validate-and-consume cycle
// never degrades into a read-modify-write race: both are single conditional
// statements at the storage layer. Concurrent validations of the same slot
// resolve to exactly one winner.
type Store interface {
	// Upsert writes the slot for (token.UserID, token.Purpose), overwriting
	// any existing token for that purpose.
	Upsert(context context.Context, token *TemporaryToken) error

	// Find retrieves the slot, or apperr.NotFound when absent.
	Find(context context.Context, userID string, purpose Purpose) (*TemporaryToken, error)

	// Delete removes the slot unconditionally. Deleting an absent slot is not
	// an error (idempotent).
	Delete(context context.Context, userID string, purpose Purpose) error

	// ConsumeMatching deletes the slot only if its stored hash equals codeHash.
	// It reports whether a row was actually consumed.
	ConsumeMatching(context context.Context, userID string, purpose Purpose, codeHash []byte) (bool, error)

	// IncrementFailed atomically bumps the failed-attempt counter and returns
	// the new value.
	IncrementFailed(context context.Context, userID string, purpose Purpose) (int, error)
}
