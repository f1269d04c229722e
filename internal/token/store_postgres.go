// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/yomira-id/internal/platform/apperr"
)

// PostgresStore implements the Store interface using pgx.
//
// Slots live in users.usertoken with a composite primary key (userid, purpose),
// which makes the one-slot-per-purpose invariant a schema property rather than
// application bookkeeping.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of the Store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

/*
Upsert writes the slot, overwriting any existing token for the same purpose.

Description: ON CONFLICT replaces the full row, which is the implicit
"Replaced" transition: the prior code becomes unusable in the same statement.

Parameters:
  - context: context.Context
  - token: *TemporaryToken

Returns:
  - error: Write failures
*/
func (store *PostgresStore) Upsert(context context.Context, token *TemporaryToken) error {
	const query = `
		INSERT INTO users.usertoken (
			userid, purpose, codehash, expiresat, failedattempts, maxattempts, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (userid, purpose) DO UPDATE SET
			codehash = EXCLUDED.codehash,
			expiresat = EXCLUDED.expiresat,
			failedattempts = EXCLUDED.failedattempts,
			maxattempts = EXCLUDED.maxattempts,
			createdat = EXCLUDED.createdat`

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	_, err := store.pool.Exec(context, query,
		token.UserID,
		token.Purpose,
		token.CodeHash,
		token.ExpiresAt,
		token.FailedAttempts,
		token.MaxAttempts,
		token.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_usertoken_upsert_failed: %w", err)
	}

	return nil
}

/*
Find retrieves the slot for (userID, purpose).

Parameters:
  - context: context.Context
  - userID: string
  - purpose: Purpose

Returns:
  - *TemporaryToken: Hydrated slot
  - error: apperr.NotFound or execution errors
*/
func (store *PostgresStore) Find(context context.Context, userID string, purpose Purpose) (*TemporaryToken, error) {
	const query = `
		SELECT userid, purpose, codehash, expiresat, failedattempts, maxattempts, createdat
		FROM users.usertoken
		WHERE userid = $1 AND purpose = $2`

	token := &TemporaryToken{}
	err := store.pool.QueryRow(context, query, userID, purpose).Scan(
		&token.UserID,
		&token.Purpose,
		&token.CodeHash,
		&token.ExpiresAt,
		&token.FailedAttempts,
		&token.MaxAttempts,
		&token.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Token")
		}
		return nil, fmt.Errorf("postgres_usertoken_find_failed: %w", err)
	}

	return token, nil
}

/*
Delete removes the slot unconditionally (idempotent).

Parameters:
  - context: context.Context
  - userID: string
  - purpose: Purpose

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) Delete(context context.Context, userID string, purpose Purpose) error {
	const query = "DELETE FROM users.usertoken WHERE userid = $1 AND purpose = $2"

	_, err := store.pool.Exec(context, query, userID, purpose)
	if err != nil {
		return fmt.Errorf("postgres_usertoken_delete_failed: %w", err)
	}

	return nil
}

/*
ConsumeMatching deletes the slot only if the stored hash matches.

Description: Single conditional DELETE — validation and consumption happen in
one statement, so two concurrent requests with the correct code can never both
succeed.

Parameters:
  - context: context.Context
  - userID: string
  - purpose: Purpose
  - codeHash: []byte (SHA-256 of the submitted code)

Returns:
  - bool: true when a row was consumed
  - error: Execution errors
*/
func (store *PostgresStore) ConsumeMatching(context context.Context, userID string, purpose Purpose, codeHash []byte) (bool, error) {
	const query = `
		DELETE FROM users.usertoken
		WHERE userid = $1 AND purpose = $2 AND codehash = $3`

	tag, err := store.pool.Exec(context, query, userID, purpose, codeHash)
	if err != nil {
		return false, fmt.Errorf("postgres_usertoken_consume_failed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

/*
IncrementFailed atomically bumps the failed-attempt counter.

Parameters:
  - context: context.Context
  - userID: string
  - purpose: Purpose

Returns:
  - int: The new failed-attempt count
  - error: apperr.NotFound when the slot vanished, or execution errors
*/
func (store *PostgresStore) IncrementFailed(context context.Context, userID string, purpose Purpose) (int, error) {
	const query = `
		UPDATE users.usertoken
		SET failedattempts = failedattempts + 1
		WHERE userid = $1 AND purpose = $2
		RETURNING failedattempts`

	var attempts int
	err := store.pool.QueryRow(context, query, userID, purpose).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperr.NotFound("Token")
		}
		return 0, fmt.Errorf("postgres_usertoken_increment_failed: %w", err)
	}

	return attempts, nil
}
