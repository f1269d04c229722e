// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/yomira-id/internal/platform/apperr"
	"github.com/taibuivan/yomira-id/pkg/pagination"
)

// PostgresStore implements the Store interface using pgx.
//
// Entries live in the system.securelog table. The table has no UPDATE or
// DELETE path in this codebase; retention is an external operations concern.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of the Store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

/*
Append persists a new log entry into the system.securelog table.

Parameters:
  - context: context.Context
  - entry: *Entry

Returns:
  - error: Insert failures
*/
func (store *PostgresStore) Append(context context.Context, entry *Entry) error {
	const query = `
		INSERT INTO system.securelog (
			id, category, action, context, message, useridentifier, encrypteduserinfo, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := store.pool.Exec(context, query,
		entry.ID,
		entry.Category,
		entry.Action,
		entry.Context,
		entry.Message,
		entry.User,
		entry.EncryptedUserInfo,
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_securelog_append_failed: %w", err)
	}

	return nil
}

/*
FindByID retrieves a single log entry, including its encrypted payload.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *Entry: Hydrated log entry
  - error: apperr.NotFound or execution errors
*/
func (store *PostgresStore) FindByID(context context.Context, id string) (*Entry, error) {
	const query = `
		SELECT id, category, action, context, message, useridentifier, COALESCE(encrypteduserinfo, ''), createdat
		FROM system.securelog
		WHERE id = $1`

	entry := &Entry{}
	err := store.pool.QueryRow(context, query, id).Scan(
		&entry.ID,
		&entry.Category,
		&entry.Action,
		&entry.Context,
		&entry.Message,
		&entry.User,
		&entry.EncryptedUserInfo,
		&entry.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Log entry not found")
		}
		return nil, fmt.Errorf("postgres_securelog_find_failed: %w", err)
	}

	return entry, nil
}

/*
List returns log entries newest-first with pagination metadata.

Description: An empty category lists every category; otherwise results are
filtered server-side.

Parameters:
  - context: context.Context
  - category: Category ("" for all)
  - params: pagination.Params

Returns:
  - []*Entry: One page of entries
  - int: Total matching rows
  - error: Query failures
*/
func (store *PostgresStore) List(context context.Context, category Category, params pagination.Params) ([]*Entry, int, error) {
	const countQuery = `
		SELECT COUNT(*) FROM system.securelog
		WHERE ($1 = '' OR category = $1)`

	const listQuery = `
		SELECT id, category, action, context, message, useridentifier, COALESCE(encrypteduserinfo, ''), createdat
		FROM system.securelog
		WHERE ($1 = '' OR category = $1)
		ORDER BY createdat DESC, id DESC
		LIMIT $2 OFFSET $3`

	var total int
	if err := store.pool.QueryRow(context, countQuery, string(category)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres_securelog_count_failed: %w", err)
	}

	rows, err := store.pool.Query(context, listQuery, string(category), params.Limit, params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("postgres_securelog_list_failed: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0, params.Limit)
	for rows.Next() {
		entry := &Entry{}
		if err := rows.Scan(
			&entry.ID,
			&entry.Category,
			&entry.Action,
			&entry.Context,
			&entry.Message,
			&entry.User,
			&entry.EncryptedUserInfo,
			&entry.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("postgres_securelog_scan_failed: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres_securelog_rows_failed: %w", err)
	}

	return entries, total, nil
}
