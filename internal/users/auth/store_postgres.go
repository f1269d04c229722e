// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/yomira-id/internal/platform/dberr"
	"github.com/taibuivan/yomira-id/internal/session"
)

// # User Repository

const userColumns = `
	id, username, email, passwordhash, displayname, role,
	emailconfirmed, twofactorenabled, twofactormethod, twofactorenforced,
	authenticatorkey, securitystamp, failedaccesscount, lockoutendat,
	createdat, updatedat`

// PostgresUserRepository implements UserRepository backed by users.account.
// It also implements session.UserDirectory so the session layer can resolve
// and rotate security stamps without importing this package.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

/*
Create persists a new user account.

Parameters:
  - context: context.Context
  - user: *User (ID, SecurityStamp and timestamps must already be set)

Returns:
  - error: Insert failures, including unique-constraint violations
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO users.account (
			id, username, email, passwordhash, displayname, role,
			emailconfirmed, twofactorenabled, twofactormethod, twofactorenforced,
			authenticatorkey, securitystamp, failedaccesscount, lockoutendat,
			createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := repository.pool.Exec(context, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.Role,
		user.EmailConfirmed,
		user.TwoFactorEnabled,
		user.TwoFactorMethod,
		user.TwoFactorEnforced,
		user.AuthenticatorKey,
		user.SecurityStamp,
		user.FailedAccessCount,
		user.LockoutEndAt,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_user_create_failed: %w", err)
	}

	return nil
}

// FindByID retrieves a user by primary key.
func (repository *PostgresUserRepository) FindByID(context context.Context, id string) (*User, error) {
	query := "SELECT " + userColumns + " FROM users.account WHERE id = $1"
	return repository.scanOne(context, query, id)
}

// FindByEmail retrieves a user by normalized email.
func (repository *PostgresUserRepository) FindByEmail(context context.Context, email string) (*User, error) {
	query := "SELECT " + userColumns + " FROM users.account WHERE email = $1"
	return repository.scanOne(context, query, email)
}

// FindByUsername retrieves a user by normalized username.
func (repository *PostgresUserRepository) FindByUsername(context context.Context, username string) (*User, error) {
	query := "SELECT " + userColumns + " FROM users.account WHERE username = $1"
	return repository.scanOne(context, query, username)
}

func (repository *PostgresUserRepository) scanOne(context context.Context, query string, argument any) (*User, error) {
	user := &User{}
	err := repository.pool.QueryRow(context, query, argument).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.Role,
		&user.EmailConfirmed,
		&user.TwoFactorEnabled,
		&user.TwoFactorMethod,
		&user.TwoFactorEnforced,
		&user.AuthenticatorKey,
		&user.SecurityStamp,
		&user.FailedAccessCount,
		&user.LockoutEndAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		return nil, dberr.Wrap(err, "postgres_user_find")
	}

	return user, nil
}

/*
UpdatePassword replaces the password hash.

Parameters:
  - context: context.Context
  - userID: string
  - newHash: string (bcrypt hash)

Returns:
  - error: Update failures
*/
func (repository *PostgresUserRepository) UpdatePassword(context context.Context, userID, newHash string) error {
	const query = `
		UPDATE users.account
		SET passwordhash = $2, updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, newHash)
	if err != nil {
		return fmt.Errorf("postgres_user_update_password_failed: %w", err)
	}

	return nil
}

// MarkEmailConfirmed flips emailconfirmed to true.
func (repository *PostgresUserRepository) MarkEmailConfirmed(context context.Context, userID string) error {
	const query = `
		UPDATE users.account
		SET emailconfirmed = TRUE, updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID)
	if err != nil {
		return fmt.Errorf("postgres_user_confirm_email_failed: %w", err)
	}

	return nil
}

/*
RecordFailedAccess bumps the failed-access counter and arms the lockout when
the threshold is reached.

Description: One atomic statement, so two concurrent failed logins cannot
both read count=4 and leave the account unlocked at 5. The lockout deadline
is set in the same UPDATE that crosses the threshold. An expired lockout
restarts the count at 1: a served lockout buys back the full failure budget,
otherwise a single wrong password would re-lock immediately. Callers reject
active lockouts before ever reaching this statement, so a non-NULL past
deadline is always a served one.

Parameters:
  - context: context.Context
  - userID: string
  - threshold: int (failures that trigger a lockout)
  - lockoutFor: time.Duration

Returns:
  - int: The counter after the increment
  - *time.Time: The lockout deadline, nil while below the threshold
  - error: Update failures
*/
func (repository *PostgresUserRepository) RecordFailedAccess(context context.Context, userID string, threshold int, lockoutFor time.Duration) (int, *time.Time, error) {
	const query = `
		UPDATE users.account
		SET failedaccesscount = next.count,
			lockoutendat = CASE WHEN next.count >= $2 THEN NOW() + $3 ELSE NULL END,
			updatedat = NOW()
		FROM (
			SELECT CASE
				WHEN lockoutendat IS NOT NULL AND lockoutendat <= NOW() THEN 1
				ELSE failedaccesscount + 1
			END AS count
			FROM users.account
			WHERE id = $1
		) AS next
		WHERE id = $1
		RETURNING failedaccesscount, lockoutendat`

	var failedCount int
	var lockedUntil *time.Time
	err := repository.pool.QueryRow(context, query, userID, threshold, lockoutFor).Scan(&failedCount, &lockedUntil)
	if err != nil {
		return 0, nil, fmt.Errorf("postgres_user_record_failed_access_failed: %w", err)
	}

	return failedCount, lockedUntil, nil
}

// ResetAccessFailures clears the counter and lockout after a successful login.
func (repository *PostgresUserRepository) ResetAccessFailures(context context.Context, userID string) error {
	const query = `
		UPDATE users.account
		SET failedaccesscount = 0, lockoutendat = NULL, updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID)
	if err != nil {
		return fmt.Errorf("postgres_user_reset_failures_failed: %w", err)
	}

	return nil
}

/*
SetTwoFactor updates the 2FA configuration.

Parameters:
  - context: context.Context
  - userID: string
  - enabled: bool
  - method: TwoFactorMethod
  - authenticatorKey: string (empty clears the TOTP secret)

Returns:
  - error: Update failures
*/
func (repository *PostgresUserRepository) SetTwoFactor(context context.Context, userID string, enabled bool, method TwoFactorMethod, authenticatorKey string) error {
	const query = `
		UPDATE users.account
		SET twofactorenabled = $2, twofactormethod = $3, authenticatorkey = $4, updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, enabled, method, authenticatorKey)
	if err != nil {
		return fmt.Errorf("postgres_user_set_twofactor_failed: %w", err)
	}

	return nil
}

// SetAuthenticatorKey stores a pending TOTP secret without enabling 2FA.
func (repository *PostgresUserRepository) SetAuthenticatorKey(context context.Context, userID, key string) error {
	const query = `
		UPDATE users.account
		SET authenticatorkey = $2, updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, key)
	if err != nil {
		return fmt.Errorf("postgres_user_set_authenticator_key_failed: %w", err)
	}

	return nil
}

/*
RotateSecurityStamp replaces the security stamp with a fresh value.

Description: Every session snapshots the stamp at creation; rotating it
invalidates all of them on their next resolution.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - string: The new stamp
  - error: Update failures
*/
func (repository *PostgresUserRepository) RotateSecurityStamp(context context.Context, userID string) (string, error) {
	const query = `
		UPDATE users.account
		SET securitystamp = gen_random_uuid()::text, updatedat = NOW()
		WHERE id = $1
		RETURNING securitystamp`

	var stamp string
	if err := repository.pool.QueryRow(context, query, userID).Scan(&stamp); err != nil {
		return "", fmt.Errorf("postgres_user_rotate_stamp_failed: %w", err)
	}

	return stamp, nil
}

// LookupSessionUser returns the snapshot the session layer needs to resolve
// a cookie into an identity.
func (repository *PostgresUserRepository) LookupSessionUser(context context.Context, userID string) (*session.UserSnapshot, error) {
	const query = `
		SELECT id, username, email, role, securitystamp
		FROM users.account
		WHERE id = $1`

	snapshot := &session.UserSnapshot{}
	err := repository.pool.QueryRow(context, query, userID).Scan(
		&snapshot.ID,
		&snapshot.Username,
		&snapshot.Email,
		&snapshot.Role,
		&snapshot.SecurityStamp,
	)

	if err != nil {
		return nil, dberr.Wrap(err, "postgres_user_session_lookup")
	}

	return snapshot, nil
}

// EmailByID resolves just the email address, for audit attribution.
func (repository *PostgresUserRepository) EmailByID(context context.Context, userID string) (string, error) {
	const query = "SELECT email FROM users.account WHERE id = $1"

	var email string
	if err := repository.pool.QueryRow(context, query, userID).Scan(&email); err != nil {
		return "", dberr.Wrap(err, "postgres_user_email_lookup")
	}

	return email, nil
}

// # Recovery Code Repository

// PostgresRecoveryCodeRepository implements RecoveryCodeRepository backed by
// users.recoverycode.
type PostgresRecoveryCodeRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRecoveryCodeRepository creates a new PostgreSQL implementation of the RecoveryCodeRepository.
func NewPostgresRecoveryCodeRepository(pool *pgxpool.Pool) *PostgresRecoveryCodeRepository {
	return &PostgresRecoveryCodeRepository{pool: pool}
}

/*
Replace swaps the user's entire recovery code set in one transaction.

Parameters:
  - context: context.Context
  - userID: string
  - codeHashes: []string (bcrypt hashes; empty clears the set)

Returns:
  - error: Transaction failures
*/
func (repository *PostgresRecoveryCodeRepository) Replace(context context.Context, userID string, codeHashes []string) error {
	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres_recoverycode_begin_failed: %w", err)
	}
	defer transaction.Rollback(context)

	if _, err := transaction.Exec(context, "DELETE FROM users.recoverycode WHERE userid = $1", userID); err != nil {
		return fmt.Errorf("postgres_recoverycode_clear_failed: %w", err)
	}

	const insert = `
		INSERT INTO users.recoverycode (id, userid, codehash, isused, createdat)
		VALUES (gen_random_uuid()::text, $1, $2, FALSE, NOW())`

	for _, hash := range codeHashes {
		if _, err := transaction.Exec(context, insert, userID, hash); err != nil {
			return fmt.Errorf("postgres_recoverycode_insert_failed: %w", err)
		}
	}

	if err := transaction.Commit(context); err != nil {
		return fmt.Errorf("postgres_recoverycode_commit_failed: %w", err)
	}

	return nil
}

// ListActive returns the user's unused recovery codes.
func (repository *PostgresRecoveryCodeRepository) ListActive(context context.Context, userID string) ([]*RecoveryCode, error) {
	const query = `
		SELECT id, userid, codehash, isused, createdat
		FROM users.recoverycode
		WHERE userid = $1 AND isused = FALSE`

	rows, err := repository.pool.Query(context, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_recoverycode_list_failed: %w", err)
	}
	defer rows.Close()

	codes := make([]*RecoveryCode, 0, RecoveryCodeCount)
	for rows.Next() {
		code := &RecoveryCode{}
		if err := rows.Scan(&code.ID, &code.UserID, &code.CodeHash, &code.IsUsed, &code.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres_recoverycode_scan_failed: %w", err)
		}
		codes = append(codes, code)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_recoverycode_rows_failed: %w", err)
	}

	return codes, nil
}

/*
MarkUsed burns a recovery code.

Description: The WHERE clause re-checks isused, so two concurrent logins
presenting the same code race on the row and exactly one wins.

Parameters:
  - context: context.Context
  - codeID: string

Returns:
  - bool: Whether this call consumed the code
  - error: Update failures
*/
func (repository *PostgresRecoveryCodeRepository) MarkUsed(context context.Context, codeID string) (bool, error) {
	const query = `
		UPDATE users.recoverycode
		SET isused = TRUE
		WHERE id = $1 AND isused = FALSE`

	tag, err := repository.pool.Exec(context, query, codeID)
	if err != nil {
		return false, fmt.Errorf("postgres_recoverycode_mark_used_failed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}
