// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/yomira-id/internal/platform/constants"
	"github.com/taibuivan/yomira-id/internal/platform/dberr"
)

// # Link Token Repository

// RedisLinkTokenRepository implements LinkTokenRepository on Redis.
//
// One implementation serves both emailed-link flows; the key prefix decides
// which namespace a repository instance writes to. Expiry is delegated to
// Redis TTLs, so stale tokens never need sweeping.
//
// Each entry is a key pair: token -> user ID for redemption, and a reverse
// index user ID -> token so the token can be burned by user alone. The code
// path of each dual-artifact flow never sees the link value, yet must
// destroy it on success.
type RedisLinkTokenRepository struct {
	client *redis.Client
	prefix string
}

// userKey is the reverse-index key holding the user's live token value.
func (repository *RedisLinkTokenRepository) userKey(userID string) string {
	return repository.prefix + "user:" + userID
}

// NewResetTokenRepository creates the repository for password-reset link tokens.
func NewResetTokenRepository(client *redis.Client) *RedisLinkTokenRepository {
	return &RedisLinkTokenRepository{client: client, prefix: constants.RedisPrefixResetToken}
}

// NewVerificationTokenRepository creates the repository for email-verification link tokens.
func NewVerificationTokenRepository(client *redis.Client) *RedisLinkTokenRepository {
	return &RedisLinkTokenRepository{client: client, prefix: constants.RedisPrefixVerifyToken}
}

/*
Set stores a link token mapped to its user with a TTL.

Description: Any earlier token of the same user is deleted first; re-issuing
replaces, never accumulates. Both directions of the key pair carry the same
TTL.

Parameters:
  - context: context.Context
  - token: string (the opaque emailed token)
  - userID: string
  - ttl: time.Duration

Returns:
  - error: Redis failures
*/
func (repository *RedisLinkTokenRepository) Set(context context.Context, token, userID string, ttl time.Duration) error {
	if previous, err := repository.client.Get(context, repository.userKey(userID)).Result(); err == nil {
		_ = repository.client.Del(context, repository.prefix+previous).Err()
	}

	pipeline := repository.client.TxPipeline()
	pipeline.Set(context, repository.prefix+token, userID, ttl)
	pipeline.Set(context, repository.userKey(userID), token, ttl)
	if _, err := pipeline.Exec(context); err != nil {
		return fmt.Errorf("redis_link_token_set_failed: %w", err)
	}

	return nil
}

/*
Get resolves a link token to its user ID.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - string: The user ID the token was issued for
  - error: dberr.ErrNotFound when the token is absent or expired
*/
func (repository *RedisLinkTokenRepository) Get(context context.Context, token string) (string, error) {
	userID, err := repository.client.Get(context, repository.prefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", dberr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis_link_token_get_failed: %w", err)
	}

	return userID, nil
}

// Delete removes a link token and its reverse index. Deleting an absent
// token is not an error.
func (repository *RedisLinkTokenRepository) Delete(context context.Context, token string) error {
	if userID, err := repository.client.Get(context, repository.prefix+token).Result(); err == nil {
		_ = repository.client.Del(context, repository.userKey(userID)).Err()
	}

	if err := repository.client.Del(context, repository.prefix+token).Err(); err != nil {
		return fmt.Errorf("redis_link_token_delete_failed: %w", err)
	}

	return nil
}

// DeleteForUser burns the user's live token via the reverse index. Absence
// is a success: the token may simply have expired.
func (repository *RedisLinkTokenRepository) DeleteForUser(context context.Context, userID string) error {
	token, err := repository.client.Get(context, repository.userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis_link_token_lookup_failed: %w", err)
	}

	if err := repository.client.Del(context, repository.prefix+token, repository.userKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis_link_token_delete_failed: %w", err)
	}

	return nil
}
