package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ResetTokenTTL bounds the lifetime of a password reset link.
const ResetTokenTTL = time.Hour

// TokenStore issues single-use password reset tokens.
type TokenStore interface {
	Issue(ctx context.Context, userID int64) (string, error)
	Consume(ctx context.Context, token string) (int64, error)
}

// RedisTokenStore keeps reset tokens in Redis under pwreset:<token>.
type RedisTokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTokenStore constructs a RedisTokenStore.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client, ttl: ResetTokenTTL}
}

// Issue stores a fresh token for userID.
func (s *RedisTokenStore) Issue(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, resetKey(token), userID, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Consume returns the profile bound to token and deletes it atomically.
func (s *RedisTokenStore) Consume(ctx context.Context, token string) (int64, error) {
	if _, err := uuid.Parse(token); err != nil {
		return 0, ErrResetTokenInvalid
	}
	raw, err := s.client.GetDel(ctx, resetKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrResetTokenInvalid
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrResetTokenInvalid
	}
	return id, nil
}

func resetKey(token string) string {
	return "pwreset:" + token
}

var _ TokenStore = (*RedisTokenStore)(nil)
