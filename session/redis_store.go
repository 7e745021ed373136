package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key used when NewRedisStore receives an empty key.
const DefaultRedisKey = "authclient:access_token"

// RedisStore persists the access token under one Redis key.
type RedisStore struct {
	redis redis.UniversalClient
	key   string
	ttl   time.Duration
}

// NewRedisStore creates a store writing key with ttl (0 means no expiry).
func NewRedisStore(client redis.UniversalClient, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{
		redis: client,
		key:   key,
		ttl:   ttl,
	}
}

// Key returns the Redis key holding the token.
func (s *RedisStore) Key() string {
	return s.key
}

func (s *RedisStore) Get(ctx context.Context) (string, bool, error) {
	token, err := s.redis.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return token, true, nil
}

func (s *RedisStore) Set(ctx context.Context, token string) error {
	if err := s.redis.Set(ctx, s.key, token, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
