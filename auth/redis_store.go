package auth

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the session keys.
const DefaultRedisPrefix = "lectio:"

// RedisStore shares the pair between processes through redis.
type RedisStore struct {
	rdb        redis.UniversalClient
	accessKey  string
	refreshKey string
}

// NewRedisStore stores the pair under <prefix>access_token and <prefix>refresh_token.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		rdb:        rdb,
		accessKey:  prefix + "access_token",
		refreshKey: prefix + "refresh_token",
	}
}

// Get reads both keys with one MGET. A half-present pair is treated as absent.
func (s *RedisStore) Get(ctx context.Context) (*Credential, error) {
	vals, err := s.rdb.MGet(ctx, s.accessKey, s.refreshKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from redis: %w", err)
	}
	access, _ := vals[0].(string)
	refresh, _ := vals[1].(string)
	if access == "" || refresh == "" {
		return nil, nil
	}
	return &Credential{AccessToken: access, RefreshToken: refresh}, nil
}

// Set writes both keys in one MULTI/EXEC transaction.
func (s *RedisStore) Set(ctx context.Context, accessToken, refreshToken string) error {
	if err := validatePair(accessToken, refreshToken); err != nil {
		return err
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.accessKey, accessToken, 0)
		pipe.Set(ctx, s.refreshKey, refreshToken, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store credentials in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.accessKey, s.refreshKey).Err(); err != nil {
		return fmt.Errorf("failed to clear credentials in redis: %w", err)
	}
	return nil
}
