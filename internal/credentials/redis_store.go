package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
)

// RedisStore keeps the pair in a Redis hash.
type RedisStore struct {
	rdb redis.UniversalClient
	key string
}

// NewRedisStore creates a store writing to the hash at key.
func NewRedisStore(rdb redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = "gymapp:credentials"
	}
	return &RedisStore{rdb: rdb, key: key}
}

func (r *RedisStore) Get(ctx context.Context) (*Pair, error) {
	vals, err := r.rdb.HMGet(ctx, r.key, fieldAccessToken, fieldRefreshToken).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read credentials from redis: %w", err)
	}

	access, _ := vals[0].(string)
	refresh, _ := vals[1].(string)
	if access == "" && refresh == "" {
		return nil, ErrNotFound
	}
	return &Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// Save writes both fields in one transaction so readers never see a mixed pair.
func (r *RedisStore) Save(ctx context.Context, pair Pair) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		pipe.HSet(ctx, r.key, fieldAccessToken, pair.AccessToken, fieldRefreshToken, pair.RefreshToken)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store credentials in redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to clear credentials in redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Name() string {
	return fmt.Sprintf("RedisStore(%s)", r.key)
}
