package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores the blob as a single string value.
//
//	Performance: one Redis command per operation.
type Redis struct {
	redis redis.UniversalClient
	key   string
	ttl   time.Duration
}

var _ Adapter = (*Redis)(nil)

// NewRedis creates a Redis-backed adapter. An empty key selects DefaultKey.
// A positive ttl bounds how long an abandoned blob survives in Redis; zero
// keeps it until Clear.
func NewRedis(client redis.UniversalClient, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultKey
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Redis{
		redis: client,
		key:   key,
		ttl:   ttl,
	}
}

func (r *Redis) Name() string { return "redis" }

// Key returns the Redis key the blob is written under.
func (r *Redis) Key() string { return r.key }

func (r *Redis) Save(ctx context.Context, blob []byte) error {
	if err := r.redis.Set(ctx, r.key, blob, r.ttl).Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context) ([]byte, error) {
	data, err := r.redis.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, wrapUnavailable(err)
	}
	return data, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.key).Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}
