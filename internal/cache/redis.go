package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pending marks a key whose request is still being processed.
const Pending = "pending"

// IdempotencyStore remembers which order an Idempotency-Key produced.
type IdempotencyStore interface {
	// Reserve claims key. When the key is already taken it returns the stored
	// value (Pending or an order id) and false.
	Reserve(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Complete(ctx context.Context, key, orderID string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type RedisStore struct {
	client      *redis.Client
	serviceName string
}

func NewRedisStore(addr, serviceName string) *RedisStore {
	return &RedisStore{
		client:      redis.NewClient(&redis.Options{Addr: addr}),
		serviceName: serviceName,
	}
}

func (r *RedisStore) key(key string) string {
	return fmt.Sprintf("%s:%s:%s", r.serviceName, "create-order", key)
}

func (r *RedisStore) Reserve(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), Pending, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}

	value, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = r.client.SetNX(ctx, r.key(key), Pending, ttl).Result()
		if err != nil {
			return "", false, err
		}
		return Pending, ok, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, false, nil
}

func (r *RedisStore) Complete(ctx context.Context, key, orderID string, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(key), orderID, ttl).Err()
}

func (r *RedisStore) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
