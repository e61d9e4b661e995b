package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each namespace in one redis hash. Every write refreshes the hash TTL so
// abandoned sessions expire on their own.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps rdb. A zero ttl keeps namespaces forever.
func NewRedisStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, namespace, key string) (string, error) {
	if err := validate("get", namespace, key); err != nil {
		return "", err
	}
	value, err := s.rdb.HGet(ctx, s.hashKey(namespace), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", notFoundError("get", namespace, key)
	}
	if err != nil {
		return "", s.wrap("get", namespace, key, err)
	}
	return value, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, namespace, key, value string) error {
	if err := validate("set", namespace, key); err != nil {
		return err
	}
	hash := s.hashKey(namespace)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hash, key, value)
		if s.ttl > 0 {
			pipe.Expire(ctx, hash, s.ttl)
		}
		return nil
	})
	if err != nil {
		return s.wrap("set", namespace, key, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, namespace, key string) error {
	if err := validate("delete", namespace, key); err != nil {
		return err
	}
	if err := s.rdb.HDel(ctx, s.hashKey(namespace), key).Err(); err != nil {
		return s.wrap("delete", namespace, key, err)
	}
	return nil
}

// Ping checks connectivity for health reporting.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailableError("ping", "", "", err)
	}
	return nil
}

func (s *RedisStore) hashKey(namespace string) string {
	return s.prefix + namespace
}

func (s *RedisStore) wrap(op, namespace, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// redis rejects writes with an OOM reply once maxmemory is reached.
	if strings.HasPrefix(err.Error(), "OOM ") {
		return quotaError(op, namespace, key, err)
	}
	return unavailableError(op, namespace, key, err)
}
