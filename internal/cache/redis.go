package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/authcore/authcore/internal/autherrors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBackend is the primary cache backend. Every call runs under a short
// per-operation timeout so a degraded Redis never stalls the auth hot path.
type RedisBackend struct {
	client    *redis.Client
	opTimeout time.Duration
	logger    *logrus.Logger
}

func NewRedisBackend(client *redis.Client, opTimeout time.Duration, logger *logrus.Logger) *RedisBackend {
	return &RedisBackend{
		client:    client,
		opTimeout: opTimeout,
		logger:    logger,
	}
}

func (b *RedisBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.opTimeout)
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	value, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, autherrors.ErrCacheMiss
	}
	if err != nil {
		b.logger.WithError(err).WithField("key", key).Warn("Redis GET failed")
		return nil, fmt.Errorf("%w: %v", autherrors.ErrCacheUnavailable, err)
	}
	return value, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		b.logger.WithError(err).WithField("key", key).Warn("Redis SET failed")
		return fmt.Errorf("%w: %v", autherrors.ErrCacheUnavailable, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		b.logger.WithError(err).Warn("Redis DEL failed")
		return fmt.Errorf("%w: %v", autherrors.ErrCacheUnavailable, err)
	}
	return nil
}

// DeletePrefix removes every key under prefix via SCAN iteration. Reserved
// for admin/migration paths, so it runs under a longer bound than the
// per-request operations.
func (b *RedisBackend) DeletePrefix(ctx context.Context, prefix string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*b.opTimeout)
	defer cancel()

	iter := b.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := b.client.Del(ctx, iter.Val()).Err(); err != nil {
			b.logger.WithError(err).Warn("Redis DEL failed during prefix delete")
			return fmt.Errorf("%w: %v", autherrors.ErrCacheUnavailable, err)
		}
	}
	if err := iter.Err(); err != nil {
		b.logger.WithError(err).WithField("prefix", prefix).Warn("Redis SCAN failed")
		return fmt.Errorf("%w: %v", autherrors.ErrCacheUnavailable, err)
	}
	return nil
}

var _ Backend = (*RedisBackend)(nil)
