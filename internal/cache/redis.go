package cache

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisInvalidator deletes cache keys from Redis. Errors are logged and
// dropped; a failed invalidation must never fail the committed operation.
type RedisInvalidator struct {
	rdb *redis.Client
}

func NewRedisInvalidator(rdb *redis.Client) *RedisInvalidator {
	return &RedisInvalidator{rdb: rdb}
}

func (i *RedisInvalidator) Clear(ctx context.Context, namespace, key string) {
	err := i.rdb.Del(ctx, Key(namespace, key)).Err()
	if err != nil {
		slog.Warn("cache invalidation failed",
			"namespace", namespace,
			"key", key,
			"error", err,
		)
	}
}
