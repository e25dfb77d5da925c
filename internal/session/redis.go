package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix = "session:"
	epochPrefix   = "epoch:"
)

// RedisCache stores session entries in Redis. Single-key commands are
// atomic on the server, which gives Consume its exactly-once property
// via GETDEL.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	return &RedisCache{rdb: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func (c *RedisCache) Register(ctx context.Context, jti string, e Entry, ttl time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("session: marshal entry: %w", err)
	}
	return c.rdb.Set(ctx, sessionPrefix+jti, data, ttl).Err()
}

func (c *RedisCache) Consume(ctx context.Context, jti string) (*Entry, error) {
	data, err := c.rdb.GetDel(ctx, sessionPrefix+jti).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("session: unmarshal entry: %w", err)
	}
	return &e, nil
}

func (c *RedisCache) Revoke(ctx context.Context, jti string) error {
	return c.rdb.Del(ctx, sessionPrefix+jti).Err()
}

func (c *RedisCache) Epoch(ctx context.Context, userID uint) (int64, error) {
	v, err := c.rdb.Get(ctx, epochKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *RedisCache) BumpEpoch(ctx context.Context, userID uint) (int64, error) {
	return c.rdb.Incr(ctx, epochKey(userID)).Result()
}

func epochKey(userID uint) string {
	return fmt.Sprintf("%s%d", epochPrefix, userID)
}
