// Package cache provides Redis-backed caching for taxonomy reads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// RedisCache stores descendant id sets per tag. Keys embed a generation
// number; bumping it on every taxonomy seed orphans all earlier entries,
// which then expire on their own.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisCacheWithClient(client), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "forum:taxonomy:",
		ttl:    defaultTTL,
	}
}

func (c *RedisCache) generationKey() string {
	return c.prefix + "generation"
}

func (c *RedisCache) generation(ctx context.Context) (int64, error) {
	raw, err := c.client.Get(ctx, c.generationKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read taxonomy generation: %w", err)
	}
	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse taxonomy generation: %w", err)
	}
	return gen, nil
}

func (c *RedisCache) descendantsKey(gen int64, tagID string, includeSelf bool) string {
	scope := "strict"
	if includeSelf {
		scope = "self"
	}
	return fmt.Sprintf("%s%d:descendants:%s:%s", c.prefix, gen, scope, tagID)
}

// Descendants returns the cached ids for tagID; ok is false on a miss.
func (c *RedisCache) Descendants(ctx context.Context, tagID string, includeSelf bool) ([]string, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.client.Get(ctx, c.descendantsKey(gen, tagID, includeSelf)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup descendants: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false, fmt.Errorf("unmarshal descendants: %w", err)
	}
	return ids, true, nil
}

func (c *RedisCache) StoreDescendants(ctx context.Context, tagID string, includeSelf bool, ids []string) error {
	gen, err := c.generation(ctx)
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal descendants: %w", err)
	}
	if err := c.client.Set(ctx, c.descendantsKey(gen, tagID, includeSelf), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("save descendants: %w", err)
	}
	return nil
}

// Invalidate starts a new generation so no earlier entry is read again.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("bump taxonomy generation: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
