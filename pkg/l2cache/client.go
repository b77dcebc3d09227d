// Package l2cache implements the L2 write-behind persistence layer: a
// distributed string->string map client, guarded by a circuit breaker and a
// retry policy, plus the batch writer that flushes the vector's pending
// changes into it on a timer.
//
// The configuration group keeps its historical "Hazelcast" name; the
// concrete backing here is a Redis hash.
package l2cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// MapClient is the abstract distributed cache client: a string->string map
// keyed by fingerprint.
type MapClient interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Entries(ctx context.Context) (map[string]string, error)
}

// RedisMapClient backs MapClient with a single Redis hash, named by
// mapName, so that every alert fingerprint lives as one hash field.
type RedisMapClient struct {
	rdb     *redis.Client
	mapName string
}

// NewRedisMapClient wraps an existing Redis client. mapName corresponds to
// the configured Hazelcast.alertsMapName.
func NewRedisMapClient(rdb *redis.Client, mapName string) *RedisMapClient {
	return &RedisMapClient{rdb: rdb, mapName: mapName}
}

func (c *RedisMapClient) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.HGet(ctx, c.mapName, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisMapClient) Set(ctx context.Context, key, value string) error {
	return c.rdb.HSet(ctx, c.mapName, key, value).Err()
}

func (c *RedisMapClient) Remove(ctx context.Context, key string) error {
	return c.rdb.HDel(ctx, c.mapName, key).Err()
}

func (c *RedisMapClient) Entries(ctx context.Context) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, c.mapName).Result()
}
