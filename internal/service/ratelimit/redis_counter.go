package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the sorted set holding send timestamps.
const DefaultRedisKey = "crm:ratelimit:sent"

// recordLuaScript adds a send and trims entries older than the day window in
// one round trip.
const recordLuaScript = `
local key = KEYS[1]

redis.call("ZADD", key, ARGV[1], ARGV[2])
redis.call("ZREMRANGEBYSCORE", key, "-inf", "(" .. ARGV[3])
redis.call("EXPIRE", key, ARGV[4])
return redis.call("ZCARD", key)
`

// RedisCounter keeps a sorted set of send timestamps in Redis so window
// counts are a ZCOUNT instead of a table scan. It must see every send
// through RecordSent.
type RedisCounter struct {
	client redis.Cmdable
	key    string
	record *redis.Script
}

// NewRedisCounter creates a counter on the given key.
func NewRedisCounter(client redis.Cmdable, key string) *RedisCounter {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisCounter{client: client, key: key, record: redis.NewScript(recordLuaScript)}
}

// CountSentSince implements Counter.
func (c *RedisCounter) CountSentSince(ctx context.Context, since time.Time) (int, error) {
	n, err := c.client.ZCount(ctx, c.key, strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcount %s: %w", c.key, err)
	}
	return int(n), nil
}

// RecordSent implements Recorder. id must be unique per send, e.g. the
// recipient row id, so retries of the same record are not double counted.
func (c *RedisCounter) RecordSent(ctx context.Context, id string, at time.Time) error {
	cutoff := at.Add(-24 * time.Hour).UnixMilli()
	ttl := int64((25 * time.Hour).Seconds())
	if err := c.record.Run(ctx, c.client, []string{c.key}, at.UnixMilli(), id, cutoff, ttl).Err(); err != nil {
		return fmt.Errorf("redis record send: %w", err)
	}
	return nil
}
