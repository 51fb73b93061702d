package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the client's sorted set to the window, then records the
// request if the remaining count is below the limit. Runs atomically in Redis.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
	return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisLedger shares windows between replicas through Redis sorted sets
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisLedger creates a ledger on an existing client
func NewRedisLedger(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisLedger {
	limit, window = normalize(limit, window)
	if prefix == "" {
		prefix = "nid:ratelimit:"
	}
	return &RedisLedger{client: client, prefix: prefix, limit: limit, window: window}
}

// DialRedisLedger parses redisURL, connects and verifies the connection
func DialRedisLedger(ctx context.Context, redisURL string, limit int, window time.Duration) (*RedisLedger, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisLedger(client, "", limit, window), nil
}

func (l *RedisLedger) Backend() string { return "redis" }

// Allow implements Ledger
func (l *RedisLedger) Allow(ctx context.Context, client string, now time.Time) (bool, error) {
	res, err := slidingWindow.Run(ctx, l.client,
		[]string{l.prefix + client},
		now.UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}
	return res == 1, nil
}

// Ping checks that Redis is reachable
func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the underlying client
func (l *RedisLedger) Close() error {
	return l.client.Close()
}
