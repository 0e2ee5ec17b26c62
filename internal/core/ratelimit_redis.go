package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRedisURL        = errors.New("redis: connection URL must use redis:// or rediss://")
	ErrRedisConnection = errors.New("redis: failed to establish connection")
)

// fixedWindowScript increments the counter and starts the window on the first
// hit. It returns {count, pttl_ms}.
var fixedWindowScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {c, ttl}
`)

// OpenRedis parses url, connects and pings, retrying a few times with a
// linear backoff.
func OpenRedis(ctx context.Context, url string) (redis.UniversalClient, error) {
	if !strings.HasPrefix(url, "redis://") && !strings.HasPrefix(url, "rediss://") {
		return nil, ErrRedisURL
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Join(ErrRedisURL, err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	const attempts = 3
	var lastErr error
	for i := range attempts {
		client := redis.NewClient(opts)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisConnection, ctx.Err())
		case <-time.After(time.Duration(i+1) * time.Second):
		}
	}
	return nil, errors.Join(ErrRedisConnection, lastErr)
}

// RedisRateLimitStore shares fixed-window counters between replicas.
type RedisRateLimitStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRateLimitStore wraps an open client. Keys are namespaced by prefix.
func NewRedisRateLimitStore(client redis.UniversalClient, prefix string) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client, prefix: prefix}
}

// IncrementAndCheck implements RateLimitStore.
func (s *RedisRateLimitStore) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	vals, err := fixedWindowScript.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(vals) != 2 {
		return RateLimitResult{}, fmt.Errorf("redis rate limit: unexpected reply length %d", len(vals))
	}

	count, ttl := int(vals[0]), time.Duration(vals[1])*time.Millisecond
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   count <= limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}

// Close releases the connection pool.
func (s *RedisRateLimitStore) Close() error {
	return s.client.Close()
}

// RedisHealthProbe pings Redis for GET /health.
type RedisHealthProbe struct {
	Client redis.UniversalClient
}

// Name implements HealthProbe.
func (p RedisHealthProbe) Name() string { return "redis" }

// Check implements HealthProbe.
func (p RedisHealthProbe) Check(ctx context.Context) error {
	if p.Client == nil {
		return errors.New("redis client not configured")
	}
	return p.Client.Ping(ctx).Err()
}
