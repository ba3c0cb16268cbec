package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"partner-incentives/pkg/rediskey"

	"github.com/redis/go-redis/v9"
)

var windowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// Counter counts events per subject inside a fixed window.
type Counter interface {
	Consume(ctx context.Context, scope, subject string, window time.Duration) (count int, retryAfter time.Duration, err error)
}

// RedisCounter is a fixed-window counter shared by every replica.
type RedisCounter struct {
	client redis.UniversalClient
}

func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client}
}

// Consume records one event for subject and returns how many events the
// current window holds, including this one. A nil client counts nothing.
func (r *RedisCounter) Consume(ctx context.Context, scope, subject string, window time.Duration) (int, time.Duration, error) {
	if r == nil || r.client == nil || window <= 0 {
		return 0, 0, nil
	}

	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	raw, err := windowScript.Run(ctx, r.client, []string{rediskey.BuildRateLimitKey(scope, subject)}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected limiter response shape: %T", raw)
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return int(count), 0, fmt.Errorf("unexpected limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	secs := math.Ceil(float64(ttlMs) / 1000.0)
	return int(count), time.Duration(secs) * time.Second, nil
}
