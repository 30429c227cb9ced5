package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const hitScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

var hitLua = redis.NewScript(hitScript)

// Config holds limiter tuning parameters.
type Config struct {
	Limit  int
	Window time.Duration
	Prefix string
}

// Decision is the result of one counted request.
type Decision struct {
	Allowed    bool
	Count      int64
	Remaining  int
	RetryAfter time.Duration
}

// Limiter enforces a fixed number of requests per window for each origin.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "obrl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) key(origin string) string {
	return l.config.Prefix + ":" + origin
}

// Allow counts one request for origin. When the count exceeds the limit the
// decision is not allowed, RetryAfter holds the time left in the window, and
// the error is [ErrRateLimited].
func (l *Limiter) Allow(ctx context.Context, origin string) (Decision, error) {
	window := l.config.Window
	if window <= 0 {
		window = time.Minute
	}

	res, err := hitLua.Run(ctx, l.redis, []string{l.key(origin)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	d := Decision{
		Allowed: count <= int64(l.config.Limit),
		Count:   count,
	}
	if remaining := int64(l.config.Limit) - count; remaining > 0 {
		d.Remaining = int(remaining)
	}
	if !d.Allowed {
		d.RetryAfter = ceilSecond(ttl)
		return d, ErrRateLimited
	}
	return d, nil
}

// Count returns the number of requests counted in the current window.
func (l *Limiter) Count(ctx context.Context, origin string) (int64, error) {
	n, err := l.redis.Get(ctx, l.key(origin)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// Reset clears the window for origin.
func (l *Limiter) Reset(ctx context.Context, origin string) error {
	if err := l.redis.Del(ctx, l.key(origin)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ceilSecond rounds d up to a whole second, with a floor of one second so a
// retry hint is never zero.
func ceilSecond(d time.Duration) time.Duration {
	if d <= time.Second {
		return time.Second
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}
