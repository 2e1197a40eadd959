// Package ratelimit throttles calls to the Hive API, both in-process and
// across every worker sharing one Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	DefaultRequestsPerWindow = 50              // Hive API ceiling per window
	DefaultWindowSize        = time.Second     // fixed window, aligned to the wall clock
	DefaultKeyTTL            = 2 * time.Second // window + buffer
	DefaultKeyPrefix         = "hive:budget:"
)

// consumeScript atomically checks and increments the window counter.
var consumeScript = redis.NewScript(`
	local key = KEYS[1]
	local n = tonumber(ARGV[1])
	local budget = tonumber(ARGV[2])
	local ttl = tonumber(ARGV[3])

	local used = tonumber(redis.call('GET', key) or '0')
	if used + n > budget then
		return {0, used}
	end

	redis.call('INCRBY', key, n)
	redis.call('EXPIRE', key, ttl)
	return {1, used + n}
`)

// RequestBudget coordinates request counts across processes using Redis.
type RequestBudget struct {
	redis      redis.Cmdable
	budget     int
	windowSize time.Duration
	keyTTL     time.Duration
	keyPrefix  string
	now        func() time.Time
}

// RequestBudgetConfig holds configuration for the request budget.
type RequestBudgetConfig struct {
	// Redis is the client used for cross-process coordination. Required.
	Redis redis.Cmdable

	// RequestsPerWindow is the shared ceiling. Default: 50.
	RequestsPerWindow int

	// WindowSize is the window duration. Default: 1s.
	WindowSize time.Duration

	// KeyTTL is the TTL for window keys. Default: 2s.
	KeyTTL time.Duration

	// KeyPrefix namespaces the window keys. Default: "hive:budget:".
	KeyPrefix string
}

// Validate checks if the configuration is valid.
func (c *RequestBudgetConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.RequestsPerWindow < 0 {
		return errors.New("requests per window cannot be negative")
	}
	if c.WindowSize < 0 {
		return errors.New("window size cannot be negative")
	}
	return nil
}

// NewRequestBudget creates a budget with the given configuration.
func NewRequestBudget(cfg *RequestBudgetConfig) (*RequestBudget, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	b := &RequestBudget{
		redis:      cfg.Redis,
		budget:     cfg.RequestsPerWindow,
		windowSize: cfg.WindowSize,
		keyTTL:     cfg.KeyTTL,
		keyPrefix:  cfg.KeyPrefix,
		now:        time.Now,
	}
	if b.budget == 0 {
		b.budget = DefaultRequestsPerWindow
	}
	if b.windowSize == 0 {
		b.windowSize = DefaultWindowSize
	}
	if b.keyTTL == 0 {
		b.keyTTL = DefaultKeyTTL
	}
	if b.keyPrefix == "" {
		b.keyPrefix = DefaultKeyPrefix
	}
	return b, nil
}

func (b *RequestBudget) windowStart() time.Time {
	return b.now().Truncate(b.windowSize)
}

func (b *RequestBudget) key(windowStart time.Time) string {
	return b.keyPrefix + strconv.FormatInt(windowStart.UnixMilli(), 10)
}

// TryConsume attempts to take n requests from the current window.
//
// Returns:
//   - allowed: true if the requests fit in the window
//   - waitTime: suggested wait before retrying when not allowed
//   - err: Redis failure; callers fall back to the in-process limiter
func (b *RequestBudget) TryConsume(ctx context.Context, n int) (bool, time.Duration, error) {
	if n <= 0 {
		return true, 0, nil
	}

	start := b.windowStart()

	ttlSeconds := int(b.keyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := consumeScript.Run(ctx, b.redis, []string{b.key(start)}, n, b.budget, ttlSeconds).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("request budget: %w", err)
	}

	if result[0] != 1 {
		return false, b.waitTime(start), nil
	}
	return true, 0, nil
}

// Wait blocks until one request fits in the shared window or ctx is done.
func (b *RequestBudget) Wait(ctx context.Context) error {
	for {
		allowed, wait, err := b.TryConsume(ctx, 1)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Used returns the request count of the current window.
func (b *RequestBudget) Used(ctx context.Context) (int, error) {
	val, err := b.redis.Get(ctx, b.key(b.windowStart())).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

// waitTime returns the time until the next window starts.
func (b *RequestBudget) waitTime(windowStart time.Time) time.Duration {
	wait := windowStart.Add(b.windowSize).Sub(b.now())
	if wait < 0 {
		wait = 0
	}
	// Small buffer so the retry lands in the new window
	return wait + time.Millisecond
}

// Budget returns the configured ceiling per window.
func (b *RequestBudget) Budget() int {
	return b.budget
}
