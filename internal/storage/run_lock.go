package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock is a Redis lease that keeps refresh cycles for one community from overlapping
type RunLock struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRunLock creates a lock whose leases expire after ttl if never released
func NewRunLock(client redis.Cmdable, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RunLock{client: client, prefix: "leaderboard:lock:", ttl: ttl}
}

// Acquire takes the lease for name. ok is false when another holder has it.
func (l *RunLock) Acquire(ctx context.Context, name string) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = l.client.SetNX(ctx, l.prefix+name, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire run lock %s: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release drops the lease if token still owns it
func (l *RunLock) Release(ctx context.Context, name, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + name}, token).Err(); err != nil {
		return fmt.Errorf("failed to release run lock %s: %w", name, err)
	}
	return nil
}
