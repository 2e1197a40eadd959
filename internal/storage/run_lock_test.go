package storage

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunLock(t *testing.T, ttl time.Duration) (*RunLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRunLock(client, ttl), mr
}

func TestRunLock_ExcludesSecondHolder(t *testing.T) {
	lock, _ := newTestRunLock(t, time.Minute)
	ctx := testContext(t)

	token, ok, err := lock.Acquire(ctx, "hive-173115")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = lock.Acquire(ctx, "hive-173115")
	require.NoError(t, err)
	assert.False(t, ok)

	// Different community is independent.
	_, ok, err = lock.Acquire(ctx, "hive-999999")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunLock_ReleaseRequiresOwnToken(t *testing.T) {
	lock, mr := newTestRunLock(t, time.Minute)
	ctx := testContext(t)

	token, ok, err := lock.Acquire(ctx, "hive-173115")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Release(ctx, "hive-173115", "someone-else"))
	assert.True(t, mr.Exists("leaderboard:lock:hive-173115"))

	require.NoError(t, lock.Release(ctx, "hive-173115", token))
	assert.False(t, mr.Exists("leaderboard:lock:hive-173115"))

	_, ok, err = lock.Acquire(ctx, "hive-173115")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunLock_ExpiresAfterTTL(t *testing.T) {
	lock, mr := newTestRunLock(t, time.Minute)
	ctx := testContext(t)

	_, ok, err := lock.Acquire(ctx, "hive-173115")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(61 * time.Second)

	_, ok, err = lock.Acquire(ctx, "hive-173115")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunLock_RedisDown(t *testing.T) {
	lock, mr := newTestRunLock(t, time.Minute)
	mr.Close()

	_, ok, err := lock.Acquire(testContext(t), "hive-173115")
	assert.Error(t, err)
	assert.False(t, ok)
}
