package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/skatehive-leaderboard/internal/errors"
)

func fastConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithExponentialBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return apperrors.NewTransientError("hive", errors.New("timeout"))
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
	assert.NoError(t, result.LastError)
}

func TestWithExponentialBackoff_StopsOnPermanentError(t *testing.T) {
	calls := 0
	notFound := apperrors.NewNotFoundError("account", "ghost")
	result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		calls++
		return notFound
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, result.LastError, notFound)
}

func TestWithExponentialBackoff_ExhaustsAttempts(t *testing.T) {
	err := Do(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		return apperrors.NewRateLimitError("hive")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestWithExponentialBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Second

	result := WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
		cancel()
		return apperrors.NewTransientError("hive", errors.New("eof"))
	})

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.LastError, context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, 300*time.Millisecond, calculateDelay(cfg, 3))

	cfg.JitterFactor = 0.5
	for i := 0; i < 20; i++ {
		d := calculateDelay(cfg, 1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}
