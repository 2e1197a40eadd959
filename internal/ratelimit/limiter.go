package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/skatehive-leaderboard/internal/logging"
)

// Limiter gates outbound Hive calls. The in-process token bucket always
// applies; the shared Redis budget applies when configured.
type Limiter struct {
	local  *rate.Limiter
	shared *RequestBudget
	logger *logging.Logger
}

// NewLimiter creates a limiter allowing rps requests per second with a burst of rps.
// shared may be nil.
func NewLimiter(rps int, shared *RequestBudget, logger *logging.Logger) *Limiter {
	if rps <= 0 {
		rps = DefaultRequestsPerWindow
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Limiter{
		local:  rate.NewLimiter(rate.Limit(rps), rps),
		shared: shared,
		logger: logger,
	}
}

// Wait blocks until a request may be sent.
// A Redis failure degrades to the local limiter only.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.local.Wait(ctx); err != nil {
		return err
	}
	if l.shared == nil {
		return nil
	}
	if err := l.shared.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.WithError(err).Warn("Shared request budget unavailable, using local limit only")
	}
	return nil
}
