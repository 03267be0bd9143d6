package ratelimit

import (
	"context"
	"time"

	"relay-api/internal/metrics"

	"go.uber.org/zap"
)

// FallbackLimiter answers from local memory whenever the durable backend
// errors. Callers are never handed a backend error.
type FallbackLimiter struct {
	primary Limiter
	local   Limiter
	log     *zap.SugaredLogger
}

func NewFallbackLimiter(primary Limiter, local Limiter, log *zap.SugaredLogger) *FallbackLimiter {
	if local == nil {
		local = NewMemoryLimiter()
	}
	return &FallbackLimiter{primary: primary, local: local, log: log}
}

func (f *FallbackLimiter) Admit(ctx context.Context, identity, scope string, limit int, window time.Duration) (Decision, error) {
	decision, err := f.primary.Admit(ctx, identity, scope, limit, window)
	if err == nil {
		return decision, nil
	}
	f.log.Warnw("Rate limit backend failed, using local counters", "scope", scope, "error", err)
	metrics.LimiterBackendErrors.WithLabelValues(scope).Inc()
	return f.local.Admit(ctx, identity, scope, limit, window)
}
