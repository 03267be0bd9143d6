package ratelimit

import (
	"context"
	"errors"

	"relay-api/internal/metrics"
	"relay-api/internal/shared"
)

// Enforce charges one attempt against p and turns a denial into a
// *shared.RateLimitError. Limiter errors become internal server errors.
func Enforce(ctx context.Context, l Limiter, identity string, p Policy) (Decision, error) {
	decision, err := AdmitPolicy(ctx, l, identity, p)
	if err != nil {
		return decision, errors.Join(shared.ErrInternalServerError, shared.ErrLimiterBackend, err)
	}
	if !decision.Allowed {
		metrics.RateLimitDecisions.WithLabelValues(p.Scope, "denied").Inc()
		return decision, &shared.RateLimitError{Scope: p.Scope, ResetAt: decision.ResetAt}
	}
	metrics.RateLimitDecisions.WithLabelValues(p.Scope, "allowed").Inc()
	return decision, nil
}
