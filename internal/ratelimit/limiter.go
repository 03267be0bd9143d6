// Package ratelimit counts admitted requests per caller and scope. A durable
// redis backend is used when configured, with an in-process fixed window
// counter as both the default and the fallback.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"relay-api/internal/shared"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ScopeChat      = "chat"
	ScopeContact   = "contact"
	ScopeTelemetry = "telemetry"
)

// Decision is produced fresh for every Admit call. Remaining is always 0
// when Allowed is false.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// ResetAtMillis is the window reset as unix epoch milliseconds
func (d Decision) ResetAtMillis() int64 {
	return d.ResetAt.UnixMilli()
}

// Limiter admits or denies one attempt for identity within scope.
type Limiter interface {
	Admit(ctx context.Context, identity, scope string, limit int, window time.Duration) (Decision, error)
}

// Policy binds a scope to its limit and window
type Policy struct {
	Scope  string
	Limit  int
	Window time.Duration
}

var (
	ChatPolicy      = Policy{Scope: ScopeChat, Limit: shared.ChatRateLimit, Window: shared.ChatRateWindow}
	TelemetryPolicy = Policy{Scope: ScopeTelemetry, Limit: shared.TelemetryRateLimit, Window: shared.TelemetryRateWindow}
	ContactPolicy   = Policy{Scope: ScopeContact, Limit: shared.ContactRateLimit, Window: shared.ContactRateWindow}
)

// AdmitPolicy is a shorthand for Admit with the values of p
func AdmitPolicy(ctx context.Context, l Limiter, identity string, p Policy) (Decision, error) {
	return l.Admit(ctx, identity, p.Scope, p.Limit, p.Window)
}

// Key renders the counter key for a scope and caller
func Key(scope, identity string) string {
	return fmt.Sprintf("%s:%s:%s", shared.RateLimitKeyPrefix, scope, identity)
}

// New picks the backend once at startup. A nil redis client means memory only.
func New(redisClient *redis.Client, log *zap.SugaredLogger) (Limiter, func()) {
	local := NewMemoryLimiter()
	stop := local.StartSweeper(shared.MemoryLimiterSweepRate)
	if redisClient == nil {
		log.Infow("Using in-memory rate limiter")
		return local, stop
	}
	log.Infow("Using redis rate limiter with in-memory fallback")
	return NewFallbackLimiter(NewRedisLimiter(redisClient), local, log), stop
}

func normalize(limit int, window time.Duration) (int, time.Duration) {
	if limit < 0 {
		limit = 0
	}
	if window <= 0 {
		window = time.Second
	}
	return limit, window
}
