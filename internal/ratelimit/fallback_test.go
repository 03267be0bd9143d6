package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type stubLimiter struct {
	decision Decision
	err      error
	calls    int
}

func (s *stubLimiter) Admit(context.Context, string, string, int, time.Duration) (Decision, error) {
	s.calls++
	return s.decision, s.err
}

func TestFallbackLimiter_UsesPrimaryWhenHealthy(t *testing.T) {
	t.Parallel()

	primary := &stubLimiter{decision: Decision{Allowed: true, Remaining: 4}}
	local := &stubLimiter{}
	limiter := NewFallbackLimiter(primary, local, zap.NewNop().Sugar())

	d, err := limiter.Admit(context.Background(), "caller", ScopeChat, 5, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Remaining != 4 {
		t.Fatalf("expected primary decision, got %+v", d)
	}
	if local.calls != 0 {
		t.Fatalf("expected local limiter untouched, got %d calls", local.calls)
	}
}

func TestFallbackLimiter_FailsOpenToLocalCounters(t *testing.T) {
	t.Parallel()

	primary := &stubLimiter{err: errors.New("i/o timeout")}
	local := newTestMemoryLimiter(newFakeClock())
	limiter := NewFallbackLimiter(primary, local, zap.NewNop().Sugar())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := limiter.Admit(ctx, "caller", ScopeChat, 2, time.Minute)
		if err != nil {
			t.Fatalf("expected backend error to be swallowed, got %v", err)
		}
		if !d.Allowed {
			t.Fatalf("expected attempt %d allowed by local counters", i+1)
		}
	}
	d, err := limiter.Admit(ctx, "caller", ScopeChat, 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected local counters to still enforce the limit")
	}
}
