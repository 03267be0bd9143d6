package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowCounter struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps fixed window counters in process memory. It is safe
// for concurrent use; all counters share one mutex so two admits for the
// same key can never interleave.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*windowCounter
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*windowCounter),
		now:     time.Now,
	}
}

// Admit never returns an error
func (m *MemoryLimiter) Admit(_ context.Context, identity, scope string, limit int, window time.Duration) (Decision, error) {
	limit, window = normalize(limit, window)
	key := Key(scope, identity)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	counter, ok := m.windows[key]
	if !ok {
		counter = &windowCounter{resetAt: now.Add(window)}
		m.windows[key] = counter
	}
	if now.After(counter.resetAt) {
		counter.count = 0
		counter.resetAt = now.Add(window)
	}

	if counter.count >= limit {
		return Decision{Allowed: false, Remaining: 0, ResetAt: counter.resetAt}, nil
	}
	counter.count++
	return Decision{
		Allowed:   true,
		Remaining: max(0, limit-counter.count),
		ResetAt:   counter.resetAt,
	}, nil
}

// Sweep drops counters whose window already ended and returns how many
func (m *MemoryLimiter) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for key, counter := range m.windows {
		if now.After(counter.resetAt) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

// Len is the number of live counters
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// StartSweeper runs Sweep every interval until the returned func is called
func (m *MemoryLimiter) StartSweeper(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
