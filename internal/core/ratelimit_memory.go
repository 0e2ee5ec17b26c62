package core

import (
	"context"
	"sync"
	"time"

	"zozbit-notify/internal/types"
)

// MemoryRateLimitStore is a process-local fixed-window counter. Counters are
// not shared between replicas.
type MemoryRateLimitStore struct {
	clock types.Clock

	mu      sync.Mutex
	windows map[string]*memoryWindow
	calls   int
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// sweepEvery controls how often expired windows are purged.
const sweepEvery = 1024

// NewMemoryRateLimitStore creates an empty store. A nil clock uses wall time.
func NewMemoryRateLimitStore(clock types.Clock) *MemoryRateLimitStore {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &MemoryRateLimitStore{
		clock:   clock,
		windows: make(map[string]*memoryWindow),
	}
}

// IncrementAndCheck implements RateLimitStore.
func (m *MemoryRateLimitStore) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls%sweepEvery == 0 {
		m.sweep(now)
	}

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		m.windows[key] = w
	}
	w.count++

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   w.count <= limit,
		Remaining: remaining,
		ResetAt:   w.resetAt,
	}, nil
}

// sweep drops expired windows. Caller holds m.mu.
func (m *MemoryRateLimitStore) sweep(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
}
