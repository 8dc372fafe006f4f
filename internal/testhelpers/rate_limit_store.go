package testhelpers

import (
	"context"
	"sync"
	"time"

	"github.com/recollector/auth-service/internal/utils"
)

type counter struct {
	count     int
	expiresAt time.Time
}

// MemoryRateLimits is an in-memory repositories.RateLimitRepository with the
// same fixed-window semantics as the SQL upsert.
type MemoryRateLimits struct {
	mu       sync.Mutex
	clock    utils.Clock
	counters map[string]counter

	Err error
}

func NewMemoryRateLimits(clock utils.Clock) *MemoryRateLimits {
	return &MemoryRateLimits{clock: clock, counters: make(map[string]counter)}
}

func (m *MemoryRateLimits) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	c, ok := m.counters[key]
	if !ok || !c.expiresAt.After(now) {
		c = counter{expiresAt: now.Add(window)}
	}
	c.count++
	m.counters[key] = c
	return c.count <= limit, nil
}

func (m *MemoryRateLimits) CleanupExpired(context.Context) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var n int64
	for k, c := range m.counters {
		if !c.expiresAt.After(now) {
			delete(m.counters, k)
			n++
		}
	}
	return n, nil
}

// Len reports how many counters are held.
func (m *MemoryRateLimits) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counters)
}
