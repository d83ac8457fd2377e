package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process sliding-window Driver: one timestamp slice per
// key, pruned lazily on every Increment. Adequate for a single instance;
// Redis is grounded for multi-instance deployments.
type Memory struct {
	mu      sync.Mutex
	windows map[string][]int64 // unix-nano hit timestamps
}

// NewMemory builds an empty in-process rate-limit driver.
func NewMemory() *Memory {
	return &Memory{windows: make(map[string][]int64)}
}

func (m *Memory) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	now := time.Now()
	cutoff := now.Add(-window).UnixNano()

	m.mu.Lock()
	defer m.mu.Unlock()

	hits := m.windows[key]
	pruned := hits[:0]
	for _, ts := range hits {
		if ts > cutoff {
			pruned = append(pruned, ts)
		}
	}
	pruned = append(pruned, now.UnixNano())
	m.windows[key] = pruned

	var resetIn time.Duration
	if len(pruned) > 0 {
		oldest := time.Unix(0, pruned[0])
		resetIn = window - now.Sub(oldest)
		if resetIn < 0 {
			resetIn = 0
		}
	}

	return len(pruned), resetIn, nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.windows, key)
	m.mu.Unlock()
	return nil
}
