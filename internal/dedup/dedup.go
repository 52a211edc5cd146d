// Package dedup keeps an in-process record of recently notified events for
// deployments without Redis.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// sweepEvery is the number of writes between sweeps of expired keys.
const sweepEvery = 256

// Memory implements domain.Deduper in process memory. It is safe for
// concurrent use.
type Memory struct {
	seen   map[string]time.Time // key -> expiry
	writes int
	mu     sync.Mutex
	now    func() time.Time
}

// NewMemory creates an empty Memory deduper.
func NewMemory() *Memory {
	return &Memory{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Seen reports whether key was marked and its ttl has not passed. It never
// fails.
func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.seen[key]
	return ok && m.now().Before(expiry), nil
}

// Mark records key for ttl. It never fails.
func (m *Memory) Mark(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.seen[key] = now.Add(ttl)
	m.writes++
	if m.writes >= sweepEvery {
		m.writes = 0
		m.sweep(now)
	}
	return nil
}

// Len returns the number of keys currently held, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// sweep removes expired keys. The caller holds mu.
func (m *Memory) sweep(now time.Time) {
	for k, expiry := range m.seen {
		if !now.Before(expiry) {
			delete(m.seen, k)
		}
	}
}

var _ domain.Deduper = (*Memory)(nil)
