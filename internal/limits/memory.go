package limits

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger keeps consumption in process memory under a single mutex.
// Suitable for one-process deployments and tests; caps are not shared with
// other processes.
type MemoryLedger struct {
	mu       sync.Mutex
	consumed map[string]float64
	expires  map[string]time.Time
	lastUse  map[string]time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		consumed: make(map[string]float64),
		expires:  make(map[string]time.Time),
		lastUse:  make(map[string]time.Time),
	}
}

// Apply implements Ledger. The whole check-and-consume runs inside one
// critical section so concurrent callers cannot jointly over-consume.
func (m *MemoryLedger) Apply(_ context.Context, cooldownKey string, cooldown time.Duration, now time.Time, entries []entry, consume bool) (*violation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(now)

	if cooldownKey != "" {
		if last, ok := m.lastUse[cooldownKey]; ok && now.Sub(last) < cooldown {
			return &violation{Cooldown: true, Key: cooldownKey}, nil
		}
	}

	for _, e := range entries {
		cur := m.consumed[e.Key]
		if cur+e.Amount > e.Cap {
			return &violation{Scope: e.Scope, Key: e.Key, Consumed: cur, Cap: e.Cap}, nil
		}
	}

	if consume {
		for _, e := range entries {
			m.consumed[e.Key] += e.Amount
			m.expires[e.Key] = now.Add(e.TTL)
		}
		if cooldownKey != "" {
			m.lastUse[cooldownKey] = now
		}
	}
	return nil, nil
}

// Reset clears all ledger state. Test hook and operator action.
func (m *MemoryLedger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumed = make(map[string]float64)
	m.expires = make(map[string]time.Time)
	m.lastUse = make(map[string]time.Time)
}

// sweep drops period entries whose TTL elapsed. Period keys embed the
// calendar period, so stale entries are unreachable anyway; this just bounds
// memory. Caller holds the mutex.
func (m *MemoryLedger) sweep(now time.Time) {
	for k, exp := range m.expires {
		if now.After(exp) {
			delete(m.consumed, k)
			delete(m.expires, k)
		}
	}
}
