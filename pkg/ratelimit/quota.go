package ratelimit

import (
	"fmt"
	"sync"

	"chatpilot/pkg/config"
	"chatpilot/pkg/utils"
)

// QuotaGate enforces the tier-based message quota, distinct from the short-
// window rate limiter. Reserve increments the used counter before any DOM
// interaction happens: two near-simultaneous sends must not both read the
// same pre-increment value and both pass.
type QuotaGate struct {
	mu    sync.Mutex
	tier  config.Tier
	used  int
	limit int
}

// NewQuotaGate creates a gate from the current settings counters.
func NewQuotaGate(tier config.Tier, used, limit int) *QuotaGate {
	return &QuotaGate{tier: tier, used: used, limit: limit}
}

// Reserve consumes one quota slot. Unlimited tiers always pass (usage is
// still counted for reporting). Limited tiers are rejected with a wrapped
// ErrQuotaExceeded once used reaches limit. There is deliberately no
// Release: a reserved slot stays consumed even if the send then fails.
func (q *QuotaGate) Reserve() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.tier.Unlimited() && q.used >= q.limit {
		return fmt.Errorf("%w: %d/%d messages used", utils.ErrQuotaExceeded, q.used, q.limit)
	}
	q.used++
	return nil
}

// Used returns the current used counter.
func (q *QuotaGate) Used() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}

// Remaining returns the remaining quota, or -1 for unlimited tiers.
func (q *QuotaGate) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.tier.Unlimited() {
		return -1
	}
	if q.used >= q.limit {
		return 0
	}
	return q.limit - q.used
}

// Update replaces the gate's tier and counters (settings were replaced).
func (q *QuotaGate) Update(tier config.Tier, used, limit int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tier = tier
	q.used = used
	q.limit = limit
}

// Tier returns the gate's current tier.
func (q *QuotaGate) Tier() config.Tier {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tier
}
