package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chatpilot/pkg/utils"
)

// Defaults for outbound chat pacing.
const (
	DefaultCooldown    = 6 * time.Second
	DefaultWindowLimit = 10
	Window             = 60 * time.Second
)

// Limiter enforces a fixed cooldown between sends and a sliding-window cap
// on sends per minute. Both gates must pass; rejection is normal control
// flow, not an error condition the caller should surface.
type Limiter struct {
	mu          sync.Mutex
	lastSend    time.Time
	sendTimes   []time.Time // Always within the trailing window; pruned lazily
	cooldown    time.Duration
	windowLimit int
	log         *logrus.Entry
}

// NewLimiter creates a Limiter. Non-positive arguments take the defaults.
func NewLimiter(cooldown time.Duration, windowLimit int, log *logrus.Entry) *Limiter {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if windowLimit <= 0 {
		windowLimit = DefaultWindowLimit
	}
	return &Limiter{
		cooldown:    cooldown,
		windowLimit: windowLimit,
		log:         log,
	}
}

// Allow reports whether a send may proceed at now. Returns a wrapped
// ErrRateLimited on rejection.
func (l *Limiter) Allow(now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.lastSend.IsZero() {
		if elapsed := now.Sub(l.lastSend); elapsed < l.cooldown {
			l.log.WithFields(logrus.Fields{"elapsed": elapsed, "cooldown": l.cooldown}).
				Debug("Send rejected: cooldown not elapsed")
			return fmt.Errorf("%w: cooldown %v not elapsed (%v since last send)",
				utils.ErrRateLimited, l.cooldown, elapsed)
		}
	}

	l.pruneLocked(now)
	if len(l.sendTimes) >= l.windowLimit {
		l.log.WithFields(logrus.Fields{"sent": len(l.sendTimes), "limit": l.windowLimit}).
			Debug("Send rejected: window limit reached")
		return fmt.Errorf("%w: %d sends in the last %v (limit %d)",
			utils.ErrRateLimited, len(l.sendTimes), Window, l.windowLimit)
	}
	return nil
}

// Record registers a successful send at now. Call after the send completes.
func (l *Limiter) Record(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastSend = now
	l.pruneLocked(now)
	l.sendTimes = append(l.sendTimes, now)
}

// Sent returns the number of sends recorded within the trailing window.
func (l *Limiter) Sent(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(now)
	return len(l.sendTimes)
}

func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-Window)
	keep := l.sendTimes[:0]
	for _, t := range l.sendTimes {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	l.sendTimes = keep
}
