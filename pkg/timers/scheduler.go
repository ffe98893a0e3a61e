package timers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chatpilot/pkg/config"
)

// SendFunc emits one outbound chat message, gate-checked internally.
type SendFunc func(ctx context.Context, text string) error

// Scheduler runs the configured periodic broadcast messages. Each valid
// entry gets its own ticker goroutine; sends go through the same gated path
// as everything else, so a tick that loses to the rate limiter simply skips
// that turn.
type Scheduler struct {
	send SendFunc
	log  *logrus.Entry

	// interval converts a configured timer to its tick period; overridden
	// in tests to avoid minute-scale waits.
	interval func(config.TimerMessage) time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(send SendFunc, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		send: send,
		log:  log,
		interval: func(t config.TimerMessage) time.Duration {
			return time.Duration(t.IntervalMinutes) * time.Minute
		},
	}
}

// Start registers a ticker per timer with non-empty text and a positive
// interval. A Start while already running is a no-op; Stop first to
// reconfigure. Returns the number of timers registered.
func (s *Scheduler) Start(ctx context.Context, timers []config.TimerMessage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Debug("Scheduler already running, ignoring start")
		return 0
	}

	runCtx, cancel := context.WithCancel(ctx)
	registered := 0
	for _, timer := range timers {
		if timer.Text == "" || timer.IntervalMinutes <= 0 {
			continue
		}
		s.wg.Add(1)
		go s.runTimer(runCtx, timer.Text, s.interval(timer))
		registered++
	}

	if registered == 0 {
		cancel()
		return 0
	}
	s.running = true
	s.cancel = cancel
	s.log.WithField("timers", registered).Info("Timer scheduler started")
	return registered
}

// Stop cancels every registered ticker and waits for them to exit. Safe to
// call when not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.log.Info("Timer scheduler stopped")
}

// Running reports whether the scheduler currently has active tickers.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runTimer(ctx context.Context, text string, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.send(ctx, text); err != nil {
				s.log.Debugf("Timer send skipped: %v", err)
			}
		}
	}
}
