package timers

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpilot/pkg/config"
)

func discardLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type tickRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *tickRecorder) send(_ context.Context, text string) error {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	return nil
}

func (r *tickRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

func fastScheduler(rec *tickRecorder) *Scheduler {
	s := NewScheduler(rec.send, discardLog())
	s.interval = func(config.TimerMessage) time.Duration { return 10 * time.Millisecond }
	return s
}

func TestSchedulerTicksAndStops(t *testing.T) {
	rec := &tickRecorder{}
	s := fastScheduler(rec)

	n := s.Start(context.Background(), []config.TimerMessage{{Text: "follow the shop!", IntervalMinutes: 5}})
	require.Equal(t, 1, n)
	require.True(t, s.Running())

	require.Eventually(t, func() bool { return rec.count() >= 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())
	after := rec.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, rec.count(), "no ticks after stop")
}

func TestSchedulerSkipsInvalidEntries(t *testing.T) {
	rec := &tickRecorder{}
	s := fastScheduler(rec)

	n := s.Start(context.Background(), []config.TimerMessage{
		{Text: "", IntervalMinutes: 5},
		{Text: "no interval", IntervalMinutes: 0},
		{Text: "valid", IntervalMinutes: 1},
	})
	assert.Equal(t, 1, n)
	s.Stop()
}

func TestSchedulerStartIsGuardedAgainstReentry(t *testing.T) {
	rec := &tickRecorder{}
	s := fastScheduler(rec)
	timers := []config.TimerMessage{{Text: "x", IntervalMinutes: 1}}

	require.Equal(t, 1, s.Start(context.Background(), timers))
	assert.Equal(t, 0, s.Start(context.Background(), timers), "second start while running is a no-op")
	s.Stop()

	// Restart after stop works and does not duplicate
	require.Equal(t, 1, s.Start(context.Background(), timers))
	s.Stop()
}

func TestSchedulerNoValidTimersStaysStopped(t *testing.T) {
	rec := &tickRecorder{}
	s := fastScheduler(rec)

	assert.Equal(t, 0, s.Start(context.Background(), nil))
	assert.False(t, s.Running())
	s.Stop() // safe when not running
}

func TestSchedulerStopWaitsForTickers(t *testing.T) {
	rec := &tickRecorder{}
	s := fastScheduler(rec)

	s.Start(context.Background(), []config.TimerMessage{
		{Text: "a", IntervalMinutes: 1},
		{Text: "b", IntervalMinutes: 2},
	})
	require.Eventually(t, func() bool { return rec.count() >= 2 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() { s.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
