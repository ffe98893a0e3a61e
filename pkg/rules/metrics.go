package rules

import (
	"sync"
	"time"

	"chatpilot/pkg/collections"
)

const (
	// ViewerCapacity bounds the distinct-chatter set for a session.
	ViewerCapacity = 2000

	// MetricsReportEvery controls how often aggregated metrics are pushed
	// to the other process: every Nth processed message.
	MetricsReportEvery = 20

	rateWindow = 60 * time.Second
)

// MetricsSnapshot is a point-in-time view of session chat metrics.
type MetricsSnapshot struct {
	TotalMessages  int `json:"totalMessages"`
	UniqueChatters int `json:"uniqueChatters"`
	MessagesPerMin int `json:"messagesPerMin"`
	PeakPerMin     int `json:"peakPerMin"`
}

// Metrics tracks session chat activity: distinct chatters (bounded),
// a sliding one-minute message rate and its running peak.
type Metrics struct {
	mu      sync.Mutex
	viewers *collections.LRUMap[int] // username -> message count
	total   int
	window  []time.Time
	peak    int
}

// NewMetrics creates an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{viewers: collections.NewLRUMap[int](ViewerCapacity)}
}

// Record notes one message from username at now and returns the running
// total, which the pipeline uses for periodic reporting.
func (m *Metrics) Record(username string, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count, _ := m.viewers.Get(username)
	m.viewers.Put(username, count+1)
	m.total++

	m.pruneLocked(now)
	m.window = append(m.window, now)
	if len(m.window) > m.peak {
		m.peak = len(m.window)
	}
	return m.total
}

// Snapshot returns current metrics, pruning the rate window first.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(time.Now())
	return MetricsSnapshot{
		TotalMessages:  m.total,
		UniqueChatters: m.viewers.Len(),
		MessagesPerMin: len(m.window),
		PeakPerMin:     m.peak,
	}
}

// Reset clears all metrics state.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewers.Clear()
	m.total = 0
	m.window = nil
	m.peak = 0
}

func (m *Metrics) pruneLocked(now time.Time) {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(m.window) && !m.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		m.window = append(m.window[:0], m.window[i:]...)
	}
}
