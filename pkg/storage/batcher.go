package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"chatpilot/pkg/config"
)

// DefaultFlushEvery is the coalescing window for non-critical writes.
const DefaultFlushEvery = 2 * time.Second

// BatchWriter coalesces frequent settings writes into time-windowed flushes.
// Only the newest queued snapshot survives a window; intermediate states are
// deliberately dropped since the record is a full replacement. Critical
// writes (quota state at risk of being lost) bypass the window.
type BatchWriter struct {
	store      SettingsStore
	flushEvery time.Duration
	log        *logrus.Entry

	intake  chan writeReq
	dropped atomic.Int64

	mu      sync.Mutex
	pending *config.Settings
}

type writeReq struct {
	settings config.Settings
	critical bool
}

// NewBatchWriter creates a BatchWriter flushing every flushEvery; zero or
// negative means DefaultFlushEvery.
func NewBatchWriter(store SettingsStore, flushEvery time.Duration, log *logrus.Entry) *BatchWriter {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}
	return &BatchWriter{
		store:      store,
		flushEvery: flushEvery,
		log:        log,
		intake:     make(chan writeReq, 64),
	}
}

// Queue schedules a settings write for the next flush window. When the
// intake channel is full the write is dropped and counted; a later queue
// carries the fuller state anyway.
func (w *BatchWriter) Queue(s config.Settings) {
	select {
	case w.intake <- writeReq{settings: s}:
	default:
		n := w.dropped.Add(1)
		if n%100 == 1 {
			w.log.WithField("dropped", n).Warn("Settings write intake full, dropping")
		}
	}
}

// QueueCritical schedules a write flushed immediately rather than at the
// next window.
func (w *BatchWriter) QueueCritical(s config.Settings) {
	select {
	case w.intake <- writeReq{settings: s, critical: true}:
	default:
		// Critical writes must not vanish silently; block until accepted
		w.intake <- writeReq{settings: s, critical: true}
	}
}

// Dropped returns the number of dropped non-critical writes.
func (w *BatchWriter) Dropped() int64 { return w.dropped.Load() }

// Run consumes queued writes until ctx is done, then performs a final flush
// of anything still pending.
func (w *BatchWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()

	w.log.Debug("Batch writer started")
	for {
		select {
		case <-ctx.Done():
			w.drainIntake()
			w.flush(context.Background())
			w.log.Debug("Batch writer stopped")
			return
		case req := <-w.intake:
			w.mu.Lock()
			s := req.settings
			w.pending = &s
			w.mu.Unlock()
			if req.critical {
				w.flush(ctx)
			}
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// drainIntake pulls whatever is already queued without blocking, keeping
// the newest snapshot.
func (w *BatchWriter) drainIntake() {
	for {
		select {
		case req := <-w.intake:
			w.mu.Lock()
			s := req.settings
			w.pending = &s
			w.mu.Unlock()
		default:
			return
		}
	}
}

func (w *BatchWriter) flush(ctx context.Context) {
	w.mu.Lock()
	pending := w.pending
	w.pending = nil
	w.mu.Unlock()
	if pending == nil {
		return
	}

	if err := w.store.SaveSettings(ctx, *pending); err != nil {
		// Storage failure is non-fatal; in-memory state stays authoritative
		// until the next successful write
		w.log.Errorf("Settings flush failed: %v", err)
		w.mu.Lock()
		if w.pending == nil {
			w.pending = pending
		}
		w.mu.Unlock()
	}
}
