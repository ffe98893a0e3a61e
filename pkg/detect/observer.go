package detect

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"chatpilot/pkg/dom"
)

// DefaultDebounce is how long the observer waits after a burst of document
// mutations before re-running detection. Highly dynamic pages mutate
// constantly; re-detecting per mutation would burn CPU for nothing.
const DefaultDebounce = 250 * time.Millisecond

// PageObserver watches the whole document for structural changes that might
// reveal or hide the chat UI and re-runs detection, debounced, until the
// chat is resolved. Recovery from late-loading chat widgets happens here.
type PageObserver struct {
	page     *dom.Page
	detector *Detector
	debounce time.Duration
	onDetect func(Result)
	resolved func() bool // When true, mutations no longer trigger re-detection
	log      *logrus.Entry
}

// NewPageObserver creates a PageObserver. onDetect runs after every
// detection pass; resolved reports whether the chat input or container is
// already held, in which case re-detection is skipped.
func NewPageObserver(page *dom.Page, detector *Detector, debounce time.Duration, onDetect func(Result), resolved func() bool, log *logrus.Entry) *PageObserver {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &PageObserver{
		page:     page,
		detector: detector,
		debounce: debounce,
		onDetect: onDetect,
		resolved: resolved,
		log:      log,
	}
}

// Run blocks until ctx is done, coalescing mutation bursts into debounced
// detection passes. An initial pass runs immediately.
func (o *PageObserver) Run(ctx context.Context) error {
	mutations, cancel := o.page.Subscribe(64)
	defer cancel()

	o.onDetect(o.detector.Detect())

	// The timer is armed on the first mutation of a burst and reset by
	// every further mutation; detection runs once the burst goes quiet.
	timer := time.NewTimer(o.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	armed := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-mutations:
			if !ok {
				return nil
			}
			if m.DocumentReplaced {
				// Navigation: held handles are stale, always re-detect
				o.log.Debug("Document replaced, scheduling re-detection")
			} else if o.resolved != nil && o.resolved() {
				continue
			}
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(o.debounce)
			armed = true
		case <-timer.C:
			armed = false
			o.onDetect(o.detector.Detect())
		}
	}
}
