package observe

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chatpilot/pkg/collections"
	"chatpilot/pkg/dom"
	"chatpilot/pkg/selectors"
	"chatpilot/pkg/utils"
)

const (
	// FlushInterval is roughly one display frame. Mutations landing within
	// the same interval are extracted and delivered as one batch.
	FlushInterval = 16 * time.Millisecond

	// FingerprintCacheSize caps the dedup set. Old fingerprints are evicted
	// in insertion order; a burst larger than this can re-deliver, which is
	// preferred over unbounded growth.
	FingerprintCacheSize = 500
)

// Handler receives extracted, deduplicated messages one at a time.
type Handler func(msg Message)

// Observer watches the page's chat container for new chat lines, extracts
// them in batches and delivers each at most once. It owns the dedup cache;
// downstream stages can assume messages arrive deduplicated.
type Observer struct {
	page      *dom.Page
	resolver  *selectors.Resolver
	extractor *Extractor
	handler   Handler

	seenMu sync.Mutex
	seen   *collections.LRUSet

	pending []*dom.Element // Owned by the Run goroutine
	log     *logrus.Entry
}

// NewObserver wires an Observer over page. handler must be non-nil.
func NewObserver(page *dom.Page, resolver *selectors.Resolver, extractor *Extractor, handler Handler, log *logrus.Entry) *Observer {
	return &Observer{
		page:      page,
		resolver:  resolver,
		extractor: extractor,
		handler:   handler,
		seen:      collections.NewLRUSet(FingerprintCacheSize),
		log:       log,
	}
}

// Run consumes page mutations until ctx is cancelled. Added nodes are
// filtered to the chat container, queued, and flushed on a fixed tick so a
// burst of chat lines costs one extraction pass instead of one per line.
func (o *Observer) Run(ctx context.Context) {
	mutations, cancel := o.page.Subscribe(64)
	defer cancel()

	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()

	o.log.Debug("Chat observer started")
	for {
		select {
		case <-ctx.Done():
			o.flush()
			o.log.Debug("Chat observer stopped")
			return
		case m, ok := <-mutations:
			if !ok {
				o.flush()
				return
			}
			if m.DocumentReplaced {
				// Queued handles went inert with the old document
				o.pending = o.pending[:0]
				continue
			}
			o.enqueue(m.Added)
		case <-ticker.C:
			o.flush()
		}
	}
}

// enqueue keeps only added nodes that belong to the chat: children of the
// chat container, or nodes matching a message item selector when the
// container itself cannot be resolved. The added list includes descendants;
// a node whose ancestor is already queued from the same batch is skipped so
// one chat line is extracted once, not once per inner span. Parents precede
// their descendants in the list.
func (o *Observer) enqueue(added []*dom.Element) {
	container := o.resolver.Find(selectors.RoleChatContainer)
	itemSels := o.resolver.Candidates(selectors.RoleMessageItem)

	var kept []*dom.Element
	for _, el := range added {
		if el.Detached() {
			continue
		}
		inChat := container != nil && container.Contains(el)
		if !inChat && !(container == nil && o.matchesAny(el, itemSels)) {
			continue
		}
		covered := false
		for _, k := range kept {
			if k.Contains(el) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		kept = append(kept, el)
	}
	o.pending = append(o.pending, kept...)
}

func (o *Observer) matchesAny(el *dom.Element, sels []string) bool {
	for _, sel := range sels {
		if el.Matches(sel) {
			return true
		}
	}
	return false
}

// flush extracts every queued node in one pass. All messages in the flush
// share the same timestamp; the fingerprint includes it so a genuinely
// repeated message in a later flush is not swallowed forever.
func (o *Observer) flush() {
	if len(o.pending) == 0 {
		return
	}
	batch := o.pending
	o.pending = nil

	now := time.Now()
	delivered := 0
	for _, el := range batch {
		msg, ok := o.extractor.Extract(el)
		if !ok {
			continue
		}
		fp := utils.MessageFingerprint(msg.Username, msg.Text, now.UnixMilli())
		o.seenMu.Lock()
		fresh := o.seen.Add(fp)
		o.seenMu.Unlock()
		if !fresh {
			continue
		}
		msg.Seen = now
		o.handler(msg)
		delivered++
	}

	if delivered > 0 {
		o.log.WithFields(logrus.Fields{"queued": len(batch), "delivered": delivered}).
			Debug("Flushed chat batch")
	}
}

// SeenCount reports the number of fingerprints currently held, for status
// reporting.
func (o *Observer) SeenCount() int {
	o.seenMu.Lock()
	defer o.seenMu.Unlock()
	return o.seen.Len()
}
