package rules

import (
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"chatpilot/pkg/collections"
	"chatpilot/pkg/config"
)

// GiveawayCapacity bounds the entry map; a giveaway with more distinct
// entrants than this starts evicting the oldest entries.
const GiveawayCapacity = 5000

// EntrySnapshot is one giveaway entry as reported to the other process.
type EntrySnapshot struct {
	Username  string    `json:"username"`
	EnteredAt time.Time `json:"enteredAt"`
}

// Giveaway tracks keyword entries per session.
type Giveaway struct {
	mu      sync.Mutex
	entries *collections.LRUMap[time.Time]
	total   int
}

// NewGiveaway creates an empty tracker.
func NewGiveaway() *Giveaway {
	return &Giveaway{entries: collections.NewLRUMap[time.Time](GiveawayCapacity)}
}

// observe records an entry when the message contains a configured keyword.
// Returns the new total and true when a new entry was recorded; in
// unique-only mode, repeat entries from the same user are silently ignored.
func (g *Giveaway) observe(cfg config.GiveawayConfig, username, text string, now time.Time) (int, bool) {
	lower := strings.ToLower(text)
	match := lo.SomeBy(cfg.Keywords, func(k string) bool {
		return k != "" && strings.Contains(lower, strings.ToLower(k))
	})
	if !match {
		return 0, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	_, existing := g.entries.Peek(username)
	if existing && cfg.UniqueOnly {
		return g.total, false
	}
	g.entries.Put(username, now)
	if !existing {
		g.total++
	}
	return g.total, !existing
}

// Entries returns a snapshot of current entries, oldest first.
func (g *Giveaway) Entries() []EntrySnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]EntrySnapshot, 0, g.entries.Len())
	for _, username := range g.entries.Keys() {
		at, _ := g.entries.Peek(username)
		out = append(out, EntrySnapshot{Username: username, EnteredAt: at})
	}
	return out
}

// Reset clears all entries and returns how many were dropped.
func (g *Giveaway) Reset() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.entries.Len()
	g.entries.Clear()
	g.total = 0
	return n
}
