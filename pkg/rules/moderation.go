package rules

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"chatpilot/pkg/collections"
	"chatpilot/pkg/config"
)

const (
	// HistoryCapacity bounds the per-user repeat-detection map.
	HistoryCapacity = 1000

	// HistoryRing caps the recent-message ring kept per user.
	HistoryRing = 10

	repeatWindow = 60 * time.Second
)

type historyEntry struct {
	text string
	at   time.Time
}

// moderator drops messages containing blocked words or excessive exact
// repeats from the same user within the trailing minute.
type moderator struct {
	history *collections.LRUMap[[]historyEntry]
}

func newModerator() *moderator {
	return &moderator{history: collections.NewLRUMap[[]historyEntry](HistoryCapacity)}
}

// check reports whether the message should be blocked. It records the
// message into the user's history ring either way.
func (mod *moderator) check(cfg config.ModerationConfig, username, text string, now time.Time) bool {
	lower := strings.ToLower(text)
	blocked := lo.SomeBy(cfg.BlockedWords, func(w string) bool {
		return w != "" && strings.Contains(lower, strings.ToLower(w))
	})

	ring, _ := mod.history.Get(username)
	cutoff := now.Add(-repeatWindow)
	repeats := 0
	for _, e := range ring {
		if e.text == text && e.at.After(cutoff) {
			repeats++
		}
	}

	ring = append(ring, historyEntry{text: text, at: now})
	if len(ring) > HistoryRing {
		ring = ring[len(ring)-HistoryRing:]
	}
	mod.history.Put(username, ring)

	maxRepeats := cfg.MaxRepeats
	if maxRepeats <= 0 {
		maxRepeats = 3
	}
	return blocked || repeats >= maxRepeats
}

func (mod *moderator) reset() {
	mod.history.Clear()
}
