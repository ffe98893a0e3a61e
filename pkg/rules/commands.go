package rules

import (
	"strings"
	"sync"
	"time"

	"chatpilot/pkg/config"
	"chatpilot/pkg/utils"
)

// cooldownSweepAge is the staleness threshold for command cooldown entries.
// Entries older than this are dropped on each pass so the map stays bounded
// over a multi-hour session.
const cooldownSweepAge = 10 * time.Minute

// commander matches "!trigger" messages against configured commands with a
// shared per-trigger cooldown.
type commander struct {
	mu        sync.Mutex
	lastUsed  map[string]time.Time // lowercased trigger -> last execution
	lastSweep time.Time
}

func newCommander() *commander {
	return &commander{lastUsed: make(map[string]time.Time)}
}

// commandOutcome reports how a "!..." message was resolved.
type commandOutcome struct {
	handled  bool   // A command matched (executed or on cooldown); FAQ is skipped
	fired    bool   // A response was produced
	trigger  string // Matched trigger, lowercased
	uses     int    // Usage count after execution
	response string // Substituted response text, sent by the caller
}

// run matches a "!"-prefixed message against configured commands.
// cfg.Commands is mutated in place when a usage counter increments; the
// caller owns persistence of that change and sending of the response.
func (c *commander) run(cfg *config.CommandsConfig, username, text string, now time.Time) commandOutcome {
	word := firstCommandWord(text)
	if word == "" {
		return commandOutcome{}
	}

	idx := -1
	for i := range cfg.Commands {
		if strings.EqualFold(cfg.Commands[i].Trigger, word) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return commandOutcome{}
	}
	trigger := strings.ToLower(cfg.Commands[idx].Trigger)

	cooldown := time.Duration(cfg.CooldownSeconds) * time.Second

	c.mu.Lock()
	c.sweepLocked(now)
	if last, ok := c.lastUsed[trigger]; ok && cooldown > 0 && now.Sub(last) < cooldown {
		c.mu.Unlock()
		// On cooldown: handled so FAQ stays quiet, but nothing is sent
		return commandOutcome{handled: true, trigger: trigger}
	}
	c.lastUsed[trigger] = now
	c.mu.Unlock()

	cfg.Commands[idx].Uses++
	return commandOutcome{
		handled:  true,
		fired:    true,
		trigger:  trigger,
		uses:     cfg.Commands[idx].Uses,
		response: utils.SubstituteUsername(cfg.Commands[idx].Response, username),
	}
}

// firstCommandWord extracts the word following "!" from text, or "".
func firstCommandWord(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "!") {
		return ""
	}
	rest := trimmed[1:]
	if i := strings.IndexFunc(rest, func(r rune) bool { return r == ' ' || r == '\t' }); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func (c *commander) sweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < cooldownSweepAge {
		return
	}
	c.lastSweep = now
	for trigger, last := range c.lastUsed {
		if now.Sub(last) > cooldownSweepAge {
			delete(c.lastUsed, trigger)
		}
	}
}

func (c *commander) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = make(map[string]time.Time)
	c.lastSweep = time.Time{}
}
