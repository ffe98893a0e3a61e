package rules

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"chatpilot/pkg/config"
	"chatpilot/pkg/observe"
)

// SendFunc emits one outbound chat message. Implementations apply rate
// limiting and quota internally; a gate rejection surfaces as an error the
// pipeline treats as "skip this turn", never as a failure.
type SendFunc func(ctx context.Context, text string) error

// Notifier receives pipeline events destined for the other process.
type Notifier interface {
	GiveawayEntry(username string, total int)
	MetricsUpdate(s MetricsSnapshot)
	CommandUsed(trigger string, uses int)
}

// Result describes how a message moved through the pipeline.
type Result struct {
	Handled bool   // Some stage produced or suppressed a response
	Blocked bool   // Moderation stopped the pipeline
	Stage   string // The stage that handled or blocked, "" if none
}

// Deps are the pipeline's external capabilities.
type Deps struct {
	Send     SendFunc
	Notifier Notifier
	Persist  func() // Queue a settings persistence (command usage counters)
	Log      *logrus.Entry
}

// Pipeline classifies each incoming chat message through a fixed stage
// order: metrics, moderation, giveaway, welcome, commands, FAQ. Each stage
// is gated by its own enabled flag; moderation stops the chain, a handled
// command suppresses FAQ, and the first FAQ match is the only FAQ reply.
type Pipeline struct {
	mu       sync.Mutex
	settings config.Settings

	metrics  *Metrics
	mod      *moderator
	giveaway *Giveaway
	welcome  *welcomer
	commands *commander

	deps Deps
}

// NewPipeline creates a Pipeline with the given settings and capabilities.
func NewPipeline(settings config.Settings, deps Deps) *Pipeline {
	return &Pipeline{
		settings: settings,
		metrics:  NewMetrics(),
		mod:      newModerator(),
		giveaway: NewGiveaway(),
		welcome:  newWelcomer(),
		commands: newCommander(),
		deps:     deps,
	}
}

// UpdateSettings swaps in a validated settings object. Session caches
// (welcomed users, giveaway entries, histories) survive the update.
func (p *Pipeline) UpdateSettings(settings config.Settings) {
	p.mu.Lock()
	p.settings = settings
	p.mu.Unlock()
}

// Settings returns a copy of the current settings, including usage counters
// the pipeline has incremented.
func (p *Pipeline) Settings() config.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// Metrics exposes the session metrics tracker.
func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// Giveaway exposes the giveaway entry tracker.
func (p *Pipeline) Giveaway() *Giveaway { return p.giveaway }

// Process runs msg through the stage chain.
func (p *Pipeline) Process(ctx context.Context, msg observe.Message) Result {
	username := strings.TrimSpace(msg.Username)
	text := strings.TrimSpace(msg.Text)
	if username == "" || text == "" {
		return Result{}
	}

	p.mu.Lock()
	cfg := p.settings
	p.mu.Unlock()

	// Metrics always run, even for messages moderation later drops
	total := p.metrics.Record(username, msg.Seen)
	if total%MetricsReportEvery == 0 && p.deps.Notifier != nil {
		p.deps.Notifier.MetricsUpdate(p.metrics.Snapshot())
	}

	if cfg.Moderation.Enabled && p.mod.check(cfg.Moderation, username, text, msg.Seen) {
		p.deps.Log.WithFields(logrus.Fields{"user": username}).Debug("Message blocked by moderation")
		return Result{Handled: true, Blocked: true, Stage: "moderation"}
	}

	if cfg.Giveaway.Enabled {
		if entries, entered := p.giveaway.observe(cfg.Giveaway, username, text, msg.Seen); entered {
			p.deps.Log.WithFields(logrus.Fields{"user": username, "entries": entries}).Info("Giveaway entry recorded")
			if p.deps.Notifier != nil {
				p.deps.Notifier.GiveawayEntry(username, entries)
			}
		}
	}

	if cfg.Welcome.Enabled {
		if p.welcome.greet(cfg.Welcome, username, p.deps.Send) {
			p.deps.Log.WithField("user", username).Debug("Welcome scheduled")
		}
	}

	if cfg.Commands.Enabled && strings.HasPrefix(strings.TrimSpace(text), "!") {
		outcome := p.runCommand(ctx, username, text, msg)
		if outcome.handled {
			return Result{Handled: true, Stage: "commands"}
		}
	}

	if cfg.FAQ.Enabled && matchFAQ(ctx, cfg.FAQ, text, p.deps.Send) {
		return Result{Handled: true, Stage: "faq"}
	}

	return Result{}
}

// runCommand executes the commands stage against the live settings so usage
// counters persist across the copy Process took. The response is sent
// outside the settings lock.
func (p *Pipeline) runCommand(ctx context.Context, username, text string, msg observe.Message) commandOutcome {
	p.mu.Lock()
	outcome := p.commands.run(&p.settings.Commands, username, text, msg.Seen)
	p.mu.Unlock()

	if outcome.fired {
		_ = p.deps.Send(ctx, outcome.response)
		p.deps.Log.WithFields(logrus.Fields{"trigger": outcome.trigger, "uses": outcome.uses}).
			Debug("Command executed")
		if p.deps.Notifier != nil {
			p.deps.Notifier.CommandUsed(outcome.trigger, outcome.uses)
		}
		if p.deps.Persist != nil {
			p.deps.Persist()
		}
	}
	return outcome
}

// ResetSession clears all per-session caches: welcomed users, giveaway
// entries, moderation history, command cooldowns and metrics.
func (p *Pipeline) ResetSession() {
	p.welcome.reset()
	p.giveaway.Reset()
	p.mod.reset()
	p.commands.reset()
	p.metrics.Reset()
}
