package bot

import (
	"context"
	"fmt"

	"chatpilot/pkg/bridge"
	"chatpilot/pkg/config"
	"chatpilot/pkg/rules"
)

// Session implements bridge.Hooks; everything the other process can do
// arrives through these methods after bridge validation.
var _ bridge.Hooks = (*Session)(nil)

// ApplySettings adopts a re-validated settings object wholesale: quota gate,
// input override and timers all pick up the new values. Session caches
// (welcomed users, giveaway entries) survive a settings swap.
func (s *Session) ApplySettings(cfg config.Settings) error {
	if warnings, err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	} else {
		for _, w := range warnings {
			s.log.Warnf("Settings adjusted: %s", w)
		}
	}

	s.pipeline.UpdateSettings(cfg)
	s.quota.Update(cfg.Tier, cfg.MessagesUsed, cfg.MessagesLimit)
	if err := s.sender.SetOverrideSelector(cfg.InputOverrideSelector); err != nil {
		s.log.Warnf("Ignoring invalid input override selector: %v", err)
	}

	// Timers restart under the new configuration
	if s.Running() {
		s.timers.Stop()
		s.timers.Start(context.Background(), cfg.Timers)
	}

	switch {
	case !cfg.Enabled:
		s.Stop()
	case s.isLive():
		s.Start()
	}

	if s.writer != nil {
		s.writer.QueueCritical(cfg)
	}
	s.log.Info("Settings updated")
	return nil
}

// SendTemplate sends operator-provided text through the gated path.
func (s *Session) SendTemplate(ctx context.Context, text string) error {
	return s.sender.Send(ctx, text)
}

// QuickReply sends the configured quick reply at index.
func (s *Session) QuickReply(ctx context.Context, index int) error {
	cfg := s.pipeline.Settings()
	if !cfg.QuickReplies.Enabled {
		return fmt.Errorf("quick replies are disabled")
	}
	if index < 0 || index >= len(cfg.QuickReplies.Replies) {
		return fmt.Errorf("quick reply index %d out of range (%d configured)", index, len(cfg.QuickReplies.Replies))
	}
	return s.sender.Send(ctx, cfg.QuickReplies.Replies[index])
}

// GiveawayEntries returns current giveaway entries, oldest first.
func (s *Session) GiveawayEntries() []rules.EntrySnapshot {
	return s.pipeline.Giveaway().Entries()
}

// ResetGiveaway clears entries and returns how many were dropped.
func (s *Session) ResetGiveaway() int {
	return s.pipeline.Giveaway().Reset()
}

// ChatMetrics returns the session metrics snapshot.
func (s *Session) ChatMetrics() rules.MetricsSnapshot {
	return s.pipeline.Metrics().Snapshot()
}

// ResetChatMetrics clears the session metrics.
func (s *Session) ResetChatMetrics() {
	s.pipeline.Metrics().Reset()
}

func (s *Session) isLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDetect.Live
}
