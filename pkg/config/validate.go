package config

import (
	"fmt"

	"chatpilot/pkg/utils"
)

// Validate checks Settings fields and applies safe defaults in place.
// Returns collected warnings and any fatal error. Every nested feature
// object ends up with a usable default; Validate never leaves a field in a
// state the engine cannot run with.
func (s *Settings) Validate() (warnings []string, err error) {
	if s.Version <= 0 {
		s.Version = CurrentVersion
	}

	if !s.Tier.Valid() {
		warnings = append(warnings, fmt.Sprintf("unknown tier %q, defaulting to free", s.Tier))
		s.Tier = TierFree
	}

	if s.MessagesUsed < 0 {
		warnings = append(warnings, "messages_used cannot be negative, setting to 0")
		s.MessagesUsed = 0
	}
	if !s.Tier.Unlimited() && s.MessagesLimit <= 0 {
		warnings = append(warnings, fmt.Sprintf("messages_limit not set for limited tier, defaulting to %d", FreeTierQuota))
		s.MessagesLimit = FreeTierQuota
	}

	if s.InputOverrideSelector != "" && len(s.InputOverrideSelector) > MaxTextLen {
		warnings = append(warnings, "input_override_selector too long, clearing")
		s.InputOverrideSelector = ""
	}

	// Welcome
	if s.Welcome.DelaySeconds <= 0 {
		s.Welcome.DelaySeconds = 2
	}
	s.Welcome.Message = capText(s.Welcome.Message)
	if s.Welcome.Enabled && s.Welcome.Message == "" {
		warnings = append(warnings, "welcome enabled without a message, disabling")
		s.Welcome.Enabled = false
	}

	// Timers
	if len(s.Timers) > MaxTimers {
		warnings = append(warnings, fmt.Sprintf("too many timers, keeping first %d", MaxTimers))
		s.Timers = s.Timers[:MaxTimers]
	}
	valid := s.Timers[:0]
	for _, tm := range s.Timers {
		tm.Text = capText(tm.Text)
		if tm.Text == "" || tm.IntervalMinutes <= 0 {
			continue // silently skipped at schedule time anyway
		}
		valid = append(valid, tm)
	}
	s.Timers = valid

	// FAQ
	if len(s.FAQ.Rules) > MaxRules {
		warnings = append(warnings, fmt.Sprintf("too many FAQ rules, keeping first %d", MaxRules))
		s.FAQ.Rules = s.FAQ.Rules[:MaxRules]
	}
	for i := range s.FAQ.Rules {
		r := &s.FAQ.Rules[i]
		if len(r.Triggers) > MaxTriggersPerRule {
			r.Triggers = r.Triggers[:MaxTriggersPerRule]
		}
		for j := range r.Triggers {
			r.Triggers[j] = capText(r.Triggers[j])
		}
		r.Response = capText(r.Response)
	}

	// Moderation
	if s.Moderation.MaxRepeats <= 0 {
		s.Moderation.MaxRepeats = 3
	}
	if len(s.Moderation.BlockedWords) > MaxRules {
		warnings = append(warnings, fmt.Sprintf("too many blocked words, keeping first %d", MaxRules))
		s.Moderation.BlockedWords = s.Moderation.BlockedWords[:MaxRules]
	}
	for i := range s.Moderation.BlockedWords {
		s.Moderation.BlockedWords[i] = capText(s.Moderation.BlockedWords[i])
	}

	// Giveaway
	if len(s.Giveaway.Keywords) > MaxRules {
		warnings = append(warnings, fmt.Sprintf("too many giveaway keywords, keeping first %d", MaxRules))
		s.Giveaway.Keywords = s.Giveaway.Keywords[:MaxRules]
	}
	for i := range s.Giveaway.Keywords {
		s.Giveaway.Keywords[i] = capText(s.Giveaway.Keywords[i])
	}

	// Commands
	if s.Commands.CooldownSeconds <= 0 {
		s.Commands.CooldownSeconds = 30
	}
	if len(s.Commands.Commands) > MaxRules {
		warnings = append(warnings, fmt.Sprintf("too many commands, keeping first %d", MaxRules))
		s.Commands.Commands = s.Commands.Commands[:MaxRules]
	}
	for i := range s.Commands.Commands {
		c := &s.Commands.Commands[i]
		c.Trigger = capText(c.Trigger)
		c.Response = capText(c.Response)
		if c.Uses < 0 {
			c.Uses = 0
		}
	}

	// Quick replies
	if len(s.QuickReplies.Replies) > MaxRules {
		warnings = append(warnings, fmt.Sprintf("too many quick replies, keeping first %d", MaxRules))
		s.QuickReplies.Replies = s.QuickReplies.Replies[:MaxRules]
	}
	for i := range s.QuickReplies.Replies {
		s.QuickReplies.Replies[i] = capText(s.QuickReplies.Replies[i])
	}

	return warnings, nil // Settings validation never fails fatally
}

func capText(v string) string {
	if len(v) > MaxTextLen {
		return utils.TruncateRunes(v, MaxTextLen)
	}
	return v
}
