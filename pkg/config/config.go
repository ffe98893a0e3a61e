package config

// CurrentVersion is the settings schema version written by this build.
const CurrentVersion = 3

// Limits applied during validation and normalization. Cross-process input is
// capped hard; anything over these bounds is truncated, never trusted.
const (
	MaxRules           = 100 // FAQ rules, commands, keywords, blocked words, quick replies
	MaxTriggersPerRule = 20
	MaxTextLen         = 500 // Any single free-text field
	MaxTimers          = 20
	FreeTierQuota      = 50 // Default messages limit for limited tiers
)

// Tier is the account plan controlling the quota gate.
type Tier string

const (
	TierFree      Tier = "free"
	TierPro       Tier = "pro"
	TierUnlimited Tier = "unlimited"
)

// Unlimited reports whether the tier bypasses the message quota.
func (t Tier) Unlimited() bool { return t == TierUnlimited }

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierFree || t == TierPro || t == TierUnlimited
}

// Settings is the persisted, versioned configuration. The popup process
// writes it; the engine is a read-mostly client except for quota counters,
// command usage and quick-reply minimized state, which it writes back.
type Settings struct {
	Version  int    `yaml:"version" json:"version"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Platform string `yaml:"platform,omitempty" json:"platform,omitempty"`
	Tier     Tier   `yaml:"tier" json:"tier"`

	// Quota counters, distinct from short-window rate limiting
	MessagesUsed  int `yaml:"messages_used" json:"messagesUsed"`
	MessagesLimit int `yaml:"messages_limit" json:"messagesLimit"`

	// Operator-configured chat input override, validated before use
	InputOverrideSelector string `yaml:"input_override_selector,omitempty" json:"inputOverrideSelector,omitempty"`

	Welcome      WelcomeConfig      `yaml:"welcome" json:"welcome"`
	Timers       []TimerMessage     `yaml:"timers,omitempty" json:"timers,omitempty"`
	FAQ          FAQConfig          `yaml:"faq" json:"faq"`
	Moderation   ModerationConfig   `yaml:"moderation" json:"moderation"`
	Giveaway     GiveawayConfig     `yaml:"giveaway" json:"giveaway"`
	Commands     CommandsConfig     `yaml:"commands" json:"commands"`
	QuickReplies QuickRepliesConfig `yaml:"quick_replies" json:"quickReplies"`
}

// WelcomeConfig greets first-time chatters once per session.
type WelcomeConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	Message      string `yaml:"message,omitempty" json:"message,omitempty"` // {username} substituted
	DelaySeconds int    `yaml:"delay_seconds,omitempty" json:"delaySeconds,omitempty"`
}

// TimerMessage is one periodic broadcast entry.
type TimerMessage struct {
	Text            string `yaml:"text" json:"text"`
	IntervalMinutes int    `yaml:"interval_minutes" json:"intervalMinutes"`
}

// FAQRule replies to the first matching trigger phrase.
type FAQRule struct {
	Triggers      []string `yaml:"triggers" json:"triggers"`
	Response      string   `yaml:"response" json:"response"`
	CaseSensitive bool     `yaml:"case_sensitive,omitempty" json:"caseSensitive,omitempty"`
}

// FAQConfig holds ordered FAQ rules; only the first match replies.
type FAQConfig struct {
	Enabled bool      `yaml:"enabled" json:"enabled"`
	Rules   []FAQRule `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// ModerationConfig drops messages containing blocked words or excessive
// exact repeats.
type ModerationConfig struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	BlockedWords []string `yaml:"blocked_words,omitempty" json:"blockedWords,omitempty"`
	MaxRepeats   int      `yaml:"max_repeats,omitempty" json:"maxRepeats,omitempty"` // Same text within 60s
}

// GiveawayConfig tracks keyword entries.
type GiveawayConfig struct {
	Enabled    bool     `yaml:"enabled" json:"enabled"`
	Keywords   []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	UniqueOnly bool     `yaml:"unique_only,omitempty" json:"uniqueOnly,omitempty"`
}

// Command is a "!trigger" chat command with a canned response.
type Command struct {
	Trigger  string `yaml:"trigger" json:"trigger"`
	Response string `yaml:"response" json:"response"` // {username} substituted
	Uses     int    `yaml:"uses,omitempty" json:"uses,omitempty"`
}

// CommandsConfig holds chat commands and their shared cooldown.
type CommandsConfig struct {
	Enabled         bool      `yaml:"enabled" json:"enabled"`
	CooldownSeconds int       `yaml:"cooldown_seconds,omitempty" json:"cooldownSeconds,omitempty"`
	Commands        []Command `yaml:"commands,omitempty" json:"commands,omitempty"`
}

// QuickRepliesConfig is the operator's one-click reply palette. Minimized
// state is written back by the engine (batched).
type QuickRepliesConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Replies   []string `yaml:"replies,omitempty" json:"replies,omitempty"`
	Minimized bool     `yaml:"minimized,omitempty" json:"minimized,omitempty"`
}

// Default returns a Settings value with every feature disabled and safe
// defaults applied.
func Default() Settings {
	s := Settings{
		Version: CurrentVersion,
		Tier:    TierFree,
	}
	s.Validate() // applies nested defaults
	return s
}
