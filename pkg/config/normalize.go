package config

import (
	"fmt"

	"github.com/tidwall/gjson"

	"chatpilot/pkg/utils"
)

// Normalize builds Settings from an untrusted JSON payload, field by field.
// The payload comes from another process over the messaging bridge; a
// compromised or buggy peer could send unbounded arrays, wrong types, or
// poisoned keys, so nothing is adopted as-is. Unknown fields are ignored,
// wrong-typed fields fall back to defaults, and the result goes through
// Validate before use.
func Normalize(raw []byte) (Settings, error) {
	if !gjson.ValidBytes(raw) {
		return Settings{}, fmt.Errorf("%w: settings payload is not valid JSON", utils.ErrParsing)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Settings{}, fmt.Errorf("%w: settings payload is not a JSON object", utils.ErrParsing)
	}

	s := Settings{
		Version:               intField(root, "version", CurrentVersion),
		Enabled:               root.Get("enabled").Bool(),
		Platform:              strField(root, "platform"),
		Tier:                  Tier(strField(root, "tier")),
		MessagesUsed:          intField(root, "messagesUsed", 0),
		MessagesLimit:         intField(root, "messagesLimit", 0),
		InputOverrideSelector: strField(root, "inputOverrideSelector"),
	}

	w := root.Get("welcome")
	s.Welcome = WelcomeConfig{
		Enabled:      w.Get("enabled").Bool(),
		Message:      strField(w, "message"),
		DelaySeconds: intField(w, "delaySeconds", 0),
	}

	root.Get("timers").ForEach(func(_, tm gjson.Result) bool {
		if len(s.Timers) >= MaxTimers {
			return false
		}
		s.Timers = append(s.Timers, TimerMessage{
			Text:            strField(tm, "text"),
			IntervalMinutes: intField(tm, "intervalMinutes", 0),
		})
		return true
	})

	f := root.Get("faq")
	s.FAQ.Enabled = f.Get("enabled").Bool()
	f.Get("rules").ForEach(func(_, rule gjson.Result) bool {
		if len(s.FAQ.Rules) >= MaxRules {
			return false
		}
		s.FAQ.Rules = append(s.FAQ.Rules, FAQRule{
			Triggers:      strList(rule.Get("triggers"), MaxTriggersPerRule),
			Response:      strField(rule, "response"),
			CaseSensitive: rule.Get("caseSensitive").Bool(),
		})
		return true
	})

	m := root.Get("moderation")
	s.Moderation = ModerationConfig{
		Enabled:      m.Get("enabled").Bool(),
		BlockedWords: strList(m.Get("blockedWords"), MaxRules),
		MaxRepeats:   intField(m, "maxRepeats", 0),
	}

	g := root.Get("giveaway")
	s.Giveaway = GiveawayConfig{
		Enabled:    g.Get("enabled").Bool(),
		Keywords:   strList(g.Get("keywords"), MaxRules),
		UniqueOnly: g.Get("uniqueOnly").Bool(),
	}

	c := root.Get("commands")
	s.Commands.Enabled = c.Get("enabled").Bool()
	s.Commands.CooldownSeconds = intField(c, "cooldownSeconds", 0)
	c.Get("commands").ForEach(func(_, cmd gjson.Result) bool {
		if len(s.Commands.Commands) >= MaxRules {
			return false
		}
		s.Commands.Commands = append(s.Commands.Commands, Command{
			Trigger:  strField(cmd, "trigger"),
			Response: strField(cmd, "response"),
			Uses:     intField(cmd, "uses", 0),
		})
		return true
	})

	q := root.Get("quickReplies")
	s.QuickReplies = QuickRepliesConfig{
		Enabled:   q.Get("enabled").Bool(),
		Replies:   strList(q.Get("replies"), MaxRules),
		Minimized: q.Get("minimized").Bool(),
	}

	s.Validate()
	return s, nil
}

// strField extracts a string field, rejecting non-string types and capping
// length. A number or object where a string belongs yields "".
func strField(v gjson.Result, path string) string {
	f := v.Get(path)
	if f.Type != gjson.String {
		return ""
	}
	return utils.TruncateRunes(f.String(), MaxTextLen)
}

// intField extracts a numeric field, substituting def for wrong types.
func intField(v gjson.Result, path string, def int) int {
	f := v.Get(path)
	if f.Type != gjson.Number {
		return def
	}
	return int(f.Int())
}

// strList extracts an array of strings, dropping non-string entries and
// capping the list length.
func strList(v gjson.Result, max int) []string {
	if !v.IsArray() {
		return nil
	}
	var out []string
	v.ForEach(func(_, item gjson.Result) bool {
		if len(out) >= max {
			return false
		}
		if item.Type == gjson.String {
			out = append(out, utils.TruncateRunes(item.String(), MaxTextLen))
		}
		return true
	})
	return out
}
