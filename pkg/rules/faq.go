package rules

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"chatpilot/pkg/config"
)

// matchFAQ evaluates rules in configured order and sends the response of
// the first rule whose trigger phrase appears in the message. One reply per
// message at most.
func matchFAQ(ctx context.Context, cfg config.FAQConfig, text string, send SendFunc) bool {
	lower := strings.ToLower(text)
	for _, rule := range cfg.Rules {
		if rule.Response == "" {
			continue
		}
		matched := lo.SomeBy(rule.Triggers, func(trigger string) bool {
			if trigger == "" {
				return false
			}
			if rule.CaseSensitive {
				return strings.Contains(text, trigger)
			}
			return strings.Contains(lower, strings.ToLower(trigger))
		})
		if matched {
			_ = send(ctx, rule.Response)
			return true
		}
	}
	return false
}
