package selectors

import (
	"fmt"

	"github.com/andybalholm/cascadia"

	"chatpilot/pkg/utils"
)

// Role is a logical chat UI element category resolved against page-specific
// CSS selectors.
type Role string

const (
	RoleChatInput     Role = "chatInput"
	RoleChatContainer Role = "chatContainer"
	RoleSendButton    Role = "sendButton"
	RoleMessageItem   Role = "messageItem"
	RoleUsername      Role = "username"
	RoleMessageText   Role = "messageText"
	RoleLiveIndicator Role = "liveIndicator"
)

// AllRoles returns every selector role, in a stable order.
func AllRoles() []Role {
	return []Role{
		RoleChatInput, RoleChatContainer, RoleSendButton,
		RoleMessageItem, RoleUsername, RoleMessageText, RoleLiveIndicator,
	}
}

// MaxSelectorLen caps a single selector string. Provider data is remote and
// untrusted; anything longer is rejected outright.
const MaxSelectorLen = 256

// Set maps each role to an ordered list of candidate selectors, tried in
// order. Entries are plain CSS selector strings, interpreted as nothing else.
type Set map[Role][]string

// Clone returns a deep copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for role, candidates := range s {
		cp := make([]string, len(candidates))
		copy(cp, candidates)
		out[role] = cp
	}
	return out
}

// Validate checks that every required role is present with a non-empty list
// of parseable, length-capped selector strings. This is the strict allow-list
// gate for provider-supplied data.
func Validate(s Set) error {
	for _, role := range AllRoles() {
		candidates, ok := s[role]
		if !ok || len(candidates) == 0 {
			return fmt.Errorf("%w: role %q missing or empty", utils.ErrSelectorSet, role)
		}
		for _, c := range candidates {
			if c == "" {
				return fmt.Errorf("%w: role %q has an empty selector", utils.ErrSelectorSet, role)
			}
			if len(c) > MaxSelectorLen {
				return fmt.Errorf("%w: role %q selector exceeds %d bytes", utils.ErrSelectorSet, role, MaxSelectorLen)
			}
			if _, err := cascadia.Compile(c); err != nil {
				return fmt.Errorf("%w: role %q selector %q does not parse: %v", utils.ErrSelectorSet, role, c, err)
			}
		}
	}
	return nil
}

// ValidateOverride checks an operator-configured selector override: it must
// parse under the CSS selector grammar and respect the length cap. Grammar
// acceptance replaces the older blacklist scan; a string that parses as a
// selector cannot carry markup or script.
func ValidateOverride(selector string) error {
	if selector == "" {
		return fmt.Errorf("%w: empty override selector", utils.ErrSelectorSet)
	}
	if len(selector) > MaxSelectorLen {
		return fmt.Errorf("%w: override selector exceeds %d bytes", utils.ErrSelectorSet, MaxSelectorLen)
	}
	if _, err := cascadia.Compile(selector); err != nil {
		return fmt.Errorf("%w: override selector %q does not parse: %v", utils.ErrSelectorSet, selector, err)
	}
	return nil
}

// Fallback returns the bundled default selector set. Every role is non-empty
// by construction; this set is used whenever provider data is missing or
// fails validation.
func Fallback() Set {
	return Set{
		RoleChatInput: {
			`input[placeholder*="chat" i]`,
			`textarea[placeholder*="say" i]`,
			`div[contenteditable="true"]`,
			`.chat-input input`,
			`input[type="text"]`,
		},
		RoleChatContainer: {
			`[class*="chat-list"]`,
			`[class*="chat-container"]`,
			`[class*="comment-list"]`,
			`#chat`,
			`[class*="chat"]`,
		},
		RoleSendButton: {
			`button[class*="send"]`,
			`[class*="submit-button"]`,
			`button[type="submit"]`,
		},
		RoleMessageItem: {
			`[class*="chat-item"]`,
			`[class*="chat-line"]`,
			`[class*="comment-item"]`,
			`[class*="message"]`,
		},
		RoleUsername: {
			`[class*="username"]`,
			`[class*="nickname"]`,
			`[class*="author"]`,
			`.user`,
		},
		RoleMessageText: {
			`[class*="message-text"]`,
			`[class*="comment-text"]`,
			`[class*="content"]`,
			`.msg`,
		},
		RoleLiveIndicator: {
			`[class*="live-badge"]`,
			`[class*="live-indicator"]`,
			`[data-status="live"]`,
			`#live-badge`,
		},
	}
}
