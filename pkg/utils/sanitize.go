package utils

import (
	"strings"
	"unicode/utf8"
)

// --- Outbound Message Sanitization ---
const maxControlReplacement = ' ' // Control characters collapse to a space

// SanitizeMessage cleans outbound chat text: trims surrounding whitespace,
// replaces control characters, and truncates to maxLen bytes on a rune
// boundary. An empty result means there is nothing worth sending.
func SanitizeMessage(text string, maxLen int) string {
	var b strings.Builder
	for _, r := range text {
		if r < 0x20 || r == 0x7f {
			b.WriteRune(maxControlReplacement)
			continue
		}
		b.WriteRune(r)
	}
	sanitized := strings.TrimSpace(b.String())

	if maxLen > 0 && len(sanitized) > maxLen {
		sanitized = TruncateRunes(sanitized, maxLen)
		sanitized = strings.TrimSpace(sanitized)
	}
	return sanitized
}

// TruncateRunes cuts s to at most maxBytes bytes without splitting a rune.
func TruncateRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// SubstituteUsername expands the {username} placeholder in a message template.
func SubstituteUsername(template, username string) string {
	return strings.ReplaceAll(template, "{username}", username)
}
