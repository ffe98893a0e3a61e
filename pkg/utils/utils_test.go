package utils

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSanitizeMessage(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"trims whitespace", "  hello  ", 100, "hello"},
		{"strips control chars", "a\x00b\nc", 100, "a b c"},
		{"truncates", "abcdefgh", 4, "abcd"},
		{"empty", "   ", 100, ""},
		{"multibyte boundary", "héllo", 2, "h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeMessage(tt.in, tt.maxLen)
			if got != tt.want {
				t.Errorf("SanitizeMessage(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestSubstituteUsername(t *testing.T) {
	got := SubstituteUsername("welcome {username}, enjoy {username}!", "alice")
	want := "welcome alice, enjoy alice!"
	if got != want {
		t.Errorf("SubstituteUsername = %q, want %q", got, want)
	}
}

func TestMessageFingerprintStable(t *testing.T) {
	a := MessageFingerprint("bob", "hi there", 1700000000123)
	b := MessageFingerprint("bob", "hi there", 1700000000123)
	c := MessageFingerprint("bob", "hi there", 1700000000124)

	if a != b {
		t.Error("identical inputs should produce identical fingerprints")
	}
	if a == c {
		t.Error("different timestamps should produce different fingerprints")
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "None"},
		{ErrSelectorMiss, "Selector_Miss"},
		{fmt.Errorf("%w: role chatInput", ErrSelectorMiss), "Selector_Miss"},
		{ErrRateLimited, "Gate_RateLimited"},
		{ErrQuotaExceeded, "Gate_Quota"},
		{fmt.Errorf("%w: bad selector grammar", ErrParsing), "Content_ParsingSelector"},
		{errors.New("mystery"), "Unknown"},
	}

	for _, tt := range tests {
		got := CategorizeError(tt.err)
		if got != tt.want {
			t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestIsGateRejection(t *testing.T) {
	if !IsGateRejection(fmt.Errorf("%w: cooldown", ErrRateLimited)) {
		t.Error("wrapped rate limit error should be a gate rejection")
	}
	if IsGateRejection(ErrDatabase) {
		t.Error("database error is not a gate rejection")
	}
}

func TestTruncateRunes(t *testing.T) {
	s := strings.Repeat("é", 10) // 2 bytes each
	got := TruncateRunes(s, 5)
	if len(got) != 4 {
		t.Errorf("expected truncation to rune boundary (4 bytes), got %d bytes", len(got))
	}
}
