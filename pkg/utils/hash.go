package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// CalculateStringSHA256 computes the SHA-256 hash of a string.
func CalculateStringSHA256(content string) string {
	hash := sha256.New()
	hash.Write([]byte(content))
	return hex.EncodeToString(hash.Sum(nil))
}

// MessageFingerprint derives a short-lived deduplication key from a chat
// message's sender, text and observation time (millisecond resolution).
// Overlapping observer callbacks that report the same logical chat line
// produce the same fingerprint and are suppressed by the caller.
func MessageFingerprint(username, text string, unixMilli int64) string {
	var b strings.Builder
	b.WriteString(username)
	b.WriteByte('|')
	b.WriteString(text)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(unixMilli, 10))
	return CalculateStringSHA256(b.String())
}
