package util

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens). Keep it broad: tokens show up
	// in logs via downstream libraries and HTTP error messages.
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|gemini[_-]?api[_-]?key|x-goog-api-key)\b\s*[:=]\s*[^\s"'&]+`)

	// Key material passed as a URL query parameter.
	keyQueryRe = regexp.MustCompile(`(?i)([?&]key=)[^\s"'&]+`)
)

// RedactSecrets removes obvious secret-bearing substrings from error/log strings.
//
// This is intentionally conservative: it should be safe to call on any message,
// including user-provided inputs and upstream error strings.
func RedactSecrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	out = keyQueryRe.ReplaceAllString(out, "${1}<redacted>")
	return strings.TrimSpace(out)
}

// Truncate caps s at max runes, appending "..." when anything was cut.
// Row-level error text is stored in summaries and should stay short.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
