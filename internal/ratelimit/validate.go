package ratelimit

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength caps raw message length in characters. Roughly 500
// tokens at the usual 4-characters-per-token estimate, which keeps a
// single request well under the provider output budget.
const MaxMessageLength = 2000

// suspiciousPatterns are case-insensitive substrings that reject a
// message outright. This is a crude defense-in-depth heuristic against
// obvious prompt/code injection attempts, not a security boundary: a
// substring match is trivially evaded and that is a known, accepted
// limitation.
var suspiciousPatterns = []string{
	"ignore previous instructions",
	"ignore all previous",
	"disregard previous",
	"forget everything",
	"new instructions",
	"system: ",
	"system:",
	"<script",
	"javascript:",
	"eval(",
	"exec(",
}

// ValidateMessageContent applies the pre-admission content gate to a
// message payload. It is independent of identifier-based throttling and
// returns (false, reason) on the first failing check, where reason is
// safe to show to the end user.
func ValidateMessageContent(message string) (bool, string) {
	trimmed := strings.TrimSpace(message)

	if trimmed == "" {
		return false, "Message cannot be empty."
	}

	// Lengths are measured in characters, not bytes, so multi-byte
	// scripts get the same limits as ASCII.
	if utf8.RuneCountInString(trimmed) < 2 {
		return false, "Message is too short. Please provide a meaningful message."
	}

	if utf8.RuneCountInString(message) > MaxMessageLength {
		return false, fmt.Sprintf("Message is too long. Maximum length is %d characters.", MaxMessageLength)
	}

	lower := strings.ToLower(message)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(lower, pattern) {
			return false, "Your message contains content that cannot be processed. Please rephrase."
		}
	}

	return true, ""
}
