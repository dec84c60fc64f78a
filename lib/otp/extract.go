package otp

import (
	"regexp"
	"strings"
)

// providers render codes next to a small set of predictable words, an
// anchored match is tried first so order ids and phone number fragments
// elsewhere in the message don't win
var keywordRegex = regexp.MustCompile(
	`(?i)(?:verification|one[\s-]?time|security\s+code|passcode|code|otp|pin)\D{0,12}(\d{3,6})(?:\D|$)`,
)

// a digit run bounded by non-digits (or the string edges)
var isolatedRunRegex = regexp.MustCompile(`(?:^|\D)(\d{3,6})(?:\D|$)`)

var separatorRegex = regexp.MustCompile(`[\s-]+`)

// Extract recovers a verification code from free-form message text.
//
// Three strategies are applied in strict priority order, the first hit
// wins:
//  1. a 3-6 digit run within a short gap of a verification keyword
//  2. the text with whitespace/hyphen separators stripped, so codes
//     rendered like "12-34-56" or "6 9 4 6" collapse into one run,
//     searched for an isolated 3-6 digit run
//  3. the untouched text searched for an isolated 3-6 digit run
func Extract(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	groups := keywordRegex.FindStringSubmatch(text)
	if len(groups) > 1 {
		return groups[1], true
	}

	collapsed := separatorRegex.ReplaceAllString(text, "")
	groups = isolatedRunRegex.FindStringSubmatch(collapsed)
	if len(groups) > 1 {
		return groups[1], true
	}

	groups = isolatedRunRegex.FindStringSubmatch(text)
	if len(groups) > 1 {
		return groups[1], true
	}

	return "", false
}

// HasKeyword reports whether the text mentions a verification keyword
// at all, useful for logging messages that look like OTPs but where no
// code could be recovered.
func HasKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range []string{"code", "otp", "pin", "passcode", "verification", "one-time", "one time"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
