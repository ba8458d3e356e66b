package spot

import (
	"regexp"
	"strings"
	"unicode"

	"skccspotter/strutil"
)

var callsignPattern = regexp.MustCompile(`^[A-Z0-9]+(?:[/-][A-Z0-9#]+)*$`)

// NormalizeCallsign uppercases the string, trims whitespace, and removes
// trailing dots or slashes left over from sloppy skimmer formatting.
func NormalizeCallsign(call string) string {
	normalized := strutil.NormalizeUpper(call)
	normalized = strings.ReplaceAll(normalized, ".", "/")
	normalized = strings.TrimSuffix(normalized, "/")
	return strings.TrimSpace(normalized)
}

// IsValidCallsign applies format checks to make sure the string looks like a
// real amateur call: 3-12 characters, at least one digit, restricted charset.
func IsValidCallsign(call string) bool {
	normalized := NormalizeCallsign(call)
	if len(normalized) < 3 || len(normalized) > 12 {
		return false
	}
	if strings.IndexFunc(normalized, unicode.IsDigit) < 0 {
		return false
	}
	return callsignPattern.MatchString(normalized)
}

// BaseCallsign strips portable/skimmer suffixes ("-#", "/P", "/QRP") so
// roster lookups match the call as it appears on the membership list.
func BaseCallsign(call string) string {
	normalized := NormalizeCallsign(call)
	normalized = strings.TrimSuffix(normalized, "-#")
	if idx := strings.IndexByte(normalized, '/'); idx > 0 {
		// Keep the longer side; "W4/G0ABC" and "G0ABC/P" both resolve to the
		// full home call.
		left, right := normalized[:idx], normalized[idx+1:]
		if len(left) >= len(right) {
			return left
		}
		return right
	}
	return normalized
}
