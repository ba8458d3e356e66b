// Package strutil holds the string canonicalization shared by the parser,
// dedup gate, roster, and logbook.
package strutil

import "strings"

// NormalizeUpper trims surrounding whitespace and upper-cases the token.
// Callsigns, suffixes, and key types pass through here exactly once so the
// packages comparing them never disagree on form.
func NormalizeUpper(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
