package grading

import "strings"

// normalizeToken trims surrounding whitespace and lower-cases. No
// punctuation folding: short answers are exact matches.
func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
