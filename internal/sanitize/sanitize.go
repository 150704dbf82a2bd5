// Package sanitize neutralises mass-mention tokens in user-supplied text
// before it is forwarded to the moderation channel. Report bodies are
// otherwise passed through byte-for-byte.
package sanitize

import "regexp"

// Compiled once at package init and reused for every call, making them
// safe for concurrent use across sessions.
var (
	everyonePattern = regexp.MustCompile(`(?i)@everyone`)
	herePattern     = regexp.MustCompile(`(?i)@here`)
)

// Sanitize replaces every case-insensitive occurrence of @everyone and
// @here with a bracketed rendering that cannot trigger a mass mention.
// All other content is left unchanged. The function is pure and
// idempotent: the replacement text contains no "@" token, so a second
// pass finds nothing to rewrite.
func Sanitize(text string) string {
	text = everyonePattern.ReplaceAllString(text, "[at everyone]")
	text = herePattern.ReplaceAllString(text, "[at here]")
	return text
}
