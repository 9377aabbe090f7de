// Package sanitize normalizes source-provided text before it is stored
// in read models or used as a search query.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// Tags the original comment excerpts are allowed to keep.
	excerptPolicy = func() *bluemonday.Policy {
		policy := bluemonday.NewPolicy()
		policy.AllowElements("p", "a", "b", "strong", "i", "em", "code", "pre")
		policy.AllowAttrs("href").OnElements("a")
		return policy
	}()

	specialCharacters = regexp.MustCompile(`[^a-zA-Z0-9 ]`)
	whitespaceRuns    = regexp.MustCompile(`\s+`)
)

// Excerpt strips all HTML except a small formatting allowlist.
func Excerpt(html string) string {
	return excerptPolicy.Sanitize(html)
}

// Plain removes every character outside letters, digits, and spaces.
func Plain(value string) string {
	return specialCharacters.ReplaceAllString(value, "")
}

// Keywords turns a title into an OR-joined full-text query.
func Keywords(title string) string {
	plain := strings.TrimSpace(Plain(title))
	if plain == "" {
		return ""
	}
	return whitespaceRuns.ReplaceAllString(plain, "|")
}
