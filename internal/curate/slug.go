package curate

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases a title and collapses every non-alphanumeric run
// into a single hyphen.
func Slugify(title string) string {
	slug := slugStrip.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(slug, "-")
}

// ShortSlug returns an eight-character random suffix that keeps entry
// slugs unique across days that share a title.
func ShortSlug() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}
