package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugFolder  = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	slugStrip   = regexp.MustCompile(`[^a-z0-9\s-]+`)
	slugSpaces  = regexp.MustCompile(`\s+`)
	slugHyphens = regexp.MustCompile(`-{2,}`)
)

// Slugify derives a stable lookup handle from a title: accents are folded to
// their base letters, the result is lowercased, characters outside
// [a-z0-9\s-] are stripped, whitespace runs become single hyphens, and
// repeated hyphens collapse. The slug is recomputed from the title on demand
// and never stored, so retitling changes the handle.
func Slugify(title string) string {
	folded, _, err := transform.String(slugFolder, title)
	if err != nil {
		folded = title
	}
	s := strings.ToLower(folded)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(strings.TrimSpace(s), "-")
	s = slugHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
