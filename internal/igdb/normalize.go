package igdb

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// editionSuffixes are trailing qualifiers storefronts append to a base
// title. Matching is done on the stripped name.
var editionSuffixes = []string{
	"game of the year edition", "goty edition", "goty",
	"definitive edition", "enhanced edition", "complete edition",
	"deluxe edition", "ultimate edition", "gold edition",
	"special edition", "collector's edition", "anniversary edition",
	"remastered", "remaster", "directors cut", "director's cut",
	"standard edition", "digital edition",
}

var (
	parenTagRe   = regexp.MustCompile(`\s*[(\[][^)\]]*[)\]]`)
	yearSuffixRe = regexp.MustCompile(`\s+(19|20)\d{2}$`)
	spaceRunRe   = regexp.MustCompile(`\s+`)
)

var diacriticStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// NormalizeTitle reduces a store title to its comparable form: strip
// parenthesised tags, edition and platform suffixes, trailing years,
// fold case and diacritics, collapse whitespace.
func NormalizeTitle(name string) string {
	s := strings.TrimSpace(name)
	s = parenTagRe.ReplaceAllString(s, "")

	if folded, _, err := transform.String(diacriticStripper, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	// Punctuation never survives into the comparison key.
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		case unicode.IsSpace(r):
			return ' '
		default:
			return ' '
		}
	}, s)
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	for _, suffix := range editionSuffixes {
		if strings.HasSuffix(s, " "+suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, " "+suffix))
			break
		}
	}
	s = yearSuffixRe.ReplaceAllString(s, "")

	return strings.TrimSpace(s)
}
