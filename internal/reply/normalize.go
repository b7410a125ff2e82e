package reply

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds s for keyword matching: diacritics are stripped, dotless
// and dotted i collapse to "i", and the result is lower-cased.
func Normalize(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(func(r rune) rune {
			if r == 'ı' {
				return 'i'
			}
			return r
		}),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Lower(language.Und).String(out)
}

// ContainsAny reports whether the normalized text contains any normalized
// keyword. Empty keywords never match.
func ContainsAny(text string, keywords []string) bool {
	normalized := Normalize(text)
	for _, k := range keywords {
		nk := Normalize(strings.TrimSpace(k))
		if nk != "" && strings.Contains(normalized, nk) {
			return true
		}
	}
	return false
}
