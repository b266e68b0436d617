package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold strips combining marks so "Pokémon" and "Pokemon" compare equal.
// Scripts without decompositions (kana, hangul, han) pass through unchanged.
func Fold(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.Predicate(isLatinMark)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

// isLatinMark limits folding to the combining diacritics block; kana voicing
// marks are also Mn and must survive.
func isLatinMark(r rune) bool {
	return r >= 0x0300 && r <= 0x036f && unicode.Is(unicode.Mn, r)
}

// TitleCase capitalizes each word of value. Input that already mixes cases is
// returned as-is so stylized titles survive.
func TitleCase(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || (value != strings.ToLower(value) && value != strings.ToUpper(value)) {
		return value
	}
	return cases.Title(language.Und).String(value)
}
