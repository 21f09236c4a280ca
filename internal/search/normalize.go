package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters the Jackett indexers commonly index without their accent. The list is
// what decides whether a second, folded query is worth sending.
const accentedLetters = "áéíóúüñçàèìòùâêîôûäëïöÿøåæœßðþłžšý"

var accentedSet = func() map[rune]struct{} {
	set := make(map[rune]struct{}, 2*len(accentedLetters))
	for _, r := range accentedLetters {
		set[r] = struct{}{}
		set[unicode.ToUpper(r)] = struct{}{}
	}
	return set
}()

// Letters NFD leaves intact.
var transliterator = strings.NewReplacer(
	"ß", "ss", "ẞ", "SS",
	"ø", "o", "Ø", "O",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ł", "l", "Ł", "L",
	"đ", "d", "Đ", "D",
	"ð", "d", "Ð", "D",
	"þ", "th", "Þ", "TH",
)

// NeedsFolding reports whether query contains a letter from the accented set.
func NeedsFolding(query string) bool {
	for _, r := range query {
		if _, ok := accentedSet[r]; ok {
			return true
		}
	}
	return false
}

// FoldASCII strips diacritics and transliterates the few letters that do not
// decompose. Case is preserved and non-Latin text passes through unchanged.
func FoldASCII(value string) string {
	if value == "" {
		return value
	}
	// Transformers in a chain carry state, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, value)
	if err != nil {
		stripped = value
	}
	return transliterator.Replace(stripped)
}
