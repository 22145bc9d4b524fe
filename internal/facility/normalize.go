// Package facility merges duplicate venue records coming from different
// sources before they are stored and placed on the map.
package facility

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopWords are dropped from names before comparison.
var stopWords = map[string]bool{
	"the": true,
	"inc": true,
	"llc": true,
	"co":  true,
	"of":  true,
	"at":  true,
}

// addressAbbrev folds common street-suffix and direction spellings.
var addressAbbrev = map[string]string{
	"street":    "st",
	"avenue":    "ave",
	"av":        "ave",
	"road":      "rd",
	"boulevard": "blvd",
	"drive":     "dr",
	"lane":      "ln",
	"court":     "ct",
	"place":     "pl",
	"parkway":   "pkwy",
	"highway":   "hwy",
	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
	"suite":     "ste",
}

// fold lower-cases s, strips diacritics and turns every run of
// non-alphanumeric runes into a single word break.
func fold(s string) []string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}
	return strings.FieldsFunc(strings.ToLower(plain), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// NormalizeName returns the comparable form of a facility name.
func NormalizeName(name string) string {
	words := fold(name)
	kept := words[:0]
	for _, w := range words {
		if !stopWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// NormalizeAddress returns the comparable form of a street address.
func NormalizeAddress(addr string) string {
	words := fold(addr)
	for i, w := range words {
		if abbr, ok := addressAbbrev[w]; ok {
			words[i] = abbr
		}
	}
	return strings.Join(words, " ")
}

// NameSimilarity computes Jaccard similarity on the word sets of two
// normalized names.
func NameSimilarity(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)

	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}

	union := len(wordsA)
	for w := range wordsB {
		if !wordsA[w] {
			union++
		}
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// NormalizeSport lower-cases and trims a sport label.
func NormalizeSport(s string) string {
	return strings.Join(fold(s), " ")
}
