// Package textnorm folds, tokenizes and compares product names.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopWords are Italian articles and prepositions that carry no product identity
var stopWords = map[string]bool{
	"di": true, "da": true, "del": true, "dello": true, "della": true, "dei": true, "delle": true,
	"con": true, "e": true, "il": true, "lo": true, "la": true, "le": true, "gli": true,
	"un": true, "una": true, "uno": true, "per": true, "in": true, "al": true, "alla": true,
	"allo": true, "ai": true, "alle": true, "su": true,
}

// Fold lower-cases s with Unicode case folding and strips diacritics,
// so "Caffè" and "CAFFE" compare equal
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	// Casers keep state, so each call gets its own
	return cases.Fold().String(stripped)
}

// Equal compares two strings after trimming and folding
func Equal(a, b string) bool {
	return Fold(strings.TrimSpace(a)) == Fold(strings.TrimSpace(b))
}

// Words splits folded s on anything that is not a letter or digit
func Words(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Tokenize returns the folded words of s without stop words, single
// characters, or pure numbers
func Tokenize(s string) []string {
	var tokens []string
	for _, word := range Words(s) {
		if len([]rune(word)) <= 1 {
			continue
		}
		if stopWords[word] {
			continue
		}
		if isNumeric(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// Unique returns tokens without duplicates, keeping first occurrence order
func Unique(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// isNumeric checks if a string contains only digits
func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
