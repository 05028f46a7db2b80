package textnorm

import "strings"

// Trigrams returns the trigram set of s the way pg_trgm builds it: every
// word is padded with two leading blanks and one trailing blank
func Trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range Words(s) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// TrigramSimilarity is |A∩B| / |A∪B| over the trigram sets, matching
// pg_trgm's similarity()
func TrigramSimilarity(a, b string) float64 {
	ta, tb := Trigrams(a), Trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

// TokenMatches reports whether a query token matches a document token:
// exact, as an abbreviation prefix (e.g. "acq" for "acqua"), or within
// one edit for longer words
func TokenMatches(query, doc string) bool {
	if query == doc {
		return true
	}
	if len(query) >= 2 && strings.HasPrefix(doc, query) {
		return true
	}
	return fuzzyTokenMatch(query, doc, 1)
}

// Coverage is the fraction of query tokens that match some document token
func Coverage(query, doc []string) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	matched := 0
	for _, q := range query {
		for _, d := range doc {
			if TokenMatches(q, d) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(query))
}

// fuzzyTokenMatch checks if two tokens are similar within the edit distance threshold
func fuzzyTokenMatch(token1, token2 string, threshold int) bool {
	if token1 == token2 {
		return true
	}

	// Only apply fuzzy matching to tokens > 4 chars to avoid false positives
	if len(token1) < 5 || len(token2) < 5 {
		return false
	}

	lenDiff := len(token1) - len(token2)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > threshold {
		return false
	}

	return Levenshtein(token1, token2) <= threshold
}

// Levenshtein calculates the edit distance between two strings
func Levenshtein(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)
	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	// Use two rows instead of full matrix for space efficiency
	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}
