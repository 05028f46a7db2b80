package usecase

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/scontrini/backend/internal/infrastructure/logging"
	"github.com/scontrini/backend/internal/textnorm"
)

// QueryPreprocessor turns a hypothesis into catalog search text and terms
type QueryPreprocessor struct {
	logger *zap.Logger
}

// Compiled regex patterns for query preprocessing
var (
	// Matches multipack patterns like "1.5X6", "6 x 1,5l", "x6"
	multipackPattern = regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s*x\s*\d+(?:[.,]\d+)?\s*(?:kg|gr|g|lt|l|ml|cl)?\b|\bx\s*\d+\b`)

	// Matches size patterns like "1.5L", "500 gr", "33cl", "6 pz"
	sizeQuantityPattern = regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s*(?:kg|grammi|gr|g|litri|lt|l|ml|cl|pezzi|pz)\b`)

	// Matches standalone numbers left over at the boundaries
	standaloneNumberPattern = regexp.MustCompile(`[,\-]\s*\d+(?:[.,]\d+)?\s*$|^\d+(?:[.,]\d+)?\s*[,\-]`)

	orphanedPunctuationPattern = regexp.MustCompile(`\s+[,\-;:]+\s+`)
	trailingPunctuationPattern = regexp.MustCompile(`[,\-;:]+\s*$`)
	leadingPunctuationPattern  = regexp.MustCompile(`^\s*[,\-;:]+`)

	// Multiple spaces cleanup
	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// queryNoiseWords are packaging and promotion terms printed on receipts
var queryNoiseWords = map[string]bool{
	// Promotions
	"offerta":     true,
	"promo":       true,
	"sconto":      true,
	"nuovo":       true,
	"risparmio":   true,
	"convenienza": true,
	"special":     true,

	// Packaging terms
	"conf":       true,
	"confezione": true,
	"formato":    true,
	"busta":      true,
	"vaschetta":  true,
	"pacco":      true,
	"scatola":    true,
	"brick":      true,
	"lattina":    true,
	"pet":        true,
	"vetro":      true,
	"sfuso":      true,

	// Size descriptors
	"maxi":     true,
	"mini":     true,
	"grande":   true,
	"piccolo":  true,
	"famiglia": true,
}

// maxQueryLength bounds the search text sent to the catalog
const maxQueryLength = 100

// NewQueryPreprocessor creates a new query preprocessor
func NewQueryPreprocessor(logger *zap.Logger) *QueryPreprocessor {
	return &QueryPreprocessor{logger: logging.OrNop(logger)}
}

// PreprocessQuery cleans a product description for catalog search.
// Removes sizes, multipack counts and noise words, then prepends the brand
// when it is not already part of the text.
func (p *QueryPreprocessor) PreprocessQuery(productName, brand string) string {
	if strings.TrimSpace(productName) == "" && strings.TrimSpace(brand) == "" {
		return ""
	}

	original := productName

	// Multipacks first so "1.5X6" is not split into a size and a stray "X6"
	cleaned := multipackPattern.ReplaceAllString(productName, " ")
	cleaned = sizeQuantityPattern.ReplaceAllString(cleaned, " ")
	cleaned = standaloneNumberPattern.ReplaceAllString(cleaned, " ")
	cleaned = removeNoiseWords(cleaned)
	cleaned = cleanOrphanedPunctuation(cleaned)
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if brand = strings.TrimSpace(brand); brand != "" {
		if !strings.Contains(textnorm.Fold(cleaned), textnorm.Fold(brand)) {
			cleaned = strings.TrimSpace(brand + " " + cleaned)
		}
	}

	if len(cleaned) > maxQueryLength {
		cleaned = cleaned[:maxQueryLength]
		// Try to cut at word boundary
		if lastSpace := strings.LastIndex(cleaned, " "); lastSpace > maxQueryLength/2 {
			cleaned = cleaned[:lastSpace]
		}
	}

	p.logger.Debug("preprocessed query", zap.String("input", original), zap.String("output", cleaned))

	return cleaned
}

// Terms returns the unique folded search terms of the cleaned query
func (p *QueryPreprocessor) Terms(productName, brand string) []string {
	return textnorm.Unique(textnorm.Tokenize(p.PreprocessQuery(productName, brand)))
}

// removeNoiseWords removes promotion and packaging terms from the query
func removeNoiseWords(s string) string {
	words := strings.Fields(s)
	kept := make([]string, 0, len(words))

	for _, word := range words {
		cleanWord := textnorm.Fold(strings.Trim(word, ",.!?;:-'\""))
		if !queryNoiseWords[cleanWord] {
			kept = append(kept, word)
		}
	}

	return strings.Join(kept, " ")
}

// cleanOrphanedPunctuation removes punctuation that's now alone (e.g., lone commas)
func cleanOrphanedPunctuation(s string) string {
	result := orphanedPunctuationPattern.ReplaceAllString(s, " ")
	result = trailingPunctuationPattern.ReplaceAllString(result, "")
	return leadingPunctuationPattern.ReplaceAllString(result, "")
}
