package postgres

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scontrini/backend/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// tsQuery turns retrieval terms into an OR of prefix matches for
// to_tsquery('simple', ...). Characters that carry tsquery syntax are
// dropped, so the result is always a valid query or empty.
func tsQuery(terms []string) string {
	parts := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, term)
		if clean == "" || seen[clean] {
			continue
		}
		seen[clean] = true
		parts = append(parts, clean+":*")
	}
	return strings.Join(parts, " | ")
}

// productUpdateSet renders the SET clause for update, with arguments
// numbered from 2 ($1 is the id)
func productUpdateSet(update domain.ProductUpdate) (string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+1))
	}
	if update.CanonicalName != nil {
		add("canonical_name", *update.CanonicalName)
	}
	if update.Brand != nil {
		add("brand", *update.Brand)
	}
	if update.Category != nil {
		add("category", *update.Category)
	}
	if update.Subcategory != nil {
		add("subcategory", *update.Subcategory)
	}
	if update.Size != nil {
		add("size", *update.Size)
	}
	if update.UnitType != nil {
		add("unit_type", *update.UnitType)
	}
	if update.Tags != nil {
		add("tags", update.Tags)
	}
	if update.VerificationStatus != nil {
		add("verification_status", string(*update.VerificationStatus))
	}
	if len(sets) == 0 {
		return "", nil
	}
	sets = append(sets, "updated_at = now()")
	return strings.Join(sets, ", "), args
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
