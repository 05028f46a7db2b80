package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/scontrini/backend/internal/domain"
)

const mappingColumns = `id, raw_name, store_name, normalized_product_id, confidence_score,
	verified_by_user, requires_manual_review, interpretation_details, created_at, updated_at`

// Find returns the mapping for the exact key
func (s *Store) Find(ctx context.Context, rawName, storeName string) (*domain.RawNameMapping, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+mappingColumns+` FROM product_mappings WHERE raw_name = $1 AND store_name = $2`,
		rawName, storeName)
	return scanMappingRow(row)
}

// FindBestUnverified returns the highest-confidence unverified mapping at or
// above minConfidence. An empty storeName matches any store.
func (s *Store) FindBestUnverified(ctx context.Context, rawName, storeName string, minConfidence float64) (*domain.RawNameMapping, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+mappingColumns+`
		FROM product_mappings
		WHERE raw_name = $1
			AND ($2 = '' OR store_name = $2)
			AND NOT verified_by_user
			AND confidence_score >= $3
		ORDER BY confidence_score DESC, updated_at DESC
		LIMIT 1`,
		rawName, storeName, minConfidence)
	return scanMappingRow(row)
}

// UpsertIfHigherConfidence inserts the mapping or replaces the stored one
// only when the new confidence is strictly higher. The comparison runs
// inside the single INSERT ... ON CONFLICT statement.
func (s *Store) UpsertIfHigherConfidence(ctx context.Context, m *domain.RawNameMapping) (bool, error) {
	if m == nil || m.RawName == "" || m.NormalizedProductID == "" {
		return false, fmt.Errorf("%w: mapping needs a raw name and a product", domain.ErrInvalidRequest)
	}
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO product_mappings
			(id, raw_name, store_name, normalized_product_id, confidence_score,
			 verified_by_user, requires_manual_review, interpretation_details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (raw_name, store_name) DO UPDATE SET
			normalized_product_id  = EXCLUDED.normalized_product_id,
			confidence_score       = EXCLUDED.confidence_score,
			verified_by_user       = EXCLUDED.verified_by_user,
			requires_manual_review = EXCLUDED.requires_manual_review,
			interpretation_details = EXCLUDED.interpretation_details,
			updated_at             = now()
		WHERE product_mappings.confidence_score < EXCLUDED.confidence_score`,
		id, m.RawName, m.StoreName, m.NormalizedProductID, domain.Clamp01(m.ConfidenceScore),
		m.VerifiedByUser, m.RequiresManualReview, m.InterpretationDetails)

	switch pgErrorCode(err) {
	case "":
	case uniqueViolation:
		return false, fmt.Errorf("mapping %q: %w", m.RawName, domain.ErrDuplicateMapping)
	case foreignKeyViolation:
		return false, fmt.Errorf("mapping %q: %w", m.RawName, domain.ErrProductNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("upsert mapping %q: %w", m.RawName, err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordUsage appends one purchase to the history
func (s *Store) RecordUsage(ctx context.Context, usage domain.UsageRecord) error {
	if usage.RawName == "" || usage.ProductID == "" {
		return fmt.Errorf("%w: usage needs a raw name and a product", domain.ErrInvalidRequest)
	}
	usedAt := usage.UsedAt
	if usedAt.IsZero() {
		usedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO product_usage (raw_name, store_name, normalized_product_id, household_id, unit_price, used_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		usage.RawName, usage.StoreName, usage.ProductID, usage.HouseholdID, usage.UnitPrice, usedAt)
	if pgErrorCode(err) == foreignKeyViolation {
		return fmt.Errorf("usage %q: %w", usage.RawName, domain.ErrProductNotFound)
	}
	if err != nil {
		return fmt.Errorf("record usage %q: %w", usage.RawName, err)
	}
	return nil
}

// VerifiedAggregate summarizes the purchases behind the user-verified
// mapping for rawName, including the price coherence check. It returns nil
// when no verified mapping exists. An empty storeName matches any store.
func (s *Store) VerifiedAggregate(ctx context.Context, rawName, storeName string, currentPrice *float64, priceTolerance float64) (*domain.CacheAggregate, error) {
	row := s.pool.QueryRow(ctx, `
		WITH verified AS (
			SELECT normalized_product_id
			FROM product_mappings
			WHERE raw_name = $1 AND ($2 = '' OR store_name = $2) AND verified_by_user
			ORDER BY confidence_score DESC, updated_at DESC
			LIMIT 1
		), stats AS (
			SELECT v.normalized_product_id,
				count(u.id) AS usage_count,
				count(DISTINCT NULLIF(u.household_id, '')) AS households,
				max(u.used_at) AS last_used,
				avg(u.unit_price) AS avg_price
			FROM verified v
			LEFT JOIN product_usage u
				ON u.normalized_product_id = v.normalized_product_id
				AND u.raw_name = $1
				AND ($2 = '' OR u.store_name = $2)
			GROUP BY v.normalized_product_id
		)
		SELECT normalized_product_id, usage_count, households, last_used, avg_price,
			CASE
				WHEN $3::float8 IS NULL OR avg_price IS NULL OR avg_price <= 0 THEN true
				ELSE $3::float8 BETWEEN avg_price * (1 - $4::float8) AND avg_price * (1 + $4::float8)
			END AS price_coherent
		FROM stats`,
		rawName, storeName, currentPrice, priceTolerance)

	var (
		agg      domain.CacheAggregate
		lastUsed *time.Time
		avgPrice *float64
	)
	err := row.Scan(&agg.ProductID, &agg.UsageCount, &agg.VerifiedHouseholds, &lastUsed, &avgPrice, &agg.PriceCoherent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache stats %q: %w", rawName, err)
	}
	if lastUsed != nil {
		agg.LastUsed = *lastUsed
	}
	if avgPrice != nil {
		agg.AvgPrice = *avgPrice
	}
	return &agg, nil
}

func scanMappingRow(row pgx.Row) (*domain.RawNameMapping, error) {
	var m domain.RawNameMapping
	err := row.Scan(&m.ID, &m.RawName, &m.StoreName, &m.NormalizedProductID, &m.ConfidenceScore,
		&m.VerifiedByUser, &m.RequiresManualReview, &m.InterpretationDetails, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMappingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
