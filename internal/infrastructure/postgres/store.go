// Package postgres stores the catalog, learned mappings and purchase history
// in PostgreSQL. Hybrid search combines full-text ranking with pg_trgm
// similarity.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/scontrini/backend/config"
	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/infrastructure/logging"
)

const productColumns = `id, canonical_name, brand, category, subcategory, size, unit_type,
	tags, verification_status, created_at, updated_at`

// Store implements domain.CatalogStore, domain.MappingStore and
// domain.CacheStatsSource over a pgx pool
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPool opens and pings a connection pool
func NewPool(ctx context.Context, cfg config.StoreConfig) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// NewStore wraps an open pool
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logging.OrNop(logger)}
}

// FindByExactName returns the product with exactly this canonical name
func (s *Store) FindByExactName(ctx context.Context, name string) (*domain.NormalizedProduct, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM normalized_products WHERE canonical_name = $1`, name)
	return scanProductRow(row)
}

// GetByID returns a product by id
func (s *Store) GetByID(ctx context.Context, id string) (*domain.NormalizedProduct, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM normalized_products WHERE id = $1`, id)
	return scanProductRow(row)
}

// Insert stores a new product. A duplicate canonical name is an invalid request.
func (s *Store) Insert(ctx context.Context, product *domain.NormalizedProduct) (*domain.NormalizedProduct, error) {
	if product == nil || product.CanonicalName == "" {
		return nil, fmt.Errorf("%w: canonical name is required", domain.ErrInvalidRequest)
	}
	id := product.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := product.VerificationStatus
	if status == "" {
		status = domain.VerificationAutoVerified
	}
	tags := product.Tags
	if tags == nil {
		tags = []string{}
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO normalized_products
			(id, canonical_name, brand, category, subcategory, size, unit_type, tags, verification_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+productColumns,
		id, product.CanonicalName, product.Brand, product.Category, product.Subcategory,
		product.Size, product.UnitType, tags, string(status))

	p, err := scanProductRow(row)
	if pgErrorCode(err) == uniqueViolation {
		return nil, fmt.Errorf("%w: product %q already exists", domain.ErrInvalidRequest, product.CanonicalName)
	}
	if err != nil {
		return nil, fmt.Errorf("insert product %q: %w", product.CanonicalName, err)
	}
	return p, nil
}

// Update applies the set fields of update
func (s *Store) Update(ctx context.Context, id string, update domain.ProductUpdate) (*domain.NormalizedProduct, error) {
	set, args := productUpdateSet(update)
	if set == "" {
		return s.GetByID(ctx, id)
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE normalized_products SET `+set+` WHERE id = $1 RETURNING `+productColumns,
		append([]any{id}, args...)...)

	p, err := scanProductRow(row)
	if pgErrorCode(err) == uniqueViolation {
		return nil, fmt.Errorf("%w: canonical name already taken", domain.ErrInvalidRequest)
	}
	return p, err
}

// SearchHybrid ranks products by ts_rank over the search vector and trigram
// similarity of the canonical name. Products of another unit family are
// excluded in SQL.
func (s *Store) SearchHybrid(ctx context.Context, query domain.SearchQuery) ([]domain.Candidate, error) {
	limit := query.TopK
	if limit <= 0 {
		limit = 20
	}
	units := domain.FamilyUnits(query.UnitType)
	if units == nil {
		units = []string{}
	}

	rows, err := s.pool.Query(ctx, `
		WITH scored AS (
			SELECT `+productColumns+`,
				CASE WHEN $2 = '' THEN 0
					ELSE ts_rank(search_vector, to_tsquery('simple', $2)) END AS fts,
				similarity(canonical_name, $1) AS fuzzy
			FROM normalized_products
			WHERE cardinality($5::text[]) = 0 OR unit_type = '' OR unit_type = ANY($5::text[])
		)
		SELECT `+productColumns+`, fts, fuzzy
		FROM scored
		WHERE fts >= $3 OR fuzzy >= $4
		ORDER BY 0.6 * fuzzy + 0.4 * LEAST(1, fts * 10) DESC, id
		LIMIT $6`,
		query.Text, tsQuery(query.Terms), query.FTSThreshold, query.FuzzyThreshold, units, limit)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var (
			p          domain.NormalizedProduct
			fts, fuzzy float32
		)
		if err := rows.Scan(productFields(&p, &fts, &fuzzy)...); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, domain.Candidate{
			Product:       p,
			FTSScore:      float64(fts),
			FuzzyScore:    float64(fuzzy),
			CombinedScore: domain.CombinedScore(float64(fts), float64(fuzzy)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}

	s.logger.Debug("hybrid search",
		zap.String("query", query.Text),
		zap.Int("candidates", len(out)))
	return out, nil
}

// Close releases the pool
func (s *Store) Close() {
	s.pool.Close()
}

func productFields(p *domain.NormalizedProduct, extra ...any) []any {
	fields := []any{
		&p.ID, &p.CanonicalName, &p.Brand, &p.Category, &p.Subcategory, &p.Size, &p.UnitType,
		&p.Tags, &p.VerificationStatus, &p.CreatedAt, &p.UpdatedAt,
	}
	return append(fields, extra...)
}

func scanProductRow(row pgx.Row) (*domain.NormalizedProduct, error) {
	var p domain.NormalizedProduct
	if err := row.Scan(productFields(&p)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}
