package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/infrastructure/logging"
	"github.com/scontrini/backend/internal/retry"
)

// RetrieverConfig holds hybrid search thresholds
type RetrieverConfig struct {
	TopK           int
	FTSThreshold   float64
	FuzzyThreshold float64
	SizeTolerance  float64
	Timeout        time.Duration
	Retry          retry.Policy
}

// DefaultRetrieverConfig mirrors the configured defaults
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopK:           20,
		FTSThreshold:   0.001,
		FuzzyThreshold: 0.15,
		SizeTolerance:  0.15,
		Timeout:        5 * time.Second,
		Retry:          retry.Policy{Attempts: 1},
	}
}

// HybridRetriever finds catalog candidates for a hypothesis with full-text
// and trigram search
type HybridRetriever struct {
	catalog      domain.CatalogStore
	preprocessor *QueryPreprocessor
	cfg          RetrieverConfig
	logger       *zap.Logger
}

// NewHybridRetriever creates a retriever over the catalog
func NewHybridRetriever(catalog domain.CatalogStore, cfg RetrieverConfig, logger *zap.Logger) *HybridRetriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 20
	}
	logger = logging.OrNop(logger)
	return &HybridRetriever{
		catalog:      catalog,
		preprocessor: NewQueryPreprocessor(logger),
		cfg:          cfg,
		logger:       logger,
	}
}

// Query builds the catalog query for a hypothesis
func (r *HybridRetriever) Query(h domain.Hypothesis) domain.SearchQuery {
	text := h.Text
	if text == "" {
		text = h.ProductType
	}
	return domain.SearchQuery{
		Text:           r.preprocessor.PreprocessQuery(text, h.Brand),
		Terms:          r.preprocessor.Terms(text, h.Brand),
		Brand:          h.Brand,
		Category:       h.Category,
		Size:           h.Size,
		UnitType:       h.UnitType,
		SizeTolerance:  r.cfg.SizeTolerance,
		TopK:           r.cfg.TopK,
		FTSThreshold:   r.cfg.FTSThreshold,
		FuzzyThreshold: r.cfg.FuzzyThreshold,
	}
}

// Retrieve returns up to TopK candidates. An empty result is not an error.
// Candidates of another unit family or outside the size band are dropped
// even if the store returned them.
func (r *HybridRetriever) Retrieve(ctx context.Context, h domain.Hypothesis) ([]domain.Candidate, error) {
	query := r.Query(h)
	if query.Text == "" || len(query.Terms) == 0 {
		return nil, nil
	}

	candidates, err := retry.Do(ctx, r.cfg.Retry, func(ctx context.Context) ([]domain.Candidate, error) {
		sctx, cancel := withOptionalTimeout(ctx, r.cfg.Timeout)
		defer cancel()
		return r.catalog.SearchHybrid(sctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: hybrid search: %v", domain.ErrStoreFailure, err)
	}

	filtered := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.FTSScore < query.FTSThreshold && c.FuzzyScore < query.FuzzyThreshold {
			continue
		}
		if !domain.SameUnitFamily(query.UnitType, c.Product.UnitType) {
			continue
		}
		if !domain.SizeWithinTolerance(query.Size, query.UnitType, c.Product.Size, c.Product.UnitType, query.SizeTolerance) {
			continue
		}
		filtered = append(filtered, c)
		if len(filtered) == query.TopK {
			break
		}
	}

	r.logger.Debug("hybrid retrieval",
		zap.String("query", query.Text),
		zap.Strings("terms", query.Terms),
		zap.Int("returned", len(candidates)),
		zap.Int("kept", len(filtered)))

	return filtered, nil
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
