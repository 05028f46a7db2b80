package usecase

import (
	"sort"

	"go.uber.org/zap"

	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/infrastructure/logging"
	"github.com/scontrini/backend/internal/textnorm"
)

// RerankerConfig holds the business rule weights
type RerankerConfig struct {
	BrandMismatchPenalty    float64
	CategoryMismatchPenalty float64
	TagOverlapBoost         float64
	SizeProximityBoost      float64
	SizeProximityRatio      float64
	MaxResults              int
}

// DefaultRerankerConfig mirrors the configured defaults
func DefaultRerankerConfig() RerankerConfig {
	return RerankerConfig{
		BrandMismatchPenalty:    0.20,
		CategoryMismatchPenalty: 0.15,
		TagOverlapBoost:         0.05,
		SizeProximityBoost:      0.10,
		SizeProximityRatio:      0.05,
		MaxResults:              10,
	}
}

// RerankStats reports what a rerank pass did
type RerankStats struct {
	Input     int
	Discarded int
}

// Reranker rescores lexical candidates with product rules
type Reranker struct {
	model  ConfidenceModel
	cfg    RerankerConfig
	logger *zap.Logger
}

// NewReranker creates a reranker
func NewReranker(model ConfidenceModel, cfg RerankerConfig, logger *zap.Logger) *Reranker {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	return &Reranker{model: model, cfg: cfg, logger: logging.OrNop(logger)}
}

// Rerank drops candidates with an incompatible unit family, scores the rest
// starting from their combined lexical score and returns at most MaxResults
// sorted by business score. The input slice is not modified.
func (r *Reranker) Rerank(h domain.Hypothesis, candidates []domain.Candidate) ([]domain.Candidate, RerankStats) {
	stats := RerankStats{Input: len(candidates)}
	out := make([]domain.Candidate, 0, len(candidates))

	for _, c := range candidates {
		if !domain.SameUnitFamily(h.UnitType, c.Product.UnitType) {
			stats.Discarded++
			continue
		}
		c.BusinessScore = r.model.Apply(c.CombinedScore, r.Adjustments(h, c.Product)...)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BusinessScore > out[j].BusinessScore
	})
	if len(out) > r.cfg.MaxResults {
		out = out[:r.cfg.MaxResults]
	}

	if stats.Discarded > 0 {
		r.logger.Debug("rerank discarded candidates",
			zap.Int("input", stats.Input),
			zap.Int("discarded", stats.Discarded),
			zap.String("unit_type", h.UnitType))
	}
	return out, stats
}

// Adjustments lists the business rules that fire for a product. A rule
// fires only when both sides carry the field it compares.
func (r *Reranker) Adjustments(h domain.Hypothesis, p domain.NormalizedProduct) []Adjustment {
	var adj []Adjustment

	if h.Brand != "" && p.Brand != "" && !textnorm.Equal(h.Brand, p.Brand) {
		adj = append(adj, Penalty(AdjBrandMismatch, r.cfg.BrandMismatchPenalty))
	}
	if h.Category != "" && p.Category != "" && !textnorm.Equal(h.Category, p.Category) {
		adj = append(adj, Penalty(AdjCategoryMismatch, r.cfg.CategoryMismatchPenalty))
	}
	if shared := sharedTags(h.Tags, p.Tags); shared > 0 {
		adj = append(adj, Boost(AdjTagOverlap, float64(shared)*r.cfg.TagOverlapBoost))
	}
	if h.Size != "" && p.Size != "" {
		if diff, ok := domain.RelativeSizeDiff(h.Size, h.UnitType, p.Size, p.UnitType); ok && diff < r.cfg.SizeProximityRatio {
			adj = append(adj, Boost(AdjSizeProximity, r.cfg.SizeProximityBoost))
		}
	}
	return adj
}

func sharedTags(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[textnorm.Fold(t)] = struct{}{}
	}
	seen := make(map[string]struct{}, len(a))
	count := 0
	for _, t := range a {
		f := textnorm.Fold(t)
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		if _, ok := set[f]; ok {
			count++
		}
	}
	return count
}
