package usecase

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/infrastructure/logging"
)

// CacheLookupConfig holds the tier 1 and tier 2 scoring parameters
type CacheLookupConfig struct {
	BaseConfidence      float64
	PriceTolerance      float64
	MinHouseholdsBoost  int
	MinUsageBoost       int
	RecentDays          int
	BoostHouseholds     float64
	BoostUsage          float64
	BoostRecency        float64
	MaxConfidence       float64
	PriceAnomalyPenalty float64
	ConfidenceFloor     float64
	Tier2Penalty        float64
	Tier2MinConfidence  float64
	StoreTimeout        time.Duration
}

// DefaultCacheLookupConfig mirrors the configured defaults
func DefaultCacheLookupConfig() CacheLookupConfig {
	return CacheLookupConfig{
		BaseConfidence:      0.90,
		PriceTolerance:      0.30,
		MinHouseholdsBoost:  3,
		MinUsageBoost:       10,
		RecentDays:          90,
		BoostHouseholds:     0.03,
		BoostUsage:          0.02,
		BoostRecency:        0.02,
		MaxConfidence:       0.97,
		PriceAnomalyPenalty: 0.20,
		ConfidenceFloor:     0.70,
		Tier2Penalty:        0.05,
		Tier2MinConfidence:  0.85,
		StoreTimeout:        5 * time.Second,
	}
}

// CacheHit is a resolution served from previously learned mappings
type CacheHit struct {
	Tier               domain.Source
	Product            domain.NormalizedProduct
	Confidence         float64
	PriceCoherent      bool
	UsageCount         int
	VerifiedHouseholds int
	Adjustments        []Adjustment
}

// CacheLookup resolves a raw name from verified history (tier 1) or from
// confident unverified mappings (tier 2). It never writes.
// Tier 2 hits are served at BaseConfidence minus Tier2Penalty whatever the
// stored score.
type CacheLookup struct {
	catalog  domain.CatalogStore
	mappings domain.MappingStore
	stats    domain.CacheStatsSource
	model    ConfidenceModel
	cfg      CacheLookupConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewCacheLookup creates a cache lookup over the given stores
func NewCacheLookup(
	catalog domain.CatalogStore,
	mappings domain.MappingStore,
	stats domain.CacheStatsSource,
	model ConfidenceModel,
	cfg CacheLookupConfig,
	logger *zap.Logger,
) *CacheLookup {
	return &CacheLookup{
		catalog:  catalog,
		mappings: mappings,
		stats:    stats,
		model:    model,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// Lookup tries tier 1 then tier 2. Store failures are logged and count as a miss.
func (c *CacheLookup) Lookup(ctx context.Context, req domain.ResolveRequest) (*CacheHit, bool) {
	if hit, ok := c.tier1(ctx, req); ok {
		return hit, true
	}
	if hit, ok := c.tier2(ctx, req); ok {
		return hit, true
	}
	return nil, false
}

func (c *CacheLookup) tier1(ctx context.Context, req domain.ResolveRequest) (*CacheHit, bool) {
	if c.stats == nil {
		return nil, false
	}
	sctx, cancel := c.storeContext(ctx)
	defer cancel()

	agg, err := c.stats.VerifiedAggregate(sctx, req.RawName, req.StoreName, req.Price, c.cfg.PriceTolerance)
	if err != nil {
		c.logMiss("tier1", req, err)
		return nil, false
	}
	if agg == nil {
		return nil, false
	}

	product, ok := c.product(sctx, agg.ProductID, req)
	if !ok {
		return nil, false
	}

	var adjustments []Adjustment
	if agg.VerifiedHouseholds >= c.cfg.MinHouseholdsBoost {
		adjustments = append(adjustments, Boost(AdjHouseholdsVerified, c.cfg.BoostHouseholds))
	}
	if agg.UsageCount >= c.cfg.MinUsageBoost {
		adjustments = append(adjustments, Boost(AdjUsageCount, c.cfg.BoostUsage))
	}
	if !agg.LastUsed.IsZero() && c.now().Sub(agg.LastUsed) <= time.Duration(c.cfg.RecentDays)*24*time.Hour {
		adjustments = append(adjustments, Boost(AdjRecentUse, c.cfg.BoostRecency))
	}

	confidence := math.Min(c.model.Apply(c.cfg.BaseConfidence, adjustments...), c.cfg.MaxConfidence)
	if !agg.PriceCoherent {
		penalty := Penalty(AdjPriceAnomaly, c.cfg.PriceAnomalyPenalty)
		adjustments = append(adjustments, penalty)
		confidence = math.Max(c.cfg.ConfidenceFloor, c.model.Apply(confidence, penalty))
	}

	return &CacheHit{
		Tier:               domain.SourceCacheTier1,
		Product:            *product,
		Confidence:         confidence,
		PriceCoherent:      agg.PriceCoherent,
		UsageCount:         agg.UsageCount,
		VerifiedHouseholds: agg.VerifiedHouseholds,
		Adjustments:        adjustments,
	}, true
}

func (c *CacheLookup) tier2(ctx context.Context, req domain.ResolveRequest) (*CacheHit, bool) {
	if c.mappings == nil {
		return nil, false
	}
	sctx, cancel := c.storeContext(ctx)
	defer cancel()

	mapping, err := c.mappings.FindBestUnverified(sctx, req.RawName, req.StoreName, c.cfg.Tier2MinConfidence)
	if err != nil {
		if !errors.Is(err, domain.ErrMappingNotFound) {
			c.logMiss("tier2", req, err)
		}
		return nil, false
	}
	if mapping == nil {
		return nil, false
	}

	product, ok := c.product(sctx, mapping.NormalizedProductID, req)
	if !ok {
		return nil, false
	}

	// The stored score only qualifies the mapping; the served confidence
	// starts from the cache base like tier 1.
	penalty := Penalty(AdjTier2Penalty, c.cfg.Tier2Penalty)
	confidence := math.Max(c.cfg.ConfidenceFloor, c.model.Apply(c.cfg.BaseConfidence, penalty))

	return &CacheHit{
		Tier:          domain.SourceCacheTier2,
		Product:       *product,
		Confidence:    confidence,
		PriceCoherent: true,
		Adjustments:   []Adjustment{penalty},
	}, true
}

// product loads the mapped catalog entry. A dangling mapping is a miss.
func (c *CacheLookup) product(ctx context.Context, id string, req domain.ResolveRequest) (*domain.NormalizedProduct, bool) {
	product, err := c.catalog.GetByID(ctx, id)
	if err != nil {
		c.logMiss("product", req, err)
		return nil, false
	}
	return product, true
}

func (c *CacheLookup) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withOptionalTimeout(ctx, c.cfg.StoreTimeout)
}

func (c *CacheLookup) logMiss(tier string, req domain.ResolveRequest, err error) {
	c.logger.Debug("cache lookup miss",
		zap.String("tier", tier),
		zap.String("raw_name", req.RawName),
		zap.String("store", req.StoreName),
		zap.Error(err))
}

// Result converts the hit into the outward result. Price anomalies always
// need review; otherwise the review decision follows the score.
func (h *CacheHit) Result(model ConfidenceModel) domain.ResolutionResult {
	id := h.Product.ID
	return domain.ResolutionResult{
		Success:             true,
		NormalizedProductID: &id,
		CanonicalName:       h.Product.CanonicalName,
		Brand:               h.Product.Brand,
		Category:            h.Product.Category,
		Subcategory:         h.Product.Subcategory,
		Size:                h.Product.Size,
		UnitType:            h.Product.UnitType,
		Tags:                h.Product.Tags,
		Confidence:          h.Confidence,
		ConfidenceLevel:     model.Level(h.Confidence),
		Source:              h.Tier,
		NeedsReview:         !h.PriceCoherent || model.NeedsReview(h.Confidence),
		Flags:               domain.ResolutionFlags{PriceAnomaly: !h.PriceCoherent},
	}
}
