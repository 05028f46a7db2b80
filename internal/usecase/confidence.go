package usecase

import (
	"github.com/scontrini/backend/internal/domain"
)

// Named score adjustments. Positive deltas are boosts, negative are penalties.
const (
	AdjHouseholdsVerified = "households_verified"
	AdjUsageCount         = "usage_count"
	AdjRecentUse          = "recent_use"
	AdjPriceAnomaly       = "price_anomaly"
	AdjTier2Penalty       = "tier2_penalty"
	AdjBrandMismatch      = "brand_mismatch"
	AdjCategoryMismatch   = "category_mismatch"
	AdjTagOverlap         = "tag_overlap"
	AdjSizeProximity      = "size_proximity"
)

// Adjustment is a named boost or penalty applied to a base score
type Adjustment struct {
	Name  string
	Delta float64
}

// Boost returns a positive adjustment
func Boost(name string, magnitude float64) Adjustment {
	return Adjustment{Name: name, Delta: magnitude}
}

// Penalty returns a negative adjustment
func Penalty(name string, magnitude float64) Adjustment {
	return Adjustment{Name: name, Delta: -magnitude}
}

// ConfidenceModel maps scores to bands and review decisions.
// Scores at or above HighThreshold are high, at or above ReviewThreshold are
// medium, and anything lower is low and needs review.
type ConfidenceModel struct {
	HighThreshold   float64
	ReviewThreshold float64
}

// DefaultConfidenceModel returns the 0.90 / 0.70 band split
func DefaultConfidenceModel() ConfidenceModel {
	return ConfidenceModel{HighThreshold: 0.90, ReviewThreshold: 0.70}
}

// Apply returns clamp(base + sum(deltas), 0, 1)
func (m ConfidenceModel) Apply(base float64, adjustments ...Adjustment) float64 {
	score := base
	for _, adj := range adjustments {
		score += adj.Delta
	}
	return domain.Clamp01(score)
}

// Level returns the band for score
func (m ConfidenceModel) Level(score float64) domain.ConfidenceLevel {
	switch {
	case score >= m.HighThreshold:
		return domain.ConfidenceHigh
	case score >= m.ReviewThreshold:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// NeedsReview reports whether score is too low to trust automatically
func (m ConfidenceModel) NeedsReview(score float64) bool {
	return score < m.ReviewThreshold
}
