package domain

import (
	"math"
	"time"
)

// VerificationStatus describes how a catalog entry was confirmed
type VerificationStatus string

const (
	VerificationAutoVerified  VerificationStatus = "auto_verified"
	VerificationUserVerified  VerificationStatus = "user_verified"
	VerificationPendingReview VerificationStatus = "pending_review"
)

// Valid reports whether the status is one of the known values
func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationAutoVerified, VerificationUserVerified, VerificationPendingReview:
		return true
	}
	return false
}

// NormalizedProduct is a canonical catalog entry.
// Size holds the quantity only (e.g. "1.5"), the unit lives in UnitType.
type NormalizedProduct struct {
	ID                 string             `json:"id" yaml:"id"`
	CanonicalName      string             `json:"canonical_name" yaml:"canonical_name"`
	Brand              string             `json:"brand,omitempty" yaml:"brand"`
	Category           string             `json:"category" yaml:"category"`
	Subcategory        string             `json:"subcategory,omitempty" yaml:"subcategory"`
	Size               string             `json:"size,omitempty" yaml:"size"`
	UnitType           string             `json:"unit_type,omitempty" yaml:"unit_type"`
	Tags               []string           `json:"tags,omitempty" yaml:"tags"`
	VerificationStatus VerificationStatus `json:"verification_status" yaml:"verification_status"`
	CreatedAt          time.Time          `json:"created_at" yaml:"-"`
	UpdatedAt          time.Time          `json:"updated_at" yaml:"-"`
}

// ProductUpdate carries the mutable fields of a catalog entry.
// Nil pointers leave the stored value untouched.
type ProductUpdate struct {
	CanonicalName      *string
	Brand              *string
	Category           *string
	Subcategory        *string
	Size               *string
	UnitType           *string
	Tags               []string
	VerificationStatus *VerificationStatus
}

// Empty reports whether the update changes nothing
func (u ProductUpdate) Empty() bool {
	return u.CanonicalName == nil && u.Brand == nil && u.Category == nil &&
		u.Subcategory == nil && u.Size == nil && u.UnitType == nil &&
		u.Tags == nil && u.VerificationStatus == nil
}

// Apply copies the set fields of the update onto p
func (u ProductUpdate) Apply(p *NormalizedProduct) {
	if u.CanonicalName != nil {
		p.CanonicalName = *u.CanonicalName
	}
	if u.Brand != nil {
		p.Brand = *u.Brand
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.Subcategory != nil {
		p.Subcategory = *u.Subcategory
	}
	if u.Size != nil {
		p.Size = *u.Size
	}
	if u.UnitType != nil {
		p.UnitType = *u.UnitType
	}
	if u.Tags != nil {
		p.Tags = append([]string(nil), u.Tags...)
	}
	if u.VerificationStatus != nil {
		p.VerificationStatus = *u.VerificationStatus
	}
}

// Candidate is a catalog product scored against a hypothesis during a single
// resolution. It is never persisted.
type Candidate struct {
	Product       NormalizedProduct `json:"product"`
	FTSScore      float64           `json:"fts_score"`
	FuzzyScore    float64           `json:"fuzzy_score"`
	CombinedScore float64           `json:"combined_score"`
	BusinessScore float64           `json:"business_score"`
}

// Weights of the lexical sub-scores in CombinedScore. FTS ranks come from
// ts_rank and sit roughly in [0, 0.1], so they are scaled before mixing.
const (
	fuzzyScoreWeight = 0.6
	ftsScoreWeight   = 0.4
	ftsScoreScale    = 10.0
)

// CombinedScore mixes the full-text and trigram sub-scores into one value in [0,1]
func CombinedScore(fts, fuzzy float64) float64 {
	score := fuzzyScoreWeight*fuzzy + ftsScoreWeight*math.Min(1, fts*ftsScoreScale)
	return Clamp01(score)
}

// Clamp01 bounds v to [0,1]
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
