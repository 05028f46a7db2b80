package domain

import "time"

// RawNameMapping is the learned association between an as-printed receipt
// string and a catalog product. An empty StoreName means a global mapping.
type RawNameMapping struct {
	ID                    string                `json:"id"`
	RawName               string                `json:"raw_name"`
	StoreName             string                `json:"store_name,omitempty"`
	NormalizedProductID   string                `json:"normalized_product_id"`
	ConfidenceScore       float64               `json:"confidence_score"`
	VerifiedByUser        bool                  `json:"verified_by_user"`
	RequiresManualReview  bool                  `json:"requires_manual_review"`
	InterpretationDetails InterpretationDetails `json:"interpretation_details"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

// InterpretationDetails is the audit record stored next to a mapping
type InterpretationDetails struct {
	Source               Source            `json:"source,omitempty"`
	Hypothesis           *Hypothesis       `json:"hypothesis,omitempty"`
	Reasoning            string            `json:"reasoning,omitempty"`
	SelectionReasoning   string            `json:"selection_reasoning,omitempty"`
	ValidationReasoning  string            `json:"validation_reasoning,omitempty"`
	CandidatesConsidered int               `json:"candidates_considered,omitempty"`
	Flags                ResolutionFlags   `json:"flags"`
	Extra                map[string]string `json:"extra,omitempty"`
}

// CacheAggregate summarizes the verified history of a (raw name, store) key
type CacheAggregate struct {
	ProductID          string    `json:"product_id"`
	UsageCount         int       `json:"usage_count"`
	VerifiedHouseholds int       `json:"verified_households"`
	LastUsed           time.Time `json:"last_used"`
	AvgPrice           float64   `json:"avg_price,omitempty"`
	PriceCoherent      bool      `json:"price_coherent"`
}

// UsageRecord is one observed purchase of a mapped product
type UsageRecord struct {
	RawName     string    `json:"raw_name" yaml:"raw_name"`
	StoreName   string    `json:"store_name,omitempty" yaml:"store_name"`
	ProductID   string    `json:"product_id" yaml:"product_id"`
	HouseholdID string    `json:"household_id" yaml:"household_id"`
	UnitPrice   *float64  `json:"unit_price,omitempty" yaml:"unit_price"`
	UsedAt      time.Time `json:"used_at" yaml:"used_at"`
}

// PriceCoherent reports whether current lies within ±tolerance of avg.
// Missing data on either side counts as coherent.
func PriceCoherent(current *float64, avg, tolerance float64) bool {
	if current == nil || avg <= 0 {
		return true
	}
	low := avg * (1 - tolerance)
	high := avg * (1 + tolerance)
	return *current >= low && *current <= high
}
