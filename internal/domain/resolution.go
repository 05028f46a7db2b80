package domain

// ConfidenceLevel is the coarse band a confidence score falls into
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Source tags which pipeline path produced a result
type Source string

const (
	SourceCacheTier1         Source = "cache_tier1"
	SourceCacheTier2         Source = "cache_tier2"
	SourceHybridSearch       Source = "hybrid_search"
	SourceLLM                Source = "llm"
	SourceHypothesisFallback Source = "hypothesis_fallback"
	SourceError              Source = "error"
)

// Hypothesis is the interpreted structured guess about a raw name
type Hypothesis struct {
	Text        string   `json:"hypothesis"`
	Brand       string   `json:"brand,omitempty"`
	ProductType string   `json:"product_type"`
	Size        string   `json:"size,omitempty"`
	UnitType    string   `json:"unit_type,omitempty"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory,omitempty"`
	Tags        []string `json:"tags"`
	Reasoning   string   `json:"reasoning"`
	Fallback    bool     `json:"fallback,omitempty"`
}

// ResolutionFlags are the named review signals attached to a result
type ResolutionFlags struct {
	PriceAnomaly  bool `json:"price_anomaly"`
	BrandMismatch bool `json:"brand_mismatch"`
	SizeUncertain bool `json:"size_uncertain"`
	Ambiguous     bool `json:"ambiguous"`
}

// ResolutionResult is the outward contract of the normalization pipeline
type ResolutionResult struct {
	Success             bool            `json:"success"`
	NormalizedProductID *string         `json:"normalized_product_id"`
	CanonicalName       string          `json:"canonical_name"`
	Brand               string          `json:"brand,omitempty"`
	Category            string          `json:"category,omitempty"`
	Subcategory         string          `json:"subcategory,omitempty"`
	Size                string          `json:"size,omitempty"`
	UnitType            string          `json:"unit_type,omitempty"`
	Tags                []string        `json:"tags,omitempty"`
	Confidence          float64         `json:"confidence"`
	ConfidenceLevel     ConfidenceLevel `json:"confidence_level"`
	Source              Source          `json:"source"`
	NeedsReview         bool            `json:"needs_review"`
	Flags               ResolutionFlags `json:"flags"`
	Reasoning           string          `json:"reasoning,omitempty"`
	Error               string          `json:"error,omitempty"`
}

// ResolveRequest is a single raw line to normalize
type ResolveRequest struct {
	RawName   string   `json:"raw_name" yaml:"raw_name"`
	StoreName string   `json:"store_name,omitempty" yaml:"store_name"`
	Price     *float64 `json:"price,omitempty" yaml:"price"`
}

// LineItem is a receipt line as handed over by the receipt parser
type LineItem struct {
	RawName    string   `json:"raw_product_name"`
	StoreName  string   `json:"store_name,omitempty"`
	Quantity   float64  `json:"quantity"`
	UnitPrice  *float64 `json:"unit_price,omitempty"`
	TotalPrice *float64 `json:"total_price,omitempty"`
}

// AggregatedItem is a line item after duplicates of the same key were merged
type AggregatedItem struct {
	LineItem
	AggregatedFrom  int   `json:"aggregated_from"`
	OriginalIndexes []int `json:"original_indexes"`
}

// SearchQuery is what the hybrid retriever asks the catalog for
type SearchQuery struct {
	Text           string
	Terms          []string
	Brand          string
	Category       string
	Size           string
	UnitType       string
	SizeTolerance  float64
	TopK           int
	FTSThreshold   float64
	FuzzyThreshold float64
}
