package domain

import (
	"context"
	"time"
)

// CatalogStore reads and writes canonical products
type CatalogStore interface {
	FindByExactName(ctx context.Context, name string) (*NormalizedProduct, error)
	GetByID(ctx context.Context, id string) (*NormalizedProduct, error)
	Insert(ctx context.Context, product *NormalizedProduct) (*NormalizedProduct, error)
	Update(ctx context.Context, id string, update ProductUpdate) (*NormalizedProduct, error)
	SearchHybrid(ctx context.Context, query SearchQuery) ([]Candidate, error)
}

// MappingStore persists learned raw name mappings.
// An empty storeName addresses the global mapping.
type MappingStore interface {
	Find(ctx context.Context, rawName, storeName string) (*RawNameMapping, error)
	FindBestUnverified(ctx context.Context, rawName, storeName string, minConfidence float64) (*RawNameMapping, error)
	// UpsertIfHigherConfidence stores m unless a mapping for the same key
	// already has an equal or higher confidence. It reports whether a write happened.
	UpsertIfHigherConfidence(ctx context.Context, m *RawNameMapping) (bool, error)
	RecordUsage(ctx context.Context, usage UsageRecord) error
}

// CacheStatsSource aggregates the verified history used by the tier 1 cache
type CacheStatsSource interface {
	VerifiedAggregate(ctx context.Context, rawName, storeName string, currentPrice *float64, priceTolerance float64) (*CacheAggregate, error)
}

// CompletionRequest is one structured LLM call
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	Schema       *ResponseSchema
}

// ResponseSchema names the JSON schema the model output must follow
type ResponseSchema struct {
	Name   string
	Schema map[string]any
}

// LLMClient is the opaque model call surface. Implementations do not retry.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// InterpretationCache memoizes hypotheses for raw names already interpreted
type InterpretationCache interface {
	Get(ctx context.Context, key string) (*Hypothesis, error)
	Set(ctx context.Context, key string, value *Hypothesis, ttl time.Duration) error
}
