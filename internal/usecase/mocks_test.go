package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/scontrini/backend/internal/domain"
)

// MockCatalogStore is a mock implementation of domain.CatalogStore
type MockCatalogStore struct {
	mu          sync.Mutex
	products    map[string]*domain.NormalizedProduct
	candidates  []domain.Candidate
	searchError error
	getError    error
	searchDelay time.Duration
	searches    []domain.SearchQuery
	inserted    int
	updated     int
}

func NewMockCatalogStore(products ...domain.NormalizedProduct) *MockCatalogStore {
	m := &MockCatalogStore{products: make(map[string]*domain.NormalizedProduct)}
	for i := range products {
		p := products[i]
		m.products[p.ID] = &p
	}
	return m
}

func (m *MockCatalogStore) FindByExactName(ctx context.Context, name string) (*domain.NormalizedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.CanonicalName == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrProductNotFound
}

func (m *MockCatalogStore) GetByID(ctx context.Context, id string) (*domain.NormalizedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockCatalogStore) Insert(ctx context.Context, product *domain.NormalizedProduct) (*domain.NormalizedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *product
	if cp.ID == "" {
		cp.ID = "generated-" + strings.ToLower(strings.ReplaceAll(cp.CanonicalName, " ", "-"))
	}
	m.products[cp.ID] = &cp
	m.inserted++
	return &cp, nil
}

func (m *MockCatalogStore) Update(ctx context.Context, id string, update domain.ProductUpdate) (*domain.NormalizedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	update.Apply(p)
	m.updated++
	cp := *p
	return &cp, nil
}

func (m *MockCatalogStore) SearchHybrid(ctx context.Context, query domain.SearchQuery) ([]domain.Candidate, error) {
	m.mu.Lock()
	m.searches = append(m.searches, query)
	delay := m.searchDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if m.searchError != nil {
		return nil, m.searchError
	}
	out := make([]domain.Candidate, len(m.candidates))
	copy(out, m.candidates)
	return out, nil
}

func (m *MockCatalogStore) productCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.products)
}

type mappingKey struct{ raw, store string }

// MockMappingStore is a mock implementation of domain.MappingStore and domain.CacheStatsSource
type MockMappingStore struct {
	mu          sync.Mutex
	mappings    map[mappingKey]*domain.RawNameMapping
	aggregates  map[mappingKey]*domain.CacheAggregate
	upsertError error
	findError   error
	statsError  error
	upserts     int
	usages      []domain.UsageRecord
}

func NewMockMappingStore() *MockMappingStore {
	return &MockMappingStore{
		mappings:   make(map[mappingKey]*domain.RawNameMapping),
		aggregates: make(map[mappingKey]*domain.CacheAggregate),
	}
}

func (m *MockMappingStore) Find(ctx context.Context, rawName, storeName string) (*domain.RawNameMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mapping, ok := m.mappings[mappingKey{rawName, storeName}]
	if !ok {
		return nil, domain.ErrMappingNotFound
	}
	cp := *mapping
	return &cp, nil
}

func (m *MockMappingStore) FindBestUnverified(ctx context.Context, rawName, storeName string, minConfidence float64) (*domain.RawNameMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findError != nil {
		return nil, m.findError
	}
	var best *domain.RawNameMapping
	for key, mapping := range m.mappings {
		if key.raw != rawName || (storeName != "" && key.store != storeName) {
			continue
		}
		if mapping.VerifiedByUser || mapping.ConfidenceScore < minConfidence {
			continue
		}
		if best == nil || mapping.ConfidenceScore > best.ConfidenceScore {
			best = mapping
		}
	}
	if best == nil {
		return nil, domain.ErrMappingNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *MockMappingStore) UpsertIfHigherConfidence(ctx context.Context, mapping *domain.RawNameMapping) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertError != nil {
		return false, m.upsertError
	}
	key := mappingKey{mapping.RawName, mapping.StoreName}
	if existing, ok := m.mappings[key]; ok && existing.ConfidenceScore >= mapping.ConfidenceScore {
		return false, nil
	}
	cp := *mapping
	m.mappings[key] = &cp
	return true, nil
}

func (m *MockMappingStore) RecordUsage(ctx context.Context, usage domain.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usages = append(m.usages, usage)
	return nil
}

func (m *MockMappingStore) VerifiedAggregate(ctx context.Context, rawName, storeName string, currentPrice *float64, priceTolerance float64) (*domain.CacheAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statsError != nil {
		return nil, m.statsError
	}
	agg, ok := m.aggregates[mappingKey{rawName, storeName}]
	if !ok {
		return nil, nil
	}
	cp := *agg
	cp.PriceCoherent = domain.PriceCoherent(currentPrice, agg.AvgPrice, priceTolerance)
	return &cp, nil
}

func (m *MockMappingStore) stored(rawName, storeName string) *domain.RawNameMapping {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mappings[mappingKey{rawName, storeName}]
}

// MockLLMClient answers each stage from scripted responses keyed by schema
// name. delay keys match either a stage or a substring of the user prompt.
type MockLLMClient struct {
	mu        sync.Mutex
	responses map[string][]mockLLMResponse
	calls     map[string]int
	requests  []domain.CompletionRequest
	delay     map[string]time.Duration
	panicOn   string
}

type mockLLMResponse struct {
	content string
	err     error
}

var errMockLLM = errors.New("mock llm unavailable")

func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{
		responses: make(map[string][]mockLLMResponse),
		calls:     make(map[string]int),
		delay:     make(map[string]time.Duration),
	}
}

// on queues a response for a stage. The last queued response repeats.
func (m *MockLLMClient) on(stage, content string, err error) *MockLLMClient {
	m.responses[stage] = append(m.responses[stage], mockLLMResponse{content: content, err: err})
	return m
}

func (m *MockLLMClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	stage := ""
	if req.Schema != nil {
		stage = req.Schema.Name
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	n := m.calls[stage]
	m.calls[stage]++
	queued := m.responses[stage]
	var delay time.Duration
	for key, d := range m.delay {
		if key == stage || strings.Contains(req.UserPrompt, key) {
			delay = max(delay, d)
		}
	}
	panicOn := m.panicOn
	m.mu.Unlock()

	if panicOn != "" && strings.Contains(req.UserPrompt, panicOn) {
		panic("mock llm panic for " + panicOn)
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if len(queued) == 0 {
		return "", errMockLLM
	}
	if n >= len(queued) {
		n = len(queued) - 1
	}
	return queued[n].content, queued[n].err
}

func (m *MockLLMClient) callCount(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[stage]
}

// noSleep keeps retry tests instant
func noSleep(context.Context, time.Duration) error { return nil }

// MockInterpretationCache is an in-memory domain.InterpretationCache
type MockInterpretationCache struct {
	mu    sync.Mutex
	items map[string]domain.Hypothesis
	sets  int
}

func NewMockInterpretationCache() *MockInterpretationCache {
	return &MockInterpretationCache{items: make(map[string]domain.Hypothesis)}
}

func (m *MockInterpretationCache) Get(ctx context.Context, key string) (*domain.Hypothesis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.items[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return &h, nil
}

func (m *MockInterpretationCache) Set(ctx context.Context, key string, h *domain.Hypothesis, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = *h
	m.sets++
	return nil
}
