// Package memory is an in-process catalog and mapping store. It backs the
// server when no database is configured and serves as the reference fake in
// tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/textnorm"
)

// ftsRankScale maps token coverage in [0,1] onto the range ts_rank
// typically produces, so thresholds behave like the Postgres store
const ftsRankScale = 0.1

type mappingKey struct{ raw, store string }

// Store implements domain.CatalogStore, domain.MappingStore and
// domain.CacheStatsSource
type Store struct {
	mu       sync.RWMutex
	products map[string]*domain.NormalizedProduct
	mappings map[mappingKey]*domain.RawNameMapping
	usages   []domain.UsageRecord
	now      func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		products: make(map[string]*domain.NormalizedProduct),
		mappings: make(map[mappingKey]*domain.RawNameMapping),
		now:      time.Now,
	}
}

// FindByExactName returns the product with exactly this canonical name
func (s *Store) FindByExactName(ctx context.Context, name string) (*domain.NormalizedProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p := s.byName(name); p != nil {
		return cloneProduct(p), nil
	}
	return nil, domain.ErrProductNotFound
}

// GetByID returns a product by id
func (s *Store) GetByID(ctx context.Context, id string) (*domain.NormalizedProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

// Insert stores a new product. Canonical names are unique.
func (s *Store) Insert(ctx context.Context, product *domain.NormalizedProduct) (*domain.NormalizedProduct, error) {
	if product == nil || strings.TrimSpace(product.CanonicalName) == "" {
		return nil, fmt.Errorf("%w: canonical name is required", domain.ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byName(product.CanonicalName) != nil {
		return nil, fmt.Errorf("%w: product %q already exists", domain.ErrInvalidRequest, product.CanonicalName)
	}

	p := cloneProduct(product)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, taken := s.products[p.ID]; taken {
		return nil, fmt.Errorf("%w: product id %q already exists", domain.ErrInvalidRequest, p.ID)
	}
	if p.VerificationStatus == "" {
		p.VerificationStatus = domain.VerificationAutoVerified
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now

	s.products[p.ID] = p
	return cloneProduct(p), nil
}

// Update applies the set fields of update
func (s *Store) Update(ctx context.Context, id string, update domain.ProductUpdate) (*domain.NormalizedProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	if update.CanonicalName != nil {
		if other := s.byName(*update.CanonicalName); other != nil && other.ID != id {
			return nil, fmt.Errorf("%w: product %q already exists", domain.ErrInvalidRequest, *update.CanonicalName)
		}
	}
	update.Apply(p)
	p.UpdatedAt = s.now()
	return cloneProduct(p), nil
}

// SearchHybrid scores every product by token coverage (the full-text
// signal) and trigram similarity of the canonical name (the fuzzy signal).
// A product is kept when either signal clears its threshold and its unit
// is compatible with the query.
func (s *Store) SearchHybrid(ctx context.Context, query domain.SearchQuery) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Candidate
	for _, p := range s.products {
		if !domain.SameUnitFamily(query.UnitType, p.UnitType) {
			continue
		}
		fts := textnorm.Coverage(query.Terms, textnorm.Tokenize(document(p))) * ftsRankScale
		fuzzy := textnorm.TrigramSimilarity(query.Text, p.CanonicalName)
		if fts < query.FTSThreshold && fuzzy < query.FuzzyThreshold {
			continue
		}
		out = append(out, domain.Candidate{
			Product:       *cloneProduct(p),
			FTSScore:      fts,
			FuzzyScore:    fuzzy,
			CombinedScore: domain.CombinedScore(fts, fuzzy),
		})
	}

	slices.SortFunc(out, func(a, b domain.Candidate) int {
		if c := cmp.Compare(b.CombinedScore, a.CombinedScore); c != 0 {
			return c
		}
		return cmp.Compare(a.Product.ID, b.Product.ID)
	})
	if query.TopK > 0 && len(out) > query.TopK {
		out = out[:query.TopK]
	}
	return out, nil
}

// Find returns the mapping for the exact key
func (s *Store) Find(ctx context.Context, rawName, storeName string) (*domain.RawNameMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mappings[mappingKey{rawName, storeName}]
	if !ok {
		return nil, domain.ErrMappingNotFound
	}
	return cloneMapping(m), nil
}

// FindBestUnverified returns the highest-confidence unverified mapping for
// rawName at or above minConfidence. An empty storeName matches any store.
func (s *Store) FindBestUnverified(ctx context.Context, rawName, storeName string, minConfidence float64) (*domain.RawNameMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.RawNameMapping
	for key, m := range s.mappings {
		if key.raw != rawName || (storeName != "" && key.store != storeName) {
			continue
		}
		if m.VerifiedByUser || m.ConfidenceScore < minConfidence {
			continue
		}
		if best == nil || m.ConfidenceScore > best.ConfidenceScore ||
			(m.ConfidenceScore == best.ConfidenceScore && m.UpdatedAt.After(best.UpdatedAt)) {
			best = m
		}
	}
	if best == nil {
		return nil, domain.ErrMappingNotFound
	}
	return cloneMapping(best), nil
}

// UpsertIfHigherConfidence writes m unless the stored mapping for the same
// key has an equal or higher confidence. The check and the write happen
// under one lock.
func (s *Store) UpsertIfHigherConfidence(ctx context.Context, m *domain.RawNameMapping) (bool, error) {
	if m == nil || m.RawName == "" || m.NormalizedProductID == "" {
		return false, fmt.Errorf("%w: mapping needs a raw name and a product", domain.ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[m.NormalizedProductID]; !ok {
		return false, fmt.Errorf("mapping %q: %w", m.RawName, domain.ErrProductNotFound)
	}

	key := mappingKey{m.RawName, m.StoreName}
	now := s.now()
	next := cloneMapping(m)
	next.ConfidenceScore = domain.Clamp01(next.ConfidenceScore)

	existing, ok := s.mappings[key]
	if ok {
		if existing.ConfidenceScore >= next.ConfidenceScore {
			return false, nil
		}
		next.ID = existing.ID
		next.CreatedAt = existing.CreatedAt
	} else {
		if next.ID == "" {
			next.ID = uuid.NewString()
		}
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	s.mappings[key] = next
	return true, nil
}

// RecordUsage appends one purchase to the history
func (s *Store) RecordUsage(ctx context.Context, usage domain.UsageRecord) error {
	if usage.RawName == "" || usage.ProductID == "" {
		return fmt.Errorf("%w: usage needs a raw name and a product", domain.ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if usage.UsedAt.IsZero() {
		usage.UsedAt = s.now()
	}
	if usage.UnitPrice != nil {
		price := *usage.UnitPrice
		usage.UnitPrice = &price
	}
	s.usages = append(s.usages, usage)
	return nil
}

// VerifiedAggregate summarizes the purchases behind the user-verified
// mapping for rawName. It returns nil when no verified mapping exists.
// An empty storeName matches any store.
func (s *Store) VerifiedAggregate(ctx context.Context, rawName, storeName string, currentPrice *float64, priceTolerance float64) (*domain.CacheAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var verified *domain.RawNameMapping
	for key, m := range s.mappings {
		if key.raw != rawName || (storeName != "" && key.store != storeName) || !m.VerifiedByUser {
			continue
		}
		if verified == nil || m.ConfidenceScore > verified.ConfidenceScore {
			verified = m
		}
	}
	if verified == nil {
		return nil, nil
	}

	agg := &domain.CacheAggregate{ProductID: verified.NormalizedProductID}
	households := make(map[string]struct{})
	var (
		priceSum float64
		priced   int
	)
	for _, u := range s.usages {
		if u.RawName != rawName || u.ProductID != verified.NormalizedProductID {
			continue
		}
		if storeName != "" && u.StoreName != storeName {
			continue
		}
		agg.UsageCount++
		if u.HouseholdID != "" {
			households[u.HouseholdID] = struct{}{}
		}
		if u.UsedAt.After(agg.LastUsed) {
			agg.LastUsed = u.UsedAt
		}
		if u.UnitPrice != nil {
			priceSum += *u.UnitPrice
			priced++
		}
	}
	agg.VerifiedHouseholds = len(households)
	if priced > 0 {
		agg.AvgPrice = priceSum / float64(priced)
	}
	agg.PriceCoherent = domain.PriceCoherent(currentPrice, agg.AvgPrice, priceTolerance)
	return agg, nil
}

// Stats reports the number of stored products and mappings
func (s *Store) Stats() (products, mappings int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), len(s.mappings)
}

func (s *Store) byName(name string) *domain.NormalizedProduct {
	for _, p := range s.products {
		if p.CanonicalName == name {
			return p
		}
	}
	return nil
}

// document is the text indexed for full-text matching
func document(p *domain.NormalizedProduct) string {
	return strings.Join(append([]string{p.CanonicalName, p.Brand, p.Category, p.Subcategory}, p.Tags...), " ")
}

func cloneProduct(p *domain.NormalizedProduct) *domain.NormalizedProduct {
	cp := *p
	cp.Tags = slices.Clone(p.Tags)
	return &cp
}

func cloneMapping(m *domain.RawNameMapping) *domain.RawNameMapping {
	cp := *m
	if m.InterpretationDetails.Hypothesis != nil {
		h := *m.InterpretationDetails.Hypothesis
		h.Tags = slices.Clone(h.Tags)
		cp.InterpretationDetails.Hypothesis = &h
	}
	cp.InterpretationDetails.Extra = maps.Clone(m.InterpretationDetails.Extra)
	return &cp
}
