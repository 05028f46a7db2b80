package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/infrastructure/logging"
)

// Seed is a catalog bootstrap file: products, learned mappings and the
// purchase history behind verified mappings
type Seed struct {
	Products []domain.NormalizedProduct `yaml:"products"`
	Mappings []SeedMapping              `yaml:"mappings"`
	Usages   []SeedUsage                `yaml:"usages"`
}

// SeedMapping references its product by canonical name
type SeedMapping struct {
	RawName    string  `yaml:"raw_name"`
	StoreName  string  `yaml:"store_name"`
	Product    string  `yaml:"product"`
	Confidence float64 `yaml:"confidence"`
	Verified   bool    `yaml:"verified"`
}

// SeedUsage is one historical purchase of a mapped product
type SeedUsage struct {
	RawName     string    `yaml:"raw_name"`
	StoreName   string    `yaml:"store_name"`
	Product     string    `yaml:"product"`
	HouseholdID string    `yaml:"household_id"`
	UnitPrice   *float64  `yaml:"unit_price"`
	UsedAt      time.Time `yaml:"used_at"`
}

// ImportStats counts what an import changed
type ImportStats struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Mappings int `json:"mappings"`
	Usages   int `json:"usages"`
}

// LoadSeed decodes a YAML seed, rejecting unknown fields
func LoadSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed Seed
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return &seed, nil
		}
		return nil, fmt.Errorf("%w: decode seed: %v", domain.ErrInvalidRequest, err)
	}
	return &seed, nil
}

// Catalog maintains canonical products with retrieval-before-create
type Catalog struct {
	products domain.CatalogStore
	mappings domain.MappingStore
	logger   *zap.Logger
	now      func() time.Time
}

// NewCatalog creates a catalog service
func NewCatalog(products domain.CatalogStore, mappings domain.MappingStore, logger *zap.Logger) *Catalog {
	return &Catalog{
		products: products,
		mappings: mappings,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// Register creates the product or, when one with the same canonical name
// already exists, updates the fields that differ. created reports which.
func (c *Catalog) Register(ctx context.Context, product domain.NormalizedProduct) (*domain.NormalizedProduct, bool, error) {
	product.CanonicalName = strings.TrimSpace(product.CanonicalName)
	if product.CanonicalName == "" {
		return nil, false, fmt.Errorf("%w: canonical name is required", domain.ErrInvalidRequest)
	}
	if product.VerificationStatus == "" {
		product.VerificationStatus = domain.VerificationAutoVerified
	}
	if !product.VerificationStatus.Valid() {
		return nil, false, fmt.Errorf("%w: unknown verification status %q", domain.ErrInvalidRequest, product.VerificationStatus)
	}
	if product.UnitType != "" {
		unit := domain.NormalizeUnit(product.UnitType)
		if unit == "" {
			return nil, false, fmt.Errorf("%w: unknown unit %q", domain.ErrInvalidRequest, product.UnitType)
		}
		product.UnitType = unit
	}

	existing, err := c.products.FindByExactName(ctx, product.CanonicalName)
	switch {
	case err == nil:
		update := productDiff(*existing, product)
		if update.Empty() {
			return existing, false, nil
		}
		updated, err := c.products.Update(ctx, existing.ID, update)
		if err != nil {
			return nil, false, fmt.Errorf("update %q: %w", product.CanonicalName, err)
		}
		return updated, false, nil
	case errors.Is(err, domain.ErrProductNotFound):
		inserted, err := c.products.Insert(ctx, &product)
		if err != nil {
			return nil, false, fmt.Errorf("insert %q: %w", product.CanonicalName, err)
		}
		return inserted, true, nil
	default:
		return nil, false, fmt.Errorf("lookup %q: %w", product.CanonicalName, err)
	}
}

// Import loads a seed. Products are registered first so mappings and usages
// can reference them by canonical name.
func (c *Catalog) Import(ctx context.Context, seed *Seed) (ImportStats, error) {
	var stats ImportStats
	ids := make(map[string]string, len(seed.Products))

	for _, p := range seed.Products {
		stored, created, err := c.Register(ctx, p)
		if err != nil {
			return stats, err
		}
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
		ids[stored.CanonicalName] = stored.ID
	}

	resolve := func(name string) (string, error) {
		if id, ok := ids[name]; ok {
			return id, nil
		}
		p, err := c.products.FindByExactName(ctx, name)
		if err != nil {
			return "", fmt.Errorf("product %q: %w", name, err)
		}
		ids[name] = p.ID
		return p.ID, nil
	}

	for _, m := range seed.Mappings {
		id, err := resolve(m.Product)
		if err != nil {
			return stats, err
		}
		_, err = c.mappings.UpsertIfHigherConfidence(ctx, &domain.RawNameMapping{
			RawName:             m.RawName,
			StoreName:           m.StoreName,
			NormalizedProductID: id,
			ConfidenceScore:     domain.Clamp01(m.Confidence),
			VerifiedByUser:      m.Verified,
			InterpretationDetails: domain.InterpretationDetails{
				Reasoning: "seed import",
			},
		})
		if err != nil && !errors.Is(err, domain.ErrDuplicateMapping) {
			return stats, fmt.Errorf("mapping %q: %w", m.RawName, err)
		}
		stats.Mappings++
	}

	for _, u := range seed.Usages {
		id, err := resolve(u.Product)
		if err != nil {
			return stats, err
		}
		usedAt := u.UsedAt
		if usedAt.IsZero() {
			usedAt = c.now()
		}
		if err := c.mappings.RecordUsage(ctx, domain.UsageRecord{
			RawName:     u.RawName,
			StoreName:   u.StoreName,
			ProductID:   id,
			HouseholdID: u.HouseholdID,
			UnitPrice:   u.UnitPrice,
			UsedAt:      usedAt,
		}); err != nil {
			return stats, fmt.Errorf("usage %q: %w", u.RawName, err)
		}
		stats.Usages++
	}

	c.logger.Info("catalog import completed",
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("mappings", stats.Mappings),
		zap.Int("usages", stats.Usages))
	return stats, nil
}

// productDiff returns the update turning current into want. Empty optional
// fields in want leave the stored value alone.
func productDiff(current, want domain.NormalizedProduct) domain.ProductUpdate {
	var u domain.ProductUpdate
	set := func(cur, next string) *string {
		if next == "" || next == cur {
			return nil
		}
		return &next
	}
	u.Brand = set(current.Brand, want.Brand)
	u.Category = set(current.Category, want.Category)
	u.Subcategory = set(current.Subcategory, want.Subcategory)
	u.Size = set(current.Size, want.Size)
	u.UnitType = set(current.UnitType, want.UnitType)
	if len(want.Tags) > 0 && !slices.Equal(current.Tags, want.Tags) {
		u.Tags = want.Tags
	}
	if want.VerificationStatus != current.VerificationStatus && want.VerificationStatus != domain.VerificationAutoVerified {
		status := want.VerificationStatus
		u.VerificationStatus = &status
	}
	return u
}
