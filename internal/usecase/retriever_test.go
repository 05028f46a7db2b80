package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scontrini/backend/internal/domain"
)

func candidate(p domain.NormalizedProduct, fts, fuzzy float64) domain.Candidate {
	return domain.Candidate{
		Product:       p,
		FTSScore:      fts,
		FuzzyScore:    fuzzy,
		CombinedScore: domain.CombinedScore(fts, fuzzy),
	}
}

func testProduct(id, name, brand, category, size, unit string, tags ...string) domain.NormalizedProduct {
	return domain.NormalizedProduct{
		ID:            id,
		CanonicalName: name,
		Brand:         brand,
		Category:      category,
		Size:          size,
		UnitType:      unit,
		Tags:          tags,
	}
}

var sannaHypothesis = domain.Hypothesis{
	Text:        "Acqua Frizzante Sant'Anna 1.5L",
	Brand:       "Sant'Anna",
	ProductType: "acqua frizzante",
	Size:        "1.5",
	UnitType:    "L",
	Category:    "Bevande",
	Tags:        []string{"acqua", "frizzante", "bottiglia", "minerale"},
}

func TestHybridRetriever_Retrieve(t *testing.T) {
	sanna15 := testProduct("p1", "Acqua Frizzante Sant'Anna 1.5L", "Sant'Anna", "Bevande", "1.5", "L", "acqua", "frizzante")
	sanna05 := testProduct("p2", "Acqua Frizzante Sant'Anna 0.5L", "Sant'Anna", "Bevande", "0.5", "L", "acqua", "frizzante")
	sannaMl := testProduct("p3", "Acqua Frizzante Sant'Anna 1500ml", "Sant'Anna", "Bevande", "1500", "ml", "acqua")
	sugar := testProduct("p4", "Zucchero Semolato 1kg", "Eridania", "Dispensa", "1", "kg", "zucchero")
	noSize := testProduct("p5", "Acqua Frizzante Generica", "", "Bevande", "", "", "acqua")

	t.Run("keeps only compatible unit family and size", func(t *testing.T) {
		catalog := NewMockCatalogStore()
		catalog.candidates = []domain.Candidate{
			candidate(sanna15, 0.08, 0.9),
			candidate(sugar, 0.01, 0.3),
			candidate(sanna05, 0.07, 0.8),
			candidate(sannaMl, 0.05, 0.6),
			candidate(noSize, 0.02, 0.4),
		}
		r := NewHybridRetriever(catalog, DefaultRetrieverConfig(), nil)

		got, err := r.Retrieve(context.Background(), sannaHypothesis)
		require.NoError(t, err)

		var ids []string
		for _, c := range got {
			ids = append(ids, c.Product.ID)
		}
		assert.Equal(t, []string{"p1", "p3", "p5"}, ids)
	})

	t.Run("builds the query from the hypothesis", func(t *testing.T) {
		catalog := NewMockCatalogStore()
		r := NewHybridRetriever(catalog, DefaultRetrieverConfig(), nil)

		_, err := r.Retrieve(context.Background(), sannaHypothesis)
		require.NoError(t, err)
		require.Len(t, catalog.searches, 1)

		q := catalog.searches[0]
		assert.Equal(t, "Acqua Frizzante Sant'Anna", q.Text)
		assert.Equal(t, []string{"acqua", "frizzante", "sant", "anna"}, q.Terms)
		assert.Equal(t, "1.5", q.Size)
		assert.Equal(t, "L", q.UnitType)
		assert.Equal(t, 20, q.TopK)
		assert.InDelta(t, 0.15, q.SizeTolerance, 1e-9)
	})

	t.Run("empty hypothesis returns empty list without searching", func(t *testing.T) {
		catalog := NewMockCatalogStore()
		r := NewHybridRetriever(catalog, DefaultRetrieverConfig(), nil)

		got, err := r.Retrieve(context.Background(), domain.Hypothesis{})
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Empty(t, catalog.searches)
	})

	t.Run("drops candidates under both thresholds", func(t *testing.T) {
		catalog := NewMockCatalogStore()
		catalog.candidates = []domain.Candidate{
			candidate(sanna15, 0.0005, 0.10),
			candidate(noSize, 0.0, 0.20),
		}
		r := NewHybridRetriever(catalog, DefaultRetrieverConfig(), nil)

		got, err := r.Retrieve(context.Background(), sannaHypothesis)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "p5", got[0].Product.ID)
	})

	t.Run("truncates to top k", func(t *testing.T) {
		catalog := NewMockCatalogStore()
		for i := 0; i < 30; i++ {
			catalog.candidates = append(catalog.candidates, candidate(sanna15, 0.05, 0.5))
		}
		cfg := DefaultRetrieverConfig()
		cfg.TopK = 7
		r := NewHybridRetriever(catalog, cfg, nil)

		got, err := r.Retrieve(context.Background(), sannaHypothesis)
		require.NoError(t, err)
		assert.Len(t, got, 7)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		catalog := NewMockCatalogStore()
		catalog.searchError = errors.New("connection refused")
		r := NewHybridRetriever(catalog, DefaultRetrieverConfig(), nil)

		_, err := r.Retrieve(context.Background(), sannaHypothesis)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrStoreFailure))
	})
}
