package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scontrini/backend/internal/domain"
)

func TestReranker_Rerank(t *testing.T) {
	r := NewReranker(DefaultConfidenceModel(), DefaultRerankerConfig(), nil)

	t.Run("rejects other unit families regardless of lexical score", func(t *testing.T) {
		in := []domain.Candidate{
			candidate(testProduct("kg", "Acqua Frizzante Sant'Anna 1.5kg", "Sant'Anna", "Bevande", "1.5", "kg"), 0.1, 1.0),
			candidate(testProduct("pz", "Acqua Frizzante Sant'Anna", "Sant'Anna", "Bevande", "6", "pz"), 0.1, 1.0),
			candidate(testProduct("ml", "Acqua Sant'Anna 500ml", "Sant'Anna", "Bevande", "500", "ml"), 0.01, 0.2),
			candidate(testProduct("none", "Acqua Sant'Anna", "Sant'Anna", "Bevande", "", ""), 0.01, 0.2),
		}

		out, stats := r.Rerank(sannaHypothesis, in)

		var ids []string
		for _, c := range out {
			ids = append(ids, c.Product.ID)
		}
		assert.ElementsMatch(t, []string{"ml", "none"}, ids)
		assert.Equal(t, RerankStats{Input: 4, Discarded: 2}, stats)
	})

	t.Run("all filtered returns empty", func(t *testing.T) {
		in := []domain.Candidate{
			candidate(testProduct("kg", "Zucchero", "", "", "1", "kg"), 0.1, 0.9),
		}
		out, stats := r.Rerank(sannaHypothesis, in)
		assert.Empty(t, out)
		assert.Equal(t, 1, stats.Discarded)
	})

	t.Run("applies business rules", func(t *testing.T) {
		base := candidate(testProduct("x", "Acqua Frizzante 1.5L", "", "", "", "L"), 0, 0.5)
		require.InDelta(t, 0.30, base.CombinedScore, 1e-9)

		tests := []struct {
			name    string
			product domain.NormalizedProduct
			want    float64
		}{
			{"no fields to compare", testProduct("a", "n", "", "", "", "L"), 0.30},
			{"brand mismatch", testProduct("a", "n", "Levissima", "", "", "L"), 0.10},
			{"brand match ignores case and accents", testProduct("a", "n", "SANT'ANNA", "", "", "L"), 0.30},
			{"category mismatch", testProduct("a", "n", "", "Dispensa", "", "L"), 0.15},
			{"shared tags", testProduct("a", "n", "", "", "", "L", "Acqua", "FRIZZANTE", "vetro"), 0.40},
			{"size proximity", testProduct("a", "n", "", "", "1.5", "L"), 0.40},
			{"size proximity across units", testProduct("a", "n", "", "", "1500", "ml"), 0.40},
			{"size too far", testProduct("a", "n", "", "", "2", "L"), 0.30},
			{"clamped at zero", testProduct("a", "n", "Levissima", "Dispensa", "", "L"), 0.0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				c := base
				c.Product = tt.product
				out, _ := r.Rerank(sannaHypothesis, []domain.Candidate{c})
				require.Len(t, out, 1)
				assert.InDelta(t, tt.want, out[0].BusinessScore, 1e-9)
			})
		}
	})

	t.Run("sorts descending and keeps retriever order on ties", func(t *testing.T) {
		in := []domain.Candidate{
			candidate(testProduct("first", "a", "", "", "", "L"), 0, 0.5),
			candidate(testProduct("best", "b", "Sant'Anna", "Bevande", "1.5", "L"), 0, 0.5),
			candidate(testProduct("second", "c", "", "", "", "L"), 0, 0.5),
		}
		out, _ := r.Rerank(sannaHypothesis, in)
		require.Len(t, out, 3)
		assert.Equal(t, "best", out[0].Product.ID)
		assert.Equal(t, "first", out[1].Product.ID)
		assert.Equal(t, "second", out[2].Product.ID)
	})

	t.Run("returns at most ten and leaves input untouched", func(t *testing.T) {
		in := make([]domain.Candidate, 15)
		for i := range in {
			in[i] = candidate(testProduct("p", "n", "", "", "", "L"), 0, float64(i)/20)
		}
		out, _ := r.Rerank(sannaHypothesis, in)
		assert.Len(t, out, 10)
		assert.InDelta(t, 0.42, out[0].CombinedScore, 1e-9)
		for _, c := range in {
			assert.Zero(t, c.BusinessScore)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		in := []domain.Candidate{
			candidate(testProduct("a", "n", "Levissima", "Bevande", "1.5", "L", "acqua"), 0.02, 0.6),
			candidate(testProduct("b", "n", "Sant'Anna", "Bevande", "1", "L", "acqua", "frizzante"), 0.03, 0.4),
			candidate(testProduct("c", "n", "", "", "", "", "minerale"), 0.01, 0.7),
		}
		first, _ := r.Rerank(sannaHypothesis, in)
		second, _ := r.Rerank(sannaHypothesis, in)
		assert.Equal(t, first, second)
	})
}
