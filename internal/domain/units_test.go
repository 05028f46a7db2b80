package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantSize string
		wantUnit string
		wantErr  bool
	}{
		{name: "liters", input: "1.5L", wantSize: "1.5", wantUnit: "L"},
		{name: "grams with space", input: "500 gr", wantSize: "500", wantUnit: "g"},
		{name: "italian word", input: "2 litri", wantSize: "2", wantUnit: "L"},
		{name: "comma decimal", input: "0,75l", wantSize: "0.75", wantUnit: "L"},
		{name: "pieces", input: "6 pezzi", wantSize: "6", wantUnit: "pz"},
		{name: "centiliters", input: "33cl", wantSize: "33", wantUnit: "cl"},
		{name: "unknown unit", input: "3 scatole", wantErr: true},
		{name: "no number", input: "litri", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, unit, err := ParseSize(tt.input)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidRequest))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantSize, size)
			assert.Equal(t, tt.wantUnit, unit)
		})
	}
}

func TestSameUnitFamily(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"L", "ml", true},
		{"l", "cl", true},
		{"kg", "g", true},
		{"pz", "unit", true},
		{"pz", "pezzi", true},
		{"L", "kg", false},
		{"g", "ml", false},
		{"pz", "L", false},
		{"", "kg", true},
		{"L", "", true},
		{"boh", "kg", true},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, SameUnitFamily(tt.a, tt.b))
		})
	}
}

func TestRelativeSizeDiff(t *testing.T) {
	t.Run("converts within family", func(t *testing.T) {
		diff, ok := RelativeSizeDiff("1.5", "L", "1500", "ml")
		assert.True(t, ok)
		assert.InDelta(t, 0, diff, 1e-9)
	})

	t.Run("raw numbers across unknown units", func(t *testing.T) {
		diff, ok := RelativeSizeDiff("100", "", "110", "")
		assert.True(t, ok)
		assert.InDelta(t, 0.10, diff, 1e-9)
	})

	t.Run("non numeric size", func(t *testing.T) {
		_, ok := RelativeSizeDiff("abc", "L", "1", "L")
		assert.False(t, ok)
	})

	t.Run("zero size is rejected", func(t *testing.T) {
		_, ok := RelativeSizeDiff("0", "L", "1", "L")
		assert.False(t, ok)
	})
}

func TestSizeWithinTolerance(t *testing.T) {
	assert.True(t, SizeWithinTolerance("1.5", "L", "1.6", "L", 0.15))
	assert.False(t, SizeWithinTolerance("1.5", "L", "2", "L", 0.15))
	assert.True(t, SizeWithinTolerance("1.5", "L", "", "", 0.15))
	assert.True(t, SizeWithinTolerance("", "", "2", "L", 0.15))
}

func TestCombinedScore(t *testing.T) {
	assert.InDelta(t, 0.6, CombinedScore(0, 1), 1e-9)
	assert.InDelta(t, 0.4, CombinedScore(0.1, 0), 1e-9)
	assert.InDelta(t, 1.0, CombinedScore(0.5, 1), 1e-9)
	assert.Equal(t, 0.0, CombinedScore(-1, -1))
}

func TestPriceCoherent(t *testing.T) {
	price := func(v float64) *float64 { return &v }

	assert.True(t, PriceCoherent(nil, 1.5, 0.3))
	assert.True(t, PriceCoherent(price(1.49), 1.5, 0.3))
	assert.True(t, PriceCoherent(price(1.95), 1.5, 0.3))
	assert.False(t, PriceCoherent(price(10), 1.5, 0.3))
	assert.False(t, PriceCoherent(price(0.5), 1.5, 0.3))
	assert.True(t, PriceCoherent(price(10), 0, 0.3))
}

func TestProductUpdateApply(t *testing.T) {
	p := NormalizedProduct{CanonicalName: "Acqua", Brand: "Sant'Anna", Tags: []string{"acqua"}}
	brand := "Levissima"
	status := VerificationUserVerified

	assert.True(t, ProductUpdate{}.Empty())

	u := ProductUpdate{Brand: &brand, VerificationStatus: &status, Tags: []string{"acqua", "naturale"}}
	assert.False(t, u.Empty())
	u.Apply(&p)

	assert.Equal(t, "Acqua", p.CanonicalName)
	assert.Equal(t, "Levissima", p.Brand)
	assert.Equal(t, VerificationUserVerified, p.VerificationStatus)
	assert.Equal(t, []string{"acqua", "naturale"}, p.Tags)
}

func TestFamilyUnits(t *testing.T) {
	assert.Equal(t, []string{"L", "cl", "ml"}, FamilyUnits("litri"))
	assert.Equal(t, []string{"g", "kg"}, FamilyUnits("gr"))
	assert.Equal(t, []string{"pz"}, FamilyUnits("pezzi"))
	assert.Nil(t, FamilyUnits(""))
	assert.Nil(t, FamilyUnits("scatole"))
}
