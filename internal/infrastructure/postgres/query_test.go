package postgres

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scontrini/backend/internal/domain"
)

var (
	_ domain.CatalogStore     = (*Store)(nil)
	_ domain.MappingStore     = (*Store)(nil)
	_ domain.CacheStatsSource = (*Store)(nil)
)

func TestTSQuery(t *testing.T) {
	tests := []struct {
		name  string
		terms []string
		want  string
	}{
		{name: "prefix or", terms: []string{"acqua", "frizzante"}, want: "acqua:* | frizzante:*"},
		{name: "strips syntax", terms: []string{"sant'anna", "a&b", "!x", "(y)"}, want: "santanna:* | ab:* | x:* | y:*"},
		{name: "lowercases", terms: []string{"COCA"}, want: "coca:*"},
		{name: "deduplicates", terms: []string{"latte", "latte"}, want: "latte:*"},
		{name: "drops empty", terms: []string{"", ":*", "|"}, want: ""},
		{name: "keeps accents", terms: []string{"caffè"}, want: "caffè:*"},
		{name: "nil", terms: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tsQuery(tt.terms))
		})
	}
}

func TestProductUpdateSet(t *testing.T) {
	t.Run("numbers arguments after the id", func(t *testing.T) {
		brand := "Barilla"
		size := "500"
		status := domain.VerificationUserVerified

		set, args := productUpdateSet(domain.ProductUpdate{
			Brand:              &brand,
			Size:               &size,
			Tags:               []string{"pasta"},
			VerificationStatus: &status,
		})

		assert.Equal(t, "brand = $2, size = $3, tags = $4, verification_status = $5, updated_at = now()", set)
		assert.Equal(t, []any{"Barilla", "500", []string{"pasta"}, "user_verified"}, args)
	})

	t.Run("empty update", func(t *testing.T) {
		set, args := productUpdateSet(domain.ProductUpdate{})
		assert.Empty(t, set)
		assert.Nil(t, args)
	})
}

func TestPgErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: uniqueViolation})
	assert.Equal(t, uniqueViolation, pgErrorCode(wrapped))
	assert.Empty(t, pgErrorCode(errors.New("boom")))
	assert.Empty(t, pgErrorCode(nil))
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %s", name)
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)

	up, err := fs.ReadFile(migrations, "migrations/000001_init.up.sql")
	require.NoError(t, err)
	for _, table := range []string{"normalized_products", "product_mappings", "product_usage"} {
		assert.Contains(t, string(up), "CREATE TABLE "+table)
	}
	assert.Contains(t, string(up), "UNIQUE (raw_name, store_name)")
}

func TestMigrate_RequiresURL(t *testing.T) {
	_, err := Migrate("")
	assert.Error(t, err)
}
