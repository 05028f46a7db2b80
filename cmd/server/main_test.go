package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scontrini/backend/config"
	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/infrastructure/cache"
	"github.com/scontrini/backend/internal/usecase"
)

const testSeed = `
products:
  - canonical_name: Acqua Frizzante Sant'Anna 1.5L
    brand: Sant'Anna
    category: Bevande
    size: "1.5"
    unit_type: L
    tags: [acqua, frizzante]
  - canonical_name: Pane Comune
    category: Panetteria
    unit_type: kg
mappings:
  - raw_name: SANNA ACQ FR 1.5X6
    store_name: Esselunga
    product: Acqua Frizzante Sant'Anna 1.5L
    confidence: 0.95
    verified: true
usages:
  - raw_name: SANNA ACQ FR 1.5X6
    store_name: Esselunga
    product: Acqua Frizzante Sant'Anna 1.5L
    household_id: h1
    unit_price: 0.45
`

// failingLLM counts calls and never answers
type failingLLM struct {
	calls atomic.Int32
}

func (f *failingLLM) Complete(context.Context, domain.CompletionRequest) (string, error) {
	f.calls.Add(1)
	return "", errors.New("llm unavailable")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Type: "memory"},
		Cache: config.CacheConfig{
			BaseConfidence:      0.90,
			PriceTolerance:      0.30,
			MinHouseholdsBoost:  3,
			MinUsageBoost:       10,
			RecentDays:          90,
			BoostHouseholds:     0.03,
			BoostUsage:          0.02,
			BoostRecency:        0.02,
			MaxConfidence:       0.97,
			PriceAnomalyPenalty: 0.20,
			ConfidenceFloor:     0.70,
			Tier2Penalty:        0.05,
			Tier2MinConfidence:  0.85,
		},
		Retriever: config.RetrieverConfig{TopK: 20, FTSThreshold: 0.001, FuzzyThreshold: 0.15, SizeTolerance: 0.15},
		Reranker: config.RerankerConfig{
			BrandMismatchPenalty:    0.20,
			CategoryMismatchPenalty: 0.15,
			TagOverlapBoost:         0.05,
			SizeProximityBoost:      0.10,
			SizeProximityRatio:      0.05,
			MaxResults:              10,
		},
		Confidence: config.ConfidenceConfig{HighThreshold: 0.90, ReviewThreshold: 0.70},
		Pipeline: config.PipelineConfig{
			BatchSize:          10,
			SelectCandidates:   5,
			FallbackConfidence: 0.60,
			StageTimeout:       time.Second,
			StoreTimeout:       time.Second,
			RetryAttempts:      1,
		},
	}
}

func TestRootCommand_Tree(t *testing.T) {
	root := newRootCommand()

	names := make([]string, 0)
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"serve", "resolve", "migrate", "catalog"})

	importCmd, _, err := root.Find([]string{"catalog", "import"})
	require.NoError(t, err)
	assert.Equal(t, "import", importCmd.Name())

	assert.NotNil(t, root.Flags().Lookup("seed"), "root runs serve and takes its flags")
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestRetryPolicy(t *testing.T) {
	policy := retryPolicy(config.PipelineConfig{
		RetryAttempts:  3,
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  5 * time.Second,
	})

	assert.Equal(t, 3, policy.Attempts)
	assert.Equal(t, 500*time.Millisecond, policy.BaseDelay)
	assert.Equal(t, 5*time.Second, policy.MaxDelay)
	assert.NotNil(t, policy.Retryable)
	assert.NotNil(t, policy.Hint)
}

func TestOpenStores_RejectsUnknownType(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Type = "redis"

	_, err := openStores(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestNewNormalizer_ServesSeededHistoryWithoutLLM(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	logger := zap.NewNop()

	st, err := openStores(ctx, cfg, logger)
	require.NoError(t, err)
	defer st.close()

	stats, err := importSeedFile(ctx, writeFile(t, "seed.yaml", testSeed), st, logger)
	require.NoError(t, err)
	assert.Equal(t, usecase.ImportStats{Created: 2, Mappings: 1, Usages: 1}, stats)

	interpretations := cache.NewHypothesisCache(time.Minute)
	defer interpretations.Close()
	client := &failingLLM{}

	n := newNormalizer(cfg, st, client, interpretations, nil, logger)

	price := 0.45
	result := n.Resolve(ctx, domain.ResolveRequest{
		RawName:   "SANNA ACQ FR 1.5X6",
		StoreName: "Esselunga",
		Price:     &price,
	})

	assert.True(t, result.Success)
	assert.Equal(t, domain.SourceCacheTier1, result.Source)
	assert.Equal(t, "Acqua Frizzante Sant'Anna 1.5L", result.CanonicalName)
	assert.False(t, result.Flags.PriceAnomaly)
	assert.Zero(t, client.calls.Load())
}

func TestNewNormalizer_UnknownNameFallsBackWithoutCrashing(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	st, err := openStores(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer st.close()

	n := newNormalizer(cfg, st, &failingLLM{}, nil, nil, zap.NewNop())

	result := n.Resolve(ctx, domain.ResolveRequest{RawName: "XYZ SCONOSCIUTO"})
	assert.Equal(t, domain.SourceHypothesisFallback, result.Source)
	assert.Nil(t, result.NormalizedProductID)
	assert.True(t, result.NeedsReview)
	assert.Equal(t, domain.ConfidenceLow, result.ConfidenceLevel)
}

func TestCatalogImportCommand(t *testing.T) {
	configPath := writeFile(t, "config.yaml", "llm:\n  api_key: test-key\nlog:\n  level: error\n")
	seedPath := writeFile(t, "seed.yaml", testSeed)

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", configPath, "catalog", "import", seedPath})

	require.NoError(t, root.Execute())

	var stats usecase.ImportStats
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 1, stats.Mappings)
	assert.Equal(t, 1, stats.Usages)
}

func TestMigrateCommand_RequiresPostgres(t *testing.T) {
	configPath := writeFile(t, "config.yaml", "llm:\n  api_key: test-key\nlog:\n  level: error\n")

	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", configPath, "migrate"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}
