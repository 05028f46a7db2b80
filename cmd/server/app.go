package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/scontrini/backend/config"
	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/infrastructure/cache"
	"github.com/scontrini/backend/internal/infrastructure/llm"
	"github.com/scontrini/backend/internal/infrastructure/memory"
	"github.com/scontrini/backend/internal/infrastructure/postgres"
	"github.com/scontrini/backend/internal/retry"
	"github.com/scontrini/backend/internal/usecase"
)

// stores bundles the catalog, mapping and history views of one backend
type stores struct {
	catalog  domain.CatalogStore
	mappings domain.MappingStore
	stats    domain.CacheStatsSource
	close    func()
	// counts is set by backends that can report their size cheaply
	counts func() (products, mappings int)
}

// openStores connects the configured backend, applying migrations first
// when asked to
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.Store.Type {
	case "memory":
		s := memory.NewStore()
		logger.Info("using in-memory store")
		return &stores{catalog: s, mappings: s, stats: s, close: func() {}, counts: s.Stats}, nil

	case "postgres":
		if cfg.Store.MigrateOnStart {
			version, err := postgres.Migrate(cfg.Store.DatabaseURL)
			if err != nil {
				return nil, err
			}
			logger.Info("database migrated", zap.Uint("version", version))
		}
		pool, err := postgres.NewPool(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		s := postgres.NewStore(pool, logger)
		logger.Info("using postgres store", zap.Int32("max_conns", cfg.Store.MaxConns))
		return &stores{catalog: s, mappings: s, stats: s, close: s.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported store type %q", cfg.Store.Type)
	}
}

// importSeedFile loads a YAML seed into the stores
func importSeedFile(ctx context.Context, path string, st *stores, logger *zap.Logger) (usecase.ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return usecase.ImportStats{}, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()

	seed, err := usecase.LoadSeed(f)
	if err != nil {
		return usecase.ImportStats{}, err
	}
	stats, err := usecase.NewCatalog(st.catalog, st.mappings, logger).Import(ctx, seed)
	if err != nil {
		return stats, err
	}
	if st.counts != nil {
		products, mappings := st.counts()
		logger.Info("store contents", zap.Int("products", products), zap.Int("mappings", mappings))
	}
	return stats, nil
}

// retryPolicy builds the LLM retry policy from the pipeline settings
func retryPolicy(cfg config.PipelineConfig) retry.Policy {
	return retry.Policy{
		Attempts:  cfg.RetryAttempts,
		BaseDelay: cfg.RetryBaseDelay,
		MaxDelay:  cfg.RetryMaxDelay,
		Retryable: llm.IsRetryable,
		Hint:      llm.RetryAfter,
	}
}

// newLLMClient creates the chat completion client from config
func newLLMClient(cfg config.LLMConfig, logger *zap.Logger) *llm.Client {
	return llm.NewClient(llm.Config{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}, llm.WithLogger(logger))
}

// newNormalizer composes every pipeline stage from config
func newNormalizer(
	cfg *config.Config,
	st *stores,
	client domain.LLMClient,
	interpretations domain.InterpretationCache,
	recorder usecase.Recorder,
	logger *zap.Logger,
) *usecase.Normalizer {
	model := usecase.ConfidenceModel{
		HighThreshold:   cfg.Confidence.HighThreshold,
		ReviewThreshold: cfg.Confidence.ReviewThreshold,
	}
	policy := retryPolicy(cfg.Pipeline)
	stage := func(temperature float64) usecase.StageConfig {
		return usecase.StageConfig{
			Temperature: temperature,
			Timeout:     cfg.Pipeline.StageTimeout,
			Retry:       policy,
		}
	}

	lookup := usecase.NewCacheLookup(st.catalog, st.mappings, st.stats, model, usecase.CacheLookupConfig{
		BaseConfidence:      cfg.Cache.BaseConfidence,
		PriceTolerance:      cfg.Cache.PriceTolerance,
		MinHouseholdsBoost:  cfg.Cache.MinHouseholdsBoost,
		MinUsageBoost:       cfg.Cache.MinUsageBoost,
		RecentDays:          cfg.Cache.RecentDays,
		BoostHouseholds:     cfg.Cache.BoostHouseholds,
		BoostUsage:          cfg.Cache.BoostUsage,
		BoostRecency:        cfg.Cache.BoostRecency,
		MaxConfidence:       cfg.Cache.MaxConfidence,
		PriceAnomalyPenalty: cfg.Cache.PriceAnomalyPenalty,
		ConfidenceFloor:     cfg.Cache.ConfidenceFloor,
		Tier2Penalty:        cfg.Cache.Tier2Penalty,
		Tier2MinConfidence:  cfg.Cache.Tier2MinConfidence,
		StoreTimeout:        cfg.Pipeline.StoreTimeout,
	}, logger)

	interpreter := usecase.NewInterpreter(client, interpretations, usecase.InterpreterConfig{
		Stage:    stage(0.2),
		CacheTTL: cfg.Pipeline.InterpretationCacheTTL,
	}, logger)

	retriever := usecase.NewHybridRetriever(st.catalog, usecase.RetrieverConfig{
		TopK:           cfg.Retriever.TopK,
		FTSThreshold:   cfg.Retriever.FTSThreshold,
		FuzzyThreshold: cfg.Retriever.FuzzyThreshold,
		SizeTolerance:  cfg.Retriever.SizeTolerance,
		Timeout:        cfg.Pipeline.StoreTimeout,
		Retry: retry.Policy{
			Attempts:  2,
			BaseDelay: cfg.Pipeline.RetryBaseDelay,
			MaxDelay:  cfg.Pipeline.RetryMaxDelay,
		},
	}, logger)

	reranker := usecase.NewReranker(model, usecase.RerankerConfig{
		BrandMismatchPenalty:    cfg.Reranker.BrandMismatchPenalty,
		CategoryMismatchPenalty: cfg.Reranker.CategoryMismatchPenalty,
		TagOverlapBoost:         cfg.Reranker.TagOverlapBoost,
		SizeProximityBoost:      cfg.Reranker.SizeProximityBoost,
		SizeProximityRatio:      cfg.Reranker.SizeProximityRatio,
		MaxResults:              cfg.Reranker.MaxResults,
	}, logger)

	selector := usecase.NewSelector(client, usecase.SelectorConfig{
		Stage:         stage(0.2),
		MaxCandidates: cfg.Pipeline.SelectCandidates,
	}, logger)

	validator := usecase.NewValidator(client, model, stage(0.1), logger)

	return usecase.NewNormalizer(usecase.NormalizerDeps{
		Cache:       lookup,
		Interpreter: interpreter,
		Retriever:   retriever,
		Reranker:    reranker,
		Selector:    selector,
		Validator:   validator,
		Mappings:    st.mappings,
		Model:       model,
		Recorder:    recorder,
	}, usecase.NormalizerConfig{
		BatchSize:          cfg.Pipeline.BatchSize,
		FallbackConfidence: cfg.Pipeline.FallbackConfidence,
		DirectAcceptScore:  cfg.Pipeline.DirectAcceptScore,
		StoreTimeout:       cfg.Pipeline.StoreTimeout,
	}, logger)
}

// pipeline is a ready normalizer plus what must be released after use
type pipeline struct {
	normalizer      *usecase.Normalizer
	stores          *stores
	interpretations *cache.HypothesisCache
}

func (p *pipeline) Close() {
	_ = p.interpretations.Close()
	p.stores.close()
}

// buildPipeline opens the stores, optionally imports a seed and wires the
// normalizer against the real LLM client
func buildPipeline(ctx context.Context, cfg *config.Config, seedPath string, recorder usecase.Recorder, logger *zap.Logger) (*pipeline, error) {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if seedPath != "" {
		stats, err := importSeedFile(ctx, seedPath, st, logger)
		if err != nil {
			st.close()
			return nil, fmt.Errorf("import seed: %w", err)
		}
		logger.Info("seed imported", zap.String("path", seedPath), zap.Int("products", stats.Created+stats.Updated))
	}

	interpretations := cache.NewHypothesisCache(cache.DefaultCleanupInterval)
	client := newLLMClient(cfg.LLM, logger)

	return &pipeline{
		normalizer:      newNormalizer(cfg, st, client, interpretations, recorder, logger),
		stores:          st,
		interpretations: interpretations,
	}, nil
}
