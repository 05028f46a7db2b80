package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Store      StoreConfig
	LLM        LLMConfig
	Cache      CacheConfig
	Retriever  RetrieverConfig
	Reranker   RerankerConfig
	Confidence ConfidenceConfig
	Pipeline   PipelineConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig selects the zap encoder and level
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// StoreConfig selects the catalog and mapping backend
type StoreConfig struct {
	Type           string `mapstructure:"type"` // "memory" or "postgres"
	DatabaseURL    string `mapstructure:"database_url"`
	MaxConns       int32  `mapstructure:"max_conns"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

// LLMConfig holds the chat completion endpoint settings
type LLMConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// CacheConfig holds the two-tier mapping cache parameters
type CacheConfig struct {
	BaseConfidence      float64 `mapstructure:"base_confidence"`
	PriceTolerance      float64 `mapstructure:"price_tolerance"`
	MinHouseholdsBoost  int     `mapstructure:"min_households_boost"`
	MinUsageBoost       int     `mapstructure:"min_usage_boost"`
	RecentDays          int     `mapstructure:"recent_days"`
	BoostHouseholds     float64 `mapstructure:"boost_households"`
	BoostUsage          float64 `mapstructure:"boost_usage"`
	BoostRecency        float64 `mapstructure:"boost_recency"`
	MaxConfidence       float64 `mapstructure:"max_confidence"`
	PriceAnomalyPenalty float64 `mapstructure:"price_anomaly_penalty"`
	ConfidenceFloor     float64 `mapstructure:"confidence_floor"`
	Tier2Penalty        float64 `mapstructure:"tier2_penalty"`
	Tier2MinConfidence  float64 `mapstructure:"tier2_min_confidence"`
}

// RetrieverConfig holds hybrid search thresholds
type RetrieverConfig struct {
	TopK           int     `mapstructure:"top_k"`
	FTSThreshold   float64 `mapstructure:"fts_threshold"`
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
	SizeTolerance  float64 `mapstructure:"size_tolerance"`
}

// RerankerConfig holds the business rule magnitudes
type RerankerConfig struct {
	BrandMismatchPenalty    float64 `mapstructure:"brand_mismatch_penalty"`
	CategoryMismatchPenalty float64 `mapstructure:"category_mismatch_penalty"`
	TagOverlapBoost         float64 `mapstructure:"tag_overlap_boost"`
	SizeProximityBoost      float64 `mapstructure:"size_proximity_boost"`
	SizeProximityRatio      float64 `mapstructure:"size_proximity_ratio"`
	MaxResults              int     `mapstructure:"max_results"`
}

// ConfidenceConfig holds the canonical band thresholds
type ConfidenceConfig struct {
	HighThreshold   float64 `mapstructure:"high_threshold"`
	ReviewThreshold float64 `mapstructure:"review_threshold"`
}

// PipelineConfig holds orchestration settings
type PipelineConfig struct {
	BatchSize              int           `mapstructure:"batch_size"`
	SelectCandidates       int           `mapstructure:"select_candidates"`
	FallbackConfidence     float64       `mapstructure:"fallback_confidence"`
	StageTimeout           time.Duration `mapstructure:"stage_timeout"`
	StoreTimeout           time.Duration `mapstructure:"store_timeout"`
	RetryAttempts          int           `mapstructure:"retry_attempts"`
	RetryBaseDelay         time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay          time.Duration `mapstructure:"retry_max_delay"`
	InterpretationCacheTTL time.Duration `mapstructure:"interpretation_cache_ttl"`
	DirectAcceptScore      float64       `mapstructure:"direct_accept_score"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path searches
// the default locations.
func LoadFile(path string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/scontrini/")
	}

	// SCONTRINI_LLM_API_KEY -> llm.api_key
	v.SetEnvPrefix("SCONTRINI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional when searching default paths
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("store.type", "memory")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.migrate_on_start", false)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.requests_per_second", 5.0)
	v.SetDefault("llm.burst", 10)

	// Cache tier defaults
	v.SetDefault("cache.base_confidence", 0.90)
	v.SetDefault("cache.price_tolerance", 0.30)
	v.SetDefault("cache.min_households_boost", 3)
	v.SetDefault("cache.min_usage_boost", 10)
	v.SetDefault("cache.recent_days", 90)
	v.SetDefault("cache.boost_households", 0.03)
	v.SetDefault("cache.boost_usage", 0.02)
	v.SetDefault("cache.boost_recency", 0.02)
	v.SetDefault("cache.max_confidence", 0.97)
	v.SetDefault("cache.price_anomaly_penalty", 0.20)
	v.SetDefault("cache.confidence_floor", 0.70)
	v.SetDefault("cache.tier2_penalty", 0.05)
	v.SetDefault("cache.tier2_min_confidence", 0.85)

	v.SetDefault("retriever.top_k", 20)
	v.SetDefault("retriever.fts_threshold", 0.001)
	v.SetDefault("retriever.fuzzy_threshold", 0.15)
	v.SetDefault("retriever.size_tolerance", 0.15)

	v.SetDefault("reranker.brand_mismatch_penalty", 0.20)
	v.SetDefault("reranker.category_mismatch_penalty", 0.15)
	v.SetDefault("reranker.tag_overlap_boost", 0.05)
	v.SetDefault("reranker.size_proximity_boost", 0.10)
	v.SetDefault("reranker.size_proximity_ratio", 0.05)
	v.SetDefault("reranker.max_results", 10)

	v.SetDefault("confidence.high_threshold", 0.90)
	v.SetDefault("confidence.review_threshold", 0.70)

	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("pipeline.select_candidates", 5)
	v.SetDefault("pipeline.fallback_confidence", 0.60)
	v.SetDefault("pipeline.stage_timeout", "20s")
	v.SetDefault("pipeline.store_timeout", "5s")
	v.SetDefault("pipeline.retry_attempts", 3)
	v.SetDefault("pipeline.retry_base_delay", "500ms")
	v.SetDefault("pipeline.retry_max_delay", "5s")
	v.SetDefault("pipeline.interpretation_cache_ttl", "24h")
	v.SetDefault("pipeline.direct_accept_score", 0.0)

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 120)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key is required (set SCONTRINI_LLM_API_KEY)")
	}

	if config.Store.Type != "memory" && config.Store.Type != "postgres" {
		return fmt.Errorf("store type must be 'memory' or 'postgres', got: %s", config.Store.Type)
	}

	if config.Store.Type == "postgres" && config.Store.DatabaseURL == "" {
		return fmt.Errorf("database URL is required when store type is 'postgres'")
	}

	if config.Log.Format != "console" && config.Log.Format != "json" {
		return fmt.Errorf("log format must be 'console' or 'json', got: %s", config.Log.Format)
	}

	scores := map[string]float64{
		"cache.base_confidence":        config.Cache.BaseConfidence,
		"cache.max_confidence":         config.Cache.MaxConfidence,
		"cache.confidence_floor":       config.Cache.ConfidenceFloor,
		"cache.tier2_min_confidence":   config.Cache.Tier2MinConfidence,
		"confidence.high_threshold":    config.Confidence.HighThreshold,
		"confidence.review_threshold":  config.Confidence.ReviewThreshold,
		"pipeline.fallback_confidence": config.Pipeline.FallbackConfidence,
		"pipeline.direct_accept_score": config.Pipeline.DirectAcceptScore,
	}
	for key, value := range scores {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be within [0,1], got: %v", key, value)
		}
	}

	if config.Confidence.ReviewThreshold > config.Confidence.HighThreshold {
		return fmt.Errorf("confidence.review_threshold (%v) must not exceed confidence.high_threshold (%v)",
			config.Confidence.ReviewThreshold, config.Confidence.HighThreshold)
	}

	if config.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got: %d", config.Pipeline.BatchSize)
	}

	if config.Retriever.TopK <= 0 {
		return fmt.Errorf("retriever.top_k must be positive, got: %d", config.Retriever.TopK)
	}

	return nil
}

// loadEnvFile exports KEY=VALUE pairs from ./.env without overriding
// variables that are already set
func loadEnvFile() error {
	f, err := os.Open(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return scanner.Err()
}
