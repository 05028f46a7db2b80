package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/infrastructure/logging"
	"github.com/scontrini/backend/internal/textnorm"
)

const (
	minHypothesisTags = 4
	maxHypothesisTags = 8

	fallbackCategory    = "Alimentari"
	fallbackSubcategory = "generico"
	freshBrandMarker    = "FRESCO"
)

var fallbackTags = []string{"generico", "non-identificato"}

// freshDepartments are the folded words that mark unbranded counter products
var freshDepartments = map[string]bool{
	"frutta": true, "verdura": true, "ortofrutta": true,
	"gastronomia": true, "salumeria": true, "rosticceria": true,
	"macelleria": true, "carne": true,
	"pescheria": true, "pesce": true,
	"panetteria": true, "panificio": true, "forno": true, "pane": true,
}

// InterpreterConfig configures the interpretation stage
type InterpreterConfig struct {
	Stage    StageConfig
	CacheTTL time.Duration
}

// Interpreter turns a raw receipt line into a structured hypothesis
type Interpreter struct {
	stage  llmStage
	cache  domain.InterpretationCache
	cfg    InterpreterConfig
	logger *zap.Logger
}

// NewInterpreter creates an interpreter. cache may be nil.
func NewInterpreter(client domain.LLMClient, cache domain.InterpretationCache, cfg InterpreterConfig, logger *zap.Logger) *Interpreter {
	logger = logging.OrNop(logger)
	return &Interpreter{
		stage: llmStage{
			name:         schemaInterpretation,
			client:       client,
			systemPrompt: interpretSystemPrompt,
			schema:       interpretationSchema,
			cfg:          cfg.Stage,
			logger:       logger,
		},
		cache:  cache,
		cfg:    cfg,
		logger: logger,
	}
}

type interpretationResponse struct {
	Hypothesis  string   `json:"hypothesis"`
	Brand       *string  `json:"brand"`
	ProductType string   `json:"product_type"`
	Size        *string  `json:"size"`
	UnitType    *string  `json:"unit_type"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Tags        []string `json:"tags"`
	Reasoning   string   `json:"reasoning"`
}

// Interpret never fails: transport errors and unusable responses produce the
// fallback hypothesis built from the raw name.
func (i *Interpreter) Interpret(ctx context.Context, req domain.ResolveRequest) domain.Hypothesis {
	key := interpretationKey(req)
	if i.cache != nil {
		if cached, err := i.cache.Get(ctx, key); err == nil && cached != nil {
			return *cached
		}
	}

	var resp interpretationResponse
	if err := i.stage.call(ctx, buildInterpretPrompt(req), &resp); err != nil {
		i.logger.Warn("interpretation failed, using raw name",
			zap.String("raw_name", req.RawName),
			zap.String("store", req.StoreName),
			zap.Error(err))
		return FallbackHypothesis(req.RawName, err)
	}

	h, err := normalizeHypothesis(resp, req.StoreName)
	if err != nil {
		i.logger.Warn("interpretation rejected, using raw name",
			zap.String("raw_name", req.RawName),
			zap.Error(err))
		return FallbackHypothesis(req.RawName, err)
	}

	if i.cache != nil {
		if err := i.cache.Set(ctx, key, &h, i.cfg.CacheTTL); err != nil {
			i.logger.Debug("interpretation cache write failed", zap.Error(err))
		}
	}
	return h
}

// FallbackHypothesis treats the raw name itself as the hypothesis
func FallbackHypothesis(rawName string, cause error) domain.Hypothesis {
	reason := "interpretazione non disponibile"
	if cause != nil {
		reason = cause.Error()
	}
	return domain.Hypothesis{
		Text:        rawName,
		ProductType: rawName,
		Category:    fallbackCategory,
		Subcategory: fallbackSubcategory,
		Tags:        append([]string(nil), fallbackTags...),
		Reasoning:   "fallback: " + reason,
		Fallback:    true,
	}
}

func interpretationKey(req domain.ResolveRequest) string {
	return strings.TrimSpace(req.RawName) + "\x00" + strings.TrimSpace(req.StoreName)
}

func normalizeHypothesis(resp interpretationResponse, storeName string) (domain.Hypothesis, error) {
	h := domain.Hypothesis{
		Text:        strings.TrimSpace(resp.Hypothesis),
		Brand:       nullable(resp.Brand),
		ProductType: strings.TrimSpace(resp.ProductType),
		Category:    strings.TrimSpace(resp.Category),
		Subcategory: strings.TrimSpace(resp.Subcategory),
		Reasoning:   strings.TrimSpace(resp.Reasoning),
	}
	if h.Text == "" {
		return domain.Hypothesis{}, fmt.Errorf("%w: missing hypothesis", domain.ErrMalformedLLMResponse)
	}
	if h.ProductType == "" {
		h.ProductType = h.Text
	}
	if h.Category == "" {
		h.Category = fallbackCategory
	}

	h.Size, h.UnitType = normalizeSize(nullable(resp.Size), nullable(resp.UnitType))
	h.Tags = normalizeTags(resp.Tags, h)

	if h.Brand == "" && isFreshDepartment(h) {
		h.Brand = freshBrand(storeName)
	}
	return h, nil
}

// normalizeSize keeps the size numeric-only. A size with an embedded unit
// ("1.5L") is split; an unparseable size is dropped.
func normalizeSize(size, unit string) (string, string) {
	unit = domain.NormalizeUnit(unit)
	if size == "" {
		return "", unit
	}
	if q, u, err := domain.ParseSize(size); err == nil {
		if unit == "" {
			unit = u
		}
		return q, unit
	}
	if _, ok := domain.ParseQuantity(size); ok {
		return strings.ReplaceAll(strings.TrimSpace(size), ",", "."), unit
	}
	return "", unit
}

// normalizeTags lower-cases and dedupes tags, pads short lists from the
// hypothesis fields and truncates long ones
func normalizeTags(tags []string, h domain.Hypothesis) []string {
	out := make([]string, 0, maxHypothesisTags)
	seen := make(map[string]bool)
	add := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[textnorm.Fold(tag)] || len(out) >= maxHypothesisTags {
			return
		}
		seen[textnorm.Fold(tag)] = true
		out = append(out, tag)
	}

	for _, tag := range tags {
		add(tag)
	}
	if len(out) < minHypothesisTags {
		padding := textnorm.Tokenize(h.ProductType)
		padding = append(padding, textnorm.Fold(h.Subcategory), textnorm.Fold(h.Category))
		padding = append(padding, textnorm.Tokenize(h.Text)...)
		for _, tag := range padding {
			if len(out) >= minHypothesisTags {
				break
			}
			add(tag)
		}
	}
	return out
}

func isFreshDepartment(h domain.Hypothesis) bool {
	for _, field := range []string{h.Category, h.Subcategory, h.ProductType} {
		for _, word := range textnorm.Words(field) {
			if freshDepartments[word] {
				return true
			}
		}
	}
	return false
}

func freshBrand(storeName string) string {
	store := strings.TrimSpace(storeName)
	if store == "" {
		return freshBrandMarker
	}
	return strings.ToUpper(store) + " " + freshBrandMarker
}

func nullable(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	switch strings.ToLower(v) {
	case "null", "none", "n/a", "-":
		return ""
	}
	return v
}
