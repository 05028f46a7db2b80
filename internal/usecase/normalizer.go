package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/infrastructure/logging"
)

// Pipeline stage names used in logs and metrics
const (
	StageCache     = "cache"
	StageInterpret = "interpret"
	StageRetrieve  = "retrieve"
	StageRerank    = "rerank"
	StageSelect    = "select"
	StageValidate  = "validate"
	StagePersist   = "persist"
)

// Recorder receives pipeline measurements
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	IncFallback(stage string)
	IncResolution(source domain.Source)
	ObserveBatch(items int)
	AddRerankDiscarded(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration) {}
func (nopRecorder) IncFallback(string)                 {}
func (nopRecorder) IncResolution(domain.Source)        {}
func (nopRecorder) ObserveBatch(int)                   {}
func (nopRecorder) AddRerankDiscarded(int)             {}

// NormalizerConfig holds orchestrator settings
type NormalizerConfig struct {
	BatchSize          int
	FallbackConfidence float64
	// DirectAcceptScore skips selection when the top reranked candidate
	// scores at least this much. Zero disables it.
	DirectAcceptScore float64
	StoreTimeout      time.Duration
}

// DefaultNormalizerConfig mirrors the configured defaults
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		BatchSize:          10,
		FallbackConfidence: 0.60,
		StoreTimeout:       5 * time.Second,
	}
}

// NormalizerDeps are the stages the orchestrator composes
type NormalizerDeps struct {
	Cache       *CacheLookup
	Interpreter *Interpreter
	Retriever   *HybridRetriever
	Reranker    *Reranker
	Selector    *Selector
	Validator   *Validator
	Mappings    domain.MappingStore
	Model       ConfidenceModel
	Recorder    Recorder
}

// Normalizer resolves raw receipt names to catalog products
type Normalizer struct {
	deps   NormalizerDeps
	cfg    NormalizerConfig
	logger *zap.Logger
	flight singleflight.Group
}

// NewNormalizer creates the resolution pipeline
func NewNormalizer(deps NormalizerDeps, cfg NormalizerConfig, logger *zap.Logger) *Normalizer {
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Normalizer{deps: deps, cfg: cfg, logger: logging.OrNop(logger)}
}

// Resolve runs the pipeline for one raw name. It always returns a well-formed
// result: failures become an error result and panics are recovered.
// Concurrent calls for the same (raw name, store, price) share one run.
func (n *Normalizer) Resolve(ctx context.Context, req domain.ResolveRequest) domain.ResolutionResult {
	req.RawName = strings.TrimSpace(req.RawName)
	req.StoreName = strings.TrimSpace(req.StoreName)

	if req.RawName == "" {
		return n.finish(errorResult(req, fmt.Errorf("%w: raw product name is required", domain.ErrInvalidRequest)))
	}
	if err := ctx.Err(); err != nil {
		return n.finish(errorResult(req, err))
	}

	v, _, _ := n.flight.Do(flightKey(req), func() (any, error) {
		return n.resolveSafely(ctx, req), nil
	})
	result := v.(domain.ResolutionResult)
	result.Tags = append([]string(nil), result.Tags...)
	if result.NormalizedProductID != nil {
		id := *result.NormalizedProductID
		result.NormalizedProductID = &id
	}
	return result
}

// ResolveBatch resolves items in groups of batchSize (the configured size
// when batchSize <= 0). Items within a group run concurrently; results are
// positional.
func (n *Normalizer) ResolveBatch(ctx context.Context, reqs []domain.ResolveRequest, batchSize int) []domain.ResolutionResult {
	if batchSize <= 0 {
		batchSize = n.cfg.BatchSize
	}
	n.deps.Recorder.ObserveBatch(len(reqs))

	results := make([]domain.ResolutionResult, len(reqs))
	for start := 0; start < len(reqs); start += batchSize {
		end := min(start+batchSize, len(reqs))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = n.Resolve(gctx, reqs[i])
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}

func (n *Normalizer) resolveSafely(ctx context.Context, req domain.ResolveRequest) (result domain.ResolutionResult) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("resolution panicked",
				zap.String("raw_name", req.RawName),
				zap.String("store", req.StoreName),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			result = n.finish(errorResult(req, fmt.Errorf("internal error: %v", r)))
		}
	}()
	return n.finish(n.resolve(ctx, req))
}

func (n *Normalizer) resolve(ctx context.Context, req domain.ResolveRequest) domain.ResolutionResult {
	log := n.logger.With(zap.String("raw_name", req.RawName), zap.String("store", req.StoreName))

	var (
		hit   *CacheHit
		found bool
	)
	n.timed(StageCache, func() { hit, found = n.deps.Cache.Lookup(ctx, req) })
	if found {
		log.Debug("cache hit", zap.String("source", string(hit.Tier)), zap.Float64("confidence", hit.Confidence))
		return hit.Result(n.deps.Model)
	}

	var h domain.Hypothesis
	n.timed(StageInterpret, func() { h = n.deps.Interpreter.Interpret(ctx, req) })
	if h.Fallback {
		n.deps.Recorder.IncFallback(StageInterpret)
	}

	var (
		candidates []domain.Candidate
		err        error
	)
	n.timed(StageRetrieve, func() { candidates, err = n.deps.Retriever.Retrieve(ctx, h) })
	if err != nil {
		log.Warn("retrieval failed", zap.Error(err))
	}
	if len(candidates) == 0 {
		return n.hypothesisFallback(StageRetrieve, h, "nessun candidato nel catalogo")
	}

	var (
		ranked []domain.Candidate
		stats  RerankStats
	)
	n.timed(StageRerank, func() { ranked, stats = n.deps.Reranker.Rerank(h, candidates) })
	if stats.Discarded > 0 {
		n.deps.Recorder.AddRerankDiscarded(stats.Discarded)
		log.Debug("candidates discarded by unit family",
			zap.Int("input", stats.Input),
			zap.Int("discarded", stats.Discarded))
	}
	if len(ranked) == 0 {
		return n.hypothesisFallback(StageRerank, h, "tutti i candidati scartati per unità di misura incompatibile")
	}

	sel, source := n.selectCandidate(ctx, req, h, ranked)

	var val Validation
	n.timed(StageValidate, func() { val = n.deps.Validator.Validate(ctx, req.RawName, h, sel.Candidate.Product) })
	if val.Fallback {
		n.deps.Recorder.IncFallback(StageValidate)
	}

	result := productResult(sel.Candidate.Product, val, source)
	log.Debug("resolved",
		zap.String("source", string(source)),
		zap.String("product_id", sel.Candidate.Product.ID),
		zap.Float64("confidence", val.Confidence))

	n.timed(StagePersist, func() { n.persist(ctx, req, h, sel, val, source, len(ranked)) })
	return result
}

func (n *Normalizer) selectCandidate(ctx context.Context, req domain.ResolveRequest, h domain.Hypothesis, ranked []domain.Candidate) (Selection, domain.Source) {
	if n.cfg.DirectAcceptScore > 0 && ranked[0].BusinessScore >= n.cfg.DirectAcceptScore {
		return Selection{
			Candidate: ranked[0],
			Reasoning: "accettato direttamente: punteggio " + strconv.FormatFloat(ranked[0].BusinessScore, 'f', 3, 64),
		}, domain.SourceHybridSearch
	}

	var (
		sel Selection
		err error
	)
	n.timed(StageSelect, func() { sel, err = n.deps.Selector.Select(ctx, req.RawName, h, ranked) })
	if err != nil {
		// ranked is never empty here, so this only guards against misuse
		sel = fallbackSelection(ranked, "fallback: "+err.Error())
	}
	if sel.Fallback {
		n.deps.Recorder.IncFallback(StageSelect)
	}
	return sel, domain.SourceLLM
}

// persist records the mapping unless the caller already gave up. Duplicate
// keys count as success; other failures only cost the cache update.
func (n *Normalizer) persist(ctx context.Context, req domain.ResolveRequest, h domain.Hypothesis, sel Selection, val Validation, source domain.Source, considered int) {
	if n.deps.Mappings == nil || ctx.Err() != nil {
		return
	}

	hyp := h
	mapping := &domain.RawNameMapping{
		RawName:              req.RawName,
		StoreName:            req.StoreName,
		NormalizedProductID:  sel.Candidate.Product.ID,
		ConfidenceScore:      val.Confidence,
		RequiresManualReview: val.NeedsReview,
		InterpretationDetails: domain.InterpretationDetails{
			Source:               source,
			Hypothesis:           &hyp,
			Reasoning:            h.Reasoning,
			SelectionReasoning:   sel.Reasoning,
			ValidationReasoning:  val.Reasoning,
			CandidatesConsidered: considered,
			Flags:                val.Flags,
			Extra: map[string]string{
				"selected_index":  strconv.Itoa(sel.Index),
				"business_score":  strconv.FormatFloat(sel.Candidate.BusinessScore, 'f', 4, 64),
				"combined_score":  strconv.FormatFloat(sel.Candidate.CombinedScore, 'f', 4, 64),
				"select_fallback": strconv.FormatBool(sel.Fallback),
			},
		},
	}

	sctx, cancel := withOptionalTimeout(ctx, n.cfg.StoreTimeout)
	defer cancel()

	updated, err := n.deps.Mappings.UpsertIfHigherConfidence(sctx, mapping)
	switch {
	case errors.Is(err, domain.ErrDuplicateMapping):
		n.logger.Debug("mapping already present", zap.String("raw_name", req.RawName))
	case err != nil:
		n.logger.Warn("persisting mapping failed",
			zap.String("raw_name", req.RawName),
			zap.String("store", req.StoreName),
			zap.Error(err))
	default:
		n.logger.Debug("mapping persisted",
			zap.String("raw_name", req.RawName),
			zap.Bool("updated", updated),
			zap.Float64("confidence", val.Confidence))
	}
}

// hypothesisFallback surfaces the interpreted hypothesis as an unresolved,
// low-confidence answer. No catalog product is created.
func (n *Normalizer) hypothesisFallback(stage string, h domain.Hypothesis, reason string) domain.ResolutionResult {
	n.deps.Recorder.IncFallback(stage)
	confidence := domain.Clamp01(n.cfg.FallbackConfidence)
	reasoning := reason
	if h.Reasoning != "" {
		reasoning = reason + "; " + h.Reasoning
	}
	return domain.ResolutionResult{
		Success:         true,
		CanonicalName:   h.Text,
		Brand:           h.Brand,
		Category:        h.Category,
		Subcategory:     h.Subcategory,
		Size:            h.Size,
		UnitType:        h.UnitType,
		Tags:            h.Tags,
		Confidence:      confidence,
		ConfidenceLevel: n.deps.Model.Level(confidence),
		Source:          domain.SourceHypothesisFallback,
		NeedsReview:     true,
		Flags:           domain.ResolutionFlags{Ambiguous: h.Fallback},
		Reasoning:       reasoning,
	}
}

func (n *Normalizer) finish(result domain.ResolutionResult) domain.ResolutionResult {
	n.deps.Recorder.IncResolution(result.Source)
	return result
}

func (n *Normalizer) timed(stage string, fn func()) {
	start := time.Now()
	fn()
	n.deps.Recorder.ObserveStage(stage, time.Since(start))
}

func productResult(p domain.NormalizedProduct, val Validation, source domain.Source) domain.ResolutionResult {
	id := p.ID
	return domain.ResolutionResult{
		Success:             true,
		NormalizedProductID: &id,
		CanonicalName:       p.CanonicalName,
		Brand:               p.Brand,
		Category:            p.Category,
		Subcategory:         p.Subcategory,
		Size:                p.Size,
		UnitType:            p.UnitType,
		Tags:                p.Tags,
		Confidence:          val.Confidence,
		ConfidenceLevel:     val.Level,
		Source:              source,
		NeedsReview:         val.NeedsReview,
		Flags:               val.Flags,
		Reasoning:           val.Reasoning,
	}
}

// errorResult is the uniform answer for unrecoverable inputs and failures
func errorResult(req domain.ResolveRequest, err error) domain.ResolutionResult {
	return domain.ResolutionResult{
		Success:         false,
		CanonicalName:   req.RawName,
		Confidence:      0,
		ConfidenceLevel: domain.ConfidenceLow,
		Source:          domain.SourceError,
		NeedsReview:     true,
		Error:           err.Error(),
	}
}

func flightKey(req domain.ResolveRequest) string {
	price := ""
	if req.Price != nil {
		price = strconv.FormatFloat(*req.Price, 'f', -1, 64)
	}
	return req.RawName + "\x00" + req.StoreName + "\x00" + price
}
