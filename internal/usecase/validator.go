package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/infrastructure/logging"
)

const fallbackValidationConfidence = 0.5

// Validation is the calibrated plausibility of a raw name to product mapping
type Validation struct {
	Confidence  float64
	Level       domain.ConfidenceLevel
	NeedsReview bool
	Flags       domain.ResolutionFlags
	Reasoning   string
	Fallback    bool
}

// Validator scores how plausible the selected product is for the raw line
type Validator struct {
	stage  llmStage
	model  ConfidenceModel
	logger *zap.Logger
}

// NewValidator creates a validator
func NewValidator(client domain.LLMClient, model ConfidenceModel, cfg StageConfig, logger *zap.Logger) *Validator {
	logger = logging.OrNop(logger)
	return &Validator{
		stage: llmStage{
			name:         schemaValidation,
			client:       client,
			systemPrompt: validateSystemPrompt,
			schema:       validationSchema,
			cfg:          cfg,
			logger:       logger,
		},
		model:  model,
		logger: logger,
	}
}

type validationResponse struct {
	ConfidenceScore *float64 `json:"confidence_score"`
	Reasoning       string   `json:"reasoning"`
	Flags           struct {
		BrandMismatch bool `json:"brand_mismatch"`
		SizeUncertain bool `json:"size_uncertain"`
		Ambiguous     bool `json:"ambiguous"`
	} `json:"flags"`
}

// Validate never fails. When the model cannot answer the mapping gets a
// neutral 0.5 and is sent to review.
func (v *Validator) Validate(ctx context.Context, rawName string, h domain.Hypothesis, product domain.NormalizedProduct) Validation {
	var resp validationResponse
	err := v.stage.call(ctx, buildValidatePrompt(rawName, h, product), &resp)
	if err == nil && resp.ConfidenceScore == nil {
		err = fmt.Errorf("%w: missing confidence_score", domain.ErrMalformedLLMResponse)
	}
	if err != nil {
		v.logger.Warn("validation failed, using neutral confidence",
			zap.String("raw_name", rawName),
			zap.String("product_id", product.ID),
			zap.Error(err))
		return Validation{
			Confidence:  fallbackValidationConfidence,
			Level:       v.model.Level(fallbackValidationConfidence),
			NeedsReview: true,
			Flags:       domain.ResolutionFlags{Ambiguous: true},
			Reasoning:   "fallback: " + err.Error(),
			Fallback:    true,
		}
	}

	confidence := domain.Clamp01(*resp.ConfidenceScore)
	return Validation{
		Confidence:  confidence,
		Level:       v.model.Level(confidence),
		NeedsReview: v.model.NeedsReview(confidence),
		Flags: domain.ResolutionFlags{
			BrandMismatch: resp.Flags.BrandMismatch,
			SizeUncertain: resp.Flags.SizeUncertain,
			Ambiguous:     resp.Flags.Ambiguous,
		},
		Reasoning: resp.Reasoning,
	}
}
