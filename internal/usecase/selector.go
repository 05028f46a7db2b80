package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/infrastructure/logging"
)

// SelectorConfig configures the selection stage
type SelectorConfig struct {
	Stage         StageConfig
	MaxCandidates int
}

// Selection is the candidate picked for a hypothesis
type Selection struct {
	Candidate domain.Candidate
	Index     int
	Reasoning string
	// Fallback is set when the reranker's top pick was used because the
	// model could not choose
	Fallback bool
}

// Selector asks the model to choose the best of the top reranked candidates
type Selector struct {
	stage  llmStage
	cfg    SelectorConfig
	logger *zap.Logger
}

// NewSelector creates a selector
func NewSelector(client domain.LLMClient, cfg SelectorConfig, logger *zap.Logger) *Selector {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 5
	}
	logger = logging.OrNop(logger)
	return &Selector{
		stage: llmStage{
			name:         schemaSelection,
			client:       client,
			systemPrompt: selectSystemPrompt,
			schema:       selectionSchema,
			cfg:          cfg.Stage,
			logger:       logger,
		},
		cfg:    cfg,
		logger: logger,
	}
}

type selectionResponse struct {
	SelectedIndex *int   `json:"selected_index"`
	Reasoning     string `json:"reasoning"`
}

// Select returns one of the first MaxCandidates candidates. Model failures and
// out-of-range answers resolve to candidates[0]. It errors only when there is
// nothing to choose from.
func (s *Selector) Select(ctx context.Context, rawName string, h domain.Hypothesis, candidates []domain.Candidate) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, fmt.Errorf("%w: no candidates to select from", domain.ErrInvalidRequest)
	}
	top := candidates
	if len(top) > s.cfg.MaxCandidates {
		top = top[:s.cfg.MaxCandidates]
	}

	var resp selectionResponse
	if err := s.stage.call(ctx, buildSelectPrompt(rawName, h, top), &resp); err != nil {
		s.logger.Warn("selection failed, using top candidate",
			zap.String("raw_name", rawName),
			zap.Error(err))
		return fallbackSelection(top, "fallback: "+err.Error()), nil
	}

	if resp.SelectedIndex == nil || *resp.SelectedIndex < 0 || *resp.SelectedIndex >= len(top) {
		got := "missing"
		if resp.SelectedIndex != nil {
			got = fmt.Sprint(*resp.SelectedIndex)
		}
		s.logger.Warn("selection index out of range, using top candidate",
			zap.String("raw_name", rawName),
			zap.String("index", got),
			zap.Int("candidates", len(top)))
		return fallbackSelection(top, fmt.Sprintf("fallback: indice %s non valido", got)), nil
	}

	idx := *resp.SelectedIndex
	return Selection{
		Candidate: top[idx],
		Index:     idx,
		Reasoning: resp.Reasoning,
	}, nil
}

func fallbackSelection(candidates []domain.Candidate, reasoning string) Selection {
	return Selection{
		Candidate: candidates[0],
		Index:     0,
		Reasoning: reasoning,
		Fallback:  true,
	}
}
