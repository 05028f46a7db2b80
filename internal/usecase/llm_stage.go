package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/infrastructure/llm"
	"github.com/scontrini/backend/internal/retry"
)

// StageConfig bounds one LLM stage call
type StageConfig struct {
	Temperature float64
	// Timeout applies to each attempt, not to the whole retried call
	Timeout time.Duration
	Retry   retry.Policy
}

// llmStage performs one structured LLM round-trip with bounded retries and
// tolerant JSON decoding
type llmStage struct {
	name         string
	client       domain.LLMClient
	systemPrompt string
	schema       *domain.ResponseSchema
	cfg          StageConfig
	logger       *zap.Logger
}

// call sends the prompt and decodes the response into target.
// Transport failures wrap domain.ErrLLMFailure; unusable payloads wrap
// domain.ErrMalformedLLMResponse and are never retried.
func (s *llmStage) call(ctx context.Context, userPrompt string, target any) error {
	if s.client == nil {
		return fmt.Errorf("%w: %s: no llm client configured", domain.ErrLLMFailure, s.name)
	}

	req := domain.CompletionRequest{
		SystemPrompt: s.systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  s.cfg.Temperature,
		Schema:       s.schema,
	}

	start := time.Now()
	content, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) (string, error) {
		cctx, cancel := withOptionalTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		return s.client.Complete(cctx, req)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrLLMFailure, s.name, err)
	}

	if err := llm.DecodeJSON(content, target); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}

	s.logger.Debug("llm stage completed",
		zap.String("stage", s.name),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
