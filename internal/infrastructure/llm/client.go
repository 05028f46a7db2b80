// Package llm talks to an OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/infrastructure/logging"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1/chat/completions"
	defaultModel       = "gpt-4o-mini"
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 1 << 20
)

// Config captures the runtime settings required to talk to the LLM
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client issues single chat completion calls. It never retries on its own;
// callers wrap it with a retry policy using IsRetryable and RetryAfter.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

// Option customizes the client
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the client logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrNop(logger)
	}
}

// NewClient creates a new LLM client
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: rate.NewLimiter(limit, burst),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx response from the completion endpoint
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Is makes a 429 match domain.ErrRateLimited
func (e *StatusError) Is(target error) bool {
	return target == domain.ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatCompletionMessage `json:"message"`
		Text         string                `json:"text"`
		FinishReason string                `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatCompletionMessage struct {
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls"`
	Refusal   string     `json:"refusal"`
}

type toolCall struct {
	Function struct {
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// Complete sends one chat completion and returns the raw message content
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	systemPrompt := strings.TrimSpace(req.SystemPrompt)
	userPrompt := strings.TrimSpace(req.UserPrompt)
	if userPrompt == "" {
		return "", fmt.Errorf("%w: user prompt required", domain.ErrInvalidRequest)
	}

	payload := chatCompletionRequest{
		Model:          c.cfg.Model,
		Temperature:    req.Temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	if systemPrompt != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: userPrompt})
	if req.Schema != nil {
		payload.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchema{
				Name:   req.Schema.Name,
				Schema: req.Schema.Schema,
				Strict: false,
			},
		}
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}

	start := time.Now()
	completion, err := c.send(ctx, payload)
	if err != nil {
		c.logger.Warn("llm request failed",
			zap.String("model", c.cfg.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", err
	}

	content := extractContent(completion)
	if content == "" {
		return "", fmt.Errorf("%w: empty completion content", domain.ErrMalformedLLMResponse)
	}

	c.logger.Debug("llm request completed",
		zap.String("model", c.cfg.Model),
		zap.String("schema", schemaName(req.Schema)),
		zap.Duration("elapsed", time.Since(start)))
	return content, nil
}

func (c *Client) send(ctx context.Context, payload chatCompletionRequest) (chatCompletionResponse, error) {
	var completion chatCompletionResponse

	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, fmt.Errorf("llm request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return completion, fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Scontrini/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion, fmt.Errorf("%w: %w", domain.ErrLLMFailure, err)
	}
	defer resp.Body.Close()

	body, err := readLimitedBody(resp.Body, maxResponseBytes)
	if err != nil {
		return completion, fmt.Errorf("%w: read body: %w", domain.ErrLLMFailure, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return completion, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, fmt.Errorf("%w: decode response: %v", domain.ErrMalformedLLMResponse, err)
	}
	if completion.Error != nil {
		return completion, fmt.Errorf("%w: api error: %s", domain.ErrLLMFailure, strings.TrimSpace(completion.Error.Message))
	}
	return completion, nil
}

// readLimitedBody reads at most limit bytes from r
func readLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

func extractContent(completion chatCompletionResponse) string {
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content
		}
		if text := strings.TrimSpace(choice.Text); text != "" {
			return text
		}
		for _, call := range choice.Message.ToolCalls {
			if args := strings.TrimSpace(call.Function.Arguments); args != "" {
				return args
			}
		}
	}
	return ""
}

func schemaName(s *domain.ResponseSchema) string {
	if s == nil {
		return ""
	}
	return s.Name
}

// IsRetryable reports whether a Complete error is transient: request
// timeout, rate limiting, server errors and network timeouts. A context
// deadline counts as a timeout; the retry loop still stops once the
// caller's own context is done.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}

// RetryAfter returns the server-suggested delay carried by a status error
func RetryAfter(err error) (time.Duration, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return statusErr.RetryAfter, true
	}
	return 0, false
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
