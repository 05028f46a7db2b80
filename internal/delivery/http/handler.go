package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scontrini/backend/internal/domain"
	"github.com/scontrini/backend/internal/infrastructure/logging"
	"github.com/scontrini/backend/internal/usecase"
)

const (
	serviceName = "scontrini-backend"
	version     = "1.0.0"

	// maxBatchItems bounds a single batch or receipt request
	maxBatchItems = 500
)

// Resolver is the normalization surface the handlers call
type Resolver interface {
	Resolve(ctx context.Context, req domain.ResolveRequest) domain.ResolutionResult
	ResolveBatch(ctx context.Context, reqs []domain.ResolveRequest, batchSize int) []domain.ResolutionResult
	ProcessReceipt(ctx context.Context, lines []domain.LineItem) []usecase.ItemResolution
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	resolver Resolver
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler. A nil resolver makes the
// normalization endpoints answer 503.
func NewHandler(resolver Resolver, logger *zap.Logger) *Handler {
	return &Handler{resolver: resolver, logger: logging.OrNop(logger)}
}

type normalizeRequest struct {
	RawName   string   `json:"raw_name"`
	StoreName string   `json:"store_name"`
	Price     *float64 `json:"price"`
}

func (r normalizeRequest) toDomain() domain.ResolveRequest {
	return domain.ResolveRequest{RawName: r.RawName, StoreName: r.StoreName, Price: r.Price}
}

type batchRequest struct {
	Items     []normalizeRequest `json:"items"`
	BatchSize int                `json:"batch_size"`
}

type receiptRequest struct {
	Items []domain.LineItem `json:"items"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": version,
	})
}

// NormalizeProduct resolves one raw receipt name. Unresolvable input still
// answers 200 with the uniform error result; only malformed JSON is a 400.
func (h *Handler) NormalizeProduct(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var req normalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	result := h.resolver.Resolve(c.Request.Context(), req.toDomain())
	c.JSON(http.StatusOK, result)
}

// NormalizeBatch resolves many raw names. Results follow the input order.
func (h *Handler) NormalizeBatch(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(req.Items) > maxBatchItems {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many items in batch"})
		return
	}
	if req.BatchSize < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch_size must not be negative"})
		return
	}

	reqs := make([]domain.ResolveRequest, len(req.Items))
	for i, item := range req.Items {
		reqs[i] = item.toDomain()
	}

	results := h.resolver.ResolveBatch(c.Request.Context(), reqs, req.BatchSize)
	h.logger.Info("batch normalized", zap.Int("items", len(results)))
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// NormalizeReceipt aggregates duplicate receipt lines and resolves each item
func (h *Handler) NormalizeReceipt(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var req receiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(req.Items) > maxBatchItems {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many receipt lines"})
		return
	}

	items := h.resolver.ProcessReceipt(c.Request.Context(), req.Items)
	if items == nil {
		items = []usecase.ItemResolution{}
	}
	c.JSON(http.StatusOK, gin.H{
		"lines": len(req.Items),
		"items": items,
	})
}

func (h *Handler) ready(c *gin.Context) bool {
	if h.resolver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Product normalizer not configured"})
		return false
	}
	return true
}
