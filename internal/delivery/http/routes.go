package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scontrini/backend/config"
)

// SetupRouter creates and configures the Gin router. A nil metrics handler
// leaves /metrics unregistered.
func SetupRouter(cfg *config.Config, handler *Handler, logger *zap.Logger, metrics http.Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		products := v1.Group("/products")
		{
			products.POST("/normalize", handler.NormalizeProduct)
			products.POST("/normalize/batch", handler.NormalizeBatch)
		}

		receipts := v1.Group("/receipts")
		{
			receipts.POST("/normalize", handler.NormalizeReceipt)
		}
	}

	return router
}
