// Package server configures the HTTP server and routes.
package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/cache"
	"github.com/sellkit/listing-pipeline/internal/config"
	"github.com/sellkit/listing-pipeline/internal/handler"
	"github.com/sellkit/listing-pipeline/internal/middleware"
	"github.com/sellkit/listing-pipeline/internal/provider"
	"github.com/sellkit/listing-pipeline/internal/textgen"
	"github.com/sellkit/listing-pipeline/internal/usage"
)

// Deps carries everything the handlers need. Dependencies are passed
// explicitly; each handler gets exactly what it uses.
type Deps struct {
	Processor      handler.Processor
	Grouper        handler.ImageGrouper
	VisionRegistry *provider.Registry[provider.VisionProvider]
	PriceRegistry  *provider.Registry[provider.PricingProvider]
	TextGenClients []textgen.Client
	Monitor        *usage.Monitor
	CacheStore     cache.Store
}

// RegisterRoutes sets up all HTTP routes on the Gin engine.
func RegisterRoutes(r *gin.Engine, cfg *config.Config, deps Deps, logger *zap.Logger) {
	healthHandler := handler.NewHealthHandler(deps.VisionRegistry, deps.PriceRegistry, deps.TextGenClients)
	pipelineHandler := handler.NewPipelineHandler(deps.Processor, deps.Grouper, logger)
	usageHandler := handler.NewUsageHandler(deps.Monitor, deps.CacheStore, logger)

	// Public endpoints (no auth).
	r.GET("/pipeline/health", healthHandler.Healthz)

	api := r.Group("/api/v1")
	api.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	authed := api.Group("")
	authed.Use(middleware.APIKeyAuth(cfg.Auth.APIKeys))
	authed.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	{
		authed.POST("/pipeline/analyze", pipelineHandler.Analyze)
		authed.POST("/pipeline/analyze-batch", pipelineHandler.AnalyzeBatch)
		authed.POST("/pipeline/group", pipelineHandler.Group)

		authed.GET("/usage/report", usageHandler.Report)
		authed.GET("/usage/stats", usageHandler.Stats)
		authed.GET("/usage/recent", usageHandler.Recent)
		authed.POST("/usage/cache/clear", usageHandler.CacheClear)
	}
}
