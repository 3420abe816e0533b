package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/cache"
	"github.com/sellkit/listing-pipeline/internal/usage"
)

// UsageHandler exposes the in-memory usage monitor and cache administration.
// Usage numbers reset on restart; callers needing durable accounting should
// scrape the report endpoint.
type UsageHandler struct {
	monitor *usage.Monitor
	store   cache.Store
	logger  *zap.Logger
}

func NewUsageHandler(monitor *usage.Monitor, store cache.Store, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{monitor: monitor, store: store, logger: logger}
}

// Report returns today's and this month's aggregates for every provider.
// GET /api/v1/usage/report
func (h *UsageHandler) Report(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.monitor.Report()})
}

// Stats returns the current bucket for one provider.
// GET /api/v1/usage/stats?provider=serpapi&period=daily|monthly
func (h *UsageHandler) Stats(c *gin.Context) {
	providerName := c.Query("provider")
	if providerName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider is required"})
		return
	}
	period := c.DefaultQuery("period", "monthly")
	if period != "daily" && period != "monthly" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period must be daily or monthly"})
		return
	}

	stats := h.monitor.Stats(providerName, period)
	c.JSON(http.StatusOK, gin.H{
		"provider":       providerName,
		"period":         period,
		"total_calls":    stats.TotalCalls,
		"cached_calls":   stats.CachedCalls,
		"total_cost":     stats.TotalCost,
		"cache_hit_rate": stats.CacheHitRate(),
	})
}

// Recent returns the most recent raw records, newest first.
// GET /api/v1/usage/recent?limit=50
func (h *UsageHandler) Recent(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"records": h.monitor.Recent(limit)})
}

type cacheClearRequest struct {
	Prefix string `json:"prefix" binding:"required"`
}

// CacheClear deletes cache entries by key prefix, typically a provider name
// to invalidate one provider's results.
// POST /api/v1/usage/cache/clear
func (h *UsageHandler) CacheClear(c *gin.Context) {
	var req cacheClearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prefix is required"})
		return
	}

	deleted, err := h.store.DeletePrefix(c.Request.Context(), req.Prefix)
	if err != nil {
		h.logger.Error("cache clear failed", zap.String("prefix", req.Prefix), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache clear failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "prefix": req.Prefix})
}
