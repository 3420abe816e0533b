// Package handler contains HTTP request handlers.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sellkit/listing-pipeline/internal/provider"
	"github.com/sellkit/listing-pipeline/internal/textgen"
)

// HealthHandler reports service liveness and per-provider enablement, so a
// glance at the endpoint shows which API keys are actually configured.
type HealthHandler struct {
	vision  *provider.Registry[provider.VisionProvider]
	pricing *provider.Registry[provider.PricingProvider]
	textgen []textgen.Client
}

func NewHealthHandler(vision *provider.Registry[provider.VisionProvider], pricing *provider.Registry[provider.PricingProvider], clients []textgen.Client) *HealthHandler {
	return &HealthHandler{vision: vision, pricing: pricing, textgen: clients}
}

// Healthz responds with service status and the enablement map.
func (h *HealthHandler) Healthz(c *gin.Context) {
	visionStatus := make(map[string]bool)
	for _, p := range h.vision.All() {
		visionStatus[p.Name()] = p.Enabled()
	}
	pricingStatus := make(map[string]bool)
	for _, p := range h.pricing.All() {
		pricingStatus[p.Name()] = p.Enabled()
	}
	textgenStatus := make(map[string]bool)
	for _, t := range h.textgen {
		textgenStatus[t.ProviderName()] = t.Enabled()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "listing-pipeline",
		"providers": gin.H{
			"vision":  visionStatus,
			"pricing": pricingStatus,
			"textgen": textgenStatus,
		},
	})
}
