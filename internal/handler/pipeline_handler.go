package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/model"
	"github.com/sellkit/listing-pipeline/internal/pipeline"
)

// Processor is the slice of the pipeline the HTTP handlers need. Tests
// substitute a stub instead of wiring real providers.
type Processor interface {
	Process(ctx context.Context, imageURL string, opts pipeline.Options) *model.PipelineResult
	ProcessBatch(ctx context.Context, imageURLs []string, opts pipeline.Options) *model.BatchResult
}

// ImageGrouper partitions a set of photos into distinct products.
type ImageGrouper interface {
	GroupImages(ctx context.Context, imageURLs []string) ([]model.ProductGroup, error)
}

// PipelineHandler handles analysis requests.
type PipelineHandler struct {
	processor Processor
	grouper   ImageGrouper
	logger    *zap.Logger
}

// NewPipelineHandler creates the handler. grouper may be nil when no
// multimodal grouping backend is configured; the group endpoint then
// returns 503.
func NewPipelineHandler(processor Processor, grouper ImageGrouper, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{processor: processor, grouper: grouper, logger: logger}
}

type analyzeOptions struct {
	SkipStep1        bool   `json:"skip_step1"`
	SkipStep2        bool   `json:"skip_step2"`
	SkipStep3        bool   `json:"skip_step3"`
	SkipPricing      bool   `json:"skip_pricing"`
	LLMModel         string `json:"llm_model"`
	CategoryOverride string `json:"category_override"`
}

func (o analyzeOptions) toPipeline() pipeline.Options {
	return pipeline.Options{
		SkipStage1:       o.SkipStep1,
		SkipStage2:       o.SkipStep2,
		SkipStage3:       o.SkipStep3,
		SkipPricing:      o.SkipPricing,
		Backend:          o.LLMModel,
		CategoryOverride: o.CategoryOverride,
	}
}

type analyzeRequest struct {
	ImageURL string         `json:"image_url" binding:"required"`
	Options  analyzeOptions `json:"options"`
}

// Analyze runs the full pipeline for one image.
// POST /api/v1/pipeline/analyze
func (h *PipelineHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_url is required"})
		return
	}
	if !validImageURL(req.ImageURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_url must be an absolute http(s) URL"})
		return
	}

	result := h.processor.Process(c.Request.Context(), req.ImageURL, req.Options.toPipeline())
	if result.Status == model.StatusError {
		// The pipeline already isolated the failure; 422 tells the caller
		// the request was fine but the image could not be processed.
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

type batchRequest struct {
	ImageURLs []string       `json:"image_urls" binding:"required"`
	Options   analyzeOptions `json:"options"`
}

// AnalyzeBatch runs the pipeline over up to MaxBatchSize images.
// POST /api/v1/pipeline/analyze-batch
func (h *PipelineHandler) AnalyzeBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_urls is required"})
		return
	}
	if len(req.ImageURLs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_urls must not be empty"})
		return
	}
	if len(req.ImageURLs) > pipeline.MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "too many images",
			"max":   pipeline.MaxBatchSize,
		})
		return
	}
	for _, u := range req.ImageURLs {
		if !validImageURL(u) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "every image_url must be an absolute http(s) URL"})
			return
		}
	}

	batch := h.processor.ProcessBatch(c.Request.Context(), req.ImageURLs, req.Options.toPipeline())
	c.JSON(http.StatusOK, batch)
}

type groupRequest struct {
	ImageURLs []string `json:"image_urls" binding:"required"`
}

// Group partitions a photo dump into distinct products.
// POST /api/v1/pipeline/group
func (h *PipelineHandler) Group(c *gin.Context) {
	if h.grouper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no grouping backend configured"})
		return
	}

	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_urls is required"})
		return
	}
	if len(req.ImageURLs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_urls must not be empty"})
		return
	}
	if len(req.ImageURLs) > pipeline.MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "too many images",
			"max":   pipeline.MaxBatchSize,
		})
		return
	}

	groups, err := h.grouper.GroupImages(c.Request.Context(), req.ImageURLs)
	if err != nil {
		h.logger.Error("grouping failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "grouping backend failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_images": len(req.ImageURLs),
		"products":     groups,
	})
}

func validImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
