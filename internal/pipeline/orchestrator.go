package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/model"
)

// Options tune a single pipeline run. Zero value runs all three stages.
type Options struct {
	SkipStage1 bool
	SkipStage2 bool
	SkipStage3 bool

	// SkipPricing runs stage two but suppresses provider lookups, yielding
	// a zero-confidence pricing result. Cheaper than SkipStage2 semantics
	// when the caller still wants a pricing placeholder for stage three.
	SkipPricing bool

	// Backend names the generation backend to try first in stage three.
	Backend string

	// CategoryOverride forces the category instead of keyword classification.
	// Ignored when it is not a known category name.
	CategoryOverride string
}

// Pipeline chains the three stages. Each stage consumes the previous
// stage's output, so a skipped stage also skips everything downstream that
// depends on it.
type Pipeline struct {
	vision    *VisionStage
	pricing   *PricingStage
	synthesis *SynthesisStage
	logger    *zap.Logger
	now       func() time.Time
}

func New(vision *VisionStage, pricing *PricingStage, synthesis *SynthesisStage, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		vision:    vision,
		pricing:   pricing,
		synthesis: synthesis,
		logger:    logger,
		now:       time.Now,
	}
}

// Process runs the full chain for one image. It never returns an error:
// failures are encoded in the result status so batch callers can keep
// going without wrapping every call.
func (p *Pipeline) Process(ctx context.Context, imageURL string, opts Options) (result *model.PipelineResult) {
	start := p.now()
	result = &model.PipelineResult{
		ImageURL:    imageURL,
		ProcessedAt: start.UTC(),
		Status:      model.StatusSuccess,
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panicked",
				zap.String("image_url", imageURL),
				zap.Any("panic", r))
			result.Status = model.StatusError
			result.Error = fmt.Sprintf("internal error: %v", r)
			result.Step1, result.Step2, result.Step3 = nil, nil, nil
			result.FinalProduct = nil
		}
		result.TotalDurationMs = p.now().Sub(start).Milliseconds()
	}()

	if !opts.SkipStage1 {
		det, raw, err := p.vision.Run(ctx, imageURL, opts.CategoryOverride)
		if err != nil {
			result.Status = model.StatusError
			result.Error = err.Error()
			return result
		}
		result.Step1 = det
		p.logger.Debug("stage one complete",
			zap.String("image_url", imageURL),
			zap.Int("providers_invoked", len(raw)))
	}

	// Stages two and three need the detection, so skipping stage one
	// implicitly skips them too.
	if !opts.SkipStage2 && result.Step1 != nil {
		result.Step2 = p.pricing.Run(ctx, result.Step1, opts.SkipPricing)
	}

	if !opts.SkipStage3 && result.Step1 != nil && result.Step2 != nil {
		result.Step3 = p.synthesis.Run(ctx, result.Step1, result.Step2, opts.Backend)
	}

	if result.Step1 != nil && result.Step2 != nil && result.Step3 != nil {
		result.FinalProduct = assembleFinal(result.Step1, result.Step2, result.Step3)
	}
	return result
}

// assembleFinal combines the three stage results. Overall confidence is the
// mean of the stage confidences.
func assembleFinal(det *model.UnifiedDetection, pricing *model.UnifiedPricing, content *model.GeneratedContent) *model.FinalProduct {
	confidence := (det.Confidence + pricing.PriceConfidence + content.Confidence) / 3
	return &model.FinalProduct{
		Content:    *content,
		Detection:  *det,
		Pricing:    *pricing,
		Confidence: clamp01(confidence),
	}
}
