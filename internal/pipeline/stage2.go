package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/cache"
	"github.com/sellkit/listing-pipeline/internal/model"
	"github.com/sellkit/listing-pipeline/internal/pricing"
	"github.com/sellkit/listing-pipeline/internal/provider"
)

// Confidence bookkeeping for provider-backed pricing. A provider hit starts
// at the base; each price the provider actually supplied adds an increment,
// so both prices present reads stronger than one price plus a derivation.
const (
	pricingBaseConfidence = 0.5
	pricingPriceIncrement = 0.2
)

// IdentifierLookup is the optional fast path a caching pricing provider can
// offer: results of previous lookups keyed by external product identifier.
type IdentifierLookup interface {
	ByIdentifier(ctx context.Context, id string) (*provider.PricingResult, bool)
}

// PricingStage enriches a detection with market pricing. Unlike the vision
// stage it never fails: when every provider comes up empty it falls back to
// the category heuristic table, and when skipped it returns an explicit
// zero-confidence result so stage three still has a value to work with.
type PricingStage struct {
	registry *provider.Registry[provider.PricingProvider]
	recorder cache.Recorder
	logger   *zap.Logger
}

// NewPricingStage creates the stage. recorder may be nil; it receives a
// cached record for identifier fast-path hits, which bypass the decorators.
func NewPricingStage(registry *provider.Registry[provider.PricingProvider], recorder cache.Recorder, logger *zap.Logger) *PricingStage {
	if recorder == nil {
		recorder = cache.NopRecorder()
	}
	return &PricingStage{registry: registry, recorder: recorder, logger: logger}
}

func (s *PricingStage) Run(ctx context.Context, det *model.UnifiedDetection, skip bool) *model.UnifiedPricing {
	if skip {
		return &model.UnifiedPricing{
			ProductIdentifiers: map[string]string{},
			Source:             "skipped",
		}
	}

	query := provider.PriceQuery{
		Query:      det.PrimaryObject,
		Category:   det.Category,
		Identifier: extractIdentifier(det.DetectedText),
	}

	// A barcode in the photo is the strongest pricing signal there is:
	// check the identifier caches before spending any provider calls.
	if query.Identifier != "" {
		for _, p := range s.registry.Enabled() {
			if il, ok := p.(IdentifierLookup); ok {
				if result, hit := il.ByIdentifier(ctx, query.Identifier); hit {
					s.recorder.Record(p.Name(), "pricing.lookup", true, 0)
					s.logger.Debug("pricing served from identifier cache",
						zap.String("identifier", query.Identifier))
					return unifyPricing(result)
				}
			}
		}
	}

	for _, p := range s.registry.Enabled() {
		result, err := p.LookupPrice(ctx, query)
		if err != nil {
			s.logger.Warn("pricing provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err))
			continue
		}
		return unifyPricing(result)
	}

	s.logger.Warn("all pricing providers failed, using category heuristic",
		zap.String("category", string(det.Category)))
	return pricing.Heuristic(det.Category)
}

// unifyPricing fills whichever price the provider omitted from the one it
// supplied and scores confidence by how much came straight from the source.
func unifyPricing(result *provider.PricingResult) *model.UnifiedPricing {
	unified := &model.UnifiedPricing{
		RetailPrice:        result.RetailPrice,
		UsedPriceEstimate:  result.UsedPrice,
		ProductIdentifiers: result.Identifiers,
		ProductDescription: result.Description,
		ProductSpecs:       result.Specifications,
		Source:             result.Provider,
	}
	if unified.ProductIdentifiers == nil {
		unified.ProductIdentifiers = map[string]string{}
	}

	confidence := pricingBaseConfidence
	if result.RetailPrice != nil {
		confidence += pricingPriceIncrement
	}
	if result.UsedPrice != nil {
		confidence += pricingPriceIncrement
	}

	switch {
	case unified.RetailPrice != nil && unified.UsedPriceEstimate == nil:
		used := pricing.DeriveUsed(*unified.RetailPrice)
		unified.UsedPriceEstimate = &used
	case unified.UsedPriceEstimate != nil && unified.RetailPrice == nil:
		retail := pricing.DeriveRetail(*unified.UsedPriceEstimate)
		unified.RetailPrice = &retail
	}

	unified.PriceConfidence = clamp01(confidence)
	return unified
}

// extractIdentifier pulls the first UPC/EAN-looking token out of the OCR
// lines: 12 to 14 consecutive digits, the lengths of UPC-A, EAN-13, and
// ITF-14 barcodes.
func extractIdentifier(textLines []string) string {
	for _, line := range textLines {
		for _, field := range strings.Fields(line) {
			if len(field) < 12 || len(field) > 14 {
				continue
			}
			digits := true
			for i := 0; i < len(field); i++ {
				if field[i] < '0' || field[i] > '9' {
					digits = false
					break
				}
			}
			if digits {
				return field
			}
		}
	}
	return ""
}
