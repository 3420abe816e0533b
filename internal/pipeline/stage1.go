package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/model"
	"github.com/sellkit/listing-pipeline/internal/provider"
)

// ErrNoVisionProviders means the enabled set was empty before any call was
// attempted, usually a configuration problem rather than an outage.
var ErrNoVisionProviders = errors.New("no vision providers enabled")

// OCR fragments shorter than this are noise (single characters, stray
// punctuation picked up from textures).
const minTextFragmentLen = 3

// VisionStage runs visual identification against the provider registry in
// priority order. The first provider that returns a usable result wins;
// if every provider fails the stage fails hard, because nothing downstream
// can work without knowing what the item is.
type VisionStage struct {
	registry *provider.Registry[provider.VisionProvider]
	logger   *zap.Logger
}

func NewVisionStage(registry *provider.Registry[provider.VisionProvider], logger *zap.Logger) *VisionStage {
	return &VisionStage{registry: registry, logger: logger}
}

// Run analyzes the image and unifies the winning provider's output into the
// provider-independent detection shape. The raw-result map holds the
// untranslated provider responses for diagnostics.
func (s *VisionStage) Run(ctx context.Context, imageURL, categoryOverride string) (*model.UnifiedDetection, map[string]*provider.VisionResult, error) {
	providers := s.registry.Enabled()
	if len(providers) == 0 {
		return nil, nil, ErrNoVisionProviders
	}

	raw := make(map[string]*provider.VisionResult)
	var errs []string
	for _, p := range providers {
		result, err := p.AnalyzeImage(ctx, imageURL)
		if err != nil {
			s.logger.Warn("vision provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s: %v", p.Name(), err))
			continue
		}
		raw[p.Name()] = result
		det := unifyDetection(result, categoryOverride)
		s.logger.Debug("vision stage complete",
			zap.String("provider", p.Name()),
			zap.String("primary_object", det.PrimaryObject),
			zap.Float64("confidence", det.Confidence))
		return det, raw, nil
	}
	return nil, nil, fmt.Errorf("all vision providers failed: %s", strings.Join(errs, "; "))
}

// unifyDetection translates one provider's result into the unified shape.
// Primary object preference: web entities beat localized objects beat
// labels, because web detection carries the most product-specific signal.
func unifyDetection(result *provider.VisionResult, categoryOverride string) *model.UnifiedDetection {
	det := &model.UnifiedDetection{
		DetectedText: filterTextLines(result.TextLines),
		WebEntities:  result.WebEntities,
	}

	entities := append([]model.WebEntity(nil), result.WebEntities...)
	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Score > entities[j].Score })

	switch {
	case len(entities) > 0 && entities[0].Description != "":
		det.PrimaryObject = entities[0].Description
	case len(result.Objects) > 0:
		det.PrimaryObject = bestLabel(result.Objects).Name
	case len(result.Labels) > 0:
		det.PrimaryObject = bestLabel(result.Labels).Name
	}

	det.VisualTags = mergeTags(result.Objects, result.Labels)
	det.Confidence = signalConfidence(result, entities)

	if model.ValidCategory(categoryOverride) {
		det.Category = model.Category(categoryOverride)
	} else {
		det.Category = model.ClassifyCategory(det.PrimaryObject, det.VisualTags)
	}
	return det
}

func bestLabel(labels []provider.Label) provider.Label {
	best := labels[0]
	for _, l := range labels[1:] {
		if l.Score > best.Score {
			best = l
		}
	}
	return best
}

// mergeTags combines object and label names, deduplicated case-insensitively
// and sorted by descending score. Objects come first in the input so they
// win ties against generic labels.
func mergeTags(objects, labels []provider.Label) []string {
	merged := make([]provider.Label, 0, len(objects)+len(labels))
	merged = append(merged, objects...)
	merged = append(merged, labels...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })

	seen := make(map[string]bool, len(merged))
	tags := make([]string, 0, len(merged))
	for _, l := range merged {
		key := strings.ToLower(strings.TrimSpace(l.Name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, l.Name)
	}
	return tags
}

func filterTextLines(lines []string) []string {
	seen := make(map[string]bool, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < minTextFragmentLen || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	return out
}

// signalConfidence is the mean of every per-signal score the provider
// returned, each clamped to [0,1] first since web entity scores are not
// normalized on all providers.
func signalConfidence(result *provider.VisionResult, entities []model.WebEntity) float64 {
	var sum float64
	var n int
	for _, l := range result.Labels {
		sum += clamp01(l.Score)
		n++
	}
	for _, o := range result.Objects {
		sum += clamp01(o.Score)
		n++
	}
	for _, e := range entities {
		sum += clamp01(e.Score)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
