package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/model"
	"github.com/sellkit/listing-pipeline/internal/provider"
)

type fakeVision struct {
	name     string
	priority int
	enabled  bool
	result   *provider.VisionResult
	err      error
	calls    int
}

func (f *fakeVision) Name() string         { return f.name }
func (f *fakeVision) Priority() int        { return f.priority }
func (f *fakeVision) Enabled() bool        { return f.enabled }
func (f *fakeVision) CostPerCall() float64 { return 0.01 }

func (f *fakeVision) AnalyzeImage(context.Context, string) (*provider.VisionResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func headphonesResult(providerName string) *provider.VisionResult {
	return &provider.VisionResult{
		Provider: providerName,
		Labels: []provider.Label{
			{Name: "Electronics", Score: 0.95},
			{Name: "Audio equipment", Score: 0.9},
		},
		Objects: []provider.Label{
			{Name: "Headphones", Score: 0.92},
		},
		TextLines: []string{"SONY", "WH-1000XM4", "a"},
		WebEntities: []model.WebEntity{
			{Description: "Sony WH-1000XM4", Score: 1.2},
			{Description: "Noise-cancelling headphones", Score: 0.8},
		},
	}
}

func TestVisionStageFirstProviderWins(t *testing.T) {
	first := &fakeVision{name: "googlevision", priority: 1, enabled: true, result: headphonesResult("googlevision")}
	second := &fakeVision{name: "gemini", priority: 2, enabled: true, result: headphonesResult("gemini")}

	registry := provider.NewRegistry[provider.VisionProvider]()
	registry.Register(second)
	registry.Register(first)

	stage := NewVisionStage(registry, zap.NewNop())
	det, raw, err := stage.Run(context.Background(), "https://img.test/a.jpg", "")
	require.NoError(t, err)

	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls, "fallback provider must not be called when first succeeds")
	assert.Contains(t, raw, "googlevision")
	assert.NotContains(t, raw, "gemini")
	assert.Equal(t, "Sony WH-1000XM4", det.PrimaryObject)
}

func TestVisionStageFallsBackOnFailure(t *testing.T) {
	first := &fakeVision{name: "googlevision", priority: 1, enabled: true, err: errors.New("quota exceeded")}
	second := &fakeVision{name: "gemini", priority: 2, enabled: true, result: headphonesResult("gemini")}

	registry := provider.NewRegistry[provider.VisionProvider]()
	registry.Register(first)
	registry.Register(second)

	stage := NewVisionStage(registry, zap.NewNop())
	det, _, err := stage.Run(context.Background(), "https://img.test/a.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, "Sony WH-1000XM4", det.PrimaryObject)
}

func TestVisionStageAllFail(t *testing.T) {
	registry := provider.NewRegistry[provider.VisionProvider]()
	registry.Register(&fakeVision{name: "googlevision", priority: 1, enabled: true, err: errors.New("boom")})
	registry.Register(&fakeVision{name: "gemini", priority: 2, enabled: true, err: errors.New("also boom")})

	stage := NewVisionStage(registry, zap.NewNop())
	_, _, err := stage.Run(context.Background(), "https://img.test/a.jpg", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all vision providers failed")
	assert.Contains(t, err.Error(), "googlevision")
	assert.Contains(t, err.Error(), "gemini")
}

func TestVisionStageNoProviders(t *testing.T) {
	registry := provider.NewRegistry[provider.VisionProvider]()
	registry.Register(&fakeVision{name: "gemini", priority: 2, enabled: false})

	stage := NewVisionStage(registry, zap.NewNop())
	_, _, err := stage.Run(context.Background(), "https://img.test/a.jpg", "")
	assert.ErrorIs(t, err, ErrNoVisionProviders)
}

func TestUnifyDetectionSignalPreference(t *testing.T) {
	// Web entities beat objects beat labels.
	det := unifyDetection(headphonesResult("x"), "")
	assert.Equal(t, "Sony WH-1000XM4", det.PrimaryObject)

	noEntities := headphonesResult("x")
	noEntities.WebEntities = nil
	det = unifyDetection(noEntities, "")
	assert.Equal(t, "Headphones", det.PrimaryObject)

	labelsOnly := headphonesResult("x")
	labelsOnly.WebEntities = nil
	labelsOnly.Objects = nil
	det = unifyDetection(labelsOnly, "")
	assert.Equal(t, "Electronics", det.PrimaryObject)
}

func TestUnifyDetectionTags(t *testing.T) {
	result := &provider.VisionResult{
		Objects: []provider.Label{{Name: "Headphones", Score: 0.9}},
		Labels: []provider.Label{
			{Name: "headphones", Score: 0.7}, // case-insensitive duplicate
			{Name: "Electronics", Score: 0.95},
			{Name: "  ", Score: 0.5},
		},
	}
	det := unifyDetection(result, "")
	assert.Equal(t, []string{"Electronics", "Headphones"}, det.VisualTags)
}

func TestUnifyDetectionTextFilter(t *testing.T) {
	result := &provider.VisionResult{
		Labels:    []provider.Label{{Name: "Box", Score: 0.5}},
		TextLines: []string{"SONY", "a", "  ", "SONY", "XM4"},
	}
	det := unifyDetection(result, "")
	assert.Equal(t, []string{"SONY", "XM4"}, det.DetectedText)
}

func TestUnifyDetectionConfidenceMean(t *testing.T) {
	result := &provider.VisionResult{
		Labels:  []provider.Label{{Name: "a", Score: 0.8}},
		Objects: []provider.Label{{Name: "b", Score: 0.6}},
		WebEntities: []model.WebEntity{
			{Description: "c", Score: 1.5}, // clamped to 1.0
		},
	}
	det := unifyDetection(result, "")
	assert.InDelta(t, (0.8+0.6+1.0)/3, det.Confidence, 1e-9)
}

func TestUnifyDetectionCategoryOverride(t *testing.T) {
	det := unifyDetection(headphonesResult("x"), string(model.CategoryCollectible))
	assert.Equal(t, model.CategoryCollectible, det.Category)

	det = unifyDetection(headphonesResult("x"), "Not A Category")
	assert.Equal(t, model.CategoryElectronics, det.Category)
}
