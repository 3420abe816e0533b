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

type fakePricing struct {
	name     string
	priority int
	enabled  bool
	result   *provider.PricingResult
	err      error
	calls    int
	lastQ    provider.PriceQuery
}

func (f *fakePricing) Name() string         { return f.name }
func (f *fakePricing) Priority() int        { return f.priority }
func (f *fakePricing) Enabled() bool        { return f.enabled }
func (f *fakePricing) CostPerCall() float64 { return 0.005 }

func (f *fakePricing) LookupPrice(_ context.Context, q provider.PriceQuery) (*provider.PricingResult, error) {
	f.calls++
	f.lastQ = q
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func ptr(v float64) *float64 { return &v }

func headphonesDetection() *model.UnifiedDetection {
	return &model.UnifiedDetection{
		PrimaryObject: "Sony WH-1000XM4",
		Category:      model.CategoryElectronics,
		VisualTags:    []string{"headphones", "electronics"},
		Confidence:    0.9,
	}
}

func TestPricingStageProviderHit(t *testing.T) {
	p := &fakePricing{
		name: "serpapi", priority: 1, enabled: true,
		result: &provider.PricingResult{
			Provider:    "serpapi",
			RetailPrice: ptr(348),
			UsedPrice:   ptr(210),
			Identifiers: map[string]string{"upc": "027242920507"},
		},
	}
	registry := provider.NewRegistry[provider.PricingProvider]()
	registry.Register(p)

	stage := NewPricingStage(registry, nil, zap.NewNop())
	got := stage.Run(context.Background(), headphonesDetection(), false)

	require.NotNil(t, got.RetailPrice)
	assert.Equal(t, 348.0, *got.RetailPrice)
	assert.Equal(t, 210.0, *got.UsedPriceEstimate)
	assert.InDelta(t, 0.9, got.PriceConfidence, 1e-9)
	assert.Equal(t, "serpapi", got.Source)
	assert.Equal(t, "Sony WH-1000XM4", p.lastQ.Query)
	assert.Equal(t, model.CategoryElectronics, p.lastQ.Category)
}

func TestPricingStageDerivesUsedFromRetail(t *testing.T) {
	p := &fakePricing{
		name: "serpapi", priority: 1, enabled: true,
		result: &provider.PricingResult{Provider: "serpapi", RetailPrice: ptr(100)},
	}
	registry := provider.NewRegistry[provider.PricingProvider]()
	registry.Register(p)

	got := NewPricingStage(registry, nil, zap.NewNop()).Run(context.Background(), headphonesDetection(), false)
	require.NotNil(t, got.UsedPriceEstimate)
	assert.InDelta(t, 60.0, *got.UsedPriceEstimate, 1e-9)
	assert.InDelta(t, 0.7, got.PriceConfidence, 1e-9)
}

func TestPricingStageDerivesRetailFromUsed(t *testing.T) {
	p := &fakePricing{
		name: "upcitemdb", priority: 1, enabled: true,
		result: &provider.PricingResult{Provider: "upcitemdb", UsedPrice: ptr(60)},
	}
	registry := provider.NewRegistry[provider.PricingProvider]()
	registry.Register(p)

	got := NewPricingStage(registry, nil, zap.NewNop()).Run(context.Background(), headphonesDetection(), false)
	require.NotNil(t, got.RetailPrice)
	assert.InDelta(t, 90.0, *got.RetailPrice, 1e-9)
	assert.InDelta(t, 0.7, got.PriceConfidence, 1e-9)
}

func TestPricingStageFallsBackToNext(t *testing.T) {
	first := &fakePricing{name: "serpapi", priority: 1, enabled: true, err: errors.New("rate limited")}
	second := &fakePricing{
		name: "upcitemdb", priority: 2, enabled: true,
		result: &provider.PricingResult{Provider: "upcitemdb", RetailPrice: ptr(300)},
	}
	registry := provider.NewRegistry[provider.PricingProvider]()
	registry.Register(first)
	registry.Register(second)

	got := NewPricingStage(registry, nil, zap.NewNop()).Run(context.Background(), headphonesDetection(), false)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, "upcitemdb", got.Source)
}

func TestPricingStageHeuristicFallback(t *testing.T) {
	registry := provider.NewRegistry[provider.PricingProvider]()
	registry.Register(&fakePricing{name: "serpapi", priority: 1, enabled: true, err: errors.New("down")})

	got := NewPricingStage(registry, nil, zap.NewNop()).Run(context.Background(), headphonesDetection(), false)
	assert.Equal(t, "heuristic", got.Source)
	require.NotNil(t, got.RetailPrice)
	assert.InDelta(t, 375.0, *got.RetailPrice, 1e-9)
	assert.InDelta(t, 225.0, *got.UsedPriceEstimate, 1e-9)
	assert.InDelta(t, 0.2, got.PriceConfidence, 1e-9)
}

func TestPricingStageNoProvidersUsesHeuristic(t *testing.T) {
	registry := provider.NewRegistry[provider.PricingProvider]()
	got := NewPricingStage(registry, nil, zap.NewNop()).Run(context.Background(), headphonesDetection(), false)
	assert.Equal(t, "heuristic", got.Source)
}

type identifierPricing struct {
	fakePricing
	byID map[string]*provider.PricingResult
}

func (f *identifierPricing) ByIdentifier(_ context.Context, id string) (*provider.PricingResult, bool) {
	r, ok := f.byID[id]
	return r, ok
}

func TestPricingStageIdentifierCacheHit(t *testing.T) {
	cached := &provider.PricingResult{Provider: "upcitemdb", RetailPrice: ptr(348)}
	p := &identifierPricing{
		fakePricing: fakePricing{name: "upcitemdb", priority: 1, enabled: true,
			result: &provider.PricingResult{Provider: "upcitemdb", RetailPrice: ptr(999)}},
		byID: map[string]*provider.PricingResult{"027242920507": cached},
	}
	registry := provider.NewRegistry[provider.PricingProvider]()
	registry.Register(p)

	det := headphonesDetection()
	det.DetectedText = []string{"SONY", "027242920507"}

	recorder := &countingRecorder{}
	got := NewPricingStage(registry, recorder, zap.NewNop()).Run(context.Background(), det, false)
	assert.Equal(t, 0, p.calls, "identifier cache hit must not invoke the provider")
	assert.InDelta(t, 348.0, *got.RetailPrice, 1e-9)

	// The hit still counts toward usage, as a free cached call.
	require.Len(t, recorder.records, 1)
	assert.Equal(t, "upcitemdb/pricing.lookup", recorder.records[0])
	assert.True(t, recorder.cached[0])
	assert.Zero(t, recorder.costs[0])
}

func TestPricingStageForwardsIdentifier(t *testing.T) {
	p := &fakePricing{name: "upcitemdb", priority: 1, enabled: true,
		result: &provider.PricingResult{Provider: "upcitemdb", RetailPrice: ptr(100)}}
	registry := provider.NewRegistry[provider.PricingProvider]()
	registry.Register(p)

	det := headphonesDetection()
	det.DetectedText = []string{"Model WH-1000XM4", "027242920507"}

	NewPricingStage(registry, nil, zap.NewNop()).Run(context.Background(), det, false)
	assert.Equal(t, "027242920507", p.lastQ.Identifier)
}

func TestExtractIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{"upc-a", []string{"SONY", "027242920507"}, "027242920507"},
		{"ean-13", []string{"4905524963052 made in japan"}, "4905524963052"},
		{"too short", []string{"12345678901"}, ""},
		{"too long", []string{"123456789012345"}, ""},
		{"not digits", []string{"WH-1000XM4-BLK"}, ""},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractIdentifier(tt.lines))
		})
	}
}

func TestPricingStageSkip(t *testing.T) {
	p := &fakePricing{name: "serpapi", priority: 1, enabled: true,
		result: &provider.PricingResult{Provider: "serpapi", RetailPrice: ptr(100)}}
	registry := provider.NewRegistry[provider.PricingProvider]()
	registry.Register(p)

	got := NewPricingStage(registry, nil, zap.NewNop()).Run(context.Background(), headphonesDetection(), true)
	assert.Equal(t, 0, p.calls, "skip must not invoke providers")
	assert.Nil(t, got.RetailPrice)
	assert.Zero(t, got.PriceConfidence)
	assert.Equal(t, "skipped", got.Source)
}
