// Package app wires configuration, providers, cache decorators, and the
// pipeline into a runnable component set. The HTTP server and the CLI share
// this wiring so the two entry points cannot drift apart.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/cache"
	"github.com/sellkit/listing-pipeline/internal/config"
	"github.com/sellkit/listing-pipeline/internal/pipeline"
	"github.com/sellkit/listing-pipeline/internal/pricing"
	"github.com/sellkit/listing-pipeline/internal/provider"
	"github.com/sellkit/listing-pipeline/internal/textgen"
	"github.com/sellkit/listing-pipeline/internal/usage"
	"github.com/sellkit/listing-pipeline/internal/vision"
)

// Components is the assembled application graph.
type Components struct {
	Pipeline       *pipeline.Pipeline
	Grouper        *pipeline.Grouper // nil when Gemini is not configured
	VisionRegistry *provider.Registry[provider.VisionProvider]
	PriceRegistry  *provider.Registry[provider.PricingProvider]
	TextGenClients []textgen.Client
	Monitor        *usage.Monitor
	Store          cache.Store
}

// Build assembles the full pipeline on top of the given cache store. Every
// provider is wrapped in its cache decorator, and every decorator reports
// into the usage monitor.
func Build(ctx context.Context, cfg *config.Config, store cache.Store, logger *zap.Logger) (*Components, error) {
	monitor := usage.NewMonitor(cfg.Usage.Alerts, &usage.LogSink{Logger: logger})

	// Vision providers, priority order from config.
	gemini, err := vision.NewGemini(ctx, vision.GeminiConfig{
		APIKey:        cfg.Vision.Gemini.APIKey,
		Model:         cfg.Vision.Gemini.Model,
		Priority:      cfg.Vision.Gemini.Priority,
		CostPerCall:   cfg.Vision.Gemini.CostPerCall,
		RatePerMinute: cfg.Vision.Gemini.RatePerMinute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("building gemini provider: %w", err)
	}

	visionProviders := []provider.VisionProvider{
		vision.NewGoogleVision(vision.GoogleVisionConfig{
			APIKey:        cfg.Vision.GoogleVision.APIKey,
			Priority:      cfg.Vision.GoogleVision.Priority,
			CostPerCall:   cfg.Vision.GoogleVision.CostPerCall,
			RatePerMinute: cfg.Vision.GoogleVision.RatePerMinute,
		}, logger),
		gemini,
		vision.NewOpenAI(vision.OpenAIConfig{
			APIKey:        cfg.Vision.OpenAI.APIKey,
			Model:         cfg.Vision.OpenAI.Model,
			Priority:      cfg.Vision.OpenAI.Priority,
			CostPerCall:   cfg.Vision.OpenAI.CostPerCall,
			RatePerMinute: cfg.Vision.OpenAI.RatePerMinute,
		}, logger),
	}
	visionRegistry := provider.NewRegistry[provider.VisionProvider]()
	for _, p := range visionProviders {
		visionRegistry.Register(cache.NewCachedVision(p, store, cfg.Cache.VisionTTL, monitor, logger))
	}

	// Pricing providers.
	pricingProviders := []provider.PricingProvider{
		pricing.NewSerpAPI(pricing.SerpAPIConfig{
			APIKey:        cfg.Pricing.SerpAPI.APIKey,
			Priority:      cfg.Pricing.SerpAPI.Priority,
			CostPerCall:   cfg.Pricing.SerpAPI.CostPerCall,
			RatePerMinute: cfg.Pricing.SerpAPI.RatePerMinute,
		}, logger),
		pricing.NewUPCItemDB(pricing.UPCItemDBConfig{
			APIKey:        cfg.Pricing.UPCItemDB.APIKey,
			Priority:      cfg.Pricing.UPCItemDB.Priority,
			CostPerCall:   cfg.Pricing.UPCItemDB.CostPerCall,
			RatePerMinute: cfg.Pricing.UPCItemDB.RatePerMinute,
		}, logger),
	}
	priceRegistry := provider.NewRegistry[provider.PricingProvider]()
	for _, p := range pricingProviders {
		priceRegistry.Register(cache.NewCachedPricing(p, store, cfg.Cache.PricingTTL, cfg.Cache.IdentifierTTL, monitor, logger))
	}

	clients, err := textGenClients(cfg.TextGen)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(
		pipeline.NewVisionStage(visionRegistry, logger),
		pipeline.NewPricingStage(priceRegistry, monitor, logger),
		pipeline.NewSynthesisStage(clients, monitor, logger),
		logger,
	)

	// Grouping needs a multimodal backend; only Gemini supports it. The
	// grouper records into the monitor itself since its calls never pass
	// through a cache decorator.
	var grouper *pipeline.Grouper
	if gemini.Enabled() {
		grouper = pipeline.NewGrouper(gemini, monitor, logger)
	}

	return &Components{
		Pipeline:       p,
		Grouper:        grouper,
		VisionRegistry: visionRegistry,
		PriceRegistry:  priceRegistry,
		TextGenClients: clients,
		Monitor:        monitor,
		Store:          store,
	}, nil
}

// textGenClients builds the generation backends in the configured fallback
// order. Unknown names are a configuration error rather than something to
// skip silently.
func textGenClients(cfg config.TextGenConfig) ([]textgen.Client, error) {
	clients := make([]textgen.Client, 0, len(cfg.ProviderOrder))
	for _, name := range cfg.ProviderOrder {
		switch name {
		case "anthropic":
			clients = append(clients, textgen.NewAnthropicClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model, cfg.Anthropic.CostPerCall))
		case "openai":
			clients = append(clients, textgen.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.CostPerCall))
		default:
			return nil, fmt.Errorf("unknown textgen provider %q in provider_order", name)
		}
	}
	return clients, nil
}
