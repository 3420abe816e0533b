package vision

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/sellkit/listing-pipeline/internal/provider"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini vision provider.
type GeminiConfig struct {
	APIKey        string
	Model         string
	Priority      int
	CostPerCall   float64
	RatePerMinute int
}

// Gemini analyzes images with Google's Gemini API. Gemini takes inline image
// bytes rather than a URL, so the provider downloads the image first.
type Gemini struct {
	cfg     GeminiConfig
	client  *genai.Client
	fetcher *imageFetcher
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGemini creates the provider. The genai client is only constructed when
// a key is configured; a disabled provider never dials out.
// Defaults: priority 2, cost $0.002.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.Priority == 0 {
		cfg.Priority = 2
	}
	if cfg.CostPerCall == 0 {
		cfg.CostPerCall = 0.002
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}

	g := &Gemini{
		cfg:     cfg,
		fetcher: newImageFetcher(),
		limiter: newLimiter(cfg.RatePerMinute),
		logger:  logger,
	}
	if cfg.APIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
		if err != nil {
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
		g.client = client
	}
	return g, nil
}

func (g *Gemini) Name() string         { return "gemini" }
func (g *Gemini) Priority() int        { return g.cfg.Priority }
func (g *Gemini) Enabled() bool        { return g.client != nil }
func (g *Gemini) CostPerCall() float64 { return g.cfg.CostPerCall }

func (g *Gemini) AnalyzeImage(ctx context.Context, imageURL string) (*provider.VisionResult, error) {
	if g.client == nil {
		return nil, fmt.Errorf("gemini provider not configured")
	}
	if err := waitLimiter(ctx, g.limiter); err != nil {
		return nil, err
	}

	data, mimeType, err := g.fetcher.fetch(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	parts := []*genai.Part{
		genai.NewPartFromText(itemVisionPrompt),
		{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}},
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	text := resp.Text()
	g.logger.Debug("gemini vision response", zap.String("response", truncate(text, 300)))

	return parseModelResponse(g.Name(), text)
}
