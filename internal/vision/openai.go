package vision

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sellkit/listing-pipeline/internal/provider"
)

const defaultOpenAIVisionModel = "gpt-4o"

// OpenAIConfig configures the OpenAI vision provider.
type OpenAIConfig struct {
	APIKey        string
	Model         string
	Priority      int
	CostPerCall   float64
	RatePerMinute int
	BaseURL       string // overridable for tests
}

// OpenAI analyzes images through the chat completions API with an image_url
// content part. It shares the JSON response contract with the Gemini
// provider, so both normalize through parseModelResponse.
type OpenAI struct {
	cfg     OpenAIConfig
	client  *openai.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewOpenAI creates the provider. Defaults: priority 3, cost $0.01.
func NewOpenAI(cfg OpenAIConfig, logger *zap.Logger) *OpenAI {
	if cfg.Priority == 0 {
		cfg.Priority = 3
	}
	if cfg.CostPerCall == 0 {
		cfg.CostPerCall = 0.01
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIVisionModel
	}

	p := &OpenAI{cfg: cfg, limiter: newLimiter(cfg.RatePerMinute), logger: logger}
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		p.client = openai.NewClientWithConfig(clientCfg)
	}
	return p
}

func (o *OpenAI) Name() string         { return "openai-vision" }
func (o *OpenAI) Priority() int        { return o.cfg.Priority }
func (o *OpenAI) Enabled() bool        { return o.client != nil }
func (o *OpenAI) CostPerCall() float64 { return o.cfg.CostPerCall }

func (o *OpenAI) AnalyzeImage(ctx context.Context, imageURL string) (*provider.VisionResult, error) {
	if o.client == nil {
		return nil, fmt.Errorf("openai vision provider not configured")
	}
	if err := waitLimiter(ctx, o.limiter); err != nil {
		return nil, err
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: itemVisionPrompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai vision request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai vision returned no choices")
	}

	text := resp.Choices[0].Message.Content
	o.logger.Debug("openai vision response", zap.String("response", truncate(text, 300)))

	return parseModelResponse(o.Name(), text)
}
