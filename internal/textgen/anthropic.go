package textgen

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// AnthropicClient implements Client using Claude. A single completion is
// enough here; the prompt carries all the context, no tool loop needed.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	cost   float64
}

// NewAnthropicClient creates a Claude-backed generator. An empty apiKey
// yields a disabled client that the synthesis stage will skip.
func NewAnthropicClient(apiKey, model string, costPerCall float64) *AnthropicClient {
	if model == "" {
		model = defaultAnthropicModel
	}
	if costPerCall == 0 {
		costPerCall = 0.02
	}

	c := &AnthropicClient{model: model, cost: costPerCall}
	if apiKey != "" {
		client := anthropic.NewClient(option.WithAPIKey(apiKey))
		c.client = &client
	}
	return c
}

func (a *AnthropicClient) ProviderName() string { return "anthropic" }
func (a *AnthropicClient) ModelName() string    { return a.model }
func (a *AnthropicClient) Enabled() bool        { return a.client != nil }
func (a *AnthropicClient) CostPerCall() float64 { return a.cost }

func (a *AnthropicClient) Generate(ctx context.Context, prompt string) (string, error) {
	if a.client == nil {
		return "", fmt.Errorf("anthropic client not configured")
	}

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return text, nil
}
