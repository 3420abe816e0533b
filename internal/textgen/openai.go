package textgen

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIClient implements Client using OpenAI's chat completions API,
// typically configured as the fallback behind Claude.
type OpenAIClient struct {
	client *openai.Client
	model  string
	cost   float64
}

// NewOpenAIClient creates an OpenAI-backed generator. An empty apiKey
// yields a disabled client.
func NewOpenAIClient(apiKey, model string, costPerCall float64) *OpenAIClient {
	if model == "" {
		model = defaultOpenAIModel
	}
	if costPerCall == 0 {
		costPerCall = 0.015
	}

	c := &OpenAIClient{model: model, cost: costPerCall}
	if apiKey != "" {
		c.client = openai.NewClient(apiKey)
	}
	return c
}

func (o *OpenAIClient) ProviderName() string { return "openai" }
func (o *OpenAIClient) ModelName() string    { return o.model }
func (o *OpenAIClient) Enabled() bool        { return o.client != nil }
func (o *OpenAIClient) CostPerCall() float64 { return o.cost }

func (o *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	if o.client == nil {
		return "", fmt.Errorf("openai client not configured")
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You write accurate, concise secondhand-marketplace listing copy. Always respond with a single JSON object and nothing else.",
			},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
