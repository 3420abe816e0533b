// Package textgen provides a backend-agnostic interface for generating
// listing copy with an LLM. Both Anthropic (Claude) and OpenAI implement
// this interface, allowing the synthesis stage to fall back from one to the
// other before resorting to its deterministic template.
package textgen

import "context"

// Client is the contract for one text-generation backend. It returns the
// raw model text; extracting and validating the JSON it should contain is
// the synthesis stage's responsibility, since parse failures need to
// trigger the stage's own fallback tiers.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ProviderName() string
	ModelName() string
	Enabled() bool

	// CostPerCall is the rough USD cost estimate of one generation,
	// reported to the usage monitor.
	CostPerCall() float64
}
