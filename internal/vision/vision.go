// Package vision contains the concrete vision providers. Each one talks to a
// different external service, normalizes its response into the shared
// provider.VisionResult shape, and reports enablement purely from configured
// credentials. Providers enforce their own network timeouts; nothing above
// them in the pipeline imposes one.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lithammer/dedent"
	"golang.org/x/time/rate"

	"github.com/sellkit/listing-pipeline/internal/provider"
)

const httpTimeout = 30 * time.Second

// itemVisionPrompt is the shared instruction for the LLM-backed providers.
// Both Gemini and OpenAI are asked for the same JSON contract so their
// responses normalize through the same parser.
var itemVisionPrompt = dedent.Dedent(`
	Analyze this image and identify the item shown, as if cataloging it for a
	secondhand marketplace listing.

	Respond in JSON with these fields:
	- primary_object: the single most specific name for the item (e.g. "wireless headphones", not "electronics")
	- confidence: your confidence in the identification, 0.0 to 1.0
	- labels: array of {"name", "score"} objects describing the item and its visible attributes, most confident first
	- text_lines: any readable text in the image (brand names, model numbers, packaging text), one string per line

	Respond ONLY with the JSON object, no markdown or other text.`)

// modelVisionResponse is the JSON shape the LLM-backed providers (Gemini,
// OpenAI) are instructed to return.
type modelVisionResponse struct {
	PrimaryObject string  `json:"primary_object"`
	Confidence    float64 `json:"confidence"`
	Labels        []struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	} `json:"labels"`
	TextLines []string `json:"text_lines"`
}

// parseModelResponse turns free-form model output into a VisionResult.
// Models wrap JSON in markdown fences often enough that stripping them
// first is mandatory.
func parseModelResponse(providerName, text string) (*provider.VisionResult, error) {
	text = stripCodeFence(text)

	var parsed modelVisionResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("parsing vision response JSON: %w (response: %s)", err, truncate(text, 200))
	}
	if parsed.PrimaryObject == "" && len(parsed.Labels) == 0 {
		return nil, fmt.Errorf("vision response contained no labels or primary object")
	}

	result := &provider.VisionResult{Provider: providerName, TextLines: parsed.TextLines}
	if parsed.PrimaryObject != "" {
		score := parsed.Confidence
		if score <= 0 || score > 1 {
			score = 0.8
		}
		result.Objects = append(result.Objects, provider.Label{Name: parsed.PrimaryObject, Score: score})
	}
	for _, l := range parsed.Labels {
		result.Labels = append(result.Labels, provider.Label{Name: l.Name, Score: l.Score})
	}
	return result, nil
}

// stripCodeFence removes a leading/trailing markdown code fence if present.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// imageFetcher downloads image bytes for providers that can't take a URL
// directly (Gemini wants inline data).
type imageFetcher struct {
	client *resty.Client
}

func newImageFetcher() *imageFetcher {
	return &imageFetcher{
		client: resty.New().
			SetTimeout(httpTimeout).
			SetHeader("User-Agent", "listing-pipeline/1.0"),
	}
}

// fetch returns the image bytes and detected MIME type.
func (f *imageFetcher) fetch(ctx context.Context, imageURL string) ([]byte, string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return nil, "", fmt.Errorf("downloading image: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("downloading image: HTTP %d for %s", resp.StatusCode(), imageURL)
	}

	mime := resp.Header().Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return resp.Body(), mime, nil
}

// waitLimiter blocks on the provider's rate limiter when one is configured.
func waitLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// newLimiter converts a per-minute cap into a limiter; 0 disables limiting.
func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}
