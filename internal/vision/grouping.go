package vision

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lithammer/dedent"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/sellkit/listing-pipeline/internal/model"
)

var groupingPrompt = dedent.Dedent(`
	You are given %d photos of second-hand items, in order. Some photos show
	the same physical product from different angles. Group the photos by
	product. Respond with a single JSON object and nothing else:
	{"products": [{"label": "short product name", "image_indices": [0, 2]}]}
	Indices are zero-based positions in the photo order. Every photo must
	appear in exactly one product.
`)

type groupingResponse struct {
	Products []struct {
		Label        string `json:"label"`
		ImageIndices []int  `json:"image_indices"`
	} `json:"products"`
}

// GroupChunk sends one chunk of images to Gemini in a single multimodal
// request and parses the grouping it returns. Indices in the result are
// local to the chunk.
func (g *Gemini) GroupChunk(ctx context.Context, imageURLs []string) ([]model.ProductGroup, error) {
	if g.client == nil {
		return nil, fmt.Errorf("gemini provider not configured")
	}
	if err := waitLimiter(ctx, g.limiter); err != nil {
		return nil, err
	}

	parts := []*genai.Part{
		genai.NewPartFromText(fmt.Sprintf(groupingPrompt, len(imageURLs))),
	}
	for _, url := range imageURLs {
		data, mimeType, err := g.fetcher.fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}})
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini group images: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	text := stripCodeFence(resp.Text())
	g.logger.Debug("gemini grouping response", zap.String("response", truncate(text, 300)))

	var parsed groupingResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("parsing grouping response: %w", err)
	}

	groups := make([]model.ProductGroup, 0, len(parsed.Products))
	for _, p := range parsed.Products {
		groups = append(groups, model.ProductGroup{
			Label:        p.Label,
			ImageIndices: p.ImageIndices,
		})
	}
	return groups, nil
}
