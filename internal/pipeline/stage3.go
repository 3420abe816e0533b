package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/cache"
	"github.com/sellkit/listing-pipeline/internal/model"
	"github.com/sellkit/listing-pipeline/internal/textgen"
)

const defaultGeneratedConfidence = 0.75

var synthesisPrompt = dedent.Dedent(`
	You are writing a resale listing for a second-hand marketplace.

	Item identification:
	%s

	Pricing data:
	%s

	Write compelling, honest listing copy for this item. Respond with a single
	JSON object and nothing else:
	{
	  "title": "listing title, max 80 characters",
	  "description": "2-4 paragraph listing description",
	  "short_description": "one sentence summary",
	  "bullet_points": ["3-6 key selling points"],
	  "seo": {
	    "meta_title": "max 60 characters",
	    "meta_description": "max 160 characters",
	    "keywords": ["5-10 search keywords"],
	    "slug": "url-safe-slug"
	  },
	  "category": "one of: %s",
	  "tags": ["5-10 listing tags"],
	  "condition_assessment": "condition statement based on the visual evidence",
	  "confidence": 0.0
	}
	Set confidence between 0 and 1 to reflect how certain the identification is.
	Never invent specifications that are not supported by the data above.
`)

// SynthesisStage turns detection and pricing data into listing copy. It
// tries the configured generation backends in order and falls back to the
// deterministic template when every backend fails or returns garbage, so
// the stage itself never errors.
type SynthesisStage struct {
	clients  []textgen.Client
	recorder cache.Recorder
	logger   *zap.Logger
}

func NewSynthesisStage(clients []textgen.Client, recorder cache.Recorder, logger *zap.Logger) *SynthesisStage {
	if recorder == nil {
		recorder = cache.NopRecorder()
	}
	return &SynthesisStage{clients: clients, recorder: recorder, logger: logger}
}

// Run generates listing content. backendOverride, when it names one of the
// configured backends, moves that backend to the front of the order for
// this call only.
func (s *SynthesisStage) Run(ctx context.Context, det *model.UnifiedDetection, pricing *model.UnifiedPricing, backendOverride string) *model.GeneratedContent {
	prompt := buildPrompt(det, pricing)

	for _, client := range s.orderedClients(backendOverride) {
		if !client.Enabled() {
			continue
		}
		text, err := client.Generate(ctx, prompt)
		s.recorder.Record(client.ProviderName(), "textgen.generate", false, client.CostPerCall())
		if err != nil {
			s.logger.Warn("generation backend failed, trying next",
				zap.String("backend", client.ProviderName()),
				zap.Error(err))
			continue
		}
		payload, err := parseGenerated(text)
		if err != nil {
			s.logger.Warn("generation backend returned unparseable output, trying next",
				zap.String("backend", client.ProviderName()),
				zap.Error(err))
			continue
		}
		return contentFromPayload(payload, det, client.ProviderName())
	}

	s.logger.Warn("all generation backends failed, using template fallback")
	return templateContent(det, pricing)
}

func (s *SynthesisStage) orderedClients(backendOverride string) []textgen.Client {
	if backendOverride == "" {
		return s.clients
	}
	ordered := make([]textgen.Client, 0, len(s.clients))
	var rest []textgen.Client
	for _, c := range s.clients {
		if c.ProviderName() == backendOverride {
			ordered = append(ordered, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(ordered, rest...)
}

func buildPrompt(det *model.UnifiedDetection, pricing *model.UnifiedPricing) string {
	detJSON, _ := json.MarshalIndent(det, "", "  ")
	priceJSON, _ := json.MarshalIndent(pricing, "", "  ")

	names := make([]string, len(model.AllCategories))
	for i, c := range model.AllCategories {
		names[i] = string(c)
	}
	return fmt.Sprintf(synthesisPrompt, detJSON, priceJSON, strings.Join(names, ", "))
}

// contentFromPayload maps the parsed backend output onto the content model,
// filling defaults from the detection for everything optional the model
// left out.
func contentFromPayload(payload *generatedPayload, det *model.UnifiedDetection, backend string) *model.GeneratedContent {
	content := &model.GeneratedContent{
		Title:            strings.TrimSpace(payload.Title),
		Description:      strings.TrimSpace(payload.Description),
		ShortDescription: strings.TrimSpace(payload.ShortDescription),
		BulletPoints:     payload.BulletPoints,
		SEO: model.SEO{
			MetaTitle:       payload.SEO.MetaTitle,
			MetaDescription: payload.SEO.MetaDescription,
			Keywords:        payload.SEO.Keywords,
			Slug:            payload.SEO.Slug,
		},
		Tags:                payload.Tags,
		ConditionAssessment: payload.ConditionAssessment,
		Confidence:          payload.Confidence,
		Backend:             backend,
	}

	if model.ValidCategory(payload.Category) {
		content.Category = model.Category(payload.Category)
	} else {
		content.Category = det.Category
	}
	if content.ShortDescription == "" {
		content.ShortDescription = content.Title
	}
	if content.SEO.MetaTitle == "" {
		content.SEO.MetaTitle = content.Title
	}
	if content.SEO.Slug == "" {
		content.SEO.Slug = slugify(content.Title)
	}
	if len(content.Tags) == 0 {
		content.Tags = det.VisualTags
	}
	if content.Confidence <= 0 || content.Confidence > 1 {
		content.Confidence = defaultGeneratedConfidence
	}
	return content
}
