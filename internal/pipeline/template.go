package pipeline

import (
	"fmt"
	"strings"

	"github.com/sellkit/listing-pipeline/internal/model"
)

// templateConfidence marks template output as clearly degraded so downstream
// consumers can route it to manual review.
const templateConfidence = 0.3

const maxTemplateTags = 5

// templateContent assembles a deterministic listing from the detection and
// pricing data alone. It is the last tier of the synthesis stage: no model
// involved, same input always yields byte-identical output.
func templateContent(det *model.UnifiedDetection, pricing *model.UnifiedPricing) *model.GeneratedContent {
	title := titleCase(det.PrimaryObject)
	if title == "" {
		title = "Unidentified Item"
	}

	tags := det.VisualTags
	if len(tags) > maxTemplateTags {
		tags = tags[:maxTemplateTags]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s in the %s category.", title, det.Category)
	if len(tags) > 0 {
		fmt.Fprintf(&b, " Notable features: %s.", strings.Join(tags, ", "))
	}
	if len(det.DetectedText) > 0 {
		fmt.Fprintf(&b, " Visible text: %s.", strings.Join(det.DetectedText, " / "))
	}
	if pricing.UsedPriceEstimate != nil {
		fmt.Fprintf(&b, " Estimated resale value: $%.2f.", *pricing.UsedPriceEstimate)
	}
	description := b.String()

	bullets := []string{
		fmt.Sprintf("Category: %s", det.Category),
		"Condition: pre-owned, see photos for details",
	}
	if pricing.RetailPrice != nil {
		bullets = append(bullets, fmt.Sprintf("Comparable retail price: $%.2f", *pricing.RetailPrice))
	}
	for _, tag := range tags {
		bullets = append(bullets, titleCase(tag))
	}

	short := description
	if idx := strings.IndexByte(short, '.'); idx > 0 {
		short = short[:idx+1]
	}

	return &model.GeneratedContent{
		Title:            title,
		Description:      description,
		ShortDescription: short,
		BulletPoints:     bullets,
		SEO: model.SEO{
			MetaTitle:       title,
			MetaDescription: short,
			Keywords:        tags,
			Slug:            slugify(title),
		},
		Category:            det.Category,
		Tags:                tags,
		ConditionAssessment: "Condition not assessed automatically.",
		Confidence:          templateConfidence,
		Backend:             "template",
		Degraded:            true,
	}
}

// slugify turns a title into a URL-safe slug: lowercase, hyphens for runs
// of anything that is not a letter or digit, no leading/trailing hyphen.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 && r[0] >= 'a' && r[0] <= 'z' {
			r[0] = r[0] - 'a' + 'A'
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
