package model

import "time"

// Status is the outcome of a pipeline invocation or batch.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusPartial Status = "partial" // batch only: some items failed
)

// WebEntity is an entity hint from a vision provider's web detection,
// usually the most specific signal available about what the item is.
type WebEntity struct {
	ID          string  `json:"id,omitempty"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// UnifiedDetection is the canonical output of the visual identification stage,
// merged from whichever provider succeeded.
type UnifiedDetection struct {
	PrimaryObject string      `json:"primary_object"`
	Category      Category    `json:"category"`
	DetectedText  []string    `json:"detected_text"`
	VisualTags    []string    `json:"visual_tags"` // deduplicated, confidence-sorted
	Confidence    float64     `json:"confidence"`  // mean of per-signal confidences, in [0,1]
	WebEntities   []WebEntity `json:"web_entities,omitempty"`
}

// UnifiedPricing is the canonical output of the price enrichment stage.
// Prices are pointers: nil means the signal was unavailable, as opposed to
// a genuine zero price.
type UnifiedPricing struct {
	RetailPrice        *float64          `json:"retail_price,omitempty"`
	UsedPriceEstimate  *float64          `json:"used_price_estimate,omitempty"`
	PriceConfidence    float64           `json:"price_confidence"` // in [0,1]
	ProductIdentifiers map[string]string `json:"product_identifiers,omitempty"`
	ProductDescription string            `json:"product_description,omitempty"`
	ProductSpecs       string            `json:"product_specifications,omitempty"`
	Source             string            `json:"source,omitempty"` // provider name, or "heuristic"
}

// SEO carries the search-optimization fields of generated listing copy.
type SEO struct {
	MetaTitle       string   `json:"meta_title"`
	MetaDescription string   `json:"meta_description"`
	Keywords        []string `json:"keywords"`
	Slug            string   `json:"slug"`
}

// GeneratedContent is the output of the content synthesis stage. Every field
// is always populated; the template fallback fills whatever the generation
// backend left empty.
type GeneratedContent struct {
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	ShortDescription    string   `json:"short_description"`
	BulletPoints        []string `json:"bullet_points"`
	SEO                 SEO      `json:"seo"`
	Category            Category `json:"category"`
	Tags                []string `json:"tags"`
	ConditionAssessment string   `json:"condition_assessment"`
	Confidence          float64  `json:"confidence"`
	Backend             string   `json:"backend,omitempty"`  // which generation backend produced this
	Degraded            bool     `json:"degraded,omitempty"` // true when the template fallback was used
}

// FinalProduct is assembled only when all three stages produced a result.
// Its confidence is the arithmetic mean of the three stage confidences.
type FinalProduct struct {
	Content    GeneratedContent `json:"content"`
	Detection  UnifiedDetection `json:"detection"`
	Pricing    UnifiedPricing   `json:"pricing"`
	Confidence float64          `json:"confidence"`
}

// PipelineResult is the immutable record of one pipeline invocation.
type PipelineResult struct {
	ImageURL        string            `json:"image_url"`
	ProcessedAt     time.Time         `json:"processed_at"`
	TotalDurationMs int64             `json:"total_duration_ms"`
	Status          Status            `json:"status"`
	Step1           *UnifiedDetection `json:"step1,omitempty"`
	Step2           *UnifiedPricing   `json:"step2,omitempty"`
	Step3           *GeneratedContent `json:"step3,omitempty"`
	FinalProduct    *FinalProduct     `json:"final_product,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// BatchItem is the per-image outcome inside a batch result. Exactly one of
// Data or Error is set.
type BatchItem struct {
	ImageURL string          `json:"image_url"`
	Data     *PipelineResult `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// BatchResult summarizes a sequential batch run. Status is success when no
// items failed, error when none succeeded, partial otherwise.
type BatchResult struct {
	Status      Status      `json:"status"`
	TotalImages int         `json:"total_images"`
	Successful  int         `json:"successful"`
	Failed      int         `json:"failed"`
	Results     []BatchItem `json:"results"`
}

// ProductGroup is one distinct product identified across a multi-image
// grouping call. ImageIndices are global indices into the submitted list.
type ProductGroup struct {
	Label        string `json:"label"`
	ImageIndices []int  `json:"image_indices"`
}
