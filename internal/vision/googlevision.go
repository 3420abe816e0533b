package vision

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sellkit/listing-pipeline/internal/model"
	"github.com/sellkit/listing-pipeline/internal/provider"
)

const googleVisionBaseURL = "https://vision.googleapis.com"

// GoogleVisionConfig configures the Cloud Vision provider. Enablement is the
// presence of the API key and nothing else.
type GoogleVisionConfig struct {
	APIKey        string
	Priority      int
	CostPerCall   float64
	RatePerMinute int
	BaseURL       string // overridable for tests
}

// GoogleVision calls the Cloud Vision images:annotate REST endpoint. It is
// the richest signal source: generic labels, localized objects, OCR text,
// and web entities in one call.
type GoogleVision struct {
	cfg     GoogleVisionConfig
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGoogleVision creates the provider. Defaults: priority 1, cost $0.006.
func NewGoogleVision(cfg GoogleVisionConfig, logger *zap.Logger) *GoogleVision {
	if cfg.Priority == 0 {
		cfg.Priority = 1
	}
	if cfg.CostPerCall == 0 {
		cfg.CostPerCall = 0.006
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = googleVisionBaseURL
	}

	return &GoogleVision{
		cfg: cfg,
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(httpTimeout).
			SetHeader("User-Agent", "listing-pipeline/1.0"),
		limiter: newLimiter(cfg.RatePerMinute),
		logger:  logger,
	}
}

func (g *GoogleVision) Name() string         { return "googlevision" }
func (g *GoogleVision) Priority() int        { return g.cfg.Priority }
func (g *GoogleVision) Enabled() bool        { return g.cfg.APIKey != "" }
func (g *GoogleVision) CostPerCall() float64 { return g.cfg.CostPerCall }

// Request/response shapes for images:annotate. Only the fields we read.
type annotateRequest struct {
	Requests []annotateEntry `json:"requests"`
}

type annotateEntry struct {
	Image    annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateImage struct {
	Source struct {
		ImageURI string `json:"imageUri"`
	} `json:"source"`
}

type annotateFeature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults,omitempty"`
}

type annotateResponse struct {
	Responses []struct {
		LabelAnnotations []struct {
			Description string  `json:"description"`
			Score       float64 `json:"score"`
		} `json:"labelAnnotations"`
		LocalizedObjectAnnotations []struct {
			Name  string  `json:"name"`
			Score float64 `json:"score"`
		} `json:"localizedObjectAnnotations"`
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		WebDetection *struct {
			WebEntities []struct {
				EntityID    string  `json:"entityId"`
				Score       float64 `json:"score"`
				Description string  `json:"description"`
			} `json:"webEntities"`
		} `json:"webDetection"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// AnalyzeImage runs all four detection features against the image URL and
// normalizes the combined response.
func (g *GoogleVision) AnalyzeImage(ctx context.Context, imageURL string) (*provider.VisionResult, error) {
	if err := waitLimiter(ctx, g.limiter); err != nil {
		return nil, err
	}

	entry := annotateEntry{
		Features: []annotateFeature{
			{Type: "LABEL_DETECTION", MaxResults: 10},
			{Type: "OBJECT_LOCALIZATION", MaxResults: 10},
			{Type: "TEXT_DETECTION"},
			{Type: "WEB_DETECTION", MaxResults: 10},
		},
	}
	entry.Image.Source.ImageURI = imageURL

	var parsed annotateResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.cfg.APIKey).
		SetBody(annotateRequest{Requests: []annotateEntry{entry}}).
		SetResult(&parsed).
		Post("/v1/images:annotate")
	if err != nil {
		return nil, fmt.Errorf("google vision request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("google vision: HTTP %d: %s", resp.StatusCode(), truncate(string(resp.Body()), 200))
	}
	if len(parsed.Responses) == 0 {
		return nil, fmt.Errorf("google vision: empty response")
	}

	ann := parsed.Responses[0]
	if ann.Error != nil {
		return nil, fmt.Errorf("google vision: API error %d: %s", ann.Error.Code, ann.Error.Message)
	}

	result := &provider.VisionResult{Provider: g.Name()}
	for _, l := range ann.LabelAnnotations {
		result.Labels = append(result.Labels, provider.Label{Name: l.Description, Score: l.Score})
	}
	for _, o := range ann.LocalizedObjectAnnotations {
		result.Objects = append(result.Objects, provider.Label{Name: o.Name, Score: o.Score})
	}
	if ann.FullTextAnnotation != nil {
		result.TextLines = splitTextLines(ann.FullTextAnnotation.Text)
	}
	if ann.WebDetection != nil {
		for _, e := range ann.WebDetection.WebEntities {
			if e.Description == "" {
				continue
			}
			result.WebEntities = append(result.WebEntities, model.WebEntity{
				ID:          e.EntityID,
				Description: e.Description,
				Score:       e.Score,
			})
		}
		// Web entity scores are unbounded; sort descending so downstream
		// unification can take the first as the strongest hint.
		sort.SliceStable(result.WebEntities, func(i, j int) bool {
			return result.WebEntities[i].Score > result.WebEntities[j].Score
		})
	}

	if len(result.Labels) == 0 && len(result.Objects) == 0 && len(result.WebEntities) == 0 {
		return nil, fmt.Errorf("google vision: no detections for %s", imageURL)
	}

	g.logger.Debug("google vision annotated image",
		zap.Int("labels", len(result.Labels)),
		zap.Int("objects", len(result.Objects)),
		zap.Int("web_entities", len(result.WebEntities)),
	)
	return result, nil
}

// splitTextLines breaks OCR text into trimmed, non-empty lines.
func splitTextLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
