// Package pricing contains the concrete price-lookup providers and the
// category-keyed heuristic used when every provider fails. Providers
// normalize into provider.PricingResult; deriving missing retail/used
// figures is the enrichment stage's job, not theirs.
package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sellkit/listing-pipeline/internal/provider"
)

const (
	serpAPIBaseURL = "https://serpapi.com"
	httpTimeout    = 30 * time.Second
)

// SerpAPIConfig configures the Google Shopping lookup via SerpAPI.
type SerpAPIConfig struct {
	APIKey        string
	Priority      int
	CostPerCall   float64
	RatePerMinute int
	BaseURL       string // overridable for tests
}

// SerpAPI queries the Google Shopping engine for current retail offers.
// The retail price is the median of returned offer prices, which is less
// sensitive to a single outlier listing than the first result.
type SerpAPI struct {
	cfg     SerpAPIConfig
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewSerpAPI creates the provider. Defaults: priority 1, cost $0.015.
func NewSerpAPI(cfg SerpAPIConfig, logger *zap.Logger) *SerpAPI {
	if cfg.Priority == 0 {
		cfg.Priority = 1
	}
	if cfg.CostPerCall == 0 {
		cfg.CostPerCall = 0.015
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = serpAPIBaseURL
	}

	return &SerpAPI{
		cfg: cfg,
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(httpTimeout).
			SetHeader("User-Agent", "listing-pipeline/1.0"),
		limiter: newLimiter(cfg.RatePerMinute),
		logger:  logger,
	}
}

func (s *SerpAPI) Name() string         { return "serpapi" }
func (s *SerpAPI) Priority() int        { return s.cfg.Priority }
func (s *SerpAPI) Enabled() bool        { return s.cfg.APIKey != "" }
func (s *SerpAPI) CostPerCall() float64 { return s.cfg.CostPerCall }

type serpShoppingResponse struct {
	ShoppingResults []struct {
		Title          string  `json:"title"`
		ProductID      string  `json:"product_id"`
		ExtractedPrice float64 `json:"extracted_price"`
		Snippet        string  `json:"snippet"`
	} `json:"shopping_results"`
	Error string `json:"error"`
}

func (s *SerpAPI) LookupPrice(ctx context.Context, query provider.PriceQuery) (*provider.PricingResult, error) {
	if err := waitLimiter(ctx, s.limiter); err != nil {
		return nil, err
	}

	var parsed serpShoppingResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"engine":  "google_shopping",
			"q":       query.Query,
			"api_key": s.cfg.APIKey,
		}).
		SetResult(&parsed).
		Get("/search.json")
	if err != nil {
		return nil, fmt.Errorf("serpapi request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("serpapi: HTTP %d", resp.StatusCode())
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("serpapi: %s", parsed.Error)
	}

	var prices []float64
	for _, r := range parsed.ShoppingResults {
		if r.ExtractedPrice > 0 {
			prices = append(prices, r.ExtractedPrice)
		}
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("serpapi: no priced offers for %q", query.Query)
	}

	retail := median(prices)
	result := &provider.PricingResult{
		Provider:    s.Name(),
		RetailPrice: &retail,
		Currency:    "USD",
	}

	top := parsed.ShoppingResults[0]
	if top.ProductID != "" {
		result.Identifiers = map[string]string{"google_product": top.ProductID}
	}
	result.Description = top.Snippet
	if result.Description == "" {
		result.Description = top.Title
	}

	s.logger.Debug("serpapi priced item",
		zap.String("query", query.Query),
		zap.Float64("retail", retail),
		zap.Int("offers", len(prices)),
	)
	return result, nil
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func waitLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}
