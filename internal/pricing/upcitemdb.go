package pricing

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sellkit/listing-pipeline/internal/provider"
)

const upcItemDBBaseURL = "https://api.upcitemdb.com"

// UPCItemDBConfig configures the UPCitemdb provider. The service keys
// requests by API key header rather than query param.
type UPCItemDBConfig struct {
	APIKey        string
	Priority      int
	CostPerCall   float64
	RatePerMinute int
	BaseURL       string // overridable for tests
}

// UPCItemDB looks items up in the UPCitemdb product database. Its recorded
// price history gives both a retail figure (highest recorded) and a
// used-market estimate (lowest recorded), plus stable product identifiers
// (UPC/EAN/ASIN) that feed the identifier-keyed cache.
type UPCItemDB struct {
	cfg     UPCItemDBConfig
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewUPCItemDB creates the provider. Defaults: priority 2, cost $0.005.
func NewUPCItemDB(cfg UPCItemDBConfig, logger *zap.Logger) *UPCItemDB {
	if cfg.Priority == 0 {
		cfg.Priority = 2
	}
	if cfg.CostPerCall == 0 {
		cfg.CostPerCall = 0.005
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = upcItemDBBaseURL
	}

	return &UPCItemDB{
		cfg: cfg,
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(httpTimeout).
			SetHeader("User-Agent", "listing-pipeline/1.0"),
		limiter: newLimiter(cfg.RatePerMinute),
		logger:  logger,
	}
}

func (u *UPCItemDB) Name() string         { return "upcitemdb" }
func (u *UPCItemDB) Priority() int        { return u.cfg.Priority }
func (u *UPCItemDB) Enabled() bool        { return u.cfg.APIKey != "" }
func (u *UPCItemDB) CostPerCall() float64 { return u.cfg.CostPerCall }

type upcSearchResponse struct {
	Code  string `json:"code"`
	Items []struct {
		Title                string  `json:"title"`
		Description          string  `json:"description"`
		UPC                  string  `json:"upc"`
		EAN                  string  `json:"ean"`
		ASIN                 string  `json:"asin"`
		LowestRecordedPrice  float64 `json:"lowest_recorded_price"`
		HighestRecordedPrice float64 `json:"highest_recorded_price"`
	} `json:"items"`
	Message string `json:"message"`
}

func (u *UPCItemDB) LookupPrice(ctx context.Context, query provider.PriceQuery) (*provider.PricingResult, error) {
	if err := waitLimiter(ctx, u.limiter); err != nil {
		return nil, err
	}

	req := u.client.R().
		SetContext(ctx).
		SetHeader("user_key", u.cfg.APIKey).
		SetHeader("key_type", "3scale")

	var parsed upcSearchResponse
	var err error
	var resp *resty.Response
	if query.Identifier != "" {
		// Direct identifier lookup when the caller already knows a UPC.
		resp, err = req.SetQueryParam("upc", query.Identifier).
			SetResult(&parsed).Get("/prod/v1/lookup")
	} else {
		resp, err = req.SetQueryParam("s", query.Query).
			SetResult(&parsed).Get("/prod/v1/search")
	}
	if err != nil {
		return nil, fmt.Errorf("upcitemdb request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("upcitemdb: HTTP %d", resp.StatusCode())
	}
	if parsed.Code != "OK" {
		return nil, fmt.Errorf("upcitemdb: %s: %s", parsed.Code, parsed.Message)
	}
	if len(parsed.Items) == 0 {
		return nil, fmt.Errorf("upcitemdb: no items for %q", query.Query)
	}

	item := parsed.Items[0]
	result := &provider.PricingResult{
		Provider:    u.Name(),
		Currency:    "USD",
		Description: item.Description,
		Identifiers: map[string]string{},
	}
	if item.HighestRecordedPrice > 0 {
		retail := item.HighestRecordedPrice
		result.RetailPrice = &retail
	}
	if item.LowestRecordedPrice > 0 {
		used := item.LowestRecordedPrice
		result.UsedPrice = &used
	}
	if item.UPC != "" {
		result.Identifiers["upc"] = item.UPC
	}
	if item.EAN != "" {
		result.Identifiers["ean"] = item.EAN
	}
	if item.ASIN != "" {
		result.Identifiers["asin"] = item.ASIN
	}
	if result.RetailPrice == nil && result.UsedPrice == nil {
		return nil, fmt.Errorf("upcitemdb: item %q has no recorded prices", item.Title)
	}

	u.logger.Debug("upcitemdb matched item",
		zap.String("query", query.Query),
		zap.String("title", item.Title),
	)
	return result, nil
}
