package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/provider"
)

// Recorder receives one usage record per provider invocation. The usage
// monitor implements this; the decorator stays decoupled from it so the
// cache package never imports the monitoring package.
type Recorder interface {
	Record(providerName, endpoint string, cached bool, cost float64)
}

// nopRecorder lets decorators run without a monitor (tests, CLI dry runs).
type nopRecorder struct{}

func (nopRecorder) Record(string, string, bool, float64) {}

// NopRecorder returns a Recorder that discards every record.
func NopRecorder() Recorder { return nopRecorder{} }

// CachedVision wraps a VisionProvider with content-addressed memoization.
// Vision results are deterministic per image, so they get the longest TTL.
// Only successful results are written: a transient provider outage is
// retried on the very next call.
type CachedVision struct {
	inner    provider.VisionProvider
	store    Store
	ttl      time.Duration
	recorder Recorder
	logger   *zap.Logger
}

// NewCachedVision wraps p. recorder may be nil.
func NewCachedVision(p provider.VisionProvider, store Store, ttl time.Duration, recorder Recorder, logger *zap.Logger) *CachedVision {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &CachedVision{inner: p, store: store, ttl: ttl, recorder: recorder, logger: logger}
}

func (c *CachedVision) Name() string         { return c.inner.Name() }
func (c *CachedVision) Priority() int        { return c.inner.Priority() }
func (c *CachedVision) Enabled() bool        { return c.inner.Enabled() }
func (c *CachedVision) CostPerCall() float64 { return c.inner.CostPerCall() }

func (c *CachedVision) AnalyzeImage(ctx context.Context, imageURL string) (*provider.VisionResult, error) {
	key := Key(c.inner.Name(), map[string]string{"op": "analyze_image", "image_url": imageURL})

	if raw, ok := c.lookup(ctx, key); ok {
		var result provider.VisionResult
		if err := json.Unmarshal(raw, &result); err == nil {
			c.recorder.Record(c.inner.Name(), "vision.analyze", true, 0)
			return &result, nil
		}
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	}

	result, err := c.inner.AnalyzeImage(ctx, imageURL)
	c.recorder.Record(c.inner.Name(), "vision.analyze", false, c.inner.CostPerCall())
	if err != nil {
		return nil, err
	}

	c.write(ctx, key, result, c.ttl)
	return result, nil
}

func (c *CachedVision) lookup(ctx context.Context, key string) ([]byte, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return raw, ok
}

func (c *CachedVision) write(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// CachedPricing wraps a PricingProvider. Prices drift, so the primary entry
// gets a moderate TTL. On success it additionally writes one long-lived
// entry per returned external product identifier, enabling direct
// identifier lookups later without re-running the original query.
type CachedPricing struct {
	inner         provider.PricingProvider
	store         Store
	ttl           time.Duration
	identifierTTL time.Duration
	recorder      Recorder
	logger        *zap.Logger
}

// NewCachedPricing wraps p. recorder may be nil.
func NewCachedPricing(p provider.PricingProvider, store Store, ttl, identifierTTL time.Duration, recorder Recorder, logger *zap.Logger) *CachedPricing {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &CachedPricing{
		inner:         p,
		store:         store,
		ttl:           ttl,
		identifierTTL: identifierTTL,
		recorder:      recorder,
		logger:        logger,
	}
}

func (c *CachedPricing) Name() string         { return c.inner.Name() }
func (c *CachedPricing) Priority() int        { return c.inner.Priority() }
func (c *CachedPricing) Enabled() bool        { return c.inner.Enabled() }
func (c *CachedPricing) CostPerCall() float64 { return c.inner.CostPerCall() }

func (c *CachedPricing) LookupPrice(ctx context.Context, query provider.PriceQuery) (*provider.PricingResult, error) {
	key := Key(c.inner.Name(), normalizeQuery(query))

	if raw, ok, err := c.store.Get(ctx, key); err == nil && ok {
		var result provider.PricingResult
		if err := json.Unmarshal(raw, &result); err == nil {
			c.recorder.Record(c.inner.Name(), "pricing.lookup", true, 0)
			return &result, nil
		}
	} else if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	result, err := c.inner.LookupPrice(ctx, query)
	c.recorder.Record(c.inner.Name(), "pricing.lookup", false, c.inner.CostPerCall())
	if err != nil {
		return nil, err
	}

	raw, merr := json.Marshal(result)
	if merr == nil {
		if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
		for _, id := range result.Identifiers {
			idKey := c.identifierKey(id)
			if err := c.store.Set(ctx, idKey, raw, c.identifierTTL); err != nil {
				c.logger.Warn("identifier cache write failed", zap.String("key", idKey), zap.Error(err))
			}
		}
	}

	return result, nil
}

// ByIdentifier returns the cached pricing result for an external product
// identifier (SKU/ASIN/UPC), if a previous successful lookup recorded one.
func (c *CachedPricing) ByIdentifier(ctx context.Context, id string) (*provider.PricingResult, bool) {
	raw, ok, err := c.store.Get(ctx, c.identifierKey(id))
	if err != nil || !ok {
		return nil, false
	}
	var result provider.PricingResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (c *CachedPricing) identifierKey(id string) string {
	return Key(c.inner.Name()+":identifier", map[string]string{"id": id})
}

// normalizeQuery lower-cases and trims the free-text parts of a price query
// so trivially different spellings of the same lookup share a cache entry.
func normalizeQuery(q provider.PriceQuery) map[string]string {
	return map[string]string{
		"op":         "lookup_price",
		"query":      strings.ToLower(strings.TrimSpace(q.Query)),
		"category":   string(q.Category),
		"identifier": strings.TrimSpace(q.Identifier),
	}
}
