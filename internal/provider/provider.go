// Package provider defines the capability contracts for external analysis
// services and the priority-ordered registry that selects between them.
// Each provider (vision, pricing) implements one of these interfaces; the
// pipeline stages only ever see the interface, never a concrete client.
package provider

import (
	"context"

	"github.com/sellkit/listing-pipeline/internal/model"
)

// Provider is the base contract every pluggable service adapter satisfies.
// Enabled is driven purely by configured credentials; there is no runtime
// health probe. Priority orders fallback attempts: lower is tried first.
type Provider interface {
	Name() string
	Priority() int
	Enabled() bool

	// CostPerCall is the estimated USD cost of one uncached invocation,
	// used by the usage monitor for spend accounting.
	CostPerCall() float64
}

// Label is a single classification signal (object label or tag) with its
// provider-reported confidence.
type Label struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// VisionResult is the shared shape every vision provider normalizes its
// response into. Fields a provider can't supply stay empty.
type VisionResult struct {
	Provider    string            `json:"provider"`
	Labels      []Label           `json:"labels,omitempty"`
	Objects     []Label           `json:"objects,omitempty"` // localized objects, more specific than labels
	TextLines   []string          `json:"text_lines,omitempty"`
	WebEntities []model.WebEntity `json:"web_entities,omitempty"`
}

// VisionProvider analyzes one image by URL.
type VisionProvider interface {
	Provider
	AnalyzeImage(ctx context.Context, imageURL string) (*VisionResult, error)
}

// PriceQuery describes what a pricing provider should look up. Query is the
// primary object name from visual identification; Identifier, when set, is an
// external product id (UPC/ASIN) for a direct lookup.
type PriceQuery struct {
	Query      string         `json:"query"`
	Category   model.Category `json:"category"`
	Identifier string         `json:"identifier,omitempty"`
}

// PricingResult is the shared shape every pricing provider normalizes into.
// RetailPrice and UsedPrice are nil when the provider had no such signal.
type PricingResult struct {
	Provider       string            `json:"provider"`
	RetailPrice    *float64          `json:"retail_price,omitempty"`
	UsedPrice      *float64          `json:"used_price,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	Identifiers    map[string]string `json:"identifiers,omitempty"` // provider -> external product id
	Description    string            `json:"description,omitempty"`
	Specifications string            `json:"specifications,omitempty"`
}

// PricingProvider looks up market prices for an identified item.
type PricingProvider interface {
	Provider
	LookupPrice(ctx context.Context, query PriceQuery) (*PricingResult, error)
}
