package pricing

import "github.com/sellkit/listing-pipeline/internal/model"

// PriceRange is the configured USD band for one category's typical
// secondhand inventory.
type PriceRange struct {
	Min float64
	Max float64
}

// categoryRanges backs the heuristic used when every pricing provider fails.
var categoryRanges = map[model.Category]PriceRange{
	model.CategoryElectronics: {Min: 50, Max: 700},
	model.CategoryClothing:    {Min: 10, Max: 120},
	model.CategoryHomeGarden:  {Min: 15, Max: 250},
	model.CategoryToysGames:   {Min: 10, Max: 90},
	model.CategoryBooksMedia:  {Min: 5, Max: 45},
	model.CategorySports:      {Min: 20, Max: 300},
	model.CategoryBeauty:      {Min: 8, Max: 80},
	model.CategoryAutomotive:  {Min: 25, Max: 400},
	model.CategoryCollectible: {Min: 15, Max: 350},
	model.CategoryOther:       {Min: 10, Max: 100},
}

// heuristicConfidence is the fixed confidence of a table-derived price.
const heuristicConfidence = 0.2

// usedPriceFactor estimates a used price from retail and vice versa.
const (
	usedPriceFactor   = 0.6
	retailPriceFactor = 1.5
)

// Heuristic returns the deterministic fallback pricing for a category:
// retail is the range midpoint, used is 60% of that.
func Heuristic(category model.Category) *model.UnifiedPricing {
	r, ok := categoryRanges[category]
	if !ok {
		r = categoryRanges[model.CategoryOther]
	}

	retail := (r.Min + r.Max) / 2
	used := retail * usedPriceFactor
	return &model.UnifiedPricing{
		RetailPrice:       &retail,
		UsedPriceEstimate: &used,
		PriceConfidence:   heuristicConfidence,
		Source:            "heuristic",
	}
}

// DeriveUsed estimates a used price from retail.
func DeriveUsed(retail float64) float64 { return retail * usedPriceFactor }

// DeriveRetail estimates a retail price from a used price.
func DeriveRetail(used float64) float64 { return used * retailPriceFactor }
