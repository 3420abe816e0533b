// Package model defines the core data types for the listing pipeline.
// These are the shapes that flow between stages: the unified detection from
// vision analysis, the unified pricing from price lookups, and the generated
// listing content. Struct tags (`json:"..."`) control API serialization.
package model

import "strings"

// Category is the closed set of listing categories the pipeline can assign.
// Go has no enum type; typed string constants keep the values
// readable in JSON responses and logs.
type Category string

const (
	CategoryElectronics Category = "Electronics"
	CategoryClothing    Category = "Clothing & Accessories"
	CategoryHomeGarden  Category = "Home & Garden"
	CategoryToysGames   Category = "Toys & Games"
	CategoryBooksMedia  Category = "Books & Media"
	CategorySports      Category = "Sports & Outdoors"
	CategoryBeauty      Category = "Beauty & Health"
	CategoryAutomotive  Category = "Automotive"
	CategoryCollectible Category = "Collectibles"
	CategoryOther       Category = "Other"
)

// AllCategories is the ordered list used for classification. Order matters:
// the first category whose keyword set matches wins, so more specific
// categories come before broader ones. CategoryOther is the catch-all and
// owns no keywords.
var AllCategories = []Category{
	CategoryElectronics,
	CategoryClothing,
	CategoryHomeGarden,
	CategoryToysGames,
	CategoryBooksMedia,
	CategorySports,
	CategoryBeauty,
	CategoryAutomotive,
	CategoryCollectible,
	CategoryOther,
}

// categoryKeywords maps each category to the substrings that indicate it.
// Classification is a deterministic keyword match, no network and no model.
var categoryKeywords = map[Category][]string{
	CategoryElectronics: {
		"headphone", "earbud", "speaker", "phone", "laptop", "computer",
		"tablet", "camera", "monitor", "keyboard", "mouse", "console",
		"television", "tv", "router", "charger", "wireless", "bluetooth",
		"electronic", "drone", "printer", "smartwatch",
	},
	CategoryClothing: {
		"shirt", "jacket", "dress", "pants", "jeans", "shoe", "sneaker",
		"boot", "hat", "scarf", "coat", "sweater", "hoodie", "handbag",
		"purse", "wallet", "belt", "sunglasses", "apparel", "clothing",
	},
	CategoryHomeGarden: {
		"furniture", "chair", "table", "sofa", "lamp", "rug", "curtain",
		"cookware", "pan", "knife", "blender", "vacuum", "planter",
		"garden", "tool", "drill", "kitchen", "mug", "vase", "pillow",
	},
	CategoryToysGames: {
		"toy", "lego", "doll", "puzzle", "board game", "action figure",
		"plush", "playset", "game", "nerf",
	},
	CategoryBooksMedia: {
		"book", "novel", "textbook", "magazine", "vinyl", "record",
		"dvd", "blu-ray", "cd", "comic",
	},
	CategorySports: {
		"bicycle", "bike", "skateboard", "tent", "backpack", "dumbbell",
		"treadmill", "golf", "racket", "ball", "ski", "snowboard",
		"fishing", "helmet", "yoga", "fitness",
	},
	CategoryBeauty: {
		"makeup", "perfume", "cologne", "skincare", "shampoo", "hair dryer",
		"trimmer", "razor", "cosmetic", "lotion",
	},
	CategoryAutomotive: {
		"car", "tire", "wheel", "engine", "motorcycle", "bumper",
		"headlight", "automotive", "dashboard", "brake",
	},
	CategoryCollectible: {
		"collectible", "antique", "vintage", "trading card", "coin",
		"stamp", "figurine", "memorabilia", "autograph",
	},
}

// ClassifyCategory matches the concatenated, lower-cased detection text against
// each category's keyword set in order and returns the first match.
// No match yields CategoryOther.
func ClassifyCategory(primaryObject string, tags []string) Category {
	text := strings.ToLower(primaryObject + " " + strings.Join(tags, " "))

	for _, cat := range AllCategories {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(text, kw) {
				return cat
			}
		}
	}
	return CategoryOther
}

// ValidCategory reports whether s is one of the closed category values.
func ValidCategory(s string) bool {
	for _, cat := range AllCategories {
		if string(cat) == s {
			return true
		}
	}
	return false
}
