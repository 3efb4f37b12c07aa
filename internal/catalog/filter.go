package catalog

import (
	"strings"

	"swipe-match-backend/internal/models"
)

// Filter returns the candidates matching every filter that is set. The input
// slice is not modified.
func Filter(candidates []models.Candidate, f models.Filters) []models.Candidate {
	filtered := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if matchesCuisine(c, f.Cuisines) && matchesPrice(c, f.PriceRange) && matchesFulfillment(c, f.FulfillmentType) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func matchesCuisine(c models.Candidate, cuisines []string) bool {
	if len(cuisines) == 0 {
		return true
	}
	for _, cat := range c.Categories {
		title := strings.ToLower(cat.Title)
		for _, cuisine := range cuisines {
			cuisine = strings.ToLower(cuisine)
			if strings.Contains(cat.Alias, cuisine) || strings.Contains(title, cuisine) {
				return true
			}
		}
	}
	return false
}

// matchesPrice excludes candidates without a known tier once a price filter is set
func matchesPrice(c models.Candidate, tiers []int) bool {
	if len(tiers) == 0 {
		return true
	}
	for _, t := range tiers {
		if c.PriceTier == t {
			return true
		}
	}
	return false
}

func matchesFulfillment(c models.Candidate, fulfillment string) bool {
	switch fulfillment {
	case models.FulfillmentDelivery, models.FulfillmentPickup:
		for _, f := range c.Fulfillment {
			if f == fulfillment {
				return true
			}
		}
		return false
	default:
		return true
	}
}
