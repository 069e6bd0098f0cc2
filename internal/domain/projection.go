package domain

import (
	"encoding/json"
	"sort"
)

// ProjectionEntry is one quantity threshold in a product's merged discount
// list: buy at least MinQuantity, get PercentOff percent off.
type ProjectionEntry struct {
	MinQuantity int `json:"min_quantity"`
	PercentOff  int `json:"percent_off"`
}

// BuildProjection computes the derived discount list for one product across
// every rule that targets it. Tiers with a non-positive threshold or a
// percentage outside [0,100] are skipped silently. Colliding thresholds keep
// the highest percentage. The result is sorted ascending by threshold with no
// duplicates. Pure and deterministic for a given rule set.
func BuildProjection(rules []Rule, id ProductID) []ProjectionEntry {
	best := make(map[int]int)
	for _, rule := range rules {
		if !containsProduct(RuleProductIDs(rule), id) {
			continue
		}
		for _, tier := range rule.Tiers {
			if tier.MinQuantity < 1 || tier.PercentOff < 0 || tier.PercentOff > 100 {
				continue
			}
			if current, ok := best[tier.MinQuantity]; !ok || tier.PercentOff > current {
				best[tier.MinQuantity] = tier.PercentOff
			}
		}
	}

	out := make([]ProjectionEntry, 0, len(best))
	for quantity, percent := range best {
		out = append(out, ProjectionEntry{MinQuantity: quantity, PercentOff: percent})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinQuantity < out[j].MinQuantity })
	return out
}

// EncodeProjection serializes a projection for the per-product metadata slot.
// An empty projection encodes as "[]" so downstream readers always receive a
// JSON array.
func EncodeProjection(entries []ProjectionEntry) string {
	if len(entries) == 0 {
		return "[]"
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func containsProduct(ids []ProductID, id ProductID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
