package domain

import (
	"encoding/json"
	"strings"
)

const (
	// MetadataNamespace owns every piece of quantity-breaks state on the shop.
	MetadataNamespace = "quantity_breaks"
	// MetadataKey addresses both the shop-level configuration document and the
	// per-product projection slot within MetadataNamespace.
	MetadataKey = "discounts"
)

// Document is the single persisted aggregate of all rules. The whole document
// is the unit of persistence: it is read, modified, and written back against
// one shop metadata slot, never partially updated.
type Document struct {
	Discounts []Rule `json:"discounts"`
}

// DecodeDocument parses a raw metadata value into a Document. It fails soft:
// an absent value, invalid syntax, a non-object payload, or a missing or
// non-array discounts field all yield the empty document. Callers never see a
// decode error; lenience here is a contract, not an oversight.
func DecodeDocument(raw string) Document {
	empty := Document{Discounts: []Rule{}}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return empty
	}
	var doc Document
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return empty
	}
	if doc.Discounts == nil {
		doc.Discounts = []Rule{}
	}
	return doc
}

// EncodeDocument serializes the document for persistence. Serialization is
// deterministic: field order is fixed and a decoded canonical document
// re-encodes to the same content.
func EncodeDocument(doc Document) (string, error) {
	if doc.Discounts == nil {
		doc.Discounts = []Rule{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RuleProductIDs resolves the product set a rule targets. Rule-level products
// win when present; otherwise the union of tier-level product lists is used,
// deduplicated in first-seen order. The fallback keeps documents written
// before rule-level products existed addressable.
func RuleProductIDs(rule Rule) []ProductID {
	if ids := NormalizeIDSet(rule.Products); len(ids) > 0 {
		return ids
	}
	seen := make(map[ProductID]struct{})
	merged := make([]ProductID, 0)
	for _, tier := range rule.Tiers {
		for _, id := range NormalizeIDSet(tier.Products) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	return merged
}
