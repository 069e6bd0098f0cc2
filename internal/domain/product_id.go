package domain

import "strings"

// ProductIDPrefix is the canonical global-ID prefix for catalog products.
// Identifiers lacking this prefix are invalid and are never persisted.
const ProductIDPrefix = "gid://shopify/Product/"

// ProductID is the canonical reference to a catalog product.
type ProductID string

// Valid reports whether the identifier carries the canonical prefix.
func (id ProductID) Valid() bool {
	return strings.HasPrefix(string(id), ProductIDPrefix)
}

// String returns the identifier as a plain string.
func (id ProductID) String() string {
	return string(id)
}

// NormalizeID canonicalizes one product reference. It accepts a bare
// identifier string or a record carrying an "id" field, and returns the
// identifier only when it matches the canonical prefix; anything else
// normalizes to empty.
func NormalizeID(v any) ProductID {
	var candidate string
	switch val := v.(type) {
	case ProductID:
		candidate = string(val)
	case string:
		candidate = val
	case map[string]any:
		candidate, _ = val["id"].(string)
	default:
		return ""
	}
	candidate = strings.TrimSpace(candidate)
	if !strings.HasPrefix(candidate, ProductIDPrefix) {
		return ""
	}
	return ProductID(candidate)
}

// NormalizeIDSet maps NormalizeID over a heterogeneous collection, discarding
// empties and deduplicating while preserving first-seen order. Non-list input
// is treated as an empty collection. The result is stable under repeated
// application.
func NormalizeIDSet(v any) []ProductID {
	var items []any
	switch val := v.(type) {
	case []any:
		items = val
	case []string:
		items = make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
	case []ProductID:
		items = make([]any, len(val))
		for i, id := range val {
			items[i] = id
		}
	default:
		return []ProductID{}
	}

	seen := make(map[ProductID]struct{}, len(items))
	out := make([]ProductID, 0, len(items))
	for _, item := range items {
		id := NormalizeID(item)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
