package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RuleStatus enumerates the lifecycle states of a quantity-break rule.
type RuleStatus string

const (
	// RuleStatusActive marks a rule whose discounts are live on the shop.
	RuleStatusActive RuleStatus = "active"
	// RuleStatusInactive marks a rule whose discounts are deactivated remotely.
	RuleStatusInactive RuleStatus = "inactive"
)

// ParseRuleStatus normalizes user-supplied status text; ok is false for anything
// other than the two known states.
func ParseRuleStatus(v string) (RuleStatus, bool) {
	switch RuleStatus(strings.ToLower(strings.TrimSpace(v))) {
	case RuleStatusActive:
		return RuleStatusActive, true
	case RuleStatusInactive:
		return RuleStatusInactive, true
	default:
		return "", false
	}
}

// Valid reports whether the status is one of the known states.
func (s RuleStatus) Valid() bool {
	return s == RuleStatusActive || s == RuleStatusInactive
}

// Tier is one quantity threshold within a rule. A tier with a non-empty
// DiscountID is materialized as a remote automatic discount; it is created
// remotely exactly once and updated in place on later edits.
type Tier struct {
	Title       string `json:"title"`
	MinQuantity int    `json:"min_quantity"`
	PercentOff  int    `json:"percent_off"`
	DiscountID  string `json:"discount_id,omitempty"`

	// Products carries tier-level product associations written by early
	// versions of the configuration document. Only the codec fallback
	// reads it; newly persisted tiers never set it.
	Products []ProductID `json:"products,omitempty"`
}

// UnmarshalJSON tolerates numeric fields arriving as numbers or numeric
// strings. Unparseable values decode out of range so the tier fails
// validation or is skipped by projection instead of poisoning the document.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title       string          `json:"title"`
		MinQuantity json.RawMessage `json:"min_quantity"`
		PercentOff  json.RawMessage `json:"percent_off"`
		DiscountID  string          `json:"discount_id"`
		Products    json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Title = raw.Title
	t.MinQuantity = looseInt(raw.MinQuantity, 0)
	t.PercentOff = looseInt(raw.PercentOff, -1)
	t.DiscountID = strings.TrimSpace(raw.DiscountID)
	t.Products = NormalizeIDSet(rawValue(raw.Products))
	if len(t.Products) == 0 {
		t.Products = nil
	}
	return nil
}

// Rule is a named discount policy: a status, a target product set, and an
// ordered list of quantity tiers kept sorted ascending by MinQuantity.
type Rule struct {
	Title    string      `json:"title"`
	Status   RuleStatus  `json:"status"`
	Products []ProductID `json:"products"`
	Tiers    []Tier      `json:"tiers"`
}

// UnmarshalJSON normalizes the product set on the way in so identifiers
// lacking the canonical prefix are discarded before they can be re-persisted.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title    string          `json:"title"`
		Status   string          `json:"status"`
		Products json.RawMessage `json:"products"`
		Tiers    []Tier          `json:"tiers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Title = raw.Title
	r.Status = RuleStatus(strings.TrimSpace(raw.Status))
	r.Products = NormalizeIDSet(rawValue(raw.Products))
	r.Tiers = raw.Tiers
	if r.Tiers == nil {
		r.Tiers = []Tier{}
	}
	return nil
}

// ProductSummary is the catalog view of a product used by rule pickers and
// detail responses.
type ProductSummary struct {
	ID       ProductID `json:"id"`
	Title    string    `json:"title"`
	ImageURL string    `json:"imageUrl"`
}

// looseInt parses a JSON number or numeric string into an int, returning
// fallback for anything absent, fractional, or unparseable.
func looseInt(raw json.RawMessage, fallback int) int {
	if len(raw) == 0 {
		return fallback
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f != math.Trunc(f) {
			return fallback
		}
		return int(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, convErr := strconv.Atoi(strings.TrimSpace(s)); convErr == nil {
			return v
		}
	}
	return fallback
}

// rawValue decodes a raw JSON fragment into a generic value, treating
// malformed fragments as absent.
func rawValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
