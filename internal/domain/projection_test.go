package domain

import (
	"reflect"
	"sort"
	"testing"
)

func TestBuildProjectionMergesAcrossRules(t *testing.T) {
	rules := []Rule{
		{
			Title:    "Mugs",
			Status:   RuleStatusActive,
			Products: []ProductID{"gid://shopify/Product/1", "gid://shopify/Product/2"},
			Tiers: []Tier{
				{Title: "5+", MinQuantity: 5, PercentOff: 10},
				{Title: "10+", MinQuantity: 10, PercentOff: 20},
			},
		},
		{
			Title:    "Everything",
			Status:   RuleStatusActive,
			Products: []ProductID{"gid://shopify/Product/2"},
			Tiers: []Tier{
				{Title: "5 again", MinQuantity: 5, PercentOff: 15},
				{Title: "20+", MinQuantity: 20, PercentOff: 30},
			},
		},
	}

	got := BuildProjection(rules, "gid://shopify/Product/2")
	want := []ProjectionEntry{
		{MinQuantity: 5, PercentOff: 15},
		{MinQuantity: 10, PercentOff: 20},
		{MinQuantity: 20, PercentOff: 30},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v got %#v", want, got)
	}

	got = BuildProjection(rules, "gid://shopify/Product/1")
	want = []ProjectionEntry{
		{MinQuantity: 5, PercentOff: 10},
		{MinQuantity: 10, PercentOff: 20},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v got %#v", want, got)
	}
}

func TestBuildProjectionSkipsInvalidTiers(t *testing.T) {
	rules := []Rule{{
		Title:    "Partially broken",
		Status:   RuleStatusActive,
		Products: []ProductID{"gid://shopify/Product/1"},
		Tiers: []Tier{
			{Title: "zero quantity", MinQuantity: 0, PercentOff: 10},
			{Title: "negative percent", MinQuantity: 4, PercentOff: -1},
			{Title: "percent too high", MinQuantity: 6, PercentOff: 101},
			{Title: "fine", MinQuantity: 3, PercentOff: 10},
			{Title: "free", MinQuantity: 8, PercentOff: 0},
		},
	}}

	got := BuildProjection(rules, "gid://shopify/Product/1")
	want := []ProjectionEntry{
		{MinQuantity: 3, PercentOff: 10},
		{MinQuantity: 8, PercentOff: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v got %#v", want, got)
	}
}

func TestBuildProjectionUsesTierProductFallback(t *testing.T) {
	rules := []Rule{{
		Title:  "Legacy",
		Status: RuleStatusActive,
		Tiers: []Tier{
			{Title: "5+", MinQuantity: 5, PercentOff: 10, Products: []ProductID{"gid://shopify/Product/7"}},
		},
	}}

	got := BuildProjection(rules, "gid://shopify/Product/7")
	want := []ProjectionEntry{{MinQuantity: 5, PercentOff: 10}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v got %#v", want, got)
	}
	if got := BuildProjection(rules, "gid://shopify/Product/8"); len(got) != 0 {
		t.Fatalf("expected empty projection for uncovered product got %#v", got)
	}
}

func TestBuildProjectionSortedWithoutDuplicates(t *testing.T) {
	rules := []Rule{{
		Title:    "Shuffled",
		Status:   RuleStatusActive,
		Products: []ProductID{"gid://shopify/Product/1"},
		Tiers: []Tier{
			{Title: "c", MinQuantity: 50, PercentOff: 5},
			{Title: "a", MinQuantity: 2, PercentOff: 1},
			{Title: "b", MinQuantity: 10, PercentOff: 3},
			{Title: "dup", MinQuantity: 10, PercentOff: 2},
		},
	}}

	got := BuildProjection(rules, "gid://shopify/Product/1")
	if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].MinQuantity < got[j].MinQuantity }) {
		t.Fatalf("expected ascending thresholds got %#v", got)
	}
	seen := map[int]bool{}
	for _, entry := range got {
		if seen[entry.MinQuantity] {
			t.Fatalf("expected unique thresholds got %#v", got)
		}
		seen[entry.MinQuantity] = true
	}
	if len(got) != 3 || got[1].PercentOff != 3 {
		t.Fatalf("expected duplicate threshold to keep highest percent got %#v", got)
	}
}

func TestEncodeProjection(t *testing.T) {
	if got := EncodeProjection(nil); got != "[]" {
		t.Fatalf("expected empty array got %s", got)
	}
	entries := []ProjectionEntry{{MinQuantity: 5, PercentOff: 10}}
	want := `[{"min_quantity":5,"percent_off":10}]`
	if got := EncodeProjection(entries); got != want {
		t.Fatalf("expected %s got %s", want, got)
	}
}
