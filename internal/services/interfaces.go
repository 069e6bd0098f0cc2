package services

import (
	"context"

	"github.com/jmartinez0/quantity-breaks/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Rule           = domain.Rule
	Tier           = domain.Tier
	RuleStatus     = domain.RuleStatus
	ProductID      = domain.ProductID
	ProductSummary = domain.ProductSummary
)

// RuleSummary is the list-view shape of one stored rule.
type RuleSummary struct {
	Slug         string     `json:"slug"`
	Title        string     `json:"title"`
	Status       RuleStatus `json:"status"`
	TierCount    int        `json:"tierCount"`
	ProductCount int        `json:"productCount"`
}

// UpdateRuleCommand carries the full desired state for one rule edit. The
// embedded rule replaces the stored one wholesale; tiers keep their
// discount_id so existing remote discounts are updated rather than recreated.
type UpdateRuleCommand struct {
	Rule Rule
}

// CreateRuleCommand carries the append-path inputs: one new tier for the rule
// addressed by Title, creating the rule when it does not exist yet.
type CreateRuleCommand struct {
	Title            string
	DiscountTitle    string
	MinimumQuantity  int
	PercentOff       int
	SelectedProducts []string
}

// RuleMutationResult reports the canonical post-mutation rule state. A
// populated ProjectionErrors list means the edit committed but one or more
// per-product projection rewrites failed.
type RuleMutationResult struct {
	Rule             Rule
	Slug             string
	ProjectionErrors []string
}

// DeleteRuleResult reports the outcome of a committed rule deletion.
type DeleteRuleResult struct {
	ProjectionErrors []string
}

// RulesService reconciles merchant rule edits against the discount platform:
// it validates desired state, applies the minimal remote discount mutations,
// persists the configuration document, and rewrites per-product projections.
type RulesService interface {
	ListRules(ctx context.Context) ([]RuleSummary, error)
	GetRule(ctx context.Context, slug string) (Rule, error)
	CreateRule(ctx context.Context, cmd CreateRuleCommand) (RuleMutationResult, error)
	UpdateRule(ctx context.Context, slug string, cmd UpdateRuleCommand) (RuleMutationResult, error)
	DeleteRule(ctx context.Context, slug string) (DeleteRuleResult, error)
}

// ProductSearchFilter bundles catalog search inputs from the rule picker UI.
type ProductSearchFilter struct {
	Query     string
	PageSize  int
	PageToken string
}

// ProductSearchPage is one page of catalog search results with the token
// needed to fetch the next page.
type ProductSearchPage struct {
	Items         []ProductSummary
	NextPageToken string
}

// CatalogService reads product display data for rule management screens.
type CatalogService interface {
	ProductSummaries(ctx context.Context, ids []string) ([]ProductSummary, error)
	SearchProducts(ctx context.Context, filter ProductSearchFilter) (ProductSearchPage, error)
}
