package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmartinez0/quantity-breaks/internal/domain"
	"github.com/jmartinez0/quantity-breaks/internal/platform/textutil"
	"github.com/jmartinez0/quantity-breaks/internal/repositories"
)

const (
	rulesLoggerEventStatusFailed     = "rules.discount.status_failed"
	rulesLoggerEventProjectionFailed = "rules.projection.batch_failed"
	rulesLoggerEventCommitted        = "rules.document.committed"
)

// RulesServiceDeps bundles constructor inputs for the rules service.
type RulesServiceDeps struct {
	Discounts repositories.DiscountGateway
	Metadata  repositories.MetadataStore
	Shop      repositories.ShopGateway
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type rulesService struct {
	discounts repositories.DiscountGateway
	metadata  repositories.MetadataStore
	shop      repositories.ShopGateway
	logger    func(context.Context, string, map[string]any)
}

// NewRulesService wires the reconciliation engine with the supplied gateways.
func NewRulesService(deps RulesServiceDeps) (RulesService, error) {
	if deps.Discounts == nil {
		return nil, fmt.Errorf("rules service: discount gateway is required")
	}
	if deps.Metadata == nil {
		return nil, fmt.Errorf("rules service: metadata store is required")
	}
	if deps.Shop == nil {
		return nil, fmt.Errorf("rules service: shop gateway is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &rulesService{
		discounts: deps.Discounts,
		metadata:  deps.Metadata,
		shop:      deps.Shop,
		logger:    logger,
	}, nil
}

func (s *rulesService) ListRules(ctx context.Context) ([]RuleSummary, error) {
	_, doc, err := s.loadDocument(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]RuleSummary, 0, len(doc.Discounts))
	for _, rule := range doc.Discounts {
		summaries = append(summaries, RuleSummary{
			Slug:         textutil.Slugify(rule.Title),
			Title:        rule.Title,
			Status:       rule.Status,
			TierCount:    len(rule.Tiers),
			ProductCount: len(domain.RuleProductIDs(rule)),
		})
	}
	return summaries, nil
}

func (s *rulesService) GetRule(ctx context.Context, slug string) (Rule, error) {
	_, doc, err := s.loadDocument(ctx)
	if err != nil {
		return Rule{}, err
	}
	idx := findRuleIndex(doc, strings.TrimSpace(slug))
	if idx < 0 {
		return Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, slug)
	}
	return doc.Discounts[idx], nil
}

// UpdateRule replaces one rule's stored state with the desired state and
// reconciles the platform against the difference. Remote mutations run
// sequentially and a rejection aborts the edit with the document untouched;
// once the document write succeeds the edit is committed and only projection
// rewrites can still fail.
func (s *rulesService) UpdateRule(ctx context.Context, slug string, cmd UpdateRuleCommand) (RuleMutationResult, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return RuleMutationResult{}, fmt.Errorf("%w: slug is required", ErrRuleValidation)
	}

	shopID, doc, err := s.loadDocument(ctx)
	if err != nil {
		return RuleMutationResult{}, err
	}
	idx := findRuleIndex(doc, slug)
	if idx < 0 {
		return RuleMutationResult{}, fmt.Errorf("%w: %s", ErrRuleNotFound, slug)
	}
	previous := doc.Discounts[idx]

	desired := cmd.Rule
	desired.Title = strings.TrimSpace(desired.Title)
	desired.Products = domain.NormalizeIDSet(desired.Products)
	if err := validateRule(desired); err != nil {
		return RuleMutationResult{}, err
	}

	tiers := make([]domain.Tier, len(desired.Tiers))
	copy(tiers, desired.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinQuantity < tiers[j].MinQuantity })
	desired.Tiers = tiers

	previousProducts := domain.RuleProductIDs(previous)
	added := diffIDs(desired.Products, previousProducts)
	removed := diffIDs(previousProducts, desired.Products)
	productsChanged := len(added) > 0 || len(removed) > 0

	previousByID := make(map[string]domain.Tier, len(previous.Tiers))
	for _, tier := range previous.Tiers {
		if tier.DiscountID != "" {
			previousByID[tier.DiscountID] = tier
		}
	}

	for i := range tiers {
		tier := &tiers[i]
		if tier.DiscountID == "" {
			id, err := s.discounts.CreateAutomaticDiscount(ctx, repositories.DiscountSpec{
				Title:           tier.Title,
				MinimumQuantity: tier.MinQuantity,
				PercentOff:      tier.PercentOff,
				ProductsToAdd:   desired.Products,
			})
			if err != nil {
				return RuleMutationResult{}, remoteMutationError("create discount", err)
			}
			tier.DiscountID = id
			continue
		}

		stored, known := previousByID[tier.DiscountID]
		fieldsChanged := !known ||
			stored.Title != tier.Title ||
			stored.MinQuantity != tier.MinQuantity ||
			stored.PercentOff != tier.PercentOff

		switch {
		case fieldsChanged:
			err := s.discounts.UpdateAutomaticDiscount(ctx, tier.DiscountID, repositories.DiscountSpec{
				Title:           tier.Title,
				MinimumQuantity: tier.MinQuantity,
				PercentOff:      tier.PercentOff,
				ProductsToAdd:   desired.Products,
			})
			if err != nil {
				return RuleMutationResult{}, remoteMutationError("update discount", err)
			}
		case productsChanged:
			err := s.discounts.UpdateAutomaticDiscount(ctx, tier.DiscountID, repositories.DiscountSpec{
				Title:            tier.Title,
				MinimumQuantity:  tier.MinQuantity,
				PercentOff:       tier.PercentOff,
				ProductsToAdd:    added,
				ProductsToRemove: removed,
			})
			if err != nil {
				return RuleMutationResult{}, remoteMutationError("update discount products", err)
			}
		}
	}

	keptIDs := make(map[string]struct{}, len(tiers))
	for _, tier := range tiers {
		if tier.DiscountID != "" {
			keptIDs[tier.DiscountID] = struct{}{}
		}
	}
	for _, tier := range previous.Tiers {
		if tier.DiscountID == "" {
			continue
		}
		if _, kept := keptIDs[tier.DiscountID]; kept {
			continue
		}
		if _, err := s.discounts.DeleteAutomaticDiscount(ctx, tier.DiscountID); err != nil {
			return RuleMutationResult{}, remoteMutationError("delete discount", err)
		}
	}

	s.propagateStatus(ctx, desired.Status, tiers)

	doc.Discounts[idx] = desired
	if err := s.persistDocument(ctx, shopID, doc); err != nil {
		return RuleMutationResult{}, err
	}

	affected := unionIDs(previousProducts, desired.Products)
	projErrs := s.writeProjections(ctx, doc, affected)

	return RuleMutationResult{
		Rule:             desired,
		Slug:             textutil.Slugify(desired.Title),
		ProjectionErrors: projErrs,
	}, nil
}

// CreateRule materializes one new tier as a remote discount and appends it to
// the rule addressed by the title's slug, creating the rule when no match
// exists. The supplied product selection becomes the rule's product set.
func (s *rulesService) CreateRule(ctx context.Context, cmd CreateRuleCommand) (RuleMutationResult, error) {
	title := strings.TrimSpace(cmd.Title)
	discountTitle := strings.TrimSpace(cmd.DiscountTitle)
	products := domain.NormalizeIDSet(cmd.SelectedProducts)

	switch {
	case title == "":
		return RuleMutationResult{}, fmt.Errorf("%w: title is required", ErrRuleValidation)
	case discountTitle == "":
		return RuleMutationResult{}, fmt.Errorf("%w: discount title is required", ErrRuleValidation)
	case cmd.MinimumQuantity < 1:
		return RuleMutationResult{}, fmt.Errorf("%w: minimum quantity must be at least 1", ErrRuleValidation)
	case cmd.PercentOff < 1 || cmd.PercentOff > 100:
		return RuleMutationResult{}, fmt.Errorf("%w: percent off must be between 1 and 100", ErrRuleValidation)
	case len(products) == 0:
		return RuleMutationResult{}, fmt.Errorf("%w: at least one product is required", ErrRuleValidation)
	}

	shopID, doc, err := s.loadDocument(ctx)
	if err != nil {
		return RuleMutationResult{}, err
	}

	discountID, err := s.discounts.CreateAutomaticDiscount(ctx, repositories.DiscountSpec{
		Title:           discountTitle,
		MinimumQuantity: cmd.MinimumQuantity,
		PercentOff:      cmd.PercentOff,
		ProductsToAdd:   products,
	})
	if err != nil {
		return RuleMutationResult{}, remoteMutationError("create discount", err)
	}
	tier := domain.Tier{
		Title:       discountTitle,
		MinQuantity: cmd.MinimumQuantity,
		PercentOff:  cmd.PercentOff,
		DiscountID:  discountID,
	}

	var (
		rule     domain.Rule
		affected []domain.ProductID
	)
	idx := findRuleIndex(doc, textutil.Slugify(title))
	if idx >= 0 {
		rule = doc.Discounts[idx]
		previousProducts := domain.RuleProductIDs(rule)
		rule.Tiers = append(rule.Tiers, tier)
		sort.SliceStable(rule.Tiers, func(i, j int) bool { return rule.Tiers[i].MinQuantity < rule.Tiers[j].MinQuantity })
		rule.Products = products
		if rule.Status == domain.RuleStatusInactive {
			// The rule stays dormant; the fresh discount starts active and
			// must follow suit.
			if err := s.discounts.DeactivateAutomaticDiscount(ctx, discountID); err != nil {
				s.logger(ctx, rulesLoggerEventStatusFailed, map[string]any{
					"discountId": discountID,
					"status":     string(domain.RuleStatusInactive),
					"error":      err.Error(),
				})
			}
		}
		doc.Discounts[idx] = rule
		affected = unionIDs(previousProducts, products)
	} else {
		rule = domain.Rule{
			Title:    title,
			Status:   domain.RuleStatusActive,
			Products: products,
			Tiers:    []domain.Tier{tier},
		}
		doc.Discounts = append(doc.Discounts, rule)
		affected = products
	}

	if err := s.persistDocument(ctx, shopID, doc); err != nil {
		return RuleMutationResult{}, err
	}
	projErrs := s.writeProjections(ctx, doc, affected)

	return RuleMutationResult{
		Rule:             rule,
		Slug:             textutil.Slugify(rule.Title),
		ProjectionErrors: projErrs,
	}, nil
}

// DeleteRule removes a rule and every remote discount it owns. Discount
// deletion failures abort before the document is touched; projection failures
// after the committed removal are reported on the result.
func (s *rulesService) DeleteRule(ctx context.Context, slug string) (DeleteRuleResult, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return DeleteRuleResult{}, fmt.Errorf("%w: slug is required", ErrRuleValidation)
	}

	shopID, doc, err := s.loadDocument(ctx)
	if err != nil {
		return DeleteRuleResult{}, err
	}
	idx := findRuleIndex(doc, slug)
	if idx < 0 {
		return DeleteRuleResult{}, fmt.Errorf("%w: %s", ErrRuleNotFound, slug)
	}
	rule := doc.Discounts[idx]

	for _, tier := range rule.Tiers {
		if tier.DiscountID == "" {
			continue
		}
		if _, err := s.discounts.DeleteAutomaticDiscount(ctx, tier.DiscountID); err != nil {
			return DeleteRuleResult{}, remoteMutationError("delete discount", err)
		}
	}

	affected := domain.RuleProductIDs(rule)
	doc.Discounts = append(doc.Discounts[:idx], doc.Discounts[idx+1:]...)
	if err := s.persistDocument(ctx, shopID, doc); err != nil {
		return DeleteRuleResult{}, err
	}

	return DeleteRuleResult{ProjectionErrors: s.writeProjections(ctx, doc, affected)}, nil
}

// loadDocument resolves the shop owner and reads the configuration document.
// A missing metafield decodes to the empty document.
func (s *rulesService) loadDocument(ctx context.Context) (string, domain.Document, error) {
	shopID, err := s.shop.ShopID(ctx)
	if err != nil {
		return "", domain.Document{}, fmt.Errorf("%w: resolve shop: %v", ErrRulePersistence, err)
	}
	raw, ok, err := s.metadata.Metadata(ctx, shopID, domain.MetadataNamespace, domain.MetadataKey)
	if err != nil {
		return "", domain.Document{}, fmt.Errorf("%w: read configuration: %v", ErrRulePersistence, err)
	}
	if !ok {
		return shopID, domain.Document{Discounts: []domain.Rule{}}, nil
	}
	return shopID, domain.DecodeDocument(raw), nil
}

func (s *rulesService) persistDocument(ctx context.Context, shopID string, doc domain.Document) error {
	encoded, err := domain.EncodeDocument(doc)
	if err != nil {
		return fmt.Errorf("%w: encode configuration: %v", ErrRulePersistence, err)
	}
	err = s.metadata.SetMetadata(ctx, []repositories.MetadataEntry{{
		OwnerID:   shopID,
		Namespace: domain.MetadataNamespace,
		Key:       domain.MetadataKey,
		Value:     encoded,
	}})
	if err != nil {
		return fmt.Errorf("%w: write configuration: %v", ErrRulePersistence, err)
	}
	s.logger(ctx, rulesLoggerEventCommitted, map[string]any{"rules": len(doc.Discounts)})
	return nil
}

// propagateStatus pushes the rule status onto every tier discount. Failures
// are logged and swallowed: the discounts exist and the document write must
// still happen.
func (s *rulesService) propagateStatus(ctx context.Context, status domain.RuleStatus, tiers []domain.Tier) {
	for _, tier := range tiers {
		if tier.DiscountID == "" {
			continue
		}
		var err error
		if status == domain.RuleStatusActive {
			err = s.discounts.ActivateAutomaticDiscount(ctx, tier.DiscountID)
		} else {
			err = s.discounts.DeactivateAutomaticDiscount(ctx, tier.DiscountID)
		}
		if err != nil {
			s.logger(ctx, rulesLoggerEventStatusFailed, map[string]any{
				"discountId": tier.DiscountID,
				"status":     string(status),
				"error":      err.Error(),
			})
		}
	}
}

// writeProjections recomputes and writes the projection metafield for each
// affected product, batched to the platform's bulk-write ceiling. A failed
// batch is recorded and later batches still run.
func (s *rulesService) writeProjections(ctx context.Context, doc domain.Document, ids []domain.ProductID) []string {
	if len(ids) == 0 {
		return nil
	}
	var failures []string
	for start := 0; start < len(ids); start += repositories.MaxMetadataBatch {
		end := start + repositories.MaxMetadataBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		entries := make([]repositories.MetadataEntry, 0, len(batch))
		for _, id := range batch {
			entries = append(entries, repositories.MetadataEntry{
				OwnerID:   string(id),
				Namespace: domain.MetadataNamespace,
				Key:       domain.MetadataKey,
				Value:     domain.EncodeProjection(domain.BuildProjection(doc.Discounts, id)),
			})
		}
		if err := s.metadata.SetMetadata(ctx, entries); err != nil {
			s.logger(ctx, rulesLoggerEventProjectionFailed, map[string]any{
				"products": len(batch),
				"error":    err.Error(),
			})
			failures = append(failures, fmt.Errorf("%w: batch of %d products: %v", ErrRuleProjection, len(batch), err).Error())
		}
	}
	return failures
}

func validateRule(rule domain.Rule) error {
	if rule.Title == "" {
		return fmt.Errorf("%w: title is required", ErrRuleValidation)
	}
	if !rule.Status.Valid() {
		return fmt.Errorf("%w: status must be active or inactive", ErrRuleValidation)
	}
	if len(rule.Products) == 0 {
		return fmt.Errorf("%w: at least one product is required", ErrRuleValidation)
	}
	if len(rule.Tiers) == 0 {
		return fmt.Errorf("%w: at least one tier is required", ErrRuleValidation)
	}
	for i, tier := range rule.Tiers {
		if strings.TrimSpace(tier.Title) == "" {
			return fmt.Errorf("%w: tier %d: title is required", ErrRuleValidation, i+1)
		}
		if tier.MinQuantity < 1 {
			return fmt.Errorf("%w: tier %d: minimum quantity must be at least 1", ErrRuleValidation, i+1)
		}
		if tier.PercentOff < 0 || tier.PercentOff > 100 {
			return fmt.Errorf("%w: tier %d: percent off must be between 0 and 100", ErrRuleValidation, i+1)
		}
	}
	return nil
}

func findRuleIndex(doc domain.Document, slug string) int {
	for i, rule := range doc.Discounts {
		if textutil.Slugify(rule.Title) == slug {
			return i
		}
	}
	return -1
}

// remoteMutationError wraps a gateway failure so callers can match the
// sentinel while still unwrapping the platform's user errors.
func remoteMutationError(op string, err error) error {
	var userErrs *repositories.UserErrorList
	if errors.As(err, &userErrs) {
		return fmt.Errorf("%w: %s: %w", ErrRemoteMutation, op, userErrs)
	}
	return fmt.Errorf("%w: %s: %v", ErrRemoteMutation, op, err)
}

// diffIDs returns the members of left absent from right, first-seen order preserved.
func diffIDs(left, right []domain.ProductID) []domain.ProductID {
	if len(left) == 0 {
		return nil
	}
	exclude := make(map[domain.ProductID]struct{}, len(right))
	for _, id := range right {
		exclude[id] = struct{}{}
	}
	var out []domain.ProductID
	for _, id := range left {
		if _, ok := exclude[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func unionIDs(sets ...[]domain.ProductID) []domain.ProductID {
	seen := make(map[domain.ProductID]struct{})
	var out []domain.ProductID
	for _, set := range sets {
		for _, id := range set {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
