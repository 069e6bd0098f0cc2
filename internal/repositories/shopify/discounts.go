package shopify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmartinez0/quantity-breaks/internal/domain"
	"github.com/jmartinez0/quantity-breaks/internal/repositories"
)

const discountCreateMutation = `mutation discountAutomaticBasicCreate($discount: DiscountAutomaticBasicInput!) {
  discountAutomaticBasicCreate(automaticBasicDiscount: $discount) {
    automaticDiscountNode { id }
    userErrors { field message }
  }
}`

const discountUpdateMutation = `mutation discountAutomaticBasicUpdate($id: ID!, $discount: DiscountAutomaticBasicInput!) {
  discountAutomaticBasicUpdate(id: $id, automaticBasicDiscount: $discount) {
    automaticDiscountNode { id }
    userErrors { field message }
  }
}`

const discountActivateMutation = `mutation discountAutomaticActivate($id: ID!) {
  discountAutomaticActivate(id: $id) {
    automaticDiscountNode { id }
    userErrors { field message }
  }
}`

const discountDeactivateMutation = `mutation discountAutomaticDeactivate($id: ID!) {
  discountAutomaticDeactivate(id: $id) {
    automaticDiscountNode { id }
    userErrors { field message }
  }
}`

const discountDeleteMutation = `mutation discountAutomaticDelete($id: ID!) {
  discountAutomaticDelete(id: $id) {
    deletedAutomaticDiscountId
    userErrors { field message }
  }
}`

type discountMutationPayload struct {
	Node *struct {
		ID string `json:"id"`
	} `json:"automaticDiscountNode"`
	UserErrors []userErrorPayload `json:"userErrors"`
}

// CreateAutomaticDiscount materializes one tier as a platform automatic
// discount and returns its identifier.
func (c *Client) CreateAutomaticDiscount(ctx context.Context, spec repositories.DiscountSpec) (string, error) {
	variables := map[string]any{
		"discount": discountInput(spec, c.now(), true),
	}
	var payload struct {
		Result discountMutationPayload `json:"discountAutomaticBasicCreate"`
	}
	if err := c.execute(ctx, discountCreateMutation, variables, &payload); err != nil {
		return "", fmt.Errorf("shopify: create automatic discount: %w", err)
	}
	if err := userErrorList("discountAutomaticBasicCreate", payload.Result.UserErrors); err != nil {
		return "", err
	}
	if payload.Result.Node == nil || payload.Result.Node.ID == "" {
		return "", errors.New("shopify: create automatic discount: response carried no id")
	}
	return payload.Result.Node.ID, nil
}

// UpdateAutomaticDiscount edits an existing automatic discount in place.
func (c *Client) UpdateAutomaticDiscount(ctx context.Context, discountID string, spec repositories.DiscountSpec) error {
	variables := map[string]any{
		"id":       discountID,
		"discount": discountInput(spec, c.now(), false),
	}
	var payload struct {
		Result discountMutationPayload `json:"discountAutomaticBasicUpdate"`
	}
	if err := c.execute(ctx, discountUpdateMutation, variables, &payload); err != nil {
		return fmt.Errorf("shopify: update automatic discount: %w", err)
	}
	return userErrorList("discountAutomaticBasicUpdate", payload.Result.UserErrors)
}

// ActivateAutomaticDiscount turns an automatic discount on.
func (c *Client) ActivateAutomaticDiscount(ctx context.Context, discountID string) error {
	var payload struct {
		Result discountMutationPayload `json:"discountAutomaticActivate"`
	}
	if err := c.execute(ctx, discountActivateMutation, map[string]any{"id": discountID}, &payload); err != nil {
		return fmt.Errorf("shopify: activate automatic discount: %w", err)
	}
	return userErrorList("discountAutomaticActivate", payload.Result.UserErrors)
}

// DeactivateAutomaticDiscount turns an automatic discount off.
func (c *Client) DeactivateAutomaticDiscount(ctx context.Context, discountID string) error {
	var payload struct {
		Result discountMutationPayload `json:"discountAutomaticDeactivate"`
	}
	if err := c.execute(ctx, discountDeactivateMutation, map[string]any{"id": discountID}, &payload); err != nil {
		return fmt.Errorf("shopify: deactivate automatic discount: %w", err)
	}
	return userErrorList("discountAutomaticDeactivate", payload.Result.UserErrors)
}

// DeleteAutomaticDiscount removes an automatic discount and returns the
// deleted identifier.
func (c *Client) DeleteAutomaticDiscount(ctx context.Context, discountID string) (string, error) {
	var payload struct {
		Result struct {
			DeletedID  string             `json:"deletedAutomaticDiscountId"`
			UserErrors []userErrorPayload `json:"userErrors"`
		} `json:"discountAutomaticDelete"`
	}
	if err := c.execute(ctx, discountDeleteMutation, map[string]any{"id": discountID}, &payload); err != nil {
		return "", fmt.Errorf("shopify: delete automatic discount: %w", err)
	}
	if err := userErrorList("discountAutomaticDelete", payload.Result.UserErrors); err != nil {
		return "", err
	}
	return payload.Result.DeletedID, nil
}

// discountInput renders a DiscountSpec into the Admin API's automatic basic
// discount input. Tiers combine with product, order, and shipping discounts,
// require a quantity floor, grant a fractional percentage, and apply to
// one-time purchases only. Creates pin the start time; updates leave the
// schedule untouched.
func discountInput(spec repositories.DiscountSpec, now time.Time, includeStart bool) map[string]any {
	products := map[string]any{}
	if len(spec.ProductsToAdd) > 0 {
		products["productsToAdd"] = gidStrings(spec.ProductsToAdd)
	}
	if len(spec.ProductsToRemove) > 0 {
		products["productsToRemove"] = gidStrings(spec.ProductsToRemove)
	}

	input := map[string]any{
		"title": spec.Title,
		"combinesWith": map[string]any{
			"productDiscounts":  true,
			"orderDiscounts":    true,
			"shippingDiscounts": true,
		},
		"minimumRequirement": map[string]any{
			"quantity": map[string]any{
				"greaterThanOrEqualToQuantity": strconv.Itoa(spec.MinimumQuantity),
			},
		},
		"customerGets": map[string]any{
			"value": map[string]any{
				"percentage": float64(spec.PercentOff) / 100,
			},
			"items": map[string]any{
				"products": products,
			},
			"appliesOnOneTimePurchase": true,
			"appliesOnSubscription":    false,
		},
	}
	if includeStart {
		input["startsAt"] = now.Format(time.RFC3339)
	}
	return input
}

func gidStrings(ids []domain.ProductID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
