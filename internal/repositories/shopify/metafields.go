package shopify

import (
	"context"
	"fmt"

	"github.com/jmartinez0/quantity-breaks/internal/repositories"
)

const metafieldsSetMutation = `mutation metafieldsSet($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    metafields { id }
    userErrors { field message }
  }
}`

const metafieldQuery = `query metafieldValue($ownerId: ID!, $namespace: String!, $key: String!) {
  node(id: $ownerId) {
    ... on HasMetafields {
      metafield(namespace: $namespace, key: $key) { value }
    }
  }
}`

// SetMetadata writes up to repositories.MaxMetadataBatch metadata values in
// one bulk call. Larger batches are rejected here so chunking stays an
// explicit caller decision.
func (c *Client) SetMetadata(ctx context.Context, entries []repositories.MetadataEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if len(entries) > repositories.MaxMetadataBatch {
		return fmt.Errorf("shopify: metafieldsSet accepts at most %d entries, got %d", repositories.MaxMetadataBatch, len(entries))
	}

	metafields := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		metafields = append(metafields, map[string]any{
			"ownerId":   entry.OwnerID,
			"namespace": entry.Namespace,
			"key":       entry.Key,
			"type":      "json",
			"value":     entry.Value,
		})
	}

	var payload struct {
		Result struct {
			Metafields []struct {
				ID string `json:"id"`
			} `json:"metafields"`
			UserErrors []userErrorPayload `json:"userErrors"`
		} `json:"metafieldsSet"`
	}
	if err := c.execute(ctx, metafieldsSetMutation, map[string]any{"metafields": metafields}, &payload); err != nil {
		return fmt.Errorf("shopify: set metadata: %w", err)
	}
	return userErrorList("metafieldsSet", payload.Result.UserErrors)
}

// Metadata reads one metadata value by owner, namespace, and key. The second
// return is false when the owner or the slot does not exist.
func (c *Client) Metadata(ctx context.Context, ownerID, namespace, key string) (string, bool, error) {
	variables := map[string]any{
		"ownerId":   ownerID,
		"namespace": namespace,
		"key":       key,
	}
	var payload struct {
		Node *struct {
			Metafield *struct {
				Value string `json:"value"`
			} `json:"metafield"`
		} `json:"node"`
	}
	if err := c.execute(ctx, metafieldQuery, variables, &payload); err != nil {
		return "", false, fmt.Errorf("shopify: read metadata: %w", err)
	}
	if payload.Node == nil || payload.Node.Metafield == nil {
		return "", false, nil
	}
	return payload.Node.Metafield.Value, true, nil
}
