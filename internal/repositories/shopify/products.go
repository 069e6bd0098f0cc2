package shopify

import (
	"context"
	"fmt"

	"github.com/jmartinez0/quantity-breaks/internal/domain"
	"github.com/jmartinez0/quantity-breaks/internal/repositories"
)

const productSummariesQuery = `query productSummaries($ids: [ID!]!) {
  nodes(ids: $ids) {
    ... on Product {
      id
      title
      featuredImage { url }
    }
  }
}`

const productSearchQuery = `query productSearch($query: String!, $first: Int!, $after: String) {
  products(query: $query, first: $first, after: $after) {
    edges {
      cursor
      node {
        id
        title
        featuredImage { url }
      }
    }
    pageInfo { hasNextPage }
  }
}`

const shopIDQuery = `query shopId { shop { id } }`

type productNodePayload struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	FeaturedImage *struct {
		URL string `json:"url"`
	} `json:"featuredImage"`
}

func (n productNodePayload) summary() domain.ProductSummary {
	summary := domain.ProductSummary{ID: domain.ProductID(n.ID), Title: n.Title}
	if n.FeaturedImage != nil {
		summary.ImageURL = n.FeaturedImage.URL
	}
	return summary
}

// ProductSummaries resolves display data for the given product IDs. The
// response keeps the input order, and products that no longer exist degrade
// to an entry whose title is the raw ID so admin screens can still render
// the row.
func (c *Client) ProductSummaries(ctx context.Context, ids []domain.ProductID) ([]domain.ProductSummary, error) {
	if len(ids) == 0 {
		return []domain.ProductSummary{}, nil
	}
	var payload struct {
		Nodes []*productNodePayload `json:"nodes"`
	}
	if err := c.execute(ctx, productSummariesQuery, map[string]any{"ids": gidStrings(ids)}, &payload); err != nil {
		return nil, fmt.Errorf("shopify: product summaries: %w", err)
	}

	summaries := make([]domain.ProductSummary, 0, len(ids))
	for i, id := range ids {
		// nodes() is positional: missing products come back as null at
		// the requested index.
		if i < len(payload.Nodes) && payload.Nodes[i] != nil && payload.Nodes[i].ID != "" {
			summaries = append(summaries, payload.Nodes[i].summary())
			continue
		}
		summaries = append(summaries, domain.ProductSummary{ID: id, Title: string(id)})
	}
	return summaries, nil
}

// SearchProducts runs a title search over the shop catalog and returns one
// page of results plus the cursor for the next one.
func (c *Client) SearchProducts(ctx context.Context, query repositories.ProductSearchQuery) (repositories.ProductPage, error) {
	first := query.First
	if first <= 0 {
		first = 20
	}
	variables := map[string]any{
		"query": fmt.Sprintf("title:*%s*", query.Query),
		"first": first,
	}
	if query.After != "" {
		variables["after"] = query.After
	}

	var payload struct {
		Products struct {
			Edges []struct {
				Cursor string             `json:"cursor"`
				Node   productNodePayload `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
		} `json:"products"`
	}
	if err := c.execute(ctx, productSearchQuery, variables, &payload); err != nil {
		return repositories.ProductPage{}, fmt.Errorf("shopify: product search: %w", err)
	}

	page := repositories.ProductPage{
		Items:   make([]domain.ProductSummary, 0, len(payload.Products.Edges)),
		HasNext: payload.Products.PageInfo.HasNextPage,
	}
	for _, edge := range payload.Products.Edges {
		page.Items = append(page.Items, edge.Node.summary())
		page.EndCursor = edge.Cursor
	}
	return page, nil
}

// ShopID returns the shop's global ID, fetching it once and caching it for
// the life of the client. The shop ID owns the discount configuration
// metadata, so nearly every write path asks for it.
func (c *Client) ShopID(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.shopID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var payload struct {
		Shop struct {
			ID string `json:"id"`
		} `json:"shop"`
	}
	if err := c.execute(ctx, shopIDQuery, nil, &payload); err != nil {
		return "", fmt.Errorf("shopify: shop id: %w", err)
	}
	if payload.Shop.ID == "" {
		return "", fmt.Errorf("shopify: shop id missing from response")
	}

	c.mu.Lock()
	c.shopID = payload.Shop.ID
	c.mu.Unlock()
	return payload.Shop.ID, nil
}
