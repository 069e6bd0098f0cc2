package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmartinez0/quantity-breaks/internal/domain"
	"github.com/jmartinez0/quantity-breaks/internal/platform/pagination"
	"github.com/jmartinez0/quantity-breaks/internal/repositories"
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products repositories.ProductCatalog
}

type catalogService struct {
	products repositories.ProductCatalog
}

var (
	// ErrCatalogGatewayMissing indicates the product catalog dependency is absent.
	ErrCatalogGatewayMissing = errors.New("catalog service: product catalog is not configured")
	// ErrCatalogInvalidQuery signals an unusable product search input.
	ErrCatalogInvalidQuery = errors.New("catalog service: invalid search query")
)

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, ErrCatalogGatewayMissing
	}
	return &catalogService{products: deps.Products}, nil
}

// ProductSummaries resolves display data for the requested identifiers.
// Identifiers without the canonical prefix are dropped before the lookup.
func (s *catalogService) ProductSummaries(ctx context.Context, ids []string) ([]ProductSummary, error) {
	normalized := domain.NormalizeIDSet(ids)
	if len(normalized) == 0 {
		return []ProductSummary{}, nil
	}
	return s.products.ProductSummaries(ctx, normalized)
}

// SearchProducts runs a token-paginated title search for the rule picker.
func (s *catalogService) SearchProducts(ctx context.Context, filter ProductSearchFilter) (ProductSearchPage, error) {
	query := strings.TrimSpace(filter.Query)
	if query == "" {
		return ProductSearchPage{}, fmt.Errorf("%w: query is required", ErrCatalogInvalidQuery)
	}
	cursor, err := pagination.DecodeToken(filter.PageToken)
	if err != nil {
		return ProductSearchPage{}, err
	}
	params := pagination.Must(pagination.Params{PageSize: filter.PageSize})

	page, err := s.products.SearchProducts(ctx, repositories.ProductSearchQuery{
		Query: query,
		First: params.PageSize,
		After: cursor.After,
	})
	if err != nil {
		return ProductSearchPage{}, err
	}

	result := ProductSearchPage{Items: page.Items}
	if page.HasNext && page.EndCursor != "" {
		token, err := pagination.EncodeToken(pagination.Cursor{After: page.EndCursor})
		if err != nil {
			return ProductSearchPage{}, err
		}
		result.NextPageToken = token
	}
	return result, nil
}
