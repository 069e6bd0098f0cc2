package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmartinez0/quantity-breaks/internal/platform/auth"
	"github.com/jmartinez0/quantity-breaks/internal/platform/httpx"
	"github.com/jmartinez0/quantity-breaks/internal/platform/pagination"
	"github.com/jmartinez0/quantity-breaks/internal/services"
)

const maxSearchPageSize = 50

// ProductHandlers exposes catalog lookups for the rule product picker.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	limiter *RequestLimiter
}

// ProductOption customises the product handlers.
type ProductOption func(*ProductHandlers)

// WithProductRateLimiter throttles product routes with the supplied limiter.
func WithProductRateLimiter(limiter *RequestLimiter) ProductOption {
	return func(h *ProductHandlers) {
		h.limiter = limiter
	}
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService, opts ...ProductOption) *ProductHandlers {
	h := &ProductHandlers{
		authn:   authn,
		catalog: catalog,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireSession())
	}
	if h.limiter != nil {
		r.Use(h.limiter.Middleware())
	}
	r.Get("/", h.listProducts)
	r.Get("/search", h.searchProducts)
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	ids := parseIDsParam(r.URL.Query()["ids"])
	if len(ids) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "ids query parameter is required", http.StatusBadRequest))
		return
	}

	summaries, err := h.catalog.ProductSummaries(ctx, ids)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	if summaries == nil {
		summaries = []services.ProductSummary{}
	}

	writeJSONResponse(w, http.StatusOK, productListResponse{Products: summaries})
}

func (h *ProductHandlers) searchProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "search query is required", http.StatusBadRequest))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{MaxPageSize: maxSearchPageSize})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_pagination", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.SearchProducts(ctx, services.ProductSearchFilter{
		Query:     query,
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	if page.Items == nil {
		page.Items = []services.ProductSummary{}
	}

	writeJSONResponse(w, http.StatusOK, productSearchResponse{
		Products:      page.Items,
		NextPageToken: page.NextPageToken,
	})
}

// parseIDsParam accepts both repeated ids params and comma-separated lists.
func parseIDsParam(values []string) []string {
	ids := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				ids = append(ids, part)
			}
		}
	}
	return ids
}

type productListResponse struct {
	Products []services.ProductSummary `json:"products"`
}

type productSearchResponse struct {
	Products      []services.ProductSummary `json:"products"`
	NextPageToken string                    `json:"nextPageToken,omitempty"`
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidQuery):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "search query is required", http.StatusBadRequest))
	case errors.Is(err, pagination.ErrInvalidPageToken), errors.Is(err, pagination.ErrInvalidPageSize):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_pagination", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "product catalog request failed", http.StatusBadGateway))
	}
}
