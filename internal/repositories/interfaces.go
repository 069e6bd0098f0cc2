package repositories

import (
	"context"

	"github.com/jmartinez0/quantity-breaks/internal/domain"
)

// Registry exposes typed gateway accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Discounts() DiscountGateway
	Products() ProductCatalog
	MetadataStore() MetadataStore
	Shop() ShopGateway
}

// DiscountSpec describes one automatic discount as the platform must see it:
// a display title, a quantity floor, a flat percentage, and the product
// associations to change. Creates send the full product set through
// ProductsToAdd; updates may send incremental add/remove lists instead.
type DiscountSpec struct {
	Title            string
	MinimumQuantity  int
	PercentOff       int
	ProductsToAdd    []domain.ProductID
	ProductsToRemove []domain.ProductID
}

// DiscountGateway mutates platform-native automatic discount objects. All
// mutations are sequential calls; rejection surfaces as a *UserErrorList.
type DiscountGateway interface {
	CreateAutomaticDiscount(ctx context.Context, spec DiscountSpec) (string, error)
	UpdateAutomaticDiscount(ctx context.Context, discountID string, spec DiscountSpec) error
	ActivateAutomaticDiscount(ctx context.Context, discountID string) error
	DeactivateAutomaticDiscount(ctx context.Context, discountID string) error
	DeleteAutomaticDiscount(ctx context.Context, discountID string) (string, error)
}

// ProductSearchQuery bundles free-text catalog search inputs.
type ProductSearchQuery struct {
	Query string
	First int
	After string
}

// ProductPage is one page of catalog search results with the platform cursor
// needed to continue.
type ProductPage struct {
	Items     []domain.ProductSummary
	EndCursor string
	HasNext   bool
}

// ProductCatalog reads product data from the platform catalog. Summaries for
// unknown identifiers fall back to the identifier itself as the title so rule
// views never lose rows.
type ProductCatalog interface {
	ProductSummaries(ctx context.Context, ids []domain.ProductID) ([]domain.ProductSummary, error)
	SearchProducts(ctx context.Context, query ProductSearchQuery) (ProductPage, error)
}

// MetadataEntry addresses one metadata value by owner, namespace, and key.
type MetadataEntry struct {
	OwnerID   string
	Namespace string
	Key       string
	Value     string
}

// MaxMetadataBatch is the largest entry count a single SetMetadata call may
// carry, mirroring the platform's bulk-write ceiling.
const MaxMetadataBatch = 25

// MetadataStore reads and writes platform metadata. SetMetadata accepts at
// most MaxMetadataBatch entries per call; callers chunk larger writes.
type MetadataStore interface {
	SetMetadata(ctx context.Context, entries []MetadataEntry) error
	Metadata(ctx context.Context, ownerID, namespace, key string) (string, bool, error)
}

// ShopGateway resolves the shop-level owner identity for shop metadata.
type ShopGateway interface {
	ShopID(ctx context.Context) (string, error)
}
