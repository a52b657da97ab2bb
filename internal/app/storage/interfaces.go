package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopforge/shopforge/internal/app/domain/asset"
	"github.com/shopforge/shopforge/internal/app/domain/catalog"
	"github.com/shopforge/shopforge/internal/app/domain/collection"
	"github.com/shopforge/shopforge/internal/app/domain/customer"
	"github.com/shopforge/shopforge/internal/app/domain/email"
)

// ErrNotFound is wrapped by all stores when a record does not exist, so
// callers can errors.Is across backends.
var ErrNotFound = errors.New("not found")

// ProductStore persists products, variants and facet values.
type ProductStore interface {
	CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (catalog.Product, error)
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreateVariant(ctx context.Context, v catalog.ProductVariant) (catalog.ProductVariant, error)
	UpdateVariant(ctx context.Context, v catalog.ProductVariant) (catalog.ProductVariant, error)
	GetVariant(ctx context.Context, id string) (catalog.ProductVariant, error)
	GetVariantBySKU(ctx context.Context, sku string) (catalog.ProductVariant, error)
	ListVariants(ctx context.Context, productID string) ([]catalog.ProductVariant, error)
	ListAllVariants(ctx context.Context) ([]catalog.ProductVariant, error)

	CreateFacetValue(ctx context.Context, fv catalog.FacetValue) (catalog.FacetValue, error)
	ListFacetValues(ctx context.Context) ([]catalog.FacetValue, error)
}

// AssetStore persists asset metadata. File bytes live behind an
// assetstorage.Strategy.
type AssetStore interface {
	CreateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error)
	UpdateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error)
	GetAsset(ctx context.Context, id string) (asset.Asset, error)
	ListAssets(ctx context.Context) ([]asset.Asset, error)
	DeleteAsset(ctx context.Context, id string) error
}

// CollectionStore persists collections and their computed variant membership.
type CollectionStore interface {
	CreateCollection(ctx context.Context, c collection.Collection) (collection.Collection, error)
	UpdateCollection(ctx context.Context, c collection.Collection) (collection.Collection, error)
	GetCollection(ctx context.Context, id string) (collection.Collection, error)
	GetCollectionBySlug(ctx context.Context, slug string) (collection.Collection, error)
	ListCollections(ctx context.Context) ([]collection.Collection, error)
	DeleteCollection(ctx context.Context, id string) error

	SetCollectionMembers(ctx context.Context, collectionID string, variantIDs []string) error
	ListCollectionMembers(ctx context.Context, collectionID string) ([]string, error)
}

// CustomerStore persists customers.
type CustomerStore interface {
	CreateCustomer(ctx context.Context, c customer.Customer) (customer.Customer, error)
	UpdateCustomer(ctx context.Context, c customer.Customer) (customer.Customer, error)
	GetCustomer(ctx context.Context, id string) (customer.Customer, error)
	GetCustomerByEmail(ctx context.Context, addr string) (customer.Customer, error)
	ListCustomers(ctx context.Context) ([]customer.Customer, error)
}

// EmailStore persists outbound message records.
type EmailStore interface {
	CreateMessage(ctx context.Context, m email.Message) (email.Message, error)
	UpdateMessage(ctx context.Context, m email.Message) (email.Message, error)
	GetMessage(ctx context.Context, id string) (email.Message, error)
	ListMessages(ctx context.Context, state email.State, since time.Time) ([]email.Message, error)
}
