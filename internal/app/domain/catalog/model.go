package catalog

import "time"

// Product is the purchasable concept shown in a storefront. Its variants
// carry the actual SKUs, prices and stock.
type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Description   string    `json:"description,omitempty"`
	Enabled       bool      `json:"enabled"`
	FacetValueIDs []string  `json:"facet_value_ids,omitempty"`
	AssetIDs      []string  `json:"asset_ids,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProductVariant is one sellable unit of a product.
type ProductVariant struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	PriceCents    int64     `json:"price_cents"`
	Currency      string    `json:"currency"`
	StockOnHand   int       `json:"stock_on_hand"`
	Enabled       bool      `json:"enabled"`
	FacetValueIDs []string  `json:"facet_value_ids,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FacetValue is one value of a facet, e.g. facet "color", value "red".
// FacetCode groups values; Code is unique within its facet.
type FacetValue struct {
	ID        string    `json:"id"`
	FacetCode string    `json:"facet_code"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
