package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopforge/shopforge/internal/app/domain/catalog"
	"github.com/shopforge/shopforge/internal/app/storage"
	"github.com/shopforge/shopforge/internal/events"
	"github.com/shopforge/shopforge/pkg/logger"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Service owns products, variants and facet values.
type Service struct {
	store storage.ProductStore
	bus   *events.Bus
	log   *logger.Logger
}

// New creates a configured catalog service.
func New(store storage.ProductStore, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	return &Service{store: store, bus: bus, log: log}
}

func (s *Service) publish(t events.Type, entity, id string, payload map[string]any) {
	if s.bus != nil {
		s.bus.Publish(events.New(t, entity, id, payload))
	}
}

// Slugify derives a URL slug from a name.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	slug = strings.Trim(regexp.MustCompile(`-+`).ReplaceAllString(slug, "-"), "-")
	return slug
}

// CreateProduct validates and stores a new product.
func (s *Service) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Slug = strings.TrimSpace(p.Slug)

	if p.Name == "" {
		return catalog.Product{}, fmt.Errorf("name is required")
	}
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if !slugPattern.MatchString(p.Slug) {
		return catalog.Product{}, fmt.Errorf("slug %q is not valid", p.Slug)
	}

	if _, err := s.store.GetProductBySlug(ctx, p.Slug); err == nil {
		return catalog.Product{}, fmt.Errorf("product with slug %q already exists", p.Slug)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return catalog.Product{}, err
	}

	p, err := s.store.CreateProduct(ctx, p)
	if err != nil {
		return catalog.Product{}, err
	}
	s.log.WithField("product_id", p.ID).WithField("slug", p.Slug).Info("product created")
	s.publish(events.ProductCreated, "product", p.ID, map[string]any{"slug": p.Slug})
	return p, nil
}

// UpdateProduct replaces a product's mutable fields.
func (s *Service) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Slug = strings.TrimSpace(p.Slug)

	if p.ID == "" {
		return catalog.Product{}, fmt.Errorf("id is required")
	}
	if p.Name == "" {
		return catalog.Product{}, fmt.Errorf("name is required")
	}
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if !slugPattern.MatchString(p.Slug) {
		return catalog.Product{}, fmt.Errorf("slug %q is not valid", p.Slug)
	}

	if existing, err := s.store.GetProductBySlug(ctx, p.Slug); err == nil && existing.ID != p.ID {
		return catalog.Product{}, fmt.Errorf("product with slug %q already exists", p.Slug)
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return catalog.Product{}, err
	}

	p, err := s.store.UpdateProduct(ctx, p)
	if err != nil {
		return catalog.Product{}, err
	}
	s.publish(events.ProductUpdated, "product", p.ID, map[string]any{"slug": p.Slug})
	return p, nil
}

// GetProduct fetches one product by ID.
func (s *Service) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	return s.store.GetProduct(ctx, id)
}

// GetProductBySlug fetches one product by slug.
func (s *Service) GetProductBySlug(ctx context.Context, slug string) (catalog.Product, error) {
	return s.store.GetProductBySlug(ctx, slug)
}

// ListProducts returns all products ordered by creation time.
func (s *Service) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	return s.store.ListProducts(ctx)
}

// DeleteProduct removes a product and its variants.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.log.WithField("product_id", id).Info("product deleted")
	s.publish(events.ProductDeleted, "product", id, nil)
	return nil
}

// CreateVariant validates and stores a new variant.
func (s *Service) CreateVariant(ctx context.Context, v catalog.ProductVariant) (catalog.ProductVariant, error) {
	v.SKU = strings.TrimSpace(v.SKU)
	v.Name = strings.TrimSpace(v.Name)
	v.Currency = strings.ToUpper(strings.TrimSpace(v.Currency))

	if v.ProductID == "" {
		return catalog.ProductVariant{}, fmt.Errorf("product_id is required")
	}
	if v.SKU == "" {
		return catalog.ProductVariant{}, fmt.Errorf("sku is required")
	}
	if v.PriceCents < 0 {
		return catalog.ProductVariant{}, fmt.Errorf("price must not be negative")
	}
	if v.Currency == "" {
		v.Currency = "USD"
	}
	if len(v.Currency) != 3 {
		return catalog.ProductVariant{}, fmt.Errorf("currency %q is not a 3-letter code", v.Currency)
	}

	if _, err := s.store.GetVariantBySKU(ctx, v.SKU); err == nil {
		return catalog.ProductVariant{}, fmt.Errorf("variant with sku %q already exists", v.SKU)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return catalog.ProductVariant{}, err
	}

	v, err := s.store.CreateVariant(ctx, v)
	if err != nil {
		return catalog.ProductVariant{}, err
	}
	s.log.WithField("variant_id", v.ID).WithField("sku", v.SKU).Info("variant created")
	s.publish(events.VariantCreated, "variant", v.ID, map[string]any{
		"product_id": v.ProductID,
		"sku":        v.SKU,
	})
	return v, nil
}

// UpdateVariant replaces a variant's mutable fields.
func (s *Service) UpdateVariant(ctx context.Context, v catalog.ProductVariant) (catalog.ProductVariant, error) {
	v.SKU = strings.TrimSpace(v.SKU)
	if v.ID == "" {
		return catalog.ProductVariant{}, fmt.Errorf("id is required")
	}
	if v.SKU == "" {
		return catalog.ProductVariant{}, fmt.Errorf("sku is required")
	}
	if v.PriceCents < 0 {
		return catalog.ProductVariant{}, fmt.Errorf("price must not be negative")
	}

	if existing, err := s.store.GetVariantBySKU(ctx, v.SKU); err == nil && existing.ID != v.ID {
		return catalog.ProductVariant{}, fmt.Errorf("variant with sku %q already exists", v.SKU)
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return catalog.ProductVariant{}, err
	}

	previous, err := s.store.GetVariant(ctx, v.ID)
	if err != nil {
		return catalog.ProductVariant{}, err
	}
	v.ProductID = previous.ProductID

	v, err = s.store.UpdateVariant(ctx, v)
	if err != nil {
		return catalog.ProductVariant{}, err
	}
	s.publish(events.VariantUpdated, "variant", v.ID, map[string]any{"product_id": v.ProductID})
	if previous.StockOnHand != v.StockOnHand {
		s.publish(events.VariantStockChanged, "variant", v.ID, map[string]any{
			"previous": previous.StockOnHand,
			"current":  v.StockOnHand,
		})
	}
	return v, nil
}

// AdjustStock applies a relative stock change to a variant.
func (s *Service) AdjustStock(ctx context.Context, variantID string, delta int) (catalog.ProductVariant, error) {
	v, err := s.store.GetVariant(ctx, variantID)
	if err != nil {
		return catalog.ProductVariant{}, err
	}
	next := v.StockOnHand + delta
	if next < 0 {
		return catalog.ProductVariant{}, fmt.Errorf("stock for %s cannot go below zero (have %d, delta %d)", v.SKU, v.StockOnHand, delta)
	}
	previous := v.StockOnHand
	v.StockOnHand = next

	v, err = s.store.UpdateVariant(ctx, v)
	if err != nil {
		return catalog.ProductVariant{}, err
	}
	s.publish(events.VariantStockChanged, "variant", v.ID, map[string]any{
		"previous": previous,
		"current":  v.StockOnHand,
	})
	return v, nil
}

// GetVariant fetches one variant by ID.
func (s *Service) GetVariant(ctx context.Context, id string) (catalog.ProductVariant, error) {
	return s.store.GetVariant(ctx, id)
}

// ListVariants returns the variants of one product.
func (s *Service) ListVariants(ctx context.Context, productID string) ([]catalog.ProductVariant, error) {
	return s.store.ListVariants(ctx, productID)
}

// ListAllVariants returns every variant in the catalog.
func (s *Service) ListAllVariants(ctx context.Context) ([]catalog.ProductVariant, error) {
	return s.store.ListAllVariants(ctx)
}

// CreateFacetValue registers a facet value, e.g. color:red.
func (s *Service) CreateFacetValue(ctx context.Context, fv catalog.FacetValue) (catalog.FacetValue, error) {
	fv.FacetCode = strings.TrimSpace(strings.ToLower(fv.FacetCode))
	fv.Code = strings.TrimSpace(strings.ToLower(fv.Code))
	fv.Name = strings.TrimSpace(fv.Name)

	if fv.FacetCode == "" {
		return catalog.FacetValue{}, fmt.Errorf("facet_code is required")
	}
	if fv.Code == "" {
		return catalog.FacetValue{}, fmt.Errorf("code is required")
	}
	if fv.Name == "" {
		fv.Name = fv.Code
	}
	return s.store.CreateFacetValue(ctx, fv)
}

// ListFacetValues returns all facet values.
func (s *Service) ListFacetValues(ctx context.Context) ([]catalog.FacetValue, error) {
	return s.store.ListFacetValues(ctx)
}
