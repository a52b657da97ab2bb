package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopforge/shopforge/internal/app/domain/catalog"
	"github.com/shopforge/shopforge/internal/app/storage"
	"github.com/shopforge/shopforge/internal/app/storage/memory"
	"github.com/shopforge/shopforge/internal/events"
)

func newTestService(t *testing.T) (*Service, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	return New(memory.New(), bus, nil), bus
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Aero Bottle":        "aero-bottle",
		"  T-Shirt (Red)  ":  "t-shirt-red",
		"Émile's Mug":        "mile-s-mug",
		"multiple   spaces":  "multiple-spaces",
		"already-slugged-99": "already-slugged-99",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateProduct(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()

	ch, cancel := bus.Subscribe(events.ProductCreated)
	defer cancel()

	p, err := svc.CreateProduct(ctx, catalog.Product{Name: "Aero Bottle", Enabled: true})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if p.Slug != "aero-bottle" {
		t.Fatalf("expected derived slug, got %q", p.Slug)
	}

	evt := <-ch
	if evt.EntityID != p.ID || evt.Payload["slug"] != "aero-bottle" {
		t.Fatalf("unexpected event: %+v", evt)
	}

	if _, err := svc.CreateProduct(ctx, catalog.Product{Name: "Other", Slug: "aero-bottle"}); err == nil {
		t.Fatalf("expected duplicate slug error")
	}
	if _, err := svc.CreateProduct(ctx, catalog.Product{Slug: "no-name"}); err == nil {
		t.Fatalf("expected missing name error")
	}
	if _, err := svc.CreateProduct(ctx, catalog.Product{Name: "Bad", Slug: "Not A Slug"}); err == nil {
		t.Fatalf("expected invalid slug error")
	}
}

func TestUpdateProductSlugConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateProduct(ctx, catalog.Product{Name: "First", Enabled: true})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	b, err := svc.CreateProduct(ctx, catalog.Product{Name: "Second", Enabled: true})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	b.Slug = a.Slug
	if _, err := svc.UpdateProduct(ctx, b); err == nil {
		t.Fatalf("expected slug conflict on update")
	}

	// Updating a product with its own slug is fine.
	a.Description = "updated"
	updated, err := svc.UpdateProduct(ctx, a)
	if err != nil {
		t.Fatalf("update with own slug: %v", err)
	}
	if updated.Description != "updated" {
		t.Fatalf("expected description update, got %+v", updated)
	}
}

func TestDeleteProductRemovesVariants(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, catalog.Product{Name: "Mug", Enabled: true})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := svc.CreateVariant(ctx, catalog.ProductVariant{
		ProductID: p.ID, SKU: "MUG-01", Name: "Mug", PriceCents: 900, Enabled: true,
	}); err != nil {
		t.Fatalf("create variant: %v", err)
	}

	if err := svc.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if _, err := svc.GetProduct(ctx, p.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	variants, err := svc.ListVariants(ctx, p.ID)
	if err != nil {
		t.Fatalf("list variants: %v", err)
	}
	if len(variants) != 0 {
		t.Fatalf("expected variants removed with product, got %d", len(variants))
	}
}

func TestCreateVariantValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, catalog.Product{Name: "Mug", Enabled: true})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	v, err := svc.CreateVariant(ctx, catalog.ProductVariant{
		ProductID: p.ID, SKU: "MUG-01", Name: "Mug 350ml", PriceCents: 1250, Currency: "eur", Enabled: true,
	})
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}
	if v.Currency != "EUR" {
		t.Fatalf("expected currency upper-cased, got %q", v.Currency)
	}

	if _, err := svc.CreateVariant(ctx, catalog.ProductVariant{ProductID: p.ID, SKU: "MUG-01"}); err == nil {
		t.Fatalf("expected duplicate sku error")
	}
	if _, err := svc.CreateVariant(ctx, catalog.ProductVariant{ProductID: p.ID, SKU: "MUG-02", PriceCents: -1}); err == nil {
		t.Fatalf("expected negative price error")
	}
	if _, err := svc.CreateVariant(ctx, catalog.ProductVariant{SKU: "MUG-03"}); err == nil {
		t.Fatalf("expected missing product_id error")
	}
	if _, err := svc.CreateVariant(ctx, catalog.ProductVariant{ProductID: p.ID, SKU: "MUG-04", Currency: "EURO"}); err == nil {
		t.Fatalf("expected invalid currency error")
	}
}

func TestAdjustStock(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, catalog.Product{Name: "Mug", Enabled: true})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	v, err := svc.CreateVariant(ctx, catalog.ProductVariant{
		ProductID: p.ID, SKU: "MUG-01", Name: "Mug", PriceCents: 900, StockOnHand: 5, Enabled: true,
	})
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}

	ch, cancel := bus.Subscribe(events.VariantStockChanged)
	defer cancel()

	v, err = svc.AdjustStock(ctx, v.ID, -2)
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if v.StockOnHand != 3 {
		t.Fatalf("expected stock 3, got %d", v.StockOnHand)
	}

	evt := <-ch
	if evt.Payload["previous"] != 5 || evt.Payload["current"] != 3 {
		t.Fatalf("unexpected stock event payload: %+v", evt.Payload)
	}

	if _, err := svc.AdjustStock(ctx, v.ID, -10); err == nil || !strings.Contains(err.Error(), "below zero") {
		t.Fatalf("expected below-zero error, got %v", err)
	}
}

func TestCreateFacetValue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	fv, err := svc.CreateFacetValue(ctx, catalog.FacetValue{FacetCode: " Color ", Code: " RED "})
	if err != nil {
		t.Fatalf("create facet value: %v", err)
	}
	if fv.FacetCode != "color" || fv.Code != "red" || fv.Name != "red" {
		t.Fatalf("expected normalized facet value, got %+v", fv)
	}

	if _, err := svc.CreateFacetValue(ctx, catalog.FacetValue{Code: "red"}); err == nil {
		t.Fatalf("expected missing facet_code error")
	}
	if _, err := svc.CreateFacetValue(ctx, catalog.FacetValue{FacetCode: "color"}); err == nil {
		t.Fatalf("expected missing code error")
	}
}
