package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/shopforge/shopforge/internal/app/domain/catalog"
	"github.com/shopforge/shopforge/internal/app/domain/collection"
	"github.com/shopforge/shopforge/internal/app/storage"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := New(db)

	ctx := context.Background()
	p, err := store.CreateProduct(ctx, catalog.Product{Name: "Mug", Slug: "mug", Enabled: true})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	v, err := store.CreateVariant(ctx, catalog.ProductVariant{
		ProductID: p.ID, SKU: "MUG-01", Name: "Mug 350ml", PriceCents: 1250, Currency: "EUR", Enabled: true,
	})
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}

	c, err := store.CreateCollection(ctx, collection.Collection{Name: "Drinkware", Slug: "drinkware"})
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if err := store.SetCollectionMembers(ctx, c.ID, []string{v.ID}); err != nil {
		t.Fatalf("set members: %v", err)
	}
	members, err := store.ListCollectionMembers(ctx, c.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 1 || members[0] != v.ID {
		t.Fatalf("members = %v", members)
	}

	if _, err := store.GetProduct(ctx, "does-not-exist"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing product = %v, want ErrNotFound", err)
	}

	if err := store.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if _, err := store.GetVariant(ctx, v.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("variant should cascade on product delete, got %v", err)
	}
}
