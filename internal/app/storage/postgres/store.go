package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shopforge/shopforge/internal/app/domain/asset"
	"github.com/shopforge/shopforge/internal/app/domain/catalog"
	"github.com/shopforge/shopforge/internal/app/domain/collection"
	"github.com/shopforge/shopforge/internal/app/domain/customer"
	"github.com/shopforge/shopforge/internal/app/domain/email"
	"github.com/shopforge/shopforge/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. String
// slices and filter configs are stored as jsonb.
type Store struct {
	db *sqlx.DB
}

var _ storage.ProductStore = (*Store)(nil)
var _ storage.AssetStore = (*Store)(nil)
var _ storage.CollectionStore = (*Store)(nil)
var _ storage.CustomerStore = (*Store)(nil)
var _ storage.EmailStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for components that share the pool, such
// as the SQL job queue strategy.
func (s *Store) DB() *sqlx.DB { return s.db }

func notFound(kind, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return err
}

func marshalStrings(in []string) ([]byte, error) {
	if in == nil {
		in = []string{}
	}
	return json.Marshal(in)
}

func unmarshalStrings(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	_ = json.Unmarshal(raw, &out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// --- ProductStore -----------------------------------------------------------

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	facetJSON, err := marshalStrings(p.FacetValueIDs)
	if err != nil {
		return catalog.Product{}, err
	}
	assetJSON, err := marshalStrings(p.AssetIDs)
	if err != nil {
		return catalog.Product{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, slug, description, enabled, facet_value_ids, asset_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.Name, p.Slug, p.Description, p.Enabled, facetJSON, assetJSON, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	existing, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		return catalog.Product{}, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	facetJSON, err := marshalStrings(p.FacetValueIDs)
	if err != nil {
		return catalog.Product{}, err
	}
	assetJSON, err := marshalStrings(p.AssetIDs)
	if err != nil {
		return catalog.Product{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, slug = $3, description = $4, enabled = $5,
		    facet_value_ids = $6, asset_ids = $7, updated_at = $8
		WHERE id = $1
	`, p.ID, p.Name, p.Slug, p.Description, p.Enabled, facetJSON, assetJSON, p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return catalog.Product{}, fmt.Errorf("product %s: %w", p.ID, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) scanProduct(row *sql.Row) (catalog.Product, error) {
	var (
		p        catalog.Product
		facetRaw []byte
		assetRaw []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Enabled,
		&facetRaw, &assetRaw, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, err
	}
	p.FacetValueIDs = unmarshalStrings(facetRaw)
	p.AssetIDs = unmarshalStrings(assetRaw)
	return p, nil
}

const productColumns = `id, name, slug, description, enabled, facet_value_ids, asset_ids, created_at, updated_at`

func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	p, err := s.scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return catalog.Product{}, notFound("product", id, err)
	}
	return p, nil
}

func (s *Store) GetProductBySlug(ctx context.Context, slug string) (catalog.Product, error) {
	p, err := s.scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE slug = $1`, slug))
	if err != nil {
		return catalog.Product{}, notFound("product slug", slug, err)
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		var (
			p        catalog.Product
			facetRaw []byte
			assetRaw []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Enabled,
			&facetRaw, &assetRaw, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.FacetValueIDs = unmarshalStrings(facetRaw)
		p.AssetIDs = unmarshalStrings(assetRaw)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("product %s: %w", id, storage.ErrNotFound)
	}
	// Variants cascade via FK; nothing else to clean up.
	return nil
}

func (s *Store) CreateVariant(ctx context.Context, v catalog.ProductVariant) (catalog.ProductVariant, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	facetJSON, err := marshalStrings(v.FacetValueIDs)
	if err != nil {
		return catalog.ProductVariant{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO product_variants (id, product_id, sku, name, price_cents, currency, stock_on_hand, enabled, facet_value_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, v.ID, v.ProductID, v.SKU, v.Name, v.PriceCents, v.Currency, v.StockOnHand, v.Enabled, facetJSON, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return catalog.ProductVariant{}, err
	}
	return v, nil
}

func (s *Store) UpdateVariant(ctx context.Context, v catalog.ProductVariant) (catalog.ProductVariant, error) {
	existing, err := s.GetVariant(ctx, v.ID)
	if err != nil {
		return catalog.ProductVariant{}, err
	}
	v.CreatedAt = existing.CreatedAt
	v.UpdatedAt = time.Now().UTC()

	facetJSON, err := marshalStrings(v.FacetValueIDs)
	if err != nil {
		return catalog.ProductVariant{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE product_variants
		SET sku = $2, name = $3, price_cents = $4, currency = $5,
		    stock_on_hand = $6, enabled = $7, facet_value_ids = $8, updated_at = $9
		WHERE id = $1
	`, v.ID, v.SKU, v.Name, v.PriceCents, v.Currency, v.StockOnHand, v.Enabled, facetJSON, v.UpdatedAt)
	if err != nil {
		return catalog.ProductVariant{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return catalog.ProductVariant{}, fmt.Errorf("variant %s: %w", v.ID, storage.ErrNotFound)
	}
	return v, nil
}

const variantColumns = `id, product_id, sku, name, price_cents, currency, stock_on_hand, enabled, facet_value_ids, created_at, updated_at`

func scanVariant(row interface{ Scan(...any) error }) (catalog.ProductVariant, error) {
	var (
		v        catalog.ProductVariant
		facetRaw []byte
	)
	err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.PriceCents, &v.Currency,
		&v.StockOnHand, &v.Enabled, &facetRaw, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return catalog.ProductVariant{}, err
	}
	v.FacetValueIDs = unmarshalStrings(facetRaw)
	return v, nil
}

func (s *Store) GetVariant(ctx context.Context, id string) (catalog.ProductVariant, error) {
	v, err := scanVariant(s.db.QueryRowContext(ctx,
		`SELECT `+variantColumns+` FROM product_variants WHERE id = $1`, id))
	if err != nil {
		return catalog.ProductVariant{}, notFound("variant", id, err)
	}
	return v, nil
}

func (s *Store) GetVariantBySKU(ctx context.Context, sku string) (catalog.ProductVariant, error) {
	v, err := scanVariant(s.db.QueryRowContext(ctx,
		`SELECT `+variantColumns+` FROM product_variants WHERE lower(sku) = lower($1)`, sku))
	if err != nil {
		return catalog.ProductVariant{}, notFound("variant sku", sku, err)
	}
	return v, nil
}

func (s *Store) listVariants(ctx context.Context, query string, args ...any) ([]catalog.ProductVariant, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.ProductVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) ListVariants(ctx context.Context, productID string) ([]catalog.ProductVariant, error) {
	return s.listVariants(ctx,
		`SELECT `+variantColumns+` FROM product_variants WHERE product_id = $1 ORDER BY created_at`, productID)
}

func (s *Store) ListAllVariants(ctx context.Context) ([]catalog.ProductVariant, error) {
	return s.listVariants(ctx,
		`SELECT `+variantColumns+` FROM product_variants ORDER BY created_at`)
}

func (s *Store) CreateFacetValue(ctx context.Context, fv catalog.FacetValue) (catalog.FacetValue, error) {
	if fv.ID == "" {
		fv.ID = uuid.NewString()
	}
	fv.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facet_values (id, facet_code, code, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, fv.ID, fv.FacetCode, fv.Code, fv.Name, fv.CreatedAt)
	if err != nil {
		return catalog.FacetValue{}, err
	}
	return fv, nil
}

func (s *Store) ListFacetValues(ctx context.Context) ([]catalog.FacetValue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, facet_code, code, name, created_at
		FROM facet_values
		ORDER BY facet_code, code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.FacetValue
	for rows.Next() {
		var fv catalog.FacetValue
		if err := rows.Scan(&fv.ID, &fv.FacetCode, &fv.Code, &fv.Name, &fv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, fv)
	}
	return out, rows.Err()
}

// --- AssetStore -------------------------------------------------------------

const assetColumns = `id, name, mime_type, size_bytes, checksum, source, preview, created_at, updated_at`

func (s *Store) CreateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (id, name, mime_type, size_bytes, checksum, source, preview, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.Name, a.MimeType, a.SizeBytes, a.Checksum, a.Source, a.Preview, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return asset.Asset{}, err
	}
	return a, nil
}

func (s *Store) UpdateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	existing, err := s.GetAsset(ctx, a.ID)
	if err != nil {
		return asset.Asset{}, err
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE assets
		SET name = $2, mime_type = $3, size_bytes = $4, checksum = $5,
		    source = $6, preview = $7, updated_at = $8
		WHERE id = $1
	`, a.ID, a.Name, a.MimeType, a.SizeBytes, a.Checksum, a.Source, a.Preview, a.UpdatedAt)
	if err != nil {
		return asset.Asset{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return asset.Asset{}, fmt.Errorf("asset %s: %w", a.ID, storage.ErrNotFound)
	}
	return a, nil
}

func (s *Store) GetAsset(ctx context.Context, id string) (asset.Asset, error) {
	var a asset.Asset
	err := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.MimeType, &a.SizeBytes, &a.Checksum, &a.Source, &a.Preview, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return asset.Asset{}, notFound("asset", id, err)
	}
	return a, nil
}

func (s *Store) ListAssets(ctx context.Context) ([]asset.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []asset.Asset
	for rows.Next() {
		var a asset.Asset
		if err := rows.Scan(&a.ID, &a.Name, &a.MimeType, &a.SizeBytes, &a.Checksum,
			&a.Source, &a.Preview, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAsset(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("asset %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// --- CollectionStore --------------------------------------------------------

const collectionColumns = `id, parent_id, name, slug, description, position, private, inherit_filters, filters, created_at, updated_at`

func (s *Store) CreateCollection(ctx context.Context, c collection.Collection) (collection.Collection, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	filtersJSON, err := json.Marshal(c.Filters)
	if err != nil {
		return collection.Collection{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collections (id, parent_id, name, slug, description, position, private, inherit_filters, filters, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.ParentID, c.Name, c.Slug, c.Description, c.Position, c.Private, c.InheritFilters, filtersJSON, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return collection.Collection{}, err
	}
	return c, nil
}

func (s *Store) UpdateCollection(ctx context.Context, c collection.Collection) (collection.Collection, error) {
	existing, err := s.GetCollection(ctx, c.ID)
	if err != nil {
		return collection.Collection{}, err
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	filtersJSON, err := json.Marshal(c.Filters)
	if err != nil {
		return collection.Collection{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE collections
		SET parent_id = $2, name = $3, slug = $4, description = $5, position = $6,
		    private = $7, inherit_filters = $8, filters = $9, updated_at = $10
		WHERE id = $1
	`, c.ID, c.ParentID, c.Name, c.Slug, c.Description, c.Position, c.Private, c.InheritFilters, filtersJSON, c.UpdatedAt)
	if err != nil {
		return collection.Collection{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return collection.Collection{}, fmt.Errorf("collection %s: %w", c.ID, storage.ErrNotFound)
	}
	return c, nil
}

func scanCollection(row interface{ Scan(...any) error }) (collection.Collection, error) {
	var (
		c          collection.Collection
		filtersRaw []byte
	)
	err := row.Scan(&c.ID, &c.ParentID, &c.Name, &c.Slug, &c.Description, &c.Position,
		&c.Private, &c.InheritFilters, &filtersRaw, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return collection.Collection{}, err
	}
	if len(filtersRaw) > 0 {
		_ = json.Unmarshal(filtersRaw, &c.Filters)
	}
	return c, nil
}

func (s *Store) GetCollection(ctx context.Context, id string) (collection.Collection, error) {
	c, err := scanCollection(s.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = $1`, id))
	if err != nil {
		return collection.Collection{}, notFound("collection", id, err)
	}
	return c, nil
}

func (s *Store) GetCollectionBySlug(ctx context.Context, slug string) (collection.Collection, error) {
	c, err := scanCollection(s.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE slug = $1`, slug))
	if err != nil {
		return collection.Collection{}, notFound("collection slug", slug, err)
	}
	return c, nil
}

func (s *Store) ListCollections(ctx context.Context) ([]collection.Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections ORDER BY position, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []collection.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("collection %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) SetCollectionMembers(ctx context.Context, collectionID string, variantIDs []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM collections WHERE id = $1)`, collectionID); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("collection %s: %w", collectionID, storage.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM collection_members WHERE collection_id = $1`, collectionID); err != nil {
		return err
	}
	for pos, variantID := range variantIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO collection_members (collection_id, variant_id, position)
			VALUES ($1, $2, $3)
		`, collectionID, variantID, pos); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListCollectionMembers(ctx context.Context, collectionID string) ([]string, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM collections WHERE id = $1)`, collectionID); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("collection %s: %w", collectionID, storage.ErrNotFound)
	}

	var out []string
	err := s.db.SelectContext(ctx, &out, `
		SELECT variant_id FROM collection_members
		WHERE collection_id = $1
		ORDER BY position
	`, collectionID)
	return out, err
}

// --- CustomerStore ----------------------------------------------------------

const customerColumns = `id, email, first_name, last_name, verified, password_hash, created_at, updated_at`

func (s *Store) CreateCustomer(ctx context.Context, c customer.Customer) (customer.Customer, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, email, first_name, last_name, verified, password_hash, created_at, updated_at)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8)
	`, c.ID, c.Email, c.FirstName, c.LastName, c.Verified, c.PasswordHash, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return customer.Customer{}, err
	}
	return c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, c customer.Customer) (customer.Customer, error) {
	existing, err := s.GetCustomer(ctx, c.ID)
	if err != nil {
		return customer.Customer{}, err
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET email = lower($2), first_name = $3, last_name = $4, verified = $5,
		    password_hash = $6, updated_at = $7
		WHERE id = $1
	`, c.ID, c.Email, c.FirstName, c.LastName, c.Verified, c.PasswordHash, c.UpdatedAt)
	if err != nil {
		return customer.Customer{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return customer.Customer{}, fmt.Errorf("customer %s: %w", c.ID, storage.ErrNotFound)
	}
	return c, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (customer.Customer, error) {
	var c customer.Customer
	err := s.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Verified, &c.PasswordHash, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return customer.Customer{}, notFound("customer", id, err)
	}
	return c, nil
}

func (s *Store) GetCustomerByEmail(ctx context.Context, addr string) (customer.Customer, error) {
	var c customer.Customer
	err := s.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email = lower($1)`, addr).
		Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Verified, &c.PasswordHash, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return customer.Customer{}, notFound("customer email", addr, err)
	}
	return c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]customer.Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []customer.Customer
	for rows.Next() {
		var c customer.Customer
		if err := rows.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Verified,
			&c.PasswordHash, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- EmailStore -------------------------------------------------------------

const messageColumns = `id, type, recipient, subject, body, state, attempts, last_error, created_at, updated_at`

func (s *Store) CreateMessage(ctx context.Context, m email.Message) (email.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.State == "" {
		m.State = email.StatePending
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_messages (id, type, recipient, subject, body, state, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ID, m.Type, m.Recipient, m.Subject, m.Body, m.State, m.Attempts, m.LastError, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return email.Message{}, err
	}
	return m, nil
}

func (s *Store) UpdateMessage(ctx context.Context, m email.Message) (email.Message, error) {
	existing, err := s.GetMessage(ctx, m.ID)
	if err != nil {
		return email.Message{}, err
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE email_messages
		SET state = $2, attempts = $3, last_error = $4, updated_at = $5
		WHERE id = $1
	`, m.ID, m.State, m.Attempts, m.LastError, m.UpdatedAt)
	if err != nil {
		return email.Message{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return email.Message{}, fmt.Errorf("message %s: %w", m.ID, storage.ErrNotFound)
	}
	return m, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (email.Message, error) {
	var m email.Message
	err := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM email_messages WHERE id = $1`, id).
		Scan(&m.ID, &m.Type, &m.Recipient, &m.Subject, &m.Body, &m.State, &m.Attempts, &m.LastError, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return email.Message{}, notFound("message", id, err)
	}
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, state email.State, since time.Time) ([]email.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM email_messages WHERE TRUE`
	args := []any{}
	if state != "" {
		args = append(args, state)
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}
	if !since.IsZero() {
		args = append(args, since.UTC())
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []email.Message
	for rows.Next() {
		var m email.Message
		if err := rows.Scan(&m.ID, &m.Type, &m.Recipient, &m.Subject, &m.Body, &m.State,
			&m.Attempts, &m.LastError, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
