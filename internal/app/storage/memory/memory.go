package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopforge/shopforge/internal/app/domain/asset"
	"github.com/shopforge/shopforge/internal/app/domain/catalog"
	"github.com/shopforge/shopforge/internal/app/domain/collection"
	"github.com/shopforge/shopforge/internal/app/domain/customer"
	"github.com/shopforge/shopforge/internal/app/domain/email"
	"github.com/shopforge/shopforge/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	products    map[string]catalog.Product
	variants    map[string]catalog.ProductVariant
	facetValues map[string]catalog.FacetValue
	assets      map[string]asset.Asset
	collections map[string]collection.Collection
	members     map[string][]string
	customers   map[string]customer.Customer
	messages    map[string]email.Message
}

var _ storage.ProductStore = (*Store)(nil)
var _ storage.AssetStore = (*Store)(nil)
var _ storage.CollectionStore = (*Store)(nil)
var _ storage.CustomerStore = (*Store)(nil)
var _ storage.EmailStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:      1,
		products:    make(map[string]catalog.Product),
		variants:    make(map[string]catalog.ProductVariant),
		facetValues: make(map[string]catalog.FacetValue),
		assets:      make(map[string]asset.Asset),
		collections: make(map[string]collection.Collection),
		members:     make(map[string][]string),
		customers:   make(map[string]customer.Customer),
		messages:    make(map[string]email.Message),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneProduct(p catalog.Product) catalog.Product {
	p.FacetValueIDs = cloneStrings(p.FacetValueIDs)
	p.AssetIDs = cloneStrings(p.AssetIDs)
	return p
}

func cloneVariant(v catalog.ProductVariant) catalog.ProductVariant {
	v.FacetValueIDs = cloneStrings(v.FacetValueIDs)
	return v
}

func cloneCollection(c collection.Collection) collection.Collection {
	if c.Filters != nil {
		filters := make([]collection.FilterConfig, len(c.Filters))
		copy(filters, c.Filters)
		c.Filters = filters
	}
	return c
}

// ProductStore implementation -------------------------------------------------

func (s *Store) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.products[p.ID]; exists {
		return catalog.Product{}, fmt.Errorf("product %s already exists", p.ID)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.products[p.ID] = cloneProduct(p)
	return cloneProduct(p), nil
}

func (s *Store) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.products[p.ID]
	if !ok {
		return catalog.Product{}, fmt.Errorf("product %s: %w", p.ID, storage.ErrNotFound)
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = cloneProduct(p)
	return cloneProduct(p), nil
}

func (s *Store) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, fmt.Errorf("product %s: %w", id, storage.ErrNotFound)
	}
	return cloneProduct(p), nil
}

func (s *Store) GetProductBySlug(_ context.Context, slug string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Slug == slug {
			return cloneProduct(p), nil
		}
	}
	return catalog.Product{}, fmt.Errorf("product slug %s: %w", slug, storage.ErrNotFound)
}

func (s *Store) ListProducts(_ context.Context) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("product %s: %w", id, storage.ErrNotFound)
	}
	delete(s.products, id)
	for vid, v := range s.variants {
		if v.ProductID == id {
			delete(s.variants, vid)
		}
	}
	return nil
}

func (s *Store) CreateVariant(_ context.Context, v catalog.ProductVariant) (catalog.ProductVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[v.ProductID]; !ok {
		return catalog.ProductVariant{}, fmt.Errorf("product %s: %w", v.ProductID, storage.ErrNotFound)
	}
	if v.ID == "" {
		v.ID = s.nextIDLocked()
	} else if _, exists := s.variants[v.ID]; exists {
		return catalog.ProductVariant{}, fmt.Errorf("variant %s already exists", v.ID)
	}

	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	s.variants[v.ID] = cloneVariant(v)
	return cloneVariant(v), nil
}

func (s *Store) UpdateVariant(_ context.Context, v catalog.ProductVariant) (catalog.ProductVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.variants[v.ID]
	if !ok {
		return catalog.ProductVariant{}, fmt.Errorf("variant %s: %w", v.ID, storage.ErrNotFound)
	}
	v.CreatedAt = original.CreatedAt
	v.UpdatedAt = time.Now().UTC()
	s.variants[v.ID] = cloneVariant(v)
	return cloneVariant(v), nil
}

func (s *Store) GetVariant(_ context.Context, id string) (catalog.ProductVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.variants[id]
	if !ok {
		return catalog.ProductVariant{}, fmt.Errorf("variant %s: %w", id, storage.ErrNotFound)
	}
	return cloneVariant(v), nil
}

func (s *Store) GetVariantBySKU(_ context.Context, sku string) (catalog.ProductVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.variants {
		if strings.EqualFold(v.SKU, sku) {
			return cloneVariant(v), nil
		}
	}
	return catalog.ProductVariant{}, fmt.Errorf("variant sku %s: %w", sku, storage.ErrNotFound)
}

func (s *Store) ListVariants(_ context.Context, productID string) ([]catalog.ProductVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []catalog.ProductVariant
	for _, v := range s.variants {
		if v.ProductID == productID {
			out = append(out, cloneVariant(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListAllVariants(_ context.Context) ([]catalog.ProductVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.ProductVariant, 0, len(s.variants))
	for _, v := range s.variants {
		out = append(out, cloneVariant(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateFacetValue(_ context.Context, fv catalog.FacetValue) (catalog.FacetValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.facetValues {
		if existing.FacetCode == fv.FacetCode && existing.Code == fv.Code {
			return catalog.FacetValue{}, fmt.Errorf("facet value %s:%s already exists", fv.FacetCode, fv.Code)
		}
	}
	if fv.ID == "" {
		fv.ID = s.nextIDLocked()
	}
	fv.CreatedAt = time.Now().UTC()
	s.facetValues[fv.ID] = fv
	return fv, nil
}

func (s *Store) ListFacetValues(_ context.Context) ([]catalog.FacetValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.FacetValue, 0, len(s.facetValues))
	for _, fv := range s.facetValues {
		out = append(out, fv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FacetCode != out[j].FacetCode {
			return out[i].FacetCode < out[j].FacetCode
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// AssetStore implementation ---------------------------------------------------

func (s *Store) CreateAsset(_ context.Context, a asset.Asset) (asset.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = s.nextIDLocked()
	} else if _, exists := s.assets[a.ID]; exists {
		return asset.Asset{}, fmt.Errorf("asset %s already exists", a.ID)
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.assets[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAsset(_ context.Context, a asset.Asset) (asset.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.assets[a.ID]
	if !ok {
		return asset.Asset{}, fmt.Errorf("asset %s: %w", a.ID, storage.ErrNotFound)
	}
	a.CreatedAt = original.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	s.assets[a.ID] = a
	return a, nil
}

func (s *Store) GetAsset(_ context.Context, id string) (asset.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[id]
	if !ok {
		return asset.Asset{}, fmt.Errorf("asset %s: %w", id, storage.ErrNotFound)
	}
	return a, nil
}

func (s *Store) ListAssets(_ context.Context) ([]asset.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]asset.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteAsset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[id]; !ok {
		return fmt.Errorf("asset %s: %w", id, storage.ErrNotFound)
	}
	delete(s.assets, id)
	return nil
}

// CollectionStore implementation ----------------------------------------------

func (s *Store) CreateCollection(_ context.Context, c collection.Collection) (collection.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = s.nextIDLocked()
	} else if _, exists := s.collections[c.ID]; exists {
		return collection.Collection{}, fmt.Errorf("collection %s already exists", c.ID)
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.collections[c.ID] = cloneCollection(c)
	return cloneCollection(c), nil
}

func (s *Store) UpdateCollection(_ context.Context, c collection.Collection) (collection.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.collections[c.ID]
	if !ok {
		return collection.Collection{}, fmt.Errorf("collection %s: %w", c.ID, storage.ErrNotFound)
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.collections[c.ID] = cloneCollection(c)
	return cloneCollection(c), nil
}

func (s *Store) GetCollection(_ context.Context, id string) (collection.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[id]
	if !ok {
		return collection.Collection{}, fmt.Errorf("collection %s: %w", id, storage.ErrNotFound)
	}
	return cloneCollection(c), nil
}

func (s *Store) GetCollectionBySlug(_ context.Context, slug string) (collection.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.collections {
		if c.Slug == slug {
			return cloneCollection(c), nil
		}
	}
	return collection.Collection{}, fmt.Errorf("collection slug %s: %w", slug, storage.ErrNotFound)
}

func (s *Store) ListCollections(_ context.Context) ([]collection.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]collection.Collection, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, cloneCollection(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeleteCollection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[id]; !ok {
		return fmt.Errorf("collection %s: %w", id, storage.ErrNotFound)
	}
	delete(s.collections, id)
	delete(s.members, id)
	return nil
}

func (s *Store) SetCollectionMembers(_ context.Context, collectionID string, variantIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collectionID]; !ok {
		return fmt.Errorf("collection %s: %w", collectionID, storage.ErrNotFound)
	}
	s.members[collectionID] = cloneStrings(variantIDs)
	return nil
}

func (s *Store) ListCollectionMembers(_ context.Context, collectionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.collections[collectionID]; !ok {
		return nil, fmt.Errorf("collection %s: %w", collectionID, storage.ErrNotFound)
	}
	return cloneStrings(s.members[collectionID]), nil
}

// CustomerStore implementation ------------------------------------------------

func (s *Store) CreateCustomer(_ context.Context, c customer.Customer) (customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.customers {
		if strings.EqualFold(existing.Email, c.Email) {
			return customer.Customer{}, fmt.Errorf("customer email %s already registered", c.Email)
		}
	}
	if c.ID == "" {
		c.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.customers[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCustomer(_ context.Context, c customer.Customer) (customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.customers[c.ID]
	if !ok {
		return customer.Customer{}, fmt.Errorf("customer %s: %w", c.ID, storage.ErrNotFound)
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.customers[c.ID] = c
	return c, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return customer.Customer{}, fmt.Errorf("customer %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (s *Store) GetCustomerByEmail(_ context.Context, addr string) (customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.customers {
		if strings.EqualFold(c.Email, addr) {
			return c, nil
		}
	}
	return customer.Customer{}, fmt.Errorf("customer email %s: %w", addr, storage.ErrNotFound)
}

func (s *Store) ListCustomers(_ context.Context) ([]customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]customer.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// EmailStore implementation ---------------------------------------------------

func (s *Store) CreateMessage(_ context.Context, m email.Message) (email.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = s.nextIDLocked()
	}
	if m.State == "" {
		m.State = email.StatePending
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	s.messages[m.ID] = m
	return m, nil
}

func (s *Store) UpdateMessage(_ context.Context, m email.Message) (email.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.messages[m.ID]
	if !ok {
		return email.Message{}, fmt.Errorf("message %s: %w", m.ID, storage.ErrNotFound)
	}
	m.CreatedAt = original.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	s.messages[m.ID] = m
	return m, nil
}

func (s *Store) GetMessage(_ context.Context, id string) (email.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return email.Message{}, fmt.Errorf("message %s: %w", id, storage.ErrNotFound)
	}
	return m, nil
}

func (s *Store) ListMessages(_ context.Context, state email.State, since time.Time) ([]email.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []email.Message
	for _, m := range s.messages {
		if state != "" && m.State != state {
			continue
		}
		if !since.IsZero() && m.CreatedAt.Before(since) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
