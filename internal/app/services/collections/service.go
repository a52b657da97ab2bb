package collections

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopforge/shopforge/internal/app/domain/catalog"
	"github.com/shopforge/shopforge/internal/app/domain/collection"
	"github.com/shopforge/shopforge/internal/app/metrics"
	"github.com/shopforge/shopforge/internal/app/storage"
	"github.com/shopforge/shopforge/internal/events"
	"github.com/shopforge/shopforge/internal/jobqueue"
	"github.com/shopforge/shopforge/pkg/logger"
)

// QueueName is the job queue carrying membership rebuilds.
const QueueName = "apply-collection-filters"

// RebuildPayload is the job payload for membership rebuilds. Either one
// collection or the whole tree.
type RebuildPayload struct {
	CollectionID string `json:"collection_id,omitempty"`
	All          bool   `json:"all,omitempty"`
}

// Service owns collections and recomputes their variant membership in the
// background.
type Service struct {
	store    storage.CollectionStore
	products storage.ProductStore
	registry *Registry
	bus      *events.Bus
	log      *logger.Logger

	queue *jobqueue.Queue
}

// New creates a configured collections service. registry may be nil, in
// which case the built-in filters are used.
func New(store storage.CollectionStore, products storage.ProductStore, registry *Registry, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("collections")
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		store:    store,
		products: products,
		registry: registry,
		bus:      bus,
		log:      log,
	}
}

// Registry exposes the filter registry so plugins can add filter types.
func (s *Service) Registry() *Registry { return s.registry }

// AttachQueue binds the rebuild queue. Called during application wiring; the
// queue's process func must be ProcessRebuildJob.
func (s *Service) AttachQueue(q *jobqueue.Queue) { s.queue = q }

// SubscribeCatalogEvents schedules a full rebuild whenever the catalog
// changes. Subscription stays active for the life of the bus.
func (s *Service) SubscribeCatalogEvents() {
	if s.bus == nil {
		return
	}
	s.bus.SubscribeFunc(func(events.Event) {
		s.enqueueRebuild(context.Background(), RebuildPayload{All: true})
	},
		events.ProductCreated, events.ProductUpdated, events.ProductDeleted,
		events.VariantCreated, events.VariantUpdated,
	)
}

func (s *Service) enqueueRebuild(ctx context.Context, payload RebuildPayload) {
	if s.queue == nil {
		return
	}
	if _, err := s.queue.Add(ctx, payload); err != nil {
		s.log.WithError(err).Warn("enqueue collection rebuild failed")
	}
}

func (s *Service) validateFilters(filters []collection.FilterConfig) error {
	for _, cfg := range filters {
		f, ok := s.registry.Get(cfg.Code)
		if !ok {
			return fmt.Errorf("unknown filter %q", cfg.Code)
		}
		if err := f.ValidateArgs(cfg.Args); err != nil {
			return fmt.Errorf("filter %q: %w", cfg.Code, err)
		}
	}
	return nil
}

// CreateCollection validates and stores a collection, then schedules its
// first membership rebuild.
func (s *Service) CreateCollection(ctx context.Context, c collection.Collection) (collection.Collection, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Slug = strings.TrimSpace(c.Slug)

	if c.Name == "" {
		return collection.Collection{}, fmt.Errorf("name is required")
	}
	if c.Slug == "" {
		c.Slug = slugify(c.Name)
	}
	if c.ParentID != "" {
		if _, err := s.store.GetCollection(ctx, c.ParentID); err != nil {
			return collection.Collection{}, fmt.Errorf("parent validation failed: %w", err)
		}
	}
	if err := s.validateFilters(c.Filters); err != nil {
		return collection.Collection{}, err
	}
	if _, err := s.store.GetCollectionBySlug(ctx, c.Slug); err == nil {
		return collection.Collection{}, fmt.Errorf("collection with slug %q already exists", c.Slug)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return collection.Collection{}, err
	}

	c, err := s.store.CreateCollection(ctx, c)
	if err != nil {
		return collection.Collection{}, err
	}
	s.log.WithField("collection_id", c.ID).WithField("slug", c.Slug).Info("collection created")
	if s.bus != nil {
		s.bus.Publish(events.New(events.CollectionModified, "collection", c.ID, map[string]any{"slug": c.Slug}))
	}
	s.enqueueRebuild(ctx, RebuildPayload{CollectionID: c.ID})
	return c, nil
}

// UpdateCollection replaces a collection's mutable fields and schedules a
// rebuild.
func (s *Service) UpdateCollection(ctx context.Context, c collection.Collection) (collection.Collection, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Slug = strings.TrimSpace(c.Slug)

	if c.ID == "" {
		return collection.Collection{}, fmt.Errorf("id is required")
	}
	if c.Name == "" {
		return collection.Collection{}, fmt.Errorf("name is required")
	}
	if c.Slug == "" {
		c.Slug = slugify(c.Name)
	}
	if c.ParentID == c.ID && c.ParentID != "" {
		return collection.Collection{}, fmt.Errorf("collection cannot be its own parent")
	}
	if err := s.validateFilters(c.Filters); err != nil {
		return collection.Collection{}, err
	}
	if existing, err := s.store.GetCollectionBySlug(ctx, c.Slug); err == nil && existing.ID != c.ID {
		return collection.Collection{}, fmt.Errorf("collection with slug %q already exists", c.Slug)
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return collection.Collection{}, err
	}

	c, err := s.store.UpdateCollection(ctx, c)
	if err != nil {
		return collection.Collection{}, err
	}
	if s.bus != nil {
		s.bus.Publish(events.New(events.CollectionModified, "collection", c.ID, map[string]any{"slug": c.Slug}))
	}
	s.enqueueRebuild(ctx, RebuildPayload{CollectionID: c.ID})
	return c, nil
}

// GetCollection fetches one collection by ID.
func (s *Service) GetCollection(ctx context.Context, id string) (collection.Collection, error) {
	return s.store.GetCollection(ctx, id)
}

// GetCollectionBySlug fetches one collection by slug.
func (s *Service) GetCollectionBySlug(ctx context.Context, slug string) (collection.Collection, error) {
	return s.store.GetCollectionBySlug(ctx, slug)
}

// ListCollections returns all collections ordered by position.
func (s *Service) ListCollections(ctx context.Context) ([]collection.Collection, error) {
	return s.store.ListCollections(ctx)
}

// DeleteCollection removes a collection and its membership.
func (s *Service) DeleteCollection(ctx context.Context, id string) error {
	return s.store.DeleteCollection(ctx, id)
}

// Members returns the variant IDs currently in the collection.
func (s *Service) Members(ctx context.Context, id string) ([]string, error) {
	return s.store.ListCollectionMembers(ctx, id)
}

// ScheduleRebuild enqueues a membership rebuild for one collection, or for
// all collections when id is empty.
func (s *Service) ScheduleRebuild(ctx context.Context, id string) error {
	if s.queue == nil {
		return fmt.Errorf("rebuild queue not attached")
	}
	payload := RebuildPayload{CollectionID: id, All: id == ""}
	_, err := s.queue.Add(ctx, payload)
	return err
}

// ProcessRebuildJob is the queue processor for QueueName.
func (s *Service) ProcessRebuildJob(ctx context.Context, job *jobqueue.ActiveJob) (any, error) {
	var payload RebuildPayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return nil, err
	}

	if payload.All {
		rebuilt, members, err := s.RebuildAll(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"collections": rebuilt, "members": members}, nil
	}

	count, err := s.Rebuild(ctx, payload.CollectionID)
	if err != nil {
		return nil, err
	}
	return map[string]int{"collections": 1, "members": count}, nil
}

// effectiveFilters returns the collection's filters, prepended with ancestor
// filters while InheritFilters is set. Cycles are cut off by depth.
func (s *Service) effectiveFilters(ctx context.Context, c collection.Collection) ([]collection.FilterConfig, error) {
	filters := append([]collection.FilterConfig(nil), c.Filters...)
	current := c
	for depth := 0; current.InheritFilters && current.ParentID != ""; depth++ {
		if depth > 32 {
			return nil, fmt.Errorf("collection %s: parent chain too deep", c.ID)
		}
		parent, err := s.store.GetCollection(ctx, current.ParentID)
		if err != nil {
			return nil, err
		}
		filters = append(append([]collection.FilterConfig(nil), parent.Filters...), filters...)
		current = parent
	}
	return filters, nil
}

// Rebuild recomputes one collection's membership and returns the member
// count. A collection with no filters has no members.
func (s *Service) Rebuild(ctx context.Context, id string) (int, error) {
	c, err := s.store.GetCollection(ctx, id)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	variants, err := s.products.ListAllVariants(ctx)
	if err != nil {
		return 0, err
	}
	members, err := s.computeMembers(ctx, c, variants, nil)
	if err != nil {
		return 0, err
	}
	if err := s.store.SetCollectionMembers(ctx, c.ID, members); err != nil {
		return 0, err
	}
	metrics.RecordCollectionRebuild(time.Since(start))

	s.log.WithField("collection_id", c.ID).
		WithField("members", len(members)).
		Info("collection membership rebuilt")
	if s.bus != nil {
		s.bus.Publish(events.New(events.CollectionRebuilt, "collection", c.ID, map[string]any{
			"members": len(members),
		}))
	}
	return len(members), nil
}

// RebuildAll recomputes every collection. Returns the number of collections
// rebuilt and the total member count.
func (s *Service) RebuildAll(ctx context.Context) (int, int, error) {
	all, err := s.store.ListCollections(ctx)
	if err != nil {
		return 0, 0, err
	}
	variants, err := s.products.ListAllVariants(ctx)
	if err != nil {
		return 0, 0, err
	}

	products := make(map[string]catalog.Product)
	totalMembers := 0
	for _, c := range all {
		start := time.Now()
		members, err := s.computeMembers(ctx, c, variants, products)
		if err != nil {
			return 0, 0, fmt.Errorf("collection %s: %w", c.ID, err)
		}
		if err := s.store.SetCollectionMembers(ctx, c.ID, members); err != nil {
			return 0, 0, err
		}
		metrics.RecordCollectionRebuild(time.Since(start))
		totalMembers += len(members)
		if s.bus != nil {
			s.bus.Publish(events.New(events.CollectionRebuilt, "collection", c.ID, map[string]any{
				"members": len(members),
			}))
		}
	}
	s.log.WithField("collections", len(all)).
		WithField("members", totalMembers).
		Info("all collection memberships rebuilt")
	return len(all), totalMembers, nil
}

// computeMembers applies the collection's effective filters to every enabled
// variant. Membership requires matching ALL filters. productCache may be
// shared across collections within one rebuild.
func (s *Service) computeMembers(ctx context.Context, c collection.Collection, variants []catalog.ProductVariant, productCache map[string]catalog.Product) ([]string, error) {
	filters, err := s.effectiveFilters(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, nil
	}

	matchers := make([]Matcher, 0, len(filters))
	for _, cfg := range filters {
		f, ok := s.registry.Get(cfg.Code)
		if !ok {
			return nil, fmt.Errorf("unknown filter %q", cfg.Code)
		}
		m, err := f.Compile(cfg.Args)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", cfg.Code, err)
		}
		matchers = append(matchers, m)
	}

	if productCache == nil {
		productCache = make(map[string]catalog.Product)
	}
	var members []string
	for _, v := range variants {
		if !v.Enabled {
			continue
		}
		product, ok := productCache[v.ProductID]
		if !ok {
			product, err = s.products.GetProduct(ctx, v.ProductID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return nil, err
			}
			productCache[v.ProductID] = product
		}
		if !product.Enabled {
			continue
		}

		matched := true
		for _, m := range matchers {
			ok, err := m(v, product)
			if err != nil {
				return nil, err
			}
			if !ok {
				matched = false
				break
			}
		}
		if matched {
			members = append(members, v.ID)
		}
	}
	return members, nil
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastDash := true
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
