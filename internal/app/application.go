package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shopforge/shopforge/internal/app/metrics"
	assetsvc "github.com/shopforge/shopforge/internal/app/services/assets"
	catalogsvc "github.com/shopforge/shopforge/internal/app/services/catalog"
	collectionsvc "github.com/shopforge/shopforge/internal/app/services/collections"
	customersvc "github.com/shopforge/shopforge/internal/app/services/customers"
	emailsvc "github.com/shopforge/shopforge/internal/app/services/email"
	healthsvc "github.com/shopforge/shopforge/internal/app/services/health"
	schedulersvc "github.com/shopforge/shopforge/internal/app/services/scheduler"
	"github.com/shopforge/shopforge/internal/app/storage"
	"github.com/shopforge/shopforge/internal/app/storage/memory"
	"github.com/shopforge/shopforge/internal/app/system"
	"github.com/shopforge/shopforge/internal/assetstorage"
	"github.com/shopforge/shopforge/internal/config"
	"github.com/shopforge/shopforge/internal/events"
	"github.com/shopforge/shopforge/internal/jobqueue"
	"github.com/shopforge/shopforge/internal/plugin"
	"github.com/shopforge/shopforge/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Products    storage.ProductStore
	Assets      storage.AssetStore
	Collections storage.CollectionStore
	Customers   storage.CustomerStore
	Email       storage.EmailStore
}

// Options configures optional strategies and wiring. Zero values give an
// all-in-memory application suitable for tests and local development.
type Options struct {
	// QueueStrategy selects job persistence. Nil defaults to memory.
	QueueStrategy jobqueue.Strategy
	// Queue tunes the worker pools.
	Queue jobqueue.Options
	// JobRetention bounds how long settled jobs are kept.
	JobRetention time.Duration
	// AssetFiles selects asset file storage. Nil defaults to memory.
	AssetFiles assetstorage.Strategy
	// EmailTransport selects delivery. Nil defaults to the logger transport.
	EmailTransport emailsvc.Transport
	// SiteURL prefixes links in outbound emails.
	SiteURL string
	// Auth feeds customer token issuance.
	Auth config.AuthConfig
	// Plugins enables config-driven plugins. Nil skips plugin init.
	Plugins *config.PluginsConfig
	// DB, when set, adds a database ping to the health report.
	DB *sqlx.DB
	// Worker enables queue workers and the scheduler. The API-only server
	// process sets this false and leaves processing to a worker process.
	Worker bool
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Bus         *events.Bus
	Jobs        *jobqueue.Service
	Catalog     *catalogsvc.Service
	Collections *collectionsvc.Service
	Assets      *assetsvc.Service
	Customers   *customersvc.Service
	Email       *emailsvc.Service
	Scheduler   *schedulersvc.Service
	Health      *healthsvc.Service
	Plugins     *plugin.Manager
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Products == nil {
		stores.Products = mem
	}
	if stores.Assets == nil {
		stores.Assets = mem
	}
	if stores.Collections == nil {
		stores.Collections = mem
	}
	if stores.Customers == nil {
		stores.Customers = mem
	}
	if stores.Email == nil {
		stores.Email = mem
	}
	if opts.QueueStrategy == nil {
		opts.QueueStrategy = jobqueue.NewMemoryStrategy()
	}
	if opts.AssetFiles == nil {
		opts.AssetFiles = assetstorage.NewMemoryStrategy()
	}

	bus := events.NewBus()
	bus.SetDropHook(metrics.SetEventsDropped)
	manager := system.NewManager()

	jobs := jobqueue.NewService(opts.QueueStrategy, bus, log.Named("jobqueue"), opts.Queue)
	jobs.SetHooks(metrics.RecordJobAdded, metrics.RecordJobSettled)

	catalog := catalogsvc.New(stores.Products, bus, log.Named("catalog"))
	collections := collectionsvc.New(stores.Collections, stores.Products, nil, bus, log.Named("collections"))
	assets := assetsvc.New(stores.Assets, opts.AssetFiles, bus, log.Named("assets"))
	customers := customersvc.New(stores.Customers, bus, log.Named("customers"), customersvc.Options{
		TokenSecret: opts.Auth.JWTSecret,
		TokenTTL:    opts.Auth.TokenTTL,
	})
	email := emailsvc.New(stores.Email, opts.EmailTransport, bus, log.Named("email"))

	rebuildQueue, err := jobs.CreateQueue(collectionsvc.QueueName, jobqueue.QueueOptions{MaxRetries: -1}, collections.ProcessRebuildJob)
	if err != nil {
		return nil, fmt.Errorf("create rebuild queue: %w", err)
	}
	collections.AttachQueue(rebuildQueue)

	assetQueue, err := jobs.CreateQueue(assetsvc.QueueName, jobqueue.QueueOptions{MaxRetries: -1}, assets.ProcessAssetJob)
	if err != nil {
		return nil, fmt.Errorf("create asset queue: %w", err)
	}
	assets.AttachQueue(assetQueue)

	emailQueue, err := jobs.CreateQueue(emailsvc.QueueName, jobqueue.QueueOptions{MaxRetries: -1}, email.ProcessSendJob)
	if err != nil {
		return nil, fmt.Errorf("create email queue: %w", err)
	}
	email.AttachQueue(emailQueue)

	for _, l := range emailsvc.BuiltinListeners(emailsvc.BaseURLs{Storefront: opts.SiteURL}) {
		if err := email.RegisterListener(l); err != nil {
			return nil, fmt.Errorf("register email listener: %w", err)
		}
	}
	email.Subscribe()
	collections.SubscribeCatalogEvents()

	scheduler := schedulersvc.New(log.Named("scheduler"))
	if err := scheduler.Register(schedulersvc.PurgeSettledJobsTask(opts.QueueStrategy, opts.JobRetention)); err != nil {
		return nil, err
	}
	if err := scheduler.Register(schedulersvc.RebuildCollectionsTask(collections)); err != nil {
		return nil, err
	}

	health := healthsvc.New(log.Named("health"))
	health.RegisterCheck("jobqueue", healthsvc.QueueCheck(opts.QueueStrategy))
	if opts.DB != nil {
		health.RegisterCheck("database", healthsvc.DatabaseCheck(opts.DB))
	}

	app := &Application{
		manager:     manager,
		log:         log,
		Bus:         bus,
		Jobs:        jobs,
		Catalog:     catalog,
		Collections: collections,
		Assets:      assets,
		Customers:   customers,
		Email:       email,
		Scheduler:   scheduler,
		Health:      health,
	}

	if opts.Plugins != nil {
		app.Plugins = plugin.NewManager(opts.Plugins, &plugin.Host{
			Catalog:     catalog,
			Collections: collections,
			Assets:      assets,
			Customers:   customers,
			Jobs:        jobs,
			Bus:         bus,
			Log:         log,
		}, log.Named("plugins"))
		if err := app.Plugins.Init(context.Background()); err != nil {
			return nil, err
		}
		health.RegisterCheck("plugins", app.Plugins.HealthCheck)
	}

	if opts.Worker {
		if err := manager.Register(jobs); err != nil {
			return nil, fmt.Errorf("register job queue: %w", err)
		}
		if err := manager.Register(scheduler); err != nil {
			return nil, fmt.Errorf("register scheduler: %w", err)
		}
	}
	if app.Plugins != nil {
		if err := manager.Register(app.Plugins); err != nil {
			return nil, fmt.Errorf("register plugins: %w", err)
		}
	}

	return app, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services and closes the event bus.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	metrics.SetEventsDropped(a.Bus.Dropped())
	a.Bus.Close()
	return err
}
