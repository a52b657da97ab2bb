package app

import (
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	emailsvc "github.com/shopforge/shopforge/internal/app/services/email"
	"github.com/shopforge/shopforge/internal/app/storage/postgres"
	"github.com/shopforge/shopforge/internal/assetstorage"
	"github.com/shopforge/shopforge/internal/config"
	"github.com/shopforge/shopforge/internal/jobqueue"
	"github.com/shopforge/shopforge/pkg/logger"
)

// FromConfig assembles an application from environment configuration,
// selecting stores, queue strategy, asset storage and email transport. The
// returned cleanup closes any connections opened here and must be called
// after Stop.
func FromConfig(cfg *config.Config, worker bool, log *logger.Logger) (*Application, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var stores Stores
	var db *sqlx.DB
	if cfg.Database.DSN != "" {
		var err error
		db, err = sqlx.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, cleanup, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		closers = append(closers, func() { _ = db.Close() })

		if err := postgres.Migrate(db); err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("migrate database: %w", err)
		}
		store := postgres.New(db)
		stores = Stores{
			Products:    store,
			Assets:      store,
			Collections: store,
			Customers:   store,
			Email:       store,
		}
	}

	strategy, err := queueStrategyFromConfig(cfg, db, &closers)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	var assetFiles assetstorage.Strategy
	if cfg.Assets.Strategy == "local" {
		assetFiles, err = assetstorage.NewLocalStrategy(cfg.Assets.BaseDir, cfg.Assets.BaseURL)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("local asset storage: %w", err)
		}
	}

	var transport emailsvc.Transport
	if cfg.Email.Transport == "smtp" {
		transport, err = emailsvc.NewSMTPTransport(emailsvc.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUser,
			Password: cfg.Email.SMTPPass,
			From:     cfg.Email.From,
		})
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("smtp transport: %w", err)
		}
	}

	application, err := New(stores, Options{
		QueueStrategy: strategy,
		Queue: jobqueue.Options{
			PollInterval:   cfg.Queue.PollInterval,
			DefaultRetries: cfg.Queue.DefaultRetries,
			BackoffBase:    cfg.Queue.BackoffBase,
			BackoffCap:     cfg.Queue.BackoffCap,
			DrainTimeout:   cfg.Queue.DrainTimeout,
		},
		JobRetention:   cfg.Queue.Retention,
		AssetFiles:     assetFiles,
		EmailTransport: transport,
		SiteURL:        cfg.Email.SiteURL,
		Auth:           cfg.Auth,
		Plugins:        config.LoadPluginsConfigOrDefault(),
		DB:             db,
		Worker:         worker,
	}, log)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return application, cleanup, nil
}

func queueStrategyFromConfig(cfg *config.Config, db *sqlx.DB, closers *[]func()) (jobqueue.Strategy, error) {
	switch cfg.Queue.Strategy {
	case "memory":
		return jobqueue.NewMemoryStrategy(), nil
	case "sql":
		if db == nil {
			return nil, fmt.Errorf("queue strategy sql requires a database")
		}
		return jobqueue.NewSQLStrategy(db), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		*closers = append(*closers, func() { _ = client.Close() })
		return jobqueue.NewRedisStrategy(client), nil
	case "amqp":
		var inner jobqueue.Strategy
		if db != nil {
			inner = jobqueue.NewSQLStrategy(db)
		} else {
			inner = jobqueue.NewMemoryStrategy()
		}
		strategy, err := jobqueue.NewAMQPStrategy(cfg.AMQP.URL, cfg.AMQP.Exchange, inner)
		if err != nil {
			return nil, fmt.Errorf("amqp strategy: %w", err)
		}
		*closers = append(*closers, func() { _ = strategy.Close() })
		return strategy, nil
	default:
		return nil, fmt.Errorf("unknown queue strategy %q", cfg.Queue.Strategy)
	}
}
