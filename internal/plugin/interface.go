// Package plugin provides the commerce plugin system. All plugins are
// compiled into the binary and enabled or disabled via configuration, so a
// deployment can trim surface area without rebuilding.
package plugin

import (
	"context"

	"github.com/gorilla/mux"

	"github.com/shopforge/shopforge/internal/app/services/assets"
	"github.com/shopforge/shopforge/internal/app/services/catalog"
	"github.com/shopforge/shopforge/internal/app/services/collections"
	"github.com/shopforge/shopforge/internal/app/services/customers"
	"github.com/shopforge/shopforge/internal/events"
	"github.com/shopforge/shopforge/internal/jobqueue"
	"github.com/shopforge/shopforge/pkg/logger"
)

// Host exposes the application's core services to plugins.
type Host struct {
	Catalog     *catalog.Service
	Collections *collections.Service
	Assets      *assets.Service
	Customers   *customers.Service
	Jobs        *jobqueue.Service
	Bus         *events.Bus
	Log         *logger.Logger
	// Settings holds the plugin's entry from plugins.yaml.
	Settings map[string]string
}

// Plugin is the contract every commerce plugin implements.
type Plugin interface {
	// Identity
	ID() string
	Name() string
	Version() string

	// Init wires the plugin into the host. Called once before Start.
	Init(ctx context.Context, host *Host) error

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// RouterContributor lets a plugin mount HTTP routes on the admin API.
type RouterContributor interface {
	Routes(r *mux.Router)
}

// JobContributor lets a plugin register its own job queues.
type JobContributor interface {
	RegisterQueues(jobs *jobqueue.Service) error
}

// EventContributor lets a plugin subscribe to the event bus.
type EventContributor interface {
	Subscribe(bus *events.Bus)
}

// HealthReporter lets a plugin surface its own health check.
type HealthReporter interface {
	HealthCheck(ctx context.Context) error
}

// Info contains static information about a registered plugin.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}
