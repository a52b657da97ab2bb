// Package app composes the commerce core into a running application.
//
// # Architecture Role
//
// The app package sits above the reusable subsystems (events, jobqueue,
// assetstorage, plugin) and wires them into services with their storage and
// lifecycle. It is NOT a business logic layer - business logic belongs in
// internal/app/services/.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── catalog/        # Products, variants, facet values
//	│   ├── asset/          # Asset records
//	│   ├── collection/     # Collections and filter configs
//	│   ├── customer/       # Customer accounts
//	│   └── email/          # Outbound message records
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # Store interfaces (ProductStore, AssetStore, ...)
//	│   ├── memory/         # In-memory implementation for testing
//	│   └── postgres/       # PostgreSQL implementation for production
//	├── services/           # Business logic (catalog, collections, assets,
//	│                       # customers, email, scheduler, health)
//	├── httpapi/            # Admin REST API handlers and routing
//	├── system/             # Lifecycle management
//	└── metrics/            # Prometheus collectors
//
// # Example: Adding a New Domain
//
// When adding a new domain (e.g., "promotions"):
//
//  1. Create domain models in internal/app/domain/promotion/
//  2. Add a store interface to internal/app/storage/interfaces.go
//  3. Implement storage in internal/app/storage/postgres/ and memory/
//  4. Create the service in internal/app/services/promotions/service.go
//  5. Wire the service in internal/app/application.go
//  6. Add HTTP handlers in internal/app/httpapi/
//
// Or ship it as a plugin: implement plugin.Plugin, register it in an init()
// function, and contribute routes, queues, and event subscriptions through
// the narrow contributor interfaces.
package app
