package plugin

import (
	"context"
	"fmt"

	"github.com/gorilla/mux"

	"github.com/shopforge/shopforge/internal/config"
	"github.com/shopforge/shopforge/pkg/logger"
)

// Manager instantiates enabled plugins and drives their lifecycle. It
// implements system.Service.
type Manager struct {
	cfg  *config.PluginsConfig
	host *Host
	log  *logger.Logger

	plugins []Plugin
	started bool
}

// NewManager builds a manager over the global registry. Disabled plugins
// stay registered but are never instantiated.
func NewManager(cfg *config.PluginsConfig, host *Host, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("plugins")
	}
	return &Manager{cfg: cfg, host: host, log: log}
}

// Init instantiates every enabled plugin and calls its Init with a Host
// carrying that plugin's settings.
func (m *Manager) Init(ctx context.Context) error {
	for _, id := range List() {
		if !m.cfg.Enabled(id) {
			m.log.WithField("plugin", id).Info("plugin disabled by config")
			continue
		}
		factory, _ := Get(id)
		p := factory()

		host := *m.host
		host.Settings = m.cfg.SettingsFor(id)
		if host.Log != nil {
			host.Log = host.Log.Named("plugin." + id)
		}
		if err := p.Init(ctx, &host); err != nil {
			return fmt.Errorf("init plugin %s: %w", id, err)
		}

		if jc, ok := p.(JobContributor); ok && host.Jobs != nil {
			if err := jc.RegisterQueues(host.Jobs); err != nil {
				return fmt.Errorf("plugin %s queues: %w", id, err)
			}
		}
		if ec, ok := p.(EventContributor); ok && host.Bus != nil {
			ec.Subscribe(host.Bus)
		}

		m.plugins = append(m.plugins, p)
		m.log.WithField("plugin", id).
			WithField("version", p.Version()).
			Info("plugin initialized")
	}
	return nil
}

// MountRoutes asks every router-contributing plugin to register its routes.
func (m *Manager) MountRoutes(r *mux.Router) {
	for _, p := range m.plugins {
		if rc, ok := p.(RouterContributor); ok {
			rc.Routes(r)
		}
	}
}

// HealthCheck probes every plugin that reports health.
func (m *Manager) HealthCheck(ctx context.Context) error {
	for _, p := range m.plugins {
		hr, ok := p.(HealthReporter)
		if !ok {
			continue
		}
		if err := hr.HealthCheck(ctx); err != nil {
			return fmt.Errorf("plugin %s: %w", p.ID(), err)
		}
	}
	return nil
}

// Active returns the initialized plugins.
func (m *Manager) Active() []Plugin { return m.plugins }

// Name implements system.Service.
func (m *Manager) Name() string { return "plugins" }

// Start starts every initialized plugin in order.
func (m *Manager) Start(ctx context.Context) error {
	if m.started {
		return fmt.Errorf("plugins already started")
	}
	for _, p := range m.plugins {
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("start plugin %s: %w", p.ID(), err)
		}
	}
	m.started = true
	return nil
}

// Stop stops plugins in reverse order, collecting the first error.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.started {
		return nil
	}
	m.started = false

	var firstErr error
	for i := len(m.plugins) - 1; i >= 0; i-- {
		p := m.plugins[i]
		if err := p.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop plugin %s: %w", p.ID(), err)
		}
	}
	return firstErr
}
