package plugin

import (
	"context"
	"testing"

	"github.com/shopforge/shopforge/internal/config"
)

type stubPlugin struct {
	id      string
	inited  bool
	started bool
	stopped bool
	host    *Host
}

func (p *stubPlugin) ID() string      { return p.id }
func (p *stubPlugin) Name() string    { return p.id }
func (p *stubPlugin) Version() string { return "1.0.0" }

func (p *stubPlugin) Init(_ context.Context, host *Host) error {
	p.inited = true
	p.host = host
	return nil
}

func (p *stubPlugin) Start(context.Context) error { p.started = true; return nil }
func (p *stubPlugin) Stop(context.Context) error  { p.stopped = true; return nil }

// onlyEnabled returns a config enabling exactly one registered plugin, so
// tests stay independent of what other tests register.
func onlyEnabled(id string) *config.PluginsConfig {
	cfg := &config.PluginsConfig{Plugins: map[string]*config.PluginSettings{}}
	for _, registered := range List() {
		cfg.Plugins[registered] = &config.PluginSettings{Enabled: registered == id}
	}
	return cfg
}

func TestRegistryLookup(t *testing.T) {
	p := &stubPlugin{id: "test-lookup"}
	Register("test-lookup", Info{Name: "Lookup"}, func() Plugin { return p })

	if !IsRegistered("test-lookup") {
		t.Fatal("plugin not registered")
	}
	factory, ok := Get("test-lookup")
	if !ok || factory() != p {
		t.Fatal("factory lookup failed")
	}
	info, ok := InfoFor("test-lookup")
	if !ok || info.ID != "test-lookup" || info.Name != "Lookup" {
		t.Fatalf("info = %+v", info)
	}
	if _, ok := Get("missing"); ok {
		t.Fatal("missing plugin found")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("test-dup", Info{}, func() Plugin { return &stubPlugin{id: "test-dup"} })

	defer func() {
		if recover() == nil {
			t.Fatal("duplicate registration did not panic")
		}
	}()
	Register("test-dup", Info{}, func() Plugin { return nil })
}

func TestManagerLifecycle(t *testing.T) {
	p := &stubPlugin{id: "test-lifecycle"}
	Register("test-lifecycle", Info{}, func() Plugin { return p })

	cfg := onlyEnabled("test-lifecycle")
	cfg.Plugins["test-lifecycle"].Settings = map[string]string{"key": "value"}
	m := NewManager(cfg, &Host{}, nil)

	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !p.inited {
		t.Fatal("plugin not initialized")
	}
	if p.host.Settings["key"] != "value" {
		t.Fatalf("settings = %v", p.host.Settings)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !p.started {
		t.Fatal("plugin not started")
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !p.stopped {
		t.Fatal("plugin not stopped")
	}
}

func TestManagerSkipsDisabledPlugins(t *testing.T) {
	p := &stubPlugin{id: "test-disabled"}
	Register("test-disabled", Info{}, func() Plugin { return p })

	cfg := onlyEnabled("")
	m := NewManager(cfg, &Host{}, nil)

	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if p.inited {
		t.Fatal("disabled plugin was initialized")
	}
}
