package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PluginSettings holds per-plugin configuration from plugins.yaml.
type PluginSettings struct {
	Enabled  bool              `yaml:"enabled"`
	Settings map[string]string `yaml:"settings"`
}

// PluginsConfig maps plugin IDs to their settings.
type PluginsConfig struct {
	Plugins map[string]*PluginSettings `yaml:"plugins"`
}

// LoadPluginsConfig loads plugin configuration from config/plugins.yaml.
func LoadPluginsConfig() (*PluginsConfig, error) {
	return LoadPluginsConfigFromPath(filepath.Join("config", "plugins.yaml"))
}

// LoadPluginsConfigFromPath loads plugin configuration from a specific path.
func LoadPluginsConfigFromPath(path string) (*PluginsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugins config: %w", err)
	}

	var cfg PluginsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse plugins config: %w", err)
	}
	return &cfg, nil
}

// LoadPluginsConfigOrDefault loads plugin configuration, falling back to an
// empty config (all registered plugins enabled) when the file is absent.
func LoadPluginsConfigOrDefault() *PluginsConfig {
	cfg, err := LoadPluginsConfig()
	if err != nil {
		return &PluginsConfig{Plugins: map[string]*PluginSettings{}}
	}
	return cfg
}

// Enabled reports whether a plugin should be initialized. Plugins without an
// explicit entry default to enabled.
func (c *PluginsConfig) Enabled(id string) bool {
	if c == nil || c.Plugins == nil {
		return true
	}
	settings, ok := c.Plugins[id]
	if !ok {
		return true
	}
	return settings.Enabled
}

// Settings returns the settings map for a plugin, possibly nil.
func (c *PluginsConfig) SettingsFor(id string) map[string]string {
	if c == nil || c.Plugins == nil {
		return nil
	}
	if settings, ok := c.Plugins[id]; ok {
		return settings.Settings
	}
	return nil
}
