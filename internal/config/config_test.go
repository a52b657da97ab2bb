package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Queue.Strategy)
	assert.Equal(t, 200*time.Millisecond, cfg.Queue.PollInterval)
	assert.Equal(t, 720*time.Hour, cfg.Queue.Retention)
	assert.Equal(t, "local", cfg.Assets.Strategy)
	assert.Equal(t, "logger", cfg.Email.Transport)
	assert.True(t, cfg.Auth.SkipOnEmpty)
	assert.True(t, cfg.Server.EmbeddedWorker)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("QUEUE_STRATEGY", "redis")
	t.Setenv("QUEUE_POLL_INTERVAL", "50ms")
	t.Setenv("EMAIL_TRANSPORT", "smtp")
	t.Setenv("AMQP_EXCHANGE", "shopforge.jobs")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Queue.Strategy)
	assert.Equal(t, 50*time.Millisecond, cfg.Queue.PollInterval)
	assert.Equal(t, "smtp", cfg.Email.Transport)
	assert.Equal(t, "shopforge.jobs", cfg.AMQP.Exchange)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("QUEUE_STRATEGY", "carrier-pigeon")
	_, err := Load()
	assert.ErrorContains(t, err, "unknown queue strategy")

	t.Setenv("QUEUE_STRATEGY", "sql")
	t.Setenv("DB_DSN", "")
	_, err = Load()
	assert.ErrorContains(t, err, "requires DB_DSN")

	t.Setenv("QUEUE_STRATEGY", "memory")
	t.Setenv("QUEUE_BACKOFF_BASE", "10s")
	t.Setenv("QUEUE_BACKOFF_CAP", "1s")
	_, err = Load()
	assert.ErrorContains(t, err, "backoff")
}

func TestCORSOriginList(t *testing.T) {
	cfg := ServerConfig{CORSOrigins: "https://a.example, https://b.example ,, "}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOriginList())

	cfg = ServerConfig{CORSOrigins: "*"}
	assert.Equal(t, []string{"*"}, cfg.CORSOriginList())
}

func TestPluginsConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugins.yaml")
	data := []byte(`plugins:
  reviews:
    enabled: true
    settings:
      blocked_words: "spam,scam"
  wishlist:
    enabled: false
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadPluginsConfigFromPath(path)
	require.NoError(t, err)

	assert.True(t, cfg.Enabled("reviews"))
	assert.False(t, cfg.Enabled("wishlist"))
	// Plugins without an entry default to enabled.
	assert.True(t, cfg.Enabled("unlisted"))

	assert.Equal(t, "spam,scam", cfg.SettingsFor("reviews")["blocked_words"])
	assert.Nil(t, cfg.SettingsFor("unlisted"))
}

func TestLoadPluginsConfigMissingFile(t *testing.T) {
	_, err := LoadPluginsConfigFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	cfg := LoadPluginsConfigOrDefault()
	assert.True(t, cfg.Enabled("anything"))
}
