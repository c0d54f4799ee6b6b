package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/ws", cfg.Relay.Path)
	assert.Equal(t, 30*time.Second, cfg.Relay.PingInterval)
	assert.Equal(t, []string{"vite-hmr"}, cfg.Relay.RejectedSubprotocols)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"driver":        func(c *Config) { c.Database.Driver = "mysql" },
		"postgres url":  func(c *Config) { c.Database.Driver = "postgres"; c.Database.URL = "" },
		"relay path":    func(c *Config) { c.Relay.Path = "ws" },
		"ping interval": func(c *Config) { c.Relay.PingInterval = 0 },
		"queue size":    func(c *Config) { c.Relay.SendQueueSize = 0 },
		"jwt secret":    func(c *Config) { c.Auth.Enabled = true; c.Auth.JWTSecret = "" },
		"log level":     func(c *Config) { c.LogLevel = "loud" },
		"metrics path":  func(c *Config) { c.Metrics.Path = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadWritesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, Default().Addr, cfg.Addr)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`addr: ":9090"
relay:
  ping_interval: 5s
  rejected_subprotocols: ["vite-hmr", "webpack-hmr"]
database:
  driver: sqlite
  path: /tmp/relay.db
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	t.Setenv("CASERELAY_RELAY_SEND_QUEUE_SIZE", "8")
	t.Setenv("CASERELAY_AUTH_ENABLED", "true")

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.Relay.PingInterval)
	assert.Equal(t, []string{"vite-hmr", "webpack-hmr"}, cfg.Relay.RejectedSubprotocols)
	assert.Equal(t, "/tmp/relay.db", cfg.Database.Path)
	assert.Equal(t, 8, cfg.Relay.SendQueueSize)
	assert.True(t, cfg.Auth.Enabled)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Relay.PersistTimeout)
	require.NoError(t, cfg.Validate())
}
