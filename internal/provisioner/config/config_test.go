package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Panel: PanelConfig{
			PublicKey:  "pbk123",
			ServerName: "cdn.example.com",
		},
	}
}

func TestValidateAppliesDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.Service.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.API.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "xtls-rprx-vision", cfg.Panel.Flow)
	assert.Equal(t, time.Hour, cfg.Scheduler.SyncInterval)
}

func TestValidateRequiresPanelKeys(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panel.public_key")

	cfg.Panel.PublicKey = "pbk123"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panel.server_name")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"tiny shutdown", func(c *Config) { c.Service.ShutdownTimeout = time.Millisecond }, "shutdown_timeout"},
		{"tiny sync interval", func(c *Config) { c.Scheduler.SyncInterval = time.Second }, "sync_interval"},
		{"bad term key", func(c *Config) { c.Terms = map[string]int{"abc": 100} }, "terms.abc"},
		{"bad term price", func(c *Config) { c.Terms = map[string]int{"1": -5} }, "terms.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestTermPrices(t *testing.T) {
	cfg := validConfig()
	cfg.Terms = map[string]int{"1": 100, "3": 250, "6": 500, "12": 1000}

	prices, err := cfg.TermPrices()
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 100, 3: 250, 6: 500, 12: 1000}, prices)
}

func TestTermPricesEmpty(t *testing.T) {
	cfg := validConfig()
	prices, err := cfg.TermPrices()
	require.NoError(t, err)
	assert.Nil(t, prices, "empty terms fall back to the built-in table")
}

func TestLoaderReadsYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
log:
  level: debug
  format: text
panel:
  public_key: pbk-from-file
  server_name: cdn.example.com
terms:
  "1": 100
  "12": 1000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(cwd) })

	t.Setenv("SHADOWLINK_API_LISTEN_ADDR", ":9090")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "pbk-from-file", cfg.Panel.PublicKey)
	assert.Equal(t, ":9090", cfg.API.ListenAddr, "env overrides file")

	prices, err := cfg.TermPrices()
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 100, 12: 1000}, prices)
}

func TestLoaderMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(cwd) })

	t.Setenv("SHADOWLINK_PANEL_PUBLIC_KEY", "pbk-from-env")
	t.Setenv("SHADOWLINK_PANEL_SERVER_NAME", "cdn.example.com")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "pbk-from-env", cfg.Panel.PublicKey)
	assert.Equal(t, ":8080", cfg.API.ListenAddr)
}
