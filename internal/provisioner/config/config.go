package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config defines the configuration for the provisioner service.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Log       LogConfig       `mapstructure:"log"`
	API       APIConfig       `mapstructure:"api"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Panel     PanelConfig     `mapstructure:"panel"`
	SSH       SSHConfig       `mapstructure:"ssh"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Terms     map[string]int  `mapstructure:"terms"`
}

// ServiceConfig defines service-level configuration options.
type ServiceConfig struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig defines the logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig defines the API server configuration.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// DBConfig defines the database configuration.
type DBConfig struct {
	Path            string `mapstructure:"path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // seconds
}

// RedisConfig defines the Redis connection used by the capacity cache. An
// empty Addr selects the in-process cache instead.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig defines capacity cache behavior.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// PanelConfig defines the reality link parameters shared by the fleet.
type PanelConfig struct {
	PublicKey  string `mapstructure:"public_key"`
	ServerName string `mapstructure:"server_name"`
	Flow       string `mapstructure:"flow"`
}

// SSHConfig defines timeouts for the remote panel transport.
type SSHConfig struct {
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// SchedulerConfig defines the periodic job configuration.
type SchedulerConfig struct {
	SyncInterval    time.Duration `mapstructure:"sync_interval"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// TermPrices converts the string-keyed terms map (viper only supports string
// map keys) into the int-keyed table the orchestrator consumes.
func (c *Config) TermPrices() (map[int]int, error) {
	if len(c.Terms) == 0 {
		return nil, nil
	}
	prices := make(map[int]int, len(c.Terms))
	for months, price := range c.Terms {
		m, err := strconv.Atoi(months)
		if err != nil || m <= 0 {
			return nil, fmt.Errorf("terms.%s is not a positive month count", months)
		}
		if price <= 0 {
			return nil, fmt.Errorf("terms.%s price must be positive", months)
		}
		prices[m] = price
	}
	return prices, nil
}

// Validate validates the configuration for correctness and completeness.
func (c *Config) Validate() error {
	if c.Panel.PublicKey == "" {
		return fmt.Errorf("panel.public_key is required (set SHADOWLINK_PANEL_PUBLIC_KEY env var)")
	}
	if c.Panel.ServerName == "" {
		return fmt.Errorf("panel.server_name is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Log.Level != "" && !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	if c.Log.Format != "" && c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log.format: %s (must be json or text)", c.Log.Format)
	}

	if c.Service.ShutdownTimeout > 0 && c.Service.ShutdownTimeout < time.Second {
		return fmt.Errorf("service.shutdown_timeout must be at least 1 second")
	}

	if c.Scheduler.SyncInterval > 0 && c.Scheduler.SyncInterval < time.Minute {
		return fmt.Errorf("scheduler.sync_interval must be at least 1 minute")
	}
	if c.Scheduler.RefreshInterval > 0 && c.Scheduler.RefreshInterval < 10*time.Second {
		return fmt.Errorf("scheduler.refresh_interval must be at least 10 seconds")
	}

	if _, err := c.TermPrices(); err != nil {
		return err
	}

	c.setDefaults()
	return nil
}

// setDefaults sets default values for configuration fields that are not set.
func (c *Config) setDefaults() {
	if c.Service.ShutdownTimeout <= 0 {
		c.Service.ShutdownTimeout = 30 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}

	if c.DB.Path == "" {
		c.DB.Path = "./data/provisioner.db"
	}
	if c.DB.MaxOpenConns <= 0 {
		c.DB.MaxOpenConns = 25
	}
	if c.DB.MaxIdleConns <= 0 {
		c.DB.MaxIdleConns = 5
	}
	if c.DB.ConnMaxLifetime <= 0 {
		c.DB.ConnMaxLifetime = 300
	}

	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 5 * time.Minute
	}

	if c.Panel.Flow == "" {
		c.Panel.Flow = "xtls-rprx-vision"
	}

	if c.SSH.DialTimeout <= 0 {
		c.SSH.DialTimeout = 10 * time.Second
	}
	if c.SSH.CommandTimeout <= 0 {
		c.SSH.CommandTimeout = 30 * time.Second
	}

	if c.Scheduler.SyncInterval <= 0 {
		c.Scheduler.SyncInterval = time.Hour
	}
	if c.Scheduler.RefreshInterval <= 0 {
		c.Scheduler.RefreshInterval = 5 * time.Minute
	}
}
