package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from YAML files and environment variables
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// Load loads configuration from files and environment variables.
// YAML files take precedence, then ENV variables override.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName("config")
	l.v.SetConfigType("yaml")

	// Search paths in order of priority.
	l.v.AddConfigPath("/etc/shadow-link")
	l.v.AddConfigPath("$HOME/.shadow-link")
	l.v.AddConfigPath(".")

	l.v.SetEnvPrefix("SHADOWLINK")
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	l.setDefaults()

	// Config file is optional; defaults plus ENV are a full configuration.
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("service.shutdown_timeout", "30s")

	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "json")

	l.v.SetDefault("api.listen_addr", ":8080")

	l.v.SetDefault("db.path", "./data/provisioner.db")
	l.v.SetDefault("db.max_open_conns", 25)
	l.v.SetDefault("db.max_idle_conns", 5)
	l.v.SetDefault("db.conn_max_lifetime", 300)

	l.v.SetDefault("redis.addr", "")
	l.v.SetDefault("redis.db", 0)

	l.v.SetDefault("cache.ttl", "5m")

	// Empty defaults keep these keys visible to AutomaticEnv during Unmarshal.
	l.v.SetDefault("panel.public_key", "")
	l.v.SetDefault("panel.server_name", "")
	l.v.SetDefault("panel.flow", "xtls-rprx-vision")

	l.v.SetDefault("ssh.dial_timeout", "10s")
	l.v.SetDefault("ssh.command_timeout", "30s")

	l.v.SetDefault("scheduler.sync_interval", "1h")
	l.v.SetDefault("scheduler.refresh_interval", "5m")
}
