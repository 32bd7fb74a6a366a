// Package config handles configuration loading for chain-sentinel.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chain-sentinel/internal/archive"
	"chain-sentinel/internal/auth"
	"chain-sentinel/internal/broadcast"
	"chain-sentinel/internal/feed"
	"chain-sentinel/internal/gateway"
	"chain-sentinel/internal/monitor"
	"chain-sentinel/internal/rules"
)

// Config holds the complete application configuration.
type Config struct {
	Monitor    monitor.Config        `yaml:"monitor"`
	Rules      rules.PostgresConfig  `yaml:"rules"`
	Storage    StorageConfig         `yaml:"storage"`
	Broadcast  broadcast.RedisConfig `yaml:"broadcast"`
	Feed       feed.Config           `yaml:"feed"`
	Auth       auth.Config           `yaml:"auth"`
	Gateway    gateway.Config        `yaml:"gateway"`
	Archive    archive.Config        `yaml:"archive"`
	Validation ValidationConfig      `yaml:"validation"`
	Logging    LoggingConfig         `yaml:"logging"`
}

// StorageConfig holds alert persistence settings.
type StorageConfig struct {
	// Enabled selects ClickHouse persistence; when false alerts are kept in
	// an in-memory store (development only).
	Enabled    bool             `yaml:"enabled"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// ValidationConfig holds transaction validation settings.
type ValidationConfig struct {
	MaxTxAge  time.Duration `yaml:"max_tx_age"`
	MaxFuture time.Duration `yaml:"max_future"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Monitor: monitor.DefaultConfig(),
		Rules:   rules.DefaultPostgresConfig(),
		Storage: StorageConfig{
			Enabled: false, // Disabled by default for development without ClickHouse
			ClickHouse: ClickHouseConfig{
				Hosts:           []string{"localhost:9000"},
				Database:        "sentinel",
				Username:        "default",
				Password:        "",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
				TLSEnabled:      false,
				DialTimeout:     10 * time.Second,
			},
		},
		Broadcast: broadcast.DefaultRedisConfig(),
		Feed:      feed.DefaultConfig(),
		Auth:      auth.DefaultConfig(),
		Gateway:   gateway.DefaultConfig(),
		Archive:   archive.DefaultConfig(),
		Validation: ValidationConfig{
			MaxTxAge:  24 * time.Hour,
			MaxFuture: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Check for config file path in environment
	configPath := os.Getenv("SENTINEL_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, use defaults
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("SENTINEL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if dsn := os.Getenv("SENTINEL_RULES_DSN"); dsn != "" {
		c.Rules.DSN = dsn
	}

	if enabled := os.Getenv("SENTINEL_STORAGE_ENABLED"); enabled == "true" {
		c.Storage.Enabled = true
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Storage.ClickHouse.Hosts = []string{host}
	}

	if db := os.Getenv("CLICKHOUSE_DATABASE"); db != "" {
		c.Storage.ClickHouse.Database = db
	}

	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.Storage.ClickHouse.Username = user
	}

	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Storage.ClickHouse.Password = pass
	}

	if addr := os.Getenv("SENTINEL_REDIS_ADDR"); addr != "" {
		c.Broadcast.Addr = addr
	}

	if pass := os.Getenv("SENTINEL_REDIS_PASSWORD"); pass != "" {
		c.Broadcast.Password = pass
	}

	if brokers := os.Getenv("SENTINEL_KAFKA_BROKERS"); brokers != "" {
		c.Feed.Brokers = splitAndTrim(brokers, ",")
		c.Feed.Enabled = true
	}

	if token := os.Getenv("SENTINEL_GATEWAY_TOKEN"); token != "" {
		c.Auth.Tokens = append(c.Auth.Tokens, token)
		c.Auth.Enabled = true
	}

	if addr := os.Getenv("SENTINEL_GATEWAY_ADDR"); addr != "" {
		c.Gateway.ListenAddr = addr
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Monitor.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}

	seen := make(map[string]bool)
	for _, chain := range c.Monitor.Chains {
		if chain.Name == "" {
			return fmt.Errorf("chain name is required")
		}
		if seen[chain.Name] {
			return fmt.Errorf("duplicate chain name %q", chain.Name)
		}
		seen[chain.Name] = true
		if chain.Enabled && chain.RPCURL == "" {
			return fmt.Errorf("chain %q: rpc_url is required", chain.Name)
		}
		if chain.BlockTime < 0 {
			return fmt.Errorf("chain %q: block_time must not be negative", chain.Name)
		}
	}

	if c.Rules.DSN == "" {
		return fmt.Errorf("rules dsn is required")
	}

	if c.Gateway.ListenAddr == "" {
		return fmt.Errorf("gateway listen_addr is required")
	}

	if err := c.Auth.Validate(); err != nil {
		return err
	}

	if err := c.Feed.Validate(); err != nil {
		return err
	}

	if c.Archive.Enabled {
		if err := c.Archive.S3.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// splitAndTrim splits a string by separator and trims whitespace from each part.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
