package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"chain-sentinel/internal/monitor"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Monitor.Chains = []monitor.ChainConfig{
		{Name: "ethereum", ChainID: 1, RPCURL: "https://rpc.example", BlockTime: 12 * time.Second, Enabled: true},
	}
	cfg.Auth.Tokens = []string{"dev"}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Gateway.ListenAddr != ":8090" {
		t.Errorf("default gateway addr = %q", cfg.Gateway.ListenAddr)
	}
	if cfg.Gateway.AuthTimeout != 10*time.Second {
		t.Errorf("default auth timeout = %v", cfg.Gateway.AuthTimeout)
	}
	if cfg.Broadcast.Channel != "alerts.fired" {
		t.Errorf("default broadcast channel = %q", cfg.Broadcast.Channel)
	}
	if cfg.Feed.Enabled || cfg.Storage.Enabled || cfg.Archive.Enabled {
		t.Error("feed, storage, and archive must be disabled by default")
	}
	if cfg.Monitor.MaxTxsPerPoll != 500 {
		t.Errorf("default tx cap = %d", cfg.Monitor.MaxTxsPerPoll)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
monitor:
  chains:
    - name: ethereum
      chain_id: 1
      rpc_url: "https://rpc.example"
      block_time: 12s
      enabled: true
gateway:
  listen_addr: ":9999"
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SENTINEL_CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Monitor.Chains) != 1 || cfg.Monitor.Chains[0].Name != "ethereum" {
		t.Errorf("chains = %+v", cfg.Monitor.Chains)
	}
	if cfg.Monitor.Chains[0].BlockTime != 12*time.Second {
		t.Errorf("block_time = %v, want 12s", cfg.Monitor.Chains[0].BlockTime)
	}
	if cfg.Gateway.ListenAddr != ":9999" {
		t.Errorf("gateway addr = %q", cfg.Gateway.ListenAddr)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	// Unset fields keep their defaults.
	if cfg.Broadcast.Addr != "localhost:6379" {
		t.Errorf("broadcast addr = %q, expected default", cfg.Broadcast.Addr)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("SENTINEL_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.ListenAddr != ":8090" {
		t.Errorf("missing file should yield defaults, got addr %q", cfg.Gateway.ListenAddr)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("monitor: [this is: not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SENTINEL_CONFIG_PATH", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected parse error for malformed YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	t.Setenv("SENTINEL_LOG_LEVEL", "warn")
	t.Setenv("SENTINEL_RULES_DSN", "postgres://other/db")
	t.Setenv("SENTINEL_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("SENTINEL_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SENTINEL_GATEWAY_TOKEN", "env-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	if cfg.Rules.DSN != "postgres://other/db" {
		t.Errorf("rules dsn = %q", cfg.Rules.DSN)
	}
	if cfg.Broadcast.Addr != "redis.internal:6379" {
		t.Errorf("redis addr = %q", cfg.Broadcast.Addr)
	}
	if !cfg.Feed.Enabled || len(cfg.Feed.Brokers) != 2 || cfg.Feed.Brokers[1] != "k2:9092" {
		t.Errorf("feed config = %+v", cfg.Feed)
	}
	if !cfg.Auth.Enabled || len(cfg.Auth.Tokens) == 0 {
		t.Errorf("auth config = %+v", cfg.Auth)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no chains", func(c *Config) { c.Monitor.Chains = nil }, true},
		{"unnamed chain", func(c *Config) { c.Monitor.Chains[0].Name = "" }, true},
		{"duplicate chain names", func(c *Config) {
			c.Monitor.Chains = append(c.Monitor.Chains, c.Monitor.Chains[0])
		}, true},
		{"enabled chain without rpc url", func(c *Config) { c.Monitor.Chains[0].RPCURL = "" }, true},
		{"disabled chain without rpc url", func(c *Config) {
			c.Monitor.Chains[0].RPCURL = ""
			c.Monitor.Chains[0].Enabled = false
		}, false},
		{"negative block time", func(c *Config) { c.Monitor.Chains[0].BlockTime = -time.Second }, true},
		{"missing rules dsn", func(c *Config) { c.Rules.DSN = "" }, true},
		{"missing gateway addr", func(c *Config) { c.Gateway.ListenAddr = "" }, true},
		{"auth enabled without tokens", func(c *Config) { c.Auth.Tokens = nil }, true},
		{"feed enabled without brokers", func(c *Config) {
			c.Feed.Enabled = true
			c.Feed.Brokers = nil
		}, true},
		{"archive enabled without bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.S3.Bucket = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" a, b ,, c ", ",")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitAndTrim = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitAndTrim[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
