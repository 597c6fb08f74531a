// Package config loads the Drift client configuration from
// ~/.drift/config.toml with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the client configuration stored in ~/.drift/config.toml.
type Config struct {
	// DirectoryURL is the base URL of the remote identity/group service.
	DirectoryURL string `toml:"directory_url"`

	// RelayBackend selects the transport: "ws" or "nats".
	RelayBackend string `toml:"relay_backend"`
	RelayURL     string `toml:"relay_url"`
	NATSURL      string `toml:"nats_url"`

	// DataDir holds the persisted JSON records. Ignored when RedisAddr is
	// set, in which case records live in Redis instead.
	DataDir   string `toml:"data_dir"`
	RedisAddr string `toml:"redis_addr"`

	// MetricsAddr, when set, serves Prometheus metrics on that address.
	MetricsAddr string `toml:"metrics_addr"`

	DialTimeoutSeconds  int `toml:"dial_timeout_seconds"`
	ReconnectWaitMillis int `toml:"reconnect_wait_millis"`
	MaxReconnects       int `toml:"max_reconnects"`
}

// Default returns the configuration used when no file or overrides exist.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DirectoryURL:        "https://directory.driftchat.dev/apis/v1",
		RelayBackend:        "ws",
		RelayURL:            "wss://relay.driftchat.dev/ws",
		NATSURL:             "nats://localhost:4222",
		DataDir:             filepath.Join(home, ".drift", "data"),
		DialTimeoutSeconds:  20,
		ReconnectWaitMillis: 1000,
		MaxReconnects:       5,
	}
}

// Path returns the config file location, creating ~/.drift if needed.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".drift")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("config: cannot create config directory: %w", err)
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load builds the effective configuration: defaults, overlaid by the config
// file when present, overlaid by environment variables.
func Load() (Config, error) {
	cfg := Default()

	path, err := Path()
	if err != nil {
		return cfg, err
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Save writes the configuration file.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides file values from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DIRECTORY_URL"); v != "" {
		cfg.DirectoryURL = v
	}
	if v := os.Getenv("RELAY_BACKEND"); v != "" {
		cfg.RelayBackend = v
	}
	if v := os.Getenv("RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("MAX_RECONNECTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxReconnects = n
		}
	}
}

// DialTimeout returns the connection-attempt timeout as a duration.
func (c Config) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSeconds) * time.Second
}

// ReconnectWait returns the fixed inter-attempt reconnect delay.
func (c Config) ReconnectWait() time.Duration {
	return time.Duration(c.ReconnectWaitMillis) * time.Millisecond
}
