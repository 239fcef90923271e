package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded on top of Default so omitted keys keep their defaults,
// then the result is validated. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes a YAML document into a defaulted Config without validating it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention PASSTHROUGH_FIELD (e.g., PASSTHROUGH_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// An empty path skips the file and starts from Default.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if path == "" {
		cfg = Default()
	} else {
		cfg, err = LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("PASSTHROUGH_LISTEN_ADDRESS"); val != "" {
		cfg.Proxy.ListenAddress = val
	}
	if val := os.Getenv("PASSTHROUGH_UPSTREAM_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Passthrough.UpstreamTimeout = d
		}
	}
	if val := os.Getenv("PASSTHROUGH_PREMIUM_USER"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Passthrough.PremiumUser = b
		}
	}

	if val := os.Getenv("PASSTHROUGH_LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = strings.ToLower(val)
	}
	if val := os.Getenv("PASSTHROUGH_LOG_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = strings.ToLower(val)
	}

	if val := os.Getenv("PASSTHROUGH_STORE_BACKEND"); val != "" {
		cfg.Store.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("PASSTHROUGH_STORE_PATH"); val != "" {
		// Applies to whichever path-based backend is selected.
		cfg.Store.File.Path = val
		cfg.Store.SQLite.Path = val
	}
	if val := os.Getenv("PASSTHROUGH_REDIS_URL"); val != "" {
		cfg.Store.Redis.URL = val
	}

	addr, token := os.Getenv("PASSTHROUGH_VAULT_ADDR"), os.Getenv("PASSTHROUGH_VAULT_TOKEN")
	if addr != "" || token != "" {
		for i := range cfg.Security.Secrets.Providers {
			p := &cfg.Security.Secrets.Providers[i]
			if p.Type != "vault" {
				continue
			}
			if addr != "" {
				p.Address = addr
			}
			if token != "" {
				p.Token = token
			}
		}
	}
}
