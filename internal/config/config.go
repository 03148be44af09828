// Package config loads the optional TOML server configuration and applies
// defaults.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the server configuration. Every field has a usable default so
// the config file is optional.
type Config struct {
	// RegistryPath is the JSON file the source registry persists to.
	// Empty disables persistence.
	RegistryPath string `toml:"registry_path"`
	// SandboxPrefix rejects source paths under it with a clear message.
	SandboxPrefix string `toml:"sandbox_prefix"`
	// CacheCapacity sizes the result cache and the spec store.
	CacheCapacity int `toml:"cache_capacity"`
	// RowCap bounds returned query rows.
	RowCap int `toml:"row_cap"`
	// LogLevel is debug, info, warn, or error.
	LogLevel string `toml:"log_level"`
	// Addr, when set, serves SSE on this address instead of stdio.
	Addr string `toml:"addr"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		CacheCapacity: 20,
		RowCap:        10000,
		LogLevel:      "info",
	}
}

// Load reads path when non-empty, layering it over the defaults. A missing
// explicit path is an error; no path means defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return cfg, fmt.Errorf("config file not readable: %w", err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = 20
	}
	if cfg.RowCap <= 0 {
		cfg.RowCap = 10000
	}
	return cfg, nil
}
