package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the proxy configuration, loaded from YAML.
type Config struct {
	// Listen is the address the proxy serves on.
	Listen string `yaml:"listen"`

	// Origin is the base URL requests are forwarded to.
	Origin string `yaml:"origin"`

	Log     LogConfig     `yaml:"log"`
	Backend BackendConfig `yaml:"backend"`
	Cache   CacheConfig   `yaml:"cache"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// BackendConfig selects and configures the storage backend.
type BackendConfig struct {
	// Type is one of "memory", "redis", "disk".
	Type string `yaml:"type"`

	Redis  RedisConfig  `yaml:"redis"`
	Memory MemoryConfig `yaml:"memory"`
	Disk   DiskConfig   `yaml:"disk"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Prefix     string `yaml:"prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// MemoryConfig configures the in-process backend.
type MemoryConfig struct {
	MaxSizeMB       int `yaml:"max_size_mb"`
	EvictionSeconds int `yaml:"eviction_seconds"`
}

// DiskConfig configures the on-disk backend.
type DiskConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig configures engine behavior.
type CacheConfig struct {
	Shared       bool  `yaml:"shared"`
	Heuristic    bool  `yaml:"heuristic"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DefaultProxyConfig returns the configuration used when no file is given.
func DefaultProxyConfig() Config {
	return Config{
		Listen: ":8080",
		Log:    LogConfig{Level: "info"},
		Backend: BackendConfig{
			Type:   "memory",
			Memory: MemoryConfig{MaxSizeMB: 64, EvictionSeconds: 600},
			Redis:  RedisConfig{Addr: "localhost:6379"},
			Disk:   DiskConfig{Path: "./data/cache"},
		},
		Cache: CacheConfig{Shared: true, Heuristic: true},
	}
}

// LoadConfig reads the YAML configuration at path on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultProxyConfig()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Origin == "" {
		return fmt.Errorf("origin is required")
	}
	switch c.Backend.Type {
	case "memory", "redis", "disk":
		return nil
	default:
		return fmt.Errorf("unknown backend type %q", c.Backend.Type)
	}
}
