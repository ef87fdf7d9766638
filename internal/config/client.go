package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends understood by the client.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// StorageConfig selects where the client keeps its durable cache.
type StorageConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
	RedisURL   string `yaml:"redis_url"`
	Namespace  string `yaml:"namespace"`
}

// SyncConfig tunes replay triggering.
type SyncConfig struct {
	ProbeInterval string `yaml:"probe_interval"`
	Tag           string `yaml:"tag"`
}

// ClientConfig is the fittrack CLI configuration file.
type ClientConfig struct {
	ServerURL   string        `yaml:"server_url"`
	CacheTTL    string        `yaml:"cache_ttl"`
	HTTPTimeout string        `yaml:"http_timeout"` // Empty means no client-side timeout.
	Storage     StorageConfig `yaml:"storage"`
	Sync        SyncConfig    `yaml:"sync"`
}

// DefaultClientConfig returns the configuration used when no file exists.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL: "http://localhost:5000/api",
		CacheTTL:  "5m",
		Storage: StorageConfig{
			Backend:    StorageSQLite,
			SQLitePath: filepath.Join(dataDir(), "fittrack.db"),
			Namespace:  "fitness_tracker_",
		},
		Sync: SyncConfig{
			ProbeInterval: "15s",
			Tag:           "workout-sync",
		},
	}
}

// DefaultClientConfigPath is where LoadClient looks when no path is given.
func DefaultClientConfigPath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "fittrack", "config.yaml")
}

// LoadClient reads the YAML file at path, filling unset fields with defaults.
// A missing file yields the defaults. FITTRACK_SERVER_URL and
// FITTRACK_STORAGE override the file.
func LoadClient(path string) (*ClientConfig, error) {
	if path == "" {
		path = DefaultClientConfigPath()
	}

	cfg := DefaultClientConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in config file: %w", err)
		}
	}

	if v := os.Getenv("FITTRACK_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("FITTRACK_STORAGE"); v != "" {
		cfg.Storage.Backend = v
	}
	cfg.Storage.SQLitePath = expandPath(cfg.Storage.SQLitePath)
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the enumerations and durations in the file.
func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite backend")
		}
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("storage.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	for name, value := range map[string]string{
		"cache_ttl":           c.CacheTTL,
		"http_timeout":        c.HTTPTimeout,
		"sync.probe_interval": c.Sync.ProbeInterval,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// CacheTTLDuration returns the gateway cache lifetime.
func (c *ClientConfig) CacheTTLDuration() time.Duration {
	return parseDurationOr(c.CacheTTL, 5*time.Minute)
}

// HTTPTimeoutDuration returns the HTTP client timeout, zero for none.
func (c *ClientConfig) HTTPTimeoutDuration() time.Duration {
	return parseDurationOr(c.HTTPTimeout, 0)
}

// ProbeIntervalDuration returns how often connectivity is probed.
func (c *ClientConfig) ProbeIntervalDuration() time.Duration {
	return parseDurationOr(c.Sync.ProbeInterval, 15*time.Second)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func xdgDir(envVar, fallback string) string {
	if dir := os.Getenv(envVar); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(home, fallback)
}

func dataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")), "fittrack")
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
