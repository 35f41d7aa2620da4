package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/hupe1980/pmem/pool"
)

// Config holds pmemctl defaults. Flags override it.
type Config struct {
	PoolSize    int         `json:"pool_size"`   //nolint:tagliatelle // snake_case for config file
	Durability  string      `json:"durability"`
	Compression string      `json:"compression"`
	UndoBudget  int64       `json:"undo_budget"` //nolint:tagliatelle // snake_case for config file
	LogLevel    string      `json:"log_level"`   //nolint:tagliatelle // snake_case for config file
	LogFormat   string      `json:"log_format"`  //nolint:tagliatelle // snake_case for config file
	Store       StoreConfig `json:"store"`
}

// StoreConfig selects the backup target.
type StoreConfig struct {
	Kind     string `json:"kind"` // local, s3 or minio
	Path     string `json:"path,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	// IOLimit caps backup upload throughput in bytes per second.
	IOLimit int64 `json:"io_limit,omitempty"` //nolint:tagliatelle // snake_case for config file
}

// ConfigEnv names the environment variable holding the default config path.
const ConfigEnv = "PMEMCTL_CONFIG"

var (
	errConfigRead    = errors.New("cannot read config file")
	errConfigInvalid = errors.New("invalid config file")
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		PoolSize:    16 << 20,
		Durability:  "sync",
		Compression: "none",
		LogLevel:    "warn",
		LogFormat:   "text",
		Store:       StoreConfig{Kind: "local", Path: "backups"},
	}
}

// LoadConfig returns the defaults overlaid with the JSONC file at path.
// An empty path loads nothing.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", errConfigRead, path, err)
	}

	file, err := parseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	cfg = mergeConfig(cfg, file)
	if err := validateConfig(cfg); err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}
	return cfg, nil
}

func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.PoolSize != 0 {
		base.PoolSize = overlay.PoolSize
	}
	if overlay.Durability != "" {
		base.Durability = overlay.Durability
	}
	if overlay.Compression != "" {
		base.Compression = overlay.Compression
	}
	if overlay.UndoBudget != 0 {
		base.UndoBudget = overlay.UndoBudget
	}
	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}
	if overlay.LogFormat != "" {
		base.LogFormat = overlay.LogFormat
	}
	if overlay.Store.Kind != "" {
		base.Store = overlay.Store
	}
	return base
}

func validateConfig(cfg Config) error {
	if _, err := pool.ParseDurability(cfg.Durability); err != nil {
		return err
	}
	if _, err := pool.ParseCompression(cfg.Compression); err != nil {
		return err
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return err
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", cfg.LogFormat)
	}
	switch cfg.Store.Kind {
	case "local", "s3", "minio":
	default:
		return fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("unknown log_level %q", s)
	}
	return l, nil
}

// Logger builds the pool logger described by cfg, writing to w.
func (cfg Config) Logger(w io.Writer) *pool.Logger {
	level, _ := parseLevel(cfg.LogLevel)
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return pool.NewLogger(slog.NewJSONHandler(w, hopts))
	}
	return pool.NewLogger(slog.NewTextHandler(w, hopts))
}

// PoolOptions converts cfg to pool options.
func (cfg Config) PoolOptions(logger *pool.Logger) []pool.Option {
	d, _ := pool.ParseDurability(cfg.Durability)
	c, _ := pool.ParseCompression(cfg.Compression)
	return []pool.Option{
		pool.WithLogger(logger),
		pool.WithDurability(d),
		pool.WithCompression(c),
		pool.WithUndoBudget(cfg.UndoBudget),
	}
}
