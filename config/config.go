// Package config loads engine configuration from a YAML file.
//
// A config file selects the version store, cache sizes, request-path
// predicates, logging and metrics. Every field has a default, so an empty
// file is valid:
//
//	store:
//	  driver: sqlite
//	  path: ${HOME}/.cache/inheritctl/versions.db
//	cache:
//	  projects: 1024
//	predicates:
//	  extra:
//	    - name: api
//	      patterns: ["/api/**"]
//	log:
//	  level: debug
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	inheritance "github.com/i-m-c/go-inheritance"
	"github.com/i-m-c/go-inheritance/operation"
	"github.com/i-m-c/go-inheritance/version"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config is the engine configuration.
type Config struct {
	// Store selects where versions are kept.
	Store StoreConfig `yaml:"store"`

	// Cache sizes the in-memory caches.
	Cache CacheConfig `yaml:"cache"`

	// Versions configures version recording.
	Versions VersionsConfig `yaml:"versions"`

	// Predicates configures the request paths that require inheritance.
	Predicates PredicatesConfig `yaml:"predicates"`

	// Log configures the logger built by Logger.
	Log LogConfig `yaml:"log"`

	// Metrics configures Prometheus collectors.
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig selects the version store.
type StoreConfig struct {
	// Driver is "memory" or "sqlite".
	// Default: memory
	Driver string `yaml:"driver"`

	// Path is the SQLite database file. Required for the sqlite driver.
	// ${VAR} references are expanded from the environment.
	Path string `yaml:"path"`

	// PoolSize is the number of SQLite connections. Zero picks a default.
	PoolSize int `yaml:"pool_size"`
}

// CacheConfig sizes the caches. Zero picks the package defaults.
type CacheConfig struct {
	// Projects bounds the name-to-project cache.
	Projects int `yaml:"projects"`

	// Snapshots bounds the decoded-snapshot cache of the SQLite store.
	Snapshots int `yaml:"snapshots"`
}

// VersionsConfig configures version recording.
type VersionsConfig struct {
	// StableOnRecord marks every recorded version stable.
	// Default: true
	StableOnRecord bool `yaml:"stable_on_record"`
}

// PredicatesConfig configures request-path predicates.
type PredicatesConfig struct {
	// Defaults enables the built-in predicates (job, build, dashboard,
	// promotion and SCM polling pages).
	// Default: true
	Defaults bool `yaml:"defaults"`

	// Extra predicates are registered after the built-in ones.
	Extra []GlobPredicate `yaml:"extra"`
}

// GlobPredicate matches request paths against glob patterns.
type GlobPredicate struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text
	Format string `yaml:"format"`
}

// MetricsConfig configures metrics.
type MetricsConfig struct {
	// Enabled registers the engine's collectors.
	Enabled bool `yaml:"enabled"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store:      StoreConfig{Driver: DriverMemory},
		Versions:   VersionsConfig{StableOnRecord: true},
		Predicates: PredicatesConfig{Defaults: true},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, expands environment references
// and validates the result. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Store.Path = os.ExpandEnv(cfg.Store.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q, got %q", DriverMemory, DriverSQLite, c.Store.Driver))
	}

	if c.Store.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("store.pool_size must not be negative"))
	}
	if c.Cache.Projects < 0 {
		errs = append(errs, fmt.Errorf("cache.projects must not be negative"))
	}
	if c.Cache.Snapshots < 0 {
		errs = append(errs, fmt.Errorf("cache.snapshots must not be negative"))
	}

	seen := make(map[string]bool)
	for i, p := range c.Predicates.Extra {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("predicates.extra[%d]: name is required", i))
		} else if seen[p.Name] {
			errs = append(errs, fmt.Errorf("predicates.extra[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true
		if len(p.Patterns) == 0 {
			errs = append(errs, fmt.Errorf("predicates.extra[%d]: at least one pattern is required", i))
		} else if _, err := operation.Glob(p.Name, p.Patterns...); err != nil {
			errs = append(errs, fmt.Errorf("predicates.extra[%d]: %w", i, err))
		}
	}

	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Logger builds a logger writing to w at the configured level and format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.Log.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Options converts the configuration into engine options. The SQLite store
// is opened here; the engine closes it. reg receives the collectors when
// metrics are enabled and may be nil otherwise.
func (c *Config) Options(logger *slog.Logger, reg prometheus.Registerer) ([]inheritance.Option, error) {
	opts := []inheritance.Option{
		inheritance.WithProjectCacheSize(c.Cache.Projects),
		inheritance.WithStableOnRecord(c.Versions.StableOnRecord),
	}
	if logger != nil {
		opts = append(opts, inheritance.WithLogger(logger))
	}

	if !c.Predicates.Defaults {
		opts = append(opts, inheritance.WithoutDefaultPredicates())
	}
	for _, p := range c.Predicates.Extra {
		pred, err := operation.Glob(p.Name, p.Patterns...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, inheritance.WithPredicates(pred))
	}

	if c.Metrics.Enabled {
		if reg == nil {
			return nil, fmt.Errorf("metrics enabled without a registerer")
		}
		opts = append(opts, inheritance.WithMetrics(reg))
	}

	if c.Store.Driver == DriverSQLite {
		store, err := version.OpenSQLite(version.SQLiteConfig{
			Path:      c.Store.Path,
			PoolSize:  c.Store.PoolSize,
			CacheSize: c.Cache.Snapshots,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, inheritance.WithStore(store))
	}

	return opts, nil
}
