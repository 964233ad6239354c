package inheritance

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/i-m-c/go-inheritance/graph"
	"github.com/i-m-c/go-inheritance/operation"
	"github.com/i-m-c/go-inheritance/selector"
	"github.com/i-m-c/go-inheritance/version"
)

// Option configures an Engine.
type Option func(*engineConfig) error

// engineConfig holds all engine configuration.
type engineConfig struct {
	registry         *graph.Registry
	store            version.Store
	projectCacheSize int
	selectors        []selector.Selector
	noDefaultSels    bool
	predicates       []operation.Predicate
	noDefaultPreds   bool
	metricsRegistry  prometheus.Registerer
	stableOnRecord   bool

	// logger receives configuration warnings and version events.
	// If nil, logging is disabled (silent mode).
	logger *slog.Logger
}

// WithLogger sets a structured logger. If not set, logging is disabled.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "inheritance")
//	engine, err := inheritance.New(inheritance.WithLogger(logger))
func WithLogger(l *slog.Logger) Option {
	return func(c *engineConfig) error {
		c.logger = l
		return nil
	}
}

// WithRegistry makes the engine resolve projects from an existing
// registry instead of an empty one.
func WithRegistry(r *graph.Registry) Option {
	return func(c *engineConfig) error {
		if r == nil {
			return errors.New("registry must not be nil")
		}
		c.registry = r
		return nil
	}
}

// WithStore sets the version store. The default is an in-memory store.
// The engine owns the store: it is closed on Close, or by New when New
// fails.
func WithStore(s version.Store) Option {
	return func(c *engineConfig) error {
		if s == nil {
			return errors.New("store must not be nil")
		}
		c.store = s
		return nil
	}
}

// WithProjectCacheSize sets the capacity of the name-to-project cache.
// Zero uses graph.DefaultCacheSize.
func WithProjectCacheSize(n int) Option {
	return func(c *engineConfig) error {
		c.projectCacheSize = n
		return nil
	}
}

// WithSelectors registers selectors after the built-in ones.
func WithSelectors(s ...selector.Selector) Option {
	return func(c *engineConfig) error {
		c.selectors = append(c.selectors, s...)
		return nil
	}
}

// WithoutDefaultSelectors drops the built-in model selectors.
func WithoutDefaultSelectors() Option {
	return func(c *engineConfig) error {
		c.noDefaultSels = true
		return nil
	}
}

// WithPredicates registers request-path predicates after the built-in ones.
func WithPredicates(p ...operation.Predicate) Option {
	return func(c *engineConfig) error {
		c.predicates = append(c.predicates, p...)
		return nil
	}
}

// WithoutDefaultPredicates drops the built-in request-path predicates.
func WithoutDefaultPredicates() Option {
	return func(c *engineConfig) error {
		c.noDefaultPreds = true
		return nil
	}
}

// WithMetrics registers the engine's collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *engineConfig) error {
		c.metricsRegistry = reg
		return nil
	}
}

// WithStableOnRecord controls whether RecordVersion marks the new version
// stable. Enabled by default.
func WithStableOnRecord(enabled bool) Option {
	return func(c *engineConfig) error {
		c.stableOnRecord = enabled
		return nil
	}
}

// validate checks the configuration for logical consistency.
func (c *engineConfig) validate() error {
	if c.projectCacheSize < 0 {
		return errors.New("project cache size must not be negative")
	}
	return nil
}

// log returns the configured logger, or a no-op logger if none was set.
func (c *engineConfig) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(discardHandler{})
}

// discardHandler is a slog.Handler that discards all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// newEngineConfig applies opts over the defaults and validates the result.
// The config is returned even on error so New can release a supplied store.
func newEngineConfig(opts ...Option) (*engineConfig, error) {
	c := &engineConfig{stableOnRecord: true}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return c, err
		}
	}

	if err := c.validate(); err != nil {
		return c, err
	}

	return c, nil
}
