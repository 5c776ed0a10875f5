package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/dshills/msgbus/internal/bus/hierarchy"
	"github.com/dshills/msgbus/internal/bus/listener"
	"github.com/dshills/msgbus/internal/bus/report"
)

// Default configuration values.
const (
	DefaultWorkers       = 4
	DefaultQueueCapacity = 1024
)

// Option configures a Bus.
type Option func(*Config)

// Config contains configuration for the message bus.
type Config struct {
	// Workers is the fixed size of the async worker pool.
	Workers int

	// QueueCapacity bounds the async queue. Publishers block when it is full.
	QueueCapacity int

	// HierarchyCacheSize sizes the ancestor cache of the default resolver.
	// Zero disables caching. Ignored when Resolver is set.
	HierarchyCacheSize int

	// Reader extracts handler descriptors from listener types.
	Reader listener.Reader

	// Factory turns descriptors into subscriptions.
	Factory SubscriptionFactory

	// Resolver maps a message type to its ancestors. Nil selects the
	// interface resolver, cached per HierarchyCacheSize.
	Resolver hierarchy.Resolver

	// Logger is used for lifecycle events and by the default error handler.
	// Defaults to a no-op logger.
	Logger zerolog.Logger

	// ErrorHandlers are added after the default log handler.
	ErrorHandlers []report.Handler

	// Registerer receives the bus metrics. Nil disables metrics.
	Registerer prometheus.Registerer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Workers:            DefaultWorkers,
		QueueCapacity:      DefaultQueueCapacity,
		HierarchyCacheSize: hierarchy.DefaultCacheSize,
		Reader:             listener.NewMethodReader(),
		Factory:            DefaultSubscriptionFactory,
		Logger:             zerolog.Nop(),
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs error
	if c.Workers <= 0 {
		errs = multierr.Append(errs, &ConfigError{Field: "workers", Reason: "must be positive"})
	}
	if c.QueueCapacity <= 0 {
		errs = multierr.Append(errs, &ConfigError{Field: "queue capacity", Reason: "must be positive"})
	}
	if c.HierarchyCacheSize < 0 {
		errs = multierr.Append(errs, &ConfigError{Field: "hierarchy cache size", Reason: "must not be negative"})
	}
	if c.Reader == nil {
		errs = multierr.Append(errs, &ConfigError{Field: "reader", Reason: "must not be nil"})
	}
	if c.Factory == nil {
		errs = multierr.Append(errs, &ConfigError{Field: "factory", Reason: "must not be nil"})
	}
	return errs
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithQueueCapacity sets the async queue capacity.
func WithQueueCapacity(n int) Option {
	return func(c *Config) {
		c.QueueCapacity = n
	}
}

// WithHierarchyCacheSize sets the ancestor cache size. Zero disables it.
func WithHierarchyCacheSize(n int) Option {
	return func(c *Config) {
		c.HierarchyCacheSize = n
	}
}

// WithReader sets the handler metadata reader.
func WithReader(r listener.Reader) Option {
	return func(c *Config) {
		c.Reader = r
	}
}

// WithSubscriptionFactory sets the subscription factory.
func WithSubscriptionFactory(f SubscriptionFactory) Option {
	return func(c *Config) {
		c.Factory = f
	}
}

// WithResolver sets the type hierarchy resolver.
func WithResolver(r hierarchy.Resolver) Option {
	return func(c *Config) {
		c.Resolver = r
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithErrorHandler adds an error handler.
func WithErrorHandler(h report.Handler) Option {
	return func(c *Config) {
		if h != nil {
			c.ErrorHandlers = append(c.ErrorHandlers, h)
		}
	}
}

// WithRegisterer enables Prometheus metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registerer = reg
	}
}
