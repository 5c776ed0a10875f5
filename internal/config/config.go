package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/dshills/msgbus/internal/bus"
	"github.com/dshills/msgbus/internal/bus/hierarchy"
	"github.com/dshills/msgbus/internal/log"
)

// ErrInvalid matches every validation failure returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config is the file and environment representation of a bus configuration.
type Config struct {
	// Workers is the async worker pool size.
	Workers int `yaml:"workers"`

	// QueueCapacity bounds the async queue.
	QueueCapacity int `yaml:"queue_capacity"`

	// HierarchyCacheSize sizes the ancestor cache. Zero disables it.
	HierarchyCacheSize int `yaml:"hierarchy_cache_size"`

	// ShutdownTimeout bounds how long Shutdown waits for the queue to drain.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Log LogConfig `yaml:"log"`
}

// LogConfig configures the base logger.
type LogConfig struct {
	// Level is a zerolog level name.
	Level string `yaml:"level"`

	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Workers:            bus.DefaultWorkers,
		QueueCapacity:      bus.DefaultQueueCapacity,
		HierarchyCacheSize: hierarchy.DefaultCacheSize,
		ShutdownTimeout:    10 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults, applies the environment and validates.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		// #nosec G304 -- the path is provided by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if cfg, err = decode(data, cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg, err := FromEnv(cfg)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults. It neither reads the
// environment nor validates.
func Parse(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return decode(data, Defaults())
}

func decode(data []byte, base Config) (Config, error) {
	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return base, nil
		}
		return Config{}, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Config{}, errors.New("config contains multiple documents or trailing content")
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs error
	if c.Workers <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: workers must be positive, got %d", ErrInvalid, c.Workers))
	}
	if c.QueueCapacity <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: queue_capacity must be positive, got %d", ErrInvalid, c.QueueCapacity))
	}
	if c.HierarchyCacheSize < 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: hierarchy_cache_size must not be negative, got %d", ErrInvalid, c.HierarchyCacheSize))
	}
	if c.ShutdownTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: shutdown_timeout must be positive, got %s", ErrInvalid, c.ShutdownTimeout))
	}
	if c.Log.Level != "" {
		if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level))
		}
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		errs = multierr.Append(errs, fmt.Errorf("%w: log.format must be json or console, got %q", ErrInvalid, c.Log.Format))
	}
	return errs
}

// Options converts the configuration to bus options. The logger option
// uses the base logger, so configure it first.
func (c Config) Options() []bus.Option {
	return []bus.Option{
		bus.WithWorkers(c.Workers),
		bus.WithQueueCapacity(c.QueueCapacity),
		bus.WithHierarchyCacheSize(c.HierarchyCacheSize),
		bus.WithLogger(log.WithComponent("bus")),
	}
}

// LogConfig returns the base logger configuration.
func (c Config) LogConfig() log.Config {
	return log.Config{
		Level:   c.Log.Level,
		Console: c.Log.Format == "console",
	}
}
