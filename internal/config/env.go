package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"

	"github.com/dshills/msgbus/internal/log"
)

// Environment variables read by FromEnv.
const (
	EnvWorkers            = "MSGBUS_WORKERS"
	EnvQueueCapacity      = "MSGBUS_QUEUE_CAPACITY"
	EnvHierarchyCacheSize = "MSGBUS_HIERARCHY_CACHE_SIZE"
	EnvShutdownTimeout    = "MSGBUS_SHUTDOWN_TIMEOUT"
	EnvLogLevel           = "MSGBUS_LOG_LEVEL"
	EnvLogFormat          = "MSGBUS_LOG_FORMAT"
)

// FromEnv overlays MSGBUS_* variables on cfg. Empty variables are ignored.
// Every malformed variable is reported, not just the first.
func FromEnv(cfg Config) (Config, error) {
	var errs error
	errs = multierr.Append(errs, envInt(EnvWorkers, &cfg.Workers))
	errs = multierr.Append(errs, envInt(EnvQueueCapacity, &cfg.QueueCapacity))
	errs = multierr.Append(errs, envInt(EnvHierarchyCacheSize, &cfg.HierarchyCacheSize))
	errs = multierr.Append(errs, envDuration(EnvShutdownTimeout, &cfg.ShutdownTimeout))
	envString(EnvLogLevel, &cfg.Log.Level)
	envString(EnvLogFormat, &cfg.Log.Format)
	if errs != nil {
		return Config{}, errs
	}
	return cfg, nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	logger := log.WithComponent("config")
	logger.Debug().
		Str("key", key).
		Str("value", v).
		Str("source", "environment").
		Msg("using environment variable")
	return v, true
}

func envInt(key string, dst *int) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = i
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func envString(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}
