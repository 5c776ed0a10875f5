// Package main is the entry point for the msgbus workload runner.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dshills/msgbus/internal/bus"
	"github.com/dshills/msgbus/internal/config"
	"github.com/dshills/msgbus/internal/log"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// options are the command line options.
type options struct {
	ConfigPath  string
	Publishers  int
	Messages    int
	Mode        string
	MetricsAddr string
	Debug       bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if opts.Debug {
		cfg.Log.Level = "debug"
	}
	log.Reconfigure(cfg.LogConfig())
	logger := log.WithComponent("cmd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	var b *bus.Bus
	app := fx.New(
		fx.WithLogger(fxLogger(opts.Debug)),
		bus.Module(append(cfg.Options(),
			bus.WithLogger(log.WithComponent("bus")),
			bus.WithRegisterer(reg),
		)...),
		fx.Populate(&b),
	)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start: %v\n", err)
		return 1
	}

	var srv *http.Server
	if opts.MetricsAddr != "" {
		srv = serveMetrics(opts.MetricsAddr, reg)
	}

	w := newWorkload(b, opts.Publishers, opts.Messages)
	started := time.Now()
	runErr := w.Run(ctx, opts.Mode)
	elapsed := time.Since(started)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelStop()
	stopErr := app.Stop(stopCtx)
	w.Close()
	if srv != nil {
		_ = srv.Shutdown(stopCtx)
	}

	printStats(os.Stdout, b.Stats(), w, elapsed)

	switch {
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		logger.Error().Err(runErr).Msg("workload failed")
		return 1
	case stopErr != nil:
		logger.Error().Err(stopErr).Msg("shutdown incomplete")
		return 1
	}
	return 0
}

func fxLogger(debug bool) func() fxevent.Logger {
	return func() fxevent.Logger {
		if !debug {
			return fxevent.NopLogger
		}
		z, err := zap.NewDevelopment()
		if err != nil {
			return fxevent.NopLogger
		}
		return &fxevent.ZapLogger{Logger: z}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger := log.WithComponent("metrics")
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to YAML configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to YAML configuration file (shorthand)")
	flag.IntVar(&opts.Publishers, "publishers", 4, "Number of concurrent publishers")
	flag.IntVar(&opts.Messages, "messages", 10000, "Messages per publisher")
	flag.StringVar(&opts.Mode, "mode", "mixed", "Dispatch mode (sync, async, mixed)")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&opts.Debug, "d", false, "Enable debug logging (shorthand)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "msgbus - in-process message bus workload runner\n\n")
		fmt.Fprintf(os.Stderr, "Usage: msgbus [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  %s, %s, %s,\n  %s, %s, %s\n",
			config.EnvWorkers, config.EnvQueueCapacity, config.EnvHierarchyCacheSize,
			config.EnvShutdownTimeout, config.EnvLogLevel, config.EnvLogFormat)
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("msgbus %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.Mode {
	case "sync", "async", "mixed":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid mode %q\n", opts.Mode)
		os.Exit(2)
	}
	if opts.Publishers <= 0 || opts.Messages < 0 {
		fmt.Fprintf(os.Stderr, "Error: publishers must be positive and messages non-negative\n")
		os.Exit(2)
	}
	return opts
}
