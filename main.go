package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	os.Exit(runMain(os.Args[1:]))
}

// runMain returns the process exit code so deferred cleanup runs before
// the process exits.
func runMain(args []string) int {
	flags := pflag.NewFlagSet("devpulse", pflag.ContinueOnError)
	configPath := flags.String("config", "devpulse.yaml", "Path to config file")
	bindFlag := flags.String("bind", "", "Override bind address")
	portFlag := flags.Int("port", 0, "Override port")
	levelFlag := flags.String("log-level", "", "Override log level (error, warn, info, debug)")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		logrus.Errorf("Failed to load config: %v", err)
		return 1
	}

	// Apply flag overrides
	if *bindFlag != "" {
		config.Bind = *bindFlag
	}
	if *portFlag != 0 {
		config.Port = *portFlag
	}
	if *levelFlag != "" {
		config.LogLevel = *levelFlag
	}
	if err := config.Validate(); err != nil {
		logrus.Errorf("Invalid config: %v", err)
		return 1
	}

	logger, err := newLogger(config.LogLevel, config.LogFormat)
	if err != nil {
		logrus.Errorf("Failed to set up logging: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, logger); err != nil {
		logger.Errorf("devpulse: %v", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, config *Config, logger *logrus.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	tel := newTelemetry(reg)

	registry := newRegistry(tel)
	sampler := newSampler(ctx, newGopsutilProvider(), logger.WithField("component", "sampler"))
	broadcaster := newBroadcaster(sampler, registry, config.Interval, config.MaxConcurrentWrites,
		logger.WithField("component", "broadcaster"), tel)
	srv := newServer(config, broadcaster, registry, reg, logger.WithField("component", "server"))

	if _, err := os.Stat(config.StaticDir); err != nil {
		logger.Warnf("Static dir unavailable, only the API will be served: %v", err)
	}

	httpServer := &http.Server{
		Addr:              config.ListenAddr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return broadcaster.Run(ctx)
	})
	g.Go(func() error {
		logger.Infof("devpulse %s listening on %s", version, config.ListenAddr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down...")
		srv.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
