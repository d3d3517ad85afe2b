package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitalis-app/exporter/internal/collector"
	"github.com/vitalis-app/exporter/internal/config"
	"github.com/vitalis-app/exporter/internal/exposition"
	"github.com/vitalis-app/exporter/internal/scheduler"
	"github.com/vitalis-app/exporter/internal/server"
	"github.com/vitalis-app/exporter/internal/snapshot"
	"github.com/vitalis-app/exporter/internal/telemetry"
	"github.com/vitalis-app/exporter/internal/webhook"
)

// exporter is one running profile: the collection loop feeding the
// snapshot store and the HTTP server reading it.
type exporter struct {
	logger    *zap.Logger
	registry  *collector.Registry
	scheduler *scheduler.Scheduler
	server    *server.Server
}

func newExporter(cfg *config.Config, logger *zap.Logger) (*exporter, error) {
	tel := telemetry.New()

	registry, err := buildRegistry(cfg, tel, logger.Named("collector"))
	if err != nil {
		return nil, err
	}

	logger.Info("Collectors enabled", zap.Strings("collectors", cfg.Collectors.Enabled()))

	store := snapshot.NewStore(registry.Describe())
	sched := scheduler.New(registry, store, scheduler.Options{
		Interval:      cfg.Collection.Interval.Duration,
		RetryInterval: cfg.Collection.RetryInterval.Duration,
	}, tel, logger.Named("scheduler"))

	srv := server.New(serverConfig(cfg), logger.Named("http"))
	srv.Handle("/metrics", exposition.NewMetricsHandler(store, tel, logger.Named("exposition")),
		http.MethodGet, http.MethodHead)
	srv.Handle("/ready", exposition.NewReadyHandler(store), http.MethodGet, http.MethodHead)

	return &exporter{
		logger:    logger,
		registry:  registry,
		scheduler: sched,
		server:    srv,
	}, nil
}

// Run blocks until ctx is cancelled or the listener fails, then releases
// the collectors.
func (e *exporter) Run(ctx context.Context) error {
	defer func() {
		if err := e.registry.Close(); err != nil {
			e.logger.Warn("Failed to close collectors", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.scheduler.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return e.server.Run(gctx)
	})
	return g.Wait()
}

// buildRegistry registers the collectors enabled in cfg. Collectors that
// report themselves unavailable are skipped by the registry.
func buildRegistry(cfg *config.Config, tel *telemetry.Telemetry, logger *zap.Logger) (*collector.Registry, error) {
	registry := collector.NewRegistry(logger, collector.Options{
		Timeout:     cfg.Collection.Timeout.Duration,
		Concurrency: cfg.Collection.Concurrency,
	})

	c := cfg.Collectors
	runner := collector.ExecRunner{}

	if c.Docker.Enabled {
		registry.Register(collector.NewDockerCollector(c.Docker.Binary, runner))
	}
	if c.Filesystem.Enabled {
		registry.Register(collector.NewFilesystemCollector(c.Filesystem.Path, c.Filesystem.Server, c.Filesystem.ProbePayload))
	}
	if c.Connectivity.Enabled {
		registry.Register(collector.NewConnectivityCollector(c.Connectivity.Host, c.Connectivity.Mode, c.Connectivity.Port, runner))
	}
	if c.NFSOps.Enabled {
		registry.Register(collector.NewNFSOpsCollector(c.NFSOps.ProcPath))
	}
	if c.HAProxy.Enabled {
		client := &http.Client{Timeout: c.HAProxy.Timeout.Duration}
		registry.Register(collector.NewHAProxyCollector(c.HAProxy.URL, client))
	}
	if c.Database.Enabled {
		db, err := collector.NewDatabaseCollector(c.Database.Driver, c.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("database collector: %w", err)
		}
		registry.Register(db)
	}
	if c.Host.Enabled {
		registry.Register(collector.NewHostCollector())
	}
	if c.Self.Enabled {
		registry.Register(collector.NewSelfCollector(tel.Gatherer(), telemetry.Descs()))
	}
	return registry, nil
}

func newWebhookServer(cfg *config.Config, logger *zap.Logger) *server.Server {
	srv := server.New(serverConfig(cfg), logger.Named("http"))
	srv.Handle("/webhook", webhook.NewHandler(logger.Named("webhook")), http.MethodPost)
	return srv
}

func serverConfig(cfg *config.Config) server.Config {
	return server.Config{
		Address:         cfg.Server.Address,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout.Duration,
		WriteTimeout:    cfg.Server.WriteTimeout.Duration,
		IdleTimeout:     cfg.Server.IdleTimeout.Duration,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration,
	}
}
