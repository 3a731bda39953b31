package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/incident-metrics/internal/api"
	"github.com/miradorstack/incident-metrics/internal/cache"
	"github.com/miradorstack/incident-metrics/internal/config"
	"github.com/miradorstack/incident-metrics/internal/metrics"
	"github.com/miradorstack/incident-metrics/internal/repo"
	"github.com/miradorstack/incident-metrics/internal/services"
	"github.com/miradorstack/incident-metrics/internal/utils"
	"github.com/miradorstack/incident-metrics/internal/workers/refresher"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()
	if configPath == "" {
		configPath = os.Getenv("INCIDENT_METRICS_CONFIG")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting incident-metrics",
		slog.String("address", cfg.Server.Address),
		slog.String("source", cfg.Source.Type),
		slog.String("config_version", cfg.Fingerprint()),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sharedCache cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(ctx, cache.ValkeyConfigFrom(cfg.Cache))
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			sharedCache = provider
		}
	}
	defer sharedCache.Close()

	source, err := repo.NewSource(ctx, cfg.Source, logger)
	if err != nil {
		logger.Error("failed to open record source", slog.Any("error", err))
		os.Exit(1)
	}
	defer source.Close()

	metricsService, err := services.NewMetricsService(logger, cfg, source, services.Options{
		MemoSize:  cfg.Cache.MemoSize,
		MemoTTL:   cfg.Cache.MemoTTL,
		Shared:    sharedCache,
		SharedTTL: cfg.Cache.MetricsTTL,
	})
	if err != nil {
		logger.Error("failed to build metrics service", slog.Any("error", err))
		os.Exit(1)
	}

	server, err := api.NewServer(cfg.Server, metricsService, nil)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := refresher.New(logger, cfg.Source.RefreshSchedule, metricsService, 0)
	if err != nil {
		logger.Error("invalid refresh schedule", slog.Any("error", err))
		os.Exit(1)
	}
	worker.OnResult(func(int, error) { server.SetReady(metricsService.Status().Ready) })
	go worker.Run(ctx)

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
				if err := metricsService.UpdateConfig(next); err != nil {
					logger.Error("config reload rejected", slog.Any("error", err))
				}
			})
			if err != nil {
				logger.Warn("config watch unavailable", slog.Any("error", err))
			}
		}()
	}

	var httpServer *http.Server
	if cfg.Server.HTTPAddress != "" {
		httpServer = &http.Server{
			Addr:         cfg.Server.HTTPAddress,
			Handler:      api.NewHTTPHandler(metricsService, logger).Routes(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		go func() {
			logger.Info("http api listening", slog.String("address", cfg.Server.HTTPAddress))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http api exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	grpcDone := make(chan struct{})
	go func() {
		defer close(grpcDone)
		logger.Info("gRPC server listening", slog.String("address", cfg.Server.Address))
		if serveErr := server.Run(ctx); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	<-grpcDone

	for _, srv := range []*http.Server{httpServer, metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("http server shutdown", slog.String("address", srv.Addr), slog.Any("error", err))
		}
	}

	logger.Info("incident-metrics stopped")
}
