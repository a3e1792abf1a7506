package main

import (
	"context"
	"encoding/json"
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

	"github.com/atiastack/atia-dashboard/internal/api"
	"github.com/atiastack/atia-dashboard/internal/config"
	"github.com/atiastack/atia-dashboard/internal/metrics"
	"github.com/atiastack/atia-dashboard/internal/repo"
	"github.com/atiastack/atia-dashboard/internal/services"
	"github.com/atiastack/atia-dashboard/internal/settings"
	"github.com/atiastack/atia-dashboard/internal/synchronizer"
	"github.com/atiastack/atia-dashboard/internal/utils"
	"github.com/atiastack/atia-dashboard/internal/views"
)

func main() {
	var (
		configPath string
		prerender  bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&prerender, "prerender", false, "Fetch once from the internal endpoint, print the rendered page and exit")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	execContext := cfg.Clients.Aggregator.Context
	if prerender {
		execContext = config.ContextServer
	}
	agg := cfg.Clients.Aggregator
	client := repo.NewAggregatorClient(
		agg.BaseURL(execContext),
		repo.Paths{Health: agg.HealthPath, Analyze: agg.AnalyzePath, Threats: agg.ThreatsPath},
		agg.Timeout,
		logger,
	)
	logger.Info("starting atia-dashboard",
		slog.String("address", cfg.Server.Address),
		slog.String("aggregator", client.BaseURL()),
		slog.String("context", execContext),
	)

	provider, err := settings.NewProvider(cfg.Settings)
	if err != nil {
		logger.Error("settings backend unavailable", slog.String("backend", cfg.Settings.Backend), slog.Any("error", err))
		os.Exit(1)
	}
	store := settings.NewStore(provider, cfg.Settings.Key, logger)
	defer store.Close()

	syncer := synchronizer.New(client, synchronizer.Options{
		HealthInterval: cfg.Sync.HealthInterval,
		ListInterval:   cfg.Sync.ListInterval,
		ListLimit:      cfg.Sync.ListLimit,
		Logger:         logger,
	})
	defer syncer.Close()

	viewServer := api.NewViewServer(api.Deps{
		Sync:        syncer,
		Submissions: services.NewSubmissionController(client, syncer, logger),
		Views:       views.NewController(),
		Settings:    store,
	}, logger)

	if prerender {
		code := runPrerender(logger, syncer, viewServer, agg.Timeout)
		syncer.Close()
		_ = store.Close()
		os.Exit(code)
	}

	grpcServer, err := api.NewServer(cfg.Server, logger)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	go grpcServer.MirrorUpstream(ctx, syncer)

	go func() {
		logger.Info("gRPC health listening", slog.String("address", grpcServer.Address()))
		if serveErr := grpcServer.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	go func() {
		if err := viewServer.ListenAndServe(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("view API exited", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := viewServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("view API shutdown", slog.Any("error", err))
	}
	grpcServer.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("atia-dashboard stopped")
}

// runPrerender performs one fetch cycle without subscribing and writes the page to stdout.
func runPrerender(logger *slog.Logger, syncer *synchronizer.Synchronizer, viewServer *api.ViewServer, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()

	snap := syncer.Prime(ctx)
	if snap.Indicators.Failed() {
		logger.Warn("prerender list fetch failed", slog.String("error", snap.Indicators.ErrMessage()))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(viewServer.RenderPage()); err != nil {
		logger.Error("failed to write page", slog.Any("error", err))
		return 1
	}
	return 0
}
