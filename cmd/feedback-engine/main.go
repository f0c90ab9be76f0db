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

	"github.com/miradorstack/mirador-feedback/internal/api"
	"github.com/miradorstack/mirador-feedback/internal/config"
	"github.com/miradorstack/mirador-feedback/internal/engine"
	"github.com/miradorstack/mirador-feedback/internal/metrics"
	"github.com/miradorstack/mirador-feedback/internal/repo"
	"github.com/miradorstack/mirador-feedback/internal/services"
	"github.com/miradorstack/mirador-feedback/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)
	logger.Info("starting mirador-feedback",
		slog.String("http_address", cfg.Server.HTTPAddress),
		slog.String("grpc_address", cfg.Server.GRPCAddress),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("mirador-feedback exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("mirador-feedback stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repo.OpenBadgerStore(repo.BadgerConfig{
		Path:           cfg.Storage.Path,
		InMemory:       cfg.Storage.InMemory,
		SyncWrites:     cfg.Storage.SyncWrites,
		GCInterval:     cfg.Storage.GCInterval,
		GCDiscardRatio: cfg.Storage.GCDiscardRatio,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("store close", slog.Any("error", err))
		}
	}()

	generator, err := buildTestGenerator(cfg.Integrations, logger)
	if err != nil {
		return err
	}
	ticketer, err := buildTicketer(ctx, cfg.Integrations, logger)
	if err != nil {
		return err
	}
	notifier, closeNotifier, err := buildNotifier(cfg.Integrations, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			logger.Warn("notifier close", slog.Any("error", err))
		}
	}()

	cacheProvider, err := buildCacheProvider(cfg.Cache)
	if err != nil {
		return err
	}
	defer cacheProvider.Close()

	scheduler := engine.NewGoroutineScheduler(cfg.Execution.MaxConcurrent, logger)
	regression := engine.NewRegressionTestGenerator(generator, store, cfg.Integrations.TestGenerator.Timeout, logger)
	executor := engine.NewExecutor(engine.ExecutorDeps{
		Store:      store,
		Regression: regression,
		Ticketer:   ticketer,
		Tickets:    store,
		Notifier:   notifier,
	}, engine.ExecutorConfig{
		TicketTimeout: cfg.Integrations.Ticketing.Timeout,
		NotifyTimeout: cfg.Integrations.Notifications.Timeout,
	}, logger)

	feedbackService := services.NewFeedbackService(services.Options{
		Logger:     logger,
		Store:      store,
		Rules:      services.NewRuleSource(store, cacheProvider, cfg.Cache.RulesTTL, logger),
		Executor:   executor,
		Regression: regression,
		Scheduler:  scheduler,
	})

	pack, err := engine.LoadRulePack(cfg.Rules.Path)
	if err != nil {
		return err
	}
	seeded, err := feedbackService.SeedRules(ctx, pack)
	if err != nil {
		return err
	}
	logger.Info("rule pack loaded", slog.String("path", cfg.Rules.Path), slog.Int("rules", seeded))

	grpcServer, err := api.NewServer(cfg.Server, api.NewGRPCService(feedbackService))
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr: cfg.Server.HTTPAddress,
		Handler: api.NewRouter(feedbackService, api.RouterConfig{
			RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
			RateLimitBurst:     cfg.Server.RateLimitBurst,
			Logger:             logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
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

	go func() {
		logger.Info("http server listening", slog.String("address", cfg.Server.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", slog.Any("error", err))
			stop()
		}
	}()

	go func() {
		logger.Info("grpc server listening", slog.String("address", grpcServer.Address()))
		if err := grpcServer.Start(); err != nil {
			logger.Error("gRPC server exited", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}
	grpcServer.Shutdown(shutdownCtx)

	// In-flight executions keep writing to the store, so drain them before it closes.
	if err := scheduler.Wait(shutdownCtx); err != nil {
		logger.Warn("executions still running at shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}
	return nil
}
