package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bidcast/internal/infrastructure/hub"
	"bidcast/internal/infrastructure/monitoring"
	repositories "bidcast/internal/infrastructure/repositories"
	"bidcast/pkg/config"
	"bidcast/pkg/logger"
	"bidcast/pkg/tracing"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/bidcast/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracerProvider.Shutdown(ctx)
	}()

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	historyRepo := repoFactory.CreateHistoryRepository()
	collector := monitoring.NewPrometheusCollector()

	broadcastHub := hub.NewHub(cfg, historyRepo, collector, log)

	health := monitoring.NewHealthChecker()
	server := hub.NewServer(broadcastHub, cfg, health, log)
	health.AddCheck("hub", server.ParticipantHealthCheck(), 2*time.Second)

	httpServer := &http.Server{
		Addr:    cfg.Hub.Address,
		Handler: server.Router(),
	}

	go func() {
		log.Infow("starting broadcast hub", "address", cfg.Hub.Address, "path", cfg.Hub.Path)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down broadcast hub")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Hub.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Errorw("forced shutdown", "error", err)
	}

	log.Infow("broadcast hub stopped")
}
