package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sarathsp06/framehook/internal/config"
	"github.com/sarathsp06/framehook/internal/logger"
	"github.com/sarathsp06/framehook/internal/observability"
	"github.com/sarathsp06/framehook/internal/queue"
	"github.com/sarathsp06/framehook/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "framehook: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = config.DefaultPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCloser, err := logger.Setup(logger.Options{File: cfg.LogFile, Format: cfg.LogFormat, Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCloser.Close()
	log := logger.NewLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := func(context.Context) error { return nil }
	if cfg.OTelEnabled {
		otelCfg := observability.DefaultConfig()
		otelCfg.ServiceName = cfg.ServiceName
		otelCfg.Environment = cfg.Environment
		otelCfg.OTLPEndpoint = cfg.OTLPEndpoint
		shutdownTelemetry, err = observability.Setup(ctx, otelCfg)
		if err != nil {
			return fmt.Errorf("failed to set up OpenTelemetry: %w", err)
		}
		log.Info("OpenTelemetry enabled", "endpoint", cfg.OTLPEndpoint)
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		// Carry on without metrics.
		log.Error("Failed to initialize metrics", "error", err)
	}

	queueManager := queue.NewManager(queue.Config{Workers: cfg.Workers, QueueSize: cfg.QueueSize}, nil, metrics)
	if err := queueManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue manager: %w", err)
	}

	webhookServer := server.NewWebhookServer(queueManager, nil, metrics)
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.NewRouter(webhookServer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server starting", "addr", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		return errors.Join(
			httpServer.Shutdown(shutdownCtx),
			queueManager.Stop(shutdownCtx),
			shutdownTelemetry(shutdownCtx),
		)
	})

	if err := g.Wait(); err != nil {
		log.Error("Shutdown with error", "error", err)
		return err
	}
	log.Info("Shutdown complete")
	return nil
}
