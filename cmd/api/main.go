package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wms-platform/shipping-service/internal/bootstrap"
	"github.com/wms-platform/shipping-service/internal/config"
	"github.com/wms-platform/shipping-service/pkg/kafka"
	"github.com/wms-platform/shipping-service/pkg/logging"
	"github.com/wms-platform/shipping-service/pkg/metrics"
	"github.com/wms-platform/shipping-service/pkg/outbox"
	"github.com/wms-platform/shipping-service/pkg/tracing"
)

const serviceName = config.ServiceName

func main() {
	logger := logging.New(logging.DefaultConfig(serviceName))
	logger.SetDefault()

	logger.Info("Starting shipping-service API")

	cfg, err := config.Load("shipping-api")
	if err != nil {
		logger.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = cfg.Tracing.OTLPEndpoint
	tracingConfig.Environment = cfg.Environment
	tracingConfig.Enabled = cfg.Tracing.Enabled

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	runtime, err := bootstrap.New(ctx, cfg, logger, m)
	if err != nil {
		logger.WithError(err).Error("Failed to start shipping engine")
		os.Exit(1)
	}
	defer runtime.Close(context.Background())

	// Kafka producer behind a circuit breaker, fed by the outbox
	producer, rawProducer := kafka.NewProductionProducer(cfg.Kafka, m, logger)
	defer rawProducer.Close()
	logger.Info("Kafka producer initialized", "brokers", cfg.Kafka.Brokers)

	outboxPublisher := outbox.NewPublisher(
		runtime.Repository.GetOutboxRepository(),
		producer,
		logger,
		m,
		outbox.DefaultPublisherConfig(),
	)
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started")

	router := setupRouter(runtime.Services, routerConfig{
		Metrics: m,
		Logger:  logger,
		Ready: func() error {
			readyCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return runtime.HealthCheck(readyCtx)
		},
		TracingEnabled:  cfg.Tracing.Enabled,
		IdempotencyKeys: runtime.IdempotencyKeys,
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", cfg.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
