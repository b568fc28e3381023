package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/shipping-service/internal/activities"
	"github.com/wms-platform/shipping-service/internal/bootstrap"
	"github.com/wms-platform/shipping-service/internal/config"
	"github.com/wms-platform/shipping-service/internal/workflows"
	"github.com/wms-platform/shipping-service/pkg/logging"
	"github.com/wms-platform/shipping-service/pkg/metrics"
	"github.com/wms-platform/shipping-service/pkg/temporal"
)

func main() {
	logger := logging.New(logging.DefaultConfig(config.ServiceName))
	logger.SetDefault()

	logger.Info("Starting shipping-service worker")

	cfg, err := config.Load("shipping-worker")
	if err != nil {
		logger.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	ctx := context.Background()
	m := metrics.New(metrics.DefaultConfig(config.ServiceName))

	runtime, err := bootstrap.New(ctx, cfg, logger, m)
	if err != nil {
		logger.WithError(err).Error("Failed to start shipping engine")
		os.Exit(1)
	}
	defer runtime.Close(context.Background())

	// Initialize Temporal client
	temporalClient, err := temporal.NewClient(ctx, cfg.Temporal)
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "hostPort", cfg.Temporal.HostPort)

	shipmentActivities := activities.NewShipmentActivities(runtime.Quotes, runtime.Shipments, logger)

	w := temporalClient.NewWorker(temporal.DefaultWorkerOptions(temporal.TaskQueues.Shipping))

	w.RegisterWorkflowWithOptions(workflows.ShipmentQuoteWorkflow, workflow.RegisterOptions{
		Name: temporal.WorkflowNames.ShipmentQuote,
	})
	logger.Info("Registered workflow", "workflow", temporal.WorkflowNames.ShipmentQuote)

	w.RegisterActivityWithOptions(shipmentActivities.QuoteShipment, activity.RegisterOptions{Name: workflows.QuoteShipmentActivity})
	w.RegisterActivityWithOptions(shipmentActivities.CreateShipment, activity.RegisterOptions{Name: workflows.CreateShipmentActivity})
	w.RegisterActivityWithOptions(shipmentActivities.AdvanceShipment, activity.RegisterOptions{Name: workflows.AdvanceShipmentActivity})
	logger.Info("Registered activities")

	go func() {
		if err := w.Run(nil); err != nil {
			logger.WithError(err).Error("Worker failed")
			os.Exit(1)
		}
	}()
	logger.Info("Worker started", "taskQueue", temporal.TaskQueues.Shipping)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")

	w.Stop()
	logger.Info("Worker stopped")
}
