package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/shipping-service/internal/activities"
)

// Activity names as registered by the worker.
const (
	QuoteShipmentActivity   = "QuoteShipment"
	CreateShipmentActivity  = "CreateShipment"
	AdvanceShipmentActivity = "AdvanceShipment"
)

// ShipmentQuoteInput represents the input for the shipment quote workflow
type ShipmentQuoteInput struct {
	OrderID     string                  `json:"orderId"`
	Description string                  `json:"description,omitempty"`
	Package     activities.PackageInput `json:"package"`
	// ProviderID and ServiceID pin the offering; empty means cheapest.
	ProviderID string `json:"providerId,omitempty"`
	ServiceID  string `json:"serviceId,omitempty"`
}

// ShipmentQuoteResult represents the result of the shipment quote workflow
type ShipmentQuoteResult struct {
	ShipmentID     string `json:"shipmentId,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	ProviderID     string `json:"providerId,omitempty"`
	ServiceID      string `json:"serviceId,omitempty"`
	QuotedTotal    string `json:"quotedTotal,omitempty"`
	Total          string `json:"total,omitempty"`
	Currency       string `json:"currency,omitempty"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
}

// ShipmentQuoteWorkflow quotes a package and creates the shipment for the
// chosen offering. The shipment is re-quoted on creation, so Total may differ
// from QuotedTotal when reference data changed in between.
func ShipmentQuoteWorkflow(ctx workflow.Context, input ShipmentQuoteInput) (*ShipmentQuoteResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting shipment quote workflow", "orderId", input.OrderID)

	result := &ShipmentQuoteResult{}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	// Step 1: quote
	var quote activities.QuoteResult
	err := workflow.ExecuteActivity(ctx, QuoteShipmentActivity, activities.QuoteShipmentInput{
		Package:    input.Package,
		ProviderID: input.ProviderID,
		ServiceID:  input.ServiceID,
	}).Get(ctx, &quote)
	if err != nil {
		result.Error = fmt.Sprintf("failed to quote shipment: %v", err)
		return result, err
	}
	result.ProviderID = quote.ProviderID
	result.ServiceID = quote.ServiceID
	result.QuotedTotal = quote.Total

	// Step 2: accept the quote. Retried attempts reuse the workflow ID as the
	// request key and get back the shipment the first attempt created.
	var shipment activities.ShipmentResult
	err = workflow.ExecuteActivity(ctx, CreateShipmentActivity, activities.CreateShipmentInput{
		OrderID:     input.OrderID,
		Description: input.Description,
		Package:     input.Package,
		ProviderID:  quote.ProviderID,
		ServiceID:   quote.ServiceID,
		RequestKey:  workflow.GetInfo(ctx).WorkflowExecution.ID,
	}).Get(ctx, &shipment)
	if err != nil {
		result.Error = fmt.Sprintf("failed to create shipment: %v", err)
		return result, err
	}

	result.ShipmentID = shipment.ShipmentID
	result.TrackingNumber = shipment.TrackingNumber
	result.Total = shipment.Total
	result.Currency = shipment.Currency
	result.Success = true

	logger.Info("Shipment quote workflow completed",
		"orderId", input.OrderID,
		"shipmentId", shipment.ShipmentID,
		"trackingNumber", shipment.TrackingNumber,
	)
	return result, nil
}
