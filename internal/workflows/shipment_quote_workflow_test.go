package workflows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/wms-platform/shipping-service/internal/activities"
)

func parcel() activities.PackageInput {
	return activities.PackageInput{Country: "DE", WeightKg: "3", VolumeCm3: "2000"}
}

func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivityWithOptions(
		func(ctx context.Context, input activities.QuoteShipmentInput) (*activities.QuoteResult, error) {
			return nil, nil
		},
		activity.RegisterOptions{Name: QuoteShipmentActivity},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, input activities.CreateShipmentInput) (*activities.ShipmentResult, error) {
			return nil, nil
		},
		activity.RegisterOptions{Name: CreateShipmentActivity},
	)
}

func TestShipmentQuoteWorkflow_Success(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	registerActivities(env)

	env.OnActivity(QuoteShipmentActivity, mock.Anything, mock.Anything).Return(&activities.QuoteResult{
		ProviderID: "P-UPS",
		ServiceID:  "S-UPS-EXP",
		RuleID:     "R-UPS-EXP-EU-PROMO",
		Total:      "14.40",
		Currency:   "USD",
	}, nil)

	var created activities.CreateShipmentInput
	env.OnActivity(CreateShipmentActivity, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, input activities.CreateShipmentInput) (*activities.ShipmentResult, error) {
			created = input
			return &activities.ShipmentResult{
				ShipmentID:     "SHP-1",
				TrackingNumber: "1ZA1B2C30112345678",
				Status:         "created",
				Total:          "14.40",
				Currency:       "USD",
			}, nil
		})

	env.SetStartWorkflowOptions(client.StartWorkflowOptions{ID: "shipment-quote-ORD-1"})
	env.ExecuteWorkflow(ShipmentQuoteWorkflow, ShipmentQuoteInput{OrderID: "ORD-1", Package: parcel()})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ShipmentQuoteResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Success)
	assert.Equal(t, "SHP-1", result.ShipmentID)
	assert.Equal(t, "1ZA1B2C30112345678", result.TrackingNumber)
	assert.Equal(t, "14.40", result.QuotedTotal)
	assert.Equal(t, "14.40", result.Total)

	// the chosen offering is the one that gets booked
	assert.Equal(t, "ORD-1", created.OrderID)
	assert.Equal(t, "P-UPS", created.ProviderID)
	assert.Equal(t, "S-UPS-EXP", created.ServiceID)
	assert.Equal(t, "shipment-quote-ORD-1", created.RequestKey)
}

func TestShipmentQuoteWorkflow_QuoteRejected(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	registerActivities(env)

	env.OnActivity(QuoteShipmentActivity, mock.Anything, mock.Anything).Return(
		nil, temporal.NewNonRetryableApplicationError("shipping to this country is not allowed", "SHIPPING_NOT_ALLOWED", nil))

	env.ExecuteWorkflow(ShipmentQuoteWorkflow, ShipmentQuoteInput{OrderID: "ORD-2", Package: parcel()})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHIPPING_NOT_ALLOWED")
	env.AssertNotCalled(t, CreateShipmentActivity, mock.Anything, mock.Anything)
}

func TestShipmentQuoteWorkflow_CreateRetriesConflicts(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	registerActivities(env)

	env.OnActivity(QuoteShipmentActivity, mock.Anything, mock.Anything).Return(&activities.QuoteResult{
		ProviderID: "P-FEDEX",
		ServiceID:  "S-FDX-ECO",
		Total:      "27.10",
		Currency:   "USD",
	}, nil)

	var keys []string
	attempts := 0
	env.OnActivity(CreateShipmentActivity, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, input activities.CreateShipmentInput) (*activities.ShipmentResult, error) {
			attempts++
			keys = append(keys, input.RequestKey)
			if attempts == 1 {
				return nil, temporal.NewApplicationError("tracking number already in use", "DUPLICATE_TRACKING_NUMBER")
			}
			return &activities.ShipmentResult{ShipmentID: "SHP-2", TrackingNumber: "123456789012", Status: "created", Total: "27.10", Currency: "USD"}, nil
		})

	env.SetStartWorkflowOptions(client.StartWorkflowOptions{ID: "shipment-quote-ORD-3"})
	env.ExecuteWorkflow(ShipmentQuoteWorkflow, ShipmentQuoteInput{OrderID: "ORD-3", Package: parcel()})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, 2, attempts)
	// every attempt carries the same request key
	assert.Equal(t, []string{"shipment-quote-ORD-3", "shipment-quote-ORD-3"}, keys)

	var result ShipmentQuoteResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "SHP-2", result.ShipmentID)
}
