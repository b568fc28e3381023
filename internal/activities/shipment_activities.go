package activities

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/wms-platform/shipping-service/internal/application"
	"github.com/wms-platform/shipping-service/internal/domain"
	"github.com/wms-platform/shipping-service/pkg/errors"
	"github.com/wms-platform/shipping-service/pkg/logging"
)

// ShipmentActivities contains the activities of the shipment workflows
type ShipmentActivities struct {
	quotes    *application.QuoteService
	shipments *application.ShipmentService
	logger    *logging.Logger
}

// NewShipmentActivities creates a new ShipmentActivities instance
func NewShipmentActivities(quotes *application.QuoteService, shipments *application.ShipmentService, logger *logging.Logger) *ShipmentActivities {
	return &ShipmentActivities{
		quotes:    quotes,
		shipments: shipments,
		logger:    logger.WithComponent("shipment-activities"),
	}
}

// PackageInput describes the package. Numbers are decimal strings.
type PackageInput struct {
	Country       string `json:"country"`
	State         string `json:"state,omitempty"`
	WeightKg      string `json:"weightKg"`
	VolumeCm3     string `json:"volumeCm3"`
	DeclaredValue string `json:"declaredValue,omitempty"`
	Insurance     bool   `json:"insurance"`
	Currency      string `json:"currency,omitempty"`
}

// QuoteShipmentInput represents input for quoting a package. Without a
// provider service the cheapest offering is chosen.
type QuoteShipmentInput struct {
	Package    PackageInput `json:"package"`
	ProviderID string       `json:"providerId,omitempty"`
	ServiceID  string       `json:"serviceId,omitempty"`
}

// QuoteResult is the chosen quote. Total is in the rate rule's currency,
// DisplayTotal in the requested currency when one was asked for.
type QuoteResult struct {
	ProviderID      string `json:"providerId"`
	ServiceID       string `json:"serviceId"`
	RuleID          string `json:"ruleId"`
	Total           string `json:"total"`
	Currency        string `json:"currency"`
	DisplayTotal    string `json:"displayTotal,omitempty"`
	DisplayCurrency string `json:"displayCurrency,omitempty"`
	TransitDaysMax  int    `json:"transitDaysMax"`
	SnapshotVersion int64  `json:"snapshotVersion"`
}

// CreateShipmentInput represents input for creating a shipment
type CreateShipmentInput struct {
	OrderID     string       `json:"orderId"`
	Description string       `json:"description,omitempty"`
	Package     PackageInput `json:"package"`
	ProviderID  string       `json:"providerId"`
	ServiceID   string       `json:"serviceId"`
	RequestKey  string       `json:"requestKey,omitempty"`
}

// ShipmentResult summarizes a created shipment
type ShipmentResult struct {
	ShipmentID     string `json:"shipmentId"`
	TrackingNumber string `json:"trackingNumber"`
	Status         string `json:"status"`
	Total          string `json:"total"`
	Currency       string `json:"currency"`
}

// AdvanceShipmentInput represents input for a status change
type AdvanceShipmentInput struct {
	ShipmentID  string `json:"shipmentId"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
}

// QuoteShipment prices the package with the requested provider service, or
// shops all offerings and returns the cheapest.
func (a *ShipmentActivities) QuoteShipment(ctx context.Context, input QuoteShipmentInput) (*QuoteResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Quoting shipment", "country", input.Package.Country, "providerId", input.ProviderID)

	spec, err := input.Package.toSpec()
	if err != nil {
		return nil, toTemporalError(err)
	}

	if input.ProviderID != "" || input.ServiceID != "" {
		quote, err := a.quotes.Quote(ctx, application.QuoteCommand{
			PackageSpec: spec,
			ProviderID:  input.ProviderID,
			ServiceID:   input.ServiceID,
		})
		if err != nil {
			return nil, toTemporalError(err)
		}
		return toQuoteResult(quote), nil
	}

	quotes, err := a.quotes.ShopRates(ctx, application.ShopRatesCommand{PackageSpec: spec})
	if err != nil {
		return nil, toTemporalError(err)
	}
	if len(quotes) == 0 {
		return nil, toTemporalError(application.MapDomainError(domain.ErrNoApplicableRate))
	}

	logger.Info("Cheapest offering chosen", "providerId", quotes[0].ProviderID, "serviceId", quotes[0].ServiceID, "offers", len(quotes))
	return toQuoteResult(&quotes[0]), nil
}

// CreateShipment accepts the quote for the given provider service.
func (a *ShipmentActivities) CreateShipment(ctx context.Context, input CreateShipmentInput) (*ShipmentResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Creating shipment", "orderId", input.OrderID, "providerId", input.ProviderID, "serviceId", input.ServiceID)

	spec, err := input.Package.toSpec()
	if err != nil {
		return nil, toTemporalError(err)
	}

	shipment, err := a.shipments.CreateShipment(ctx, application.CreateShipmentCommand{
		QuoteCommand: application.QuoteCommand{
			PackageSpec: spec,
			ProviderID:  input.ProviderID,
			ServiceID:   input.ServiceID,
		},
		OrderID:     input.OrderID,
		Description: input.Description,
		RequestKey:  input.RequestKey,
	})
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).Error("Failed to create shipment",
			"orderId", input.OrderID,
			"attempt", activity.GetInfo(ctx).Attempt,
		)
		return nil, toTemporalError(err)
	}

	logger.Info("Shipment created", "shipmentId", shipment.ShipmentID, "trackingNumber", shipment.TrackingNumber)
	return &ShipmentResult{
		ShipmentID:     shipment.ShipmentID,
		TrackingNumber: shipment.TrackingNumber,
		Status:         shipment.Status,
		Total:          shipment.Cost.Total,
		Currency:       shipment.Cost.Currency,
	}, nil
}

// AdvanceShipment records a carrier status update.
func (a *ShipmentActivities) AdvanceShipment(ctx context.Context, input AdvanceShipmentInput) (*application.ShipmentEventDTO, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Advancing shipment", "shipmentId", input.ShipmentID, "status", input.Status)

	event, err := a.shipments.AdvanceShipment(ctx, application.AdvanceShipmentCommand{
		ShipmentID:  input.ShipmentID,
		Status:      input.Status,
		Description: input.Description,
		Location:    input.Location,
	})
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).Warn("Failed to advance shipment",
			"shipmentId", input.ShipmentID,
			"status", input.Status,
			"attempt", activity.GetInfo(ctx).Attempt,
		)
		return nil, toTemporalError(err)
	}
	return event, nil
}

func (p PackageInput) toSpec() (application.PackageSpec, error) {
	weight, err := parseDecimal("weightKg", p.WeightKg, true)
	if err != nil {
		return application.PackageSpec{}, err
	}
	volume, err := parseDecimal("volumeCm3", p.VolumeCm3, true)
	if err != nil {
		return application.PackageSpec{}, err
	}
	declared, err := parseDecimal("declaredValue", p.DeclaredValue, false)
	if err != nil {
		return application.PackageSpec{}, err
	}
	return application.PackageSpec{
		CountryCode:    p.Country,
		StateCode:      p.State,
		WeightKg:       weight,
		VolumeCm3:      volume,
		DeclaredValue:  declared,
		WantsInsurance: p.Insurance,
		Currency:       p.Currency,
	}, nil
}

func parseDecimal(field, s string, required bool) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if required {
			return decimal.Zero, errors.ErrValidationWithFields("validation failed", map[string]string{field: "is required"})
		}
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.ErrValidationWithFields("validation failed", map[string]string{field: "must be a decimal number"})
	}
	return d, nil
}

func toQuoteResult(q *application.QuoteDTO) *QuoteResult {
	result := &QuoteResult{
		ProviderID:      q.ProviderID,
		ServiceID:       q.ServiceID,
		RuleID:          q.Cost.RuleID,
		Total:           q.Cost.Total,
		Currency:        q.Cost.Currency,
		TransitDaysMax:  q.TransitDaysMax,
		SnapshotVersion: q.SnapshotVersion,
	}
	if q.Display != nil {
		result.DisplayTotal = q.Display.Total
		result.DisplayCurrency = q.Display.Currency
	}
	return result
}

// toTemporalError keeps retryable failures (conflicts, unavailable stores,
// anything unclassified) retryable and stops retries for business errors.
// The AppError code becomes the Temporal error type.
func toTemporalError(err error) error {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		return err
	}
	if appErr.Retryable || appErr.Category == errors.CategoryInternal {
		return temporal.NewApplicationErrorWithCause(appErr.Message, appErr.Code, err)
	}
	return temporal.NewNonRetryableApplicationError(appErr.Message, appErr.Code, err)
}
