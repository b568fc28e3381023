package application

import "github.com/shopspring/decimal"

// PackageSpec describes what is being shipped and where.
type PackageSpec struct {
	CountryCode    string
	StateCode      string
	WeightKg       decimal.Decimal
	VolumeCm3      decimal.Decimal
	DeclaredValue  decimal.Decimal
	WantsInsurance bool
	// Currency is the optional display currency of the quote.
	Currency string
}

// QuoteCommand prices a package with one provider service.
type QuoteCommand struct {
	PackageSpec
	ProviderID string
	ServiceID  string
}

// ShopRatesCommand prices a package with every active provider service.
type ShopRatesCommand struct {
	PackageSpec
}

// CreateShipmentCommand accepts a quote. The quote is recomputed against the
// current reference data before the shipment is created.
type CreateShipmentCommand struct {
	QuoteCommand
	OrderID     string
	Description string
	// RequestKey makes creation retry-safe: a repeated key returns the
	// shipment it already created.
	RequestKey string
}

// AdvanceShipmentCommand moves a shipment to a new status.
type AdvanceShipmentCommand struct {
	ShipmentID  string
	Status      string
	Description string
	Location    string
}

// CancelShipmentCommand cancels a shipment that has not been picked up.
type CancelShipmentCommand struct {
	ShipmentID string
	Reason     string
}

// GetShipmentQuery represents the query to get a shipment by ID
type GetShipmentQuery struct {
	ShipmentID string
}

// GetByOrderQuery represents the query to get the shipments of an order
type GetByOrderQuery struct {
	OrderID string
}

// GetByTrackingQuery represents the query to get shipment by tracking number
type GetByTrackingQuery struct {
	TrackingNumber string
}

// ResolveQuery resolves a destination.
type ResolveQuery struct {
	CountryCode string
	StateCode   string
}
