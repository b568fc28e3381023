package application

import (
	"time"

	"github.com/wms-platform/shipping-service/internal/domain"
)

// Money and quantities are rendered as decimal strings so no precision is
// lost in JSON.

// DestinationDTO represents a resolved destination
type DestinationDTO struct {
	CountryCode       string  `json:"countryCode"`
	StateCode         string  `json:"stateCode,omitempty"`
	ZoneID            string  `json:"zoneId"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	Currency          string  `json:"currency"`
	TaxJurisdictionID string  `json:"taxJurisdictionId"`
	DistanceKm        string  `json:"distanceKm"`
	Precision         string  `json:"precision"`
	International     bool    `json:"international"`
}

// CostBreakdownDTO represents an itemized cost
type CostBreakdownDTO struct {
	RuleID              string `json:"ruleId"`
	Currency            string `json:"currency"`
	BaseCost            string `json:"baseCost"`
	WeightCharge        string `json:"weightCharge"`
	DistanceCharge      string `json:"distanceCharge"`
	VolumeCharge        string `json:"volumeCharge"`
	Freight             string `json:"freight"`
	FuelSurcharge       string `json:"fuelSurcharge"`
	Subtotal            string `json:"subtotal"`
	Insurance           string `json:"insurance"`
	Customs             string `json:"customs"`
	FreeShippingApplied bool   `json:"freeShippingApplied"`
	FreightWaived       bool   `json:"freightWaived"`
	Total               string `json:"total"`
}

// QuoteDTO represents a priced provider service
type QuoteDTO struct {
	ProviderID      string            `json:"providerId"`
	ProviderName    string            `json:"providerName"`
	ServiceID       string            `json:"serviceId"`
	ServiceName     string            `json:"serviceName"`
	TransitDaysMin  int               `json:"transitDaysMin"`
	TransitDaysMax  int               `json:"transitDaysMax"`
	Destination     DestinationDTO    `json:"destination"`
	Cost            CostBreakdownDTO  `json:"cost"`
	Display         *CostBreakdownDTO `json:"display,omitempty"`
	SnapshotVersion int64             `json:"snapshotVersion"`
	QuotedAt        time.Time         `json:"quotedAt"`
}

// ShipmentDTO represents a shipment in responses
type ShipmentDTO struct {
	ShipmentID     string           `json:"shipmentId"`
	OrderID        string           `json:"orderId"`
	ProviderID     string           `json:"providerId"`
	ServiceID      string           `json:"serviceId"`
	TrackingNumber string           `json:"trackingNumber"`
	Status         string           `json:"status"`
	Version        int64            `json:"version"`
	Destination    DestinationDTO   `json:"destination"`
	WeightKg       string           `json:"weightKg"`
	VolumeCm3      string           `json:"volumeCm3"`
	DeclaredValue  string           `json:"declaredValue"`
	Cost           CostBreakdownDTO `json:"cost"`
	LastEventID    string           `json:"lastEventId"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// ShipmentEventDTO represents one entry of a shipment's history
type ShipmentEventDTO struct {
	EventID     string    `json:"eventId"`
	ShipmentID  string    `json:"shipmentId"`
	Seq         int64     `json:"seq"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// ReferenceSummaryDTO describes the loaded reference snapshot
type ReferenceSummaryDTO struct {
	Version       int64     `json:"version"`
	LoadedAt      time.Time `json:"loadedAt"`
	RatesLoadedAt time.Time `json:"ratesLoadedAt"`
	Countries     int       `json:"countries"`
	Zones         int       `json:"zones"`
	Offerings     int       `json:"offerings"`
	RateRules     int       `json:"rateRules"`
	ExchangeRates int       `json:"exchangeRates"`
	Overlaps      int       `json:"overlaps"`
}

// ValidationReportDTO lists data-entry problems in the reference data.
// Overlaps are warnings; the engine resolves them with its tie-break policy.
type ValidationReportDTO struct {
	Version            int64                `json:"version"`
	Overlaps           []domain.RuleOverlap `json:"overlaps"`
	ZonePartitionOK    bool                 `json:"zonePartitionOk"`
	ZonePartitionError string               `json:"zonePartitionError,omitempty"`
}
