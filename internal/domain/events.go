package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// ShipmentCreatedEvent is published when a quote is accepted and a shipment created
type ShipmentCreatedEvent struct {
	ShipmentID     string    `json:"shipmentId"`
	OrderID        string    `json:"orderId"`
	ProviderID     string    `json:"providerId"`
	ServiceID      string    `json:"serviceId"`
	TrackingNumber string    `json:"trackingNumber"`
	CountryCode    string    `json:"countryCode"`
	ZoneID         string    `json:"zoneId"`
	RuleID         string    `json:"ruleId"`
	Total          string    `json:"total"`
	Currency       string    `json:"currency"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (e *ShipmentCreatedEvent) EventType() string     { return "wms.shipping.shipment-created" }
func (e *ShipmentCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// ShipmentStatusChangedEvent is published for every lifecycle transition
type ShipmentStatusChangedEvent struct {
	ShipmentID     string         `json:"shipmentId"`
	OrderID        string         `json:"orderId"`
	TrackingNumber string         `json:"trackingNumber"`
	EventID        string         `json:"eventId"`
	Seq            int64          `json:"seq"`
	From           ShipmentStatus `json:"from"`
	To             ShipmentStatus `json:"to"`
	Description    string         `json:"description,omitempty"`
	Location       string         `json:"location,omitempty"`
	ChangedAt      time.Time      `json:"changedAt"`
}

func (e *ShipmentStatusChangedEvent) EventType() string {
	return "wms.shipping.shipment-status-changed"
}
func (e *ShipmentStatusChangedEvent) OccurredAt() time.Time { return e.ChangedAt }
