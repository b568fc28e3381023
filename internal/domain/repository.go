package domain

import (
	"context"
	"time"
)

// ShipmentRepository defines the interface for shipment persistence.
//
// Append persists a transition: it writes the advanced shipment and its new
// event in one atomic unit, and only if the stored version is
// shipment.Version-1. A version mismatch returns ErrConcurrencyConflict.
// Create returns ErrDuplicateRequestKey when a shipment with the same
// non-empty RequestKey exists. Find methods return (nil, nil) when nothing
// matches.
type ShipmentRepository interface {
	Create(ctx context.Context, shipment *Shipment, initial *ShipmentEvent) error
	Append(ctx context.Context, shipment *Shipment, event *ShipmentEvent) error
	FindByID(ctx context.Context, shipmentID string) (*Shipment, error)
	FindByOrderID(ctx context.Context, orderID string) ([]*Shipment, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (*Shipment, error)
	FindByRequestKey(ctx context.Context, requestKey string) (*Shipment, error)
	ListEvents(ctx context.Context, shipmentID string) ([]*ShipmentEvent, error)
}

// ReferenceSource loads reference tables and exchange rates from a store
// outside the engine.
type ReferenceSource interface {
	LoadReference(ctx context.Context) (ReferenceData, error)
	LoadExchangeRates(ctx context.Context) ([]ExchangeRate, error)
}

// TrackingNumberGenerator produces a tracking number for a provider. Uniqueness
// is checked by the repository; callers regenerate on collision.
type TrackingNumberGenerator interface {
	Generate(provider *Provider) (string, error)
}

// Locker serializes work on one key across goroutines or processes.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
