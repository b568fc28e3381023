package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxTrackingNumberAttempts bounds tracking number regeneration on collision.
const MaxTrackingNumberAttempts = 5

// ShipmentEvent is an append-only entry of a shipment's status history.
type ShipmentEvent struct {
	EventID     string         `json:"eventId"`
	ShipmentID  string         `json:"shipmentId"`
	Seq         int64          `json:"seq"`
	Status      ShipmentStatus `json:"status"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
}

// Shipment is the aggregate root of the lifecycle manager. Status always equals
// the status of the event named by LastEventID; both only change together in
// Advance and are persisted in one atomic unit.
type Shipment struct {
	ShipmentID     string
	OrderID        string
	ProviderID     string
	ServiceID      string
	TrackingNumber string
	// RequestKey identifies the request that created the shipment; at most
	// one shipment exists per non-empty key.
	RequestKey     string
	Destination    Destination
	WeightKg       decimal.Decimal
	VolumeCm3      decimal.Decimal
	DeclaredValue  decimal.Decimal
	Cost           CostBreakdown
	Status         ShipmentStatus
	Version        int64
	LastEventID    string
	LastEventSeq   int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DomainEvents   []DomainEvent
}

// NewShipmentParams are the accepted-quote inputs of a new shipment.
type NewShipmentParams struct {
	OrderID        string
	ProviderID     string
	ServiceID      string
	TrackingNumber string
	RequestKey     string
	Destination    Destination
	WeightKg       decimal.Decimal
	VolumeCm3      decimal.Decimal
	DeclaredValue  decimal.Decimal
	Cost           CostBreakdown
	Description    string
}

// NewShipment creates a shipment in the created state together with its
// initial event.
func NewShipment(p NewShipmentParams, now time.Time) (*Shipment, *ShipmentEvent, error) {
	if strings.TrimSpace(p.OrderID) == "" {
		return nil, nil, fmt.Errorf("%w: order id is required", ErrInvalidShipment)
	}
	if p.TrackingNumber == "" {
		return nil, nil, fmt.Errorf("%w: tracking number is required", ErrInvalidShipment)
	}
	if !p.WeightKg.IsPositive() {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidWeight, p.WeightKg)
	}
	if !p.VolumeCm3.IsPositive() {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidVolume, p.VolumeCm3)
	}

	s := &Shipment{
		ShipmentID:     uuid.NewString(),
		OrderID:        p.OrderID,
		ProviderID:     p.ProviderID,
		ServiceID:      p.ServiceID,
		TrackingNumber: p.TrackingNumber,
		RequestKey:     p.RequestKey,
		Destination:    p.Destination,
		WeightKg:       p.WeightKg,
		VolumeCm3:      p.VolumeCm3,
		DeclaredValue:  p.DeclaredValue,
		Cost:           p.Cost,
		Status:         StatusCreated,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	description := p.Description
	if description == "" {
		description = "Shipment created"
	}
	ev := s.newEvent(StatusCreated, description, "", now)
	s.LastEventID = ev.EventID
	s.LastEventSeq = ev.Seq

	s.AddDomainEvent(&ShipmentCreatedEvent{
		ShipmentID:     s.ShipmentID,
		OrderID:        s.OrderID,
		ProviderID:     s.ProviderID,
		ServiceID:      s.ServiceID,
		TrackingNumber: s.TrackingNumber,
		CountryCode:    s.Destination.CountryCode,
		ZoneID:         s.Destination.ZoneID,
		RuleID:         s.Cost.RuleID,
		Total:          s.Cost.Total.StringFixed(MoneyPlaces),
		Currency:       s.Cost.Currency,
		CreatedAt:      now,
	})
	return s, ev, nil
}

// Advance moves the shipment to status and returns the appended event. On
// error the shipment is left unchanged.
func (s *Shipment) Advance(status ShipmentStatus, description, location string, now time.Time) (*ShipmentEvent, error) {
	if err := CheckTransition(s.Status, status); err != nil {
		return nil, err
	}

	from := s.Status
	ev := s.newEvent(status, description, location, now)
	s.Status = status
	s.LastEventID = ev.EventID
	s.LastEventSeq = ev.Seq
	s.Version++
	s.UpdatedAt = now

	s.AddDomainEvent(&ShipmentStatusChangedEvent{
		ShipmentID:     s.ShipmentID,
		OrderID:        s.OrderID,
		TrackingNumber: s.TrackingNumber,
		EventID:        ev.EventID,
		Seq:            ev.Seq,
		From:           from,
		To:             status,
		Description:    description,
		Location:       location,
		ChangedAt:      now,
	})
	return ev, nil
}

func (s *Shipment) newEvent(status ShipmentStatus, description, location string, now time.Time) *ShipmentEvent {
	return &ShipmentEvent{
		EventID:     uuid.NewString(),
		ShipmentID:  s.ShipmentID,
		Seq:         s.LastEventSeq + 1,
		Status:      status,
		Description: description,
		Location:    location,
		OccurredAt:  now,
	}
}

// Clone returns a copy that does not share pending domain events.
func (s *Shipment) Clone() *Shipment {
	c := *s
	c.DomainEvents = nil
	return &c
}

// AddDomainEvent adds a domain event
func (s *Shipment) AddDomainEvent(event DomainEvent) {
	s.DomainEvents = append(s.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (s *Shipment) ClearDomainEvents() {
	s.DomainEvents = nil
}

// GetDomainEvents returns all domain events
func (s *Shipment) GetDomainEvents() []DomainEvent {
	return s.DomainEvents
}
