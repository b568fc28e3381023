package application

import (
	"github.com/shopspring/decimal"

	"github.com/wms-platform/shipping-service/internal/domain"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyPlaces)
}

// ToDestinationDTO converts a domain Destination to DestinationDTO
func ToDestinationDTO(d *domain.Destination) DestinationDTO {
	return DestinationDTO{
		CountryCode:       d.CountryCode,
		StateCode:         d.StateCode,
		ZoneID:            d.ZoneID,
		Latitude:          d.Latitude,
		Longitude:         d.Longitude,
		Currency:          d.Currency,
		TaxJurisdictionID: d.TaxJurisdictionID,
		DistanceKm:        d.DistanceKm.StringFixed(3),
		Precision:         string(d.Precision),
		International:     d.International,
	}
}

// ToCostBreakdownDTO converts a domain CostBreakdown to CostBreakdownDTO
func ToCostBreakdownDTO(b *domain.CostBreakdown) CostBreakdownDTO {
	return CostBreakdownDTO{
		RuleID:              b.RuleID,
		Currency:            b.Currency,
		BaseCost:            money(b.BaseCost),
		WeightCharge:        money(b.WeightCharge),
		DistanceCharge:      money(b.DistanceCharge),
		VolumeCharge:        money(b.VolumeCharge),
		Freight:             money(b.Freight),
		FuelSurcharge:       money(b.FuelSurcharge),
		Subtotal:            money(b.Subtotal),
		Insurance:           money(b.Insurance),
		Customs:             money(b.Customs),
		FreeShippingApplied: b.FreeShippingApplied,
		FreightWaived:       b.FreightWaived(),
		Total:               money(b.Total),
	}
}

// ToQuoteDTO converts a Quote to QuoteDTO
func ToQuoteDTO(q *Quote) *QuoteDTO {
	dto := &QuoteDTO{
		ProviderID:      q.Provider.ID,
		ProviderName:    q.Provider.Name,
		ServiceID:       q.Service.ID,
		ServiceName:     q.Service.Name,
		TransitDaysMin:  q.Service.TransitDaysMin,
		TransitDaysMax:  q.Service.TransitDaysMax,
		Destination:     ToDestinationDTO(q.Destination),
		Cost:            ToCostBreakdownDTO(q.Cost),
		SnapshotVersion: q.SnapshotVersion,
		QuotedAt:        q.QuotedAt,
	}
	if q.Display != nil {
		display := ToCostBreakdownDTO(q.Display)
		dto.Display = &display
	}
	return dto
}

// ToShipmentDTO converts a domain Shipment to ShipmentDTO
func ToShipmentDTO(s *domain.Shipment) *ShipmentDTO {
	if s == nil {
		return nil
	}
	return &ShipmentDTO{
		ShipmentID:     s.ShipmentID,
		OrderID:        s.OrderID,
		ProviderID:     s.ProviderID,
		ServiceID:      s.ServiceID,
		TrackingNumber: s.TrackingNumber,
		Status:         string(s.Status),
		Version:        s.Version,
		Destination:    ToDestinationDTO(&s.Destination),
		WeightKg:       s.WeightKg.String(),
		VolumeCm3:      s.VolumeCm3.String(),
		DeclaredValue:  money(s.DeclaredValue),
		Cost:           ToCostBreakdownDTO(&s.Cost),
		LastEventID:    s.LastEventID,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// ToShipmentDTOs converts shipments, never returning nil.
func ToShipmentDTOs(shipments []*domain.Shipment) []ShipmentDTO {
	dtos := make([]ShipmentDTO, 0, len(shipments))
	for _, s := range shipments {
		dtos = append(dtos, *ToShipmentDTO(s))
	}
	return dtos
}

// ToShipmentEventDTO converts a domain ShipmentEvent to ShipmentEventDTO
func ToShipmentEventDTO(e *domain.ShipmentEvent) *ShipmentEventDTO {
	return &ShipmentEventDTO{
		EventID:     e.EventID,
		ShipmentID:  e.ShipmentID,
		Seq:         e.Seq,
		Status:      string(e.Status),
		Description: e.Description,
		Location:    e.Location,
		OccurredAt:  e.OccurredAt,
	}
}

// ToReferenceSummaryDTO summarizes a snapshot
func ToReferenceSummaryDTO(snap *domain.Snapshot) *ReferenceSummaryDTO {
	data := snap.Data()
	return &ReferenceSummaryDTO{
		Version:       snap.Version,
		LoadedAt:      snap.LoadedAt,
		RatesLoadedAt: snap.RatesLoadedAt,
		Countries:     len(data.Countries),
		Zones:         len(data.Zones),
		Offerings:     len(snap.Offerings()),
		RateRules:     len(data.RateRules),
		ExchangeRates: len(snap.Rates()),
		Overlaps:      len(snap.Overlaps()),
	}
}
