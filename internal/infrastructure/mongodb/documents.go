package mongodb

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/wms-platform/shipping-service/internal/domain"
)

// Decimals are stored as Decimal128 so amounts stay exact and remain
// queryable as numbers.

func toD128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		// decimal.String never produces a value ParseDecimal128 rejects
		// within the precision used for money and weights.
		panic(err)
	}
	return v
}

func fromD128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

type destinationDocument struct {
	CountryCode       string               `bson:"countryCode"`
	StateCode         string               `bson:"stateCode,omitempty"`
	ZoneID            string               `bson:"zoneId"`
	Latitude          float64              `bson:"latitude"`
	Longitude         float64              `bson:"longitude"`
	Currency          string               `bson:"currency"`
	TaxJurisdictionID string               `bson:"taxJurisdictionId"`
	DistanceKm        primitive.Decimal128 `bson:"distanceKm"`
	Precision         string               `bson:"precision"`
	International     bool                 `bson:"international"`
}

type costDocument struct {
	RuleID              string               `bson:"ruleId"`
	Currency            string               `bson:"currency"`
	BaseCost            primitive.Decimal128 `bson:"baseCost"`
	WeightCharge        primitive.Decimal128 `bson:"weightCharge"`
	DistanceCharge      primitive.Decimal128 `bson:"distanceCharge"`
	VolumeCharge        primitive.Decimal128 `bson:"volumeCharge"`
	Freight             primitive.Decimal128 `bson:"freight"`
	FuelSurcharge       primitive.Decimal128 `bson:"fuelSurcharge"`
	Subtotal            primitive.Decimal128 `bson:"subtotal"`
	Insurance           primitive.Decimal128 `bson:"insurance"`
	Customs             primitive.Decimal128 `bson:"customs"`
	FreeShippingApplied bool                 `bson:"freeShippingApplied"`
	Total               primitive.Decimal128 `bson:"total"`
	DistanceKm          primitive.Decimal128 `bson:"distanceKm"`
	DistancePrecision   string               `bson:"distancePrecision"`
}

type shipmentDocument struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty"`
	ShipmentID     string               `bson:"shipmentId"`
	OrderID        string               `bson:"orderId"`
	ProviderID     string               `bson:"providerId"`
	ServiceID      string               `bson:"serviceId"`
	TrackingNumber string               `bson:"trackingNumber"`
	RequestKey     string               `bson:"requestKey,omitempty"`
	Destination    destinationDocument  `bson:"destination"`
	WeightKg       primitive.Decimal128 `bson:"weightKg"`
	VolumeCm3      primitive.Decimal128 `bson:"volumeCm3"`
	DeclaredValue  primitive.Decimal128 `bson:"declaredValue"`
	Cost           costDocument         `bson:"cost"`
	Status         string               `bson:"status"`
	Version        int64                `bson:"version"`
	LastEventID    string               `bson:"lastEventId"`
	LastEventSeq   int64                `bson:"lastEventSeq"`
	CreatedAt      time.Time            `bson:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt"`
}

type eventDocument struct {
	EventID     string    `bson:"eventId"`
	ShipmentID  string    `bson:"shipmentId"`
	Seq         int64     `bson:"seq"`
	Status      string    `bson:"status"`
	Description string    `bson:"description,omitempty"`
	Location    string    `bson:"location,omitempty"`
	OccurredAt  time.Time `bson:"occurredAt"`
}

func toShipmentDocument(s *domain.Shipment) *shipmentDocument {
	return &shipmentDocument{
		ShipmentID:     s.ShipmentID,
		OrderID:        s.OrderID,
		ProviderID:     s.ProviderID,
		ServiceID:      s.ServiceID,
		TrackingNumber: s.TrackingNumber,
		RequestKey:     s.RequestKey,
		Destination: destinationDocument{
			CountryCode:       s.Destination.CountryCode,
			StateCode:         s.Destination.StateCode,
			ZoneID:            s.Destination.ZoneID,
			Latitude:          s.Destination.Latitude,
			Longitude:         s.Destination.Longitude,
			Currency:          s.Destination.Currency,
			TaxJurisdictionID: s.Destination.TaxJurisdictionID,
			DistanceKm:        toD128(s.Destination.DistanceKm),
			Precision:         string(s.Destination.Precision),
			International:     s.Destination.International,
		},
		WeightKg:      toD128(s.WeightKg),
		VolumeCm3:     toD128(s.VolumeCm3),
		DeclaredValue: toD128(s.DeclaredValue),
		Cost: costDocument{
			RuleID:              s.Cost.RuleID,
			Currency:            s.Cost.Currency,
			BaseCost:            toD128(s.Cost.BaseCost),
			WeightCharge:        toD128(s.Cost.WeightCharge),
			DistanceCharge:      toD128(s.Cost.DistanceCharge),
			VolumeCharge:        toD128(s.Cost.VolumeCharge),
			Freight:             toD128(s.Cost.Freight),
			FuelSurcharge:       toD128(s.Cost.FuelSurcharge),
			Subtotal:            toD128(s.Cost.Subtotal),
			Insurance:           toD128(s.Cost.Insurance),
			Customs:             toD128(s.Cost.Customs),
			FreeShippingApplied: s.Cost.FreeShippingApplied,
			Total:               toD128(s.Cost.Total),
			DistanceKm:          toD128(s.Cost.DistanceKm),
			DistancePrecision:   string(s.Cost.DistancePrecision),
		},
		Status:       string(s.Status),
		Version:      s.Version,
		LastEventID:  s.LastEventID,
		LastEventSeq: s.LastEventSeq,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func (d *shipmentDocument) toDomain() *domain.Shipment {
	return &domain.Shipment{
		ShipmentID:     d.ShipmentID,
		OrderID:        d.OrderID,
		ProviderID:     d.ProviderID,
		ServiceID:      d.ServiceID,
		TrackingNumber: d.TrackingNumber,
		RequestKey:     d.RequestKey,
		Destination: domain.Destination{
			CountryCode:       d.Destination.CountryCode,
			StateCode:         d.Destination.StateCode,
			ZoneID:            d.Destination.ZoneID,
			Latitude:          d.Destination.Latitude,
			Longitude:         d.Destination.Longitude,
			Currency:          d.Destination.Currency,
			TaxJurisdictionID: d.Destination.TaxJurisdictionID,
			DistanceKm:        fromD128(d.Destination.DistanceKm),
			Precision:         domain.DistancePrecision(d.Destination.Precision),
			International:     d.Destination.International,
		},
		WeightKg:      fromD128(d.WeightKg),
		VolumeCm3:     fromD128(d.VolumeCm3),
		DeclaredValue: fromD128(d.DeclaredValue),
		Cost: domain.CostBreakdown{
			RuleID:              d.Cost.RuleID,
			Currency:            d.Cost.Currency,
			BaseCost:            fromD128(d.Cost.BaseCost),
			WeightCharge:        fromD128(d.Cost.WeightCharge),
			DistanceCharge:      fromD128(d.Cost.DistanceCharge),
			VolumeCharge:        fromD128(d.Cost.VolumeCharge),
			Freight:             fromD128(d.Cost.Freight),
			FuelSurcharge:       fromD128(d.Cost.FuelSurcharge),
			Subtotal:            fromD128(d.Cost.Subtotal),
			Insurance:           fromD128(d.Cost.Insurance),
			Customs:             fromD128(d.Cost.Customs),
			FreeShippingApplied: d.Cost.FreeShippingApplied,
			Total:               fromD128(d.Cost.Total),
			DistanceKm:          fromD128(d.Cost.DistanceKm),
			DistancePrecision:   domain.DistancePrecision(d.Cost.DistancePrecision),
		},
		Status:       domain.ShipmentStatus(d.Status),
		Version:      d.Version,
		LastEventID:  d.LastEventID,
		LastEventSeq: d.LastEventSeq,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func toEventDocument(e *domain.ShipmentEvent) *eventDocument {
	return &eventDocument{
		EventID:     e.EventID,
		ShipmentID:  e.ShipmentID,
		Seq:         e.Seq,
		Status:      string(e.Status),
		Description: e.Description,
		Location:    e.Location,
		OccurredAt:  e.OccurredAt,
	}
}

func (d *eventDocument) toDomain() *domain.ShipmentEvent {
	return &domain.ShipmentEvent{
		EventID:     d.EventID,
		ShipmentID:  d.ShipmentID,
		Seq:         d.Seq,
		Status:      domain.ShipmentStatus(d.Status),
		Description: d.Description,
		Location:    d.Location,
		OccurredAt:  d.OccurredAt,
	}
}
