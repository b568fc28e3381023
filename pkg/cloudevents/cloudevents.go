package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wms-platform/shipping-service/pkg/logging"
)

// Shipping event types
const (
	ShipmentCreated       = "wms.shipping.shipment-created"
	ShipmentStatusChanged = "wms.shipping.shipment-status-changed"
	ReferenceRefreshed    = "wms.shipping.reference-refreshed"
)

// SourceShipping is the CloudEvents source of this service.
const SourceShipping = "/wms/shipping-service"

// WMSCloudEvent represents a CloudEvents v1.0 compliant event
type WMSCloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	CorrelationID string `json:"wmscorrelationid,omitempty"`
	OrderID       string `json:"wmsorderid,omitempty"`
}

// EventFactory creates CloudEvents for shipping domain events
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new WMSCloudEvent. The correlation id is lifted from
// the context when the HTTP layer has put one there.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *WMSCloudEvent {
	event := &WMSCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}
	if ctx != nil {
		if v, ok := ctx.Value(logging.CorrelationIDKey).(string); ok {
			event.CorrelationID = v
		}
	}
	return event
}
