package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wms-platform/shipping-service/internal/domain"
)

// ShipmentRepository is an in-process domain.ShipmentRepository. Every write
// happens under one mutex so the shipment row and its event log change together.
type ShipmentRepository struct {
	mu         sync.RWMutex
	shipments  map[string]*domain.Shipment
	events     map[string][]*domain.ShipmentEvent
	byTracking map[string]string
	byRequest  map[string]string
}

// NewShipmentRepository creates an empty repository.
func NewShipmentRepository() *ShipmentRepository {
	return &ShipmentRepository{
		shipments:  make(map[string]*domain.Shipment),
		events:     make(map[string][]*domain.ShipmentEvent),
		byTracking: make(map[string]string),
		byRequest:  make(map[string]string),
	}
}

func (r *ShipmentRepository) Create(ctx context.Context, shipment *domain.Shipment, initial *domain.ShipmentEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byTracking[shipment.TrackingNumber]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateTrackingNumber, shipment.TrackingNumber)
	}
	if _, exists := r.byRequest[shipment.RequestKey]; exists && shipment.RequestKey != "" {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateRequestKey, shipment.RequestKey)
	}
	if _, exists := r.shipments[shipment.ShipmentID]; exists {
		return fmt.Errorf("shipment %s already exists", shipment.ShipmentID)
	}

	r.shipments[shipment.ShipmentID] = shipment.Clone()
	ev := *initial
	r.events[shipment.ShipmentID] = []*domain.ShipmentEvent{&ev}
	r.byTracking[shipment.TrackingNumber] = shipment.ShipmentID
	if shipment.RequestKey != "" {
		r.byRequest[shipment.RequestKey] = shipment.ShipmentID
	}
	return nil
}

func (r *ShipmentRepository) Append(ctx context.Context, shipment *domain.Shipment, event *domain.ShipmentEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.shipments[shipment.ShipmentID]
	if !ok || stored.Version != shipment.Version-1 {
		return fmt.Errorf("%w: shipment %s at version %d", domain.ErrConcurrencyConflict, shipment.ShipmentID, shipment.Version-1)
	}

	r.shipments[shipment.ShipmentID] = shipment.Clone()
	ev := *event
	r.events[shipment.ShipmentID] = append(r.events[shipment.ShipmentID], &ev)
	return nil
}

func (r *ShipmentRepository) FindByID(ctx context.Context, shipmentID string) (*domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.shipments[shipmentID]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

func (r *ShipmentRepository) FindByOrderID(ctx context.Context, orderID string) ([]*domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Shipment
	for _, s := range r.shipments {
		if s.OrderID == orderID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *ShipmentRepository) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.byTracking[trackingNumber]; ok {
		return r.shipments[id].Clone(), nil
	}
	return nil, nil
}

func (r *ShipmentRepository) FindByRequestKey(ctx context.Context, requestKey string) (*domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.byRequest[requestKey]; ok && requestKey != "" {
		return r.shipments[id].Clone(), nil
	}
	return nil, nil
}

func (r *ShipmentRepository) ListEvents(ctx context.Context, shipmentID string) ([]*domain.ShipmentEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.events[shipmentID]
	out := make([]*domain.ShipmentEvent, len(src))
	for i, ev := range src {
		c := *ev
		out[i] = &c
	}
	return out, nil
}
