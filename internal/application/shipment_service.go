package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/shipping-service/internal/domain"
	apperrors "github.com/wms-platform/shipping-service/pkg/errors"
	"github.com/wms-platform/shipping-service/pkg/logging"
	"github.com/wms-platform/shipping-service/pkg/metrics"
)

// DefaultLockTTL bounds how long one transition may hold a shipment lock.
const DefaultLockTTL = 10 * time.Second

// ShipmentService handles the shipment lifecycle use cases
type ShipmentService struct {
	repo     domain.ShipmentRepository
	quotes   *QuoteService
	trackers domain.TrackingNumberGenerator
	locker   domain.Locker
	lockTTL  time.Duration
	clock    clockz.Clock
	logger   *logging.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// NewShipmentService creates a new ShipmentService
func NewShipmentService(
	repo domain.ShipmentRepository,
	quotes *QuoteService,
	trackers domain.TrackingNumberGenerator,
	locker domain.Locker,
	clock clockz.Clock,
	logger *logging.Logger,
	m *metrics.Metrics,
) *ShipmentService {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &ShipmentService{
		repo:     repo,
		quotes:   quotes,
		trackers: trackers,
		locker:   locker,
		lockTTL:  DefaultLockTTL,
		clock:    clock,
		logger:   logger.WithComponent("shipment-service"),
		metrics:  m,
		tracer:   otel.Tracer(tracerName),
	}
}

// CreateShipment accepts a quote. The quote is recomputed against the current
// snapshot, so a shipment is never created from stale prices.
func (s *ShipmentService) CreateShipment(ctx context.Context, cmd CreateShipmentCommand) (*ShipmentDTO, error) {
	ctx, span := s.tracer.Start(ctx, "ShipmentService.CreateShipment",
		trace.WithAttributes(attribute.String("shipping.order_id", cmd.OrderID)))
	defer span.End()

	if existing, err := s.findRequested(ctx, cmd); existing != nil || err != nil {
		if err != nil {
			span.RecordError(err)
		}
		return existing, err
	}

	q, err := s.quotes.Calculate(ctx, cmd.QuoteCommand)
	if err != nil {
		span.RecordError(err)
		s.logger.WithContext(ctx).WithError(err).Warn("Shipment quote rejected", "orderId", cmd.OrderID, "code", errorCode(err))
		return nil, MapDomainError(err)
	}

	shipment, err := s.create(ctx, cmd, q)
	if errors.Is(err, domain.ErrDuplicateRequestKey) {
		// a concurrent attempt with the same key won the insert
		if existing, findErr := s.findRequested(ctx, cmd); existing != nil || findErr != nil {
			return existing, findErr
		}
	}
	if err != nil {
		span.RecordError(err)
		log := s.logger.WithContext(ctx).WithError(err)
		if _, ok := domain.KindOf(err); ok {
			log.Warn("Shipment creation rejected", "orderId", cmd.OrderID, "code", errorCode(err))
		} else {
			log.Error("Failed to create shipment", "orderId", cmd.OrderID)
		}
		return nil, MapDomainError(err)
	}

	s.metrics.RecordTransition("", string(domain.StatusCreated), true)
	s.logger.Audit(ctx, "create", "shipment", shipment.ShipmentID, map[string]any{
		"orderId":         shipment.OrderID,
		"trackingNumber":  shipment.TrackingNumber,
		"providerId":      shipment.ProviderID,
		"serviceId":       shipment.ServiceID,
		"ruleId":          shipment.Cost.RuleID,
		"total":           money(shipment.Cost.Total),
		"currency":        shipment.Cost.Currency,
		"snapshotVersion": q.SnapshotVersion,
	})
	return ToShipmentDTO(shipment), nil
}

// findRequested returns the shipment an earlier attempt with cmd.RequestKey
// created, or nil when there is none.
func (s *ShipmentService) findRequested(ctx context.Context, cmd CreateShipmentCommand) (*ShipmentDTO, error) {
	if cmd.RequestKey == "" {
		return nil, nil
	}
	existing, err := s.repo.FindByRequestKey(ctx, cmd.RequestKey)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to look up shipment by request key", "requestKey", cmd.RequestKey)
		return nil, MapDomainError(fmt.Errorf("failed to look up shipment by request key: %w", err))
	}
	if existing == nil {
		return nil, nil
	}
	if existing.OrderID != cmd.OrderID {
		err := fmt.Errorf("%w: %s belongs to order %s", domain.ErrRequestKeyReused, cmd.RequestKey, existing.OrderID)
		s.logger.WithContext(ctx).Warn("Shipment request key reused", "requestKey", cmd.RequestKey, "orderId", cmd.OrderID)
		return nil, MapDomainError(err)
	}
	s.logger.WithContext(ctx).Info("Shipment already created for request",
		"requestKey", cmd.RequestKey,
		"shipmentId", existing.ShipmentID,
		"orderId", existing.OrderID,
	)
	return ToShipmentDTO(existing), nil
}

func (s *ShipmentService) create(ctx context.Context, cmd CreateShipmentCommand, q *Quote) (*domain.Shipment, error) {
	for attempt := 1; attempt <= domain.MaxTrackingNumberAttempts; attempt++ {
		tracking, err := s.trackers.Generate(q.Provider)
		if err != nil {
			return nil, fmt.Errorf("failed to generate tracking number: %w", err)
		}

		shipment, initial, err := domain.NewShipment(domain.NewShipmentParams{
			OrderID:        cmd.OrderID,
			ProviderID:     q.Provider.ID,
			ServiceID:      q.Service.ID,
			TrackingNumber: tracking,
			RequestKey:     cmd.RequestKey,
			Destination:    *q.Destination,
			WeightKg:       cmd.WeightKg,
			VolumeCm3:      cmd.VolumeCm3,
			DeclaredValue:  cmd.DeclaredValue,
			Cost:           *q.Cost,
			Description:    cmd.Description,
		}, s.clock.Now())
		if err != nil {
			return nil, err
		}

		err = s.repo.Create(ctx, shipment, initial)
		if err == nil {
			return shipment, nil
		}
		if !errors.Is(err, domain.ErrDuplicateTrackingNumber) {
			return nil, err
		}
		s.logger.Warn("Tracking number collision", "provider", q.Provider.Code, "attempt", attempt)
	}
	return nil, domain.ErrTrackingNumberExhausted
}

// AdvanceShipment records a status transition. Transitions of one shipment
// are serialized by the locker; the repository's version check rejects any
// writer that slips past it.
func (s *ShipmentService) AdvanceShipment(ctx context.Context, cmd AdvanceShipmentCommand) (*ShipmentEventDTO, error) {
	status, err := domain.ParseShipmentStatus(cmd.Status)
	if err != nil {
		return nil, MapDomainError(err)
	}
	return s.advance(ctx, cmd.ShipmentID, status, cmd.Description, cmd.Location)
}

// CancelShipment moves a shipment that has not been picked up to cancelled.
func (s *ShipmentService) CancelShipment(ctx context.Context, cmd CancelShipmentCommand) (*ShipmentEventDTO, error) {
	reason := cmd.Reason
	if reason == "" {
		reason = "Shipment cancelled"
	}
	return s.advance(ctx, cmd.ShipmentID, domain.StatusCancelled, reason, "")
}

func (s *ShipmentService) advance(ctx context.Context, shipmentID string, status domain.ShipmentStatus, description, location string) (*ShipmentEventDTO, error) {
	ctx, span := s.tracer.Start(ctx, "ShipmentService.Advance", trace.WithAttributes(
		attribute.String("shipping.shipment_id", shipmentID),
		attribute.String("shipping.status", string(status)),
	))
	defer span.End()

	log := s.logger.WithContext(ctx).WithShipment(shipmentID)
	start := s.clock.Now()

	unlock, err := s.locker.Lock(ctx, shipmentID, s.lockTTL)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.WithError(err).Warn("Gave up waiting for shipment lock")
			return nil, MapDomainError(fmt.Errorf("waiting for shipment lock: %w", ctx.Err()))
		}
		log.WithError(err).Error("Failed to lock shipment")
		return nil, apperrors.ErrServiceUnavailable("shipment lock").Wrap(err)
	}
	defer unlock()

	shipment, err := s.repo.FindByID(ctx, shipmentID)
	if err != nil {
		log.WithError(err).Error("Failed to get shipment")
		return nil, fmt.Errorf("failed to get shipment: %w", err)
	}
	if shipment == nil {
		return nil, apperrors.ErrNotFoundWithID("shipment", shipmentID)
	}

	from := shipment.Status
	event, err := shipment.Advance(status, description, location, s.clock.Now())
	if err != nil {
		s.metrics.RecordTransition(string(from), string(status), false)
		log.WithError(err).Warn("Shipment transition rejected", "from", from, "to", status)
		return nil, MapDomainError(err)
	}

	if err := s.repo.Append(ctx, shipment, event); err != nil {
		span.RecordError(err)
		s.metrics.RecordTransition(string(from), string(status), false)
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			s.metrics.RecordConflict()
			log.Warn("Shipment modified concurrently", "from", from, "to", status)
			return nil, MapDomainError(err)
		}
		log.WithError(err).Error("Failed to save shipment transition")
		return nil, MapDomainError(err)
	}

	s.metrics.RecordTransition(string(from), string(status), true)
	s.logger.Performance(ctx, "shipment.advance", s.clock.Since(start), true, map[string]any{
		"shipmentId": shipmentID,
		"to":         string(status),
	})
	s.logger.Audit(ctx, "advance", "shipment", shipmentID, map[string]any{
		"from":     string(from),
		"to":       string(status),
		"eventId":  event.EventID,
		"seq":      event.Seq,
		"location": location,
	})
	return ToShipmentEventDTO(event), nil
}

// GetShipment retrieves a shipment by ID
func (s *ShipmentService) GetShipment(ctx context.Context, query GetShipmentQuery) (*ShipmentDTO, error) {
	shipment, err := s.repo.FindByID(ctx, query.ShipmentID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get shipment", "shipmentId", query.ShipmentID)
		return nil, fmt.Errorf("failed to get shipment: %w", err)
	}
	if shipment == nil {
		return nil, apperrors.ErrNotFoundWithID("shipment", query.ShipmentID)
	}
	return ToShipmentDTO(shipment), nil
}

// GetByOrder retrieves every shipment of an order. An order without shipments
// yields an empty list.
func (s *ShipmentService) GetByOrder(ctx context.Context, query GetByOrderQuery) ([]ShipmentDTO, error) {
	shipments, err := s.repo.FindByOrderID(ctx, query.OrderID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get shipments by order", "orderId", query.OrderID)
		return nil, fmt.Errorf("failed to get shipments by order: %w", err)
	}
	return ToShipmentDTOs(shipments), nil
}

// GetByTracking retrieves a shipment by tracking number
func (s *ShipmentService) GetByTracking(ctx context.Context, query GetByTrackingQuery) (*ShipmentDTO, error) {
	shipment, err := s.repo.FindByTrackingNumber(ctx, query.TrackingNumber)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get shipment by tracking", "trackingNumber", query.TrackingNumber)
		return nil, fmt.Errorf("failed to get shipment by tracking: %w", err)
	}
	if shipment == nil {
		return nil, apperrors.ErrNotFoundWithID("shipment", query.TrackingNumber)
	}
	return ToShipmentDTO(shipment), nil
}

// ListEvents returns a shipment's history in sequence order.
func (s *ShipmentService) ListEvents(ctx context.Context, query GetShipmentQuery) ([]ShipmentEventDTO, error) {
	shipment, err := s.repo.FindByID(ctx, query.ShipmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get shipment: %w", err)
	}
	if shipment == nil {
		return nil, apperrors.ErrNotFoundWithID("shipment", query.ShipmentID)
	}

	events, err := s.repo.ListEvents(ctx, query.ShipmentID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list shipment events", "shipmentId", query.ShipmentID)
		return nil, fmt.Errorf("failed to list shipment events: %w", err)
	}

	dtos := make([]ShipmentEventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, *ToShipmentEventDTO(e))
	}
	return dtos, nil
}
