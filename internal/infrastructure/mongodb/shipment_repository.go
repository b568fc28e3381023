package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/shipping-service/internal/domain"
	"github.com/wms-platform/shipping-service/pkg/cloudevents"
	"github.com/wms-platform/shipping-service/pkg/kafka"
	"github.com/wms-platform/shipping-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/shipping-service/pkg/outbox/mongodb"
)

const (
	shipmentsCollection = "shipments"
	eventsCollection    = "shipment_events"
	aggregateType       = "Shipment"
)

// ShipmentRepository stores shipments and their event history in MongoDB.
// Every write runs in a transaction that also stores the outbox events, so a
// shipment change and its CloudEvent are committed together.
type ShipmentRepository struct {
	db           *mongo.Database
	shipments    *mongo.Collection
	events       *mongo.Collection
	outboxRepo   *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
}

var _ domain.ShipmentRepository = (*ShipmentRepository)(nil)

// NewShipmentRepository creates the repository and its indexes. The unique
// indexes back tracking number uniqueness and event ordering, so a failure to
// create them is returned.
func NewShipmentRepository(ctx context.Context, db *mongo.Database, eventFactory *cloudevents.EventFactory) (*ShipmentRepository, error) {
	repo := &ShipmentRepository{
		db:           db,
		shipments:    db.Collection(shipmentsCollection),
		events:       db.Collection(eventsCollection),
		outboxRepo:   outboxMongo.NewOutboxRepository(db),
		eventFactory: eventFactory,
	}
	if err := repo.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// GetOutboxRepository returns the outbox the repository writes to, for the
// outbox publisher.
func (r *ShipmentRepository) GetOutboxRepository() *outboxMongo.OutboxRepository {
	return r.outboxRepo
}

func (r *ShipmentRepository) ensureIndexes(ctx context.Context) error {
	// only shipments created with a request key take part in uniqueness
	requestKeyIndex := options.Index().
		SetUnique(true).
		SetName("requestKey_unique").
		SetPartialFilterExpression(bson.M{"requestKey": bson.M{"$exists": true}})

	shipmentIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "shipmentId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "trackingNumber", Value: 1}}, Options: options.Index().SetUnique(true).SetName("trackingNumber_unique")},
		{Keys: bson.D{{Key: "requestKey", Value: 1}}, Options: requestKeyIndex},
		{Keys: bson.D{{Key: "orderId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
	if _, err := r.shipments.Indexes().CreateMany(ctx, shipmentIndexes); err != nil {
		return fmt.Errorf("failed to create shipment indexes: %w", err)
	}

	eventIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "shipmentId", Value: 1}, {Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "eventId", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := r.events.Indexes().CreateMany(ctx, eventIndexes); err != nil {
		return fmt.Errorf("failed to create shipment event indexes: %w", err)
	}

	return r.outboxRepo.EnsureIndexes(ctx)
}

// Create inserts a new shipment together with its initial event.
func (r *ShipmentRepository) Create(ctx context.Context, s *domain.Shipment, initial *domain.ShipmentEvent) error {
	err := r.withTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := r.shipments.InsertOne(sessCtx, toShipmentDocument(s)); err != nil {
			if isDuplicateOn(err, "trackingNumber") {
				return domain.ErrDuplicateTrackingNumber
			}
			if isDuplicateOn(err, "requestKey") {
				return domain.ErrDuplicateRequestKey
			}
			return fmt.Errorf("failed to insert shipment: %w", err)
		}
		if _, err := r.events.InsertOne(sessCtx, toEventDocument(initial)); err != nil {
			return fmt.Errorf("failed to insert shipment event: %w", err)
		}
		return r.saveOutbox(sessCtx, s)
	})
	if err != nil {
		return err
	}

	s.ClearDomainEvents()
	return nil
}

// Append stores a transition. The update only matches when the stored version
// is the one the caller read, otherwise ErrConcurrencyConflict is returned and
// nothing is written.
func (r *ShipmentRepository) Append(ctx context.Context, s *domain.Shipment, ev *domain.ShipmentEvent) error {
	err := r.withTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		filter := bson.M{"shipmentId": s.ShipmentID, "version": s.Version - 1}
		update := bson.M{"$set": bson.M{
			"status":       string(s.Status),
			"version":      s.Version,
			"lastEventId":  s.LastEventID,
			"lastEventSeq": s.LastEventSeq,
			"updatedAt":    s.UpdatedAt,
		}}

		result, err := r.shipments.UpdateOne(sessCtx, filter, update)
		if err != nil {
			return fmt.Errorf("failed to update shipment: %w", err)
		}
		if result.MatchedCount == 0 {
			return domain.ErrConcurrencyConflict
		}

		if _, err := r.events.InsertOne(sessCtx, toEventDocument(ev)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return domain.ErrConcurrencyConflict
			}
			return fmt.Errorf("failed to insert shipment event: %w", err)
		}
		return r.saveOutbox(sessCtx, s)
	})
	if err != nil {
		return err
	}

	s.ClearDomainEvents()
	return nil
}

func (r *ShipmentRepository) withTransaction(ctx context.Context, fn func(mongo.SessionContext) error) error {
	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	if err == nil {
		return nil
	}

	// domain errors pass through unwrapped so callers can map them
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return fmt.Errorf("transaction failed: %w", err)
}

func (r *ShipmentRepository) saveOutbox(ctx context.Context, s *domain.Shipment) error {
	domainEvents := s.GetDomainEvents()
	if len(domainEvents) == 0 {
		return nil
	}

	outboxEvents := make([]*outbox.OutboxEvent, 0, len(domainEvents))
	for _, event := range domainEvents {
		cloudEvent := r.eventFactory.CreateEvent(ctx, event.EventType(), "shipment/"+s.ShipmentID, event)
		cloudEvent.OrderID = s.OrderID

		outboxEvent, err := outbox.NewOutboxEventFromCloudEvent(s.ShipmentID, aggregateType, kafka.Topics.ShippingEvents, cloudEvent)
		if err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
		outboxEvents = append(outboxEvents, outboxEvent)
	}

	if err := r.outboxRepo.SaveAll(ctx, outboxEvents); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

func (r *ShipmentRepository) FindByID(ctx context.Context, shipmentID string) (*domain.Shipment, error) {
	return r.findOne(ctx, bson.M{"shipmentId": shipmentID})
}

func (r *ShipmentRepository) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Shipment, error) {
	return r.findOne(ctx, bson.M{"trackingNumber": trackingNumber})
}

// FindByRequestKey returns the shipment created by requestKey.
func (r *ShipmentRepository) FindByRequestKey(ctx context.Context, requestKey string) (*domain.Shipment, error) {
	if requestKey == "" {
		return nil, nil
	}
	return r.findOne(ctx, bson.M{"requestKey": requestKey})
}

func (r *ShipmentRepository) findOne(ctx context.Context, filter bson.M) (*domain.Shipment, error) {
	var doc shipmentDocument
	err := r.shipments.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find shipment: %w", err)
	}
	return doc.toDomain(), nil
}

// FindByOrderID returns every shipment of an order, oldest first. An order
// may be fulfilled by several shipments.
func (r *ShipmentRepository) FindByOrderID(ctx context.Context, orderID string) ([]*domain.Shipment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "shipmentId", Value: 1}})
	cursor, err := r.shipments.Find(ctx, bson.M{"orderId": orderID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find shipments: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []shipmentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode shipments: %w", err)
	}

	shipments := make([]*domain.Shipment, 0, len(docs))
	for i := range docs {
		shipments = append(shipments, docs[i].toDomain())
	}
	return shipments, nil
}

func (r *ShipmentRepository) ListEvents(ctx context.Context, shipmentID string) ([]*domain.ShipmentEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cursor, err := r.events.Find(ctx, bson.M{"shipmentId": shipmentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find shipment events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []eventDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode shipment events: %w", err)
	}

	events := make([]*domain.ShipmentEvent, 0, len(docs))
	for i := range docs {
		events = append(events, docs[i].toDomain())
	}
	return events, nil
}

// isDuplicateOn reports whether err is a duplicate key error on the named
// index field.
func isDuplicateOn(err error, field string) bool {
	if !mongo.IsDuplicateKeyError(err) {
		return false
	}
	return strings.Contains(err.Error(), field)
}
