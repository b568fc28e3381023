package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/shipping-service/pkg/idempotency"
)

const collectionName = "idempotency_keys"

// KeyRepository implements idempotency.Repository using MongoDB. Records are
// keyed by service and key, and a TTL index removes them after ExpiresAt.
type KeyRepository struct {
	collection *mongo.Collection
}

var _ idempotency.Repository = (*KeyRepository)(nil)

// NewKeyRepository creates a new MongoDB-backed key repository
func NewKeyRepository(db *mongo.Database) *KeyRepository {
	return &KeyRepository{collection: db.Collection(collectionName)}
}

// AcquireLock upserts the record when it is free. A duplicate key error means
// the record exists and is either completed or locked by a live request.
func (r *KeyRepository) AcquireLock(ctx context.Context, record *idempotency.Record, staleBefore time.Time) (*idempotency.Record, bool, error) {
	filter := bson.M{
		"_id":         record.ID,
		"completedAt": bson.M{"$exists": false},
		"$or": bson.A{
			bson.M{"lockedAt": bson.M{"$exists": false}},
			bson.M{"lockedAt": bson.M{"$lte": staleBefore}},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"lockToken": record.LockToken,
			"lockedAt":  record.LockedAt,
		},
		"$setOnInsert": bson.M{
			"key":                record.Key,
			"service":            record.Service,
			"requestPath":        record.RequestPath,
			"requestMethod":      record.RequestMethod,
			"requestFingerprint": record.RequestFingerprint,
			"createdAt":          record.CreatedAt,
			"expiresAt":          record.ExpiresAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var acquired idempotency.Record
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&acquired)
	if err == nil {
		return &acquired, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, false, fmt.Errorf("failed to acquire idempotency lock: %w", err)
	}

	var existing idempotency.Record
	if err := r.collection.FindOne(ctx, bson.M{"_id": record.ID}).Decode(&existing); err != nil {
		return nil, false, fmt.Errorf("failed to load idempotency record: %w", err)
	}
	return &existing, false, nil
}

// StoreResponse completes the record and clears its lock.
func (r *KeyRepository) StoreResponse(ctx context.Context, id, lockToken string, code int, body []byte, headers map[string]string, completedAt time.Time) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "lockToken": lockToken},
		bson.M{
			"$set": bson.M{
				"responseCode":    code,
				"responseBody":    body,
				"responseHeaders": headers,
				"completedAt":     completedAt,
			},
			"$unset": bson.M{"lockedAt": "", "lockToken": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to store idempotent response: %w", err)
	}
	if res.MatchedCount == 0 {
		return idempotency.ErrLockLost
	}
	return nil
}

// ReleaseLock removes a record whose request failed, so the key can be reused.
func (r *KeyRepository) ReleaseLock(ctx context.Context, id, lockToken string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "lockToken": lockToken})
	if err != nil {
		return fmt.Errorf("failed to release idempotency lock: %w", err)
	}
	if res.DeletedCount == 0 {
		return idempotency.ErrLockLost
	}
	return nil
}

// EnsureIndexes creates the TTL index on expiresAt.
func (r *KeyRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_ttl"),
		},
		{
			Keys:    bson.D{{Key: "lockedAt", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("idx_locked"),
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create idempotency indexes: %w", err)
	}
	return nil
}
