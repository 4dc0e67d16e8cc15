package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LockRepository is the MongoDB lease store
type LockRepository struct {
	collection *mongo.Collection
}

// NewLockRepository creates a new lock repository
func NewLockRepository(db *MongoDB) *LockRepository {
	return &LockRepository{
		collection: db.GetCollection(CollectionLocks),
	}
}

// Upsert takes or renews the lock on key. The filter only matches an expired
// row or a row already owned by owner; when a live row of another owner
// exists the upsert collides with the unique key index and the call reports
// false.
func (r *LockRepository) Upsert(ctx context.Context, key, owner string, now, expiresAt time.Time) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"key": key,
		"$or": []bson.M{
			{"expires_at": bson.M{"$lte": now}},
			{"locked_by": owner},
		},
	}
	update := lockUpsertUpdate(key, owner, now, expiresAt)
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var result model.Lock
	err := r.collection.FindOneAndUpdate(ctxTimeout, filter, update, opts).Decode(&result)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) || errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("failed to upsert lock: %w", err)
	}

	return result.LockedBy == owner, nil
}

// lockUpsertUpdate renews expires_at on every call. created_at is kept while
// owner renews its own lease and reset when the row is inserted or taken over
// from an expired owner.
func lockUpsertUpdate(key, owner string, now, expiresAt time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "created_at", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$locked_by", owner}}},
				"$created_at",
				now,
			}}}},
			{Key: "key", Value: key},
			{Key: "locked_by", Value: owner},
			{Key: "expires_at", Value: expiresAt},
		}}},
	}
}

// Get returns the lock row for key, or nil when none exists
func (r *LockRepository) Get(ctx context.Context, key string) (*model.Lock, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var lock model.Lock
	err := r.collection.FindOne(ctxTimeout, bson.M{"key": key}).Decode(&lock)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}
	return &lock, nil
}

// Delete removes the lock row for key
func (r *LockRepository) Delete(ctx context.Context, key string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.collection.DeleteOne(ctxTimeout, bson.M{"key": key}); err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}
	return nil
}

// DeleteExpired removes every lock that expired before now
func (r *LockRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.collection.DeleteMany(ctxTimeout, bson.M{"expires_at": bson.M{"$lt": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired locks: %w", err)
	}
	return result.DeletedCount, nil
}

// DeleteOwnedBy removes every lock held by owner
func (r *LockRepository) DeleteOwnedBy(ctx context.Context, owner string) (int64, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.collection.DeleteMany(ctxTimeout, bson.M{"locked_by": owner})
	if err != nil {
		return 0, fmt.Errorf("failed to delete owned locks: %w", err)
	}
	return result.DeletedCount, nil
}
