package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SnapshotRepository handles immutable shop snapshots
type SnapshotRepository struct {
	collection *mongo.Collection
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *MongoDB) *SnapshotRepository {
	return &SnapshotRepository{
		collection: db.GetCollection(CollectionSnapshots),
	}
}

// Insert writes the whole snapshot as one document
func (r *SnapshotRepository) Insert(ctx context.Context, snapshot *model.Snapshot) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if snapshot.ID.IsZero() {
		snapshot.ID = primitive.NewObjectID()
	}

	if _, err := r.collection.InsertOne(ctxTimeout, snapshot); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// Latest retrieves the most recent snapshot of a shop
func (r *SnapshotRepository) Latest(ctx context.Context, shopID string) (*model.Snapshot, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "captured_at", Value: -1}})

	var snapshot model.Snapshot
	err := r.collection.FindOne(ctxTimeout, bson.M{"shop_id": shopID}, opts).Decode(&snapshot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("snapshot %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &snapshot, nil
}

// DeleteByShop removes every snapshot of a shop
func (r *SnapshotRepository) DeleteByShop(ctx context.Context, shopID string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := r.collection.DeleteMany(ctxTimeout, bson.M{"shop_id": shopID}); err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return nil
}
