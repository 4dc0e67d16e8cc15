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

// StatusRepository keeps one current status document per shop
type StatusRepository struct {
	collection *mongo.Collection
}

// NewStatusRepository creates a new status repository
func NewStatusRepository(db *MongoDB) *StatusRepository {
	return &StatusRepository{
		collection: db.GetCollection(CollectionStatuses),
	}
}

// Get returns the current status of a shop, or nil when it was never evaluated
func (r *StatusRepository) Get(ctx context.Context, shopID string) (*model.Status, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var status model.Status
	err := r.collection.FindOne(ctxTimeout, bson.M{"shop_id": shopID}).Decode(&status)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return &status, nil
}

// Put replaces the current status of the shop
func (r *StatusRepository) Put(ctx context.Context, status *model.Status) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctxTimeout, bson.M{"shop_id": status.ShopID}, status, opts); err != nil {
		return fmt.Errorf("failed to put status: %w", err)
	}
	return nil
}

// Delete removes the status of a shop
func (r *StatusRepository) Delete(ctx context.Context, shopID string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.collection.DeleteOne(ctxTimeout, bson.M{"shop_id": shopID}); err != nil {
		return fmt.Errorf("failed to delete status: %w", err)
	}
	return nil
}
