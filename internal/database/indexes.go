package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateIndexes creates all necessary indexes for the collections.
// snapshotRetention bounds how long immutable snapshots are kept.
func CreateIndexes(ctx context.Context, db *MongoDB, snapshotRetention time.Duration) error {
	slog.Info("Creating MongoDB indexes")

	sets := []struct {
		collection string
		indexes    []mongo.IndexModel
	}{
		{CollectionShops, shopIndexes()},
		{CollectionSnapshots, snapshotIndexes(snapshotRetention)},
		{CollectionStatuses, statusIndexes()},
		{CollectionNotifications, notificationIndexes()},
		{CollectionLocks, lockIndexes()},
	}

	for _, set := range sets {
		if err := createIndexes(ctx, db, set.collection, set.indexes); err != nil {
			return err
		}
	}

	slog.Info("Successfully created all MongoDB indexes")
	return nil
}

func createIndexes(ctx context.Context, db *MongoDB, collection string, indexes []mongo.IndexModel) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := db.GetCollection(collection).Indexes().CreateMany(ctxTimeout, indexes); err != nil {
		return fmt.Errorf("failed to create %s indexes: %w", collection, err)
	}

	slog.Info("Created indexes", "collection", collection, "count", len(indexes))
	return nil
}

func shopIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "url", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_url_unique"),
		},
		{
			Keys:    bson.D{{Key: "last_scraped_at", Value: 1}},
			Options: options.Index().SetName("idx_last_scraped_at"),
		},
		{
			Keys:    bson.D{{Key: "owner_user_id", Value: 1}},
			Options: options.Index().SetName("idx_owner_user_id"),
		},
	}
}

func snapshotIndexes(retention time.Duration) []mongo.IndexModel {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "shop_id", Value: 1},
				{Key: "captured_at", Value: -1},
			},
			Options: options.Index().SetName("idx_shop_id_captured_at"),
		},
	}
	if retention > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "captured_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention.Seconds())).SetName("idx_captured_at_ttl"),
		})
	}
	return indexes
}

func statusIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "shop_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_shop_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "level", Value: 1}},
			Options: options.Index().SetName("idx_level"),
		},
	}
}

func notificationIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_user_id_created_at"),
		},
		{
			Keys:    bson.D{{Key: "shop_id", Value: 1}},
			Options: options.Index().SetName("idx_shop_id"),
		},
	}
}

func lockIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_key_unique"),
		},
		{
			// Backstop only; the lease store also deletes expired rows itself
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_expires_at_ttl"),
		},
		{
			Keys:    bson.D{{Key: "locked_by", Value: 1}},
			Options: options.Index().SetName("idx_locked_by"),
		},
	}
}
