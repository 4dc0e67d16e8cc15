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

// ShopRepository handles shop documents
type ShopRepository struct {
	collection *mongo.Collection
}

// NewShopRepository creates a new shop repository
func NewShopRepository(db *MongoDB) *ShopRepository {
	return &ShopRepository{
		collection: db.GetCollection(CollectionShops),
	}
}

// Create inserts a new shop
func (r *ShopRepository) Create(ctx context.Context, shop *model.Shop) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if shop.ID.IsZero() {
		shop.ID = primitive.NewObjectID()
	}

	_, err := r.collection.InsertOne(ctxTimeout, shop)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("shop with url '%s' %w", shop.URL, ErrDuplicate)
		}
		return fmt.Errorf("failed to create shop: %w", err)
	}

	return nil
}

// UpsertByURL creates the shop or updates its definition, keeping scrape state
func (r *ShopRepository) UpsertByURL(ctx context.Context, shop *model.Shop) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"name":                shop.Name,
			"credentials":         shop.Credentials,
			"owner_user_id":       shop.OwnerUserID,
			"metadata.tags":       shop.Metadata.Tags,
			"metadata.updated_at": time.Now().UTC(),
		},
		"$setOnInsert": bson.M{
			"metadata.created_at": shop.Metadata.CreatedAt,
		},
	}

	_, err := r.collection.UpdateOne(ctxTimeout, bson.M{"url": shop.URL}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert shop: %w", err)
	}
	return nil
}

// GetByID retrieves a shop by ID
func (r *ShopRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*model.Shop, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var shop model.Shop
	err := r.collection.FindOne(ctxTimeout, bson.M{"_id": id}).Decode(&shop)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("shop %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}

	return &shop, nil
}

// List retrieves shops with filtering and pagination
func (r *ShopRepository) List(ctx context.Context, filter bson.M, page, limit int) ([]model.Shop, int64, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	total, err := r.collection.CountDocuments(ctxTimeout, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count shops: %w", err)
	}

	skip := (page - 1) * limit
	opts := options.Find().
		SetSkip(int64(skip)).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "metadata.created_at", Value: -1}})

	cursor, err := r.collection.Find(ctxTimeout, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list shops: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var shops []model.Shop
	if err := cursor.All(ctxTimeout, &shops); err != nil {
		return nil, 0, fmt.Errorf("failed to decode shops: %w", err)
	}

	return shops, total, nil
}

// Delete deletes a shop
func (r *ShopRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.collection.DeleteOne(ctxTimeout, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete shop: %w", err)
	}

	if result.DeletedCount == 0 {
		return fmt.Errorf("shop %w", ErrNotFound)
	}

	return nil
}

// FindDue returns shops never scraped or last scraped before now-interval,
// oldest first. Missing last_scraped_at sorts before any timestamp.
func (r *ShopRepository) FindDue(ctx context.Context, now time.Time, interval time.Duration, limit int) ([]model.Shop, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"$or": []bson.M{
			{"last_scraped_at": bson.M{"$exists": false}},
			{"last_scraped_at": nil},
			{"last_scraped_at": bson.M{"$lt": now.Add(-interval)}},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "last_scraped_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctxTimeout, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find due shops: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var shops []model.Shop
	if err := cursor.All(ctxTimeout, &shops); err != nil {
		return nil, fmt.Errorf("failed to decode due shops: %w", err)
	}

	return shops, nil
}

// MarkScraped sets last_scraped_at. A nil at clears it so the shop becomes
// due again immediately.
func (r *ShopRepository) MarkScraped(ctx context.Context, shopID string, at *time.Time) error {
	id, err := primitive.ObjectIDFromHex(shopID)
	if err != nil {
		return fmt.Errorf("invalid shop ID: %w", err)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{"last_scraped_at": at}}
	if at == nil {
		update = bson.M{"$unset": bson.M{"last_scraped_at": ""}}
	}

	result, err := r.collection.UpdateOne(ctxTimeout, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark shop scraped: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("shop %w", ErrNotFound)
	}
	return nil
}

// UpdateScrapeResult records the outcome of the last pipeline run
func (r *ShopRepository) UpdateScrapeResult(ctx context.Context, shopID string, level model.Level, scrapeErr string) error {
	id, err := primitive.ObjectIDFromHex(shopID)
	if err != nil {
		return fmt.Errorf("invalid shop ID: %w", err)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{"last_scrape_error": scrapeErr}
	if level != "" {
		set["status_level"] = level
	}

	if _, err := r.collection.UpdateOne(ctxTimeout, bson.M{"_id": id}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("failed to update scrape result: %w", err)
	}
	return nil
}
