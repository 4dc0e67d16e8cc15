package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dandantas/shopwatch/internal/database"
	"github.com/dandantas/shopwatch/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrInvalidID is returned when an identifier is not a valid ObjectID
	ErrInvalidID = errors.New("invalid ID format")
	// ErrValidation wraps shop definition errors
	ErrValidation = errors.New("validation failed")
)

// ShopService handles shop management and read access to shop state
type ShopService struct {
	shops         ShopRepository
	snapshots     SnapshotStore
	statuses      StatusStore
	notifications NotificationRepository
}

// NewShopService creates a new shop service
func NewShopService(shops ShopRepository, snapshots SnapshotStore, statuses StatusStore, notifications NotificationRepository) *ShopService {
	return &ShopService{
		shops:         shops,
		snapshots:     snapshots,
		statuses:      statuses,
		notifications: notifications,
	}
}

// Create registers a new shop
func (s *ShopService) Create(ctx context.Context, shop *model.Shop) error {
	if err := shop.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s.shops.Create(ctx, shop)
}

// GetByID retrieves a shop
func (s *ShopService) GetByID(ctx context.Context, id string) (*model.Shop, error) {
	objID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.shops.GetByID(ctx, objID)
}

// List retrieves shops, optionally filtered by owner, level and tags
func (s *ShopService) List(ctx context.Context, ownerUserID string, level model.Level, tags []string, page, limit int) ([]model.ShopListItem, int64, error) {
	filter := bson.M{}
	if ownerUserID != "" {
		filter["owner_user_id"] = ownerUserID
	}
	if level != "" {
		filter["status_level"] = level
	}
	if len(tags) > 0 {
		filter["metadata.tags"] = bson.M{"$in": tags}
	}

	shops, total, err := s.shops.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, err
	}

	items := make([]model.ShopListItem, len(shops))
	for i := range shops {
		items[i] = shops[i].ToListItem()
	}
	return items, total, nil
}

// Delete removes a shop with its status and snapshots
func (s *ShopService) Delete(ctx context.Context, id string) error {
	objID, err := parseID(id)
	if err != nil {
		return err
	}
	if err := s.shops.Delete(ctx, objID); err != nil {
		return err
	}

	shopID := objID.Hex()
	if err := s.statuses.Delete(ctx, shopID); err != nil {
		slog.Warn("Failed to delete shop status", "shop_id", shopID, "error", err)
	}
	if err := s.snapshots.DeleteByShop(ctx, shopID); err != nil {
		slog.Warn("Failed to delete shop snapshots", "shop_id", shopID, "error", err)
	}
	return nil
}

// GetStatus returns the current status of a shop. A shop that was never
// evaluated has no status and yields ErrNotFound.
func (s *ShopService) GetStatus(ctx context.Context, id string) (*model.Status, error) {
	shop, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	status, err := s.statuses.Get(ctx, shop.Key())
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, fmt.Errorf("status %w", database.ErrNotFound)
	}
	return status, nil
}

// LatestSnapshot returns the most recent snapshot of a shop
func (s *ShopService) LatestSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	shop, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.snapshots.Latest(ctx, shop.Key())
}

// Seed upserts shop definitions by URL, keeping their scrape state
func (s *ShopService) Seed(ctx context.Context, shops []model.Shop) (int, error) {
	seeded := 0
	var errs []error
	for i := range shops {
		shop := &shops[i]
		if err := shop.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("shop %q: %w", shop.Name, err))
			continue
		}
		if err := s.shops.UpsertByURL(ctx, shop); err != nil {
			errs = append(errs, fmt.Errorf("shop %q: %w", shop.Name, err))
			continue
		}
		seeded++
	}
	return seeded, errors.Join(errs...)
}

// ListNotifications returns the notifications of a user, newest first
func (s *ShopService) ListNotifications(ctx context.Context, userID string, unreadOnly bool, page, limit int) ([]model.Notification, int64, error) {
	return s.notifications.ListByUser(ctx, userID, unreadOnly, page, limit)
}

// MarkNotificationRead flags a notification as read
func (s *ShopService) MarkNotificationRead(ctx context.Context, id string) error {
	objID, err := parseID(id)
	if err != nil {
		return err
	}
	return s.notifications.MarkRead(ctx, objID)
}

func parseID(id string) (primitive.ObjectID, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	return objID, nil
}
