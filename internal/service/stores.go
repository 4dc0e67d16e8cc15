package service

import (
	"context"
	"time"

	"github.com/dandantas/shopwatch/internal/check"
	"github.com/dandantas/shopwatch/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ShopStore is the part of the shop repository the monitor needs
type ShopStore interface {
	FindDue(ctx context.Context, now time.Time, interval time.Duration, limit int) ([]model.Shop, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*model.Shop, error)
	MarkScraped(ctx context.Context, shopID string, at *time.Time) error
	UpdateScrapeResult(ctx context.Context, shopID string, level model.Level, scrapeErr string) error
}

// ShopRepository manages shop definitions
type ShopRepository interface {
	ShopStore
	Create(ctx context.Context, shop *model.Shop) error
	UpsertByURL(ctx context.Context, shop *model.Shop) error
	List(ctx context.Context, filter bson.M, page, limit int) ([]model.Shop, int64, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// SnapshotStore persists immutable snapshots
type SnapshotStore interface {
	Insert(ctx context.Context, snapshot *model.Snapshot) error
	Latest(ctx context.Context, shopID string) (*model.Snapshot, error)
	DeleteByShop(ctx context.Context, shopID string) error
}

// StatusStore holds the current status per shop
type StatusStore interface {
	Get(ctx context.Context, shopID string) (*model.Status, error)
	Put(ctx context.Context, status *model.Status) error
	Delete(ctx context.Context, shopID string) error
}

// NotificationRepository lists user notifications
type NotificationRepository interface {
	ListByUser(ctx context.Context, userID string, unreadOnly bool, page, limit int) ([]model.Notification, int64, error)
	MarkRead(ctx context.Context, id primitive.ObjectID) error
}

// Locker is the lease used to serialize work on a shop across workers
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Fetcher produces a snapshot from the remote shop
type Fetcher interface {
	Scrape(ctx context.Context, shop *model.Shop) (*model.Snapshot, error)
}

// Evaluator runs the registered checks for a snapshot
type Evaluator interface {
	Run(ctx context.Context, cc *check.Context) []model.Finding
}
