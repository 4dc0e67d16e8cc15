package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
)

// NotificationStore persists user-visible notifications
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
}

// StoreNotifier turns transitions into notification documents for the shop
// owner
type StoreNotifier struct {
	store NotificationStore
	now   func() time.Time
}

// NewStoreNotifier creates a notifier writing to store
func NewStoreNotifier(store NotificationStore) *StoreNotifier {
	return &StoreNotifier{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Notify implements Notifier
func (n *StoreNotifier) Notify(ctx context.Context, shop *model.Shop, transitions []model.Transition) error {
	for _, t := range transitions {
		notification := &model.Notification{
			UserID:    shop.OwnerUserID,
			ShopID:    shop.Key(),
			Code:      t.Code,
			Level:     t.ToLevel,
			Title:     title(shop, t),
			Message:   t.Finding.Message,
			Link:      t.Finding.Link,
			CreatedAt: n.now(),
		}
		if err := n.store.Create(ctx, notification); err != nil {
			return fmt.Errorf("failed to store notification for %s: %w", t.Code, err)
		}
	}
	return nil
}
