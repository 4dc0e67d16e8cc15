// Package lease implements a keyed, TTL-based advisory lock shared by all
// scheduler workers through a durable store.
package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
)

// Store is the durable backend of the lease lock. Upsert must be a
// conditional write: it succeeds only when no live lock exists for key or
// the live lock is already owned by owner.
type Store interface {
	Upsert(ctx context.Context, key, owner string, now, expiresAt time.Time) (bool, error)
	Get(ctx context.Context, key string) (*model.Lock, error)
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteOwnedBy(ctx context.Context, owner string) (int64, error)
}

// Lock is a non-blocking try-lock bound to one worker identity
type Lock struct {
	store Store
	owner string
	now   func() time.Time
}

// Option customizes a Lock
type Option func(*Lock)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Lock) {
		l.now = now
	}
}

// New creates a lease lock for the given worker
func New(store Store, owner string, opts ...Option) *Lock {
	l := &Lock{
		store: store,
		owner: owner,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Owner returns the worker identity of this lock
func (l *Lock) Owner() string {
	return l.owner
}

// Acquire takes the lease on key for ttl. It returns false without waiting
// when another worker holds a live lease. Acquiring a key this worker already
// holds renews it.
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("lease ttl must be positive, got %s", ttl)
	}
	now := l.now()
	acquired, err := l.store.Upsert(ctx, key, l.owner, now, now.Add(ttl))
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if acquired {
		slog.Debug("Acquired lease",
			"key", key,
			"owner", l.owner,
			"expires_at", now.Add(ttl),
		)
	}
	return acquired, nil
}

// IsHeld reports whether any worker holds a live lease on key. An expired
// lease found here is deleted.
func (l *Lock) IsHeld(ctx context.Context, key string) (bool, error) {
	lock, err := l.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read lease %s: %w", key, err)
	}
	if lock == nil {
		return false, nil
	}
	if lock.Live(l.now()) {
		return true, nil
	}

	if err := l.store.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("failed to delete expired lease %s: %w", key, err)
	}
	slog.Debug("Deleted expired lease", "key", key, "locked_by", lock.LockedBy)
	return false, nil
}

// Release deletes the lease on key regardless of its holder
func (l *Lock) Release(ctx context.Context, key string) error {
	if err := l.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}
	return nil
}

// SweepExpired deletes every lease whose expiry has passed
func (l *Lock) SweepExpired(ctx context.Context) (int64, error) {
	n, err := l.store.DeleteExpired(ctx, l.now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired leases: %w", err)
	}
	return n, nil
}

// ReleaseOwned deletes every lease held by this worker
func (l *Lock) ReleaseOwned(ctx context.Context) (int64, error) {
	n, err := l.store.DeleteOwnedBy(ctx, l.owner)
	if err != nil {
		return 0, fmt.Errorf("failed to release leases of %s: %w", l.owner, err)
	}
	return n, nil
}
