package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dandantas/shopwatch/internal/check"
	"github.com/dandantas/shopwatch/internal/database"
	"github.com/dandantas/shopwatch/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeShops struct {
	mu         sync.Mutex
	shops      map[string]*model.Shop
	markCalls  []*time.Time
	markErr    error
	upserted   []string
	findDueErr error
}

func newFakeShops(shops ...model.Shop) *fakeShops {
	f := &fakeShops{shops: make(map[string]*model.Shop)}
	for i := range shops {
		s := shops[i]
		f.shops[s.Key()] = &s
	}
	return f
}

func (f *fakeShops) FindDue(_ context.Context, now time.Time, interval time.Duration, limit int) ([]model.Shop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findDueErr != nil {
		return nil, f.findDueErr
	}
	var due []model.Shop
	for _, s := range f.shops {
		if s.LastScrapedAt == nil || s.LastScrapedAt.Before(now.Add(-interval)) {
			due = append(due, *s)
		}
		if limit > 0 && len(due) == limit {
			break
		}
	}
	return due, nil
}

func (f *fakeShops) MarkScraped(_ context.Context, shopID string, at *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls = append(f.markCalls, at)
	if f.markErr != nil {
		return f.markErr
	}
	if s, ok := f.shops[shopID]; ok {
		s.LastScrapedAt = at
	}
	return nil
}

func (f *fakeShops) UpdateScrapeResult(_ context.Context, shopID string, level model.Level, scrapeErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.shops[shopID]; ok {
		if level != "" {
			s.StatusLevel = level
		}
		s.LastScrapeError = scrapeErr
	}
	return nil
}

func (f *fakeShops) Create(_ context.Context, shop *model.Shop) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.shops {
		if s.URL == shop.URL {
			return database.ErrDuplicate
		}
	}
	if shop.ID.IsZero() {
		shop.ID = primitive.NewObjectID()
	}
	s := *shop
	f.shops[s.Key()] = &s
	return nil
}

func (f *fakeShops) UpsertByURL(_ context.Context, shop *model.Shop) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, shop.URL)
	return nil
}

func (f *fakeShops) GetByID(_ context.Context, id primitive.ObjectID) (*model.Shop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shops[id.Hex()]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeShops) List(_ context.Context, _ bson.M, _, _ int) ([]model.Shop, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Shop
	for _, s := range f.shops {
		out = append(out, *s)
	}
	return out, int64(len(out)), nil
}

func (f *fakeShops) Delete(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.shops[id.Hex()]; !ok {
		return database.ErrNotFound
	}
	delete(f.shops, id.Hex())
	return nil
}

func (f *fakeShops) get(id string) model.Shop {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.shops[id]
}

type fakeSnapshots struct {
	mu        sync.Mutex
	inserted  []*model.Snapshot
	insertErr error
	deleted   []string
}

func (f *fakeSnapshots) Insert(_ context.Context, s *model.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, s)
	return nil
}

func (f *fakeSnapshots) Latest(_ context.Context, shopID string) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.inserted) - 1; i >= 0; i-- {
		if f.inserted[i].ShopID == shopID {
			return f.inserted[i], nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeSnapshots) DeleteByShop(_ context.Context, shopID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, shopID)
	return nil
}

type fakeStatuses struct {
	mu       sync.Mutex
	statuses map[string]*model.Status
	putErr   error
}

func newFakeStatuses() *fakeStatuses {
	return &fakeStatuses{statuses: make(map[string]*model.Status)}
}

func (f *fakeStatuses) Get(_ context.Context, shopID string) (*model.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[shopID], nil
}

func (f *fakeStatuses) Put(_ context.Context, s *model.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.statuses[s.ShopID] = s
	return nil
}

func (f *fakeStatuses) Delete(_ context.Context, shopID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.statuses, shopID)
	return nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (f *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeLocker) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	f.released = append(f.released, key)
	return nil
}

type fakeFetcher struct {
	snapshot *model.Snapshot
	err      error
	calls    int
	mu       sync.Mutex
}

func (f *fakeFetcher) Scrape(_ context.Context, shop *model.Shop) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s := *f.snapshot
	s.ShopID = shop.Key()
	return &s, nil
}

type fakeEngine struct {
	findings []model.Finding
}

func (f *fakeEngine) Run(context.Context, *check.Context) []model.Finding {
	return append([]model.Finding(nil), f.findings...)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls [][]model.Transition
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, _ *model.Shop, transitions []model.Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transitions)
	return f.err
}

var errBoom = errors.New("boom")
