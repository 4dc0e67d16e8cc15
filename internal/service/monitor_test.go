package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dandantas/shopwatch/internal/metrics"
	"github.com/dandantas/shopwatch/internal/model"
	"github.com/dandantas/shopwatch/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type monitorFixture struct {
	shops     *fakeShops
	snapshots *fakeSnapshots
	statuses  *fakeStatuses
	locker    *fakeLocker
	fetcher   *fakeFetcher
	engine    *fakeEngine
	notifier  *fakeNotifier
	metrics   *metrics.Metrics
	monitor   *Monitor
}

func scrapeMetrics(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func newShop(name string) model.Shop {
	return model.Shop{
		ID:          primitive.NewObjectID(),
		Name:        name,
		URL:         "https://" + name + ".example.com",
		OwnerUserID: "user-1",
	}
}

func newMonitorFixture(shops ...model.Shop) *monitorFixture {
	f := &monitorFixture{
		shops:     newFakeShops(shops...),
		snapshots: &fakeSnapshots{},
		statuses:  newFakeStatuses(),
		locker:    newFakeLocker(),
		fetcher: &fakeFetcher{snapshot: &model.Snapshot{
			PlatformVersion: "6.5.0.0",
			Environment:     "production",
			Extensions:      []model.Extension{},
			ScheduledTasks:  []model.ScheduledTask{},
		}},
		engine: &fakeEngine{findings: []model.Finding{
			{Code: "shopware.env", Level: model.LevelSuccess, Message: "ok"},
			{Code: "admin.worker", Level: model.LevelWarning, Message: "admin worker enabled"},
		}},
		notifier: &fakeNotifier{},
		metrics:  metrics.New(),
	}
	f.monitor = NewMonitor(MonitorConfig{
		LeaseTTL:    time.Minute,
		Interval:    time.Hour,
		BatchSize:   10,
		Concurrency: 2,
	}, MonitorDeps{
		Shops:     f.shops,
		Snapshots: f.snapshots,
		Statuses:  f.statuses,
		Locker:    f.locker,
		Fetcher:   f.fetcher,
		Engine:    f.engine,
		Notifier:  f.notifier,
		Metrics:   f.metrics,
	})
	return f
}

func TestProcessShop_PersistsSnapshotStatusAndNotifies(t *testing.T) {
	shop := newShop("alpha")
	f := newMonitorFixture(shop)

	result, err := f.monitor.ProcessShop(context.Background(), &shop, "corr-1")
	require.NoError(t, err)

	assert.Equal(t, model.LevelWarning, result.Status.Level)
	require.Len(t, f.snapshots.inserted, 1)
	assert.Equal(t, shop.Key(), f.snapshots.inserted[0].ShopID)

	stored := f.statuses.statuses[shop.Key()]
	require.NotNil(t, stored)
	assert.Equal(t, model.LevelWarning, stored.Level)

	require.Len(t, f.notifier.calls, 1)
	require.Len(t, f.notifier.calls[0], 1)
	assert.Equal(t, "admin.worker", f.notifier.calls[0][0].Code)

	updated := f.shops.get(shop.Key())
	assert.NotNil(t, updated.LastScrapedAt)
	assert.Equal(t, model.LevelWarning, updated.StatusLevel)
	assert.Empty(t, updated.LastScrapeError)

	assert.Equal(t, []string{LeaseKey(shop.Key())}, f.locker.released)
}

func TestProcessShop_SecondRunWithoutChangesDoesNotNotify(t *testing.T) {
	shop := newShop("alpha")
	f := newMonitorFixture(shop)

	_, err := f.monitor.ProcessShop(context.Background(), &shop, "corr-1")
	require.NoError(t, err)
	result, err := f.monitor.RefreshShop(context.Background(), &shop, "corr-2")
	require.NoError(t, err)

	assert.Empty(t, result.Transitions)
	assert.Len(t, f.notifier.calls, 1)
	assert.Equal(t, model.LevelWarning, result.Status.PreviousLevel)
}

func TestProcessShop_StaleDueCopySkipsAfterOtherWorkerFinished(t *testing.T) {
	shop := newShop("alpha")
	f := newMonitorFixture(shop)

	// Both workers selected the shop before either of them ran it
	due, err := f.shops.FindDue(context.Background(), time.Now(), time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	stale := due[0]

	_, err = f.monitor.ProcessShop(context.Background(), &shop, "corr-a")
	require.NoError(t, err)
	scrapedAt := f.shops.get(shop.Key()).LastScrapedAt
	require.NotNil(t, scrapedAt)

	_, err = f.monitor.ProcessShop(context.Background(), &stale, "corr-b")
	require.ErrorIs(t, err, ErrNotDue)
	assert.ErrorIs(t, err, ErrLockConflict)

	assert.Equal(t, 1, f.fetcher.calls)
	assert.Len(t, f.snapshots.inserted, 1)
	assert.Len(t, f.shops.markCalls, 1)
	assert.Equal(t, scrapedAt, f.shops.get(shop.Key()).LastScrapedAt)
	assert.Len(t, f.locker.released, 2)
}

func TestRefreshShop_RunsShopThatIsNotDue(t *testing.T) {
	recent := time.Now().UTC()
	shop := newShop("alpha")
	shop.LastScrapedAt = &recent
	f := newMonitorFixture(shop)

	_, err := f.monitor.ProcessShop(context.Background(), &shop, "corr-1")
	require.ErrorIs(t, err, ErrNotDue)

	result, err := f.monitor.RefreshShop(context.Background(), &shop, "corr-2")
	require.NoError(t, err)
	assert.Equal(t, model.LevelWarning, result.Status.Level)
	assert.Equal(t, 1, f.fetcher.calls)
}

func TestProcessShop_LockConflictSkipsShop(t *testing.T) {
	shop := newShop("alpha")
	f := newMonitorFixture(shop)
	f.locker.held[LeaseKey(shop.Key())] = true

	_, err := f.monitor.ProcessShop(context.Background(), &shop, "corr-1")
	require.ErrorIs(t, err, ErrLockConflict)

	assert.Zero(t, f.fetcher.calls)
	assert.Empty(t, f.shops.markCalls)
	assert.Empty(t, f.locker.released)
	assert.Contains(t, scrapeMetrics(t, f.metrics), "shopwatch_lock_conflicts_total 1")
}

func TestProcessShop_PlatformInfoFailureRevertsMark(t *testing.T) {
	previous := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	shop := newShop("alpha")
	shop.LastScrapedAt = &previous
	f := newMonitorFixture(shop)
	f.fetcher.err = scraper.ErrPlatformInfoUnavailable

	_, err := f.monitor.ProcessShop(context.Background(), &shop, "corr-1")
	require.ErrorIs(t, err, scraper.ErrPlatformInfoUnavailable)

	assert.Empty(t, f.snapshots.inserted)
	assert.Empty(t, f.statuses.statuses)
	assert.Empty(t, f.notifier.calls)

	require.Len(t, f.shops.markCalls, 2)
	updated := f.shops.get(shop.Key())
	require.NotNil(t, updated.LastScrapedAt)
	assert.True(t, previous.Equal(*updated.LastScrapedAt))
	assert.Contains(t, updated.LastScrapeError, "platform info")

	assert.Equal(t, []string{LeaseKey(shop.Key())}, f.locker.released)
}

func TestProcessShop_NeverScrapedShopStaysDueAfterFailure(t *testing.T) {
	shop := newShop("alpha")
	f := newMonitorFixture(shop)
	f.fetcher.err = scraper.ErrPlatformInfoUnavailable

	_, err := f.monitor.ProcessShop(context.Background(), &shop, "corr-1")
	require.Error(t, err)

	assert.Nil(t, f.shops.get(shop.Key()).LastScrapedAt)

	due, err := f.shops.FindDue(context.Background(), time.Now(), time.Hour, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestProcessShop_PersistenceFailureRevertsMark(t *testing.T) {
	shop := newShop("alpha")
	f := newMonitorFixture(shop)
	f.statuses.putErr = errBoom

	_, err := f.monitor.ProcessShop(context.Background(), &shop, "corr-1")
	require.ErrorIs(t, err, errBoom)

	assert.Nil(t, f.shops.get(shop.Key()).LastScrapedAt)
	assert.Empty(t, f.notifier.calls)
}

func TestProcessShop_NotificationFailureKeepsStatus(t *testing.T) {
	shop := newShop("alpha")
	f := newMonitorFixture(shop)
	f.notifier.err = errBoom

	result, err := f.monitor.ProcessShop(context.Background(), &shop, "corr-1")
	require.NoError(t, err)

	assert.NotNil(t, f.statuses.statuses[shop.Key()])
	assert.Equal(t, model.LevelWarning, result.Status.Level)
	assert.Contains(t, scrapeMetrics(t, f.metrics), "shopwatch_notification_failures_total 1")
}

func TestProcessShop_PartialSnapshotIsRecorded(t *testing.T) {
	shop := newShop("alpha")
	f := newMonitorFixture(shop)
	f.fetcher.snapshot.Partial = true
	f.fetcher.snapshot.Missing = []string{model.FieldExtensions}

	result, err := f.monitor.ProcessShop(context.Background(), &shop, "corr-1")
	require.NoError(t, err)

	assert.True(t, result.Snapshot.Partial)
	assert.Contains(t, f.shops.get(shop.Key()).LastScrapeError, model.FieldExtensions)
}

func TestRunCycle_ProcessesDueShopsAndCountsOutcomes(t *testing.T) {
	recent := time.Now().UTC()
	due1 := newShop("alpha")
	due2 := newShop("beta")
	locked := newShop("gamma")
	fresh := newShop("delta")
	fresh.LastScrapedAt = &recent

	f := newMonitorFixture(due1, due2, locked, fresh)
	f.locker.held[LeaseKey(locked.Key())] = true

	result, err := f.monitor.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Due)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Conflicts)
	assert.Zero(t, result.Failed)
	assert.Len(t, f.snapshots.inserted, 2)
}

func TestRunCycle_FailingShopDoesNotStopCycle(t *testing.T) {
	f := newMonitorFixture(newShop("alpha"), newShop("beta"))
	f.snapshots.insertErr = errBoom

	result, err := f.monitor.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Due)
	assert.Equal(t, 2, result.Failed)
	assert.Len(t, f.locker.released, 2)
}

func TestRunCycle_FindDueError(t *testing.T) {
	f := newMonitorFixture()
	f.shops.findDueErr = errBoom

	_, err := f.monitor.RunCycle(context.Background())
	require.ErrorIs(t, err, errBoom)
}

type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
	inner   *fakeFetcher
}

func (b *blockingFetcher) Scrape(ctx context.Context, shop *model.Shop) (*model.Snapshot, error) {
	close(b.started)
	<-b.release
	return b.inner.Scrape(ctx, shop)
}

func TestProcessShop_SameShopInProcessConflicts(t *testing.T) {
	shop := newShop("alpha")
	f := newMonitorFixture(shop)
	blocking := &blockingFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
		inner:   f.fetcher,
	}
	f.monitor.fetcher = blocking

	done := make(chan error, 1)
	go func() {
		_, err := f.monitor.ProcessShop(context.Background(), &shop, "corr-1")
		done <- err
	}()
	<-blocking.started

	// The fake locker is not re-entrant either; clear it to mimic the owner renewing its lease
	f.locker.mu.Lock()
	delete(f.locker.held, LeaseKey(shop.Key()))
	f.locker.mu.Unlock()

	_, err := f.monitor.ProcessShop(context.Background(), &shop, "corr-2")
	assert.ErrorIs(t, err, ErrLockConflict)

	close(blocking.release)
	require.NoError(t, <-done)
}
