package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dandantas/shopwatch/internal/advisory"
	"github.com/dandantas/shopwatch/internal/check"
	"github.com/dandantas/shopwatch/internal/metrics"
	"github.com/dandantas/shopwatch/internal/model"
	"github.com/dandantas/shopwatch/internal/notify"
	"github.com/dandantas/shopwatch/internal/status"
	"github.com/google/uuid"
)

// ErrLockConflict is returned when another worker holds the shop's lease
var ErrLockConflict = errors.New("shop is locked by another worker")

// ErrNotDue is returned when a scheduled run finds the shop was scraped by
// another worker since it was selected. It matches ErrLockConflict.
var ErrNotDue = fmt.Errorf("%w: shop is no longer due", ErrLockConflict)

// LeaseKey returns the lease key guarding the pipeline of a shop
func LeaseKey(shopID string) string {
	return "scrape:" + shopID
}

// MonitorConfig tunes the scrape pipeline
type MonitorConfig struct {
	LeaseTTL    time.Duration
	Interval    time.Duration // Minimum time between two scrapes of a shop
	BatchSize   int           // Max shops per cycle
	Concurrency int           // Max shops processed in parallel
}

// Monitor runs the per-shop pipeline: lease, scrape, snapshot, checks,
// status and notifications
type Monitor struct {
	cfg        MonitorConfig
	shops      ShopStore
	snapshots  SnapshotStore
	statuses   StatusStore
	locker     Locker
	fetcher    Fetcher
	engine     Evaluator
	advisories advisory.Source
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	now        func() time.Time

	// The lease is re-entrant for its owner, so shops running in this
	// process are tracked here as well
	inflight sync.Map
}

// MonitorDeps groups the collaborators of a Monitor
type MonitorDeps struct {
	Shops      ShopStore
	Snapshots  SnapshotStore
	Statuses   StatusStore
	Locker     Locker
	Fetcher    Fetcher
	Engine     Evaluator
	Advisories advisory.Source
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
}

// NewMonitor creates a monitor
func NewMonitor(cfg MonitorConfig, deps MonitorDeps) *Monitor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Monitor{
		cfg:        cfg,
		shops:      deps.Shops,
		snapshots:  deps.Snapshots,
		statuses:   deps.Statuses,
		locker:     deps.Locker,
		fetcher:    deps.Fetcher,
		engine:     deps.Engine,
		advisories: deps.Advisories,
		notifier:   notifier,
		metrics:    deps.Metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ShopResult is the outcome of one pipeline run
type ShopResult struct {
	ShopID      string
	Snapshot    *model.Snapshot
	Status      *model.Status
	Transitions []model.Transition
}

// ProcessShop runs the pipeline for one due shop under its lease. It returns
// ErrLockConflict when another worker is already processing the shop and
// ErrNotDue when the shop was scraped since it was selected.
func (m *Monitor) ProcessShop(ctx context.Context, shop *model.Shop, correlationID string) (*ShopResult, error) {
	return m.process(ctx, shop, correlationID, true)
}

// RefreshShop runs the pipeline on demand regardless of when the shop was
// last scraped
func (m *Monitor) RefreshShop(ctx context.Context, shop *model.Shop, correlationID string) (*ShopResult, error) {
	return m.process(ctx, shop, correlationID, false)
}

func (m *Monitor) process(ctx context.Context, shop *model.Shop, correlationID string, dueOnly bool) (result *ShopResult, err error) {
	start := time.Now()
	shopID := shop.Key()
	key := LeaseKey(shopID)

	outcome := metrics.ResultFailed
	defer func() {
		m.metrics.ObserveScrape(outcome, time.Since(start))
	}()

	if _, busy := m.inflight.LoadOrStore(shopID, struct{}{}); busy {
		outcome = metrics.ResultConflict
		return nil, ErrLockConflict
	}
	defer m.inflight.Delete(shopID)

	acquired, err := m.locker.Acquire(ctx, key, m.cfg.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !acquired {
		outcome = metrics.ResultConflict
		return nil, ErrLockConflict
	}
	defer m.release(ctx, key, correlationID)

	// The caller's copy may predate a run another worker finished and released
	current, err := m.shops.GetByID(ctx, shop.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload shop: %w", err)
	}
	shop = current
	now := m.now()
	if dueOnly && !shop.IsDue(now, m.cfg.Interval) {
		outcome = metrics.ResultConflict
		return nil, ErrNotDue
	}

	// Claim the shop before the slow remote calls; reverted when the run fails
	previous := shop.LastScrapedAt
	if err := m.shops.MarkScraped(ctx, shopID, &now); err != nil {
		return nil, fmt.Errorf("failed to mark shop scraped: %w", err)
	}

	snapshot, err := m.fetcher.Scrape(ctx, shop)
	if err != nil {
		m.revert(ctx, shop, previous, err, correlationID)
		return nil, err
	}

	if err := m.snapshots.Insert(ctx, snapshot); err != nil {
		m.revert(ctx, shop, previous, err, correlationID)
		return nil, err
	}

	prev, err := m.statuses.Get(ctx, shopID)
	if err != nil {
		m.revert(ctx, shop, previous, err, correlationID)
		return nil, err
	}

	findings := m.engine.Run(ctx, &check.Context{
		Snapshot:   snapshot,
		Advisories: m.advisories,
		Previous:   prev,
		Now:        now,
	})

	next, transitions := status.Aggregate(shopID, prev, findings, now)
	if err := m.statuses.Put(ctx, next); err != nil {
		m.revert(ctx, shop, previous, err, correlationID)
		return nil, err
	}

	scrapeNote := ""
	if snapshot.Partial {
		scrapeNote = "partial snapshot, missing: " + strings.Join(snapshot.Missing, ", ")
	}
	if err := m.shops.UpdateScrapeResult(ctx, shopID, next.Level, scrapeNote); err != nil {
		slog.Warn("Failed to record scrape result",
			"shop_id", shopID,
			"correlation_id", correlationID,
			"error", err,
		)
	}

	for _, t := range transitions {
		m.metrics.IncTransitions(string(t.ToLevel))
	}
	if len(transitions) > 0 {
		if err := m.notifier.Notify(ctx, shop, transitions); err != nil {
			m.metrics.IncNotificationFailures()
			slog.Error("Failed to dispatch notifications",
				"shop_id", shopID,
				"correlation_id", correlationID,
				"transitions", len(transitions),
				"error", err,
			)
		}
	}

	outcome = metrics.ResultSuccess
	if snapshot.Partial {
		outcome = metrics.ResultPartial
	}

	slog.Info("Shop processed",
		"shop_id", shopID,
		"shop_name", shop.Name,
		"correlation_id", correlationID,
		"level", next.Level,
		"findings", len(findings),
		"transitions", len(transitions),
		"partial", snapshot.Partial,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &ShopResult{
		ShopID:      shopID,
		Snapshot:    snapshot,
		Status:      next,
		Transitions: transitions,
	}, nil
}

// revert restores the previous scrape mark so the shop stays due
func (m *Monitor) revert(ctx context.Context, shop *model.Shop, previous *time.Time, cause error, correlationID string) {
	ctx = context.WithoutCancel(ctx)

	if err := m.shops.MarkScraped(ctx, shop.Key(), previous); err != nil {
		slog.Error("Failed to revert scrape mark",
			"shop_id", shop.Key(),
			"correlation_id", correlationID,
			"error", err,
		)
	}
	if err := m.shops.UpdateScrapeResult(ctx, shop.Key(), "", cause.Error()); err != nil {
		slog.Warn("Failed to record scrape error",
			"shop_id", shop.Key(),
			"correlation_id", correlationID,
			"error", err,
		)
	}
}

func (m *Monitor) release(ctx context.Context, key, correlationID string) {
	if err := m.locker.Release(context.WithoutCancel(ctx), key); err != nil {
		slog.Error("Failed to release lease",
			"key", key,
			"correlation_id", correlationID,
			"error", err,
		)
	}
}

// CycleResult summarizes one scheduled cycle
type CycleResult struct {
	Due       int
	Processed int
	Conflicts int
	Failed    int
	Duration  time.Duration
}

// RunCycle processes all due shops with bounded concurrency. A failing shop
// never stops the cycle.
func (m *Monitor) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	var result CycleResult

	due, err := m.shops.FindDue(ctx, m.now(), m.cfg.Interval, m.cfg.BatchSize)
	if err != nil {
		return result, fmt.Errorf("failed to find due shops: %w", err)
	}
	result.Due = len(due)
	if len(due) == 0 {
		slog.Debug("No shops due for scraping")
		result.Duration = time.Since(start)
		m.metrics.ObserveCycle(result.Duration, time.Now())
		return result, nil
	}

	slog.Info("Found shops due for scraping", "count", len(due))

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, m.cfg.Concurrency)
	)

	for i := range due {
		shop := &due[i]

		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			result.Duration = time.Since(start)
			return result, ctx.Err()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()

			correlationID := uuid.New().String()
			_, err := m.ProcessShop(ctx, shop, correlationID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Processed++
			case errors.Is(err, ErrLockConflict):
				result.Conflicts++
				slog.Debug("Shop locked by another worker", "shop_id", shop.Key())
			default:
				result.Failed++
				slog.Error("Shop pipeline failed",
					"shop_id", shop.Key(),
					"shop_name", shop.Name,
					"correlation_id", correlationID,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()

	result.Duration = time.Since(start)
	m.metrics.ObserveCycle(result.Duration, time.Now())

	slog.Info("Scrape cycle completed",
		"due", result.Due,
		"processed", result.Processed,
		"conflicts", result.Conflicts,
		"failed", result.Failed,
		"duration_ms", result.Duration.Milliseconds(),
	)

	return result, nil
}
