package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dandantas/shopwatch/internal/advisory"
	"github.com/dandantas/shopwatch/internal/check"
	"github.com/dandantas/shopwatch/internal/config"
	"github.com/dandantas/shopwatch/internal/database"
	"github.com/dandantas/shopwatch/internal/handler"
	"github.com/dandantas/shopwatch/internal/lease"
	"github.com/dandantas/shopwatch/internal/metrics"
	"github.com/dandantas/shopwatch/internal/model"
	"github.com/dandantas/shopwatch/internal/notify"
	"github.com/dandantas/shopwatch/internal/scheduler"
	"github.com/dandantas/shopwatch/internal/scraper"
	"github.com/dandantas/shopwatch/internal/service"
	"github.com/dandantas/shopwatch/internal/shopapi"
	"github.com/dandantas/shopwatch/internal/worker"
	"github.com/dandantas/shopwatch/pkg/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	config.InitLogger(cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting shopwatch", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTimeout)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Disconnect(context.Background()); err != nil {
			slog.Error("Failed to disconnect from MongoDB", "error", err)
		}
	}()

	if err := database.CreateIndexes(ctx, db, cfg.SnapshotRetention); err != nil {
		slog.Error("Failed to create indexes", "error", err)
		os.Exit(1)
	}

	// Repositories
	shopRepo := database.NewShopRepository(db)
	snapshotRepo := database.NewSnapshotRepository(db)
	statusRepo := database.NewStatusRepository(db)
	notificationRepo := database.NewNotificationRepository(db)

	leaseStore, closeLeaseStore, err := newLeaseStore(ctx, cfg, db)
	if err != nil {
		slog.Error("Failed to initialize lease store", "backend", cfg.LockBackend, "error", err)
		os.Exit(1)
	}
	defer closeLeaseStore()
	leases := lease.New(leaseStore, workerID())

	m := metrics.New()

	shopService := service.NewShopService(shopRepo, snapshotRepo, statusRepo, notificationRepo)
	if cfg.ShopsSeedFile != "" {
		seedShops(ctx, shopService, cfg.ShopsSeedFile)
	}

	shopClient := shopapi.NewHTTPClient(shopapi.Options{
		Timeout:   cfg.RemoteCallTimeout,
		RetryMax:  cfg.RemoteRetryMax,
		RateLimit: cfg.RemoteRatePerSec,
	})
	fetcher := scraper.New(shopClient, cfg.RemoteCallTimeout, scraper.WithFailureRecorder(m))
	engine := check.NewEngine(check.DefaultRegistry(cfg.TaskOverdueAfter), cfg.CheckConcurrency, m)

	notifier, err := newNotifier(cfg, notificationRepo)
	if err != nil {
		slog.Error("Failed to initialize notifier", "error", err)
		os.Exit(1)
	}

	monitor := service.NewMonitor(service.MonitorConfig{
		LeaseTTL:    cfg.LeaseTTL,
		Interval:    cfg.ScrapeInterval,
		BatchSize:   cfg.ScrapeBatchSize,
		Concurrency: cfg.SchedulerConcurrency,
	}, service.MonitorDeps{
		Shops:      shopRepo,
		Snapshots:  snapshotRepo,
		Statuses:   statusRepo,
		Locker:     leases,
		Fetcher:    fetcher,
		Engine:     engine,
		Advisories: newAdvisorySource(cfg),
		Notifier:   notifier,
		Metrics:    m,
	})

	// On-demand refreshes run in the worker pool
	refreshExecutor := service.NewRefreshExecutor(monitor, shopService)
	pool := worker.NewWorkerPool(cfg.WorkerPoolSize, cfg.MaxConcurrentJobs, refreshExecutor.Execute)
	refreshExecutor.SetPool(pool)
	pool.Start()

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched, err = scheduler.New(scheduler.Config{
			ScrapeSchedule:    cfg.ScrapeSchedule,
			LockSweepSchedule: cfg.LockSweepSchedule,
		}, monitor, leases, refreshExecutor)
		if err != nil {
			slog.Error("Failed to initialize scheduler", "error", err)
			os.Exit(1)
		}
		sched.Start(ctx)
	} else {
		slog.Info("Scheduler is disabled by configuration")
	}

	router := handler.NewRouter(
		handler.NewShopHandler(shopService),
		handler.NewRefreshHandler(refreshExecutor),
		handler.NewNotificationHandler(shopService),
		handler.NewHealthHandler(db, version),
		m.Handler(),
		m,
		middleware.CORSConfig{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   cfg.CORSAllowedMethods,
			AllowedHeaders:   cfg.CORSAllowedHeaders,
			AllowCredentials: cfg.CORSAllowCredentials,
			MaxAge:           cfg.CORSMaxAge,
		},
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router.Handler(),
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
	}

	go func() {
		slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Received shutdown signal, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop accepting refreshes first, then drain scheduled and queued work
	slog.Info("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	pool.Stop(shutdownCtx)

	slog.Info("shopwatch stopped")
}

// workerID identifies this replica in lease rows (hostname in Kubernetes)
func workerID() string {
	id, err := os.Hostname()
	if err != nil || id == "" {
		id = uuid.New().String()
		slog.Warn("Failed to get hostname, using UUID as worker ID", "worker_id", id)
	}
	return id
}

// newLeaseStore picks the lease backend. The returned func closes it.
func newLeaseStore(ctx context.Context, cfg *config.Config, db *database.MongoDB) (lease.Store, func(), error) {
	if cfg.LockBackend != config.LockBackendRedis {
		return database.NewLockRepository(db), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	slog.Info("Using Redis lease store", "addr", cfg.RedisAddr)
	return lease.NewRedisStore(client, lease.DefaultRedisPrefix), func() {
		if err := client.Close(); err != nil {
			slog.Error("Failed to close Redis client", "error", err)
		}
	}, nil
}

// newNotifier fans transitions out to the notification log and the
// configured outgoing channels
func newNotifier(cfg *config.Config, store notify.NotificationStore) (notify.Notifier, error) {
	notifiers := []notify.Notifier{notify.NewStoreNotifier(store)}

	if cfg.NotifyWebhookURL != "" {
		webhook, err := notify.NewWebhookNotifier(model.Webhook{URL: cfg.NotifyWebhookURL}, cfg.NotifyTimeout)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, webhook)
	}

	notifiers = append(notifiers, notify.NewSlackNotifier(cfg.NotifySlackWebhookURL))

	return notify.NewMultiNotifier(notifiers...), nil
}

// newAdvisorySource returns nil when no feed is configured; the security
// check then reports nothing
func newAdvisorySource(cfg *config.Config) advisory.Source {
	if cfg.AdvisoryFeedURL == "" {
		slog.Warn("ADVISORY_FEED_URL not set, security advisory check disabled")
		return nil
	}
	return advisory.NewCachedSource(advisory.NewHTTPSource(cfg.AdvisoryFeedURL, cfg.RemoteCallTimeout), cfg.AdvisoryCacheTTL)
}

func seedShops(ctx context.Context, shops *service.ShopService, path string) {
	definitions, err := config.LoadShopSeed(path)
	if err != nil {
		slog.Error("Failed to load shop seed file", "path", path, "error", err)
		return
	}

	seeded, err := shops.Seed(ctx, definitions)
	if err != nil {
		slog.Warn("Some seeded shops were rejected", "path", path, "error", err)
	}
	slog.Info("Seeded shops", "path", path, "count", seeded)
}
