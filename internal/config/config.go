package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Lock backends
const (
	LockBackendMongo = "mongo"
	LockBackendRedis = "redis"
)

// Config holds all application configuration
type Config struct {
	// MongoDB Configuration
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration

	// HTTP Server Configuration
	HTTPPort         string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration

	// Worker Pool Configuration
	WorkerPoolSize    int
	MaxConcurrentJobs int

	// Logging Configuration
	LogLevel  string
	LogFormat string

	// CORS Configuration
	CORSAllowedOrigins   string
	CORSAllowedMethods   string
	CORSAllowedHeaders   string
	CORSAllowCredentials bool
	CORSMaxAge           int

	// Scheduler Configuration
	SchedulerEnabled     bool
	ScrapeSchedule       string
	LockSweepSchedule    string
	ScrapeInterval       time.Duration
	ScrapeBatchSize      int
	LeaseTTL             time.Duration
	SchedulerConcurrency int

	// Shop API Configuration
	RemoteCallTimeout time.Duration
	RemoteRetryMax    int
	RemoteRatePerSec  float64

	// Checks Configuration
	AdvisoryFeedURL  string
	AdvisoryCacheTTL time.Duration
	CheckConcurrency int
	TaskOverdueAfter time.Duration

	// Lock Backend Configuration
	LockBackend   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Storage Configuration
	SnapshotRetention time.Duration
	ShopsSeedFile     string

	// Notification Configuration
	NotifyWebhookURL      string
	NotifySlackWebhookURL string
	NotifyTimeout         time.Duration
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	return &Config{
		// MongoDB
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017/shopwatch?authSource=admin"),
		MongoDatabase: getEnv("MONGO_DATABASE", "shopwatch"),
		MongoTimeout:  getDurationEnv("MONGO_TIMEOUT_SEC", 10) * time.Second,

		// HTTP Server
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		HTTPReadTimeout:  getDurationEnv("HTTP_READ_TIMEOUT_SEC", 30) * time.Second,
		HTTPWriteTimeout: getDurationEnv("HTTP_WRITE_TIMEOUT_SEC", 30) * time.Second,

		// Worker Pool
		WorkerPoolSize:    getIntEnv("WORKER_POOL_SIZE", 4),
		MaxConcurrentJobs: getIntEnv("MAX_CONCURRENT_JOBS", 100),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// CORS
		CORSAllowedOrigins:   getEnv("CORS_ALLOWED_ORIGINS", "*"),
		CORSAllowedMethods:   getEnv("CORS_ALLOWED_METHODS", "GET, POST, DELETE, OPTIONS"),
		CORSAllowedHeaders:   getEnv("CORS_ALLOWED_HEADERS", "*"),
		CORSAllowCredentials: getBoolEnv("CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAge:           getIntEnv("CORS_MAX_AGE", 3600),

		// Scheduler
		SchedulerEnabled:     getBoolEnv("SCHEDULER_ENABLED", true),
		ScrapeSchedule:       getEnv("SCRAPE_SCHEDULE", "@every 1m"),
		LockSweepSchedule:    getEnv("LOCK_SWEEP_SCHEDULE", "*/5 * * * *"),
		ScrapeInterval:       getDurationEnv("SCRAPE_INTERVAL_SEC", 3600) * time.Second,
		ScrapeBatchSize:      getIntEnv("SCRAPE_BATCH_SIZE", 50),
		LeaseTTL:             getDurationEnv("LEASE_TTL_SEC", 300) * time.Second,
		SchedulerConcurrency: getIntEnv("SCHEDULER_CONCURRENCY", 10),

		// Shop API
		RemoteCallTimeout: getDurationEnv("REMOTE_CALL_TIMEOUT_SEC", 30) * time.Second,
		RemoteRetryMax:    getIntEnv("REMOTE_RETRY_MAX", 2),
		RemoteRatePerSec:  getFloatEnv("REMOTE_RATE_PER_SEC", 5),

		// Checks
		AdvisoryFeedURL:  getEnv("ADVISORY_FEED_URL", ""),
		AdvisoryCacheTTL: getDurationEnv("ADVISORY_CACHE_TTL_SEC", 3600) * time.Second,
		CheckConcurrency: getIntEnv("CHECK_CONCURRENCY", 4),
		TaskOverdueAfter: getDurationEnv("TASK_OVERDUE_AFTER_SEC", 86400) * time.Second,

		// Lock backend
		LockBackend:   strings.ToLower(getEnv("LOCK_BACKEND", LockBackendMongo)),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// Storage
		SnapshotRetention: getDurationEnv("SNAPSHOT_RETENTION_DAYS", 30) * 24 * time.Hour,
		ShopsSeedFile:     getEnv("SHOPS_SEED_FILE", ""),

		// Notifications
		NotifyWebhookURL:      getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifySlackWebhookURL: getEnv("NOTIFY_SLACK_WEBHOOK_URL", ""),
		NotifyTimeout:         getDurationEnv("NOTIFY_TIMEOUT_SEC", 10) * time.Second,
	}
}

// Validate checks values that would break the service at runtime
func (c *Config) Validate() error {
	var errs []error

	if c.LeaseTTL <= 0 {
		errs = append(errs, errors.New("LEASE_TTL_SEC must be positive"))
	}
	if c.ScrapeInterval <= 0 {
		errs = append(errs, errors.New("SCRAPE_INTERVAL_SEC must be positive"))
	}
	if c.ScrapeBatchSize <= 0 {
		errs = append(errs, errors.New("SCRAPE_BATCH_SIZE must be positive"))
	}
	if c.SchedulerConcurrency <= 0 {
		errs = append(errs, errors.New("SCHEDULER_CONCURRENCY must be positive"))
	}
	if c.WorkerPoolSize <= 0 {
		errs = append(errs, errors.New("WORKER_POOL_SIZE must be positive"))
	}
	if c.LockBackend != LockBackendMongo && c.LockBackend != LockBackendRedis {
		errs = append(errs, fmt.Errorf("LOCK_BACKEND must be %q or %q", LockBackendMongo, LockBackendRedis))
	}
	for key, value := range map[string]string{
		"ADVISORY_FEED_URL":        c.AdvisoryFeedURL,
		"NOTIFY_WEBHOOK_URL":       c.NotifyWebhookURL,
		"NOTIFY_SLACK_WEBHOOK_URL": c.NotifySlackWebhookURL,
	} {
		if err := validateOptionalURL(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func validateOptionalURL(value string) error {
	if value == "" {
		return nil
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("URL must start with http:// or https://")
	}
	if parsed.Host == "" {
		return errors.New("URL must include a host")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
		log.Printf("Warning: Invalid number value for %s, using default %g", key, defaultValue)
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal)
		}
		log.Printf("Warning: Invalid duration value for %s, using default %d", key, defaultValue)
	}
	return time.Duration(defaultValue)
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: Invalid boolean value for %s, using default %t", key, defaultValue)
	}
	return defaultValue
}
