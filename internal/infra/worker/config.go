package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedwatch/internal/pkg/config"
)

// BatchWorkers is the size of the batch pool. Batch jobs never overlap.
const BatchWorkers = 1

// WorkerConfig holds the configuration for the ingestion worker.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// Invalid environment values fall back to the default with a warning, so
// the worker always starts with a usable configuration.
type WorkerConfig struct {
	// BatchSchedule is the cron expression of the batch job (schedule
	// reconciliation and retention sweep).
	// Default: "*/15 * * * *"
	BatchSchedule string

	// Timezone is the IANA timezone the batch schedule is evaluated in.
	// Default: "UTC"
	Timezone string

	// FetchWorkers bounds concurrent pipeline runs.
	// Range: 1-50
	// Default: 5
	FetchWorkers int

	// RunTimeout bounds one pipeline run, heavy path included.
	// Range: 10s-30m
	// Default: 5m
	RunTimeout time.Duration

	// NotifyMaxConcurrent bounds concurrent notification deliveries.
	// Range: 1-50
	// Default: 10
	NotifyMaxConcurrent int

	// HealthPort serves /health, /health/ready, /health/channels and /metrics.
	// Range: 1024-65535
	// Default: 9091
	HealthPort int

	// MaxItems is the global item cap enforced by retention.
	// Default: 10000
	MaxItems int

	// CleanupBatchSize is the retention delete batch.
	// Range: 1-10000
	// Default: 500
	CleanupBatchSize int

	// MaxConsecutiveFailures and MaxTotalFailures are the auto-pause
	// ceilings. 0 disables a ceiling.
	// Default: 10 and 100
	MaxConsecutiveFailures int
	MaxTotalFailures       int

	// CacheTTL is the parsed-content cache lifetime.
	// Default: 30m
	CacheTTL time.Duration

	// DiscoveryTimeout bounds one background discovery.
	// Default: 2m
	DiscoveryTimeout time.Duration

	// ShutdownTimeout bounds the wait for in-flight runs on stop.
	// Default: 30s
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a WorkerConfig with production defaults.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		BatchSchedule:          "*/15 * * * *",
		Timezone:               "UTC",
		FetchWorkers:           5,
		RunTimeout:             5 * time.Minute,
		NotifyMaxConcurrent:    10,
		HealthPort:             9091,
		MaxItems:               10000,
		CleanupBatchSize:       500,
		MaxConsecutiveFailures: 10,
		MaxTotalFailures:       100,
		CacheTTL:               30 * time.Minute,
		DiscoveryTimeout:       2 * time.Minute,
		ShutdownTimeout:        30 * time.Second,
	}
}

// Validate checks every field and returns all violations joined.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.BatchSchedule); err != nil {
		errs = append(errs, fmt.Errorf("batch schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateIntRange(c.FetchWorkers, 1, 50); err != nil {
		errs = append(errs, fmt.Errorf("fetch workers: %w", err))
	}
	if err := config.ValidateDuration(c.RunTimeout, 10*time.Second, 30*time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("run timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.NotifyMaxConcurrent, 1, 50); err != nil {
		errs = append(errs, fmt.Errorf("notify max concurrent: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if c.MaxItems < 1 {
		errs = append(errs, fmt.Errorf("max items must be positive, got %d", c.MaxItems))
	}
	if err := config.ValidateIntRange(c.CleanupBatchSize, 1, 10000); err != nil {
		errs = append(errs, fmt.Errorf("cleanup batch size: %w", err))
	}
	if c.MaxConsecutiveFailures < 0 || c.MaxTotalFailures < 0 {
		errs = append(errs, fmt.Errorf("failure ceilings must not be negative"))
	}
	if err := config.ValidatePositiveDuration(c.CacheTTL); err != nil {
		errs = append(errs, fmt.Errorf("cache ttl: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.DiscoveryTimeout); err != nil {
		errs = append(errs, fmt.Errorf("discovery timeout: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("shutdown timeout: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// LoadConfigFromEnv loads the worker configuration with fail-open fallback.
//
// Environment variables:
//   - BATCH_SCHEDULE: cron expression (default: "*/15 * * * *")
//   - WORKER_TIMEZONE: IANA timezone (default: "UTC")
//   - FETCH_WORKERS: 1-50 (default: 5)
//   - RUN_TIMEOUT: duration 10s-30m (default: 5m)
//   - NOTIFY_MAX_CONCURRENT: 1-50 (default: 10)
//   - WORKER_HEALTH_PORT: 1024-65535 (default: 9091)
//   - MAX_ITEMS: >= 1 (default: 10000)
//   - CLEANUP_BATCH_SIZE: 1-10000 (default: 500)
//   - MAX_CONSECUTIVE_FAILURES, MAX_TOTAL_FAILURES: >= 0 (default: 10, 100)
//   - CACHE_TTL: duration (default: 30m)
//   - DISCOVERY_TIMEOUT: duration (default: 2m)
//   - SHUTDOWN_TIMEOUT: duration (default: 30s)
//
// Every fallback is logged and counted in metrics. metrics may be nil.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) *WorkerConfig {
	cfg := DefaultConfig()

	var cm *config.ConfigMetrics
	if metrics != nil {
		cm = metrics.ConfigMetrics
	}
	l := config.NewLoader(logger, cm)

	nonNegative := func(v int) error {
		if v < 0 {
			return fmt.Errorf("must not be negative, got %d", v)
		}
		return nil
	}

	cfg.BatchSchedule = l.String("batch_schedule", "BATCH_SCHEDULE", cfg.BatchSchedule, config.ValidateCronSchedule)
	cfg.Timezone = l.String("timezone", "WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.FetchWorkers = l.Int("fetch_workers", "FETCH_WORKERS", cfg.FetchWorkers, func(v int) error {
		return config.ValidateIntRange(v, 1, 50)
	})
	cfg.RunTimeout = l.Duration("run_timeout", "RUN_TIMEOUT", cfg.RunTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, 10*time.Second, 30*time.Minute)
	})
	cfg.NotifyMaxConcurrent = l.Int("notify_max_concurrent", "NOTIFY_MAX_CONCURRENT", cfg.NotifyMaxConcurrent, func(v int) error {
		return config.ValidateIntRange(v, 1, 50)
	})
	cfg.HealthPort = l.Int("health_port", "WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.MaxItems = l.Int("max_items", "MAX_ITEMS", cfg.MaxItems, func(v int) error {
		return config.ValidateIntRange(v, 1, 1<<30)
	})
	cfg.CleanupBatchSize = l.Int("cleanup_batch_size", "CLEANUP_BATCH_SIZE", cfg.CleanupBatchSize, func(v int) error {
		return config.ValidateIntRange(v, 1, 10000)
	})
	cfg.MaxConsecutiveFailures = l.Int("max_consecutive_failures", "MAX_CONSECUTIVE_FAILURES", cfg.MaxConsecutiveFailures, nonNegative)
	cfg.MaxTotalFailures = l.Int("max_total_failures", "MAX_TOTAL_FAILURES", cfg.MaxTotalFailures, nonNegative)
	cfg.CacheTTL = l.Duration("cache_ttl", "CACHE_TTL", cfg.CacheTTL, config.ValidatePositiveDuration)
	cfg.DiscoveryTimeout = l.Duration("discovery_timeout", "DISCOVERY_TIMEOUT", cfg.DiscoveryTimeout, config.ValidatePositiveDuration)
	cfg.ShutdownTimeout = l.Duration("shutdown_timeout", "SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout, config.ValidatePositiveDuration)

	l.Finish()
	return &cfg
}

// Location returns the configured timezone, UTC when it cannot be loaded.
func (c *WorkerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
