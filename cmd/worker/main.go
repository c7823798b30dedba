package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"feedwatch/internal/infra/cache"
	"feedwatch/internal/infra/db"
	"feedwatch/internal/infra/fetcher"
	"feedwatch/internal/infra/scraper"
	workerPkg "feedwatch/internal/infra/worker"
	"feedwatch/internal/observability/logging"
	"feedwatch/internal/observability/metrics"
	"feedwatch/internal/observability/tracing"
	"feedwatch/internal/pkg/config"
	"feedwatch/internal/usecase/discovery"
	feedUC "feedwatch/internal/usecase/feed"
	fetchUC "feedwatch/internal/usecase/fetch"
	"feedwatch/internal/usecase/health"
	"feedwatch/internal/usecase/retention"
)

func main() {
	logger := initLogger()
	if err := run(logger); err != nil {
		logger.Error("worker exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// initLogger initializes the JSON logger from LOG_LEVEL and makes it the default.
func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 多重起動防止
	lockPath := config.LoadEnvString("WORKER_LOCK_FILE", filepath.Join(os.TempDir(), "feedwatch-worker.lock"))
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another feedwatch worker instance is already running")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release worker lock", slog.Any("error", err))
		}
	}()

	tp := tracing.InitProvider("feedwatch-worker")

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics()
	cfg := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("worker configuration: %w", err)
	}
	logger.Info("worker configuration loaded",
		slog.String("batch_schedule", cfg.BatchSchedule),
		slog.String("timezone", cfg.Timezone),
		slog.Int("fetch_workers", cfg.FetchWorkers),
		slog.Duration("run_timeout", cfg.RunTimeout),
		slog.Int("max_items", cfg.MaxItems),
		slog.Int("health_port", cfg.HealthPort))

	store, err := db.OpenStore(ctx, logger, config.NewConfigMetrics("store"))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", slog.Any("error", err))
		}
	}()

	feedService := feedUC.NewService(store.Feeds, db.DecodeFeeds, logger)
	seedFeeds(ctx, logger, feedService)

	parsedCache, closeCache := initCache(ctx, logger, cfg)
	defer closeCache()

	notifyService := initNotifyService(logger, cfg)

	fetchCfg := fetcher.LoadConfigFromEnv(logger, config.NewConfigMetrics("fetch"))
	if err := fetchCfg.Validate(); err != nil {
		return fmt.Errorf("fetch configuration: %w", err)
	}
	chain := fetcher.NewChain(fetchCfg, fetcher.WithObserver(metrics.RecordFetchAttempt))
	parser := scraper.NewFeedParser()

	discoveryService := discovery.NewService(store.Feeds, chain, parser, logger,
		discovery.WithTimeout(cfg.DiscoveryTimeout))
	retentionService := retention.NewService(store.Items, int64(cfg.MaxItems), cfg.CleanupBatchSize, logger)

	pipeline := fetchUC.NewService(fetchUC.Dependencies{
		Feeds:      store.Feeds,
		Items:      store.Items,
		Health:     store.Health,
		Fetcher:    chain,
		Heavy:      fetcher.NewHeavyFetcher(fetchCfg, nil),
		Parser:     parser,
		Extractor:  scraper.NewHTMLExtractor(logger),
		Normalizer: scraper.NewNormalizer(),
		Cache:      parsedCache,
		Notify:     notifyService,
		Discovery:  discoveryService,
		Retention:  retentionService,
		AutoPause: health.AutoPause{
			MaxConsecutive: cfg.MaxConsecutiveFailures,
			MaxTotal:       cfg.MaxTotalFailures,
		},
		Logger:         logger,
		DefaultTimeout: fetchCfg.Timeout,
	})

	scheduler := workerPkg.NewScheduler(workerPkg.SchedulerConfig{
		FetchWorkers: cfg.FetchWorkers,
		RunTimeout:   cfg.RunTimeout,
		Location:     cfg.Location(),
	}, pipeline, logger, workerMetrics)

	batch := newBatchJob(logger, feedService, scheduler, retentionService)
	if err := scheduler.AddBatchJob(cfg.BatchSchedule, "reconcile", batch); err != nil {
		return err
	}
	// 起動直後にスケジュールを登録
	scheduler.RunBatch("reconcile", batch)

	// Start health check server; it keeps serving while the scheduler drains
	serverCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()
	healthAddr := fmt.Sprintf(":%d", cfg.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger, notifyService)
	go func() {
		if err := healthServer.Start(serverCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	scheduler.Start()
	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.Int("feeds_scheduled", len(scheduler.Registered())),
		slog.String("lock", lockPath))

	<-ctx.Done()
	logger.Info("shutdown signal received")
	healthServer.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler stop timed out, in-flight runs cancelled", slog.Any("error", err))
	}
	if err := discoveryService.Shutdown(shutdownCtx); err != nil {
		logger.Warn("discovery shutdown incomplete", slog.Any("error", err))
	}
	if err := notifyService.Shutdown(shutdownCtx); err != nil {
		logger.Warn("notification shutdown incomplete", slog.Any("error", err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracer provider shutdown failed", slog.Any("error", err))
	}

	logger.Info("worker stopped")
	return nil
}

// seedFeeds registers the bundled feeds. Feeds already present are skipped.
func seedFeeds(ctx context.Context, logger *slog.Logger, svc *feedUC.Service) {
	if !config.LoadEnvBool("SEED_FEEDS", true).Value {
		return
	}
	feeds, err := db.SeedFeeds()
	if err != nil {
		logger.Error("failed to decode seed feeds", slog.Any("error", err))
		return
	}
	res, err := svc.RegisterAll(ctx, feeds)
	if err != nil {
		logger.Error("failed to register seed feeds", slog.Any("error", err))
		return
	}
	logger.Info("seed feeds registered",
		slog.Int("created", len(res.Created)),
		slog.Int("skipped", len(res.Skipped)))
}

// initCache returns the parsed-content cache backed by Redis when REDIS_URL
// is set and reachable, in-process memory otherwise.
func initCache(ctx context.Context, logger *slog.Logger, cfg *workerPkg.WorkerConfig) (*cache.ParsedCache, func()) {
	redisURL := config.LoadEnvString("REDIS_URL", "")
	if redisURL != "" {
		client, err := cache.ConnectRedis(ctx, redisURL)
		if err == nil {
			logger.Info("parsed cache initialized", slog.String("backend", "redis"))
			return cache.NewParsedCache(cache.NewRedis(client, cache.DefaultKeyPrefix), cfg.CacheTTL, logger), func() {
				if err := client.Close(); err != nil {
					logger.Warn("failed to close redis client", slog.Any("error", err))
				}
			}
		}
		logger.Warn("redis unavailable, using in-memory cache", slog.Any("error", err))
	}

	logger.Info("parsed cache initialized", slog.String("backend", "memory"))
	return cache.NewParsedCache(cache.NewMemory(cache.MemoryConfig{}), cfg.CacheTTL, logger), func() {}
}

// newBatchJob reconciles schedules with the store, sweeps retention and
// refreshes the feeds-by-status gauge.
func newBatchJob(logger *slog.Logger, feeds *feedUC.Service, scheduler *workerPkg.Scheduler, ret *retention.Service) workerPkg.BatchFunc {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		all, err := feeds.List(ctx)
		if err != nil {
			return fmt.Errorf("list feeds: %w", err)
		}
		added, removed, err := scheduler.Reconcile(all)
		if err != nil {
			return fmt.Errorf("reconcile schedules: %w", err)
		}

		deleted, err := ret.Enforce(ctx)
		if err != nil {
			return fmt.Errorf("retention sweep: %w", err)
		}

		if _, err := feeds.CountByStatus(ctx); err != nil {
			logger.Warn("failed to count feeds by status", slog.Any("error", err))
		}

		logger.Info("batch reconcile completed",
			slog.Int("feeds", len(all)),
			slog.Int("scheduled", added),
			slog.Int("unscheduled", removed),
			slog.Int64("items_deleted", deleted))
		return nil
	}
}
