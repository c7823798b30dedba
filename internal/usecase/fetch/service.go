package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/infra/cache"
	"feedwatch/internal/infra/fetcher"
	"feedwatch/internal/infra/scraper"
	"feedwatch/internal/observability/logging"
	"feedwatch/internal/observability/metrics"
	"feedwatch/internal/observability/tracing"
	"feedwatch/internal/repository"
	"feedwatch/internal/usecase/health"
	"feedwatch/internal/usecase/notify"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// FailureWarningThreshold is the consecutive failure count that raises the
// warning notification. It fires once per failure streak.
const FailureWarningThreshold = 3

// deadlineRecordTimeout bounds the store writes that record a run whose
// deadline expired.
const deadlineRecordTimeout = 10 * time.Second

// FeedFetcher is the light fetch path; fetcher.Chain satisfies it.
type FeedFetcher interface {
	Fetch(ctx context.Context, req fetcher.Request) (*fetcher.Result, error)
}

// HeavyRenderer is the heavy fetch path; fetcher.HeavyFetcher satisfies it.
type HeavyRenderer interface {
	Render(ctx context.Context, pageURL string) (*fetcher.Page, error)
}

// Parser turns a feed payload into raw entries.
type Parser interface {
	Parse(body string) ([]scraper.Entry, error)
}

// Extractor turns a rendered page into raw entries.
type Extractor interface {
	Extract(html, pageURL string) ([]scraper.Entry, error)
}

// Normalizer maps raw entries to items, dropping unusable ones.
type Normalizer interface {
	Normalize(feedID int64, baseURL string, entries []scraper.Entry) ([]*entity.Item, int)
}

// ParsedCache holds recent parse results keyed by feed URL.
type ParsedCache interface {
	Get(ctx context.Context, feedURL string) (*cache.Parsed, bool)
	Set(ctx context.Context, feedURL string, p *cache.Parsed)
}

// Discoverer starts background alternative discovery.
type Discoverer interface {
	Spawn(feed *entity.Feed) error
}

// Retention trims the item store after a successful pass.
type Retention interface {
	EnforceBestEffort(ctx context.Context)
}

// Outcome is the result class of one Run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeCached  Outcome = "cached"
)

// Skip reasons.
const (
	SkipMissing     = "missing"
	SkipInactive    = "inactive"
	SkipPaused      = "paused"
	SkipRateLimited = "rate_limited"
)

// RunResult describes a finished Run.
type RunResult struct {
	FeedID    int64
	RunID     string
	Outcome   Outcome
	Strategy  entity.Strategy
	UsedHeavy bool
	Inserted  int
	Updated   int
	Dropped   int
	// Status is the feed status after the run.
	Status      entity.FeedStatus
	FailureKind entity.FailureKind
	Error       string
	// SkipReason is set for OutcomeSkipped.
	SkipReason string
	// Unregister asks the scheduler to drop the feed's schedule.
	Unregister bool
	Duration   time.Duration
}

// Dependencies are the collaborators of a Service. Cache, Heavy, Extractor,
// Discovery and Retention may be nil to disable that step.
type Dependencies struct {
	Feeds      repository.FeedRepository
	Items      repository.ItemRepository
	Health     repository.HealthLogRepository
	Fetcher    FeedFetcher
	Heavy      HeavyRenderer
	Parser     Parser
	Extractor  Extractor
	Normalizer Normalizer
	Cache      ParsedCache
	Notify     notify.Service
	Discovery  Discoverer
	Retention  Retention
	AutoPause  health.AutoPause
	Logger     *slog.Logger
	Now        func() time.Time
	// DefaultTimeout is the per-attempt timeout for feeds without an override.
	DefaultTimeout time.Duration
}

// Service runs the ingestion pipeline. The caller guarantees at most one
// concurrent Run per feed.
type Service struct {
	deps     Dependencies
	tracker  *health.Tracker
	upserter *Upserter
	machine  health.StateMachine
}

// NewService wires a Service from deps.
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		deps:     deps,
		tracker:  health.NewTracker(deps.Health, deps.Now),
		upserter: NewUpserter(deps.Items, deps.Logger),
	}
}

// attempt is what the fetch and parse stage produced.
type attempt struct {
	entries    []scraper.Entry
	baseURL    string
	strategy   entity.Strategy
	statusCode int
	usedHeavy  bool
	elapsed    time.Duration
	skipped    bool

	err  error
	kind entity.FailureKind
}

// Run executes one pipeline pass for feedID.
//
// A missing or inactive feed is a skip with Unregister set. A paused feed
// and a rate-limited host inside its cool-down are skips that keep the
// schedule. Fetch failures are recorded against the feed and returned in
// the result; only store errors and cancellation are returned as errors.
func (s *Service) Run(ctx context.Context, feedID int64) (*RunResult, error) {
	start := s.deps.Now()
	runID := logging.NewRunID()
	ctx, logger := logging.WithRunID(ctx, s.deps.Logger, runID)
	ctx, span := tracing.StartSpan(ctx, "fetch.Service.Run",
		attribute.Int64("feed.id", feedID),
		attribute.String("run.id", runID))
	defer span.End()

	res := &RunResult{FeedID: feedID, RunID: runID}
	finish := func() {
		res.Duration = s.deps.Now().Sub(start)
		span.SetAttributes(attribute.String("run.outcome", string(res.Outcome)))
		metrics.RecordPipelineRun(string(res.Outcome), res.Duration)
	}

	feed, err := s.deps.Feeds.Get(ctx, feedID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load feed")
		return nil, fmt.Errorf("get feed %d: %w", feedID, err)
	}
	switch {
	case feed == nil:
		res.Outcome, res.SkipReason, res.Unregister = OutcomeSkipped, SkipMissing, true
	case !feed.Active:
		res.Outcome, res.SkipReason, res.Unregister = OutcomeSkipped, SkipInactive, true
	case feed.Status == entity.FeedStatusPaused:
		res.Outcome, res.SkipReason, res.Status = OutcomeSkipped, SkipPaused, feed.Status
	}
	if res.Outcome == OutcomeSkipped {
		logger.Info("feed run skipped", slog.Int64("feed_id", feedID), slog.String("reason", res.SkipReason))
		finish()
		return res, nil
	}
	logger = logging.WithFeed(logger, feed)
	res.Status = feed.Status

	if s.deps.Cache != nil {
		if parsed, ok := s.deps.Cache.Get(ctx, feed.URL); ok {
			if err := s.applyCached(ctx, logger, feed, parsed, res); err != nil {
				span.RecordError(err)
				return nil, err
			}
			finish()
			return res, nil
		}
	}

	at := s.fetchAndParse(ctx, logger, feed)
	if at.skipped {
		res.Outcome, res.SkipReason = OutcomeSkipped, SkipRateLimited
		logger.Info("rate-limited feed inside cool-down, skipped")
		finish()
		return res, nil
	}
	if at.err != nil && ctx.Err() != nil {
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// shutdown or caller cancel: nothing is recorded against the feed
			return nil, fmt.Errorf("run feed %d: %w", feedID, ctx.Err())
		}
		// the run deadline fired mid-fetch; it counts as a timeout failure
		at.kind = entity.FailureTimeout
		at.err = fmt.Errorf("run deadline exceeded: %w", at.err)
		if at.elapsed == 0 {
			at.elapsed = s.deps.Now().Sub(start)
		}
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deadlineRecordTimeout)
		defer cancel()
		ctx = recordCtx
	}
	res.Strategy = at.strategy

	if at.err != nil {
		if err := s.handleFailure(ctx, logger, feed, at, res); err != nil {
			span.RecordError(err)
			return nil, err
		}
		span.SetStatus(codes.Error, string(at.kind))
		finish()
		return res, nil
	}

	if err := s.handleSuccess(ctx, logger, feed, at, res); err != nil {
		span.RecordError(err)
		return nil, err
	}
	finish()
	return res, nil
}

// applyCached upserts a cached parse result. Health and counters are left
// untouched since nothing was fetched.
func (s *Service) applyCached(ctx context.Context, logger *slog.Logger, feed *entity.Feed, parsed *cache.Parsed, res *RunResult) error {
	baseURL := parsed.BaseURL
	if baseURL == "" {
		baseURL = feed.URL
	}
	items, dropped := s.deps.Normalizer.Normalize(feed.ID, baseURL, parsed.Entries)
	stats, err := s.upserter.Apply(ctx, items)
	if err != nil {
		return fmt.Errorf("upsert cached items: %w", err)
	}
	metrics.RecordItems(stats.Inserted, stats.Updated, dropped)

	res.Outcome = OutcomeCached
	res.Strategy = parsed.Strategy
	res.UsedHeavy = parsed.Heavy
	res.Inserted, res.Updated, res.Dropped = stats.Inserted, stats.Updated, dropped

	logger.Info("feed served from parsed cache",
		slog.Int("inserted", stats.Inserted),
		slog.Int("updated", stats.Updated),
		slog.Time("cached_at", parsed.CachedAt))

	if stats.Inserted > 0 && s.deps.Retention != nil {
		s.deps.Retention.EnforceBestEffort(ctx)
	}
	return nil
}

// fetchAndParse runs the light path and falls back to the heavy path when
// the feed is flagged or the light payload had no usable entry.
func (s *Service) fetchAndParse(ctx context.Context, logger *slog.Logger, feed *entity.Feed) attempt {
	start := s.deps.Now()

	if feed.RequiresHeavy && s.deps.Heavy != nil {
		at := s.heavy(ctx, logger, feed)
		at.elapsed = s.deps.Now().Sub(start)
		return at
	}

	result, err := s.deps.Fetcher.Fetch(ctx, fetcher.Request{
		URL:           feed.URL,
		Timeout:       feed.Timeout(s.deps.DefaultTimeout),
		LastSuccessAt: feed.LastSuccessAt,
	})
	if err != nil {
		at := attempt{err: err, kind: entity.FailureUnknown, strategy: entity.StrategyNone}
		if fe, ok := fetcher.AsFetchError(err); ok {
			at.kind, at.statusCode = fe.Kind, fe.StatusCode
			if fe.Strategy != "" {
				at.strategy = fe.Strategy
			}
		} else {
			at.kind = entity.ClassifyFailure(0, "", err)
		}
		at.elapsed = s.deps.Now().Sub(start)
		return at
	}
	if result.Skipped {
		return attempt{skipped: true, strategy: entity.StrategyNone}
	}

	light := attempt{
		baseURL:    feed.URL,
		strategy:   result.Strategy,
		statusCode: result.StatusCode,
	}
	entries, perr := s.deps.Parser.Parse(result.Body)
	if perr != nil {
		logger.Warn("feed payload did not parse", slog.Any("error", perr))
	} else {
		light.entries = entries
	}

	if (perr != nil || !s.hasUsable(feed, entries)) && s.deps.Heavy != nil {
		heavy := s.heavy(ctx, logger, feed)
		if heavy.err == nil {
			heavy.elapsed = s.deps.Now().Sub(start)
			return heavy
		}
		if ctx.Err() != nil {
			return attempt{err: ctx.Err(), kind: entity.FailureUnknown}
		}
		logger.Warn("heavy path failed, keeping light result",
			slog.String("kind", string(heavy.kind)),
			slog.Any("error", heavy.err))
	}

	light.elapsed = s.deps.Now().Sub(start)
	return light
}

func (s *Service) hasUsable(feed *entity.Feed, entries []scraper.Entry) bool {
	if len(entries) == 0 {
		return false
	}
	items, _ := s.deps.Normalizer.Normalize(feed.ID, feed.URL, entries)
	return len(items) > 0
}

// heavy renders the feed URL and extracts entries from the page.
func (s *Service) heavy(ctx context.Context, logger *slog.Logger, feed *entity.Feed) attempt {
	logger.Info("using heavy fetch path", slog.Bool("flagged", feed.RequiresHeavy))

	page, err := s.deps.Heavy.Render(ctx, feed.URL)
	if err != nil {
		metrics.RecordHeavyPath(false)
		at := attempt{err: err, strategy: entity.StrategyHeavy, kind: entity.ClassifyFailure(0, "", err)}
		if fe, ok := fetcher.AsFetchError(err); ok {
			at.kind, at.statusCode = fe.Kind, fe.StatusCode
		}
		return at
	}

	var entries []scraper.Entry
	if s.deps.Extractor != nil {
		entries, err = s.deps.Extractor.Extract(page.HTML, page.URL)
	} else {
		entries, err = s.deps.Parser.Parse(page.HTML)
	}
	if err == nil && !s.hasUsable(feed, entries) {
		err = ErrNoEntries
	}
	if err != nil {
		metrics.RecordHeavyPath(false)
		return attempt{
			err:        fmt.Errorf("heavy extract: %w", err),
			kind:       entity.FailureMalformed,
			strategy:   entity.StrategyHeavy,
			statusCode: page.StatusCode,
		}
	}

	metrics.RecordHeavyPath(true)
	return attempt{
		entries:    entries,
		baseURL:    page.URL,
		strategy:   entity.StrategyHeavy,
		statusCode: page.StatusCode,
		usedHeavy:  true,
	}
}

func (s *Service) handleSuccess(ctx context.Context, logger *slog.Logger, feed *entity.Feed, at attempt, res *RunResult) error {
	items, dropped := s.deps.Normalizer.Normalize(feed.ID, at.baseURL, at.entries)
	stats, err := s.upserter.Apply(ctx, items)
	if err != nil {
		return fmt.Errorf("upsert items: %w", err)
	}
	metrics.RecordItems(stats.Inserted, stats.Updated, dropped)

	if s.deps.Cache != nil && len(items) > 0 {
		s.deps.Cache.Set(ctx, feed.URL, &cache.Parsed{
			Entries:  at.entries,
			BaseURL:  at.baseURL,
			Strategy: at.strategy,
			Heavy:    at.usedHeavy,
			CachedAt: s.deps.Now().UTC(),
		})
	}

	now := s.deps.Now()
	if err := s.deps.Feeds.RecordSuccess(ctx, feed.ID, now, at.usedHeavy); err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	feed.ConsecutiveFailures = 0
	feed.LastError = ""

	if _, err := s.tracker.RecordAttempt(ctx, health.Attempt{
		FeedID:       feed.ID,
		Success:      true,
		StatusCode:   at.statusCode,
		ResponseTime: at.elapsed,
		Strategy:     at.strategy,
	}); err != nil {
		return err
	}

	decision, err := s.evaluate(ctx, feed, health.Input{Current: feed.Status, Success: true})
	if err != nil {
		return err
	}
	if err := s.applyStatus(ctx, logger, feed, decision.Next, decision.Rule); err != nil {
		return err
	}
	if decision.Rule == "recovered" {
		s.notify(ctx, logger, entity.NewFeedEvent(entity.FeedEventRecovered, feed, now))
	}

	res.Outcome = OutcomeSuccess
	res.UsedHeavy = at.usedHeavy
	res.Inserted, res.Updated, res.Dropped = stats.Inserted, stats.Updated, dropped
	res.Status = feed.Status

	logger.Info("feed fetched",
		slog.String("strategy", string(at.strategy)),
		slog.Bool("heavy", at.usedHeavy),
		slog.Int("inserted", stats.Inserted),
		slog.Int("updated", stats.Updated),
		slog.Int("skipped", stats.Skipped),
		slog.Int("dropped", dropped),
		slog.Duration("elapsed", at.elapsed))

	if s.deps.Retention != nil {
		s.deps.Retention.EnforceBestEffort(ctx)
	}
	return nil
}

func (s *Service) handleFailure(ctx context.Context, logger *slog.Logger, feed *entity.Feed, at attempt, res *RunResult) error {
	now := s.deps.Now()
	errText := at.err.Error()

	counts, err := s.deps.Feeds.RecordFailure(ctx, feed.ID, now, errText)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	feed.ConsecutiveFailures = counts.Consecutive
	feed.TotalFailures = counts.Total
	feed.LastError = errText

	if _, err := s.tracker.RecordAttempt(ctx, health.Attempt{
		FeedID:       feed.ID,
		Success:      false,
		StatusCode:   at.statusCode,
		ResponseTime: at.elapsed,
		Strategy:     at.strategy,
		ErrorMessage: errText,
		FailureKind:  at.kind,
	}); err != nil {
		return err
	}

	decision, err := s.evaluate(ctx, feed, health.Input{
		Current:     feed.Status,
		FailureKind: at.kind,
		Consecutive: counts.Consecutive,
	})
	if err != nil {
		return err
	}

	next, rule := decision.Next, decision.Rule
	paused, reason := s.deps.AutoPause.Check(counts)
	if paused {
		next, rule = entity.FeedStatusPaused, "auto_pause_"+reason
	}
	if err := s.applyStatus(ctx, logger, feed, next, rule); err != nil {
		return err
	}

	logger.Warn("feed fetch failed",
		slog.String("strategy", string(at.strategy)),
		slog.String("kind", string(at.kind)),
		slog.Int("status_code", at.statusCode),
		slog.Int("consecutive_failures", counts.Consecutive),
		slog.Int("total_failures", counts.Total),
		slog.Any("error", at.err))

	if counts.Consecutive == FailureWarningThreshold {
		s.notify(ctx, logger, entity.NewFeedEvent(entity.FeedEventConsecutiveFailures, feed, now))
	}
	switch {
	case paused:
		metrics.RecordAutoPause(reason)
		event := entity.NewFeedEvent(entity.FeedEventAutoPaused, feed, now)
		event.Reason = reason
		s.notify(ctx, logger, event)
	case decision.Discover && s.deps.Discovery != nil:
		if err := s.deps.Discovery.Spawn(feed); err != nil {
			logger.Warn("could not start alternative discovery", slog.Any("error", err))
		}
	}

	res.Outcome = OutcomeFailed
	res.FailureKind = at.kind
	res.Error = errText
	res.Status = feed.Status
	return nil
}

// evaluate loads the recent log and runs the state machine.
func (s *Service) evaluate(ctx context.Context, feed *entity.Feed, in health.Input) (health.Decision, error) {
	recent, err := s.tracker.Recent(ctx, feed.ID, entity.HealthWindow)
	if err != nil {
		return health.Decision{}, err
	}
	in.Recent = recent
	return s.machine.Evaluate(in), nil
}

func (s *Service) applyStatus(ctx context.Context, logger *slog.Logger, feed *entity.Feed, next entity.FeedStatus, rule string) error {
	if next == feed.Status {
		return nil
	}
	if err := s.deps.Feeds.UpdateStatus(ctx, feed.ID, next); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	metrics.RecordStatusTransition(feed.Status, next)
	logger.Info("feed status changed",
		slog.String("from", string(feed.Status)),
		slog.String("to", string(next)),
		slog.String("rule", rule))
	feed.Status = next
	return nil
}

func (s *Service) notify(ctx context.Context, logger *slog.Logger, event *entity.FeedEvent) {
	if s.deps.Notify == nil {
		return
	}
	if err := s.deps.Notify.NotifyFeedEvent(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("notification dispatch failed",
			slog.String("event", string(event.Kind)),
			slog.Any("error", err))
	}
}
