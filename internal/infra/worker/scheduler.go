package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/usecase/fetch"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
)

// ErrStopped is returned by Register after Stop.
var ErrStopped = errors.New("scheduler stopped")

// Runner executes one pipeline pass for a feed.
type Runner interface {
	Run(ctx context.Context, feedID int64) (*fetch.RunResult, error)
}

// SchedulerConfig sizes the pools.
type SchedulerConfig struct {
	FetchWorkers int
	RunTimeout   time.Duration
	Location     *time.Location
}

// Scheduler fires per-feed pipeline runs on fixed intervals and runs batch
// jobs on cron expressions.
//
// Runs for one feed never overlap: a firing that arrives while the feed's
// previous run is in flight (or waiting for a worker) sets a pending flag,
// and the run loop executes once more when the current run ends. Any number
// of deferred firings collapse into that single re-run.
type Scheduler struct {
	cron       *cron.Cron
	runner     Runner
	logger     *slog.Logger
	metrics    *WorkerMetrics
	fetchPool  *semaphore.Weighted
	batchPool  *semaphore.Weighted
	runTimeout time.Duration
	unit       time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[int64]scheduledFeed
	runs    map[int64]*runState
	stopped bool
}

type scheduledFeed struct {
	entry    cron.EntryID
	interval int
}

type runState struct {
	pending bool
}

// NewScheduler builds a Scheduler. metrics may be nil.
func NewScheduler(cfg SchedulerConfig, runner Runner, logger *slog.Logger, metrics *WorkerMetrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = DefaultConfig().FetchWorkers
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultConfig().RunTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		runner:     runner,
		logger:     logger,
		metrics:    metrics,
		fetchPool:  semaphore.NewWeighted(int64(cfg.FetchWorkers)),
		batchPool:  semaphore.NewWeighted(BatchWorkers),
		runTimeout: cfg.RunTimeout,
		unit:       time.Minute,
		ctx:        ctx,
		cancel:     cancel,
		entries:    make(map[int64]scheduledFeed),
		runs:       make(map[int64]*runState),
	}
}

// Register schedules feedID every intervalMinutes, replacing any prior
// schedule. Non-positive intervals use entity.DefaultIntervalMinutes.
func (s *Scheduler) Register(feedID int64, intervalMinutes int) error {
	if intervalMinutes <= 0 {
		intervalMinutes = entity.DefaultIntervalMinutes
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}

	if prev, ok := s.entries[feedID]; ok {
		s.cron.Remove(prev.entry)
	}
	id := s.cron.Schedule(
		cron.Every(time.Duration(intervalMinutes)*s.unit),
		cron.FuncJob(func() { s.Trigger(feedID) }),
	)
	s.entries[feedID] = scheduledFeed{entry: id, interval: intervalMinutes}
	s.metrics.SetScheduledFeeds(len(s.entries))

	s.logger.Debug("feed scheduled",
		slog.Int64("feed_id", feedID),
		slog.Int("interval_minutes", intervalMinutes))
	return nil
}

// Unregister drops feedID's schedule. Unknown ids are ignored. A run
// already in flight finishes but its pending re-run is discarded.
func (s *Scheduler) Unregister(feedID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.entries[feedID]
	if !ok {
		return
	}
	s.cron.Remove(prev.entry)
	delete(s.entries, feedID)
	if st, ok := s.runs[feedID]; ok {
		st.pending = false
	}
	s.metrics.SetScheduledFeeds(len(s.entries))

	s.logger.Info("feed unscheduled", slog.Int64("feed_id", feedID))
}

// Registered returns the scheduled feed ids in ascending order.
func (s *Scheduler) Registered() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Reconcile makes the registrations match feeds: active feeds are
// registered (re-registered only when their interval changed) and every
// other scheduled id is dropped. Paused feeds stay registered; the
// pipeline skips them.
func (s *Scheduler) Reconcile(feeds []*entity.Feed) (added, removed int, err error) {
	want := make(map[int64]int, len(feeds))
	for _, f := range feeds {
		if f == nil || !f.Active {
			continue
		}
		interval := f.IntervalMinutes
		if interval <= 0 {
			interval = entity.DefaultIntervalMinutes
		}
		want[f.ID] = interval
	}

	s.mu.Lock()
	var stale []int64
	var changed []int64
	for id, sf := range s.entries {
		interval, ok := want[id]
		if !ok {
			stale = append(stale, id)
		} else if interval != sf.interval {
			changed = append(changed, id)
		}
	}
	var missing []int64
	for id := range want {
		if _, ok := s.entries[id]; !ok {
			missing = append(missing, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.Unregister(id)
		removed++
	}
	for _, id := range changed {
		if err := s.Register(id, want[id]); err != nil {
			return added, removed, err
		}
	}
	for _, id := range missing {
		if err := s.Register(id, want[id]); err != nil {
			return added, removed, err
		}
		added++
	}
	return added, removed, nil
}

// Trigger enqueues one run for feedID, coalescing with a run in flight.
func (s *Scheduler) Trigger(feedID int64) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if st, ok := s.runs[feedID]; ok {
		st.pending = true
		s.mu.Unlock()
		s.metrics.RecordDeferred()
		s.logger.Debug("run deferred, previous run in flight", slog.Int64("feed_id", feedID))
		return
	}
	s.runs[feedID] = &runState{}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.loop(feedID)
}

func (s *Scheduler) loop(feedID int64) {
	defer s.wg.Done()
	for {
		s.runOnce(feedID)

		s.mu.Lock()
		st := s.runs[feedID]
		if st.pending && !s.stopped {
			st.pending = false
			s.mu.Unlock()
			continue
		}
		delete(s.runs, feedID)
		s.mu.Unlock()
		return
	}
}

func (s *Scheduler) runOnce(feedID int64) {
	if err := s.fetchPool.Acquire(s.ctx, 1); err != nil {
		return
	}
	defer s.fetchPool.Release(1)

	ctx, cancel := context.WithTimeout(s.ctx, s.runTimeout)
	defer cancel()

	s.metrics.RunStarted()
	res, err := s.safeRun(ctx, feedID)
	if err != nil {
		s.metrics.RunFinished("error")
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("pipeline run failed",
				slog.Int64("feed_id", feedID),
				slog.Any("error", err))
		}
		return
	}
	s.metrics.RunFinished(string(res.Outcome))

	if res.Unregister {
		s.Unregister(feedID)
	}
}

func (s *Scheduler) safeRun(ctx context.Context, feedID int64) (res *fetch.RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	res, err = s.runner.Run(ctx, feedID)
	if err == nil && res == nil {
		err = errors.New("runner returned no result")
	}
	return res, err
}

// BatchFunc is a batch job body.
type BatchFunc func(ctx context.Context) error

// AddBatchJob schedules fn on a cron expression. Batch jobs share a
// single-slot pool, so they never run concurrently with each other.
func (s *Scheduler) AddBatchJob(spec, name string, fn BatchFunc) error {
	if _, err := s.cron.AddFunc(spec, func() { s.RunBatch(name, fn) }); err != nil {
		return fmt.Errorf("add batch job %s: %w", name, err)
	}
	return nil
}

// RunBatch executes fn on the batch pool and waits for it.
func (s *Scheduler) RunBatch(name string, fn BatchFunc) {
	if err := s.batchPool.Acquire(s.ctx, 1); err != nil {
		return
	}
	defer s.batchPool.Release(1)

	start := time.Now()
	s.logger.Info("batch job started", slog.String("job", name))

	err := fn(s.ctx)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.RecordBatchRun("failure", elapsed.Seconds())
		s.logger.Error("batch job failed",
			slog.String("job", name),
			slog.Duration("duration", elapsed),
			slog.Any("error", err))
		return
	}
	s.metrics.RecordBatchRun("success", elapsed.Seconds())
	s.logger.Info("batch job completed",
		slog.String("job", name),
		slog.Duration("duration", elapsed))
}

// Start starts the cron timers.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts new firings and waits for in-flight runs until ctx is done,
// after which their contexts are cancelled. Pending re-runs are dropped.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{slog.Any("error", err)}, keysAndValues...)...)
}
