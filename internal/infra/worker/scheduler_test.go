package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/usecase/fetch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* ───────── モック実装 ───────── */

type fakeRunner struct {
	mu      sync.Mutex
	calls   map[int64]int
	active  map[int64]int
	overlap bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	gate   chan struct{} // nil: no blocking
	result func(feedID int64) (*fetch.RunResult, error)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: map[int64]int{}, active: map[int64]int{}}
}

func (r *fakeRunner) Run(ctx context.Context, feedID int64) (*fetch.RunResult, error) {
	r.mu.Lock()
	r.calls[feedID]++
	r.active[feedID]++
	if r.active[feedID] > 1 {
		r.overlap = true
	}
	r.mu.Unlock()

	n := r.inFlight.Add(1)
	for {
		m := r.maxInFlight.Load()
		if n <= m || r.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	defer func() {
		r.inFlight.Add(-1)
		r.mu.Lock()
		r.active[feedID]--
		r.mu.Unlock()
	}()

	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.result != nil {
		return r.result(feedID)
	}
	return &fetch.RunResult{FeedID: feedID, Outcome: fetch.OutcomeSuccess}, nil
}

func (r *fakeRunner) count(feedID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[feedID]
}

func newTestScheduler(t *testing.T, runner Runner, workers int) *Scheduler {
	t.Helper()
	s := NewScheduler(SchedulerConfig{FetchWorkers: workers, RunTimeout: 5 * time.Second}, runner, discardLogger(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestScheduler_RegisterIsIdempotent(t *testing.T) {
	s := newTestScheduler(t, newFakeRunner(), 1)

	require.NoError(t, s.Register(3, 10))
	require.NoError(t, s.Register(3, 20))
	require.NoError(t, s.Register(1, 0))
	assert.Equal(t, []int64{1, 3}, s.Registered())
	assert.Len(t, s.cron.Entries(), 2)
	assert.Equal(t, entity.DefaultIntervalMinutes, s.entries[1].interval)
	assert.Equal(t, 20, s.entries[3].interval)

	s.Unregister(3)
	s.Unregister(3)
	s.Unregister(99)
	assert.Equal(t, []int64{1}, s.Registered())
	assert.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_FiringsCoalesceWhileRunning(t *testing.T) {
	runner := newFakeRunner()
	runner.gate = make(chan struct{})
	s := newTestScheduler(t, runner, 4)

	s.Trigger(7)
	require.Eventually(t, func() bool { return runner.count(7) == 1 }, time.Second, 5*time.Millisecond)

	// three firings during the run collapse into one re-run
	s.Trigger(7)
	s.Trigger(7)
	s.Trigger(7)

	runner.gate <- struct{}{}
	require.Eventually(t, func() bool { return runner.count(7) == 2 }, time.Second, 5*time.Millisecond)
	runner.gate <- struct{}{}

	s.wg.Wait()
	assert.Equal(t, 2, runner.count(7))
	assert.False(t, runner.overlap, "runs for one feed overlapped")
}

func TestScheduler_FetchPoolBoundsConcurrency(t *testing.T) {
	runner := newFakeRunner()
	runner.gate = make(chan struct{})
	s := newTestScheduler(t, runner, 2)

	for id := int64(1); id <= 5; id++ {
		s.Trigger(id)
	}
	require.Eventually(t, func() bool { return runner.inFlight.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 2, runner.inFlight.Load())

	close(runner.gate)
	s.wg.Wait()
	assert.EqualValues(t, 2, runner.maxInFlight.Load())
	for id := int64(1); id <= 5; id++ {
		assert.Equal(t, 1, runner.count(id))
	}
}

func TestScheduler_SkipWithUnregisterDropsSchedule(t *testing.T) {
	runner := newFakeRunner()
	runner.result = func(feedID int64) (*fetch.RunResult, error) {
		return &fetch.RunResult{
			FeedID:     feedID,
			Outcome:    fetch.OutcomeSkipped,
			SkipReason: fetch.SkipMissing,
			Unregister: feedID == 2,
		}, nil
	}
	s := newTestScheduler(t, runner, 2)
	require.NoError(t, s.Register(1, 5))
	require.NoError(t, s.Register(2, 5))

	s.Trigger(1)
	s.Trigger(2)
	s.wg.Wait()

	assert.Equal(t, []int64{1}, s.Registered())
}

func TestScheduler_RunErrorsAndPanicsAreContained(t *testing.T) {
	runner := newFakeRunner()
	runner.result = func(feedID int64) (*fetch.RunResult, error) {
		switch feedID {
		case 1:
			return nil, errors.New("store down")
		case 2:
			panic("boom")
		}
		return nil, nil
	}
	s := newTestScheduler(t, runner, 3)
	require.NoError(t, s.Register(1, 5))

	s.Trigger(1)
	s.Trigger(2)
	s.Trigger(3)
	s.wg.Wait()

	// errors keep the schedule
	assert.Equal(t, []int64{1}, s.Registered())
	assert.Empty(t, s.runs)
}

func TestScheduler_Reconcile(t *testing.T) {
	s := newTestScheduler(t, newFakeRunner(), 1)
	require.NoError(t, s.Register(1, 30))
	require.NoError(t, s.Register(2, 30))
	require.NoError(t, s.Register(9, 30))
	entry1 := s.entries[1].entry

	added, removed, err := s.Reconcile([]*entity.Feed{
		{ID: 1, Active: true, IntervalMinutes: 30},
		{ID: 2, Active: true, IntervalMinutes: 60},
		{ID: 3, Active: true},
		{ID: 4, Active: false, IntervalMinutes: 5},
		{ID: 5, Active: true, Status: entity.FeedStatusPaused, IntervalMinutes: 15},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, added)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []int64{1, 2, 3, 5}, s.Registered())
	assert.Equal(t, entry1, s.entries[1].entry, "unchanged feed must keep its timer")
	assert.Equal(t, 60, s.entries[2].interval)
	assert.Equal(t, entity.DefaultIntervalMinutes, s.entries[3].interval)
}

func TestScheduler_TimerFires(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, runner, 1)
	s.unit = time.Second

	require.NoError(t, s.Register(4, 1))
	s.Start()

	require.Eventually(t, func() bool { return runner.count(4) >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestScheduler_BatchJobsNeverOverlap(t *testing.T) {
	s := newTestScheduler(t, newFakeRunner(), 1)

	var running, overlapped atomic.Int32
	var ran atomic.Int32
	job := func(ctx context.Context) error {
		if running.Add(1) > 1 {
			overlapped.Store(1)
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		ran.Add(1)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RunBatch("reconcile", job)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 3, ran.Load())
	assert.Zero(t, overlapped.Load())

	s.RunBatch("failing", func(context.Context) error { return errors.New("nope") })
}

func TestScheduler_AddBatchJob(t *testing.T) {
	s := newTestScheduler(t, newFakeRunner(), 1)

	require.NoError(t, s.AddBatchJob("*/15 * * * *", "sweep", func(context.Context) error { return nil }))
	err := s.AddBatchJob("not a cron", "bad", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add batch job bad")
}

func TestScheduler_StopWaitsForInFlight(t *testing.T) {
	runner := newFakeRunner()
	runner.gate = make(chan struct{})
	s := NewScheduler(SchedulerConfig{FetchWorkers: 1, RunTimeout: 5 * time.Second}, runner, discardLogger(), nil)
	s.Start()

	s.Trigger(1)
	require.Eventually(t, func() bool { return runner.count(1) == 1 }, time.Second, 5*time.Millisecond)
	s.Trigger(1) // pending re-run is dropped on stop

	go func() {
		time.Sleep(30 * time.Millisecond)
		runner.gate <- struct{}{}
	}()
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, 1, runner.count(1))

	assert.ErrorIs(t, s.Register(1, 5), ErrStopped)
	s.Trigger(1)
	assert.Equal(t, 1, runner.count(1))
}

func TestScheduler_StopDeadlineCancelsRuns(t *testing.T) {
	runner := newFakeRunner()
	runner.gate = make(chan struct{}) // never released
	s := NewScheduler(SchedulerConfig{FetchWorkers: 1, RunTimeout: time.Minute}, runner, discardLogger(), nil)

	s.Trigger(1)
	require.Eventually(t, func() bool { return runner.count(1) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, runner.inFlight.Load())
}
