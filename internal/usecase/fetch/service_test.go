package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/infra/adapter/persistence/sqlite"
	"feedwatch/internal/infra/cache"
	"feedwatch/internal/infra/fetcher"
	"feedwatch/internal/infra/scraper"
	"feedwatch/internal/usecase/fetch"
	"feedwatch/internal/usecase/health"
	"feedwatch/internal/usecase/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* ───────── モック実装 ───────── */

type recordingNotifier struct {
	mu     sync.Mutex
	events []*entity.FeedEvent
}

func (r *recordingNotifier) NotifyFeedEvent(_ context.Context, event *entity.FeedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) GetChannelHealth() []notify.ChannelHealthStatus { return nil }
func (r *recordingNotifier) Shutdown(context.Context) error                 { return nil }

func (r *recordingNotifier) kinds() []entity.FeedEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.FeedEventKind
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type countingDiscovery struct {
	calls atomic.Int32
}

func (d *countingDiscovery) Spawn(*entity.Feed) error {
	d.calls.Add(1)
	return nil
}

type countingRetention struct {
	calls atomic.Int32
}

func (r *countingRetention) EnforceBestEffort(context.Context) { r.calls.Add(1) }

// stubRenderer serves html; finalURL, when set, stands in for a redirect.
type stubRenderer struct {
	html     string
	finalURL string
	err      error
	calls    atomic.Int32
}

func (s *stubRenderer) Render(_ context.Context, pageURL string) (*fetcher.Page, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if s.finalURL != "" {
		pageURL = s.finalURL
	}
	return &fetcher.Page{URL: pageURL, HTML: s.html, StatusCode: 200}, nil
}

/* ───────── テストハーネス ───────── */

type harness struct {
	repos     *sqlite.Repositories
	notifier  *recordingNotifier
	discovery *countingDiscovery
	retention *countingRetention
	deps      fetch.Dependencies
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repos, err := sqlite.NewRepositories(context.Background(), sqlite.Config{DSN: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	cfg := fetcher.DefaultConfig()
	cfg.DenyPrivateIPs = false
	cfg.RateLimitedHosts = nil
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond
	cfg.Timeout = 2 * time.Second

	h := &harness{
		repos:     repos,
		notifier:  &recordingNotifier{},
		discovery: &countingDiscovery{},
		retention: &countingRetention{},
	}
	h.deps = fetch.Dependencies{
		Feeds:          repos.Feed,
		Items:          repos.Item,
		Health:         repos.Health,
		Fetcher:        fetcher.NewChain(cfg),
		Parser:         scraper.NewFeedParser(),
		Extractor:      scraper.NewHTMLExtractor(nil),
		Normalizer:     scraper.NewNormalizer(),
		Notify:         h.notifier,
		Discovery:      h.discovery,
		Retention:      h.retention,
		AutoPause:      health.NewAutoPause(),
		DefaultTimeout: 2 * time.Second,
	}
	return h
}

func (h *harness) withChain(cfg func(*fetcher.Config)) {
	c := fetcher.DefaultConfig()
	c.DenyPrivateIPs = false
	c.RateLimitedHosts = nil
	c.Retry.InitialDelay = time.Millisecond
	c.Retry.MaxDelay = 2 * time.Millisecond
	cfg(&c)
	h.deps.Fetcher = fetcher.NewChain(c)
}

func (h *harness) service() *fetch.Service {
	return fetch.NewService(h.deps)
}

func (h *harness) feed(t *testing.T, url string) *entity.Feed {
	t.Helper()
	f := &entity.Feed{Name: "test feed", URL: url, Active: true, IntervalMinutes: 30}
	require.NoError(t, h.repos.Feed.Create(context.Background(), f))
	return f
}

func (h *harness) reload(t *testing.T, id int64) *entity.Feed {
	t.Helper()
	f, err := h.repos.Feed.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, f)
	return f
}

func rss(items string) string {
	return `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>` + items + `</channel></rss>`
}

// switchable serves whatever body is currently set.
type switchable struct {
	mu     sync.Mutex
	status int
	body   string
	hits   atomic.Int32
}

func (s *switchable) set(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.body = status, body
}

func (s *switchable) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s.hits.Add(1)
	s.mu.Lock()
	status, body := s.status, s.body
	s.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

/* ───────── テスト ───────── */

func TestRun_SameGUIDTwiceKeepsOneItemWithLatestSummary(t *testing.T) {
	h := newHarness(t)
	srv := &switchable{}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	f := h.feed(t, ts.URL+"/rss")
	svc := h.service()
	ctx := context.Background()

	srv.set(200, rss(`<item><guid>guid-1</guid><title>Hello</title><link>https://example.com/a</link><description>first</description></item>`))
	res, err := svc.Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, fetch.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, res.Inserted)

	srv.set(200, rss(`<item><guid>guid-1</guid><title>Hello</title><link>https://example.com/a</link><description>second</description></item>`))
	res, err = svc.Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, res.Updated)

	count, err := h.repos.Item.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	items, err := h.repos.Item.ListByFeed(ctx, f.ID, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "second", items[0].Summary)
	assert.Equal(t, "guid-1", items[0].ExternalID)

	got := h.reload(t, f.ID)
	assert.Zero(t, got.ConsecutiveFailures)
	assert.NotNil(t, got.LastSuccessAt)
	assert.Equal(t, int32(2), h.retention.calls.Load())
}

func TestRun_ReapplyingPayloadIsIdempotent(t *testing.T) {
	h := newHarness(t)
	srv := &switchable{}
	srv.set(200, rss(`
<item><title>No guid</title><link>https://example.com/x</link><pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate></item>
<item><title></title><link>https://example.com/untitled</link></item>
<item><title>No link</title></item>`))
	ts := httptest.NewServer(srv)
	defer ts.Close()
	f := h.feed(t, ts.URL)
	svc := h.service()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := svc.Run(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Dropped)
	}

	count, err := h.repos.Item.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "items without title or url are never stored")
}

func TestRun_ThreeForbiddenResponsesBlockFeed(t *testing.T) {
	h := newHarness(t)
	srv := &switchable{}
	srv.set(http.StatusForbidden, "Access Denied")
	ts := httptest.NewServer(srv)
	defer ts.Close()
	f := h.feed(t, ts.URL)
	svc := h.service()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := svc.Run(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, fetch.OutcomeFailed, res.Outcome)
		assert.Equal(t, entity.FailureBlocked, res.FailureKind)
	}

	got := h.reload(t, f.ID)
	assert.Equal(t, entity.FeedStatusBlocked, got.Status)
	assert.Equal(t, 3, got.ConsecutiveFailures)
	assert.Equal(t, 3, got.TotalFailures)
	assert.Equal(t, int32(1), h.discovery.calls.Load())
	assert.Equal(t, []entity.FeedEventKind{entity.FeedEventConsecutiveFailures}, h.notifier.kinds())
	assert.Zero(t, h.retention.calls.Load())

	log, err := h.repos.Health.Recent(ctx, f.ID, 10)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, http.StatusForbidden, log[0].StatusCode)
	assert.Equal(t, entity.StrategyAlternate, log[0].Strategy)
}

func TestRun_TimeoutsMakeFeedUnreachable(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()
	h.withChain(func(c *fetcher.Config) { c.Timeout = 30 * time.Millisecond })
	h.deps.DefaultTimeout = 30 * time.Millisecond
	f := h.feed(t, ts.URL)
	svc := h.service()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		res, err := svc.Run(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.FailureTimeout, res.FailureKind)
		if i == 2 {
			assert.Equal(t, entity.FeedStatusUnreachable, res.Status)
			got := h.reload(t, f.ID)
			assert.Equal(t, 3, got.ConsecutiveFailures)
		}
	}

	assert.Equal(t, entity.FeedStatusUnreachable, h.reload(t, f.ID).Status)
	assert.Equal(t, int32(1), h.discovery.calls.Load(), "discovery runs once on entering unreachable")
}

func TestRun_RateLimitedHostFetchedOncePerCooldown(t *testing.T) {
	h := newHarness(t)
	srv := &switchable{}
	srv.set(200, rss(`<item><title>a</title><link>https://example.com/a</link></item>`))
	ts := httptest.NewServer(srv)
	defer ts.Close()
	h.withChain(func(c *fetcher.Config) {
		c.RateLimitedHosts = []string{"127.0.0.1"}
		c.RateLimitCooldown = time.Hour
	})
	f := h.feed(t, ts.URL)
	svc := h.service()
	ctx := context.Background()

	res, err := svc.Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, fetch.OutcomeSuccess, res.Outcome)

	res, err = svc.Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, fetch.OutcomeSkipped, res.Outcome)
	assert.Equal(t, fetch.SkipRateLimited, res.SkipReason)
	assert.False(t, res.Unregister)

	assert.Equal(t, int32(1), srv.hits.Load())
	log, err := h.repos.Health.Recent(ctx, f.ID, 10)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestRun_DeletedFeedIsSkippedAndUnregistered(t *testing.T) {
	h := newHarness(t)
	f := h.feed(t, "https://example.com/feed")
	ctx := context.Background()
	require.NoError(t, h.repos.Feed.Delete(ctx, f.ID))

	res, err := h.service().Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, fetch.OutcomeSkipped, res.Outcome)
	assert.Equal(t, fetch.SkipMissing, res.SkipReason)
	assert.True(t, res.Unregister)

	log, err := h.repos.Health.Recent(ctx, f.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestRun_InactiveAndPausedFeeds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inactive := h.feed(t, "https://example.com/inactive")
	require.NoError(t, h.repos.Feed.SetActive(ctx, inactive.ID, false))
	paused := h.feed(t, "https://example.com/paused")
	require.NoError(t, h.repos.Feed.UpdateStatus(ctx, paused.ID, entity.FeedStatusPaused))
	svc := h.service()

	res, err := svc.Run(ctx, inactive.ID)
	require.NoError(t, err)
	assert.True(t, res.Unregister)
	assert.Equal(t, fetch.SkipInactive, res.SkipReason)

	res, err = svc.Run(ctx, paused.ID)
	require.NoError(t, err)
	assert.False(t, res.Unregister)
	assert.Equal(t, fetch.SkipPaused, res.SkipReason)
	assert.Equal(t, entity.FeedStatusPaused, res.Status)
}

func TestRun_AutoPauseOverridesStateMachine(t *testing.T) {
	h := newHarness(t)
	srv := &switchable{}
	srv.set(http.StatusNotFound, "gone")
	ts := httptest.NewServer(srv)
	defer ts.Close()
	h.deps.AutoPause = health.AutoPause{MaxConsecutive: 2, MaxTotal: 100}
	f := h.feed(t, ts.URL)
	svc := h.service()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Run(ctx, f.ID)
		require.NoError(t, err)
	}

	got := h.reload(t, f.ID)
	assert.Equal(t, entity.FeedStatusPaused, got.Status)
	assert.Equal(t, []entity.FeedEventKind{entity.FeedEventConsecutiveFailures, entity.FeedEventAutoPaused}, h.notifier.kinds())
	assert.Equal(t, health.ReasonConsecutive, h.notifier.events[1].Reason)
	assert.Zero(t, h.discovery.calls.Load())

	hits := srv.hits.Load()
	res, err := svc.Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, fetch.SkipPaused, res.SkipReason)
	assert.Equal(t, hits, srv.hits.Load())
}

func TestRun_HeavyPathFlipsFlag(t *testing.T) {
	h := newHarness(t)
	srv := &switchable{}
	srv.set(200, "<html><body>client-rendered app</body></html>")
	ts := httptest.NewServer(srv)
	defer ts.Close()
	renderer := &stubRenderer{html: `<html><body>
		<article><h2>Rendered one</h2><a href="/posts/1">read</a><time datetime="2026-02-01T10:00:00Z"></time></article>
		<article><h2>Rendered two</h2><a href="/posts/2">read</a></article>
	</body></html>`}
	h.deps.Heavy = renderer
	f := h.feed(t, ts.URL+"/blog")
	ctx := context.Background()

	res, err := h.service().Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, fetch.OutcomeSuccess, res.Outcome)
	assert.True(t, res.UsedHeavy)
	assert.Equal(t, entity.StrategyHeavy, res.Strategy)
	assert.Equal(t, 2, res.Inserted)
	assert.True(t, h.reload(t, f.ID).RequiresHeavy)

	items, err := h.repos.Item.ListByFeed(ctx, f.ID, 10)
	require.NoError(t, err)
	for _, it := range items {
		assert.Contains(t, it.URL, ts.URL+"/posts/")
	}

	// flagged feeds skip the light path
	before := srv.hits.Load()
	_, err = h.service().Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, before, srv.hits.Load())
	assert.Equal(t, int32(2), renderer.calls.Load())
}

func TestRun_HeavyFailureKeepsLightSuccess(t *testing.T) {
	h := newHarness(t)
	srv := &switchable{}
	srv.set(200, "not a feed at all")
	ts := httptest.NewServer(srv)
	defer ts.Close()
	h.deps.Heavy = &stubRenderer{err: &fetcher.FetchError{Kind: entity.FailureBlocked, StatusCode: 403, Strategy: entity.StrategyHeavy, Err: errors.New("denied")}}
	f := h.feed(t, ts.URL)

	res, err := h.service().Run(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, fetch.OutcomeSuccess, res.Outcome)
	assert.Zero(t, res.Inserted)
	assert.False(t, h.reload(t, f.ID).RequiresHeavy)
}

func TestRun_FlaggedHeavyFailureIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.deps.Heavy = &stubRenderer{err: &fetcher.FetchError{Kind: entity.FailureServerError, StatusCode: 502, Strategy: entity.StrategyHeavy, Err: errors.New("bad gateway")}}
	ctx := context.Background()
	f := &entity.Feed{Name: "spa", URL: "https://spa.example.com/", Active: true, RequiresHeavy: true}
	require.NoError(t, h.repos.Feed.Create(ctx, f))

	res, err := h.service().Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, fetch.OutcomeFailed, res.Outcome)
	assert.Equal(t, entity.FailureServerError, res.FailureKind)
	assert.Equal(t, 1, h.reload(t, f.ID).ConsecutiveFailures)
}

func TestRun_CacheHitSkipsNetworkAndHealth(t *testing.T) {
	h := newHarness(t)
	srv := &switchable{}
	srv.set(200, rss(`<item><guid>c-1</guid><title>Cached</title><link>https://example.com/c</link></item>`))
	ts := httptest.NewServer(srv)
	defer ts.Close()
	h.deps.Cache = cache.NewParsedCache(cache.NewMemory(cache.MemoryConfig{}), cache.DefaultTTL, nil)
	f := h.feed(t, ts.URL)
	svc := h.service()
	ctx := context.Background()

	res, err := svc.Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, fetch.OutcomeSuccess, res.Outcome)

	res, err = svc.Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, fetch.OutcomeCached, res.Outcome)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, entity.StrategyMinimal, res.Strategy)

	assert.Equal(t, int32(1), srv.hits.Load())
	log, err := h.repos.Health.Recent(ctx, f.ID, 10)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestRun_DegradedFeedRecovers(t *testing.T) {
	h := newHarness(t)
	srv := &switchable{}
	srv.set(200, rss(`<item><title>a</title><link>https://example.com/a</link></item>`))
	ts := httptest.NewServer(srv)
	defer ts.Close()
	f := h.feed(t, ts.URL)
	ctx := context.Background()
	require.NoError(t, h.repos.Feed.UpdateStatus(ctx, f.ID, entity.FeedStatusDegraded))
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		require.NoError(t, h.repos.Health.Append(ctx, &entity.HealthLogEntry{
			FeedID: f.ID, AttemptedAt: base.Add(time.Duration(i) * time.Minute), Success: true, Strategy: entity.StrategyMinimal,
		}))
	}

	res, err := h.service().Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.FeedStatusActive, res.Status)
	assert.Equal(t, entity.FeedStatusActive, h.reload(t, f.ID).Status)
	assert.Equal(t, []entity.FeedEventKind{entity.FeedEventRecovered}, h.notifier.kinds())
}

func TestRun_FullWindowWithOneFailureDegrades(t *testing.T) {
	h := newHarness(t)
	srv := &switchable{}
	srv.set(http.StatusInternalServerError, "oops")
	ts := httptest.NewServer(srv)
	defer ts.Close()
	f := h.feed(t, ts.URL)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 9; i++ {
		require.NoError(t, h.repos.Health.Append(ctx, &entity.HealthLogEntry{
			FeedID: f.ID, AttemptedAt: base.Add(time.Duration(i) * time.Minute), Success: true, Strategy: entity.StrategyMinimal,
		}))
	}

	res, err := h.service().Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.FailureServerError, res.FailureKind)
	assert.Equal(t, entity.FeedStatusDegraded, res.Status)
	assert.Zero(t, h.discovery.calls.Load())
}

func TestRun_CancellationRecordsNothing(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()
	f := h.feed(t, ts.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := h.service().Run(ctx, f.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	got := h.reload(t, f.ID)
	assert.Zero(t, got.ConsecutiveFailures)
	assert.Zero(t, got.TotalFailures)
	log, err := h.repos.Health.Recent(context.Background(), f.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestRun_GUIDAppearingForStoredItemUpdatesIt(t *testing.T) {
	h := newHarness(t)
	srv := &switchable{}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	f := h.feed(t, ts.URL)
	svc := h.service()
	ctx := context.Background()

	const entry = `<title>Post</title><link>https://a.example/1</link><pubDate>Mon, 02 Feb 2026 10:00:00 GMT</pubDate>`
	srv.set(200, rss(`<item>`+entry+`</item>`))
	res, err := svc.Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	for _, guid := range []string{"g1", "g2"} {
		srv.set(200, rss(`<item><guid>`+guid+`</guid>`+entry+`</item>`))
		res, err = svc.Run(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, fetch.OutcomeSuccess, res.Outcome)
		assert.Equal(t, 0, res.Inserted)
		assert.Equal(t, 1, res.Updated)

		items, err := h.repos.Item.ListByFeed(ctx, f.ID, 10)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, guid, items[0].ExternalID)
	}

	log, err := h.repos.Health.Recent(ctx, f.ID, 10)
	require.NoError(t, err)
	assert.Len(t, log, 3)
}

func TestRun_RunDeadlineIsRecordedAsTimeout(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer ts.Close()
	// the per-attempt timeout outlasts the run deadline
	h.withChain(func(c *fetcher.Config) { c.Timeout = 2 * time.Second })
	h.deps.DefaultTimeout = 2 * time.Second
	f := h.feed(t, ts.URL)
	svc := h.service()

	for i := 1; i <= 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		res, err := svc.Run(ctx, f.ID)
		cancel()
		require.NoError(t, err)
		assert.Equal(t, fetch.OutcomeFailed, res.Outcome)
		assert.Equal(t, entity.FailureTimeout, res.FailureKind)
		assert.Equal(t, i, h.reload(t, f.ID).ConsecutiveFailures)
	}

	got := h.reload(t, f.ID)
	assert.Equal(t, entity.FeedStatusUnreachable, got.Status)
	log, err := h.repos.Health.Recent(context.Background(), f.ID, 10)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, entity.FailureTimeout, log[0].FailureKind)
	assert.Equal(t, int32(1), h.discovery.calls.Load())
}

func TestRun_CachedHeavyEntriesResolveAgainstRenderedURL(t *testing.T) {
	h := newHarness(t)
	srv := &switchable{}
	srv.set(200, "<html><body>client-rendered app</body></html>")
	ts := httptest.NewServer(srv)
	defer ts.Close()
	h.deps.Heavy = &stubRenderer{
		finalURL: "https://mirror.example.com/blog/",
		html: `<html><body>
		<article><h2>One</h2><a href="posts/1">read</a></article>
		<article><h2>Two</h2><a href="posts/2">read</a></article>
	</body></html>`,
	}
	h.deps.Cache = cache.NewParsedCache(cache.NewMemory(cache.MemoryConfig{}), cache.DefaultTTL, nil)
	f := h.feed(t, ts.URL+"/app/")
	svc := h.service()
	ctx := context.Background()

	res, err := svc.Run(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, fetch.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 2, res.Inserted)

	res, err = svc.Run(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, fetch.OutcomeCached, res.Outcome)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 2, res.Updated)

	items, err := h.repos.Item.ListByFeed(ctx, f.ID, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Contains(t, it.URL, "https://mirror.example.com/blog/posts/")
	}
}
