// Package discovery looks for working alternative feed URLs of a feed that
// became blocked or unreachable. Results are stored as suggestions in the
// feed metadata; the configured URL is never replaced.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/infra/fetcher"
	"feedwatch/internal/infra/scraper"
	"feedwatch/internal/observability/metrics"
	"feedwatch/internal/repository"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTimeout bounds a whole background discovery run.
	DefaultTimeout = 2 * time.Minute
	// DefaultParallelism is the number of candidates validated at once.
	DefaultParallelism = 4
	// DefaultProbeTimeout bounds each candidate fetch.
	DefaultProbeTimeout = 15 * time.Second
	// storeTimeout bounds the metadata write after the run deadline expired.
	storeTimeout = 10 * time.Second
)

// ErrShutdown is returned by Spawn after Shutdown was called.
var ErrShutdown = errors.New("discovery service is shut down")

// commonSuffixes are the feed paths probed on the feed origin.
var commonSuffixes = []string{
	"/feed",
	"/feed/",
	"/rss",
	"/rss/",
	"/feed.xml",
	"/rss.xml",
	"/atom.xml",
	"/index.xml",
	"/feed.json",
	"/blog/feed",
	"/blog/rss.xml",
	"/?feed=rss2",
}

// PageFetcher retrieves a URL body; fetcher.Chain satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, req fetcher.Request) (*fetcher.Result, error)
}

// FeedParser parses a feed payload; scraper.FeedParser satisfies it.
type FeedParser interface {
	Parse(body string) ([]scraper.Entry, error)
}

// Service runs discovery, inline via Discover or in the background via Spawn.
type Service struct {
	feeds       repository.FeedRepository
	fetcher     PageFetcher
	parser      FeedParser
	logger      *slog.Logger
	now         func() time.Time
	timeout      time.Duration
	probeTimeout time.Duration
	parallelism  int

	mu       sync.Mutex
	inflight map[int64]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// Option customizes a Service.
type Option func(*Service)

// WithTimeout sets the background run timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithProbeTimeout sets the per-candidate fetch timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *Service) { s.probeTimeout = d }
}

// WithParallelism sets how many candidates are validated concurrently.
func WithParallelism(n int) Option {
	return func(s *Service) { s.parallelism = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a discovery Service. logger may be nil.
func NewService(feeds repository.FeedRepository, f PageFetcher, parser FeedParser, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		feeds:        feeds,
		fetcher:      f,
		parser:       parser,
		logger:       logger,
		now:          time.Now,
		timeout:      DefaultTimeout,
		probeTimeout: DefaultProbeTimeout,
		parallelism:  DefaultParallelism,
		inflight:     make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.parallelism <= 0 {
		s.parallelism = DefaultParallelism
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.probeTimeout <= 0 {
		s.probeTimeout = DefaultProbeTimeout
	}
	return s
}

// Spawn starts a background discovery for feed and returns immediately.
// A run already in flight for the same feed absorbs the request. The run
// does not inherit the caller's context; it is bounded by the service timeout.
func (s *Service) Spawn(feed *entity.Feed) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrShutdown
	}
	if _, busy := s.inflight[feed.ID]; busy {
		s.mu.Unlock()
		s.logger.Debug("discovery already running", slog.Int64("feed_id", feed.ID))
		return nil
	}
	s.inflight[feed.ID] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	snapshot := *feed
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, snapshot.ID)
			s.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("discovery panicked",
					slog.Int64("feed_id", snapshot.ID),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.Discover(ctx, &snapshot); err != nil {
			s.logger.Warn("alternative discovery failed",
				slog.Int64("feed_id", snapshot.ID),
				slog.String("feed_url", snapshot.URL),
				slog.Any("error", err))
		}
	}()
	return nil
}

// Discover probes candidates for feed, stores the ones that parse in the
// feed metadata and returns them. Candidate failures are logged, not returned.
// When ctx's deadline expires the candidates validated so far are stored;
// cancellation stores nothing.
func (s *Service) Discover(ctx context.Context, feed *entity.Feed) (found []string, err error) {
	start := s.now()
	defer func() { metrics.RecordDiscovery(len(found), err) }()

	origin, err := entity.Origin(feed.URL)
	if err != nil {
		return nil, fmt.Errorf("derive origin: %w", err)
	}

	candidates := s.candidates(ctx, feed.URL, origin)
	s.logger.Info("alternative discovery started",
		slog.Int64("feed_id", feed.ID),
		slog.String("origin", origin),
		slog.Int("candidates", len(candidates)))

	valid := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, candidate := range candidates {
		g.Go(func() error {
			valid[i] = s.validate(gctx, feed.ID, candidate)
			return nil
		})
	}
	_ = g.Wait()
	storeCtx := ctx
	if ctxErr := ctx.Err(); ctxErr != nil {
		if !errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("discovery aborted: %w", ctxErr)
		}
		s.logger.Warn("discovery deadline reached, storing partial results",
			slog.Int64("feed_id", feed.ID))
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		defer cancel()
	}

	for i, ok := range valid {
		if ok {
			found = append(found, candidates[i])
		}
	}

	at := s.now().UTC()
	meta := feed.Metadata
	meta.AlternativeURLs = found
	meta.DiscoveredAt = &at
	if err := s.feeds.UpdateMetadata(storeCtx, feed.ID, meta); err != nil {
		return found, fmt.Errorf("store alternatives: %w", err)
	}
	feed.Metadata = meta

	s.logger.Info("alternative discovery completed",
		slog.Int64("feed_id", feed.ID),
		slog.Int("found", len(found)),
		slog.Any("alternatives", found),
		slog.Duration("duration", s.now().Sub(start)))
	return found, nil
}

// candidates returns the probe list in a stable order: the homepage
// alternates first, then the common suffixes. The feed's own URL is excluded.
func (s *Service) candidates(ctx context.Context, feedURL, origin string) []string {
	own := canonical(feedURL)
	seen := map[string]struct{}{own: {}}
	var out []string
	add := func(u string) {
		key := canonical(u)
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}

	res, err := s.fetcher.Fetch(ctx, s.probe(origin+"/"))
	if err != nil {
		s.logger.Debug("homepage fetch failed",
			slog.String("url", origin),
			slog.Any("error", err))
	} else if res != nil && !res.Skipped {
		for _, link := range scraper.AlternateLinks(res.Body, origin+"/") {
			add(link)
		}
	}

	for _, suffix := range commonSuffixes {
		add(origin + suffix)
	}
	return out
}

func (s *Service) validate(ctx context.Context, feedID int64, candidate string) bool {
	res, err := s.fetcher.Fetch(ctx, s.probe(candidate))
	if err != nil || res == nil || res.Skipped {
		s.logger.Debug("discovery candidate unreachable",
			slog.Int64("feed_id", feedID),
			slog.String("candidate", candidate),
			slog.Any("error", err))
		return false
	}
	if _, err := s.parser.Parse(res.Body); err != nil {
		s.logger.Debug("discovery candidate does not parse",
			slog.Int64("feed_id", feedID),
			slog.String("candidate", candidate),
			slog.Any("error", err))
		return false
	}
	return true
}

func (s *Service) probe(rawURL string) fetcher.Request {
	return fetcher.Request{URL: rawURL, Timeout: s.probeTimeout, SingleAttempt: true}
}

// Wait blocks until every spawned run finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown rejects new runs and waits for running ones or ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("discovery shutdown: %w", ctx.Err())
	}
}

// canonical lowercases scheme and host and drops the fragment.
func canonical(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String()
}
