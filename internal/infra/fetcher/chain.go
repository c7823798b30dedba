package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/observability/tracing"
	"feedwatch/internal/resilience/retry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Request is one chain invocation.
type Request struct {
	URL string
	// Timeout bounds each attempt; zero uses Config.Timeout.
	Timeout time.Duration
	// LastSuccessAt drives the rate-limited host cool-down.
	LastSuccessAt *time.Time
	// SingleAttempt limits the fetch to one try of the first strategy.
	SingleAttempt bool
}

// Result is a successful or skipped fetch.
type Result struct {
	Body       string
	StatusCode int
	Strategy   entity.Strategy
	Elapsed    time.Duration
	// Skipped is set when a rate-limited host was still cooling down.
	// No network call was made and Body is empty.
	Skipped bool
}

type strategy struct {
	name     entity.Strategy
	headers  func(http.Header)
	attempts int
}

// AttemptObserver is notified after every HTTP attempt.
type AttemptObserver func(strategy entity.Strategy, kind entity.FailureKind, elapsed time.Duration)

// Chain tries the minimal, browser and alternate strategies in order and
// returns the first body that arrives with a 2xx status.
type Chain struct {
	client     *http.Client
	resolver   *net.Resolver
	cfg        Config
	strategies []strategy
	observe    AttemptObserver
	now        func() time.Time
}

// Option customizes a Chain.
type Option func(*Chain)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Chain) { c.client = client }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Chain) { c.now = now }
}

// WithObserver registers an AttemptObserver, typically metrics.
func WithObserver(observe AttemptObserver) Option {
	return func(c *Chain) { c.observe = observe }
}

// NewChain builds a Chain from cfg.
func NewChain(cfg Config, opts ...Option) *Chain {
	c := &Chain{
		resolver: net.DefaultResolver,
		cfg:      cfg,
		now:      time.Now,
	}
	c.strategies = []strategy{
		{name: entity.StrategyMinimal, headers: minimalHeaders(cfg.UserAgent), attempts: max(cfg.Retry.MaxAttempts, 1)},
		{name: entity.StrategyBrowser, headers: browserHeaders, attempts: 1},
		{name: entity.StrategyAlternate, headers: alternateHeaders, attempts: 1},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = newHTTPClient(cfg, c.resolver)
	}
	return c
}

// ShouldSkip reports whether rawURL belongs to a rate-limited host whose
// last success is inside the cool-down window.
func (c *Chain) ShouldSkip(rawURL string, lastSuccessAt *time.Time) bool {
	if lastSuccessAt == nil || !c.isRateLimited(rawURL) {
		return false
	}
	return c.now().Sub(*lastSuccessAt) < c.cfg.RateLimitCooldown
}

func (c *Chain) isRateLimited(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range c.cfg.RateLimitedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Fetch runs the strategies in order. On failure it returns a *FetchError
// carrying the last strategy's classification and the total elapsed time.
// Cancellation of ctx is returned as ctx.Err() wrapped, not as a FetchError.
func (c *Chain) Fetch(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracing.Tracer().Start(ctx, "fetcher.Chain.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("feed.url", req.URL))

	start := c.now()
	if c.ShouldSkip(req.URL, req.LastSuccessAt) {
		span.SetAttributes(attribute.Bool("fetch.skipped", true))
		return &Result{Strategy: entity.StrategyNone, Skipped: true}, nil
	}

	if err := validateURL(ctx, c.resolver, req.URL, c.cfg.DenyPrivateIPs); err != nil {
		fe := &FetchError{Kind: entity.FailureClientError, Strategy: entity.StrategyNone, Elapsed: c.now().Sub(start), Err: err}
		span.RecordError(fe)
		span.SetStatus(codes.Error, "invalid url")
		return nil, fe
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	strategies := c.strategies
	if req.SingleAttempt {
		first := strategies[0]
		first.attempts = 1
		strategies = []strategy{first}
	}

	var last *FetchError
	for _, s := range strategies {
		body, status, err := c.run(ctx, s, req.URL, timeout)
		if err == nil {
			span.SetAttributes(
				attribute.String("fetch.strategy", string(s.name)),
				attribute.Int("http.status_code", status))
			return &Result{
				Body:       body,
				StatusCode: status,
				Strategy:   s.name,
				Elapsed:    c.now().Sub(start),
			}, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch aborted: %w", ctx.Err())
		}

		fe, ok := AsFetchError(err)
		if !ok {
			fe = &FetchError{Kind: entity.ClassifyFailure(0, "", err), Strategy: s.name, Err: err}
		}
		last = fe

		slog.DebugContext(ctx, "fetch strategy failed",
			slog.String("url", req.URL),
			slog.String("strategy", string(s.name)),
			slog.String("kind", string(fe.Kind)),
			slog.Int("status_code", fe.StatusCode),
			slog.Any("error", fe.Err))
	}

	last.Elapsed = c.now().Sub(start)
	span.RecordError(last)
	span.SetStatus(codes.Error, string(last.Kind))
	return nil, last
}

// run executes one strategy, retrying only strategies with more than one
// attempt and only for retryable kinds.
func (c *Chain) run(ctx context.Context, s strategy, rawURL string, timeout time.Duration) (string, int, error) {
	if s.attempts <= 1 {
		return c.attempt(ctx, s, rawURL, timeout)
	}

	var (
		body   string
		status int
	)
	rc := c.cfg.Retry
	rc.MaxAttempts = s.attempts
	rc.RetryIf = func(err error) bool {
		fe, ok := AsFetchError(err)
		return ok && fe.Kind.Retryable() && ctx.Err() == nil
	}
	err := retry.WithBackoff(ctx, rc, func() error {
		var err error
		body, status, err = c.attempt(ctx, s, rawURL, timeout)
		return err
	})
	return body, status, err
}

// attempt performs a single GET. Non-2xx responses become FetchErrors
// classified by status code; transport errors are classified by the error.
func (c *Chain) attempt(ctx context.Context, s strategy, rawURL string, timeout time.Duration) (body string, status int, err error) {
	started := c.now()
	kind := entity.FailureNone
	defer func() {
		if c.observe != nil {
			c.observe(s.name, kind, c.now().Sub(started))
		}
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		kind = entity.FailureClientError
		return "", 0, &FetchError{Kind: kind, Strategy: s.name, Err: fmt.Errorf("%w: %v", ErrInvalidURL, err)}
	}
	s.headers(httpReq.Header)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		kind = c.classifyTransport(ctx, attemptCtx, err)
		return "", 0, &FetchError{Kind: kind, Strategy: s.name, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		kind = entity.ClassifyFailure(resp.StatusCode, "", nil)
		return "", resp.StatusCode, &FetchError{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Strategy:   s.name,
			Err:        &retry.HTTPError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)},
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodySize+1))
	if err != nil {
		kind = c.classifyTransport(ctx, attemptCtx, err)
		return "", resp.StatusCode, &FetchError{Kind: kind, StatusCode: resp.StatusCode, Strategy: s.name, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > c.cfg.MaxBodySize {
		kind = entity.FailureMalformed
		return "", resp.StatusCode, &FetchError{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Strategy:   s.name,
			Err:        fmt.Errorf("%w: exceeds %d bytes", ErrBodyTooLarge, c.cfg.MaxBodySize),
		}
	}

	return CleanBody(data), resp.StatusCode, nil
}

func (c *Chain) classifyTransport(parent, attemptCtx context.Context, err error) entity.FailureKind {
	if parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return entity.FailureTimeout
	}
	if errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrPrivateIP) || errors.Is(err, ErrTooManyRedirects) {
		return entity.FailureClientError
	}
	return entity.ClassifyFailure(0, "", err)
}

// CleanBody strips a leading UTF-8 byte-order mark and surrounding whitespace.
func CleanBody(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	return strings.TrimSpace(string(data))
}
