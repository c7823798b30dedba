package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/observability/tracing"
	"feedwatch/internal/resilience/circuitbreaker"

	"go.opentelemetry.io/otel/attribute"
)

// Page is a document returned by the heavy renderer.
type Page struct {
	// URL is the final URL after redirects, used to resolve relative links.
	URL        string
	HTML       string
	StatusCode int
}

// HeavyFetcher retrieves fully rendered pages. With RenderEndpoint set it
// delegates to a rendering service; otherwise it fetches the page directly
// with browser headers. Calls go through the "heavy-fetch" circuit breaker.
type HeavyFetcher struct {
	client   *http.Client
	resolver *net.Resolver
	breaker  *circuitbreaker.CircuitBreaker
	cfg      Config
}

// NewHeavyFetcher builds a HeavyFetcher. client may be nil.
func NewHeavyFetcher(cfg Config, client *http.Client) *HeavyFetcher {
	if client == nil {
		client = newHTTPClient(cfg, net.DefaultResolver)
	}
	return &HeavyFetcher{
		client:   client,
		resolver: net.DefaultResolver,
		breaker:  circuitbreaker.New(circuitbreaker.HeavyFetchConfig()),
		cfg:      cfg,
	}
}

// Render returns the rendered page for pageURL.
func (h *HeavyFetcher) Render(ctx context.Context, pageURL string) (*Page, error) {
	ctx, span := tracing.Tracer().Start(ctx, "fetcher.HeavyFetcher.Render")
	defer span.End()
	span.SetAttributes(attribute.String("page.url", pageURL))

	if err := validateURL(ctx, h.resolver, pageURL, h.cfg.DenyPrivateIPs); err != nil {
		return nil, &FetchError{Kind: entity.FailureClientError, Strategy: entity.StrategyHeavy, Err: err}
	}

	page, err := circuitbreaker.Call(h.breaker, func() (*Page, error) {
		return h.render(ctx, pageURL)
	})
	if err != nil {
		if circuitbreaker.IsRejected(err) {
			slog.WarnContext(ctx, "heavy fetch circuit breaker open, request rejected",
				slog.String("service", h.breaker.Name()),
				slog.String("url", pageURL),
				slog.String("state", h.breaker.State().String()))
			return nil, &FetchError{Kind: entity.FailureUnknown, Strategy: entity.StrategyHeavy, Err: fmt.Errorf("%w: %v", ErrRenderFailed, err)}
		}
		span.RecordError(err)
		return nil, err
	}
	return page, nil
}

func (h *HeavyFetcher) render(ctx context.Context, pageURL string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.HeavyTimeout)
	defer cancel()

	target := pageURL
	if h.cfg.RenderEndpoint != "" {
		endpoint, err := url.Parse(h.cfg.RenderEndpoint)
		if err != nil {
			return nil, &FetchError{Kind: entity.FailureClientError, Strategy: entity.StrategyHeavy, Err: fmt.Errorf("%w: render endpoint: %v", ErrInvalidURL, err)}
		}
		q := endpoint.Query()
		q.Set("url", pageURL)
		endpoint.RawQuery = q.Encode()
		target = endpoint.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{Kind: entity.FailureClientError, Strategy: entity.StrategyHeavy, Err: err}
	}
	browserHeaders(req.Header)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		kind := entity.ClassifyFailure(0, "", err)
		return nil, &FetchError{Kind: kind, Strategy: entity.StrategyHeavy, Elapsed: time.Since(start), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			Kind:       entity.ClassifyFailure(resp.StatusCode, "", nil),
			StatusCode: resp.StatusCode,
			Strategy:   entity.StrategyHeavy,
			Elapsed:    time.Since(start),
			Err:        fmt.Errorf("%w: HTTP %d", ErrRenderFailed, resp.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize+1))
	if err != nil {
		return nil, &FetchError{Kind: entity.ClassifyFailure(0, "", err), Strategy: entity.StrategyHeavy, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > h.cfg.MaxBodySize {
		return nil, &FetchError{Kind: entity.FailureMalformed, Strategy: entity.StrategyHeavy, Err: ErrBodyTooLarge}
	}

	finalURL := pageURL
	if h.cfg.RenderEndpoint == "" && resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	html := CleanBody(data)
	if html == "" {
		return nil, &FetchError{Kind: entity.FailureMalformed, StatusCode: resp.StatusCode, Strategy: entity.StrategyHeavy, Err: fmt.Errorf("%w: empty document", ErrRenderFailed)}
	}
	return &Page{URL: finalURL, HTML: html, StatusCode: resp.StatusCode}, nil
}
