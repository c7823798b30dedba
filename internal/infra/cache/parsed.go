package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/infra/scraper"
	"feedwatch/internal/observability/metrics"
)

// DefaultTTL is how long a parse result is reused.
const DefaultTTL = 30 * time.Minute

// Parsed is an immutable parse result for one feed URL.
type Parsed struct {
	Entries  []scraper.Entry `json:"entries"`
	BaseURL  string          `json:"base_url,omitempty"` // resolves relative links
	Strategy entity.Strategy `json:"strategy"`
	Heavy    bool            `json:"heavy"`
	CachedAt time.Time       `json:"cached_at"`
}

// ParsedCache stores Parsed values as JSON in a Store.
// Store failures are logged and reported as misses.
type ParsedCache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewParsedCache returns a ParsedCache. ttl <= 0 uses DefaultTTL.
func NewParsedCache(store Store, ttl time.Duration, logger *slog.Logger) *ParsedCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ParsedCache{store: store, ttl: ttl, logger: logger}
}

// Get returns the cached result for feedURL, or (nil, false).
func (c *ParsedCache) Get(ctx context.Context, feedURL string) (*Parsed, bool) {
	raw, err := c.store.Get(ctx, feedURL)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("parsed cache read failed",
				slog.String("feed_url", feedURL),
				slog.Any("error", err))
			metrics.RecordCacheLookup("error")
		} else {
			metrics.RecordCacheLookup("miss")
		}
		return nil, false
	}

	var p Parsed
	if err := json.Unmarshal(raw, &p); err != nil {
		c.logger.Warn("parsed cache entry undecodable",
			slog.String("feed_url", feedURL),
			slog.Any("error", err))
		_ = c.store.Delete(ctx, feedURL)
		metrics.RecordCacheLookup("error")
		return nil, false
	}
	metrics.RecordCacheLookup("hit")
	return &p, true
}

// Set stores p for feedURL.
func (c *ParsedCache) Set(ctx context.Context, feedURL string, p *Parsed) {
	if p.CachedAt.IsZero() {
		p.CachedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(p)
	if err != nil {
		c.logger.Warn("parsed cache encode failed", slog.Any("error", err))
		return
	}
	if err := c.store.Set(ctx, feedURL, raw, c.ttl); err != nil {
		c.logger.Warn("parsed cache write failed",
			slog.String("feed_url", feedURL),
			slog.Any("error", err))
	}
}

// Invalidate drops the entry for feedURL.
func (c *ParsedCache) Invalidate(ctx context.Context, feedURL string) {
	if err := c.store.Delete(ctx, feedURL); err != nil {
		c.logger.Warn("parsed cache delete failed",
			slog.String("feed_url", feedURL),
			slog.Any("error", err))
	}
}
