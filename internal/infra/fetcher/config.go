package fetcher

import (
	"fmt"
	"log/slog"
	"time"

	"feedwatch/internal/pkg/config"
	"feedwatch/internal/resilience/retry"
)

// Config controls the fetch strategy chain and the heavy renderer.
//
// Security settings:
//   - DenyPrivateIPs: rejects feed URLs and redirects resolving to private addresses
//   - MaxBodySize: caps response bodies read into memory
//   - MaxRedirects: caps redirect chains
//
// Politeness settings:
//   - RateLimitedHosts / RateLimitCooldown: hosts fetched at most once per cool-down
//     after a success
type Config struct {
	// Timeout bounds a single attempt. Feeds may override it.
	// Default: 30s
	Timeout time.Duration

	// HeavyTimeout bounds one heavy render.
	// Default: 60s
	HeavyTimeout time.Duration

	// MaxBodySize is the largest body accepted, in bytes.
	// Default: 10485760 (10MB)
	MaxBodySize int64

	// MaxRedirects is the longest redirect chain followed.
	// Default: 5
	MaxRedirects int

	// DenyPrivateIPs blocks loopback, private and link-local targets.
	// Default: true
	DenyPrivateIPs bool

	// RateLimitedHosts are matched against the feed host by suffix
	// ("reddit.com" matches "old.reddit.com").
	// Default: ["reddit.com"]
	RateLimitedHosts []string

	// RateLimitCooldown is the minimum gap after a success for rate-limited hosts.
	// Default: 1h
	RateLimitCooldown time.Duration

	// RenderEndpoint is an optional rendering service used by the heavy path.
	// The page URL is passed as the "url" query parameter and the rendered
	// HTML is expected in the response body. Empty fetches the page directly.
	RenderEndpoint string

	// UserAgent identifies the minimal strategy.
	UserAgent string

	// Retry drives the minimal strategy's attempts.
	// Default: retry.FeedFetchConfig()
	Retry retry.Config
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		HeavyTimeout:      60 * time.Second,
		MaxBodySize:       10 * 1024 * 1024, // 10MB
		MaxRedirects:      5,
		DenyPrivateIPs:    true,
		RateLimitedHosts:  []string{"reddit.com"},
		RateLimitCooldown: time.Hour,
		UserAgent:         "feedwatch/1.0 (+https://github.com/feedwatch/feedwatch)",
		Retry:             retry.FeedFetchConfig(),
	}
}

// Validate checks the ranges enforced by LoadConfigFromEnv.
//
// Validation rules:
//   - Timeout, HeavyTimeout, RateLimitCooldown: > 0
//   - MaxBodySize: 1KB-100MB
//   - MaxRedirects: 0-10
//   - Retry.MaxAttempts: >= 1
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.HeavyTimeout <= 0 {
		return fmt.Errorf("heavy timeout must be positive, got %v", c.HeavyTimeout)
	}
	if c.RateLimitCooldown <= 0 {
		return fmt.Errorf("rate limit cooldown must be positive, got %v", c.RateLimitCooldown)
	}

	minBodySize := int64(1024)              // 1KB
	maxBodySize := int64(100 * 1024 * 1024) // 100MB
	if c.MaxBodySize < minBodySize || c.MaxBodySize > maxBodySize {
		return fmt.Errorf("max body size must be between %d and %d bytes, got %d", minBodySize, maxBodySize, c.MaxBodySize)
	}
	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// LoadConfigFromEnv reads the FETCH_* variables with fail-open fallback.
//
// Environment variables:
//   - FETCH_TIMEOUT: duration, 1s-5m (default: 30s)
//   - FETCH_HEAVY_TIMEOUT: duration, 1s-10m (default: 60s)
//   - FETCH_MAX_BODY_SIZE: bytes, 1KB-100MB (default: 10485760)
//   - FETCH_MAX_REDIRECTS: 0-10 (default: 5)
//   - FETCH_DENY_PRIVATE_IPS: bool (default: true)
//   - RATE_LIMITED_HOSTS: comma-separated hosts (default: reddit.com)
//   - RATE_LIMIT_COOLDOWN: duration (default: 1h)
//   - RENDER_ENDPOINT: URL of a rendering service (default: none)
//   - FETCH_USER_AGENT: string
func LoadConfigFromEnv(logger *slog.Logger, metrics *config.ConfigMetrics) Config {
	cfg := DefaultConfig()
	l := config.NewLoader(logger, metrics)

	cfg.Timeout = l.Duration("fetch_timeout", "FETCH_TIMEOUT", cfg.Timeout, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Second, 5*time.Minute)
	})
	cfg.HeavyTimeout = l.Duration("heavy_timeout", "FETCH_HEAVY_TIMEOUT", cfg.HeavyTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Second, 10*time.Minute)
	})
	cfg.MaxBodySize = int64(l.Int("max_body_size", "FETCH_MAX_BODY_SIZE", int(cfg.MaxBodySize), func(v int) error {
		return config.ValidateIntRange(v, 1024, 100*1024*1024)
	}))
	cfg.MaxRedirects = l.Int("max_redirects", "FETCH_MAX_REDIRECTS", cfg.MaxRedirects, func(v int) error {
		return config.ValidateIntRange(v, 0, 10)
	})
	cfg.DenyPrivateIPs = l.Bool("deny_private_ips", "FETCH_DENY_PRIVATE_IPS", cfg.DenyPrivateIPs)
	cfg.RateLimitedHosts = l.List("rate_limited_hosts", "RATE_LIMITED_HOSTS", cfg.RateLimitedHosts)
	cfg.RateLimitCooldown = l.Duration("rate_limit_cooldown", "RATE_LIMIT_COOLDOWN", cfg.RateLimitCooldown, config.ValidatePositiveDuration)
	cfg.RenderEndpoint = config.LoadEnvString("RENDER_ENDPOINT", cfg.RenderEndpoint)
	cfg.UserAgent = config.LoadEnvString("FETCH_USER_AGENT", cfg.UserAgent)

	l.Finish()
	return cfg
}
