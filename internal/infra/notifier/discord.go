package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"feedwatch/internal/domain/entity"

	"github.com/google/uuid"
)

// DiscordConfig contains configuration for Discord webhook notifications.
type DiscordConfig struct {
	Enabled    bool
	WebhookURL string
	Timeout    time.Duration
	// RetryDelay is the base back-off between attempts. Default: 5s
	RetryDelay time.Duration
}

// DiscordNotifier sends feed events to Discord via webhook.
type DiscordNotifier struct {
	config      DiscordConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewDiscordNotifier returns a notifier limited to 0.5 req/s with a burst
// of 3 (Discord allows 30 webhook requests per minute).
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	return &DiscordNotifier{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(0.5, 3),
	}
}

// DiscordWebhookPayload is the JSON body sent to a Discord webhook.
type DiscordWebhookPayload struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed is a Discord embed message.
type DiscordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	URL         string              `json:"url,omitempty"`
	Color       int                 `json:"color"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Footer      DiscordEmbedFooter  `json:"footer"`
	Timestamp   string              `json:"timestamp"`
}

type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// DiscordErrorResponse is Discord's error body.
type DiscordErrorResponse struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"` // seconds
}

const (
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	maxFieldValueLength  = 1024
	truncationSuffix     = "..."

	discordYellowColor = 0xFEE75C
	discordGreenColor  = 0x57F287
	discordRedColor    = 0xED4245
	discordBlueColor   = 0x5865F2
)

func discordColor(kind entity.FeedEventKind) int {
	switch kind {
	case entity.FeedEventConsecutiveFailures:
		return discordYellowColor
	case entity.FeedEventRecovered:
		return discordGreenColor
	case entity.FeedEventAutoPaused:
		return discordRedColor
	}
	return discordBlueColor
}

func (d *DiscordNotifier) buildEmbedPayload(event *entity.FeedEvent) DiscordWebhookPayload {
	embed := DiscordEmbed{
		Title:       truncate(event.Headline(), maxTitleLength, truncationSuffix),
		Description: truncate(event.FeedURL, maxDescriptionLength, truncationSuffix),
		URL:         event.FeedURL,
		Color:       discordColor(event.Kind),
		Fields: []DiscordEmbedField{
			{Name: "Status", Value: string(event.Status), Inline: true},
			{Name: "Consecutive failures", Value: strconv.Itoa(event.ConsecutiveFailures), Inline: true},
			{Name: "Total failures", Value: strconv.Itoa(event.TotalFailures), Inline: true},
		},
		Footer:    DiscordEmbedFooter{Text: fmt.Sprintf("feed #%d • %s", event.FeedID, event.Kind)},
		Timestamp: event.At.UTC().Format(time.RFC3339),
	}
	if event.LastError != "" {
		embed.Fields = append(embed.Fields, DiscordEmbedField{
			Name:  "Last error",
			Value: truncate(event.LastError, maxFieldValueLength, truncationSuffix),
		})
	}
	return DiscordWebhookPayload{Embeds: []DiscordEmbed{embed}}
}

// discordRetryAfter reads retry_after from the JSON body, then the
// Retry-After header, defaulting to 5s.
func discordRetryAfter(resp *http.Response, body []byte) time.Duration {
	var discordErr DiscordErrorResponse
	if err := json.Unmarshal(body, &discordErr); err == nil && discordErr.RetryAfter > 0 {
		return time.Duration(discordErr.RetryAfter * float64(time.Second))
	}
	if h := resp.Header.Get("Retry-After"); h != "" {
		if seconds, err := strconv.Atoi(h); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 5 * time.Second
}

// NotifyFeedEvent implements Notifier.
func (d *DiscordNotifier) NotifyFeedEvent(ctx context.Context, event *entity.FeedEvent) error {
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
		ctx = context.WithValue(ctx, requestIDKey, requestID)
	}

	slog.Info("Starting Discord notification",
		slog.String("request_id", requestID),
		slog.Int64("feed_id", event.FeedID),
		slog.String("event", string(event.Kind)))

	if err := d.rateLimiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	payload := d.buildEmbedPayload(event)
	return sendWithRetry(ctx, "Discord", event.FeedID,
		retryPolicy{maxAttempts: 2, baseDelay: d.config.RetryDelay},
		func(ctx context.Context) error {
			return postJSON(ctx, d.httpClient, "Discord", d.config.WebhookURL, payload, discordRetryAfter)
		})
}
