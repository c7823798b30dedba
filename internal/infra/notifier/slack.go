package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"feedwatch/internal/domain/entity"

	"github.com/google/uuid"
)

// SlackConfig contains configuration for Slack Incoming Webhook notifications.
type SlackConfig struct {
	Enabled    bool
	WebhookURL string
	Timeout    time.Duration
	// RetryDelay is the base back-off between attempts. Default: 5s
	RetryDelay time.Duration
}

// SlackNotifier sends feed events to Slack.
type SlackNotifier struct {
	config      SlackConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewSlackNotifier returns a notifier limited to 1 req/s (Slack's webhook limit).
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	return &SlackNotifier{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(1.0, 1),
	}
}

// SlackWebhookPayload is a Block Kit message.
type SlackWebhookPayload struct {
	Text   string       `json:"text"`
	Blocks []SlackBlock `json:"blocks"`
}

type SlackBlock struct {
	Type     string            `json:"type"`
	Text     *SlackTextObject  `json:"text,omitempty"`
	Elements []SlackTextObject `json:"elements,omitempty"`
}

type SlackTextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	maxSectionTextLength  = 3000
	maxContextTextLength  = 2000
	maxFallbackLength     = 150
	slackTruncationSuffix = "..."
)

func slackEmoji(kind entity.FeedEventKind) string {
	switch kind {
	case entity.FeedEventConsecutiveFailures:
		return ":warning:"
	case entity.FeedEventRecovered:
		return ":white_check_mark:"
	case entity.FeedEventAutoPaused:
		return ":double_vertical_bar:"
	}
	return ":information_source:"
}

func (s *SlackNotifier) buildBlockKitPayload(event *entity.FeedEvent) SlackWebhookPayload {
	headline := event.Headline()

	section := fmt.Sprintf("%s *%s*\n<%s>", slackEmoji(event.Kind), headline, event.FeedURL)
	if event.LastError != "" {
		section += "\n```" + event.LastError + "```"
	}

	footer := fmt.Sprintf("status: %s • consecutive: %s • total: %s • %s",
		event.Status,
		strconv.Itoa(event.ConsecutiveFailures),
		strconv.Itoa(event.TotalFailures),
		event.At.UTC().Format(time.RFC3339))

	return SlackWebhookPayload{
		Text: truncate(headline, maxFallbackLength, slackTruncationSuffix),
		Blocks: []SlackBlock{
			{
				Type: "section",
				Text: &SlackTextObject{Type: "mrkdwn", Text: truncate(section, maxSectionTextLength, slackTruncationSuffix)},
			},
			{
				Type:     "context",
				Elements: []SlackTextObject{{Type: "mrkdwn", Text: truncate(footer, maxContextTextLength, slackTruncationSuffix)}},
			},
		},
	}
}

// slackRetryAfter reads the Retry-After header, defaulting to 1s.
func slackRetryAfter(resp *http.Response, _ []byte) time.Duration {
	if h := resp.Header.Get("Retry-After"); h != "" {
		if seconds, err := strconv.Atoi(h); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return time.Second
}

// NotifyFeedEvent implements Notifier.
func (s *SlackNotifier) NotifyFeedEvent(ctx context.Context, event *entity.FeedEvent) error {
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
		ctx = context.WithValue(ctx, requestIDKey, requestID)
	}

	slog.Info("Starting Slack notification",
		slog.String("request_id", requestID),
		slog.Int64("feed_id", event.FeedID),
		slog.String("event", string(event.Kind)))

	if err := s.rateLimiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	payload := s.buildBlockKitPayload(event)
	return sendWithRetry(ctx, "Slack", event.FeedID,
		retryPolicy{maxAttempts: 2, baseDelay: s.config.RetryDelay},
		func(ctx context.Context) error {
			return postJSON(ctx, s.httpClient, "Slack", s.config.WebhookURL, payload, slackRetryAfter)
		})
}
