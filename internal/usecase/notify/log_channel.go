package notify

import (
	"context"
	"log/slog"

	"feedwatch/internal/domain/entity"
)

// LogChannel writes events to the structured log. It is always enabled so
// that operator events are visible even without webhooks.
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) IsEnabled() bool { return true }

func (c *LogChannel) Send(ctx context.Context, event *entity.FeedEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	level := slog.LevelWarn
	if event.Kind == entity.FeedEventRecovered {
		level = slog.LevelInfo
	}
	c.logger.Log(ctx, level, event.Headline(),
		slog.String("event", string(event.Kind)),
		slog.Int64("feed_id", event.FeedID),
		slog.String("feed_url", event.FeedURL),
		slog.String("status", string(event.Status)),
		slog.Int("consecutive_failures", event.ConsecutiveFailures),
		slog.Int("total_failures", event.TotalFailures),
		slog.String("reason", event.Reason))
	return nil
}
