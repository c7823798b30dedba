package notify

import (
	"context"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/infra/notifier"
)

// SlackChannel adapts notifier.SlackNotifier to Channel.
type SlackChannel struct {
	notifier notifier.Notifier
	enabled  bool
}

// NewSlackChannel returns a Slack channel. A disabled configuration is
// backed by the no-op notifier.
func NewSlackChannel(config notifier.SlackConfig) *SlackChannel {
	var n notifier.Notifier = notifier.NewNoOpNotifier()
	if config.Enabled {
		n = notifier.NewSlackNotifier(config)
	}
	return &SlackChannel{notifier: n, enabled: config.Enabled}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) IsEnabled() bool { return c.enabled }

func (c *SlackChannel) Send(ctx context.Context, event *entity.FeedEvent) error {
	if !c.enabled {
		return ErrChannelDisabled
	}
	if err := validateEvent(event); err != nil {
		return err
	}
	return c.notifier.NotifyFeedEvent(ctx, event)
}
