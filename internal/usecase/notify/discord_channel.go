package notify

import (
	"context"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/infra/notifier"
)

// DiscordChannel adapts notifier.DiscordNotifier to Channel.
type DiscordChannel struct {
	notifier notifier.Notifier
	enabled  bool
}

// NewDiscordChannel returns a Discord channel. A disabled configuration is
// backed by the no-op notifier.
func NewDiscordChannel(config notifier.DiscordConfig) *DiscordChannel {
	var n notifier.Notifier = notifier.NewNoOpNotifier()
	if config.Enabled {
		n = notifier.NewDiscordNotifier(config)
	}
	return &DiscordChannel{notifier: n, enabled: config.Enabled}
}

func (c *DiscordChannel) Name() string { return "discord" }

func (c *DiscordChannel) IsEnabled() bool { return c.enabled }

func (c *DiscordChannel) Send(ctx context.Context, event *entity.FeedEvent) error {
	if !c.enabled {
		return ErrChannelDisabled
	}
	if err := validateEvent(event); err != nil {
		return err
	}
	return c.notifier.NotifyFeedEvent(ctx, event)
}
