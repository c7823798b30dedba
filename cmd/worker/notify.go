package main

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"feedwatch/internal/infra/notifier"
	workerPkg "feedwatch/internal/infra/worker"
	"feedwatch/internal/pkg/config"
	"feedwatch/internal/usecase/notify"
)

// initNotifyService wires the log channel plus Discord and Slack when enabled.
func initNotifyService(logger *slog.Logger, cfg *workerPkg.WorkerConfig) notify.Service {
	channels := []notify.Channel{notify.NewLogChannel(logger)}

	if discordConfig := loadDiscordConfig(logger); discordConfig.Enabled {
		channels = append(channels, notify.NewDiscordChannel(discordConfig))
		logger.Info("Discord channel initialized", slog.String("status", "enabled"))
	} else {
		logger.Info("Discord channel disabled")
	}

	if slackConfig := loadSlackConfig(logger); slackConfig.Enabled {
		channels = append(channels, notify.NewSlackChannel(slackConfig))
		logger.Info("Slack channel initialized", slog.String("status", "enabled"))
	} else {
		logger.Info("Slack channel disabled")
	}

	svc := notify.NewService(channels, cfg.NotifyMaxConcurrent, notify.WithLogger(logger))
	logger.Info("Notification service initialized",
		slog.Int("channels", len(channels)),
		slog.Int("max_concurrent", cfg.NotifyMaxConcurrent))
	return svc
}

// webhookConfig is the validated result shared by both webhook channels.
type webhookConfig struct {
	enabled bool
	url     string
}

// loadWebhook reads <prefix>_ENABLED and <prefix>_WEBHOOK_URL. The URL must
// be https on host with a path under pathPrefix; anything else disables the
// channel with a warning.
func loadWebhook(logger *slog.Logger, prefix, host, pathPrefix string) webhookConfig {
	enabled := config.LoadEnvBool(prefix+"_ENABLED", false).Value
	webhookURL := config.LoadEnvString(prefix+"_WEBHOOK_URL", "")

	if !enabled {
		return webhookConfig{}
	}
	logger = logger.With(slog.String("channel", strings.ToLower(prefix)))

	if webhookURL == "" {
		logger.Warn("webhook URL is empty, disabling notifications")
		return webhookConfig{}
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("invalid webhook URL format, disabling notifications", slog.Any("error", err))
		return webhookConfig{}
	}
	if u.Scheme != "https" {
		logger.Warn("webhook URL must use HTTPS, disabling notifications")
		return webhookConfig{}
	}
	if u.Host != host {
		logger.Warn("invalid webhook host, disabling notifications", slog.String("host", u.Host))
		return webhookConfig{}
	}
	if !strings.HasPrefix(u.Path, pathPrefix) {
		// パスはトークンを含むためログに出さない
		logger.Warn("invalid webhook path, disabling notifications")
		return webhookConfig{}
	}

	return webhookConfig{enabled: true, url: webhookURL}
}

// loadDiscordConfig loads Discord configuration from environment variables.
//
// Environment variables:
//   - DISCORD_ENABLED: enable Discord notifications (default: false)
//   - DISCORD_WEBHOOK_URL: https://discord.com/api/webhooks/...
func loadDiscordConfig(logger *slog.Logger) notifier.DiscordConfig {
	w := loadWebhook(logger, "DISCORD", "discord.com", "/api/webhooks/")
	if !w.enabled {
		return notifier.DiscordConfig{Enabled: false}
	}
	return notifier.DiscordConfig{
		Enabled:    true,
		WebhookURL: w.url,
		Timeout:    30 * time.Second,
	}
}

// loadSlackConfig loads Slack configuration from environment variables.
//
// Environment variables:
//   - SLACK_ENABLED: enable Slack notifications (default: false)
//   - SLACK_WEBHOOK_URL: https://hooks.slack.com/services/...
func loadSlackConfig(logger *slog.Logger) notifier.SlackConfig {
	w := loadWebhook(logger, "SLACK", "hooks.slack.com", "/services/")
	if !w.enabled {
		return notifier.SlackConfig{Enabled: false}
	}
	return notifier.SlackConfig{
		Enabled:    true,
		WebhookURL: w.url,
		Timeout:    30 * time.Second,
	}
}
