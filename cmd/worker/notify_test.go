package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadWebhookConfigs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name        string
		enabled     string
		url         string
		wantDiscord bool
	}{
		{"disabled", "false", "https://discord.com/api/webhooks/1/abc", false},
		{"empty url", "true", "", false},
		{"http scheme", "true", "http://discord.com/api/webhooks/1/abc", false},
		{"wrong host", "true", "https://evil.example/api/webhooks/1/abc", false},
		{"wrong path", "true", "https://discord.com/other/1", false},
		{"valid", "true", "https://discord.com/api/webhooks/1/abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DISCORD_ENABLED", tt.enabled)
			t.Setenv("DISCORD_WEBHOOK_URL", tt.url)

			cfg := loadDiscordConfig(logger)
			assert.Equal(t, tt.wantDiscord, cfg.Enabled)
			if tt.wantDiscord {
				assert.Equal(t, tt.url, cfg.WebhookURL)
			}
		})
	}

	t.Run("slack", func(t *testing.T) {
		t.Setenv("SLACK_ENABLED", "true")
		t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/T/B/x")
		assert.True(t, loadSlackConfig(logger).Enabled)

		t.Setenv("SLACK_WEBHOOK_URL", "https://discord.com/api/webhooks/1/abc")
		assert.False(t, loadSlackConfig(logger).Enabled)
	})
}
