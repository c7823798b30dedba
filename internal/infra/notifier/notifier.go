// Package notifier delivers feed health events to chat webhooks.
// Discord and Slack share the webhook error model, retry loop and token
// bucket in this package; the no-op notifier stands in for disabled channels.
package notifier

import (
	"context"

	"feedwatch/internal/domain/entity"
)

// Notifier sends one feed event to an external system.
// Implementations apply their own rate limiting and retries and must respect
// context cancellation.
type Notifier interface {
	NotifyFeedEvent(ctx context.Context, event *entity.FeedEvent) error
}
