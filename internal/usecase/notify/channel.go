// Package notify dispatches feed health events to every enabled channel.
// Dispatch is fire-and-forget: callers never block on webhook delivery, and
// a failing channel is isolated by its own circuit breaker.
package notify

import (
	"context"

	"feedwatch/internal/domain/entity"
)

// Channel is one delivery target.
//
// Implementations must be safe for concurrent use, respect ctx cancellation
// and retry transient failures on their own (5xx, network: up to 2 attempts;
// 429: honour retry-after; other 4xx: no retry).
type Channel interface {
	// Name is a lowercase identifier used in logs, metrics and health output.
	Name() string
	IsEnabled() bool
	// Send returns ErrChannelDisabled on a disabled channel and
	// ErrInvalidEvent for a malformed event.
	Send(ctx context.Context, event *entity.FeedEvent) error
}
