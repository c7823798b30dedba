package notifier

import (
	"context"

	"feedwatch/internal/domain/entity"
)

// NoOpNotifier discards every event.
type NoOpNotifier struct{}

func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

func (n *NoOpNotifier) NotifyFeedEvent(context.Context, *entity.FeedEvent) error {
	return nil
}
