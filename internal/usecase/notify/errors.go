package notify

import (
	"errors"

	"feedwatch/internal/domain/entity"
)

var (
	// ErrChannelDisabled is returned by Send on a disabled channel.
	ErrChannelDisabled = errors.New("channel is disabled")

	// ErrInvalidEvent is returned for a nil event or one without a feed.
	ErrInvalidEvent = errors.New("invalid feed event")

	// ErrCircuitBreakerOpen marks a notification rejected by an open channel breaker.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open for this channel")
)

func validateEvent(event *entity.FeedEvent) error {
	if event == nil || event.Kind == "" || (event.FeedID == 0 && event.FeedURL == "") {
		return ErrInvalidEvent
	}
	return nil
}
