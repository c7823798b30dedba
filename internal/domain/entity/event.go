package entity

import (
	"fmt"
	"time"
)

// FeedEventKind identifies an operator-facing feed event.
type FeedEventKind string

const (
	// FeedEventConsecutiveFailures fires once when the consecutive failure
	// counter reaches the warning threshold.
	FeedEventConsecutiveFailures FeedEventKind = "consecutive_failures"
	// FeedEventRecovered fires when a degraded feed returns to active.
	FeedEventRecovered FeedEventKind = "recovered"
	// FeedEventAutoPaused fires when a failure ceiling pauses a feed.
	FeedEventAutoPaused FeedEventKind = "auto_paused"
)

// FeedEvent is a notification about a feed's health.
type FeedEvent struct {
	Kind                FeedEventKind
	FeedID              int64
	FeedName            string
	FeedURL             string
	Status              FeedStatus
	ConsecutiveFailures int
	TotalFailures       int
	LastError           string
	Reason              string // auto-pause reason: "consecutive" or "total"
	At                  time.Time
}

// NewFeedEvent captures the feed's current counters into an event.
func NewFeedEvent(kind FeedEventKind, feed *Feed, at time.Time) *FeedEvent {
	return &FeedEvent{
		Kind:                kind,
		FeedID:              feed.ID,
		FeedName:            feed.Name,
		FeedURL:             feed.URL,
		Status:              feed.Status,
		ConsecutiveFailures: feed.ConsecutiveFailures,
		TotalFailures:       feed.TotalFailures,
		LastError:           feed.LastError,
		At:                  at,
	}
}

// Headline is a one-line human summary of the event.
func (e *FeedEvent) Headline() string {
	name := e.FeedName
	if name == "" {
		name = e.FeedURL
	}
	switch e.Kind {
	case FeedEventConsecutiveFailures:
		return fmt.Sprintf("%s failed %d times in a row", name, e.ConsecutiveFailures)
	case FeedEventRecovered:
		return fmt.Sprintf("%s recovered", name)
	case FeedEventAutoPaused:
		return fmt.Sprintf("%s was paused after too many failures (%s)", name, e.Reason)
	default:
		return fmt.Sprintf("%s: %s", name, e.Kind)
	}
}
