package repository

import (
	"context"
	"time"

	"feedwatch/internal/domain/entity"
)

// FeedFailureCounts are the counter values after an atomic failure increment.
type FeedFailureCounts struct {
	Consecutive int
	Total       int
}

type FeedRepository interface {
	// Get returns (nil, nil) when the feed does not exist.
	Get(ctx context.Context, id int64) (*entity.Feed, error)
	GetByURL(ctx context.Context, url string) (*entity.Feed, error)
	List(ctx context.Context) ([]*entity.Feed, error)
	ListActive(ctx context.Context) ([]*entity.Feed, error)
	Create(ctx context.Context, feed *entity.Feed) error
	// RecordSuccess resets the consecutive counter, stamps last fetch and
	// last success, clears last error and, when usedHeavy, sets the heavy flag.
	RecordSuccess(ctx context.Context, id int64, at time.Time, usedHeavy bool) error
	// RecordFailure increments both failure counters in a single statement and
	// returns the values after the increment.
	RecordFailure(ctx context.Context, id int64, at time.Time, errText string) (FeedFailureCounts, error)
	UpdateStatus(ctx context.Context, id int64, status entity.FeedStatus) error
	UpdateMetadata(ctx context.Context, id int64, meta entity.FeedMetadata) error
	// ResetFailures zeroes the consecutive counter only; the lifetime counter is kept.
	ResetFailures(ctx context.Context, id int64) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}
