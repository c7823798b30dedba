package repository

import (
	"context"

	"feedwatch/internal/domain/entity"
)

type HealthLogRepository interface {
	Append(ctx context.Context, entry *entity.HealthLogEntry) error
	// Recent returns at most n entries for the feed, newest first.
	Recent(ctx context.Context, feedID int64, n int) ([]*entity.HealthLogEntry, error)
}
