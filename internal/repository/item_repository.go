package repository

import (
	"context"
	"time"

	"feedwatch/internal/domain/entity"
)

type ItemRepository interface {
	// FindByExternalID returns (nil, nil) when no item carries the id.
	FindByExternalID(ctx context.Context, externalID string) (*entity.Item, error)
	// FindByKey looks an item up by its composite identity within a feed.
	FindByKey(ctx context.Context, feedID int64, url string, publishedAt time.Time) (*entity.Item, error)
	Create(ctx context.Context, item *entity.Item) error
	// Update overwrites the mutable descriptive fields of an existing item.
	Update(ctx context.Context, item *entity.Item) error
	Count(ctx context.Context) (int64, error)
	// ListOldestIDs returns up to limit ids ordered by published_at, created_at, id ascending.
	ListOldestIDs(ctx context.Context, limit int) ([]int64, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
	ListByFeed(ctx context.Context, feedID int64, limit int) ([]*entity.Item, error)
}
