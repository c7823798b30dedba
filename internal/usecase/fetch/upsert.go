package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/repository"
)

// UpsertStats counts what Apply did.
type UpsertStats struct {
	Inserted int
	Updated  int
	// Skipped counts items whose identity conflicted with another stored row.
	Skipped int
}

// Upserter writes normalized items, inserting new ones and refreshing the
// descriptive fields of known ones.
type Upserter struct {
	Items  repository.ItemRepository
	Logger *slog.Logger
}

// NewUpserter returns an Upserter over items. A nil logger uses slog.Default.
func NewUpserter(items repository.ItemRepository, logger *slog.Logger) *Upserter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Upserter{Items: items, Logger: logger}
}

// Apply processes items in order. An item is identified by its external id
// when present, else by (feed, url, published at); an item whose external id
// is unknown but whose composite key is stored updates that row and adopts
// the id. Re-applying the same items only updates; the values of the latest
// call win. Conflicts that cannot be resolved skip the item; only store
// failures are returned.
func (u *Upserter) Apply(ctx context.Context, items []*entity.Item) (UpsertStats, error) {
	var stats UpsertStats
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		existing, err := u.lookup(ctx, item)
		if err != nil {
			return stats, err
		}
		if existing == nil {
			err = u.Items.Create(ctx, item)
			if err == nil {
				stats.Inserted++
				continue
			}
			if !errors.Is(err, entity.ErrDuplicate) {
				return stats, fmt.Errorf("create item %q: %w", item.URL, err)
			}
			// 並行実行で先に挿入された場合は更新に切り替える
			existing, err = u.lookup(ctx, item)
			if err != nil {
				return stats, err
			}
			if existing == nil {
				u.skip(item, "duplicate reported but no matching row")
				stats.Skipped++
				continue
			}
		}

		err = u.update(ctx, existing, item)
		if errors.Is(err, entity.ErrDuplicate) {
			u.skip(item, "update collides with another stored item")
			stats.Skipped++
			continue
		}
		if err != nil {
			return stats, err
		}
		stats.Updated++
	}
	return stats, nil
}

// lookup finds the stored row for item: by external id first, then by the
// composite key.
func (u *Upserter) lookup(ctx context.Context, item *entity.Item) (*entity.Item, error) {
	if item.HasExternalID() {
		existing, err := u.Items.FindByExternalID(ctx, item.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("find item by external id: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}
	existing, err := u.Items.FindByKey(ctx, item.FeedID, item.URL, item.PublishedAt)
	if err != nil {
		return nil, fmt.Errorf("find item by key: %w", err)
	}
	return existing, nil
}

// update copies the mutable fields onto existing and writes it back.
// The row id and insertion time are kept; a new external id replaces the old one.
func (u *Upserter) update(ctx context.Context, existing, item *entity.Item) error {
	existing.Title = item.Title
	existing.URL = item.URL
	existing.Summary = item.Summary
	existing.Content = item.Content
	existing.Author = item.Author
	existing.ImageURL = item.ImageURL
	existing.PublishedAt = item.PublishedAt
	if item.HasExternalID() {
		existing.ExternalID = item.ExternalID
	}
	if err := u.Items.Update(ctx, existing); err != nil {
		return fmt.Errorf("update item %d: %w", existing.ID, err)
	}
	item.ID = existing.ID
	item.CreatedAt = existing.CreatedAt
	return nil
}

func (u *Upserter) skip(item *entity.Item, reason string) {
	u.Logger.Warn("item skipped",
		slog.Int64("feed_id", item.FeedID),
		slog.String("url", item.URL),
		slog.String("external_id", item.ExternalID),
		slog.String("reason", reason))
}
