// Package retention keeps the item store under a global cap by deleting the
// oldest items in bounded batches.
package retention

import (
	"context"
	"fmt"
	"log/slog"

	"feedwatch/internal/observability/metrics"
	"feedwatch/internal/repository"
)

const (
	DefaultMaxItems  = 10000
	DefaultBatchSize = 500
)

// Service enforces the item cap.
type Service struct {
	Items     repository.ItemRepository
	MaxItems  int64
	BatchSize int
	Logger    *slog.Logger
}

// NewService returns a Service; non-positive limits use the defaults.
func NewService(items repository.ItemRepository, maxItems int64, batchSize int, logger *slog.Logger) *Service {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Items: items, MaxItems: maxItems, BatchSize: batchSize, Logger: logger}
}

// Enforce deletes the oldest items (published_at, then created_at) until the
// count is at most MaxItems. Concurrent inserts may leave the store slightly
// over the cap; the next call catches up.
func (s *Service) Enforce(ctx context.Context) (int64, error) {
	var deleted int64
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		count, err := s.Items.Count(ctx)
		if err != nil {
			return deleted, fmt.Errorf("count items: %w", err)
		}
		excess := count - s.MaxItems
		if excess <= 0 {
			metrics.RecordCleanup(count, deleted)
			if deleted > 0 {
				s.Logger.Info("retention sweep completed",
					slog.Int64("deleted", deleted),
					slog.Int64("remaining", count),
					slog.Int64("max_items", s.MaxItems))
			}
			return deleted, nil
		}

		limit := s.BatchSize
		if excess < int64(limit) {
			limit = int(excess)
		}
		ids, err := s.Items.ListOldestIDs(ctx, limit)
		if err != nil {
			return deleted, fmt.Errorf("list oldest items: %w", err)
		}
		if len(ids) == 0 {
			return deleted, nil
		}

		n, err := s.Items.DeleteByIDs(ctx, ids)
		if err != nil {
			return deleted, fmt.Errorf("delete items: %w", err)
		}
		deleted += n
		s.Logger.Debug("retention batch deleted",
			slog.Int("batch", len(ids)),
			slog.Int64("deleted", n))
		if n == 0 {
			// rows vanished between list and delete; recount
			continue
		}
	}
}

// EnforceBestEffort runs Enforce and logs failures instead of returning them.
func (s *Service) EnforceBestEffort(ctx context.Context) {
	if _, err := s.Enforce(ctx); err != nil {
		s.Logger.Warn("retention sweep failed", slog.Any("error", err))
	}
}
