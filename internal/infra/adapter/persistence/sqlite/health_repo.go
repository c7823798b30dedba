package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/repository"
)

type HealthLogRepo struct{ db *sqlx.DB }

func NewHealthLogRepo(db *sqlx.DB) *HealthLogRepo {
	return &HealthLogRepo{db: db}
}

var _ repository.HealthLogRepository = (*HealthLogRepo)(nil)

type healthSQL struct {
	ID             int64     `db:"id"`
	FeedID         int64     `db:"feed_id"`
	AttemptedAt    time.Time `db:"attempted_at"`
	Success        bool      `db:"success"`
	StatusCode     int       `db:"status_code"`
	ResponseTimeMS int64     `db:"response_time_ms"`
	Strategy       string    `db:"strategy"`
	ErrorMessage   string    `db:"error_message"`
	FailureKind    string    `db:"failure_kind"`
}

func (repo *HealthLogRepo) Append(ctx context.Context, e *entity.HealthLogEntry) error {
	const query = `
INSERT INTO feed_health_log (feed_id, attempted_at, success, status_code, response_time_ms, strategy, error_message, failure_kind)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`
	err := withLockRetry(ctx, func() error {
		return repo.db.QueryRowxContext(ctx, query,
			e.FeedID, utc(e.AttemptedAt), e.Success, e.StatusCode, e.ResponseTime.Milliseconds(),
			string(e.Strategy), e.ErrorMessage, string(e.FailureKind),
		).Scan(&e.ID)
	})
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

func (repo *HealthLogRepo) Recent(ctx context.Context, feedID int64, n int) ([]*entity.HealthLogEntry, error) {
	var rows []healthSQL
	err := repo.db.SelectContext(ctx, &rows, `
SELECT id, feed_id, attempted_at, success, status_code, response_time_ms, strategy, error_message, failure_kind
FROM feed_health_log
WHERE feed_id = ?
ORDER BY attempted_at DESC, id DESC
LIMIT ?`, feedID, n)
	if err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}

	entries := make([]*entity.HealthLogEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, &entity.HealthLogEntry{
			ID:           r.ID,
			FeedID:       r.FeedID,
			AttemptedAt:  r.AttemptedAt,
			Success:      r.Success,
			StatusCode:   r.StatusCode,
			ResponseTime: time.Duration(r.ResponseTimeMS) * time.Millisecond,
			Strategy:     entity.Strategy(r.Strategy),
			ErrorMessage: r.ErrorMessage,
			FailureKind:  entity.FailureKind(r.FailureKind),
		})
	}
	return entries, nil
}
