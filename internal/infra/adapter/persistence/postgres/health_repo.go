package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/repository"
)

type HealthLogRepo struct{ db *sql.DB }

func NewHealthLogRepo(db *sql.DB) repository.HealthLogRepository {
	return &HealthLogRepo{db: db}
}

func (repo *HealthLogRepo) Append(ctx context.Context, e *entity.HealthLogEntry) error {
	const query = `
INSERT INTO feed_health_log (feed_id, attempted_at, success, status_code, response_time_ms, strategy, error_message, failure_kind)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, query,
		e.FeedID, e.AttemptedAt, e.Success, e.StatusCode, e.ResponseTime.Milliseconds(),
		string(e.Strategy), e.ErrorMessage, string(e.FailureKind),
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

func (repo *HealthLogRepo) Recent(ctx context.Context, feedID int64, n int) ([]*entity.HealthLogEntry, error) {
	const query = `
SELECT id, feed_id, attempted_at, success, status_code, response_time_ms, strategy, error_message, failure_kind
FROM feed_health_log
WHERE feed_id = $1
ORDER BY attempted_at DESC, id DESC
LIMIT $2`
	rows, err := repo.db.QueryContext(ctx, query, feedID, n)
	if err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]*entity.HealthLogEntry, 0, n)
	for rows.Next() {
		var (
			e        entity.HealthLogEntry
			ms       int64
			strategy string
			kind     string
		)
		if err := rows.Scan(&e.ID, &e.FeedID, &e.AttemptedAt, &e.Success, &e.StatusCode,
			&ms, &strategy, &e.ErrorMessage, &kind); err != nil {
			return nil, fmt.Errorf("Recent: %w", err)
		}
		e.ResponseTime = time.Duration(ms) * time.Millisecond
		e.Strategy = entity.Strategy(strategy)
		e.FailureKind = entity.FailureKind(kind)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
