package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/repository"
)

type FeedRepo struct{ db *sql.DB }

func NewFeedRepo(db *sql.DB) repository.FeedRepository {
	return &FeedRepo{db: db}
}

const feedColumns = `id, name, url, active, status, interval_minutes,
       consecutive_failures, total_failures, last_fetch_at, last_success_at,
       last_error, timeout_seconds, requires_heavy, metadata, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(s rowScanner) (*entity.Feed, error) {
	var (
		feed     entity.Feed
		status   string
		metaJSON []byte
	)
	if err := s.Scan(
		&feed.ID, &feed.Name, &feed.URL, &feed.Active, &status, &feed.IntervalMinutes,
		&feed.ConsecutiveFailures, &feed.TotalFailures, &feed.LastFetchAt, &feed.LastSuccessAt,
		&feed.LastError, &feed.TimeoutSeconds, &feed.RequiresHeavy, &metaJSON, &feed.CreatedAt,
	); err != nil {
		return nil, err
	}
	feed.Status = entity.FeedStatus(status)

	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &feed.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &feed, nil
}

func (repo *FeedRepo) Get(ctx context.Context, id int64) (*entity.Feed, error) {
	query := `SELECT ` + feedColumns + `
FROM feeds
WHERE id = $1
LIMIT 1`
	feed, err := scanFeed(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return feed, nil
}

func (repo *FeedRepo) GetByURL(ctx context.Context, url string) (*entity.Feed, error) {
	query := `SELECT ` + feedColumns + `
FROM feeds
WHERE url = $1
LIMIT 1`
	feed, err := scanFeed(repo.db.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByURL: %w", err)
	}
	return feed, nil
}

func (repo *FeedRepo) List(ctx context.Context) ([]*entity.Feed, error) {
	return repo.list(ctx, "List", `SELECT `+feedColumns+`
FROM feeds
ORDER BY id ASC`)
}

func (repo *FeedRepo) ListActive(ctx context.Context) ([]*entity.Feed, error) {
	return repo.list(ctx, "ListActive", `SELECT `+feedColumns+`
FROM feeds
WHERE active = TRUE
ORDER BY id ASC`)
}

func (repo *FeedRepo) list(ctx context.Context, op, query string) ([]*entity.Feed, error) {
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	feeds := make([]*entity.Feed, 0, 50)
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

func (repo *FeedRepo) Create(ctx context.Context, feed *entity.Feed) error {
	metaJSON, err := json.Marshal(feed.Metadata)
	if err != nil {
		return fmt.Errorf("Create: marshal metadata: %w", err)
	}
	if feed.Status == "" {
		feed.Status = entity.FeedStatusActive
	}

	const query = `
INSERT INTO feeds (name, url, active, status, interval_minutes, timeout_seconds, requires_heavy, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at`
	err = repo.db.QueryRowContext(ctx, query,
		feed.Name, feed.URL, feed.Active, string(feed.Status),
		feed.IntervalMinutes, feed.TimeoutSeconds, feed.RequiresHeavy, metaJSON,
	).Scan(&feed.ID, &feed.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("Create: %w", entity.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *FeedRepo) RecordSuccess(ctx context.Context, id int64, at time.Time, usedHeavy bool) error {
	const query = `
UPDATE feeds SET
       consecutive_failures = 0,
       last_fetch_at        = $1,
       last_success_at      = $1,
       last_error           = '',
       requires_heavy       = requires_heavy OR $2
WHERE id = $3`
	res, err := repo.db.ExecContext(ctx, query, at, usedHeavy, id)
	if err != nil {
		return fmt.Errorf("RecordSuccess: %w", err)
	}
	return expectOneRow(res, "RecordSuccess")
}

func (repo *FeedRepo) RecordFailure(ctx context.Context, id int64, at time.Time, errText string) (repository.FeedFailureCounts, error) {
	const query = `
UPDATE feeds SET
       consecutive_failures = consecutive_failures + 1,
       total_failures       = total_failures + 1,
       last_fetch_at        = $1,
       last_error           = $2
WHERE id = $3
RETURNING consecutive_failures, total_failures`
	var counts repository.FeedFailureCounts
	err := repo.db.QueryRowContext(ctx, query, at, errText, id).Scan(&counts.Consecutive, &counts.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return counts, fmt.Errorf("RecordFailure: %w", entity.ErrNotFound)
	}
	if err != nil {
		return counts, fmt.Errorf("RecordFailure: %w", err)
	}
	return counts, nil
}

func (repo *FeedRepo) UpdateStatus(ctx context.Context, id int64, status entity.FeedStatus) error {
	const query = `UPDATE feeds SET status = $1 WHERE id = $2`
	res, err := repo.db.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	return expectOneRow(res, "UpdateStatus")
}

func (repo *FeedRepo) UpdateMetadata(ctx context.Context, id int64, meta entity.FeedMetadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("UpdateMetadata: marshal: %w", err)
	}
	const query = `UPDATE feeds SET metadata = $1 WHERE id = $2`
	res, err := repo.db.ExecContext(ctx, query, metaJSON, id)
	if err != nil {
		return fmt.Errorf("UpdateMetadata: %w", err)
	}
	return expectOneRow(res, "UpdateMetadata")
}

func (repo *FeedRepo) ResetFailures(ctx context.Context, id int64) error {
	const query = `UPDATE feeds SET consecutive_failures = 0 WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ResetFailures: %w", err)
	}
	return expectOneRow(res, "ResetFailures")
}

func (repo *FeedRepo) SetActive(ctx context.Context, id int64, active bool) error {
	const query = `UPDATE feeds SET active = $1 WHERE id = $2`
	res, err := repo.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("SetActive: %w", err)
	}
	return expectOneRow(res, "SetActive")
}

func (repo *FeedRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM feeds WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return expectOneRow(res, "Delete")
}

func expectOneRow(res sql.Result, op string) error {
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, entity.ErrNotFound)
	}
	return nil
}
