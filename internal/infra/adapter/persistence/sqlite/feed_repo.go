package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/repository"
)

type FeedRepo struct{ db *sqlx.DB }

func NewFeedRepo(db *sqlx.DB) *FeedRepo {
	return &FeedRepo{db: db}
}

var _ repository.FeedRepository = (*FeedRepo)(nil)

// feedSQL represents a feed row.
type feedSQL struct {
	ID                  int64      `db:"id"`
	Name                string     `db:"name"`
	URL                 string     `db:"url"`
	Active              bool       `db:"active"`
	Status              string     `db:"status"`
	IntervalMinutes     int        `db:"interval_minutes"`
	ConsecutiveFailures int        `db:"consecutive_failures"`
	TotalFailures       int        `db:"total_failures"`
	LastFetchAt         *time.Time `db:"last_fetch_at"`
	LastSuccessAt       *time.Time `db:"last_success_at"`
	LastError           string     `db:"last_error"`
	TimeoutSeconds      int        `db:"timeout_seconds"`
	RequiresHeavy       bool       `db:"requires_heavy"`
	Metadata            string     `db:"metadata"`
	CreatedAt           time.Time  `db:"created_at"`
}

func (f *feedSQL) toDomain() (*entity.Feed, error) {
	feed := &entity.Feed{
		ID:                  f.ID,
		Name:                f.Name,
		URL:                 f.URL,
		Active:              f.Active,
		Status:              entity.FeedStatus(f.Status),
		IntervalMinutes:     f.IntervalMinutes,
		ConsecutiveFailures: f.ConsecutiveFailures,
		TotalFailures:       f.TotalFailures,
		LastFetchAt:         f.LastFetchAt,
		LastSuccessAt:       f.LastSuccessAt,
		LastError:           f.LastError,
		TimeoutSeconds:      f.TimeoutSeconds,
		RequiresHeavy:       f.RequiresHeavy,
		CreatedAt:           f.CreatedAt,
	}
	if f.Metadata != "" {
		if err := json.Unmarshal([]byte(f.Metadata), &feed.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return feed, nil
}

const feedSelect = `SELECT id, name, url, active, status, interval_minutes,
       consecutive_failures, total_failures, last_fetch_at, last_success_at,
       last_error, timeout_seconds, requires_heavy, metadata, created_at
FROM feeds`

func (repo *FeedRepo) get(ctx context.Context, op, where string, arg any) (*entity.Feed, error) {
	var row feedSQL
	err := repo.db.GetContext(ctx, &row, feedSelect+" WHERE "+where+" LIMIT 1", arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return row.toDomain()
}

func (repo *FeedRepo) Get(ctx context.Context, id int64) (*entity.Feed, error) {
	return repo.get(ctx, "Get", "id = ?", id)
}

func (repo *FeedRepo) GetByURL(ctx context.Context, url string) (*entity.Feed, error) {
	return repo.get(ctx, "GetByURL", "url = ?", url)
}

func (repo *FeedRepo) List(ctx context.Context) ([]*entity.Feed, error) {
	return repo.list(ctx, "List", feedSelect+" ORDER BY id ASC")
}

func (repo *FeedRepo) ListActive(ctx context.Context) ([]*entity.Feed, error) {
	return repo.list(ctx, "ListActive", feedSelect+" WHERE active = 1 ORDER BY id ASC")
}

func (repo *FeedRepo) list(ctx context.Context, op, query string) ([]*entity.Feed, error) {
	var rows []feedSQL
	if err := repo.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	feeds := make([]*entity.Feed, 0, len(rows))
	for i := range rows {
		f, err := rows[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

func (repo *FeedRepo) Create(ctx context.Context, feed *entity.Feed) error {
	meta, err := json.Marshal(feed.Metadata)
	if err != nil {
		return fmt.Errorf("Create: marshal metadata: %w", err)
	}
	if feed.Status == "" {
		feed.Status = entity.FeedStatusActive
	}

	const query = `
INSERT INTO feeds (name, url, active, status, interval_minutes, timeout_seconds, requires_heavy, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`
	now := utc(time.Now())
	err = withLockRetry(ctx, func() error {
		return repo.db.QueryRowxContext(ctx, query,
			feed.Name, feed.URL, feed.Active, string(feed.Status),
			feed.IntervalMinutes, feed.TimeoutSeconds, feed.RequiresHeavy, string(meta), now,
		).Scan(&feed.ID)
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("Create: %w", entity.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	feed.CreatedAt = now
	return nil
}

func (repo *FeedRepo) exec(ctx context.Context, op, query string, args ...any) error {
	return withLockRetry(ctx, func() error {
		res, err := repo.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%s: %w", op, entity.ErrNotFound)
		}
		return nil
	})
}

func (repo *FeedRepo) RecordSuccess(ctx context.Context, id int64, at time.Time, usedHeavy bool) error {
	const query = `
UPDATE feeds SET
       consecutive_failures = 0,
       last_fetch_at        = ?,
       last_success_at      = ?,
       last_error           = '',
       requires_heavy       = (requires_heavy OR ?)
WHERE id = ?`
	return repo.exec(ctx, "RecordSuccess", query, utc(at), utc(at), usedHeavy, id)
}

func (repo *FeedRepo) RecordFailure(ctx context.Context, id int64, at time.Time, errText string) (repository.FeedFailureCounts, error) {
	const query = `
UPDATE feeds SET
       consecutive_failures = consecutive_failures + 1,
       total_failures       = total_failures + 1,
       last_fetch_at        = ?,
       last_error           = ?
WHERE id = ?
RETURNING consecutive_failures, total_failures`
	var counts repository.FeedFailureCounts
	err := withLockRetry(ctx, func() error {
		return repo.db.QueryRowxContext(ctx, query, utc(at), errText, id).Scan(&counts.Consecutive, &counts.Total)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return counts, fmt.Errorf("RecordFailure: %w", entity.ErrNotFound)
	}
	if err != nil {
		return counts, fmt.Errorf("RecordFailure: %w", err)
	}
	return counts, nil
}

func (repo *FeedRepo) UpdateStatus(ctx context.Context, id int64, status entity.FeedStatus) error {
	return repo.exec(ctx, "UpdateStatus", `UPDATE feeds SET status = ? WHERE id = ?`, string(status), id)
}

func (repo *FeedRepo) UpdateMetadata(ctx context.Context, id int64, meta entity.FeedMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("UpdateMetadata: marshal: %w", err)
	}
	return repo.exec(ctx, "UpdateMetadata", `UPDATE feeds SET metadata = ? WHERE id = ?`, string(raw), id)
}

func (repo *FeedRepo) ResetFailures(ctx context.Context, id int64) error {
	return repo.exec(ctx, "ResetFailures", `UPDATE feeds SET consecutive_failures = 0 WHERE id = ?`, id)
}

func (repo *FeedRepo) SetActive(ctx context.Context, id int64, active bool) error {
	return repo.exec(ctx, "SetActive", `UPDATE feeds SET active = ? WHERE id = ?`, active, id)
}

func (repo *FeedRepo) Delete(ctx context.Context, id int64) error {
	return repo.exec(ctx, "Delete", `DELETE FROM feeds WHERE id = ?`, id)
}
