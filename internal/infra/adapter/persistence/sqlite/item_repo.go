package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/repository"
)

type ItemRepo struct{ db *sqlx.DB }

func NewItemRepo(db *sqlx.DB) *ItemRepo {
	return &ItemRepo{db: db}
}

var _ repository.ItemRepository = (*ItemRepo)(nil)

type itemSQL struct {
	ID          int64          `db:"id"`
	FeedID      int64          `db:"feed_id"`
	Title       string         `db:"title"`
	URL         string         `db:"url"`
	Summary     string         `db:"summary"`
	Content     string         `db:"content"`
	Author      string         `db:"author"`
	ImageURL    string         `db:"image_url"`
	PublishedAt time.Time      `db:"published_at"`
	ExternalID  sql.NullString `db:"external_id"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (i *itemSQL) toDomain() *entity.Item {
	return &entity.Item{
		ID:          i.ID,
		FeedID:      i.FeedID,
		Title:       i.Title,
		URL:         i.URL,
		Summary:     i.Summary,
		Content:     i.Content,
		Author:      i.Author,
		ImageURL:    i.ImageURL,
		PublishedAt: i.PublishedAt,
		ExternalID:  i.ExternalID.String,
		CreatedAt:   i.CreatedAt,
	}
}

const itemSelect = `SELECT id, feed_id, title, url, summary, content, author, image_url,
       published_at, external_id, created_at
FROM items`

func externalID(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (repo *ItemRepo) getOne(ctx context.Context, op, query string, args ...any) (*entity.Item, error) {
	var row itemSQL
	err := repo.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return row.toDomain(), nil
}

func (repo *ItemRepo) FindByExternalID(ctx context.Context, id string) (*entity.Item, error) {
	return repo.getOne(ctx, "FindByExternalID", itemSelect+" WHERE external_id = ? LIMIT 1", id)
}

func (repo *ItemRepo) FindByKey(ctx context.Context, feedID int64, url string, publishedAt time.Time) (*entity.Item, error) {
	return repo.getOne(ctx, "FindByKey",
		itemSelect+" WHERE feed_id = ? AND url = ? AND published_at = ? LIMIT 1",
		feedID, url, utc(publishedAt))
}

func (repo *ItemRepo) Create(ctx context.Context, item *entity.Item) error {
	const query = `
INSERT INTO items (feed_id, title, url, summary, content, author, image_url, published_at, external_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`
	now := utc(time.Now())
	err := withLockRetry(ctx, func() error {
		return repo.db.QueryRowxContext(ctx, query,
			item.FeedID, item.Title, item.URL, item.Summary, item.Content, item.Author,
			item.ImageURL, utc(item.PublishedAt), externalID(item.ExternalID), now,
		).Scan(&item.ID)
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("Create: %w", entity.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	item.CreatedAt = now
	return nil
}

func (repo *ItemRepo) Update(ctx context.Context, item *entity.Item) error {
	const query = `
UPDATE items SET
       title        = ?,
       url          = ?,
       summary      = ?,
       content      = ?,
       author       = ?,
       image_url    = ?,
       published_at = ?,
       external_id  = COALESCE(?, external_id)
WHERE id = ?`
	err := withLockRetry(ctx, func() error {
		res, err := repo.db.ExecContext(ctx, query,
			item.Title, item.URL, item.Summary, item.Content, item.Author, item.ImageURL,
			utc(item.PublishedAt), externalID(item.ExternalID), item.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return entity.ErrNotFound
		}
		return nil
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("Update: %w", entity.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	return nil
}

func (repo *ItemRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM items`); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

func (repo *ItemRepo) ListOldestIDs(ctx context.Context, limit int) ([]int64, error) {
	ids := make([]int64, 0, limit)
	err := repo.db.SelectContext(ctx, &ids,
		`SELECT id FROM items ORDER BY published_at ASC, created_at ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListOldestIDs: %w", err)
	}
	return ids, nil
}

func (repo *ItemRepo) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM items WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("DeleteByIDs: %w", err)
	}

	var deleted int64
	err = withLockRetry(ctx, func() error {
		res, err := repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("DeleteByIDs: %w", err)
	}
	return deleted, nil
}

func (repo *ItemRepo) ListByFeed(ctx context.Context, feedID int64, limit int) ([]*entity.Item, error) {
	var rows []itemSQL
	err := repo.db.SelectContext(ctx, &rows,
		itemSelect+" WHERE feed_id = ? ORDER BY published_at DESC, id DESC LIMIT ?", feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListByFeed: %w", err)
	}
	items := make([]*entity.Item, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].toDomain())
	}
	return items, nil
}
