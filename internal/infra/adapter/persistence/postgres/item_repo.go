package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/repository"
)

type ItemRepo struct{ db *sql.DB }

func NewItemRepo(db *sql.DB) repository.ItemRepository {
	return &ItemRepo{db: db}
}

const itemColumns = `id, feed_id, title, url, summary, content, author, image_url,
       published_at, external_id, created_at`

func scanItem(s rowScanner) (*entity.Item, error) {
	var (
		item       entity.Item
		externalID sql.NullString
	)
	if err := s.Scan(
		&item.ID, &item.FeedID, &item.Title, &item.URL, &item.Summary, &item.Content,
		&item.Author, &item.ImageURL, &item.PublishedAt, &externalID, &item.CreatedAt,
	); err != nil {
		return nil, err
	}
	item.ExternalID = externalID.String
	return &item, nil
}

// nullableString stores empty external ids as NULL so the partial unique index ignores them.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (repo *ItemRepo) FindByExternalID(ctx context.Context, externalID string) (*entity.Item, error) {
	query := `SELECT ` + itemColumns + `
FROM items
WHERE external_id = $1
LIMIT 1`
	item, err := scanItem(repo.db.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindByExternalID: %w", err)
	}
	return item, nil
}

func (repo *ItemRepo) FindByKey(ctx context.Context, feedID int64, url string, publishedAt time.Time) (*entity.Item, error) {
	query := `SELECT ` + itemColumns + `
FROM items
WHERE feed_id = $1 AND url = $2 AND published_at = $3
LIMIT 1`
	item, err := scanItem(repo.db.QueryRowContext(ctx, query, feedID, url, publishedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindByKey: %w", err)
	}
	return item, nil
}

func (repo *ItemRepo) Create(ctx context.Context, item *entity.Item) error {
	const query = `
INSERT INTO items (feed_id, title, url, summary, content, author, image_url, published_at, external_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at`
	err := repo.db.QueryRowContext(ctx, query,
		item.FeedID, item.Title, item.URL, item.Summary, item.Content,
		item.Author, item.ImageURL, item.PublishedAt, nullableString(item.ExternalID),
	).Scan(&item.ID, &item.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("Create: %w", entity.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *ItemRepo) Update(ctx context.Context, item *entity.Item) error {
	const query = `
UPDATE items SET
       title        = $1,
       url          = $2,
       summary      = $3,
       content      = $4,
       author       = $5,
       image_url    = $6,
       published_at = $7,
       external_id  = COALESCE($8, external_id)
WHERE id = $9`
	res, err := repo.db.ExecContext(ctx, query,
		item.Title, item.URL, item.Summary, item.Content, item.Author,
		item.ImageURL, item.PublishedAt, nullableString(item.ExternalID), item.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("Update: %w", entity.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	return expectOneRow(res, "Update")
}

func (repo *ItemRepo) Count(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM items`
	var n int64
	if err := repo.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

func (repo *ItemRepo) ListOldestIDs(ctx context.Context, limit int) ([]int64, error) {
	const query = `
SELECT id
FROM items
ORDER BY published_at ASC, created_at ASC, id ASC
LIMIT $1`
	rows, err := repo.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ListOldestIDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListOldestIDs: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (repo *ItemRepo) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	// #nosec G202 -- only positional placeholders are concatenated
	query := `DELETE FROM items WHERE id IN (` + placeholders(1, len(ids)) + `)`
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("DeleteByIDs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (repo *ItemRepo) ListByFeed(ctx context.Context, feedID int64, limit int) ([]*entity.Item, error) {
	query := `SELECT ` + itemColumns + `
FROM items
WHERE feed_id = $1
ORDER BY published_at DESC, id DESC
LIMIT $2`
	rows, err := repo.db.QueryContext(ctx, query, feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListByFeed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]*entity.Item, 0, limit)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByFeed: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
