package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"feedwatch/internal/domain/entity"
)

//go:embed seeds/feeds.yaml
var seedFeedsYAML string

var schemaStatements = []string{
	`
CREATE TABLE IF NOT EXISTS feeds (
    id                   BIGSERIAL PRIMARY KEY,
    name                 TEXT NOT NULL,
    url                  TEXT NOT NULL UNIQUE,
    active               BOOLEAN NOT NULL DEFAULT TRUE,
    status               VARCHAR(20) NOT NULL DEFAULT 'active',
    interval_minutes     INTEGER NOT NULL DEFAULT 30,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    total_failures       INTEGER NOT NULL DEFAULT 0,
    last_fetch_at        TIMESTAMPTZ,
    last_success_at      TIMESTAMPTZ,
    last_error           TEXT NOT NULL DEFAULT '',
    timeout_seconds      INTEGER NOT NULL DEFAULT 0,
    requires_heavy       BOOLEAN NOT NULL DEFAULT FALSE,
    metadata             JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT chk_feed_status CHECK (status IN ('active', 'degraded', 'blocked', 'unreachable', 'paused'))
)`,
	`
CREATE TABLE IF NOT EXISTS items (
    id           BIGSERIAL PRIMARY KEY,
    feed_id      BIGINT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    title        TEXT NOT NULL,
    url          TEXT NOT NULL,
    summary      TEXT NOT NULL DEFAULT '',
    content      TEXT NOT NULL DEFAULT '',
    author       TEXT NOT NULL DEFAULT '',
    image_url    TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMPTZ NOT NULL,
    external_id  TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`
CREATE TABLE IF NOT EXISTS feed_health_log (
    id               BIGSERIAL PRIMARY KEY,
    feed_id          BIGINT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    attempted_at     TIMESTAMPTZ NOT NULL,
    success          BOOLEAN NOT NULL,
    status_code      INTEGER NOT NULL DEFAULT 0,
    response_time_ms BIGINT NOT NULL DEFAULT 0,
    strategy         VARCHAR(20) NOT NULL DEFAULT '',
    error_message    TEXT NOT NULL DEFAULT '',
    failure_kind     VARCHAR(32) NOT NULL DEFAULT ''
)`,
}

var indexStatements = []string{
	// 重複排除: external id は NULL を除いて一意
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_external_id ON items(external_id) WHERE external_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_feed_url_published ON items(feed_id, url, published_at)`,
	// リテンション: 古い順スキャン
	`CREATE INDEX IF NOT EXISTS idx_items_retention ON items(published_at, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_feed_health_log_feed ON feed_health_log(feed_id, attempted_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_feeds_active ON feeds(active) WHERE active = TRUE`,
}

// MigrateUp creates the Postgres schema. Statements are idempotent.
func MigrateUp(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	for _, stmt := range indexStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate index: %w", err)
		}
	}
	return nil
}

// seedFile mirrors the layout of seeds/feeds.yaml and feedctl import files.
type seedFile struct {
	Feeds []seedFeed `yaml:"feeds"`
}

type seedFeed struct {
	Name            string `yaml:"name"`
	URL             string `yaml:"url"`
	IntervalMinutes int    `yaml:"interval_minutes"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	RequiresHeavy   bool   `yaml:"requires_heavy"`
	Inactive        bool   `yaml:"inactive"`
}

// DecodeFeeds reads a YAML feed list. Entries are not validated here.
func DecodeFeeds(r io.Reader) ([]*entity.Feed, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode feeds: %w", err)
	}

	feeds := make([]*entity.Feed, 0, len(file.Feeds))
	for _, s := range file.Feeds {
		feeds = append(feeds, &entity.Feed{
			Name:            s.Name,
			URL:             s.URL,
			Active:          !s.Inactive,
			Status:          entity.FeedStatusActive,
			IntervalMinutes: s.IntervalMinutes,
			TimeoutSeconds:  s.TimeoutSeconds,
			RequiresHeavy:   s.RequiresHeavy,
		})
	}
	return feeds, nil
}

// SeedFeeds returns the feeds bundled with the binary.
func SeedFeeds() ([]*entity.Feed, error) {
	return DecodeFeeds(strings.NewReader(seedFeedsYAML))
}
