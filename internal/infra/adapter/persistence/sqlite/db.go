// Package sqlite implements the repositories on an embedded SQLite database
// (pure Go driver), for single-node deployments and integration tests.
package sqlite

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

//go:embed schema.sql
var schema string

// Config represents database configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Repositories bundles the SQLite repositories sharing one connection pool.
type Repositories struct {
	Feed   *FeedRepo
	Item   *ItemRepo
	Health *HealthLogRepo
	DB     *sqlx.DB
}

// Open opens the database, applies pragmas and creates the schema.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		cfg.DSN = "file:feedwatch.db?cache=shared&mode=rwc&_txlock=immediate"
	}

	db, err := sqlx.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return db, nil
}

// NewRepositories opens the database and wires every repository to it.
func NewRepositories(ctx context.Context, cfg Config) (*Repositories, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		Feed:   NewFeedRepo(db),
		Item:   NewItemRepo(db),
		Health: NewHealthLogRepo(db),
		DB:     db,
	}, nil
}

// Close closes the database connection.
func (r *Repositories) Close() error {
	return r.DB.Close()
}
