package db

import (
	"context"
	"fmt"
	"log/slog"

	"feedwatch/internal/infra/adapter/persistence/postgres"
	"feedwatch/internal/infra/adapter/persistence/sqlite"
	"feedwatch/internal/pkg/config"
	"feedwatch/internal/repository"
)

// Driver names accepted by DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store bundles the repositories of one backend.
type Store struct {
	Driver string
	Feeds  repository.FeedRepository
	Items  repository.ItemRepository
	Health repository.HealthLogRepository

	close func() error
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStore opens the backend selected by DB_DRIVER and ensures its schema.
//
// Environment variables:
//   - DB_DRIVER: postgres or sqlite (default: postgres)
//   - DATABASE_URL: Postgres DSN
//   - SQLITE_DSN: SQLite DSN (default: file:feedwatch.db in the working directory)
func OpenStore(ctx context.Context, logger *slog.Logger, metrics *config.ConfigMetrics) (*Store, error) {
	l := config.NewLoader(logger, metrics)
	driver := l.String("db_driver", "DB_DRIVER", DriverPostgres, config.ValidateOneOf(DriverPostgres, DriverSQLite))
	sqliteDSN := config.LoadEnvString("SQLITE_DSN", "")
	l.Finish()

	switch driver {
	case DriverSQLite:
		repos, err := sqlite.NewRepositories(ctx, sqlite.Config{DSN: sqliteDSN})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("store opened", slog.String("driver", driver))
		return &Store{
			Driver: driver,
			Feeds:  repos.Feed,
			Items:  repos.Item,
			Health: repos.Health,
			close:  repos.Close,
		}, nil

	default:
		database, err := Open(ctx, "")
		if err != nil {
			return nil, err
		}
		if err := MigrateUp(ctx, database); err != nil {
			_ = database.Close()
			return nil, err
		}
		logger.Info("store opened", slog.String("driver", driver))
		return &Store{
			Driver: driver,
			Feeds:  postgres.NewFeedRepo(database),
			Items:  postgres.NewItemRepo(database),
			Health: postgres.NewHealthLogRepo(database),
			close:  database.Close,
		}, nil
	}
}
