package db

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateUp_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS feeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS items").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS feed_health_log").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE UNIQUE INDEX IF NOT EXISTS idx_items_external_id").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE UNIQUE INDEX IF NOT EXISTS idx_items_feed_url_published").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_items_retention").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_feed_health_log_feed").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_feeds_active").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, MigrateUp(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateUp_TableError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS feeds").WillReturnError(sql.ErrConnDone)

	err = MigrateUp(context.Background(), db)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateUp_IndexError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	for range schemaStatements {
		mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("CREATE UNIQUE INDEX").WillReturnError(sql.ErrTxDone)

	err = MigrateUp(context.Background(), db)
	assert.ErrorIs(t, err, sql.ErrTxDone)
}

func TestSeedFeeds(t *testing.T) {
	feeds, err := SeedFeeds()
	require.NoError(t, err)
	require.NotEmpty(t, feeds)
	for _, f := range feeds {
		assert.NotEmpty(t, f.Name)
		assert.True(t, strings.HasPrefix(f.URL, "https://"), f.URL)
		assert.True(t, f.Active)
	}
}

func TestDecodeFeeds(t *testing.T) {
	t.Run("maps fields", func(t *testing.T) {
		in := `
feeds:
  - name: A
    url: https://a.example/feed
    interval_minutes: 5
    timeout_seconds: 12
    requires_heavy: true
    inactive: true
`
		feeds, err := DecodeFeeds(strings.NewReader(in))
		require.NoError(t, err)
		require.Len(t, feeds, 1)
		f := feeds[0]
		assert.Equal(t, "A", f.Name)
		assert.Equal(t, 5, f.IntervalMinutes)
		assert.Equal(t, 12, f.TimeoutSeconds)
		assert.True(t, f.RequiresHeavy)
		assert.False(t, f.Active)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, err := DecodeFeeds(strings.NewReader("feeds:\n  - name: A\n    colour: red\n"))
		assert.Error(t, err)
	})

	t.Run("empty input", func(t *testing.T) {
		feeds, err := DecodeFeeds(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, feeds)
	})
}
